package glapi

// GL enum values used by the renderer. They mirror the core profile headers
// so that code and tests never need the cgo bindings.
const (
	NONE  = 0
	FALSE = 0
	TRUE  = 1

	// Errors.
	NO_ERROR          = 0
	INVALID_ENUM      = 0x0500
	INVALID_VALUE     = 0x0501
	INVALID_OPERATION = 0x0502
	OUT_OF_MEMORY     = 0x0505
	CONTEXT_LOST      = 0x0507

	// Strings.
	VENDOR                   = 0x1F00
	RENDERER                 = 0x1F01
	VERSION                  = 0x1F02
	EXTENSIONS               = 0x1F03
	SHADING_LANGUAGE_VERSION = 0x8B8C
	NUM_EXTENSIONS           = 0x821D

	// Limits.
	MAX_TEXTURE_SIZE                 = 0x0D33
	MAX_TEXTURE_IMAGE_UNITS          = 0x8872
	MAX_COMBINED_TEXTURE_IMAGE_UNITS = 0x8B4D
	MAX_UNIFORM_BLOCK_SIZE           = 0x8A30
	MAX_SAMPLES                      = 0x8D57
	MAX_TEXTURE_MAX_ANISOTROPY       = 0x84FF
	NUM_PROGRAM_BINARY_FORMATS       = 0x87FE

	// Primitives.
	POINTS         = 0x0000
	LINES          = 0x0001
	LINE_LOOP      = 0x0002
	LINE_STRIP     = 0x0003
	TRIANGLES      = 0x0004
	TRIANGLE_STRIP = 0x0005
	TRIANGLE_FAN   = 0x0006

	// Types.
	BYTE                        = 0x1400
	UNSIGNED_BYTE               = 0x1401
	SHORT                       = 0x1402
	UNSIGNED_SHORT              = 0x1403
	INT                         = 0x1404
	UNSIGNED_INT                = 0x1405
	FLOAT                       = 0x1406
	HALF_FLOAT                  = 0x140B
	UNSIGNED_SHORT_4_4_4_4      = 0x8033
	UNSIGNED_SHORT_5_6_5        = 0x8363
	UNSIGNED_INT_2_10_10_10_REV = 0x8368
	UNSIGNED_INT_5_9_9_9_REV    = 0x8C3E
	UNSIGNED_INT_24_8           = 0x84FA

	// Buffers.
	ARRAY_BUFFER              = 0x8892
	ELEMENT_ARRAY_BUFFER      = 0x8893
	UNIFORM_BUFFER            = 0x8A11
	TRANSFORM_FEEDBACK_BUFFER = 0x8C8E
	COPY_READ_BUFFER          = 0x8F36
	COPY_WRITE_BUFFER         = 0x8F37
	STATIC_DRAW               = 0x88E4
	STREAM_DRAW               = 0x88E0
	DYNAMIC_DRAW              = 0x88E8
	BUFFER_SIZE               = 0x8764

	// Texture targets.
	TEXTURE_2D                  = 0x0DE1
	TEXTURE_3D                  = 0x806F
	TEXTURE_2D_ARRAY            = 0x8C1A
	TEXTURE_CUBE_MAP            = 0x8513
	TEXTURE_CUBE_MAP_POSITIVE_X = 0x8515
	TEXTURE_CUBE_MAP_NEGATIVE_X = 0x8516
	TEXTURE_CUBE_MAP_POSITIVE_Y = 0x8517
	TEXTURE_CUBE_MAP_NEGATIVE_Y = 0x8518
	TEXTURE_CUBE_MAP_POSITIVE_Z = 0x8519
	TEXTURE_CUBE_MAP_NEGATIVE_Z = 0x851A
	TEXTURE_2D_MULTISAMPLE      = 0x9100
	TEXTURE0                    = 0x84C0

	// Texture parameters.
	TEXTURE_MAG_FILTER         = 0x2800
	TEXTURE_MIN_FILTER         = 0x2801
	TEXTURE_WRAP_S             = 0x2802
	TEXTURE_WRAP_T             = 0x2803
	TEXTURE_WRAP_R             = 0x8072
	TEXTURE_BASE_LEVEL         = 0x813C
	TEXTURE_MAX_LEVEL          = 0x813D
	TEXTURE_BORDER_COLOR       = 0x1004
	TEXTURE_COMPARE_MODE       = 0x884C
	TEXTURE_COMPARE_FUNC       = 0x884D
	COMPARE_REF_TO_TEXTURE     = 0x884E
	TEXTURE_SWIZZLE_R          = 0x8E42
	TEXTURE_SWIZZLE_G          = 0x8E43
	TEXTURE_SWIZZLE_B          = 0x8E44
	TEXTURE_SWIZZLE_A          = 0x8E45
	TEXTURE_MAX_ANISOTROPY     = 0x84FE
	TEXTURE_SRGB_DECODE_EXT    = 0x8A48
	DECODE_EXT                 = 0x8A49
	SKIP_DECODE_EXT            = 0x8A4A
	NEAREST                    = 0x2600
	LINEAR                     = 0x2601
	NEAREST_MIPMAP_NEAREST     = 0x2700
	LINEAR_MIPMAP_NEAREST      = 0x2701
	NEAREST_MIPMAP_LINEAR      = 0x2702
	LINEAR_MIPMAP_LINEAR       = 0x2703
	REPEAT                     = 0x2901
	CLAMP_TO_EDGE              = 0x812F
	CLAMP_TO_BORDER            = 0x812D
	MIRRORED_REPEAT            = 0x8370
	RED                        = 0x1903
	GREEN                      = 0x1904
	BLUE                       = 0x1905
	ALPHA                      = 0x1906
	ONE                        = 1
	ZERO                       = 0
	UNPACK_ALIGNMENT           = 0x0CF5
	PACK_ALIGNMENT             = 0x0D05
	TEXTURE_CUBE_MAP_SEAMLESS  = 0x884F
	TEXTURE_BINDING_2D         = 0x8069
	FRAMEBUFFER_BINDING        = 0x8CA6
	CURRENT_PROGRAM            = 0x8B8D
	VERTEX_ARRAY_BINDING       = 0x85B5
	ARRAY_BUFFER_BINDING       = 0x8894
	UNIFORM_BUFFER_OFFSET_ALIG = 0x8A34

	// Pixel formats.
	RG              = 0x8227
	RGB             = 0x1907
	RGBA            = 0x1908
	RED_INTEGER     = 0x8D94
	RGBA_INTEGER    = 0x8D99
	DEPTH_COMPONENT = 0x1902
	DEPTH_STENCIL   = 0x84F9

	// Internal formats.
	R8                 = 0x8229
	RG8                = 0x822B
	RGB8               = 0x8051
	RGBA8              = 0x8058
	RGBA4              = 0x8056
	RGB565             = 0x8D62
	SRGB8              = 0x8C41
	SRGB8_ALPHA8       = 0x8C43
	R16F               = 0x822D
	RG16F              = 0x822F
	RGB16F             = 0x881B
	RGBA16F            = 0x881A
	R32F               = 0x822E
	RG32F              = 0x8230
	RGB32F             = 0x8815
	RGBA32F            = 0x8814
	R11F_G11F_B10F     = 0x8C3A
	RGB9_E5            = 0x8C3D
	RGB10_A2           = 0x8059
	R32UI              = 0x8236
	DEPTH_COMPONENT16  = 0x81A5
	DEPTH_COMPONENT24  = 0x81A6
	DEPTH_COMPONENT32F = 0x8CAC
	DEPTH24_STENCIL8   = 0x88F0

	// Compressed formats.
	COMPRESSED_RGBA_S3TC_DXT1_EXT            = 0x83F1
	COMPRESSED_RGBA_S3TC_DXT3_EXT            = 0x83F2
	COMPRESSED_RGBA_S3TC_DXT5_EXT            = 0x83F3
	COMPRESSED_SRGB_ALPHA_S3TC_DXT1_EXT      = 0x8C4D
	COMPRESSED_SRGB_ALPHA_S3TC_DXT3_EXT      = 0x8C4E
	COMPRESSED_SRGB_ALPHA_S3TC_DXT5_EXT      = 0x8C4F
	COMPRESSED_RED_RGTC1                     = 0x8DBB
	COMPRESSED_RG_RGTC2                      = 0x8DBD
	COMPRESSED_RGBA_BPTC_UNORM               = 0x8E8C
	COMPRESSED_SRGB_ALPHA_BPTC_UNORM         = 0x8E8D
	COMPRESSED_RGB_BPTC_SIGNED_FLOAT         = 0x8E8E
	COMPRESSED_RGB_BPTC_UNSIGNED_FLOAT       = 0x8E8F
	COMPRESSED_R11_EAC                       = 0x9270
	COMPRESSED_SIGNED_R11_EAC                = 0x9271
	COMPRESSED_RG11_EAC                      = 0x9272
	COMPRESSED_SIGNED_RG11_EAC               = 0x9273
	COMPRESSED_RGB8_ETC2                     = 0x9274
	COMPRESSED_SRGB8_ETC2                    = 0x9275
	COMPRESSED_RGB8_PUNCHTHROUGH_ALPHA1_ETC2 = 0x9276
	COMPRESSED_RGBA8_ETC2_EAC                = 0x9278
	COMPRESSED_SRGB8_ALPHA8_ETC2_EAC         = 0x9279
	COMPRESSED_LUMINANCE_LATC1_EXT           = 0x8C70
	COMPRESSED_LUMINANCE_ALPHA_LATC2_EXT     = 0x8C72

	// Framebuffers.
	FRAMEBUFFER                   = 0x8D40
	READ_FRAMEBUFFER              = 0x8CA8
	DRAW_FRAMEBUFFER              = 0x8CA9
	RENDERBUFFER                  = 0x8D41
	COLOR_ATTACHMENT0             = 0x8CE0
	COLOR_ATTACHMENT1             = 0x8CE1
	COLOR_ATTACHMENT2             = 0x8CE2
	COLOR_ATTACHMENT3             = 0x8CE3
	DEPTH_ATTACHMENT              = 0x8D00
	STENCIL_ATTACHMENT            = 0x8D20
	DEPTH_STENCIL_ATTACHMENT      = 0x821A
	FRAMEBUFFER_COMPLETE          = 0x8CD5
	FRAMEBUFFER_INCOMPLETE_ATTACH = 0x8CD6
	FRAMEBUFFER_UNSUPPORTED       = 0x8CDD
	COLOR_BUFFER_BIT              = 0x00004000
	DEPTH_BUFFER_BIT              = 0x00000100
	STENCIL_BUFFER_BIT            = 0x00000400
	COLOR                         = 0x1800
	DEPTH                         = 0x1801
	BACK                          = 0x0405
	FRONT                         = 0x0404
	FRONT_AND_BACK                = 0x0408

	// Shaders.
	VERTEX_SHADER                   = 0x8B31
	FRAGMENT_SHADER                 = 0x8B30
	COMPILE_STATUS                  = 0x8B81
	LINK_STATUS                     = 0x8B82
	INFO_LOG_LENGTH                 = 0x8B84
	PROGRAM_BINARY_LENGTH           = 0x8741
	PROGRAM_BINARY_RETRIEVABLE_HINT = 0x8257
	COMPLETION_STATUS_KHR           = 0x91B1
	INTERLEAVED_ATTRIBS             = 0x8C8C
	SEPARATE_ATTRIBS                = 0x8C8D
	INVALID_INDEX                   = 0xFFFFFFFF
	RASTERIZER_DISCARD              = 0x8C89

	// Capabilities.
	DEPTH_TEST               = 0x0B71
	CULL_FACE                = 0x0B44
	BLEND                    = 0x0BE2
	SCISSOR_TEST             = 0x0C11
	STENCIL_TEST             = 0x0B90
	POLYGON_OFFSET_FILL      = 0x8037
	MULTISAMPLE              = 0x809D
	FRAMEBUFFER_SRGB         = 0x8DB9
	PROGRAM_POINT_SIZE       = 0x8642
	SAMPLE_ALPHA_TO_COVERAGE = 0x809E

	// Depth and blend.
	NEVER                 = 0x0200
	LESS                  = 0x0201
	EQUAL                 = 0x0202
	LEQUAL                = 0x0203
	GREATER               = 0x0204
	GEQUAL                = 0x0206
	ALWAYS                = 0x0207
	CW                    = 0x0900
	CCW                   = 0x0901
	FUNC_ADD              = 0x8006
	FUNC_SUBTRACT         = 0x800A
	FUNC_REVERSE_SUBTRACT = 0x800B
	SRC_COLOR             = 0x0300
	ONE_MINUS_SRC_COLOR   = 0x0301
	SRC_ALPHA             = 0x0302
	ONE_MINUS_SRC_ALPHA   = 0x0303
	DST_ALPHA             = 0x0304
	ONE_MINUS_DST_ALPHA   = 0x0305
	DST_COLOR             = 0x0306
	ONE_MINUS_DST_COLOR   = 0x0307
)

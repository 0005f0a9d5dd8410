package opengl

import (
	"fmt"

	"gles3render/internal/glapi"
	"gles3render/internal/shader"
	"gles3render/internal/storage"
)

// Uniform block binding points of the scene program.
const (
	bindingSceneData uint32 = iota
	bindingMaterial
	bindingRadiance
	bindingDirectional
	bindingOmni
	bindingSpot
	bindingReflections
)

// std140 sizes of the LightData and ReflectionData structs.
const (
	lightDataSize      = 6*16 + 64
	reflectionDataSize = 5*16 + 64
	defaultUBOSize     = 16384
)

// Scene program uniforms, by Loc index.
const (
	sceneWorldTransform = iota
	sceneOmniIndices
	sceneOmniCount
	sceneSpotIndices
	sceneSpotCount
	sceneReflectionIndices
	sceneReflectionCount
	sceneLightmapEnergy
	sceneLightmapLayer
	sceneLightmapUVRect
	sceneLightmapCaptures
	sceneLightmapCaptureSky
	sceneGIProbeXform1
	sceneGIProbeBounds1
	sceneGIProbeCellSize1
	sceneGIProbeMultiplier1
	sceneGIProbeBias1
	sceneGIProbeNormalBias1
	sceneGIProbeBlendAmbient1
	sceneGIProbeXform2
	sceneGIProbeBounds2
	sceneGIProbeCellSize2
	sceneGIProbeMultiplier2
	sceneGIProbeBias2
	sceneGIProbeNormalBias2
	sceneGIProbeBlendAmbient2
	sceneGIProbe2Enabled
)

var sceneUniformNames = []string{
	"world_transform",
	"omni_light_indices", "omni_light_count",
	"spot_light_indices", "spot_light_count",
	"reflection_indices", "reflection_count",
	"lightmap_energy", "lightmap_layer", "lightmap_uv_rect",
	"lightmap_captures", "lightmap_capture_sky",
	"gi_probe_xform1", "gi_probe_bounds1", "gi_probe_cell_size1", "gi_probe_multiplier1",
	"gi_probe_bias1", "gi_probe_normal_bias1", "gi_probe_blend_ambient1",
	"gi_probe_xform2", "gi_probe_bounds2", "gi_probe_cell_size2", "gi_probe_multiplier2",
	"gi_probe_bias2", "gi_probe_normal_bias2", "gi_probe_blend_ambient2",
	"gi_probe2_enabled",
}

// sceneLimits are the array sizes compiled into the scene program.
type sceneLimits struct {
	// Lights is the omni and spot light array length.
	Lights int
	// Reflections is the reflection probe array length.
	Reflections int
	// Forward is the per-object light and probe index count, a multiple of 4.
	Forward int
}

func newSceneLimits(cfg storage.Config, feat *glapi.Features) sceneLimits {
	ubo := defaultUBOSize
	if feat != nil && feat.MaxUniformBlock > 0 {
		ubo = feat.MaxUniformBlock
	}
	return sceneLimits{
		Lights:      max(1, min(cfg.MaxRenderableLights, ubo/lightDataSize)),
		Reflections: max(1, min(cfg.MaxRenderableReflections, ubo/reflectionDataSize)),
		Forward:     (max(cfg.MaxLightsPerObject, 4) + 3) / 4 * 4,
	}
}

// SceneSource builds the forward scene program template sized for cfg and
// the uniform block limit of the context.
func SceneSource(cfg storage.Config, feat *glapi.Features) *shader.Source {
	lim := newSceneLimits(cfg, feat)
	defs := fmt.Sprintf("#define MAX_LIGHT_DATA_STRUCTS %d\n#define MAX_REFLECTION_DATA_STRUCTS %d\n#define MAX_FORWARD_LIGHTS %d\n#define SKELETON_TEXTURE_WIDTH %d\n",
		lim.Lights, lim.Reflections, lim.Forward, storage.SkeletonTextureWidth)
	src := shader.NewSceneSource("scene",
		defs+sceneCommon+sceneVertexHead+sceneLighting+sceneVertexMain,
		defs+sceneCommon+sceneFragmentHead+sceneLighting+sceneFragmentMain)
	src.Uniforms = sceneUniformNames
	src.TextureUnits = map[string]int{
		"skeleton_texture":   storage.UnitSkeleton,
		"shadow_atlas":       storage.UnitShadowAtlas,
		"directional_shadow": storage.UnitDirShadow,
		"reflection_atlas":   storage.UnitReflection,
		"radiance_map":       storage.UnitRadiance,
		"depth_buffer":       storage.UnitDepth,
		"screen_texture":     storage.UnitScreen,
		"gi_probe1":          storage.UnitGIProbe1,
		"gi_probe2":          storage.UnitGIProbe2,
		"lightmap":           storage.UnitLightmap,
		"lightmap_array":     storage.UnitLightmap,
	}
	src.UBOBindings = map[string]uint32{
		"SceneData":            bindingSceneData,
		"Radiance":             bindingRadiance,
		"DirectionalLightData": bindingDirectional,
		"OmniLightData":        bindingOmni,
		"SpotLightData":        bindingSpot,
		"ReflectionProbeData":  bindingReflections,
	}
	src.MaterialBinding = bindingMaterial
	return src
}

// ── Shaders ─────────────────────────────────────────────────────────────────

const sceneCommon = `
#define M_PI 3.14159265359

layout(std140) uniform SceneData {
	highp mat4 projection_matrix;
	highp mat4 inv_projection_matrix;
	highp mat4 camera_inverse_matrix;
	highp mat4 camera_matrix;

	mediump vec4 ambient_light_color;
	mediump vec4 bg_color;
	mediump vec4 fog_color_enabled;
	mediump vec4 fog_sun_color_amount;

	mediump float ambient_energy;
	mediump float bg_energy;
	mediump float z_offset;
	mediump float z_slope_scale;
	highp float shadow_dual_paraboloid_render_zfar;
	highp float shadow_dual_paraboloid_render_side;

	highp vec2 viewport_size;
	highp vec2 screen_pixel_size;
	highp vec2 shadow_atlas_pixel_size;
	highp vec2 directional_shadow_pixel_size;

	highp float time;
	highp float z_far;
	mediump float reflection_multiplier;
	mediump float subsurface_scatter_width;
	mediump float ambient_occlusion_affect_light;
	mediump float ambient_occlusion_affect_ao_channel;
	mediump float opaque_prepass_threshold;
	mediump float reflection_max_lod;

	bool fog_depth_enabled;
	highp float fog_depth_begin;
	highp float fog_depth_end;
	mediump float fog_depth_curve;
	bool fog_transmit_enabled;
	mediump float fog_transmit_curve;
	bool fog_height_enabled;
	highp float fog_height_min;
	highp float fog_height_max;
	mediump float fog_height_curve;
	int view_index;
};

layout(std140) uniform Radiance {
	highp mat4 radiance_inverse_xform;
	mediump float radiance_ambient_contribution;
	mediump float radiance_max_lod;
};

layout(std140) uniform DirectionalLightData {
	highp vec4 light_pos_inv_radius;
	mediump vec4 light_direction_attenuation;
	mediump vec4 light_color_energy;
	mediump vec4 light_params; // cone attenuation, angle, specular, shadow enabled
	mediump vec4 light_clamp;
	mediump vec4 shadow_color_contact;
	highp mat4 shadow_matrix1;
	highp mat4 shadow_matrix2;
	highp mat4 shadow_matrix3;
	highp mat4 shadow_matrix4;
	mediump vec4 shadow_split_offsets;
};

struct LightData {
	highp vec4 light_pos_inv_radius;
	mediump vec4 light_direction_attenuation;
	mediump vec4 light_color_energy;
	mediump vec4 light_params;
	mediump vec4 light_clamp;
	mediump vec4 shadow_color_contact;
	highp mat4 shadow_matrix;
};

layout(std140) uniform OmniLightData {
	LightData omni_lights[MAX_LIGHT_DATA_STRUCTS];
};

layout(std140) uniform SpotLightData {
	LightData spot_lights[MAX_LIGHT_DATA_STRUCTS];
};

struct ReflectionData {
	mediump vec4 box_extents;
	mediump vec4 box_offset;
	mediump vec4 params; // intensity, unused, interior, box projection
	mediump vec4 ambient; // color, energy
	mediump vec4 atlas_clamp;
	highp mat4 local_matrix;
};

layout(std140) uniform ReflectionProbeData {
	ReflectionData reflections[MAX_REFLECTION_DATA_STRUCTS];
};

uniform highp mat4 world_transform;

#ifdef USE_FORWARD_LIGHTING
uniform mediump vec4 omni_light_indices[MAX_FORWARD_LIGHTS / 4];
uniform int omni_light_count;
uniform mediump vec4 spot_light_indices[MAX_FORWARD_LIGHTS / 4];
uniform int spot_light_count;
uniform mediump vec4 reflection_indices[MAX_FORWARD_LIGHTS / 4];
uniform int reflection_count;
#endif

uniform highp sampler2DShadow shadow_atlas;
uniform highp sampler2DShadow directional_shadow;

/* MATERIAL UNIFORMS */
`

const sceneVertexHead = `
layout(location = 0) in highp vec4 vertex_attrib;
#ifdef ENABLE_OCTAHEDRAL_COMPRESSION
layout(location = 2) in vec4 normal_tangent_attrib;
#else
layout(location = 1) in vec3 normal_attrib;
layout(location = 2) in vec4 tangent_attrib;
#endif
layout(location = 3) in vec4 color_attrib;
layout(location = 4) in vec2 uv_attrib;
layout(location = 5) in vec2 uv2_attrib;

#ifdef USE_SKELETON
layout(location = 6) in uvec4 bone_indices;
layout(location = 7) in highp vec4 bone_weights;
uniform highp sampler2D skeleton_texture;
#endif

#ifdef USE_INSTANCING
layout(location = 8) in highp vec4 instance_xform0;
layout(location = 9) in highp vec4 instance_xform1;
layout(location = 10) in highp vec4 instance_xform2;
layout(location = 11) in lowp vec4 instance_color;
#ifdef ENABLE_INSTANCE_CUSTOM
layout(location = 12) in highp vec4 instance_custom_data;
#endif
#endif

out highp vec3 vertex_interp;
out vec3 normal_interp;
out vec3 tangent_interp;
out vec3 binormal_interp;
out vec4 color_interp;
out vec2 uv_interp;
out vec2 uv2_interp;

#ifdef RENDER_DEPTH_DUAL_PARABOLOID
out highp float dp_clip;
#endif

#ifdef USE_VERTEX_LIGHTING
out vec4 diffuse_light_interp;
out vec4 specular_light_interp;
#endif

/* VERTEX GLOBALS */

#ifdef ENABLE_OCTAHEDRAL_COMPRESSION
vec3 oct_to_vec3(vec2 e) {
	vec3 v = vec3(e.xy, 1.0 - abs(e.x) - abs(e.y));
	float t = max(-v.z, 0.0);
	v.xy += t * -sign(v.xy);
	return normalize(v);
}
#endif

#ifdef USE_SKELETON
highp mat4 bone_transform(uint bone) {
	int base = int(bone) * 3;
	highp vec4 r0 = texelFetch(skeleton_texture, ivec2(base % SKELETON_TEXTURE_WIDTH, base / SKELETON_TEXTURE_WIDTH), 0);
	highp vec4 r1 = texelFetch(skeleton_texture, ivec2((base + 1) % SKELETON_TEXTURE_WIDTH, (base + 1) / SKELETON_TEXTURE_WIDTH), 0);
	highp vec4 r2 = texelFetch(skeleton_texture, ivec2((base + 2) % SKELETON_TEXTURE_WIDTH, (base + 2) / SKELETON_TEXTURE_WIDTH), 0);
	return transpose(mat4(r0, r1, r2, vec4(0.0, 0.0, 0.0, 1.0)));
}
#endif
`

const sceneFragmentHead = `
in highp vec3 vertex_interp;
in vec3 normal_interp;
in vec3 tangent_interp;
in vec3 binormal_interp;
in vec4 color_interp;
in vec2 uv_interp;
in vec2 uv2_interp;

#ifdef RENDER_DEPTH_DUAL_PARABOLOID
in highp float dp_clip;
#endif

#ifdef USE_VERTEX_LIGHTING
in vec4 diffuse_light_interp;
in vec4 specular_light_interp;
#endif

uniform highp sampler2D depth_buffer;
uniform highp sampler2D screen_texture;
uniform mediump sampler2D reflection_atlas;

#ifdef USE_RADIANCE_MAP
uniform samplerCube radiance_map;
#endif

#ifdef USE_LIGHTMAP
#ifdef USE_LIGHTMAP_LAYERED
uniform mediump sampler2DArray lightmap_array;
uniform int lightmap_layer;
#else
uniform mediump sampler2D lightmap;
#endif
uniform mediump float lightmap_energy;
uniform highp vec4 lightmap_uv_rect;
#endif

#ifdef USE_LIGHTMAP_CAPTURE
uniform mediump vec4 lightmap_captures[6];
uniform bool lightmap_capture_sky;
#endif

#ifdef USE_GI_PROBES
uniform mediump sampler3D gi_probe1;
uniform highp mat4 gi_probe_xform1;
uniform highp vec3 gi_probe_bounds1;
uniform highp vec3 gi_probe_cell_size1;
uniform highp float gi_probe_multiplier1;
uniform highp float gi_probe_bias1;
uniform highp float gi_probe_normal_bias1;
uniform bool gi_probe_blend_ambient1;

uniform mediump sampler3D gi_probe2;
uniform highp mat4 gi_probe_xform2;
uniform highp vec3 gi_probe_bounds2;
uniform highp vec3 gi_probe_cell_size2;
uniform highp float gi_probe_multiplier2;
uniform highp float gi_probe_bias2;
uniform highp float gi_probe_normal_bias2;
uniform bool gi_probe2_enabled;
uniform bool gi_probe_blend_ambient2;
#endif

#if defined(RENDER_DEPTH)
#elif defined(USE_MULTIPLE_RENDER_TARGETS)
layout(location = 0) out vec4 diffuse_buffer;
layout(location = 1) out vec4 specular_buffer;
layout(location = 2) out vec4 normal_mr_buffer;
layout(location = 3) out float sss_buffer;
#else
layout(location = 0) out vec4 frag_color;
#endif

#define SCREEN_TEXTURE screen_texture
#define DEPTH_TEXTURE depth_buffer

/* FRAGMENT GLOBALS */
`

const sceneLighting = `
float attenuate(float normalized_distance, float distance, float curve) {
#ifdef USE_PHYSICAL_LIGHT_ATTENUATION
	float falloff = clamp(1.0 - pow(normalized_distance, 4.0), 0.0, 1.0);
	return falloff * falloff / max(distance * distance, 0.0001);
#else
	return pow(max(1.0 - normalized_distance, 0.0), curve);
#endif
}

float D_GGX(float cos_theta_m, float alpha) {
	float alpha2 = alpha * alpha;
	float d = 1.0 + (alpha2 - 1.0) * cos_theta_m * cos_theta_m;
	return alpha2 / (M_PI * d * d);
}

float V_GGX(float NdotL, float NdotV, float alpha) {
	return 0.5 / mix(2.0 * NdotL * NdotV, NdotL + NdotV, alpha);
}

void light_compute(vec3 N, vec3 L, vec3 V, vec3 light_color, vec3 attenuation, vec3 diffuse_color, vec3 transmission, vec3 f0, float specular_blob_intensity, float roughness, float metallic, float rim, float rim_tint, float clearcoat, float clearcoat_gloss, inout vec3 diffuse_light, inout vec3 specular_light, inout float alpha) {
#if defined(USE_LIGHT_SHADER_CODE)
	vec3 NORMAL = N;
	vec3 LIGHT = L;
	vec3 VIEW = V;
	vec3 LIGHT_COLOR = light_color;
	vec3 ATTENUATION = attenuation;
	vec3 ALBEDO = diffuse_color;
	vec3 TRANSMISSION = transmission;
	float ROUGHNESS = roughness;
	float METALLIC = metallic;
	float SPECULAR_AMOUNT = specular_blob_intensity;
	float TIME = time;
	vec3 DIFFUSE_LIGHT = diffuse_light;
	vec3 SPECULAR_LIGHT = specular_light;
	float ALPHA = alpha;
	{
/* LIGHT CODE */
	}
	diffuse_light = DIFFUSE_LIGHT;
	specular_light = SPECULAR_LIGHT;
	alpha = ALPHA;
#else
	float NdotL = dot(N, L);
	float cNdotL = max(NdotL, 0.0);
	float NdotV = dot(N, V);
	float cNdotV = max(NdotV, 0.0);

	float diffuse_brdf_NL;
#if defined(RENDER_MODE_DIFFUSE_LAMBERT_WRAP)
	diffuse_brdf_NL = max(0.0, (NdotL + roughness) / ((1.0 + roughness) * (1.0 + roughness)));
#elif defined(RENDER_MODE_DIFFUSE_TOON)
	diffuse_brdf_NL = smoothstep(-roughness, max(roughness, 0.01), NdotL);
#else
	diffuse_brdf_NL = cNdotL * (1.0 / M_PI);
#endif
	diffuse_light += light_color * diffuse_color * diffuse_brdf_NL * attenuation;
	diffuse_light += light_color * transmission * max(-NdotL, 0.0) * (1.0 / M_PI) * attenuation;

	if (rim > 0.0) {
		float rim_light = pow(max(0.0, 1.0 - cNdotV), max(0.0, (1.0 - roughness) * 16.0));
		diffuse_light += rim_light * rim * mix(vec3(1.0), diffuse_color, rim_tint) * light_color;
	}

	if (roughness > 0.0 && cNdotL > 0.0) {
		vec3 H = normalize(V + L);
		float cNdotH = max(dot(N, H), 0.0);
		float cLdotH = max(dot(L, H), 0.0);
		float cLdotH5 = pow(1.0 - cLdotH, 5.0);
#if defined(RENDER_MODE_SPECULAR_DISABLED)
#elif defined(RENDER_MODE_SPECULAR_TOON)
		vec3 R = normalize(-reflect(L, N));
		float mid = 1.0 - roughness;
		mid *= mid;
		float intensity = smoothstep(mid - roughness * 0.5, mid + roughness * 0.5, dot(R, V)) * mid;
		specular_light += light_color * intensity * specular_blob_intensity * attenuation;
#else
		float alpha_ggx = roughness * roughness;
		float D = D_GGX(cNdotH, alpha_ggx);
		float G = V_GGX(cNdotL, cNdotV, alpha_ggx);
		vec3 F = f0 + (1.0 - f0) * cLdotH5;
		specular_light += cNdotL * D * G * F * light_color * specular_blob_intensity * attenuation;
#endif
		if (clearcoat > 0.0) {
			float Dr = D_GGX(cNdotH, mix(0.1, 0.001, clearcoat_gloss));
			float Fr = mix(0.04, 1.0, cLdotH5);
			float Gr = V_GGX(cNdotL, cNdotV, 0.25);
			specular_light += 0.25 * clearcoat * Gr * Fr * Dr * cNdotL * light_color * specular_blob_intensity * attenuation;
		}
	}
#endif
}

#ifdef FRAGMENT_SHADER
float sample_shadow(highp sampler2DShadow shadow, highp vec2 pixel_size, highp vec2 pos, highp float depth) {
#if defined(SHADOW_MODE_PCF_13)
	float avg = texture(shadow, vec3(pos, depth));
	avg += texture(shadow, vec3(pos + vec2(pixel_size.x, 0.0), depth));
	avg += texture(shadow, vec3(pos + vec2(-pixel_size.x, 0.0), depth));
	avg += texture(shadow, vec3(pos + vec2(0.0, pixel_size.y), depth));
	avg += texture(shadow, vec3(pos + vec2(0.0, -pixel_size.y), depth));
	avg += texture(shadow, vec3(pos + vec2(pixel_size.x, pixel_size.y), depth));
	avg += texture(shadow, vec3(pos + vec2(-pixel_size.x, pixel_size.y), depth));
	avg += texture(shadow, vec3(pos + vec2(pixel_size.x, -pixel_size.y), depth));
	avg += texture(shadow, vec3(pos + vec2(-pixel_size.x, -pixel_size.y), depth));
	avg += texture(shadow, vec3(pos + vec2(pixel_size.x * 2.0, 0.0), depth));
	avg += texture(shadow, vec3(pos + vec2(-pixel_size.x * 2.0, 0.0), depth));
	avg += texture(shadow, vec3(pos + vec2(0.0, pixel_size.y * 2.0), depth));
	avg += texture(shadow, vec3(pos + vec2(0.0, -pixel_size.y * 2.0), depth));
	return avg * (1.0 / 13.0);
#elif defined(SHADOW_MODE_PCF_5)
	float avg = texture(shadow, vec3(pos, depth));
	avg += texture(shadow, vec3(pos + vec2(pixel_size.x, 0.0), depth));
	avg += texture(shadow, vec3(pos + vec2(-pixel_size.x, 0.0), depth));
	avg += texture(shadow, vec3(pos + vec2(0.0, pixel_size.y), depth));
	avg += texture(shadow, vec3(pos + vec2(0.0, -pixel_size.y), depth));
	return avg * (1.0 / 5.0);
#else
	return texture(shadow, vec3(pos, depth));
#endif
}

#ifdef USE_CONTACT_SHADOWS
float contact_shadow_compute(vec3 pos, vec3 dir, float max_distance) {
	if (abs(dir.z) > 0.99) {
		return 1.0;
	}
	vec4 source = projection_matrix * vec4(pos, 1.0);
	vec4 dest = projection_matrix * vec4(pos + dir * max_distance, 1.0);
	vec2 from_screen = (source.xy / source.w) * 0.5 + 0.5;
	vec2 to_screen = (dest.xy / dest.w) * 0.5 + 0.5;
	vec2 screen_rel = to_screen - from_screen;
	if (length(screen_rel) < 0.00001) {
		return 1.0;
	}
	vec2 pixel_incr = normalize(screen_rel) * screen_pixel_size;
	float steps = min(2000.0, length(screen_rel) / length(pixel_incr));
	vec4 incr = (dest - source) / steps;
	float ratio = 0.0;
	float ratio_incr = 1.0 / steps;
	while (steps > 0.0) {
		source += incr * 2.0;
		vec3 uv_depth = (source.xyz / source.w) * 0.5 + 0.5;
		if (any(lessThan(uv_depth.xy, vec2(0.0))) || any(greaterThan(uv_depth.xy, vec2(1.0)))) {
			break;
		}
		if (texture(depth_buffer, uv_depth.xy).r < uv_depth.z) {
			return min(pow(ratio, 4.0), 1.0);
		}
		ratio += ratio_incr;
		steps -= 1.0;
	}
	return 1.0;
}
#endif
#endif

#ifdef USE_FORWARD_LIGHTING
void light_process_omni(int idx, vec3 vertex, vec3 eye_vec, vec3 normal, vec3 albedo, vec3 transmission, vec3 f0, float roughness, float metallic, float rim, float rim_tint, float clearcoat, float clearcoat_gloss, inout vec3 diffuse_light, inout vec3 specular_light, inout float alpha) {
	vec3 light_rel_vec = omni_lights[idx].light_pos_inv_radius.xyz - vertex;
	float light_length = length(light_rel_vec);
	float normalized_distance = light_length * omni_lights[idx].light_pos_inv_radius.w;
	vec3 light_attenuation = vec3(attenuate(normalized_distance, light_length, omni_lights[idx].light_direction_attenuation.w));

#if defined(USE_SHADOW) && defined(FRAGMENT_SHADER)
	if (omni_lights[idx].light_params.w > 0.5) {
		highp vec3 splane = (omni_lights[idx].shadow_matrix * vec4(vertex, 1.0)).xyz;
		float shadow_len = length(splane);
		splane = normalize(splane);
		vec4 clamp_rect = omni_lights[idx].light_clamp;
		if (splane.z >= 0.0) {
			splane.z += 1.0;
			if (omni_lights[idx].light_params.y > 0.5) {
				clamp_rect.x += clamp_rect.z;
			} else {
				clamp_rect.y += clamp_rect.w;
			}
		} else {
			splane.z = 1.0 - splane.z;
		}
		splane.xy /= splane.z;
		splane.xy = splane.xy * 0.5 + 0.5;
		splane.z = shadow_len * omni_lights[idx].light_pos_inv_radius.w;
		splane.xy = clamp_rect.xy + splane.xy * clamp_rect.zw;
		float shadow = sample_shadow(shadow_atlas, shadow_atlas_pixel_size, splane.xy, splane.z);
#ifdef USE_CONTACT_SHADOWS
		if (shadow > 0.01 && omni_lights[idx].shadow_color_contact.a > 0.0) {
			shadow = min(shadow, contact_shadow_compute(vertex, normalize(light_rel_vec), min(light_length, omni_lights[idx].shadow_color_contact.a)));
		}
#endif
		light_attenuation *= mix(omni_lights[idx].shadow_color_contact.rgb, vec3(1.0), shadow);
	}
#endif

	light_compute(normal, normalize(light_rel_vec), eye_vec, omni_lights[idx].light_color_energy.rgb, light_attenuation, albedo, transmission, f0, omni_lights[idx].light_params.z, roughness, metallic, rim, rim_tint, clearcoat, clearcoat_gloss, diffuse_light, specular_light, alpha);
}

void light_process_spot(int idx, vec3 vertex, vec3 eye_vec, vec3 normal, vec3 albedo, vec3 transmission, vec3 f0, float roughness, float metallic, float rim, float rim_tint, float clearcoat, float clearcoat_gloss, inout vec3 diffuse_light, inout vec3 specular_light, inout float alpha) {
	vec3 light_rel_vec = spot_lights[idx].light_pos_inv_radius.xyz - vertex;
	float light_length = length(light_rel_vec);
	float normalized_distance = light_length * spot_lights[idx].light_pos_inv_radius.w;
	float spot_attenuation = attenuate(normalized_distance, light_length, spot_lights[idx].light_direction_attenuation.w);
	vec3 spot_dir = spot_lights[idx].light_direction_attenuation.xyz;
	float spot_cutoff = spot_lights[idx].light_params.y;
	float scos = max(dot(-normalize(light_rel_vec), spot_dir), spot_cutoff);
	float spot_rim = (1.0 - scos) / (1.0 - spot_cutoff);
	spot_attenuation *= 1.0 - pow(max(spot_rim, 0.001), spot_lights[idx].light_params.x);
	vec3 light_attenuation = vec3(spot_attenuation);

#if defined(USE_SHADOW) && defined(FRAGMENT_SHADER)
	if (spot_lights[idx].light_params.w > 0.5) {
		highp vec4 splane = spot_lights[idx].shadow_matrix * vec4(vertex, 1.0);
		splane.xyz /= splane.w;
		float shadow = sample_shadow(shadow_atlas, shadow_atlas_pixel_size, splane.xy, splane.z);
#ifdef USE_CONTACT_SHADOWS
		if (shadow > 0.01 && spot_lights[idx].shadow_color_contact.a > 0.0) {
			shadow = min(shadow, contact_shadow_compute(vertex, normalize(light_rel_vec), min(light_length, spot_lights[idx].shadow_color_contact.a)));
		}
#endif
		light_attenuation *= mix(spot_lights[idx].shadow_color_contact.rgb, vec3(1.0), shadow);
	}
#endif

	light_compute(normal, normalize(light_rel_vec), eye_vec, spot_lights[idx].light_color_energy.rgb, light_attenuation, albedo, transmission, f0, spot_lights[idx].light_params.z, roughness, metallic, rim, rim_tint, clearcoat, clearcoat_gloss, diffuse_light, specular_light, alpha);
}

#ifdef FRAGMENT_SHADER
void reflection_process(int idx, vec3 vertex, vec3 normal, float roughness, vec3 skybox, inout highp vec4 reflection_accum, inout highp vec4 ambient_accum) {
	vec3 local_pos = (reflections[idx].local_matrix * vec4(vertex, 1.0)).xyz;
	vec3 box_extents = reflections[idx].box_extents.xyz;
	if (any(greaterThan(abs(local_pos), box_extents))) {
		return;
	}
	vec3 inner_pos = abs(local_pos / box_extents);
	float blend = max(inner_pos.x, max(inner_pos.y, inner_pos.z));
	blend = mix(length(inner_pos), blend, blend);
	blend *= blend;
	blend = max(0.0, 1.0 - blend);

	if (reflections[idx].params.x > 0.0) {
		vec3 ref_vec = normalize(reflect(vertex, normal));
		vec3 local_ref_vec = (reflections[idx].local_matrix * vec4(ref_vec, 0.0)).xyz;
		if (reflections[idx].params.w > 0.5) {
			vec3 nrdir = normalize(local_ref_vec);
			vec3 rbmax = (box_extents - local_pos) / nrdir;
			vec3 rbmin = (-box_extents - local_pos) / nrdir;
			vec3 rbminmax = mix(rbmin, rbmax, greaterThan(nrdir, vec3(0.0)));
			float fa = min(min(rbminmax.x, rbminmax.y), rbminmax.z);
			vec3 posonbox = local_pos + nrdir * fa;
			local_ref_vec = posonbox - reflections[idx].box_offset.xyz;
		}
		vec4 clamp_rect = reflections[idx].atlas_clamp;
		vec3 norm = normalize(local_ref_vec);
		if (norm.z >= 0.0) {
			norm.z += 1.0;
			clamp_rect.y += clamp_rect.w;
		} else {
			norm.z = 1.0 - norm.z;
		}
		vec2 atlas_uv = norm.xy / norm.z * 0.5 + 0.5;
		atlas_uv = clamp_rect.xy + atlas_uv * clamp_rect.zw;
		vec3 radiance = textureLod(reflection_atlas, atlas_uv, roughness * reflection_max_lod).rgb;
		if (reflections[idx].params.z < 0.5) {
			radiance = mix(skybox, radiance, blend);
		}
		reflection_accum.rgb += radiance * blend * reflections[idx].params.x;
		reflection_accum.a += blend;
	}

	if (reflections[idx].params.z > 0.5) {
		ambient_accum.rgb += reflections[idx].ambient.rgb * reflections[idx].ambient.a * blend;
		ambient_accum.a += blend;
	}
}
#endif
#endif

#if defined(USE_GI_PROBES) && defined(FRAGMENT_SHADER)
vec3 voxel_cone_trace(mediump sampler3D probe, vec3 cell_size, vec3 pos, vec3 direction, float tan_half_angle, float max_distance, float p_bias) {
	float dist = p_bias;
	vec4 color = vec4(0.0);
	while (dist < max_distance && color.a < 0.95) {
		float diameter = max(1.0, 2.0 * tan_half_angle * dist);
		vec3 uvw_pos = (pos + dist * direction) * cell_size;
		float half_diameter = diameter * 0.5;
		if (any(greaterThan(abs(uvw_pos - 0.5), vec3(0.5 + half_diameter * cell_size)))) {
			break;
		}
		vec4 scolor = textureLod(probe, uvw_pos, log2(diameter));
		color += (1.0 - color.a) * scolor;
		dist += half_diameter;
	}
	return color.rgb;
}

void gi_probe_compute(mediump sampler3D probe, mat4 probe_xform, vec3 bounds, vec3 cell_size, vec3 pos, vec3 ambient, vec3 environment, bool blend_ambient, float multiplier, mat3 normal_mtx, vec3 ref_vec, float roughness, float p_bias, float p_normal_bias, inout vec4 out_spec, inout vec4 out_diff) {
	vec3 probe_pos = (probe_xform * vec4(pos, 1.0)).xyz;
	vec3 ref_pos = (probe_xform * vec4(pos + ref_vec, 1.0)).xyz;
	ref_vec = normalize(ref_pos - probe_pos);
	probe_pos += (probe_xform * vec4(normal_mtx[2], 0.0)).xyz * p_normal_bias;
	if (any(lessThan(probe_pos, vec3(0.0))) || any(greaterThan(probe_pos, bounds))) {
		return;
	}
	vec3 blendv = abs(probe_pos / bounds * 2.0 - 1.0);
	float blend = clamp(1.0 - max(blendv.x, max(blendv.y, blendv.z)), 0.0, 1.0);
	float max_distance = length(bounds);

#ifdef VCT_QUALITY_HIGH
	const int cone_count = 6;
	vec3 cone_dirs[cone_count] = vec3[](
			vec3(0.0, 0.0, 1.0),
			vec3(0.866025, 0.0, 0.5),
			vec3(0.267617, 0.823639, 0.5),
			vec3(-0.700629, 0.509037, 0.5),
			vec3(-0.700629, -0.509037, 0.5),
			vec3(0.267617, -0.823639, 0.5));
	float cone_weights[cone_count] = float[](0.25, 0.15, 0.15, 0.15, 0.15, 0.15);
	float cone_angle_tan = 0.577;
#else
	const int cone_count = 4;
	vec3 cone_dirs[cone_count] = vec3[](
			vec3(0.707107, 0.0, 0.707107),
			vec3(0.0, 0.707107, 0.707107),
			vec3(-0.707107, 0.0, 0.707107),
			vec3(0.0, -0.707107, 0.707107));
	float cone_weights[cone_count] = float[](0.25, 0.25, 0.25, 0.25);
	float cone_angle_tan = 0.98269;
#endif
	vec3 light = vec3(0.0);
	for (int i = 0; i < cone_count; i++) {
		vec3 dir = normalize((probe_xform * vec4(pos + normal_mtx * cone_dirs[i], 1.0)).xyz - probe_pos);
		light += cone_weights[i] * voxel_cone_trace(probe, cell_size, probe_pos, dir, cone_angle_tan, max_distance, p_bias);
	}
	light *= multiplier;
	if (blend_ambient) {
		light = mix(ambient, light, min(1.0, max(light.r, max(light.g, light.b))));
	}
	out_diff += vec4(light * blend, blend);

	vec3 irr_light = voxel_cone_trace(probe, cell_size, probe_pos, ref_vec, tan(roughness * 0.5 * M_PI * 0.99), max_distance, p_bias);
	irr_light *= multiplier;
	if (blend_ambient) {
		irr_light = mix(environment, irr_light, min(1.0, max(irr_light.r, max(irr_light.g, irr_light.b))));
	}
	out_spec += vec4(irr_light * blend, blend);
}

void gi_probes_compute(vec3 pos, vec3 normal, float roughness, inout vec3 out_specular, inout vec3 out_ambient) {
	vec3 ref_vec = normalize(reflect(normalize(pos), normal));
	vec3 up = abs(normal.y) > 0.99 ? vec3(1.0, 0.0, 0.0) : vec3(0.0, 1.0, 0.0);
	vec3 tangent = normalize(cross(up, normal));
	mat3 normal_mat = mat3(tangent, cross(normal, tangent), normal);

	vec4 diff_accum = vec4(0.0);
	vec4 spec_accum = vec4(0.0);
	vec3 ambient = out_ambient;
	vec3 environment = out_specular;
	out_specular = vec3(0.0);
	out_ambient = vec3(0.0);

	gi_probe_compute(gi_probe1, gi_probe_xform1, gi_probe_bounds1, gi_probe_cell_size1, pos, ambient, environment, gi_probe_blend_ambient1, gi_probe_multiplier1, normal_mat, ref_vec, roughness, gi_probe_bias1, gi_probe_normal_bias1, spec_accum, diff_accum);
	if (gi_probe2_enabled) {
		gi_probe_compute(gi_probe2, gi_probe_xform2, gi_probe_bounds2, gi_probe_cell_size2, pos, ambient, environment, gi_probe_blend_ambient2, gi_probe_multiplier2, normal_mat, ref_vec, roughness, gi_probe_bias2, gi_probe_normal_bias2, spec_accum, diff_accum);
	}
	if (diff_accum.a > 0.0) {
		diff_accum.rgb /= diff_accum.a;
	}
	if (spec_accum.a > 0.0) {
		spec_accum.rgb /= spec_accum.a;
	}
	out_specular += spec_accum.rgb;
	out_ambient += diff_accum.rgb;
}
#endif
`

const sceneVertexMain = `
void main() {
	highp vec4 vertex = vertex_attrib;
	highp mat4 world_matrix = world_transform;

#ifdef USE_INSTANCING
	world_matrix = world_matrix * transpose(mat4(instance_xform0, instance_xform1, instance_xform2, vec4(0.0, 0.0, 0.0, 1.0)));
#endif

#ifdef ENABLE_OCTAHEDRAL_COMPRESSION
	vec3 normal = oct_to_vec3(normal_tangent_attrib.xy);
	vec3 tangent = oct_to_vec3(vec2(normal_tangent_attrib.z, abs(normal_tangent_attrib.w) * 2.0 - 1.0));
	float binormalf = normal_tangent_attrib.w < 0.0 ? -1.0 : 1.0;
#else
	vec3 normal = normal_attrib;
	vec3 tangent = tangent_attrib.xyz;
	float binormalf = tangent_attrib.w;
#endif
	vec3 binormal = normalize(cross(normal, tangent) * binormalf);

	vec4 color = color_attrib;
#ifdef USE_INSTANCING
	color *= instance_color;
#endif
	vec2 uv = uv_attrib;
	vec2 uv2 = uv2_attrib;

#ifdef USE_SKELETON
	{
		highp mat4 m = bone_transform(bone_indices.x) * bone_weights.x;
		m += bone_transform(bone_indices.y) * bone_weights.y;
		m += bone_transform(bone_indices.z) * bone_weights.z;
		m += bone_transform(bone_indices.w) * bone_weights.w;
		vertex = m * vertex;
		normal = (m * vec4(normal, 0.0)).xyz;
		tangent = (m * vec4(tangent, 0.0)).xyz;
		binormal = (m * vec4(binormal, 0.0)).xyz;
	}
#endif

	highp mat4 modelview = camera_inverse_matrix * world_matrix;
	highp mat4 local_projection = projection_matrix;

#ifdef VERTEX_WORLD_COORDS_USED
	vertex = world_matrix * vertex;
	normal = normalize((world_matrix * vec4(normal, 0.0)).xyz);
	tangent = normalize((world_matrix * vec4(tangent, 0.0)).xyz);
	binormal = normalize((world_matrix * vec4(binormal, 0.0)).xyz);
#endif

	float roughness = 1.0;
	float point_size = 1.0;
	highp vec4 position = vec4(0.0);

	{
		highp vec3 VERTEX = vertex.xyz;
		vec3 NORMAL = normal;
		vec3 TANGENT = tangent;
		vec3 BINORMAL = binormal;
		vec2 UV = uv;
		vec2 UV2 = uv2;
		vec4 COLOR = color;
		float ROUGHNESS = roughness;
		float POINT_SIZE = point_size;
		highp vec4 POSITION = position;
		highp mat4 WORLD_MATRIX = world_matrix;
		highp mat4 INV_CAMERA_MATRIX = camera_inverse_matrix;
		highp mat4 CAMERA_MATRIX = camera_matrix;
		highp mat4 PROJECTION_MATRIX = local_projection;
		highp mat4 INV_PROJECTION_MATRIX = inv_projection_matrix;
		highp mat4 MODELVIEW_MATRIX = modelview;
		highp float TIME = time;
		highp vec2 VIEWPORT_SIZE = viewport_size;
		int INSTANCE_ID = gl_InstanceID;
#if defined(USE_INSTANCING) && defined(ENABLE_INSTANCE_CUSTOM)
		highp vec4 INSTANCE_CUSTOM = instance_custom_data;
#else
		highp vec4 INSTANCE_CUSTOM = vec4(0.0);
#endif
		bool OUTPUT_IS_SRGB = false;

		{
/* VERTEX CODE */
		}

		vertex = vec4(VERTEX, 1.0);
		normal = NORMAL;
		tangent = TANGENT;
		binormal = BINORMAL;
		uv = UV;
		uv2 = UV2;
		color = COLOR;
		roughness = ROUGHNESS;
		point_size = POINT_SIZE;
		position = POSITION;
		modelview = MODELVIEW_MATRIX;
		local_projection = PROJECTION_MATRIX;
	}

#ifdef VERTEX_WORLD_COORDS_USED
	vertex = camera_inverse_matrix * vertex;
	normal = normalize((camera_inverse_matrix * vec4(normal, 0.0)).xyz);
	tangent = normalize((camera_inverse_matrix * vec4(tangent, 0.0)).xyz);
	binormal = normalize((camera_inverse_matrix * vec4(binormal, 0.0)).xyz);
#else
	vertex = modelview * vertex;
	normal = normalize((modelview * vec4(normal, 0.0)).xyz);
	tangent = normalize((modelview * vec4(tangent, 0.0)).xyz);
	binormal = normalize((modelview * vec4(binormal, 0.0)).xyz);
#endif

	vertex_interp = vertex.xyz;
	normal_interp = normal;
	tangent_interp = tangent;
	binormal_interp = binormal;
	color_interp = color;
	uv_interp = uv;
	uv2_interp = uv2;

#ifdef USE_POINT_SIZE
	gl_PointSize = point_size;
#endif

#ifdef RENDER_DEPTH
#ifdef RENDER_DEPTH_DUAL_PARABOLOID
	vertex_interp.z *= shadow_dual_paraboloid_render_side;
	normal_interp.z *= shadow_dual_paraboloid_render_side;
	dp_clip = vertex_interp.z;
	highp vec3 vtx = vertex_interp + normalize(vertex_interp) * z_offset;
	highp float dist = length(vtx);
	vtx = normalize(vtx);
	vtx.xy /= 1.0 - vtx.z;
	vtx.z = dist / shadow_dual_paraboloid_render_zfar;
	vtx.z = vtx.z * 2.0 - 1.0;
	vertex_interp = vtx;
#else
	float z_ofs = z_offset;
	z_ofs += (1.0 - abs(normal_interp.z)) * z_slope_scale;
	vertex_interp.z -= z_ofs;
#endif
#endif

#ifdef USE_VERTEX_LIGHTING
	{
		vec3 diffuse = vec3(0.0);
		vec3 specular = vec3(0.0);
		float alpha_unused = 1.0;
		vec3 eye = -normalize(vertex_interp);
		float directional_lum = 0.0;
#ifdef USE_LIGHT_DIRECTIONAL
		light_compute(normal_interp, -light_direction_attenuation.xyz, eye, light_color_energy.rgb, vec3(1.0), vec3(1.0), vec3(0.0), vec3(1.0), light_params.z, roughness, 0.0, 0.0, 0.0, 0.0, 0.0, diffuse, specular, alpha_unused);
		directional_lum = dot(diffuse, vec3(0.299, 0.587, 0.114));
#endif
#ifdef USE_FORWARD_LIGHTING
		for (int i = 0; i < omni_light_count; i++) {
			light_process_omni(int(omni_light_indices[i / 4][i % 4]), vertex_interp, eye, normal_interp, vec3(1.0), vec3(0.0), vec3(1.0), roughness, 0.0, 0.0, 0.0, 0.0, 0.0, diffuse, specular, alpha_unused);
		}
		for (int i = 0; i < spot_light_count; i++) {
			light_process_spot(int(spot_light_indices[i / 4][i % 4]), vertex_interp, eye, normal_interp, vec3(1.0), vec3(0.0), vec3(1.0), roughness, 0.0, 0.0, 0.0, 0.0, 0.0, diffuse, specular, alpha_unused);
		}
#endif
		float total_lum = dot(diffuse, vec3(0.299, 0.587, 0.114));
		diffuse_light_interp = vec4(diffuse, total_lum > 0.0 ? directional_lum / total_lum : 0.0);
		specular_light_interp = vec4(specular, 0.0);
	}
#endif

#if defined(OVERRIDE_POSITION)
	gl_Position = position;
#elif defined(RENDER_DEPTH_DUAL_PARABOLOID)
	gl_Position = vec4(vertex_interp, 1.0);
#else
	gl_Position = local_projection * vec4(vertex_interp, 1.0);
#endif
}
`

const sceneFragmentMain = `
void main() {
#ifdef RENDER_DEPTH_DUAL_PARABOLOID
	if (dp_clip > 0.0) {
		discard;
	}
#endif

	highp vec3 vertex = vertex_interp;
	vec3 view = -normalize(vertex_interp);
	vec3 albedo = vec3(1.0);
	vec3 transmission = vec3(0.0);
	float metallic = 0.0;
	float specular = 0.5;
	vec3 emission = vec3(0.0);
	float roughness = 1.0;
	float rim = 0.0;
	float rim_tint = 0.0;
	float clearcoat = 0.0;
	float clearcoat_gloss = 0.0;
	float anisotropy = 0.0;
	vec2 anisotropy_flow = vec2(1.0, 0.0);
	float sss_strength = 0.0;
	float alpha = 1.0;
	float alpha_scissor = 0.5;
	float ao = 1.0;
	float ao_light_affect = 0.0;
	vec3 normal = normalize(normal_interp);
	vec3 tangent = normalize(tangent_interp);
	vec3 binormal = normalize(binormal_interp);
	vec3 normalmap = vec3(0.5);
	float normaldepth = 1.0;

#if defined(RENDER_MODE_CULL_DISABLED)
	if (!gl_FrontFacing) {
		normal = -normal;
		tangent = -tangent;
		binormal = -binormal;
	}
#endif

	{
		highp vec3 VERTEX = vertex;
		vec3 VIEW = view;
		highp vec4 FRAGCOORD = gl_FragCoord;
		bool FRONT_FACING = gl_FrontFacing;
		vec3 NORMAL = normal;
		vec3 TANGENT = tangent;
		vec3 BINORMAL = binormal;
		vec3 NORMALMAP = normalmap;
		float NORMALMAP_DEPTH = normaldepth;
		vec2 UV = uv_interp;
		vec2 UV2 = uv2_interp;
		vec4 COLOR = color_interp;
		vec3 ALBEDO = albedo;
		float ALPHA = alpha;
		float ALPHA_SCISSOR = alpha_scissor;
		float METALLIC = metallic;
		float SPECULAR = specular;
		float ROUGHNESS = roughness;
		float RIM = rim;
		float RIM_TINT = rim_tint;
		float CLEARCOAT = clearcoat;
		float CLEARCOAT_GLOSS = clearcoat_gloss;
		float ANISOTROPY = anisotropy;
		vec2 ANISOTROPY_FLOW = anisotropy_flow;
		float SSS_STRENGTH = sss_strength;
		vec3 TRANSMISSION = transmission;
		float AO = ao;
		float AO_LIGHT_AFFECT = ao_light_affect;
		vec3 EMISSION = emission;
		vec2 SCREEN_UV = gl_FragCoord.xy * screen_pixel_size;
		vec2 POINT_COORD = gl_PointCoord;
		highp float TIME = time;
		highp vec2 VIEWPORT_SIZE = viewport_size;
		highp mat4 WORLD_MATRIX = world_transform;
		highp mat4 INV_CAMERA_MATRIX = camera_inverse_matrix;
		highp mat4 CAMERA_MATRIX = camera_matrix;
		highp mat4 PROJECTION_MATRIX = projection_matrix;
		highp mat4 INV_PROJECTION_MATRIX = inv_projection_matrix;
		bool OUTPUT_IS_SRGB = false;

		{
/* FRAGMENT CODE */
		}

		vertex = VERTEX;
		normal = NORMAL;
		tangent = TANGENT;
		binormal = BINORMAL;
		normalmap = NORMALMAP;
		normaldepth = NORMALMAP_DEPTH;
		albedo = ALBEDO;
		alpha = ALPHA;
		alpha_scissor = ALPHA_SCISSOR;
		metallic = METALLIC;
		specular = SPECULAR;
		roughness = ROUGHNESS;
		rim = RIM;
		rim_tint = RIM_TINT;
		clearcoat = CLEARCOAT;
		clearcoat_gloss = CLEARCOAT_GLOSS;
		anisotropy = ANISOTROPY;
		anisotropy_flow = ANISOTROPY_FLOW;
		sss_strength = SSS_STRENGTH;
		transmission = TRANSMISSION;
		ao = AO;
		ao_light_affect = AO_LIGHT_AFFECT;
		emission = EMISSION;
	}

#ifdef ALPHA_SCISSOR_USED
	if (alpha < alpha_scissor) {
		discard;
	}
#endif

#ifdef USE_DEPTH_PREPASS
	if (alpha < opaque_prepass_threshold) {
		discard;
	}
#endif

#if !defined(RENDER_DEPTH)

#ifdef ENABLE_NORMALMAP
	normalmap.xy = normalmap.xy * 2.0 - 1.0;
	normalmap.z = sqrt(max(0.0, 1.0 - dot(normalmap.xy, normalmap.xy)));
	normal = normalize(mix(normal, tangent * normalmap.x + binormal * normalmap.y + normal * normalmap.z, normaldepth));
#endif

#ifdef SHADELESS

#ifdef USE_MULTIPLE_RENDER_TARGETS
	diffuse_buffer = vec4(albedo, 0.0);
	specular_buffer = vec4(0.0);
	normal_mr_buffer = vec4(0.0);
	sss_buffer = 0.0;
#else
	frag_color = vec4(albedo, alpha);
#endif

#else

	vec3 eye_vec = view;
	vec3 f0 = mix(vec3(0.16 * specular * specular), albedo, metallic);
	vec3 specular_light = vec3(0.0);
	vec3 diffuse_light = vec3(0.0);
	vec3 ambient_light;
	vec3 env_reflection_light = vec3(0.0);

#ifdef USE_RADIANCE_MAP
	{
		vec3 ref_vec = normalize((radiance_inverse_xform * vec4(reflect(-eye_vec, normal), 0.0)).xyz);
		env_reflection_light = textureLod(radiance_map, ref_vec, roughness * radiance_max_lod).rgb * bg_energy;
		vec3 amb_vec = normalize((radiance_inverse_xform * vec4(normal, 0.0)).xyz);
		vec3 env_ambient = textureLod(radiance_map, amb_vec, radiance_max_lod).rgb * bg_energy;
		ambient_light = mix(ambient_light_color.rgb, env_ambient, radiance_ambient_contribution);
	}
#else
	ambient_light = ambient_light_color.rgb;
	env_reflection_light = bg_color.rgb * bg_energy;
#endif
	ambient_light *= ambient_energy;

#ifdef USE_FORWARD_LIGHTING
	{
		highp vec4 reflection_accum = vec4(0.0);
		highp vec4 ambient_accum = vec4(0.0);
		for (int i = 0; i < reflection_count; i++) {
			reflection_process(int(reflection_indices[i / 4][i % 4]), vertex, normal, roughness, env_reflection_light, reflection_accum, ambient_accum);
		}
		if (reflection_accum.a > 0.0) {
			specular_light += reflection_accum.rgb / reflection_accum.a;
		} else {
			specular_light += env_reflection_light;
		}
		if (ambient_accum.a > 0.0) {
			ambient_light = ambient_accum.rgb / ambient_accum.a;
		}
	}
#else
	specular_light += env_reflection_light;
#endif

#ifdef USE_LIGHTMAP
	{
		vec2 lm_uv = uv2_interp * lightmap_uv_rect.zw + lightmap_uv_rect.xy;
#ifdef USE_LIGHTMAP_LAYERED
		ambient_light = texture(lightmap_array, vec3(lm_uv, float(lightmap_layer))).rgb * lightmap_energy;
#elif defined(USE_LIGHTMAP_FILTER_BICUBIC)
		vec2 size = vec2(textureSize(lightmap, 0));
		vec2 texel = 1.0 / size;
		vec2 st = lm_uv * size - 0.5;
		vec2 f = fract(st);
		vec2 base = (floor(st) + 0.5) * texel;
		vec3 s00 = texture(lightmap, base).rgb;
		vec3 s10 = texture(lightmap, base + vec2(texel.x, 0.0)).rgb;
		vec3 s01 = texture(lightmap, base + vec2(0.0, texel.y)).rgb;
		vec3 s11 = texture(lightmap, base + texel).rgb;
		vec2 w = f * f * (3.0 - 2.0 * f);
		ambient_light = mix(mix(s00, s10, w.x), mix(s01, s11, w.x), w.y) * lightmap_energy;
#else
		ambient_light = texture(lightmap, lm_uv).rgb * lightmap_energy;
#endif
	}
#endif

#ifdef USE_LIGHTMAP_CAPTURE
	{
		vec3 wnormal = mat3(camera_matrix) * normal;
		vec3 n2 = wnormal * wnormal;
		vec4 captured = n2.x * (wnormal.x >= 0.0 ? lightmap_captures[0] : lightmap_captures[1]) +
				n2.y * (wnormal.y >= 0.0 ? lightmap_captures[2] : lightmap_captures[3]) +
				n2.z * (wnormal.z >= 0.0 ? lightmap_captures[4] : lightmap_captures[5]);
		if (lightmap_capture_sky) {
			ambient_light = mix(ambient_light, captured.rgb, captured.a);
		} else {
			ambient_light = captured.rgb;
		}
	}
#endif

#ifdef USE_GI_PROBES
	gi_probes_compute(vertex, normal, roughness, specular_light, ambient_light);
#endif

#ifdef USE_VERTEX_LIGHTING
	diffuse_light += diffuse_light_interp.rgb * albedo;
	specular_light += specular_light_interp.rgb * f0;
#endif

#ifdef USE_LIGHT_DIRECTIONAL
	{
		vec3 light_attenuation = vec3(1.0);
		float depth_z = -vertex.z;
#ifdef USE_SHADOW
		if (light_params.w > 0.5 && depth_z < shadow_split_offsets.w) {
			highp vec4 pssm_coord;
			highp vec4 pssm_coord2 = vec4(0.0);
			float pssm_blend = 0.0;
#if defined(LIGHT_USE_PSSM4)
			if (depth_z < shadow_split_offsets.x) {
				pssm_coord = shadow_matrix1 * vec4(vertex, 1.0);
				pssm_coord2 = shadow_matrix2 * vec4(vertex, 1.0);
				pssm_blend = smoothstep(shadow_split_offsets.x * 0.9, shadow_split_offsets.x, depth_z);
			} else if (depth_z < shadow_split_offsets.y) {
				pssm_coord = shadow_matrix2 * vec4(vertex, 1.0);
				pssm_coord2 = shadow_matrix3 * vec4(vertex, 1.0);
				pssm_blend = smoothstep(shadow_split_offsets.y * 0.9, shadow_split_offsets.y, depth_z);
			} else if (depth_z < shadow_split_offsets.z) {
				pssm_coord = shadow_matrix3 * vec4(vertex, 1.0);
				pssm_coord2 = shadow_matrix4 * vec4(vertex, 1.0);
				pssm_blend = smoothstep(shadow_split_offsets.z * 0.9, shadow_split_offsets.z, depth_z);
			} else {
				pssm_coord = shadow_matrix4 * vec4(vertex, 1.0);
			}
#elif defined(LIGHT_USE_PSSM2)
			if (depth_z < shadow_split_offsets.x) {
				pssm_coord = shadow_matrix1 * vec4(vertex, 1.0);
				pssm_coord2 = shadow_matrix2 * vec4(vertex, 1.0);
				pssm_blend = smoothstep(shadow_split_offsets.x * 0.9, shadow_split_offsets.x, depth_z);
			} else {
				pssm_coord = shadow_matrix2 * vec4(vertex, 1.0);
			}
#else
			pssm_coord = shadow_matrix1 * vec4(vertex, 1.0);
#endif
			pssm_coord.xyz /= pssm_coord.w;
			float shadow = sample_shadow(directional_shadow, directional_shadow_pixel_size, pssm_coord.xy, pssm_coord.z);
#ifdef LIGHT_USE_PSSM_BLEND
			if (pssm_blend > 0.0) {
				pssm_coord2.xyz /= pssm_coord2.w;
				shadow = mix(shadow, sample_shadow(directional_shadow, directional_shadow_pixel_size, pssm_coord2.xy, pssm_coord2.z), pssm_blend);
			}
#endif
			shadow = mix(shadow, 1.0, smoothstep(shadow_split_offsets.w * 0.9, shadow_split_offsets.w, depth_z));
#ifdef USE_CONTACT_SHADOWS
			if (shadow > 0.01 && shadow_color_contact.a > 0.0) {
				shadow = min(shadow, contact_shadow_compute(vertex, -light_direction_attenuation.xyz, shadow_color_contact.a));
			}
#endif
			light_attenuation = mix(shadow_color_contact.rgb, vec3(1.0), shadow);
		}
#endif

#ifdef USE_VERTEX_LIGHTING
		vec3 shadow_factor = mix(vec3(1.0), light_attenuation, diffuse_light_interp.a);
		diffuse_light *= shadow_factor;
		specular_light *= shadow_factor;
#else
		light_compute(normal, -light_direction_attenuation.xyz, eye_vec, light_color_energy.rgb, light_attenuation, albedo, transmission, f0, light_params.z, roughness, metallic, rim, rim_tint, clearcoat, clearcoat_gloss, diffuse_light, specular_light, alpha);
#endif
	}
#endif

#if defined(USE_FORWARD_LIGHTING) && !defined(USE_VERTEX_LIGHTING)
	for (int i = 0; i < omni_light_count; i++) {
		light_process_omni(int(omni_light_indices[i / 4][i % 4]), vertex, eye_vec, normal, albedo, transmission, f0, roughness, metallic, rim, rim_tint, clearcoat, clearcoat_gloss, diffuse_light, specular_light, alpha);
	}
	for (int i = 0; i < spot_light_count; i++) {
		light_process_spot(int(spot_light_indices[i / 4][i % 4]), vertex, eye_vec, normal, albedo, transmission, f0, roughness, metallic, rim, rim_tint, clearcoat, clearcoat_gloss, diffuse_light, specular_light, alpha);
	}
#endif

#ifdef RENDER_MODE_AMBIENT_LIGHT_DISABLED
	ambient_light = vec3(0.0);
#endif

	ambient_light *= albedo;
	ambient_light *= ao;
	ao_light_affect = mix(1.0, ao, ao_light_affect);
	specular_light *= ao_light_affect;
	diffuse_light *= ao_light_affect;

	{
		const vec4 c0 = vec4(-1.0, -0.0275, -0.572, 0.022);
		const vec4 c1 = vec4(1.0, 0.0425, 1.04, -0.04);
		vec4 r = roughness * c0 + c1;
		float ndotv = clamp(dot(normal, eye_vec), 0.0, 1.0);
		float a004 = min(r.x * r.x, exp2(-9.28 * ndotv)) * r.x + r.y;
		vec2 env = vec2(-1.04, 1.04) * a004 + r.zw;
		specular_light *= (env.x * f0 + env.y) * reflection_multiplier;
	}

	diffuse_light *= 1.0 - metallic;
	ambient_light *= 1.0 - metallic;

	if (fog_color_enabled.a > 0.5) {
		float fog_amount = 0.0;
		vec3 fog_color = fog_color_enabled.rgb;
#ifdef USE_LIGHT_DIRECTIONAL
		float sun_amount = max(dot(normalize(vertex), light_direction_attenuation.xyz), 0.0);
		fog_color = mix(fog_color, fog_sun_color_amount.rgb, pow(sun_amount, 8.0) * fog_sun_color_amount.a);
#endif
		if (fog_depth_enabled) {
			float fog_z = smoothstep(fog_depth_begin, fog_depth_end, length(vertex));
			fog_amount = pow(fog_z, fog_depth_curve);
			if (fog_transmit_enabled) {
				vec3 total_light = emission + ambient_light + specular_light + diffuse_light;
				float transmit = pow(fog_z, fog_transmit_curve);
				fog_color = mix(max(total_light, fog_color), fog_color, transmit);
			}
		}
		if (fog_height_enabled) {
			float y = (camera_matrix * vec4(vertex, 1.0)).y;
			fog_amount = max(fog_amount, pow(smoothstep(fog_height_min, fog_height_max, y), fog_height_curve));
		}
		float rev_amount = 1.0 - fog_amount;
		emission = emission * rev_amount + fog_color * fog_amount;
		ambient_light *= rev_amount;
		specular_light *= rev_amount;
		diffuse_light *= rev_amount;
	}

#ifdef USE_MULTIPLE_RENDER_TARGETS
	diffuse_buffer = vec4(emission + diffuse_light + ambient_light, ao_light_affect);
	specular_buffer = vec4(specular_light, metallic);
	normal_mr_buffer = vec4(normalize(normal) * 0.5 + 0.5, roughness);
	sss_buffer = sss_strength;
#else
	frag_color = vec4(emission + ambient_light + diffuse_light + specular_light, alpha);
#endif

#endif // SHADELESS

#endif // !RENDER_DEPTH
}
`

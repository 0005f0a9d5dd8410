package opengl

import (
	"gles3render/internal/shader"
	"gles3render/internal/storage"
)

// effects holds the screen effect programs.
type effects struct {
	resolve    *shader.Shader
	ssaoMinify *shader.Shader
	ssao       *shader.Shader
	ssaoBlur   *shader.Shader
	ssr        *shader.Shader
	sss        *shader.Shader
	blur       *shader.Shader
	exposure   *shader.Shader
	tonemap    *shader.Shader
}

func newEffects(mgr *shader.Manager) effects {
	return effects{
		resolve:    mgr.NewShader(resolveSource()),
		ssaoMinify: mgr.NewShader(ssaoMinifySource()),
		ssao:       mgr.NewShader(ssaoSource()),
		ssaoBlur:   mgr.NewShader(ssaoBlurSource()),
		ssr:        mgr.NewShader(ssrSource()),
		sss:        mgr.NewShader(sssSource()),
		blur:       mgr.NewShader(blurSource()),
		exposure:   mgr.NewShader(exposureSource()),
		tonemap:    mgr.NewShader(tonemapSource()),
	}
}

// effectVertex draws the storage quad over the whole viewport.
const effectVertex = `
layout(location = 0) in highp vec4 vertex_attrib;
layout(location = 4) in vec2 uv_in;

out vec2 uv_interp;

void main() {
	uv_interp = uv_in;
	gl_Position = vec4(vertex_attrib.xy, 0.0, 1.0);
}
`

// ── MRT resolve ─────────────────────────────────────────────────────────────

const resolveUseSSR = 0

func resolveSource() *shader.Source {
	return &shader.Source{
		Name:         "resolve",
		Vertex:       effectVertex,
		Fragment:     resolveFragment,
		Conditionals: []string{"USE_SSR"},
		TextureUnits: map[string]int{
			"source_specular":         storage.UnitSource,
			"source_ssr":              storage.UnitAux,
			"source_normal_roughness": storage.UnitAux2,
		},
		FallbackBit: -1,
	}
}

const resolveFragment = `
in vec2 uv_interp;

uniform sampler2D source_specular;
#ifdef USE_SSR
uniform sampler2D source_ssr;
uniform sampler2D source_normal_roughness;
#endif

layout(location = 0) out vec4 frag_color;

void main() {
	vec4 specular = texture(source_specular, uv_interp);
#ifdef USE_SSR
	vec4 ssr = textureLod(source_ssr, uv_interp, 0.0);
	float metallic = specular.a;
	vec3 tint = mix(vec3(1.0), specular.rgb, metallic);
	specular.rgb = mix(specular.rgb, ssr.rgb * tint, ssr.a);
#endif
	frag_color = vec4(specular.rgb, 1.0);
}
`

// ── SSAO ────────────────────────────────────────────────────────────────────

const (
	ssaoMinifyStart = iota
	ssaoMinifyOrthogonal
)

const (
	ssaoMinifyZNear = iota
	ssaoMinifyZFar
	ssaoMinifySourceMipmap
)

func ssaoMinifySource() *shader.Source {
	return &shader.Source{
		Name:         "ssao_minify",
		Vertex:       effectVertex,
		Fragment:     ssaoMinifyFragment,
		Conditionals: []string{"MINIFY_START", "USE_ORTHOGONAL_PROJECTION"},
		Uniforms:     []string{"camera_z_near", "camera_z_far", "source_mipmap"},
		TextureUnits: map[string]int{
			"source_depth":         storage.UnitDepth,
			"source_depth_mipmaps": storage.UnitSource,
		},
		FallbackBit: -1,
	}
}

// The first level linearizes hardware depth; later levels take a
// checkerboard sample of the level above.
const ssaoMinifyFragment = `
#ifdef MINIFY_START
uniform highp sampler2D source_depth;
uniform float camera_z_near;
uniform float camera_z_far;
#else
uniform highp sampler2D source_depth_mipmaps;
uniform int source_mipmap;
#endif

layout(location = 0) out highp float depth;

void main() {
	ivec2 ssp = ivec2(gl_FragCoord.xy);
	ivec2 offset = ivec2(ssp.y & 1, ssp.x & 1);
#ifdef MINIFY_START
	ivec2 limit = textureSize(source_depth, 0) - ivec2(1);
	highp float d = texelFetch(source_depth, clamp(ssp * 2 + offset, ivec2(0), limit), 0).r * 2.0 - 1.0;
#ifdef USE_ORTHOGONAL_PROJECTION
	d = ((d + (camera_z_far + camera_z_near) / (camera_z_far - camera_z_near)) * (camera_z_far - camera_z_near)) / 2.0;
#else
	d = 2.0 * camera_z_near * camera_z_far / (camera_z_far + camera_z_near - d * (camera_z_far - camera_z_near));
#endif
	depth = d;
#else
	ivec2 limit = textureSize(source_depth_mipmaps, source_mipmap) - ivec2(1);
	depth = texelFetch(source_depth_mipmaps, clamp(ssp * 2 + offset, ivec2(0), limit), source_mipmap).r;
#endif
}
`

const (
	ssaoEnableRadius2 = iota
	ssaoOrthogonal
)

const (
	ssaoProjection = iota
	ssaoProjInfo
	ssaoKernelUniform
	ssaoSampleCount
	ssaoNoiseScale
	ssaoRadius
	ssaoIntensity
	ssaoRadius2
	ssaoIntensity2
	ssaoBias
	ssaoProjScale
)

// ssaoKernelSize is the number of hemisphere samples kept in the kernel.
const ssaoKernelSize = 64

func ssaoSource() *shader.Source {
	return &shader.Source{
		Name:         "ssao",
		Vertex:       effectVertex,
		Fragment:     ssaoFragment,
		Conditionals: []string{"ENABLE_RADIUS2", "USE_ORTHOGONAL_PROJECTION"},
		Uniforms: []string{"projection", "proj_info", "kernel", "sample_count", "noise_scale",
			"radius", "intensity", "radius2", "intensity2", "bias", "proj_scale"},
		TextureUnits: map[string]int{
			"source_depth_mipmaps":    storage.UnitSource,
			"source_normal_roughness": storage.UnitAux2,
			"noise":                   storage.UnitAux,
		},
		FallbackBit: -1,
	}
}

// View positions come from the linear depth pyramid; samples farther out
// on screen read coarser levels.
const ssaoFragment = `
in vec2 uv_interp;

uniform highp sampler2D source_depth_mipmaps;
uniform sampler2D source_normal_roughness;
uniform sampler2D noise;

uniform highp mat4 projection;
uniform highp vec4 proj_info;
uniform highp vec4 kernel[64];
uniform int sample_count;
uniform vec2 noise_scale;
uniform float radius;
uniform float intensity;
uniform float radius2;
uniform float intensity2;
uniform float bias;
uniform float proj_scale;

layout(location = 0) out float ao_out;

highp vec3 view_position(vec2 uv, highp float z) {
#ifdef USE_ORTHOGONAL_PROJECTION
	return vec3(uv * proj_info.xy + proj_info.zw, -z);
#else
	return vec3((uv * proj_info.xy + proj_info.zw) * z, -z);
#endif
}

float occlusion(highp vec3 pos, vec3 normal, mat3 tbn, float r) {
	float lod = clamp(log2(max(r * proj_scale / max(-pos.z, 0.001), 1.0)) - 3.0, 0.0, 4.0);
	float occluded = 0.0;
	for (int i = 0; i < sample_count; i++) {
		highp vec3 s = pos + tbn * kernel[i].xyz * r;
		highp vec4 clip = projection * vec4(s, 1.0);
		vec2 uv = clip.xy / clip.w * 0.5 + 0.5;
		highp float scene_z = textureLod(source_depth_mipmaps, uv, lod).r;
		float range = smoothstep(0.0, 1.0, r / abs(-pos.z - scene_z));
		occluded += (scene_z <= -s.z - bias ? 1.0 : 0.0) * range;
	}
	return occluded / float(max(sample_count, 1));
}

void main() {
	highp float z = textureLod(source_depth_mipmaps, uv_interp, 0.0).r;
	highp vec3 pos = view_position(uv_interp, z);
	vec3 normal = normalize(texture(source_normal_roughness, uv_interp).xyz * 2.0 - 1.0);
	vec3 rnd = vec3(texture(noise, uv_interp * noise_scale).xy, 0.0);
	vec3 tangent = normalize(rnd - normal * dot(rnd, normal));
	mat3 tbn = mat3(tangent, cross(normal, tangent), normal);

	float ao = occlusion(pos, normal, tbn, radius) * intensity;
#ifdef ENABLE_RADIUS2
	ao = max(ao, occlusion(pos, normal, tbn, radius2) * intensity2);
#endif
	ao_out = clamp(1.0 - ao, 0.0, 1.0);
}
`

const (
	ssaoBlurMerge = iota
	ssaoBlurOrthogonal
)

const (
	ssaoBlurAxis = iota
	ssaoBlurEdgeSharpness
	ssaoBlurFilterScale
	ssaoBlurZNear
	ssaoBlurZFar
	ssaoBlurColor
	ssaoBlurLightAffect
)

func ssaoBlurSource() *shader.Source {
	return &shader.Source{
		Name:         "ssao_blur",
		Vertex:       effectVertex,
		Fragment:     ssaoBlurFragment,
		Conditionals: []string{"SSAO_MERGE", "USE_ORTHOGONAL_PROJECTION"},
		Uniforms:     []string{"axis", "edge_sharpness", "filter_scale", "camera_z_near", "camera_z_far", "ssao_color", "light_affect"},
		TextureUnits: map[string]int{
			"source_ssao":  storage.UnitSource,
			"source_depth": storage.UnitDepth,
		},
		FallbackBit: -1,
	}
}

// The bilateral blur weighs taps by depth similarity. The merge variant
// writes the tinted occlusion for a multiplicative blend.
const ssaoBlurFragment = `
in vec2 uv_interp;

uniform sampler2D source_ssao;
uniform highp sampler2D source_depth;
uniform vec2 axis;
uniform float edge_sharpness;
uniform int filter_scale;
uniform float camera_z_near;
uniform float camera_z_far;
uniform vec4 ssao_color;
uniform float light_affect;

layout(location = 0) out vec4 frag_color;

const int R = 4;
const float gaussian[R + 1] = float[](0.153170, 0.144893, 0.122649, 0.092902, 0.062970);

highp float linear_depth(vec2 uv) {
	highp float d = textureLod(source_depth, uv, 0.0).r * 2.0 - 1.0;
#ifdef USE_ORTHOGONAL_PROJECTION
	return ((d + (camera_z_far + camera_z_near) / (camera_z_far - camera_z_near)) * (camera_z_far - camera_z_near)) / 2.0;
#else
	return 2.0 * camera_z_near * camera_z_far / (camera_z_far + camera_z_near - d * (camera_z_far - camera_z_near));
#endif
}

void main() {
#ifdef SSAO_MERGE
	float ao = mix(1.0, texture(source_ssao, uv_interp).r, 1.0 - light_affect);
	frag_color = vec4(mix(ssao_color.rgb, vec3(1.0), ao), 1.0);
#else
	vec2 pixel = axis / vec2(textureSize(source_ssao, 0));
	highp float key = linear_depth(uv_interp);
	float sum = texture(source_ssao, uv_interp).r * gaussian[0];
	float total = gaussian[0];
	for (int r = -R; r <= R; r++) {
		if (r == 0) {
			continue;
		}
		vec2 uv = uv_interp + pixel * float(r * filter_scale);
		highp float z = linear_depth(uv);
		float w = 0.3 + gaussian[abs(r)];
		w *= max(0.0, 1.0 - (edge_sharpness * 2000.0) * abs(z - key) / max(key, 0.0001));
		sum += texture(source_ssao, uv).r * w;
		total += w;
	}
	frag_color = vec4(sum / (total + 0.0001));
#endif
}
`

// ── SSR ─────────────────────────────────────────────────────────────────────

const (
	ssrReflectRoughness = iota
	ssrOrthogonal
)

const (
	ssrProjection = iota
	ssrInvProjection
	ssrPixelSize
	ssrNumSteps
	ssrDepthTolerance
	ssrDistanceFade
	ssrCurveFadeIn
	ssrFilterMipmapLevels
	ssrZNear
	ssrZFar
)

func ssrSource() *shader.Source {
	return &shader.Source{
		Name:         "screen_space_reflection",
		Vertex:       effectVertex,
		Fragment:     ssrFragment,
		Conditionals: []string{"REFLECT_ROUGHNESS", "USE_ORTHOGONAL_PROJECTION"},
		Uniforms: []string{"projection", "inverse_projection", "pixel_size", "num_steps", "depth_tolerance",
			"distance_fade", "curve_fade_in", "filter_mipmap_levels", "camera_z_near", "camera_z_far"},
		TextureUnits: map[string]int{
			"source_diffuse":          storage.UnitSource,
			"source_depth":            storage.UnitDepth,
			"source_normal_roughness": storage.UnitAux2,
		},
		FallbackBit: -1,
	}
}

// The march walks the reflected ray in screen space one pixel step at a
// time, then bisects the last interval. Rough surfaces read blurrier
// levels of the diffuse pyramid.
const ssrFragment = `
in vec2 uv_interp;

uniform sampler2D source_diffuse;
uniform highp sampler2D source_depth;
uniform sampler2D source_normal_roughness;

uniform highp mat4 projection;
uniform highp mat4 inverse_projection;
uniform vec2 pixel_size;
uniform int num_steps;
uniform float depth_tolerance;
uniform float distance_fade;
uniform float curve_fade_in;
uniform float filter_mipmap_levels;
uniform float camera_z_near;
uniform float camera_z_far;

layout(location = 0) out vec4 frag_color;

highp vec3 view_at(vec2 uv) {
	highp float d = textureLod(source_depth, uv, 0.0).r * 2.0 - 1.0;
	highp vec4 v = inverse_projection * vec4(uv * 2.0 - 1.0, d, 1.0);
	return v.xyz / v.w;
}

vec2 project(highp vec3 v) {
	highp vec4 c = projection * vec4(v, 1.0);
	return c.xy / c.w * 0.5 + 0.5;
}

void main() {
	vec4 nr = texture(source_normal_roughness, uv_interp);
	if (nr.a > 0.95 || dot(nr.xyz, nr.xyz) < 0.01) {
		frag_color = vec4(0.0);
		return;
	}
	vec3 normal = normalize(nr.xyz * 2.0 - 1.0);
	highp vec3 origin = view_at(uv_interp);
#ifdef USE_ORTHOGONAL_PROJECTION
	vec3 view_dir = vec3(0.0, 0.0, -1.0);
#else
	vec3 view_dir = normalize(origin);
#endif
	vec3 ray = normalize(reflect(view_dir, normal));
	if (ray.z > 0.0 && dot(ray, normal) < 0.0) {
		frag_color = vec4(0.0);
		return;
	}

	float ray_len = (origin.z + ray.z * camera_z_far) > -camera_z_near ? (-camera_z_near - origin.z) / ray.z : camera_z_far;
	highp vec3 end = origin + ray * ray_len;
	vec2 from = uv_interp;
	vec2 to = project(end);
	vec2 delta = to - from;
	float pixels = max(abs(delta.x) / pixel_size.x, abs(delta.y) / pixel_size.y);
	float steps = min(float(num_steps), pixels);
	if (steps < 1.0) {
		frag_color = vec4(0.0);
		return;
	}

	highp vec3 prev = origin;
	bool hit = false;
	vec2 hit_uv = vec2(0.0);
	float t_prev = 0.0;
	float t_hit = 0.0;
	for (float i = 1.0; i <= steps; i++) {
		float t = i / steps;
		highp vec3 p = mix(origin, end, t);
		vec2 uv = project(p);
		if (any(lessThan(uv, vec2(0.0))) || any(greaterThan(uv, vec2(1.0)))) {
			break;
		}
		highp float scene_z = view_at(uv).z;
		if (p.z < scene_z && scene_z - p.z < depth_tolerance) {
			hit = true;
			t_hit = t;
			break;
		}
		t_prev = t;
	}
	if (!hit) {
		frag_color = vec4(0.0);
		return;
	}
	for (int j = 0; j < 4; j++) {
		float t = (t_prev + t_hit) * 0.5;
		highp vec3 p = mix(origin, end, t);
		if (p.z < view_at(project(p)).z) {
			t_hit = t;
		} else {
			t_prev = t;
		}
	}
	hit_uv = project(mix(origin, end, t_hit));

	vec2 edge = smoothstep(0.0, 0.1, hit_uv) * (1.0 - smoothstep(0.9, 1.0, hit_uv));
	float fade = edge.x * edge.y;
	fade *= 1.0 - smoothstep(1.0 - distance_fade, 1.0, t_hit);
	fade *= pow(clamp(-ray.z + 0.5, 0.0, 1.0), curve_fade_in);
	float lod = 0.0;
#ifdef REFLECT_ROUGHNESS
	lod = clamp(nr.a * filter_mipmap_levels, 0.0, filter_mipmap_levels);
#endif
	frag_color = vec4(textureLod(source_diffuse, hit_uv, lod).rgb, fade);
}
`

// ── SSS ─────────────────────────────────────────────────────────────────────

const (
	sssUse11Samples = iota
	sssUse17Samples
	sssUse25Samples
	sssOrthogonal
	sssFollowSurface
)

const (
	sssMaxRadius = iota
	sssZNear
	sssZFar
	sssDir
	sssUnitSize
)

func sssSource() *shader.Source {
	return &shader.Source{
		Name:         "subsurf_scattering",
		Vertex:       effectVertex,
		Fragment:     sssFragment,
		Conditionals: []string{"USE_11_SAMPLES", "USE_17_SAMPLES", "USE_25_SAMPLES", "USE_ORTHOGONAL_PROJECTION", "ENABLE_FOLLOW_SURFACE"},
		Uniforms:     []string{"max_radius", "camera_z_near", "camera_z_far", "dir", "unit_size"},
		TextureUnits: map[string]int{
			"source_diffuse": storage.UnitSource,
			"source_sss":     storage.UnitAux,
			"source_depth":   storage.UnitDepth,
		},
		FallbackBit: -1,
	}
}

// Separable skin profile kernels: xyz weights, w offset in kernel units.
const sssFragment = `
in vec2 uv_interp;

uniform sampler2D source_diffuse;
uniform sampler2D source_sss;
uniform highp sampler2D source_depth;
uniform float max_radius;
uniform float camera_z_near;
uniform float camera_z_far;
uniform vec2 dir;
uniform float unit_size;

layout(location = 0) out vec4 frag_color;

#ifdef USE_25_SAMPLES
const int kernel_size = 13;
const vec4 kernel[13] = vec4[](
	vec4(0.530605, 0.613514, 0.739601, 0.0),
	vec4(0.000973794, 1.11862e-005, 9.43437e-007, -3.0),
	vec4(0.00333804, 7.85443e-005, 1.2945e-005, -2.52083),
	vec4(0.00500364, 0.00020094, 5.28848e-005, -2.08333),
	vec4(0.00700976, 0.00049366, 0.000151938, -1.6875),
	vec4(0.0094389, 0.00139119, 0.000416598, -1.33333),
	vec4(0.0128496, 0.00356329, 0.00132016, -1.02083),
	vec4(0.017924, 0.00711691, 0.00347194, -0.75),
	vec4(0.0263642, 0.0119715, 0.00684598, -0.520833),
	vec4(0.0410172, 0.0199899, 0.0118481, -0.333333),
	vec4(0.0493588, 0.0367726, 0.0219485, -0.1875),
	vec4(0.0402784, 0.0657244, 0.04631, -0.0833333),
	vec4(0.0211412, 0.0459286, 0.0378196, -0.0208333));
#endif

#ifdef USE_17_SAMPLES
const int kernel_size = 9;
const vec4 kernel[9] = vec4[](
	vec4(0.536343, 0.624624, 0.748867, 0.0),
	vec4(0.00317394, 0.000134823, 3.77269e-005, -2.0),
	vec4(0.0100386, 0.000914679, 0.000275702, -1.53125),
	vec4(0.0144609, 0.00317269, 0.00106399, -1.125),
	vec4(0.0216301, 0.00794618, 0.00376991, -0.78125),
	vec4(0.0347317, 0.0151085, 0.00871983, -0.5),
	vec4(0.0571056, 0.0287432, 0.0172844, -0.28125),
	vec4(0.0582416, 0.0659959, 0.0411329, -0.125),
	vec4(0.0324462, 0.0656718, 0.0532821, -0.03125));
#endif

#ifdef USE_11_SAMPLES
const int kernel_size = 6;
const vec4 kernel[6] = vec4[](
	vec4(0.560479, 0.669086, 0.784728, 0.0),
	vec4(0.00471691, 0.000184771, 5.07566e-005, -2.0),
	vec4(0.0192831, 0.00282018, 0.00084214, -1.28),
	vec4(0.03639, 0.0130999, 0.00643685, -0.72),
	vec4(0.0821904, 0.0358608, 0.0209261, -0.32),
	vec4(0.0771802, 0.113491, 0.0793803, -0.08));
#endif

highp float linear_depth(vec2 uv) {
	highp float d = textureLod(source_depth, uv, 0.0).r * 2.0 - 1.0;
#ifdef USE_ORTHOGONAL_PROJECTION
	return ((d + (camera_z_far + camera_z_near) / (camera_z_far - camera_z_near)) * (camera_z_far - camera_z_near)) / 2.0;
#else
	return 2.0 * camera_z_near * camera_z_far / (camera_z_far + camera_z_near - d * (camera_z_far - camera_z_near));
#endif
}

void main() {
	float strength = texture(source_sss, uv_interp).r;
	vec4 base = texture(source_diffuse, uv_interp);
	if (strength <= 0.0) {
		frag_color = base;
		return;
	}
	highp float depth = linear_depth(uv_interp);
	float scale = unit_size / max(depth, 0.0001);
	vec2 step = dir * strength * max_radius * scale;

	vec3 color = base.rgb * kernel[0].rgb;
	for (int i = 1; i < kernel_size; i++) {
		for (int side = 0; side < 2; side++) {
			float offset = side == 0 ? kernel[i].a : -kernel[i].a;
			vec2 uv = uv_interp + offset * step;
			vec3 c = texture(source_diffuse, uv).rgb;
			// Taps off the surface fall back to the center.
			float keep = step(0.0001, texture(source_sss, uv).r);
#ifdef ENABLE_FOLLOW_SURFACE
			keep *= clamp(1.0 - abs(linear_depth(uv) - depth) * 300.0 * scale, 0.0, 1.0);
#endif
			color += kernel[i].rgb * mix(base.rgb, c, keep);
		}
	}
	frag_color = vec4(color, base.a);
}
`

// ── Gaussian, glow and DOF blur ─────────────────────────────────────────────

const (
	blurGaussianHorizontal = iota
	blurGaussianVertical
	blurGlowHorizontal
	blurGlowVertical
	blurGlowFirstPass
	blurGlowAutoExposure
	blurDOFFar
	blurDOFNear
	blurDOFQualityLow
	blurDOFQualityMedium
	blurDOFQualityHigh
	blurOrthogonal
)

const (
	blurPixelSize = iota
	blurLod
	blurGlowStrength
	blurGlowBloom
	blurGlowHDRThreshold
	blurGlowHDRScale
	blurGlowLuminanceCap
	blurExposure
	blurAutoExposureGrey
	blurDOFBegin
	blurDOFEnd
	blurDOFDir
	blurDOFRadius
	blurZNear
	blurZFar
)

func blurSource() *shader.Source {
	return &shader.Source{
		Name:     "effect_blur",
		Vertex:   effectVertex,
		Fragment: blurFragment,
		Conditionals: []string{"GAUSSIAN_HORIZONTAL", "GAUSSIAN_VERTICAL", "GLOW_GAUSSIAN_HORIZONTAL", "GLOW_GAUSSIAN_VERTICAL",
			"GLOW_FIRST_PASS", "GLOW_USE_AUTO_EXPOSURE", "DOF_FAR_BLUR", "DOF_NEAR_BLUR",
			"DOF_QUALITY_LOW", "DOF_QUALITY_MEDIUM", "DOF_QUALITY_HIGH", "USE_ORTHOGONAL_PROJECTION"},
		Uniforms: []string{"pixel_size", "lod", "glow_strength", "glow_bloom", "glow_hdr_threshold", "glow_hdr_scale",
			"luminance_cap", "exposure", "auto_exposure_grey", "dof_begin", "dof_end", "dof_dir", "dof_radius",
			"camera_z_near", "camera_z_far"},
		TextureUnits: map[string]int{
			"source_color":         storage.UnitSource,
			"source_depth":         storage.UnitDepth,
			"source_auto_exposure": storage.UnitAux,
		},
		FallbackBit: -1,
	}
}

const blurFragment = `
in vec2 uv_interp;

uniform sampler2D source_color;
uniform highp sampler2D source_depth;
uniform highp sampler2D source_auto_exposure;

uniform vec2 pixel_size;
uniform float lod;
uniform float glow_strength;
uniform float glow_bloom;
uniform float glow_hdr_threshold;
uniform float glow_hdr_scale;
uniform float luminance_cap;
uniform float exposure;
uniform float auto_exposure_grey;
uniform float dof_begin;
uniform float dof_end;
uniform vec2 dof_dir;
uniform float dof_radius;
uniform float camera_z_near;
uniform float camera_z_far;

layout(location = 0) out vec4 frag_color;

#ifdef DOF_QUALITY_LOW
const int dof_kernel_size = 5;
const int dof_kernel_from = 2;
const float dof_kernel[5] = float[](0.153388, 0.221461, 0.250301, 0.221461, 0.153388);
#endif
#ifdef DOF_QUALITY_MEDIUM
const int dof_kernel_size = 11;
const int dof_kernel_from = 5;
const float dof_kernel[11] = float[](0.055037, 0.072806, 0.090506, 0.105726, 0.116061, 0.119726, 0.116061, 0.105726, 0.090506, 0.072806, 0.055037);
#endif
#ifdef DOF_QUALITY_HIGH
const int dof_kernel_size = 21;
const int dof_kernel_from = 10;
const float dof_kernel[21] = float[](0.028174, 0.032676, 0.037311, 0.041944, 0.046421, 0.050582, 0.054261, 0.057307, 0.059587, 0.060998, 0.061476, 0.060998, 0.059587, 0.057307, 0.054261, 0.050582, 0.046421, 0.041944, 0.037311, 0.032676, 0.028174);
#endif

highp float linear_depth(vec2 uv) {
	highp float d = textureLod(source_depth, uv, 0.0).r * 2.0 - 1.0;
#ifdef USE_ORTHOGONAL_PROJECTION
	return ((d + (camera_z_far + camera_z_near) / (camera_z_far - camera_z_near)) * (camera_z_far - camera_z_near)) / 2.0;
#else
	return 2.0 * camera_z_near * camera_z_far / (camera_z_far + camera_z_near - d * (camera_z_far - camera_z_near));
#endif
}

void main() {
#ifdef GAUSSIAN_HORIZONTAL
	vec2 ps = pixel_size * vec2(2.0, 1.0);
	vec4 c = textureLod(source_color, uv_interp, lod) * 0.38774;
	c += textureLod(source_color, uv_interp + vec2(1.0, 0.0) * ps, lod) * 0.24477;
	c += textureLod(source_color, uv_interp + vec2(2.0, 0.0) * ps, lod) * 0.06136;
	c += textureLod(source_color, uv_interp + vec2(-1.0, 0.0) * ps, lod) * 0.24477;
	c += textureLod(source_color, uv_interp + vec2(-2.0, 0.0) * ps, lod) * 0.06136;
	frag_color = c;
#endif

#ifdef GAUSSIAN_VERTICAL
	vec2 ps = pixel_size * vec2(1.0, 2.0);
	vec4 c = textureLod(source_color, uv_interp, lod) * 0.38774;
	c += textureLod(source_color, uv_interp + vec2(0.0, 1.0) * ps, lod) * 0.24477;
	c += textureLod(source_color, uv_interp + vec2(0.0, 2.0) * ps, lod) * 0.06136;
	c += textureLod(source_color, uv_interp + vec2(0.0, -1.0) * ps, lod) * 0.24477;
	c += textureLod(source_color, uv_interp + vec2(0.0, -2.0) * ps, lod) * 0.06136;
	frag_color = c;
#endif

#ifdef GLOW_GAUSSIAN_HORIZONTAL
	vec2 ps = pixel_size * vec2(2.0, 1.0);
	vec4 c = textureLod(source_color, uv_interp, lod) * 0.174938;
	c += textureLod(source_color, uv_interp + vec2(1.0, 0.0) * ps, lod) * 0.165569;
	c += textureLod(source_color, uv_interp + vec2(2.0, 0.0) * ps, lod) * 0.140367;
	c += textureLod(source_color, uv_interp + vec2(3.0, 0.0) * ps, lod) * 0.106595;
	c += textureLod(source_color, uv_interp + vec2(-1.0, 0.0) * ps, lod) * 0.165569;
	c += textureLod(source_color, uv_interp + vec2(-2.0, 0.0) * ps, lod) * 0.140367;
	c += textureLod(source_color, uv_interp + vec2(-3.0, 0.0) * ps, lod) * 0.106595;
	c *= glow_strength;
#ifdef GLOW_FIRST_PASS
#ifdef GLOW_USE_AUTO_EXPOSURE
	c /= texelFetch(source_auto_exposure, ivec2(0, 0), 0).r / auto_exposure_grey;
#endif
	c *= exposure;
	float luminance = max(c.r, max(c.g, c.b));
	float feedback = max(smoothstep(glow_hdr_threshold, glow_hdr_threshold + glow_hdr_scale, luminance), glow_bloom);
	c = min(c * feedback, vec4(luminance_cap));
#endif
	frag_color = c;
#endif

#ifdef GLOW_GAUSSIAN_VERTICAL
	vec2 ps = pixel_size * vec2(1.0, 2.0);
	vec4 c = textureLod(source_color, uv_interp, lod) * 0.288713;
	c += textureLod(source_color, uv_interp + vec2(0.0, 1.0) * ps, lod) * 0.233062;
	c += textureLod(source_color, uv_interp + vec2(0.0, 2.0) * ps, lod) * 0.122581;
	c += textureLod(source_color, uv_interp + vec2(0.0, -1.0) * ps, lod) * 0.233062;
	c += textureLod(source_color, uv_interp + vec2(0.0, -2.0) * ps, lod) * 0.122581;
	frag_color = c * glow_strength;
#endif

#ifdef DOF_FAR_BLUR
	highp float depth = linear_depth(uv_interp);
	float amount = smoothstep(dof_begin, dof_end, depth);
	float k_accum = 0.0;
	vec4 color_accum = vec4(0.0);
	for (int i = 0; i < dof_kernel_size; i++) {
		int int_ofs = i - dof_kernel_from;
		vec2 tap_uv = uv_interp + dof_dir * float(int_ofs) * amount * dof_radius;
		float tap_k = dof_kernel[i];
		float tap_amount = int_ofs == 0 ? 1.0 : smoothstep(dof_begin, dof_end, linear_depth(tap_uv));
		tap_amount *= tap_amount * tap_amount;
		color_accum += textureLod(source_color, tap_uv, 0.0) * tap_k * tap_amount;
		k_accum += tap_k * tap_amount;
	}
	frag_color = color_accum / max(k_accum, 0.0001);
	frag_color.a = amount;
#endif

#ifdef DOF_NEAR_BLUR
	float k_accum = 0.0;
	vec4 color_accum = vec4(0.0);
	float max_accum = 0.0;
	for (int i = 0; i < dof_kernel_size; i++) {
		int int_ofs = i - dof_kernel_from;
		vec2 tap_uv = uv_interp + dof_dir * float(int_ofs) * dof_radius;
		float tap_k = dof_kernel[i];
		vec4 tap = textureLod(source_color, tap_uv, 0.0);
		float tap_amount = 1.0 - smoothstep(dof_end, dof_begin, linear_depth(tap_uv));
		max_accum = max(max_accum, tap_amount);
		color_accum += vec4(tap.rgb, 1.0) * tap_k * tap_amount;
		k_accum += tap_k * tap_amount;
	}
	frag_color = vec4(color_accum.rgb / max(k_accum, 0.0001), max_accum);
#endif
}
`

// ── Auto exposure ───────────────────────────────────────────────────────────

const (
	exposureBegin = iota
	exposureEnd
)

const (
	exposureSourceRenderSize = iota
	exposureTargetSize
	exposureAdjust
	exposureMinLuminance
	exposureMaxLuminance
)

func exposureSource() *shader.Source {
	return &shader.Source{
		Name:         "exposure",
		Vertex:       effectVertex,
		Fragment:     exposureFragment,
		Conditionals: []string{"EXPOSURE_BEGIN", "EXPOSURE_END"},
		Uniforms:     []string{"source_render_size", "target_size", "adjust", "min_luminance", "max_luminance"},
		TextureUnits: map[string]int{
			"source_exposure": storage.UnitSource,
			"prev_exposure":   storage.UnitAux,
		},
		FallbackBit: -1,
	}
}

// Every level averages a 3×3 block of the level before it. The first
// level averages the luminance of the scene image over the block each of
// its texels covers; the last one adapts towards the result in log space.
const exposureFragment = `
uniform highp sampler2D source_exposure;
#ifdef EXPOSURE_END
uniform highp sampler2D prev_exposure;
uniform float adjust;
uniform float min_luminance;
uniform float max_luminance;
#endif
#ifdef EXPOSURE_BEGIN
uniform vec2 source_render_size;
uniform vec2 target_size;
#endif

layout(location = 0) out highp float exposure;

void main() {
	ivec2 dst = ivec2(gl_FragCoord.xy);
#ifdef EXPOSURE_BEGIN
	ivec2 src = ivec2(floor(vec2(dst) * source_render_size / target_size));
	ivec2 next = ivec2(floor(vec2(dst + ivec2(1)) * source_render_size / target_size));
	ivec2 limit = textureSize(source_exposure, 0) - ivec2(1);
	highp float sum = 0.0;
	for (int y = 0; y < 3; y++) {
		for (int x = 0; x < 3; x++) {
			ivec2 p = clamp(src + (next - src) * ivec2(x, y) / 3, ivec2(0), limit);
			vec3 c = texelFetch(source_exposure, p, 0).rgb;
			sum += max(c.r, max(c.g, c.b));
		}
	}
	exposure = sum / 9.0;
#else
	ivec2 src = dst * 3;
	ivec2 limit = textureSize(source_exposure, 0) - ivec2(1);
	highp float sum = 0.0;
	for (int y = 0; y < 3; y++) {
		for (int x = 0; x < 3; x++) {
			sum += texelFetch(source_exposure, min(src + ivec2(x, y), limit), 0).r;
		}
	}
	exposure = sum / 9.0;
#endif
#ifdef EXPOSURE_END
	highp float prev = clamp(texelFetch(prev_exposure, ivec2(0, 0), 0).r, min_luminance, max_luminance);
	highp float lum = clamp(exposure, min_luminance, max_luminance);
	exposure = exp2(mix(log2(prev), log2(lum), adjust));
#endif
}
`

// ── Tonemap ─────────────────────────────────────────────────────────────────

// glowLevels is the number of glow pyramid levels the tonemapper can read.
const glowLevels = 7

const (
	tonemapGlowLevel1 = iota
	tonemapGlowLevel2
	tonemapGlowLevel3
	tonemapGlowLevel4
	tonemapGlowLevel5
	tonemapGlowLevel6
	tonemapGlowLevel7
	tonemapGlowReplace
	tonemapGlowScreen
	tonemapGlowSoftLight
	tonemapGlowBicubic
	tonemapReinhard
	tonemapFilmic
	tonemapACES
	tonemapACESFitted
	tonemapAutoExposure
	tonemapBCS
	tonemapColorCorrection
	tonemapFXAA
	tonemapDebanding
	tonemapSharpening
	tonemapKeepLinear
	tonemapVFlip
	tonemapDisableAlpha
)

const (
	tonemapExposure = iota
	tonemapWhite
	tonemapAutoExposureGrey
	tonemapGlowIntensity
	tonemapBCSValues
	tonemapPixelSize
	tonemapSharpenIntensity
)

func tonemapSource() *shader.Source {
	return &shader.Source{
		Name:     "tonemap",
		Vertex:   effectVertex,
		Fragment: tonemapFragment,
		Conditionals: []string{"USE_GLOW_LEVEL1", "USE_GLOW_LEVEL2", "USE_GLOW_LEVEL3", "USE_GLOW_LEVEL4",
			"USE_GLOW_LEVEL5", "USE_GLOW_LEVEL6", "USE_GLOW_LEVEL7", "USE_GLOW_REPLACE", "USE_GLOW_SCREEN",
			"USE_GLOW_SOFTLIGHT", "USE_GLOW_FILTER_BICUBIC", "USE_REINHARD_TONEMAPPER", "USE_FILMIC_TONEMAPPER",
			"USE_ACES_TONEMAPPER", "USE_ACES_FITTED_TONEMAPPER", "USE_AUTO_EXPOSURE", "USE_BCS",
			"USE_COLOR_CORRECTION", "USE_FXAA", "USE_DEBANDING", "USE_SHARPENING", "KEEP_3D_LINEAR", "V_FLIP",
			"DISABLE_ALPHA"},
		Uniforms: []string{"exposure", "white", "auto_exposure_grey", "glow_intensity", "bcs", "pixel_size",
			"sharpen_intensity"},
		TextureUnits: map[string]int{
			"source":           storage.UnitSource,
			"source_glow":      storage.UnitAux,
			"exposure_texture": storage.UnitAux2,
			"color_correction": storage.UnitAux3,
		},
		FallbackBit: -1,
	}
}

const tonemapFragment = `
in vec2 uv_interp;

uniform highp sampler2D source;
uniform highp sampler2D source_glow;
uniform highp sampler2D exposure_texture;
uniform sampler2D color_correction;

uniform float exposure;
uniform float white;
uniform float auto_exposure_grey;
uniform float glow_intensity;
uniform vec3 bcs;
uniform vec2 pixel_size;
uniform float sharpen_intensity;

layout(location = 0) out vec4 frag_color;

vec4 cubic_weights(float v) {
	vec4 n = vec4(1.0, 2.0, 3.0, 4.0) - v;
	vec4 s = n * n * n;
	float x = s.x;
	float y = s.y - 4.0 * s.x;
	float z = s.z - 4.0 * s.y + 6.0 * s.x;
	float w = 6.0 - x - y - z;
	return vec4(x, y, z, w) * (1.0 / 6.0);
}

vec4 texture_bicubic(sampler2D tex, vec2 uv, int lod) {
	vec2 size = vec2(textureSize(tex, lod));
	vec2 texel = 1.0 / size;
	uv = uv * size + 0.5;
	vec2 iuv = floor(uv);
	vec2 fuv = fract(uv);
	vec4 xc = cubic_weights(fuv.x);
	vec4 yc = cubic_weights(fuv.y);
	vec4 c = iuv.xxyy + vec2(-1.5, 0.5).xyxy;
	vec4 s = vec4(xc.xz + xc.yw, yc.xz + yc.yw);
	vec4 offset = c + vec4(xc.yw, yc.yw) / s;
	offset *= texel.xxyy;
	float sx = s.x / (s.x + s.y);
	float sy = s.z / (s.z + s.w);
	return mix(
		mix(textureLod(tex, offset.yw, float(lod)), textureLod(tex, offset.xw, float(lod)), sx),
		mix(textureLod(tex, offset.yz, float(lod)), textureLod(tex, offset.xz, float(lod)), sx), sy);
}

#ifdef USE_GLOW_FILTER_BICUBIC
#define GLOW_TEXTURE_SAMPLE(tex, uv, lod) texture_bicubic(tex, uv, lod)
#else
#define GLOW_TEXTURE_SAMPLE(tex, uv, lod) textureLod(tex, uv, float(lod))
#endif

vec3 tonemap_filmic(vec3 color, float w) {
	float A = 0.15;
	float B = 0.50;
	float C = 0.10;
	float D = 0.20;
	float E = 0.02;
	float F = 0.30;
	vec3 c = ((color * (A * color + C * B) + D * E) / (color * (A * color + B) + D * F)) - E / F;
	float cw = ((w * (A * w + C * B) + D * E) / (w * (A * w + B) + D * F)) - E / F;
	return c / cw;
}

vec3 tonemap_aces(vec3 color, float w) {
	const float exposure_bias = 0.85;
	const float A = 2.51 * exposure_bias * exposure_bias;
	const float B = 0.03 * exposure_bias;
	const float C = 2.43 * exposure_bias * exposure_bias;
	const float D = 0.59 * exposure_bias;
	const float E = 0.14;
	vec3 c = (color * (A * color + B)) / (color * (C * color + D) + E);
	float cw = (w * (A * w + B)) / (w * (C * w + D) + E);
	return c / cw;
}

vec3 tonemap_aces_fitted(vec3 color, float w) {
	const mat3 rgb_to_rrt = mat3(
		vec3(0.59719, 0.07600, 0.02840),
		vec3(0.35458, 0.90834, 0.13383),
		vec3(0.04823, 0.01566, 0.83777));
	const mat3 odt_to_rgb = mat3(
		vec3(1.60475, -0.10208, -0.00327),
		vec3(-0.53108, 1.10813, -0.07276),
		vec3(-0.07367, -0.00605, 1.07602));
	color = rgb_to_rrt * color;
	vec3 a = color * (color + 0.0245786) - 0.000090537;
	vec3 b = color * (0.983729 * color + 0.4329510) + 0.238081;
	color = odt_to_rgb * (a / b);
	vec3 wv = rgb_to_rrt * vec3(w);
	vec3 wa = wv * (wv + 0.0245786) - 0.000090537;
	vec3 wb = wv * (0.983729 * wv + 0.4329510) + 0.238081;
	return color / (odt_to_rgb * (wa / wb));
}

vec3 tonemap_reinhard(vec3 color, float w) {
	return (w * color + color) / (color * w + w);
}

vec3 linear_to_srgb(vec3 color) {
	const vec3 a = vec3(0.055);
	return mix((vec3(1.0) + a) * pow(color.rgb, vec3(1.0 / 2.4)) - a, 12.92 * color.rgb, lessThan(color.rgb, vec3(0.0031308)));
}

vec3 apply_tonemapping(vec3 color, float w) {
#ifdef USE_REINHARD_TONEMAPPER
	return tonemap_reinhard(max(vec3(0.0), color), w);
#endif
#ifdef USE_FILMIC_TONEMAPPER
	return tonemap_filmic(max(vec3(0.0), color), w);
#endif
#ifdef USE_ACES_TONEMAPPER
	return tonemap_aces(max(vec3(0.0), color), w);
#endif
#ifdef USE_ACES_FITTED_TONEMAPPER
	return tonemap_aces_fitted(max(vec3(0.0), color), w);
#endif
	return color;
}

vec3 gather_glow(sampler2D tex, vec2 uv) {
	vec3 glow = vec3(0.0);
#ifdef USE_GLOW_LEVEL1
	glow += GLOW_TEXTURE_SAMPLE(tex, uv, 1).rgb;
#endif
#ifdef USE_GLOW_LEVEL2
	glow += GLOW_TEXTURE_SAMPLE(tex, uv, 2).rgb;
#endif
#ifdef USE_GLOW_LEVEL3
	glow += GLOW_TEXTURE_SAMPLE(tex, uv, 3).rgb;
#endif
#ifdef USE_GLOW_LEVEL4
	glow += GLOW_TEXTURE_SAMPLE(tex, uv, 4).rgb;
#endif
#ifdef USE_GLOW_LEVEL5
	glow += GLOW_TEXTURE_SAMPLE(tex, uv, 5).rgb;
#endif
#ifdef USE_GLOW_LEVEL6
	glow += GLOW_TEXTURE_SAMPLE(tex, uv, 6).rgb;
#endif
#ifdef USE_GLOW_LEVEL7
	glow += GLOW_TEXTURE_SAMPLE(tex, uv, 7).rgb;
#endif
	return glow;
}

vec3 apply_glow(vec3 color, vec3 glow) {
#ifdef USE_GLOW_REPLACE
	return glow;
#endif
#ifdef USE_GLOW_SCREEN
	return max((color + glow) - (color * glow), vec3(0.0));
#endif
#ifdef USE_GLOW_SOFTLIGHT
	glow = glow * vec3(0.5) + vec3(0.5);
	color.r = glow.r <= 0.5 ? color.r - (1.0 - 2.0 * glow.r) * color.r * (1.0 - color.r) : (glow.r <= 0.25 ? 0.0 : color.r + (2.0 * glow.r - 1.0) * (sqrt(color.r) - color.r));
	color.g = glow.g <= 0.5 ? color.g - (1.0 - 2.0 * glow.g) * color.g * (1.0 - color.g) : color.g + (2.0 * glow.g - 1.0) * (sqrt(color.g) - color.g);
	color.b = glow.b <= 0.5 ? color.b - (1.0 - 2.0 * glow.b) * color.b * (1.0 - color.b) : color.b + (2.0 * glow.b - 1.0) * (sqrt(color.b) - color.b);
	return color;
#endif
	return color + glow;
}

vec3 apply_fxaa(vec3 color, float exp, vec2 uv) {
	const float FXAA_REDUCE_MIN = 1.0 / 128.0;
	const float FXAA_REDUCE_MUL = 1.0 / 8.0;
	const float FXAA_SPAN_MAX = 8.0;
	vec3 nw = textureLod(source, uv + vec2(-1.0, -1.0) * pixel_size, 0.0).rgb * exp;
	vec3 ne = textureLod(source, uv + vec2(1.0, -1.0) * pixel_size, 0.0).rgb * exp;
	vec3 sw = textureLod(source, uv + vec2(-1.0, 1.0) * pixel_size, 0.0).rgb * exp;
	vec3 se = textureLod(source, uv + vec2(1.0, 1.0) * pixel_size, 0.0).rgb * exp;
	const vec3 luma = vec3(0.299, 0.587, 0.114);
	float l_nw = dot(nw, luma);
	float l_ne = dot(ne, luma);
	float l_sw = dot(sw, luma);
	float l_se = dot(se, luma);
	float l_m = dot(color, luma);
	float l_min = min(l_m, min(min(l_nw, l_ne), min(l_sw, l_se)));
	float l_max = max(l_m, max(max(l_nw, l_ne), max(l_sw, l_se)));
	vec2 dir = vec2(-((l_nw + l_ne) - (l_sw + l_se)), (l_nw + l_sw) - (l_ne + l_se));
	float reduce = max((l_nw + l_ne + l_sw + l_se) * (0.25 * FXAA_REDUCE_MUL), FXAA_REDUCE_MIN);
	float rcp = 1.0 / (min(abs(dir.x), abs(dir.y)) + reduce);
	dir = min(vec2(FXAA_SPAN_MAX), max(vec2(-FXAA_SPAN_MAX), dir * rcp)) * pixel_size;
	vec3 a = 0.5 * exp * (textureLod(source, uv + dir * (1.0 / 3.0 - 0.5), 0.0).rgb + textureLod(source, uv + dir * (2.0 / 3.0 - 0.5), 0.0).rgb);
	vec3 b = a * 0.5 + 0.25 * exp * (textureLod(source, uv + dir * -0.5, 0.0).rgb + textureLod(source, uv + dir * 0.5, 0.0).rgb);
	float l_b = dot(b, luma);
	return (l_b < l_min || l_b > l_max) ? a : b;
}

vec3 apply_sharpen(vec3 color, vec2 uv, float exp) {
	vec3 n = textureLod(source, uv + vec2(0.0, -pixel_size.y), 0.0).rgb * exp;
	vec3 s = textureLod(source, uv + vec2(0.0, pixel_size.y), 0.0).rgb * exp;
	vec3 e = textureLod(source, uv + vec2(pixel_size.x, 0.0), 0.0).rgb * exp;
	vec3 w = textureLod(source, uv + vec2(-pixel_size.x, 0.0), 0.0).rgb * exp;
	return max(color + (4.0 * color - n - s - e - w) * sharpen_intensity * 0.25, vec3(0.0));
}

vec3 screen_space_dither(vec2 frag_coord) {
	vec3 dither = vec3(dot(vec2(171.0, 231.0), frag_coord));
	dither.rgb = fract(dither.rgb / vec3(103.0, 71.0, 97.0));
	return (dither.rgb - 0.5) / 255.0;
}

vec3 apply_bcs(vec3 color, vec3 v) {
	color = mix(vec3(0.0), color, v.x);
	color = mix(vec3(0.5), color, v.y);
	color = mix(vec3(dot(vec3(1.0), color) * 0.33333), color, v.z);
	return color;
}

vec3 apply_color_correction(vec3 color) {
	color.r = texture(color_correction, vec2(color.r, 0.0)).r;
	color.g = texture(color_correction, vec2(color.g, 0.0)).g;
	color.b = texture(color_correction, vec2(color.b, 0.0)).b;
	return color;
}

void main() {
	vec2 uv = uv_interp;
#ifdef V_FLIP
	uv.y = 1.0 - uv.y;
#endif
	vec4 color = textureLod(source, uv, 0.0);
	float full_exposure = exposure;
#ifdef USE_AUTO_EXPOSURE
	full_exposure /= texelFetch(exposure_texture, ivec2(0, 0), 0).r / auto_exposure_grey;
#endif
	color.rgb *= full_exposure;

#ifdef USE_FXAA
	color.rgb = apply_fxaa(color.rgb, full_exposure, uv);
#endif
#ifdef USE_SHARPENING
	color.rgb = apply_sharpen(color.rgb, uv, full_exposure);
#endif

	vec3 glow = gather_glow(source_glow, uv) * glow_intensity;
	color.rgb = apply_tonemapping(color.rgb, white);
#ifdef KEEP_3D_LINEAR
	color.rgb = apply_glow(color.rgb, glow);
#else
	color.rgb = linear_to_srgb(color.rgb);
	glow = linear_to_srgb(apply_tonemapping(glow, white));
	color.rgb = apply_glow(color.rgb, glow);
#endif
#ifdef USE_DEBANDING
	color.rgb += screen_space_dither(gl_FragCoord.xy);
#endif
#ifdef USE_BCS
	color.rgb = apply_bcs(color.rgb, bcs);
#endif
#ifdef USE_COLOR_CORRECTION
	color.rgb = apply_color_correction(color.rgb);
#endif
#ifdef DISABLE_ALPHA
	color.a = 1.0;
#endif
	frag_color = color;
}
`

package storage

import (
	"gles3render/internal/glapi"
	"gles3render/internal/shader"
)

// Built-in sampler units. Material textures take units from 0, so fixed
// samplers live at the top of the guaranteed range.
const (
	UnitSource      = 16
	UnitSourceCube  = 17
	UnitSkeleton    = 18
	UnitShadowAtlas = 19
	UnitDirShadow   = 20
	UnitReflection  = 21
	UnitRadiance    = 22
	UnitDepth       = 23
	UnitScreen      = 24
	UnitGIProbe1    = 25
	UnitGIProbe2    = 26
	UnitLightmap    = 27
	UnitLightmapCap = 28
	UnitAux         = 29
	UnitAux2        = 30
	UnitAux3        = 31
)

// Copy program conditionals.
const (
	CopyUseCubemap = iota
	CopyUsePanorama
	CopyUseMultiplier
	CopyLinearToSRGB
	CopyUseSection
	CopyUseDepth
	CopyCubeToDP
)

var copyConditionalNames = []string{
	"USE_CUBEMAP", "USE_PANORAMA", "USE_MULTIPLIER", "LINEAR_TO_SRGB", "USE_COPY_SECTION", "USE_DEPTH", "CUBE_TO_DP",
}

// Copy program uniforms, by Loc index.
const (
	CopyMultiplier = iota
	CopySection
	CopyFlip
	CopyZNear
	CopyZFar
	CopyZFlip
)

// Cubemap filter conditionals and uniforms.
const (
	FilterUsePanorama = iota
	FilterLowQuality
	FilterUseDualParaboloid
)

const (
	FilterRoughness = iota
	FilterFaceID
	FilterSampleCount
	FilterZFlip
)

// Particle process uniforms, by Loc index.
const (
	ParticlesTotal = iota
	ParticlesDelta
	ParticlesTime
	ParticlesSystemPhase
	ParticlesPrevSystemPhase
	ParticlesLifetime
	ParticlesExplosiveness
	ParticlesRandomness
	ParticlesEmitting
	ParticlesEmissionTransform
	ParticlesCycle
)

// ParticleStride is the byte size of one particle: color, velocity with
// active flag, custom data and three transform rows.
const ParticleStride = 6 * 16

func particlesSource() *shader.Source {
	return &shader.Source{
		Name:         "particles",
		Vertex:       particlesVertex,
		Fragment:     particlesFragment,
		Conditionals: shader.ParticlesConditionalNames,
		Uniforms: []string{"total_particles", "delta", "time", "system_phase", "prev_system_phase",
			"lifetime", "explosiveness", "randomness", "emitting", "emission_transform", "cycle"},
		MaterialBinding: 0,
		Feedback:        []string{"out_color", "out_velocity_active", "out_custom", "out_xform_1", "out_xform_2", "out_xform_3"},
		FallbackBit:     -1,
	}
}

func copySource() *shader.Source {
	return &shader.Source{
		Name:         "copy",
		Vertex:       copyVertex,
		Fragment:     copyFragment,
		Conditionals: copyConditionalNames,
		Uniforms:     []string{"multiplier", "copy_section", "flip", "z_near", "z_far", "z_flip"},
		TextureUnits: map[string]int{"source": UnitSource, "source_cube": UnitSourceCube},
		FallbackBit:  -1,
	}
}

func cubemapFilterSource() *shader.Source {
	return &shader.Source{
		Name:         "cubemap_filter",
		Vertex:       copyVertex,
		Fragment:     cubemapFilterFragment,
		Conditionals: []string{"USE_SOURCE_PANORAMA", "LOW_QUALITY", "USE_DUAL_PARABOLOID"},
		Uniforms:     []string{"roughness", "face_id", "sample_count", "z_flip"},
		TextureUnits: map[string]int{"source_panorama": UnitSource, "source_cube": UnitSourceCube},
		FallbackBit:  -1,
	}
}

const particlesVertex = `
layout(location = 0) in highp vec4 color;
layout(location = 1) in highp vec4 velocity_active;
layout(location = 2) in highp vec4 custom;
layout(location = 3) in highp vec4 xform_1;
layout(location = 4) in highp vec4 xform_2;
layout(location = 5) in highp vec4 xform_3;

uniform float total_particles;
uniform float delta;
uniform float time;
uniform float system_phase;
uniform float prev_system_phase;
uniform float lifetime;
uniform float explosiveness;
uniform float randomness;
uniform bool emitting;
uniform mat4 emission_transform;
uniform int cycle;

out highp vec4 out_color;
out highp vec4 out_velocity_active;
out highp vec4 out_custom;
out highp vec4 out_xform_1;
out highp vec4 out_xform_2;
out highp vec4 out_xform_3;

/* MATERIAL UNIFORMS */

/* VERTEX GLOBALS */

uint hash(uint x) {
	x = ((x >> uint(16)) ^ x) * uint(0x45d9f3b);
	x = ((x >> uint(16)) ^ x) * uint(0x45d9f3b);
	x = (x >> uint(16)) ^ x;
	return x;
}

void main() {
	bool apply_forces = true;
	bool apply_velocity = true;
	float local_delta = delta;
	float mass = 1.0;

	float restart_phase = float(gl_VertexID) / total_particles;
	if (randomness > 0.0) {
		uint seed = uint(cycle);
		if (restart_phase >= system_phase) {
			seed -= uint(1);
		}
		seed *= uint(total_particles);
		seed += uint(gl_VertexID);
		float random = float(hash(seed) % uint(65536)) / 65536.0;
		restart_phase += randomness * random * 1.0 / total_particles;
	}
	restart_phase *= (1.0 - explosiveness);

	bool restart = false;
	bool shader_active = velocity_active.a > 0.5;
	if (system_phase > prev_system_phase) {
		if (restart_phase >= prev_system_phase && restart_phase < system_phase) {
			restart = true;
#ifdef USE_FRACTIONAL_DELTA
			local_delta = (system_phase - restart_phase) * lifetime;
#endif
		}
	} else if (delta > 0.0) {
		if (restart_phase >= prev_system_phase) {
			restart = true;
#ifdef USE_FRACTIONAL_DELTA
			local_delta = (1.0 - restart_phase + system_phase) * lifetime;
#endif
		} else if (restart_phase < system_phase) {
			restart = true;
#ifdef USE_FRACTIONAL_DELTA
			local_delta = (system_phase - restart_phase) * lifetime;
#endif
		}
	}

	uint current_cycle = uint(cycle);
	if (system_phase < restart_phase) {
		current_cycle -= uint(1);
	}
	uint particle_number = current_cycle * uint(total_particles) + uint(gl_VertexID);
	int index = int(gl_VertexID);

	if (restart) {
		shader_active = emitting;
	}

	mat4 xform;
	if (emitting || restart) {
		xform = mat4(vec4(1.0, 0.0, 0.0, 0.0), vec4(0.0, 1.0, 0.0, 0.0), vec4(0.0, 0.0, 1.0, 0.0), vec4(0.0, 0.0, 0.0, 1.0));
	} else {
		xform = transpose(mat4(xform_1, xform_2, xform_3, vec4(0.0, 0.0, 0.0, 1.0)));
	}

	highp vec4 COLOR = color;
	highp vec3 VELOCITY = velocity_active.xyz;
	highp vec4 CUSTOM = custom;
	highp mat4 TRANSFORM = xform;
	bool RESTART = restart;
	bool ACTIVE = shader_active;
	float LIFETIME = lifetime;
	float DELTA = local_delta;
	float TIME = time;
	int INDEX = index;
	uint NUMBER = particle_number;
	mat4 EMISSION_TRANSFORM = emission_transform;

	if (shader_active) {
		{
/* VERTEX CODE */
		}
#if !defined(RENDER_MODE_DISABLE_VELOCITY)
		if (apply_velocity) {
			TRANSFORM[3].xyz += VELOCITY * DELTA;
		}
#endif
	} else {
		TRANSFORM = mat4(0.0);
	}

	out_color = COLOR;
	out_velocity_active = vec4(VELOCITY, ACTIVE ? 1.0 : 0.0);
	out_custom = CUSTOM;
	mat4 t = transpose(TRANSFORM);
	out_xform_1 = t[0];
	out_xform_2 = t[1];
	out_xform_3 = t[2];
}
`

const particlesFragment = `
/* MATERIAL UNIFORMS */

/* FRAGMENT GLOBALS */

void main() {
/* FRAGMENT CODE */
}
`

const copyVertex = `
layout(location = 0) in highp vec4 vertex_attrib;
layout(location = 4) in vec2 uv_in;

out vec2 uv_interp;
out vec3 cube_interp;

#ifdef USE_COPY_SECTION
uniform vec4 copy_section;
#endif
uniform bool flip;

void main() {
	uv_interp = uv_in;
	cube_interp = vertex_attrib.xyz;
#ifdef USE_COPY_SECTION
	uv_interp = copy_section.xy + uv_interp * copy_section.zw;
	gl_Position = vec4((copy_section.xy + (vertex_attrib.xy * 0.5 + 0.5) * copy_section.zw) * 2.0 - 1.0, 0.0, 1.0);
#else
	gl_Position = vec4(vertex_attrib.xy, 0.0, 1.0);
#endif
	if (flip) {
		uv_interp.y = 1.0 - uv_interp.y;
	}
}
`

const copyFragment = `
in vec2 uv_interp;
in vec3 cube_interp;

uniform sampler2D source;
uniform samplerCube source_cube;
uniform float multiplier;
uniform float z_near;
uniform float z_far;
uniform bool z_flip;

layout(location = 0) out vec4 frag_color;

#define M_PI 3.14159265359

vec4 texturePanorama(vec3 normal) {
	vec2 st = vec2(atan(normal.x, normal.z), acos(normal.y));
	if (st.x < 0.0) {
		st.x += M_PI * 2.0;
	}
	st /= vec2(M_PI * 2.0, M_PI);
	return textureLod(source, st, 0.0);
}

void main() {
#if defined(USE_CUBEMAP)
	vec4 color = texture(source_cube, normalize(cube_interp));
#elif defined(USE_PANORAMA)
	vec4 color = texturePanorama(normalize(cube_interp));
#elif defined(CUBE_TO_DP)
	vec3 normal = vec3(uv_interp * 2.0 - 1.0, 0.0);
	normal.z = 0.5 - 0.5 * ((normal.x * normal.x) + (normal.y * normal.y));
	normal = normalize(normal);
	if (z_flip) {
		normal.z = -normal.z;
	}
	float depth = texture(source_cube, normal).r;
	vec3 unorm = abs(normal);
	float d;
	if (unorm.x >= unorm.y && unorm.x >= unorm.z) {
		d = unorm.x;
	} else if (unorm.y >= unorm.z) {
		d = unorm.y;
	} else {
		d = unorm.z;
	}
	depth = 2.0 * depth - 1.0;
	float linear_depth = 2.0 * z_near * z_far / (z_far + z_near - depth * (z_far - z_near));
	gl_FragDepth = (linear_depth * length(normal / d)) / z_far;
	vec4 color = vec4(0.0);
#else
	vec4 color = textureLod(source, uv_interp, 0.0);
#endif

#ifdef USE_MULTIPLIER
	color.rgb *= multiplier;
#endif
#ifdef LINEAR_TO_SRGB
	color.rgb = mix(1.055 * pow(color.rgb, vec3(1.0 / 2.4)) - 0.055, 12.92 * color.rgb, lessThan(color.rgb, vec3(0.0031308)));
#endif
#ifdef USE_DEPTH
	gl_FragDepth = color.r;
#endif
	frag_color = color;
}
`

const cubemapFilterFragment = `
in vec2 uv_interp;

#ifdef USE_SOURCE_PANORAMA
uniform sampler2D source_panorama;
#else
uniform samplerCube source_cube;
#endif
uniform int face_id;
uniform float roughness;
uniform int sample_count;
uniform bool z_flip;

layout(location = 0) out vec4 frag_color;

#define M_PI 3.14159265359

vec3 texelCoordToVec(vec2 uv, int face) {
	mat3 faces[6];
	faces[0] = mat3(0.0, 0.0, -1.0, 0.0, -1.0, 0.0, 1.0, 0.0, 0.0);
	faces[1] = mat3(0.0, 0.0, 1.0, 0.0, -1.0, 0.0, -1.0, 0.0, 0.0);
	faces[2] = mat3(1.0, 0.0, 0.0, 0.0, 0.0, 1.0, 0.0, 1.0, 0.0);
	faces[3] = mat3(1.0, 0.0, 0.0, 0.0, 0.0, -1.0, 0.0, -1.0, 0.0);
	faces[4] = mat3(1.0, 0.0, 0.0, 0.0, -1.0, 0.0, 0.0, 0.0, 1.0);
	faces[5] = mat3(-1.0, 0.0, 0.0, 0.0, -1.0, 0.0, 0.0, 0.0, -1.0);
	return normalize(faces[face] * vec3(uv, 1.0));
}

vec3 importanceSampleGGX(vec2 xi, float r, vec3 n) {
	float a = r * r;
	float phi = 2.0 * M_PI * xi.x;
	float cos_theta = sqrt((1.0 - xi.y) / (1.0 + (a * a - 1.0) * xi.y));
	float sin_theta = sqrt(1.0 - cos_theta * cos_theta);
	vec3 h = vec3(sin_theta * cos(phi), sin_theta * sin(phi), cos_theta);
	vec3 up = abs(n.z) < 0.999 ? vec3(0.0, 0.0, 1.0) : vec3(1.0, 0.0, 0.0);
	vec3 tx = normalize(cross(up, n));
	vec3 ty = cross(n, tx);
	return tx * h.x + ty * h.y + n * h.z;
}

float radicalInverse(uint bits) {
	bits = (bits << 16u) | (bits >> 16u);
	bits = ((bits & 0x55555555u) << 1u) | ((bits & 0xAAAAAAAAu) >> 1u);
	bits = ((bits & 0x33333333u) << 2u) | ((bits & 0xCCCCCCCCu) >> 2u);
	bits = ((bits & 0x0F0F0F0Fu) << 4u) | ((bits & 0xF0F0F0F0u) >> 4u);
	bits = ((bits & 0x00FF00FFu) << 8u) | ((bits & 0xFF00FF00u) >> 8u);
	return float(bits) * 2.3283064365386963e-10;
}

vec4 sampleSource(vec3 dir) {
#ifdef USE_SOURCE_PANORAMA
	vec2 st = vec2(atan(dir.x, dir.z), acos(dir.y));
	if (st.x < 0.0) {
		st.x += M_PI * 2.0;
	}
	return textureLod(source_panorama, st / vec2(M_PI * 2.0, M_PI), 0.0);
#else
	return textureLod(source_cube, dir, 0.0);
#endif
}

void main() {
#ifdef USE_DUAL_PARABOLOID
	vec3 n = vec3(uv_interp * 2.0 - 1.0, 0.0);
	n.z = 0.5 - 0.5 * ((n.x * n.x) + (n.y * n.y));
	n = normalize(n);
	if (z_flip) {
		n.z = -n.z;
	}
#else
	vec3 n = texelCoordToVec(uv_interp * 2.0 - 1.0, face_id);
#endif
#ifdef LOW_QUALITY
	int samples = min(sample_count, 64);
#else
	int samples = sample_count;
#endif
	vec4 sum = vec4(0.0);
	for (int i = 0; i < samples; i++) {
		vec2 xi = vec2(float(i) / float(samples), radicalInverse(uint(i)));
		vec3 h = importanceSampleGGX(xi, roughness, n);
		vec3 l = normalize(2.0 * dot(n, h) * h - n);
		float ndotl = clamp(dot(n, l), 0.0, 1.0);
		if (ndotl > 0.0) {
			sum.rgb += sampleSource(l).rgb * ndotl;
			sum.a += ndotl;
		}
	}
	sum /= max(sum.a, 0.0001);
	frag_color = vec4(sum.rgb, 1.0);
}
`

// ── Fullscreen quad ─────────────────────────────────────────────────────────

// quad is a triangle fan covering clip space with UVs at location 4.
type quad struct {
	dev glapi.Device
	vbo glapi.Buffer
	vao glapi.VertexArray
}

func (q *quad) init(d glapi.Device) error {
	vbo, err := glapi.NewBuffers(d, 1)
	if err != nil {
		return err
	}
	vao, err := glapi.NewVertexArrays(d, 1)
	if err != nil {
		vbo.Release()
		return err
	}
	q.dev, q.vbo, q.vao = d, vbo, vao
	data := []float32{
		-1, -1, 0, 0,
		-1, 1, 0, 1,
		1, 1, 1, 1,
		1, -1, 1, 0,
	}
	d.BindVertexArray(vao.ID())
	d.BindBuffer(glapi.ARRAY_BUFFER, vbo.ID())
	d.BufferData(glapi.ARRAY_BUFFER, len(data)*4, float32Bytes(data), glapi.STATIC_DRAW)
	d.EnableVertexAttribArray(ArrayVertex)
	d.VertexAttribPointer(ArrayVertex, 2, glapi.FLOAT, false, 16, 0)
	d.EnableVertexAttribArray(ArrayTexUV)
	d.VertexAttribPointer(ArrayTexUV, 2, glapi.FLOAT, false, 16, 8)
	d.BindVertexArray(0)
	d.BindBuffer(glapi.ARRAY_BUFFER, 0)
	return nil
}

func (q *quad) release() {
	q.vao.Release()
	q.vbo.Release()
}

// DrawQuad draws the fullscreen quad with whatever program is bound.
func (s *Storage) DrawQuad() {
	s.dev.BindVertexArray(s.quad.vao.ID())
	s.dev.DrawArrays(glapi.TRIANGLE_FAN, 0, 4)
	s.dev.BindVertexArray(0)
}

// ParticlesShader returns the transform feedback program.
func (s *Storage) ParticlesShader() *shader.Shader { return s.particles }

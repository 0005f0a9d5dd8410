package opengl

import (
	"github.com/chewxy/math32"

	"gles3render/core"
	"gles3render/internal/glapi"
	"gles3render/internal/shader"
	"gles3render/internal/storage"
	gmath "gles3render/math"
)

// Sky program conditionals.
const (
	skyUseCameraFeed = iota
	skyUseYCbCr
	skyUseMRT
)

// Sky program uniforms, by Loc index.
const (
	skyInvProjection = iota
	skyRotation
	skyEnergy
)

// orthogonalSkyFOV is the field of view, in degrees, the sky is drawn with
// behind orthogonal cameras.
const orthogonalSkyFOV = 70

// skySource is the background program: a full-screen quad at the far plane
// that looks up the panorama along the view ray, or a camera feed image.
func skySource() *shader.Source {
	return &shader.Source{
		Name:         "sky",
		Vertex:       skyVertex,
		Fragment:     skyFragment,
		Conditionals: []string{"USE_CAMERA_FEED", "USE_YCBCR", "USE_MULTIPLE_RENDER_TARGETS"},
		Uniforms:     []string{"inv_projection", "sky_rotation", "energy"},
		TextureUnits: map[string]int{
			"panorama":  storage.UnitSource,
			"feed_y":    storage.UnitSource,
			"feed_cbcr": storage.UnitAux,
		},
		FallbackBit: -1,
	}
}

// The far-plane position puts every fragment behind the scene (depth = 1).
const skyVertex = `
layout(location = 0) in highp vec4 vertex_attrib;
layout(location = 4) in vec2 uv_in;

uniform highp mat4 inv_projection;

out vec2 uv_interp;
out highp vec3 view_ray;

void main() {
	uv_interp = uv_in;
	highp vec4 v = inv_projection * vec4(vertex_attrib.xy, 1.0, 1.0);
	view_ray = v.xyz / v.w;
	gl_Position = vec4(vertex_attrib.xy, 1.0, 1.0);
}
`

const skyFragment = `
in vec2 uv_interp;
in highp vec3 view_ray;

uniform highp mat4 sky_rotation;
uniform float energy;

#ifdef USE_CAMERA_FEED
uniform sampler2D feed_y;
#ifdef USE_YCBCR
uniform sampler2D feed_cbcr;
#endif
#else
uniform sampler2D panorama;
#endif

layout(location = 0) out vec4 frag_color;
#ifdef USE_MULTIPLE_RENDER_TARGETS
layout(location = 1) out vec4 specular_buffer;
layout(location = 2) out vec4 normal_mr_buffer;
layout(location = 3) out float sss_buffer;
#endif

#define M_PI 3.14159265359

void main() {
#ifdef USE_CAMERA_FEED
	vec2 uv = vec2(uv_interp.x, 1.0 - uv_interp.y);
#ifdef USE_YCBCR
	vec3 ycbcr = vec3(texture(feed_y, uv).r, texture(feed_cbcr, uv).rg - vec2(0.5));
	vec3 color = mat3(
		vec3(1.0, 1.0, 1.0),
		vec3(0.0, -0.344136, 1.772),
		vec3(1.402, -0.714136, 0.0)) * ycbcr;
#else
	vec3 color = texture(feed_y, uv).rgb;
#endif
	color = mix(pow((color + vec3(0.055)) * (1.0 / 1.055), vec3(2.4)), color * (1.0 / 12.92), lessThan(color, vec3(0.04045)));
#else
	highp vec3 dir = normalize((sky_rotation * vec4(normalize(view_ray), 0.0)).xyz);
	vec2 st = vec2(atan(dir.x, dir.z), acos(dir.y));
	if (st.x < 0.0) {
		st.x += M_PI * 2.0;
	}
	vec3 color = textureLod(panorama, st / vec2(M_PI * 2.0, M_PI), 0.0).rgb;
#endif
	frag_color = vec4(color * energy, 1.0);
#ifdef USE_MULTIPLE_RENDER_TARGETS
	specular_buffer = vec4(0.0);
	normal_mr_buffer = vec4(0.5, 0.5, 0.5, 0.0);
	sss_buffer = 0.0;
#endif
}
`

// clearTarget fills the bound framebuffer with the background of the pass.
// A pending clear request on the target wins over the environment.
func (r *Renderer) clearTarget(p *scenePass) {
	d := r.dev
	color := core.ColorBlack
	if p.rt != nil {
		color = p.rt.ClearColor
	}
	clearColor := true
	switch {
	case p.rt != nil && p.rt.ClearRequested:
		r.st.RenderTargetDisableClearRequest(p.rtEnt)
	case p.env == nil:
	case p.env.Background == storage.BackgroundClearColor:
	case p.env.Background == storage.BackgroundColor, p.env.Background == storage.BackgroundColorSky:
		color = p.env.BGColor.Mul(p.env.BGEnergy)
	case p.env.Background == storage.BackgroundSky, p.env.Background == storage.BackgroundCameraFeed:
		color = core.ColorBlack
	default:
		clearColor = false
	}
	if p.rt != nil && p.rt.Flags[storage.RenderTargetTransparent] {
		color.A = 0
	} else {
		color.A = 1
	}

	d.DepthMask(true)
	d.ColorMask(true, true, true, true)
	d.ClearDepth(1)
	if !clearColor {
		d.Clear(glapi.DEPTH_BUFFER_BIT)
		return
	}
	if p.mrt {
		d.ClearBufferfv(glapi.COLOR, 0, []float32{color.R, color.G, color.B, color.A})
		zero := []float32{0, 0, 0, 0}
		for i := int32(1); i < 4; i++ {
			d.ClearBufferfv(glapi.COLOR, i, zero)
		}
		d.Clear(glapi.DEPTH_BUFFER_BIT)
		return
	}
	d.ClearColor(color.R, color.G, color.B, color.A)
	d.Clear(glapi.COLOR_BUFFER_BIT | glapi.DEPTH_BUFFER_BIT)
}

// drawSky draws the environment panorama behind the opaque geometry.
func (r *Renderer) drawSky(p *scenePass) {
	if p.env == nil || !p.env.IsSkyVisible() || p.env.Sky.IsNull() || p.additive {
		return
	}
	sk := r.st.Sky(p.env.Sky)
	if sk == nil {
		return
	}
	pano := r.st.ResolveTexture(sk.Panorama)
	if pano == nil || !pano.Active {
		return
	}

	proj := p.cam.Projection
	if fov := p.env.SkyCustomFOV; fov > 0 || p.cam.Orthogonal {
		if fov <= 0 {
			fov = orthogonalSkyFOV
		}
		aspect := float32(max(p.width, 1)) / float32(max(p.height, 1))
		proj = gmath.Mat4Perspective(fov*math32.Pi/180, aspect, 0.05, 100)
	}

	sh := r.sky
	sh.SetConditionals(0)
	sh.SetConditional(skyUseMRT, p.mrt)
	if _, err := sh.Bind(); err != nil {
		core.LogDebug("renderer: sky: %v", err)
		return
	}
	r.bindTex(storage.UnitSource, pano.Target, pano.ID())
	sh.UniformMat4(skyInvProjection, proj.Inverse().Flat())
	sh.UniformMat4(skyRotation, p.cam.Transform.Mul(p.env.SkyOrientation.Inverse()).Flat())
	sh.Uniform1f(skyEnergy, p.env.BGEnergy)

	d := r.dev
	d.Enable(glapi.DEPTH_TEST)
	d.DepthFunc(glapi.LEQUAL)
	d.DepthMask(false)
	d.Disable(glapi.BLEND)
	d.Disable(glapi.CULL_FACE)
	d.ColorMask(true, true, true, true)
	r.st.DrawQuad()
	r.info.DrawCalls++
	d.DepthMask(true)
	sh.Unbind()
}

// drawCameraFeed fills the background with the camera feed image of the
// environment. Y/CbCr feeds are converted to RGB in the shader.
func (r *Renderer) drawCameraFeed(p *scenePass) {
	if p.env == nil || p.env.Background != storage.BackgroundCameraFeed || r.feed == nil {
		return
	}
	y, cbcr, ycbcr, ok := r.feed.FeedTextures(p.env.CameraFeedID)
	if !ok || y == 0 {
		return
	}
	sh := r.sky
	sh.SetConditionals(0)
	sh.SetConditional(skyUseCameraFeed, true)
	sh.SetConditional(skyUseYCbCr, ycbcr)
	sh.SetConditional(skyUseMRT, p.mrt)
	if _, err := sh.Bind(); err != nil {
		core.LogDebug("renderer: camera feed: %v", err)
		return
	}
	r.bindTex(storage.UnitSource, glapi.TEXTURE_2D, y)
	if ycbcr {
		r.bindTex(storage.UnitAux, glapi.TEXTURE_2D, cbcr)
	}
	sh.Uniform1f(skyEnergy, 1)
	sh.UniformMat4(skyInvProjection, gmath.Mat4Identity().Flat())

	d := r.dev
	d.Disable(glapi.DEPTH_TEST)
	d.DepthMask(false)
	d.Disable(glapi.BLEND)
	d.Disable(glapi.CULL_FACE)
	r.st.DrawQuad()
	r.info.DrawCalls++
	d.DepthMask(true)
	d.Enable(glapi.DEPTH_TEST)
	sh.Unbind()
}

package core

import "github.com/chewxy/math32"

// Color is a linear or sRGB RGBA color; which one is implied by context.
// Material parameters tagged as colors are authored in sRGB and converted
// with ToLinear before being packed for spatial shaders.
type Color struct {
	R, G, B, A float32
}

var (
	ColorWhite       = Color{1, 1, 1, 1}
	ColorBlack       = Color{0, 0, 0, 1}
	ColorTransparent = Color{0, 0, 0, 0}
)

func srgbToLinear(c float32) float32 {
	if c < 0.04045 {
		return c * (1.0 / 12.92)
	}
	return math32.Pow((c+0.055)/1.055, 2.4)
}

func linearToSRGB(c float32) float32 {
	if c < 0.0031308 {
		return 12.92 * c
	}
	return (1.0+0.055)*math32.Pow(c, 1.0/2.4) - 0.055
}

// ToLinear converts the RGB channels from sRGB to linear; alpha is kept.
func (c Color) ToLinear() Color {
	return Color{srgbToLinear(c.R), srgbToLinear(c.G), srgbToLinear(c.B), c.A}
}

// ToSRGB converts the RGB channels from linear to sRGB; alpha is kept.
func (c Color) ToSRGB() Color {
	return Color{linearToSRGB(c.R), linearToSRGB(c.G), linearToSRGB(c.B), c.A}
}

// Mul scales the RGB channels.
func (c Color) Mul(s float32) Color {
	return Color{c.R * s, c.G * s, c.B * s, c.A}
}

// Luminance returns the Rec.709 luma of the RGB channels.
func (c Color) Luminance() float32 {
	return c.R*0.2126 + c.G*0.7152 + c.B*0.0722
}

// Array returns the color as an RGBA array.
func (c Color) Array() [4]float32 {
	return [4]float32{c.R, c.G, c.B, c.A}
}

// Rect2 is a float rectangle, used for normalized atlas regions.
type Rect2 struct {
	X, Y, Width, Height float32
}

// Rect2i is an integer pixel rectangle (viewports, atlas slots).
type Rect2i struct {
	X, Y, Width, Height int
}

// Normalized divides the rectangle by the atlas size.
func (r Rect2i) Normalized(size int) Rect2 {
	s := float32(size)
	return Rect2{float32(r.X) / s, float32(r.Y) / s, float32(r.Width) / s, float32(r.Height) / s}
}

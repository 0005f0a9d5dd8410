package glfake

import "gles3render/internal/glapi"

// Image is one stored texture level (or cube face level).
type Image struct {
	Width, Height, Depth int32
	InternalFormat       int32
	Format, Type         uint32
	Compressed           bool
	Data                 []byte
}

// Texture is the recorded state of a texture name.
type Texture struct {
	Target    uint32
	Images    map[ImageKey]*Image
	Params    map[uint32]float32
	Mipmapped bool
}

// ImageKey addresses a level of a target (cube faces are separate targets).
type ImageKey struct {
	Target uint32
	Level  int32
}

func newTexture() *Texture {
	return &Texture{Images: map[ImageKey]*Image{}, Params: map[uint32]float32{}}
}

func isCubeFace(target uint32) bool {
	return target >= glapi.TEXTURE_CUBE_MAP_POSITIVE_X && target <= glapi.TEXTURE_CUBE_MAP_NEGATIVE_Z
}

func (d *Device) boundTextureLocked(target uint32) *Texture {
	if isCubeFace(target) {
		target = glapi.TEXTURE_CUBE_MAP
	}
	return d.textures[d.units[d.unit][target]]
}

// PixelSize returns bytes per pixel for an uncompressed format/type pair,
// or 0 when unknown.
func PixelSize(format, xtype uint32) int {
	comps := map[uint32]int{
		glapi.RED: 1, glapi.RG: 2, glapi.RGB: 3, glapi.RGBA: 4,
		glapi.DEPTH_COMPONENT: 1, glapi.RED_INTEGER: 1, glapi.RGBA_INTEGER: 4,
	}[format]
	switch xtype {
	case glapi.UNSIGNED_BYTE, glapi.BYTE:
		return comps
	case glapi.HALF_FLOAT, glapi.UNSIGNED_SHORT, glapi.SHORT:
		return comps * 2
	case glapi.FLOAT, glapi.UNSIGNED_INT, glapi.INT:
		return comps * 4
	case glapi.UNSIGNED_SHORT_4_4_4_4, glapi.UNSIGNED_SHORT_5_6_5:
		return 2
	case glapi.UNSIGNED_INT_2_10_10_10_REV, glapi.UNSIGNED_INT_5_9_9_9_REV, glapi.UNSIGNED_INT_24_8:
		return 4
	}
	return 0
}

func (d *Device) ActiveTexture(unit uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unit = unit - glapi.TEXTURE0
}

func (d *Device) BindTexture(target, id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.units[d.unit]
	if u == nil {
		u = map[uint32]uint32{}
		d.units[d.unit] = u
	}
	u[target] = id
	if t := d.textures[id]; t != nil && t.Target == 0 {
		t.Target = target
	}
}

func (d *Device) storeLocked(target uint32, level int32, img *Image) {
	t := d.boundTextureLocked(target)
	if t == nil {
		d.PendingError = glapi.INVALID_OPERATION
		return
	}
	t.Images[ImageKey{Target: target, Level: level}] = img
}

func (d *Device) TexImage2D(target uint32, level, internalFormat, width, height int32, format, xtype uint32, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img := &Image{Width: width, Height: height, Depth: 1, InternalFormat: internalFormat, Format: format, Type: xtype}
	img.Data = make([]byte, int(width*height)*PixelSize(format, xtype))
	copy(img.Data, data)
	d.storeLocked(target, level, img)
}

func (d *Device) TexImage3D(target uint32, level, internalFormat, width, height, depth int32, format, xtype uint32, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img := &Image{Width: width, Height: height, Depth: depth, InternalFormat: internalFormat, Format: format, Type: xtype}
	img.Data = make([]byte, int(width*height*depth)*PixelSize(format, xtype))
	copy(img.Data, data)
	d.storeLocked(target, level, img)
}

func (d *Device) subImageLocked(target uint32, level, x, y, z, width, height, depth int32, data []byte) {
	t := d.boundTextureLocked(target)
	if t == nil {
		d.PendingError = glapi.INVALID_OPERATION
		return
	}
	img := t.Images[ImageKey{Target: target, Level: level}]
	if img == nil || img.Compressed {
		d.PendingError = glapi.INVALID_OPERATION
		return
	}
	if x < 0 || y < 0 || z < 0 || x+width > img.Width || y+height > img.Height || z+depth > img.Depth {
		d.PendingError = glapi.INVALID_VALUE
		return
	}
	ps := PixelSize(img.Format, img.Type)
	row := int(width) * ps
	for k := int32(0); k < depth; k++ {
		for j := int32(0); j < height; j++ {
			src := (int(k*height+j) * row)
			dst := (int((z+k)*img.Height*img.Width+(y+j)*img.Width+x) * ps)
			if src+row > len(data) {
				return
			}
			copy(img.Data[dst:dst+row], data[src:src+row])
		}
	}
}

func (d *Device) TexSubImage2D(target uint32, level, x, y, width, height int32, format, xtype uint32, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subImageLocked(target, level, x, y, 0, width, height, 1, data)
}

func (d *Device) TexSubImage3D(target uint32, level, x, y, z, width, height, depth int32, format, xtype uint32, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subImageLocked(target, level, x, y, z, width, height, depth, data)
}

func (d *Device) CompressedTexImage2D(target uint32, level int32, internalFormat uint32, width, height int32, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.storeLocked(target, level, &Image{Width: width, Height: height, Depth: 1, InternalFormat: int32(internalFormat),
		Compressed: true, Data: append([]byte(nil), data...)})
}

func (d *Device) CompressedTexImage3D(target uint32, level int32, internalFormat uint32, width, height, depth int32, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.storeLocked(target, level, &Image{Width: width, Height: height, Depth: depth, InternalFormat: int32(internalFormat),
		Compressed: true, Data: append([]byte(nil), data...)})
}

func (d *Device) TexParameteri(target, pname uint32, v int32) {
	d.TexParameterf(target, pname, float32(v))
}

func (d *Device) TexParameterf(target, pname uint32, v float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t := d.boundTextureLocked(target); t != nil {
		t.Params[pname] = v
	}
}

func (d *Device) TexParameterfv(target, pname uint32, v []float32) {
	if len(v) > 0 {
		d.TexParameterf(target, pname, v[0])
	}
}

func (d *Device) GenerateMipmap(target uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t := d.boundTextureLocked(target); t != nil {
		t.Mipmapped = true
	}
}

func (d *Device) GetTexImage(target uint32, level int32, format, xtype uint32, out []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.boundTextureLocked(target)
	if t == nil {
		return
	}
	if img := t.Images[ImageKey{Target: target, Level: level}]; img != nil {
		copy(out, img.Data)
	}
}

// TextureState returns the recorded state of a texture name, or nil.
func (d *Device) TextureState(id uint32) *Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.textures[id]
}

// TextureImage returns a copy of one stored level, or nil.
func (d *Device) TextureImage(id, target uint32, level int32) *Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.textures[id]
	if t == nil {
		return nil
	}
	img := t.Images[ImageKey{Target: target, Level: level}]
	if img == nil {
		return nil
	}
	c := *img
	c.Data = append([]byte(nil), img.Data...)
	return &c
}

// WriteTexture overwrites a stored level directly, standing in for a render
// pass whose output a test wants to inspect.
func (d *Device) WriteTexture(id, target uint32, level int32, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t := d.textures[id]; t != nil {
		if img := t.Images[ImageKey{Target: target, Level: level}]; img != nil {
			copy(img.Data, data)
		}
	}
}

package render

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/vector"
)

// kappa places cubic control points for a quarter circle.
const kappa = 0.5522847

// fillRoundedRect paints r with rounded corners of the given radius. Parts of
// r outside dst are clipped.
func fillRoundedRect(dst draw.Image, r image.Rectangle, radius float32, c color.Color) {
	z, clip, ox, oy := clipRasterizer(dst, r)
	if z == nil {
		return
	}
	roundedPath(z, ox, oy, ox+float32(r.Dx()), oy+float32(r.Dy()), radius, false)
	z.Draw(dst, clip, image.NewUniform(c), image.Point{})
}

// strokeRoundedRect paints a ring of width w just inside r.
func strokeRoundedRect(dst draw.Image, r image.Rectangle, radius, w float32, c color.Color) {
	if w <= 0 {
		return
	}
	fw, fh := float32(r.Dx()), float32(r.Dy())
	if 2*w >= fw || 2*w >= fh {
		fillRoundedRect(dst, r, radius, c)
		return
	}
	z, clip, ox, oy := clipRasterizer(dst, r)
	if z == nil {
		return
	}
	roundedPath(z, ox, oy, ox+fw, oy+fh, radius, false)
	inner := radius - w
	if inner < 0 {
		inner = 0
	}
	// Opposite winding cuts the hole.
	roundedPath(z, ox+w, oy+w, ox+fw-w, oy+fh-w, inner, true)
	z.Draw(dst, clip, image.NewUniform(c), image.Point{})
}

// clipRasterizer returns a rasterizer covering the part of r inside dst, that
// clip rectangle, and the position of r.Min in rasterizer space. z is nil when
// nothing of r is visible.
func clipRasterizer(dst draw.Image, r image.Rectangle) (z *vector.Rasterizer, clip image.Rectangle, ox, oy float32) {
	clip = r.Intersect(dst.Bounds())
	if clip.Empty() {
		return nil, clip, 0, 0
	}
	z = vector.NewRasterizer(clip.Dx(), clip.Dy())
	return z, clip, float32(r.Min.X - clip.Min.X), float32(r.Min.Y - clip.Min.Y)
}

func roundedPath(z *vector.Rasterizer, x0, y0, x1, y1, radius float32, reverse bool) {
	if limit := min(x1-x0, y1-y0) / 2; radius > limit {
		radius = limit
	}
	k := radius * kappa
	if !reverse {
		z.MoveTo(x0+radius, y0)
		z.LineTo(x1-radius, y0)
		z.CubeTo(x1-radius+k, y0, x1, y0+radius-k, x1, y0+radius)
		z.LineTo(x1, y1-radius)
		z.CubeTo(x1, y1-radius+k, x1-radius+k, y1, x1-radius, y1)
		z.LineTo(x0+radius, y1)
		z.CubeTo(x0+radius-k, y1, x0, y1-radius+k, x0, y1-radius)
		z.LineTo(x0, y0+radius)
		z.CubeTo(x0, y0+radius-k, x0+radius-k, y0, x0+radius, y0)
		z.ClosePath()
		return
	}
	z.MoveTo(x0+radius, y0)
	z.CubeTo(x0+radius-k, y0, x0, y0+radius-k, x0, y0+radius)
	z.LineTo(x0, y1-radius)
	z.CubeTo(x0, y1-radius+k, x0+radius-k, y1, x0+radius, y1)
	z.LineTo(x1-radius, y1)
	z.CubeTo(x1-radius+k, y1, x1, y1-radius+k, x1, y1-radius)
	z.LineTo(x1, y0+radius)
	z.CubeTo(x1, y0+radius-k, x1-radius+k, y0, x1-radius, y0)
	z.ClosePath()
}

func lerp(a, b uint8, p float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*p + 0.5)
}

func gray(v uint8) color.RGBA { return color.RGBA{v, v, v, 255} }

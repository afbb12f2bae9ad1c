package render

import (
	"image"
	"image/color"

	"drmplay/kms"

	xdraw "golang.org/x/image/draw"
)

// pixelOrder is the byte order of a 32-bit pixel in mapped memory.
type pixelOrder int

const (
	orderBGRX pixelOrder = iota // XRGB8888 / ARGB8888 on little endian
	orderRGBX                   // XBGR8888 / ABGR8888
)

// orderFor maps a drawable format to its memory byte order. The 10-bit
// formats are scanout-negotiable but not drawable by this canvas.
func orderFor(format uint32) (pixelOrder, bool) {
	switch format {
	case kms.FormatXRGB8888, kms.FormatARGB8888:
		return orderBGRX, true
	case kms.FormatXBGR8888, kms.FormatABGR8888:
		return orderRGBX, true
	default:
		return 0, false
	}
}

// Canvas is a drawable view of a mapped scanout buffer.
type Canvas struct {
	pix    []byte
	stride int
	w, h   int
	order  pixelOrder
}

func newCanvas(pix []byte, stride, w, h int, order pixelOrder) *Canvas {
	return &Canvas{pix: pix, stride: stride, w: w, h: h, order: order}
}

func (c *Canvas) ColorModel() color.Model { return color.RGBAModel }

func (c *Canvas) Bounds() image.Rectangle { return image.Rect(0, 0, c.w, c.h) }

func (c *Canvas) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= c.w || y >= c.h {
		return color.RGBA{}
	}
	i := y*c.stride + x*4
	if c.order == orderBGRX {
		return color.RGBA{R: c.pix[i+2], G: c.pix[i+1], B: c.pix[i], A: 0xff}
	}
	return color.RGBA{R: c.pix[i], G: c.pix[i+1], B: c.pix[i+2], A: 0xff}
}

func (c *Canvas) Set(x, y int, col color.Color) {
	if x < 0 || y < 0 || x >= c.w || y >= c.h {
		return
	}
	r, g, b, _ := col.RGBA()
	i := y*c.stride + x*4
	if c.order == orderBGRX {
		c.pix[i] = uint8(b >> 8)
		c.pix[i+1] = uint8(g >> 8)
		c.pix[i+2] = uint8(r >> 8)
	} else {
		c.pix[i] = uint8(r >> 8)
		c.pix[i+1] = uint8(g >> 8)
		c.pix[i+2] = uint8(b >> 8)
	}
	c.pix[i+3] = 0xff
}

// Clear fills the whole canvas with col.
func (c *Canvas) Clear(col color.Color) {
	for y := 0; y < c.h; y++ {
		for x := 0; x < c.w; x++ {
			c.Set(x, y, col)
		}
	}
}

// Blit scales src onto the canvas, preserving aspect ratio and centering
// (letterboxed into whatever Clear left behind).
func (c *Canvas) Blit(src image.Image) {
	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 || c.w == 0 || c.h == 0 {
		return
	}

	dw, dh := c.w, c.h
	if sb.Dx()*dh > sb.Dy()*dw {
		dh = sb.Dy() * dw / sb.Dx()
	} else {
		dw = sb.Dx() * dh / sb.Dy()
	}
	x0 := (c.w - dw) / 2
	y0 := (c.h - dh) / 2

	xdraw.ApproxBiLinear.Scale(c, image.Rect(x0, y0, x0+dw, y0+dh), src, sb, xdraw.Src, nil)
}

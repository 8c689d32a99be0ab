package raster

import (
	"image"
	"image/color"
	"image/draw"
	"io"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
)

// RenderOverlay draws band 0 as a grayscale ramp stretched between s.Min and s.Max.
// No-data cells are transparent. The longer side is scaled down to maxSize when it exceeds it.
func RenderOverlay(g *Grid, s Summary, maxSize int) (image.Image, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	src := image.NewNRGBA(image.Rect(0, 0, g.Width, g.Height))
	span := s.Max - s.Min

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := g.Bands[0][y*g.Width+x]
			if g.isNoData(v) {
				continue
			}

			level := uint8(0)
			if span > 0 {
				t := (v - s.Min) / span
				t = max(0, min(1, t))
				level = uint8(t*254) + 1
			}
			src.SetNRGBA(x, y, color.NRGBA{R: level, G: level, B: level, A: 255})
		}
	}

	if maxSize <= 0 || (g.Width <= maxSize && g.Height <= maxSize) {
		return src, nil
	}

	w, h := maxSize, maxSize
	if g.Width > g.Height {
		h = max(1, g.Height*maxSize/g.Width)
	} else {
		w = max(1, g.Width*maxSize/g.Height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	return dst, nil
}

// EncodeWebP writes img as a lossy WebP.
func EncodeWebP(w io.Writer, img image.Image) error {
	return webp.Encode(w, img, &webp.Options{Lossless: false, Quality: 85})
}

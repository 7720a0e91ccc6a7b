package transcoder

import (
	"image"

	"github.com/disintegration/imaging"
)

// applyOrientation rewrites pixel data so it matches the display orientation
// encoded in the EXIF tag (values 2..8; 1 is identity).
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		// 90 degrees clockwise
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// fitDown scales the image down to fit within maxW x maxH (either may be 0,
// meaning unbounded on that axis), preserving aspect ratio with a Lanczos
// filter. Images already inside the bounds are returned unchanged; this
// never upscales.
func fitDown(img image.Image, maxW, maxH int) image.Image {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w == 0 || h == 0 || (maxW <= 0 && maxH <= 0) {
		return img
	}

	ratio := 1.0
	if maxW > 0 {
		if r := float64(w) / float64(maxW); r > ratio {
			ratio = r
		}
	}
	if maxH > 0 {
		if r := float64(h) / float64(maxH); r > ratio {
			ratio = r
		}
	}
	if ratio <= 1 {
		return img
	}

	newW := int(float64(w) / ratio)
	newH := int(float64(h) / ratio)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	return imaging.Resize(img, newW, newH, imaging.Lanczos)
}

// normalizeMode converts deep, paletted and CMYK sources to 8-bit NRGBA so
// the encoder only ever sees plain RGB/RGBA data. Native 8-bit formats
// (NRGBA, RGBA, YCbCr) pass through untouched.
func normalizeMode(img image.Image) image.Image {
	switch img.(type) {
	case *image.Gray16, *image.CMYK, *image.Paletted, *image.NRGBA64, *image.RGBA64:
		return imaging.Clone(img)
	default:
		return img
	}
}

// isOpaque reports whether the image carries no transparency. Formats
// without an alpha channel are always opaque.
func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return true
}

// Package transcoder implements the image to WebP conversion pipeline:
// decode, orientation fix, downscale, color-mode normalization, encode.
// It holds no shared state; every call is independent.
package transcoder

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"

	_ "image/jpeg"
	_ "image/png"

	_ "github.com/gen2brain/heic"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultQuality is used when the caller does not supply one.
	DefaultQuality = 72

	defaultPNGOpaqueQuality = 90
)

// Options controls a single conversion. The zero value encodes with
// DefaultQuality and per-format losslessness, keeping metadata.
type Options struct {
	Quality          int  // lossy quality, clamped into [1,100]; 0 means DefaultQuality
	MaxWidth         int  // downscale bound, 0 = unbounded; never upscales
	MaxHeight        int  // downscale bound, 0 = unbounded
	ForceLossless    bool // supersede the per-format default (batch tool)
	StripMetadata    bool // drop ICC profile and EXIF from the output
	PNGOpaqueQuality int  // encoder hint for opaque PNG sources; 0 means 90
}

// DecodeError reports a source that could not be read or decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.Path, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a failure while encoding or writing the destination.
// The destination file may exist in a partial state; callers must treat any
// non-nil result as "no valid output produced".
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string { return fmt.Sprintf("encode %s: %v", e.Path, e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

// Transcode converts the image at src into a WebP file at dst, creating
// parent directories as needed. Exactly one file is written on success.
func Transcode(src, dst string, opts Options) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return &DecodeError{Path: src, Err: err}
	}

	ext := strings.ToLower(filepath.Ext(src))
	meta := extractMetadata(data, ext)

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return &DecodeError{Path: src, Err: err}
	}

	if meta.orientation > 1 {
		img = applyOrientation(img, meta.orientation)
		// The pixels now match display orientation; reset the tag so it
		// cannot be applied a second time downstream.
		meta.exif = patchOrientation(meta.exif)
	}

	img = fitDown(img, opts.MaxWidth, opts.MaxHeight)
	img = normalizeMode(img)
	opaque := isOpaque(img)

	params := paramsFor(ext, opts, opaque)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{
		Lossless: params.lossless,
		Quality:  params.quality,
		Exact:    params.exact,
	}); err != nil {
		return &EncodeError{Path: dst, Err: err}
	}

	out := buf.Bytes()
	if !opts.StripMetadata && !meta.empty() {
		b := img.Bounds()
		out, err = embedMetadata(out, meta, b.Dx(), b.Dy(), !opaque)
		if err != nil {
			return &EncodeError{Path: dst, Err: err}
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &EncodeError{Path: dst, Err: err}
	}
	if err := os.WriteFile(dst, out, 0o644); err != nil {
		return &EncodeError{Path: dst, Err: err}
	}
	return nil
}

// formatFamily picks encode parameters by source format. Adding a format is
// a table edit in familyByExt.
type formatFamily int

const (
	familyPhotographic    formatFamily = iota // lossy encode at configured quality
	familyLosslessGraphic                     // always lossless
	familyOther                               // unknown source, lossy fallback
)

var familyByExt = map[string]formatFamily{
	".jpg":   familyPhotographic,
	".jpeg":  familyPhotographic,
	".heic":  familyPhotographic,
	".heif":  familyPhotographic,
	".heics": familyPhotographic,
	".heifs": familyPhotographic,
	".png":   familyLosslessGraphic,
}

func familyOf(ext string) formatFamily {
	if f, ok := familyByExt[ext]; ok {
		return f
	}
	return familyOther
}

type encodeParams struct {
	lossless bool
	quality  float32
	exact    bool
}

func paramsFor(ext string, opts Options, opaque bool) encodeParams {
	quality := ClampQuality(opts.Quality)

	if opts.ForceLossless {
		return encodeParams{lossless: true, quality: float32(quality), exact: !opaque}
	}

	switch familyOf(ext) {
	case familyLosslessGraphic:
		p := encodeParams{lossless: true, exact: !opaque}
		if opaque {
			// Opaque PNG sources compress noticeably better with this
			// effort hint; alpha-bearing ones keep the encoder default.
			hint := opts.PNGOpaqueQuality
			if hint <= 0 {
				hint = defaultPNGOpaqueQuality
			}
			p.quality = float32(hint)
		}
		return p
	default:
		return encodeParams{lossless: false, quality: float32(quality)}
	}
}

// ClampQuality forces q into [1,100], substituting DefaultQuality for an
// absent value.
func ClampQuality(q int) int {
	if q == 0 {
		return DefaultQuality
	}
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

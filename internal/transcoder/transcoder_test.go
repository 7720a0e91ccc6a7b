package transcoder

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func writeJPEG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func decodeFile(t *testing.T, path string) image.Image {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, "webp", format)
	return img
}

func TestTranscodeJPEG(t *testing.T) {
	dir := t.TempDir()
	src := writeJPEG(t, dir, "photo.jpg", testImage(64, 48))
	dst := filepath.Join(dir, "out", "photo.webp")

	require.NoError(t, Transcode(src, dst, Options{Quality: 80}))

	out := decodeFile(t, dst)
	assert.Equal(t, 64, out.Bounds().Dx())
	assert.Equal(t, 48, out.Bounds().Dy())
}

func TestTranscodePNG(t *testing.T) {
	dir := t.TempDir()
	src := writePNG(t, dir, "graphic.png", testImage(32, 32))
	dst := filepath.Join(dir, "graphic.webp")

	require.NoError(t, Transcode(src, dst, Options{}))

	out := decodeFile(t, dst)
	assert.Equal(t, 32, out.Bounds().Dx())
}

func TestTranscodeDownscales(t *testing.T) {
	dir := t.TempDir()
	src := writeJPEG(t, dir, "big.jpg", testImage(200, 100))
	dst := filepath.Join(dir, "big.webp")

	require.NoError(t, Transcode(src, dst, Options{MaxWidth: 50}))

	out := decodeFile(t, dst)
	assert.Equal(t, 50, out.Bounds().Dx())
	assert.Equal(t, 25, out.Bounds().Dy())
}

// jpegWithOrientation splices an APP1 Exif segment carrying the given
// orientation right after the SOI marker of a plain encoded JPEG.
func jpegWithOrientation(t *testing.T, img image.Image, orientation uint16) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	data := buf.Bytes()

	app1 := append(append([]byte(nil), exifPrefix...), buildTIFF(orientation)...)
	var out bytes.Buffer
	out.Write(data[:2])
	out.Write([]byte{0xFF, 0xE1})
	binary.Write(&out, binary.BigEndian, uint16(len(app1)+2))
	out.Write(app1)
	out.Write(data[2:])
	return out.Bytes()
}

func TestTranscodeAppliesOrientation(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "rotated.jpg")
	require.NoError(t, os.WriteFile(src, jpegWithOrientation(t, testImage(64, 32), 6), 0o644))
	dst := filepath.Join(dir, "rotated.webp")

	require.NoError(t, Transcode(src, dst, Options{}))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)

	// Orientation 6 is a 90° clockwise turn: the output swaps dimensions.
	out, err := webp.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 32, out.Bounds().Dx())
	assert.Equal(t, 64, out.Bounds().Dy())

	// The carried EXIF must read "normal" so the turn is never applied twice.
	chunks, err := parseWebP(data)
	require.NoError(t, err)
	var exif []byte
	for _, c := range chunks {
		if c.fourCC == "EXIF" {
			exif = c.payload
		}
	}
	require.NotEmpty(t, exif, "EXIF chunk must be carried into the output")
	assert.Equal(t, 1, exifOrientation(exif))
}

func TestApplyOrientation(t *testing.T) {
	src := testImage(4, 2)

	tests := []struct {
		orientation  int
		wantW, wantH int
	}{
		{1, 4, 2}, {2, 4, 2}, {3, 4, 2}, {4, 4, 2},
		{5, 2, 4}, {6, 2, 4}, {7, 2, 4}, {8, 2, 4},
	}
	for _, tt := range tests {
		got := applyOrientation(src, tt.orientation)
		assert.Equal(t, tt.wantW, got.Bounds().Dx(), "orientation %d width", tt.orientation)
		assert.Equal(t, tt.wantH, got.Bounds().Dy(), "orientation %d height", tt.orientation)
	}

	// Orientation 2 mirrors horizontally: the top-right pixel moves top-left.
	flipped := applyOrientation(src, 2)
	assert.Equal(t, src.At(3, 0), flipped.At(0, 0))
}

func TestTranscodeMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := Transcode(filepath.Join(dir, "nope.jpg"), filepath.Join(dir, "nope.webp"), Options{})

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestTranscodeCorruptSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(src, []byte("this is not an image"), 0o644))

	err := Transcode(src, filepath.Join(dir, "broken.webp"), Options{})

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	_, statErr := os.Stat(filepath.Join(dir, "broken.webp"))
	assert.True(t, os.IsNotExist(statErr), "no output on decode failure")
}

func TestFitDown(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		maxW, maxH   int
		wantW, wantH int
	}{
		{"unbounded", 100, 50, 0, 0, 100, 50},
		{"inside bounds", 100, 50, 200, 200, 100, 50},
		{"never upscales", 10, 10, 1000, 1000, 10, 10},
		{"width bound", 200, 100, 100, 0, 100, 50},
		{"height bound", 200, 100, 0, 50, 100, 50},
		{"tightest bound wins", 400, 200, 200, 50, 100, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fitDown(testImage(tt.w, tt.h), tt.maxW, tt.maxH)
			assert.Equal(t, tt.wantW, got.Bounds().Dx())
			assert.Equal(t, tt.wantH, got.Bounds().Dy())
		})
	}
}

func TestParamsFor(t *testing.T) {
	tests := []struct {
		name   string
		ext    string
		opts   Options
		opaque bool
		want   encodeParams
	}{
		{
			name: "jpeg is lossy at requested quality",
			ext:  ".jpg", opts: Options{Quality: 80}, opaque: true,
			want: encodeParams{lossless: false, quality: 80},
		},
		{
			name: "jpeg defaults quality",
			ext:  ".jpeg", opts: Options{}, opaque: true,
			want: encodeParams{lossless: false, quality: DefaultQuality},
		},
		{
			name: "heic is lossy",
			ext:  ".heic", opts: Options{Quality: 60}, opaque: true,
			want: encodeParams{lossless: false, quality: 60},
		},
		{
			name: "opaque png is lossless with effort hint",
			ext:  ".png", opts: Options{Quality: 80}, opaque: true,
			want: encodeParams{lossless: true, quality: 90},
		},
		{
			name: "transparent png keeps exact alpha",
			ext:  ".png", opts: Options{}, opaque: false,
			want: encodeParams{lossless: true, quality: 0, exact: true},
		},
		{
			name: "unknown extension falls back to lossy",
			ext:  ".bmp", opts: Options{Quality: 50}, opaque: true,
			want: encodeParams{lossless: false, quality: 50},
		},
		{
			name: "force lossless overrides family",
			ext:  ".jpg", opts: Options{Quality: 70, ForceLossless: true}, opaque: true,
			want: encodeParams{lossless: true, quality: 70},
		},
		{
			name: "png opaque hint is configurable",
			ext:  ".png", opts: Options{PNGOpaqueQuality: 75}, opaque: true,
			want: encodeParams{lossless: true, quality: 75},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, paramsFor(tt.ext, tt.opts, tt.opaque))
		})
	}
}

func TestClampQuality(t *testing.T) {
	assert.Equal(t, DefaultQuality, ClampQuality(0))
	assert.Equal(t, 1, ClampQuality(-5))
	assert.Equal(t, 100, ClampQuality(250))
	assert.Equal(t, 72, ClampQuality(72))
}

// buildTIFF returns a minimal little-endian TIFF with a single IFD0 entry
// holding the given orientation.
func buildTIFF(orientation uint16) []byte {
	b := []byte{'I', 'I', 42, 0, 8, 0, 0, 0}
	b = binary.LittleEndian.AppendUint16(b, 1) // entry count
	b = binary.LittleEndian.AppendUint16(b, orientationTag)
	b = binary.LittleEndian.AppendUint16(b, 3)          // SHORT
	b = binary.LittleEndian.AppendUint32(b, 1)          // count
	b = binary.LittleEndian.AppendUint16(b, orientation) // inline value
	b = binary.LittleEndian.AppendUint16(b, 0)           // value padding
	b = binary.LittleEndian.AppendUint32(b, 0)           // next IFD
	return b
}

func TestExifOrientation(t *testing.T) {
	assert.Equal(t, 6, exifOrientation(buildTIFF(6)))
	assert.Equal(t, 0, exifOrientation([]byte("junk")))
	assert.Equal(t, 0, exifOrientation(nil))
}

func TestPatchOrientation(t *testing.T) {
	original := buildTIFF(8)
	patched := patchOrientation(original)

	assert.Equal(t, 1, exifOrientation(patched))
	assert.Equal(t, 8, exifOrientation(original), "input must not be mutated")

	junk := []byte("not tiff")
	assert.Equal(t, junk, patchOrientation(junk))
}

func TestJPEGMetadata(t *testing.T) {
	tiff := buildTIFF(3)

	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8})
	app1 := append(append([]byte(nil), exifPrefix...), tiff...)
	buf.Write([]byte{0xFF, 0xE1})
	binary.Write(&buf, binary.BigEndian, uint16(len(app1)+2))
	buf.Write(app1)
	buf.Write([]byte{0xFF, 0xD9})

	m := extractMetadata(buf.Bytes(), ".jpg")
	require.Equal(t, tiff, m.exif)
	assert.Equal(t, 3, m.orientation)
	assert.Empty(t, m.icc)
}

func TestJPEGMetadataICCMultiSegment(t *testing.T) {
	part := func(seq byte, body []byte) []byte {
		seg := append([]byte("ICC_PROFILE\x00"), seq, 2)
		return append(seg, body...)
	}

	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8})
	for i, body := range [][]byte{[]byte("first-"), []byte("second")} {
		seg := part(byte(i+1), body)
		buf.Write([]byte{0xFF, 0xE2})
		binary.Write(&buf, binary.BigEndian, uint16(len(seg)+2))
		buf.Write(seg)
	}
	buf.Write([]byte{0xFF, 0xD9})

	m := extractMetadata(buf.Bytes(), ".jpg")
	assert.Equal(t, []byte("first-second"), m.icc)
}

func TestPNGMetadataEXIF(t *testing.T) {
	tiff := buildTIFF(6)

	var buf bytes.Buffer
	buf.Write(pngSignature)
	writePNGChunk(&buf, "eXIf", tiff)
	writePNGChunk(&buf, "IEND", nil)

	m := extractMetadata(buf.Bytes(), ".png")
	require.Equal(t, tiff, m.exif)
	assert.Equal(t, 6, m.orientation)
}

func writePNGChunk(buf *bytes.Buffer, chunkType string, body []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(body)))
	buf.WriteString(chunkType)
	buf.Write(body)
	buf.Write([]byte{0, 0, 0, 0}) // crc, unchecked by the reader
}

func TestMetadataEmptyForUnknownExt(t *testing.T) {
	m := extractMetadata([]byte("whatever"), ".gif")
	assert.True(t, m.empty())
}

func fakeWebP(payload []byte) []byte {
	var body bytes.Buffer
	writeChunk(&body, "VP8 ", payload)

	out := []byte("RIFF")
	out = binary.LittleEndian.AppendUint32(out, uint32(4+body.Len()))
	out = append(out, "WEBP"...)
	return append(out, body.Bytes()...)
}

func TestEmbedMetadata(t *testing.T) {
	src := fakeWebP([]byte{1, 2, 3, 4})
	meta := metadata{icc: []byte("icc-profile"), exif: buildTIFF(1)}

	out, err := embedMetadata(src, meta, 640, 480, true)
	require.NoError(t, err)

	chunks, err := parseWebP(out)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	assert.Equal(t, "VP8X", chunks[0].fourCC)
	assert.Equal(t, "ICCP", chunks[1].fourCC)
	assert.Equal(t, "VP8 ", chunks[2].fourCC)
	assert.Equal(t, "EXIF", chunks[3].fourCC)

	vp8x := chunks[0].payload
	require.Len(t, vp8x, 10)
	assert.EqualValues(t, vp8xFlagICC|vp8xFlagEXIF|vp8xFlagAlpha, vp8x[0])

	width := uint32(vp8x[4]) | uint32(vp8x[5])<<8 | uint32(vp8x[6])<<16
	height := uint32(vp8x[7]) | uint32(vp8x[8])<<8 | uint32(vp8x[9])<<16
	assert.EqualValues(t, 639, width)
	assert.EqualValues(t, 479, height)

	assert.Equal(t, []byte("icc-profile"), chunks[1].payload)
}

func TestEmbedMetadataExifOnly(t *testing.T) {
	out, err := embedMetadata(fakeWebP([]byte{9, 9}), metadata{exif: buildTIFF(1)}, 10, 10, false)
	require.NoError(t, err)

	chunks, err := parseWebP(out)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "VP8X", chunks[0].fourCC)
	assert.EqualValues(t, vp8xFlagEXIF, chunks[0].payload[0])
}

func TestParseWebPRejectsGarbage(t *testing.T) {
	_, err := parseWebP([]byte("RIFFxxxxJUNK"))
	assert.ErrorIs(t, err, errBadWebP)

	_, err = parseWebP(nil)
	assert.ErrorIs(t, err, errBadWebP)
}

func TestIsOpaque(t *testing.T) {
	opaque := testImage(4, 4)
	assert.True(t, isOpaque(opaque))

	transparent := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	transparent.Set(0, 0, color.NRGBA{R: 255, A: 128})
	assert.False(t, isOpaque(transparent))
}

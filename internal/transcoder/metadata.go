package transcoder

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
)

// metadata holds the color profile and EXIF blob sniffed from the source
// file, plus the decoded orientation tag (0 when absent).
type metadata struct {
	icc         []byte
	exif        []byte // raw TIFF structure, no "Exif\0\0" prefix
	orientation int
}

func (m metadata) empty() bool {
	return len(m.icc) == 0 && len(m.exif) == 0
}

var exifPrefix = []byte("Exif\x00\x00")

// extractMetadata pulls ICC and EXIF out of JPEG and PNG containers. Other
// formats yield empty metadata; the conversion still succeeds without it.
func extractMetadata(data []byte, ext string) metadata {
	var m metadata
	switch ext {
	case ".jpg", ".jpeg":
		m = jpegMetadata(data)
	case ".png":
		m = pngMetadata(data)
	}
	if len(m.exif) > 0 {
		m.orientation = exifOrientation(m.exif)
	}
	return m
}

// jpegMetadata walks JPEG segments up to SOS, collecting the APP1 Exif
// payload and reassembling multi-segment APP2 ICC_PROFILE data.
func jpegMetadata(data []byte) metadata {
	var m metadata
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return m
	}

	var iccParts [][]byte
	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			break
		}
		marker := data[i+1]
		if marker == 0xD9 || marker == 0xDA { // EOI / SOS
			break
		}
		// standalone markers carry no length
		if marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7) {
			i += 2
			continue
		}
		segLen := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		if segLen < 2 || i+2+segLen > len(data) {
			break
		}
		seg := data[i+4 : i+2+segLen]

		switch marker {
		case 0xE1: // APP1
			if bytes.HasPrefix(seg, exifPrefix) && m.exif == nil {
				m.exif = append([]byte(nil), seg[len(exifPrefix):]...)
			}
		case 0xE2: // APP2
			const iccHeader = "ICC_PROFILE\x00"
			if bytes.HasPrefix(seg, []byte(iccHeader)) && len(seg) > len(iccHeader)+2 {
				body := seg[len(iccHeader)+2:] // skip sequence number and total count
				iccParts = append(iccParts, append([]byte(nil), body...))
			}
		}
		i += 2 + segLen
	}

	if len(iccParts) > 0 {
		m.icc = bytes.Join(iccParts, nil)
	}
	return m
}

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

// pngMetadata walks PNG chunks, decompressing iCCP and taking eXIf as-is.
func pngMetadata(data []byte) metadata {
	var m metadata
	if !bytes.HasPrefix(data, pngSignature) {
		return m
	}

	i := len(pngSignature)
	for i+8 <= len(data) {
		chunkLen := int(binary.BigEndian.Uint32(data[i : i+4]))
		chunkType := string(data[i+4 : i+8])
		if i+8+chunkLen+4 > len(data) {
			break
		}
		body := data[i+8 : i+8+chunkLen]

		switch chunkType {
		case "iCCP":
			// profile name (latin-1, NUL-terminated), compression method,
			// deflate stream
			if nul := bytes.IndexByte(body, 0); nul >= 0 && nul+2 <= len(body) {
				zr, err := zlib.NewReader(bytes.NewReader(body[nul+2:]))
				if err == nil {
					if icc, err := io.ReadAll(zr); err == nil {
						m.icc = icc
					}
					zr.Close()
				}
			}
		case "eXIf":
			raw := body
			raw = bytes.TrimPrefix(raw, exifPrefix)
			m.exif = append([]byte(nil), raw...)
		case "IEND":
			return m
		}
		i += 8 + chunkLen + 4
	}
	return m
}

const orientationTag = 0x0112

// exifOrientation returns the orientation value from IFD0 of a raw TIFF
// blob, or 0 when the tag is absent or the structure is malformed.
func exifOrientation(tiff []byte) int {
	off, order := orientationOffset(tiff)
	if off < 0 {
		return 0
	}
	return int(order.Uint16(tiff[off : off+2]))
}

// patchOrientation returns a copy of the TIFF blob with the orientation tag
// reset to 1 (normal). The input is returned unchanged when the tag cannot
// be located.
func patchOrientation(tiff []byte) []byte {
	off, order := orientationOffset(tiff)
	if off < 0 {
		return tiff
	}
	out := append([]byte(nil), tiff...)
	order.PutUint16(out[off:off+2], 1)
	return out
}

// orientationOffset locates the byte offset of the orientation value inside
// the TIFF structure, returning -1 when not found.
func orientationOffset(tiff []byte) (int, binary.ByteOrder) {
	if len(tiff) < 8 {
		return -1, nil
	}
	var order binary.ByteOrder
	switch {
	case tiff[0] == 'I' && tiff[1] == 'I':
		order = binary.LittleEndian
	case tiff[0] == 'M' && tiff[1] == 'M':
		order = binary.BigEndian
	default:
		return -1, nil
	}
	if order.Uint16(tiff[2:4]) != 42 {
		return -1, nil
	}

	ifd := int(order.Uint32(tiff[4:8]))
	if ifd < 8 || ifd+2 > len(tiff) {
		return -1, nil
	}
	count := int(order.Uint16(tiff[ifd : ifd+2]))
	for n := 0; n < count; n++ {
		entry := ifd + 2 + n*12
		if entry+12 > len(tiff) {
			return -1, nil
		}
		tag := order.Uint16(tiff[entry : entry+2])
		typ := order.Uint16(tiff[entry+2 : entry+4])
		if tag == orientationTag && typ == 3 { // SHORT, stored inline
			return entry + 8, order
		}
	}
	return -1, nil
}

package transcoder

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// The webp encoder emits a simple RIFF file holding a single VP8 or VP8L
// bitstream. Carrying an ICC profile or EXIF requires the extended layout:
// a VP8X header chunk followed by ICCP, the image data and EXIF, in that
// order. embedMetadata rewraps the container accordingly.

var errBadWebP = errors.New("malformed webp container")

const (
	vp8xFlagICC   = 0x20
	vp8xFlagAlpha = 0x10
	vp8xFlagEXIF  = 0x08
)

type riffChunk struct {
	fourCC  string
	payload []byte
}

func embedMetadata(webpData []byte, meta metadata, width, height int, hasAlpha bool) ([]byte, error) {
	chunks, err := parseWebP(webpData)
	if err != nil {
		return nil, err
	}

	var flags byte
	if len(meta.icc) > 0 {
		flags |= vp8xFlagICC
	}
	if len(meta.exif) > 0 {
		flags |= vp8xFlagEXIF
	}
	if hasAlpha {
		flags |= vp8xFlagAlpha
	}

	vp8x := make([]byte, 10)
	vp8x[0] = flags
	putUint24(vp8x[4:7], uint32(width-1))
	putUint24(vp8x[7:10], uint32(height-1))

	var body bytes.Buffer
	writeChunk(&body, "VP8X", vp8x)
	if len(meta.icc) > 0 {
		writeChunk(&body, "ICCP", meta.icc)
	}
	for _, c := range chunks {
		writeChunk(&body, c.fourCC, c.payload)
	}
	if len(meta.exif) > 0 {
		writeChunk(&body, "EXIF", meta.exif)
	}

	out := make([]byte, 0, 12+body.Len())
	out = append(out, 'R', 'I', 'F', 'F')
	out = binary.LittleEndian.AppendUint32(out, uint32(4+body.Len()))
	out = append(out, 'W', 'E', 'B', 'P')
	out = append(out, body.Bytes()...)
	return out, nil
}

// parseWebP returns the chunks of a RIFF/WEBP file in order.
func parseWebP(data []byte) ([]riffChunk, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil, errBadWebP
	}

	var chunks []riffChunk
	i := 12
	for i+8 <= len(data) {
		fourCC := string(data[i : i+4])
		size := int(binary.LittleEndian.Uint32(data[i+4 : i+8]))
		if i+8+size > len(data) {
			return nil, errBadWebP
		}
		chunks = append(chunks, riffChunk{
			fourCC:  fourCC,
			payload: data[i+8 : i+8+size],
		})
		i += 8 + size
		if size%2 == 1 { // chunks are padded to even offsets
			i++
		}
	}
	if len(chunks) == 0 {
		return nil, errBadWebP
	}
	return chunks, nil
}

func writeChunk(buf *bytes.Buffer, fourCC string, payload []byte) {
	buf.WriteString(fourCC)
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(payload)))
	buf.Write(size[:])
	buf.Write(payload)
	if len(payload)%2 == 1 {
		buf.WriteByte(0)
	}
}

func putUint24(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
}

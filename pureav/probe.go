package pureav

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/thesyncim/av"
)

const (
	formatWebM = "webm"
	formatMKV  = "matroska"
	formatIVF  = "ivf"
	formatOgg  = "ogg"
	formatH264 = "h264"
	formatNull = "null"
	probeSize  = 64
	ebmlMagic  = "\x1a\x45\xdf\xa3"
	ivfMagic   = "DKIF"
	oggMagic   = "OggS"
)

// probeFormat guesses a container from its first bytes, falling back to
// the file extension.
func probeFormat(head []byte, name string) string {
	switch {
	case bytes.HasPrefix(head, []byte(ebmlMagic)):
		if bytes.Contains(head, []byte("webm")) {
			return formatWebM
		}
		return formatMKV
	case bytes.HasPrefix(head, []byte(ivfMagic)):
		return formatIVF
	case bytes.HasPrefix(head, []byte(oggMagic)):
		return formatOgg
	case isAnnexBStartCode(head) && isH264NALType(nalType(head)):
		return formatH264
	}
	return formatFromName(name)
}

// formatFromName maps a file extension to a container name.
func formatFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".webm":
		return formatWebM
	case ".mkv", ".mka":
		return formatMKV
	case ".ivf":
		return formatIVF
	case ".ogg", ".opus", ".oga":
		return formatOgg
	case ".h264", ".264":
		return formatH264
	}
	return ""
}

// isAnnexBStartCode reports whether data starts with a 3 or 4 byte start
// code.
func isAnnexBStartCode(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	if data[0] == 0 && data[1] == 0 && data[2] == 0 && data[3] == 1 {
		return true
	}
	return data[0] == 0 && data[1] == 0 && data[2] == 1
}

// nalType returns the type of the first NAL unit of Annex-B data.
func nalType(data []byte) byte {
	if len(data) < 4 {
		return 0
	}
	offset := 3
	if data[2] == 0 {
		offset = 4
	}
	if len(data) <= offset {
		return 0
	}
	return data[offset] & 0x1F
}

// isH264NALType reports whether t is a valid H.264 NAL unit type (Table 7-1).
func isH264NALType(t byte) bool {
	return (t >= 1 && t <= 12) || (t >= 19 && t <= 21)
}

// isVP8Keyframe checks the frame tag and start code (RFC 6386 9.1).
func isVP8Keyframe(data []byte) bool {
	if len(data) < 6 || data[0]&0x01 != 0 {
		return false
	}
	return data[3] == 0x9D && data[4] == 0x01 && data[5] == 0x2A
}

// isVP9Keyframe reads frame_type from the uncompressed header.
func isVP9Keyframe(data []byte) bool {
	if len(data) < 1 || (data[0]>>6)&0x03 != 0x02 {
		return false
	}
	profile := (data[0]>>5)&1 | ((data[0]>>4)&1)<<1
	bit := 3
	if profile == 3 {
		bit = 2
	}
	if (data[0]>>bit)&1 == 1 { // show_existing_frame
		return false
	}
	return (data[0]>>(bit-1))&1 == 0
}

// isAV1Keyframe reports whether a temporal unit carries a sequence header
// OBU, which encoders emit ahead of every key frame.
func isAV1Keyframe(data []byte) bool {
	for len(data) >= 2 {
		header := data[0]
		if header&0x80 != 0 {
			return false
		}
		obuType := (header >> 3) & 0x0F
		if obuType == 1 {
			return true
		}
		off := 1
		if header&0x04 != 0 {
			off++
		}
		if header&0x02 == 0 {
			return false
		}
		size, n := leb128(data[off:])
		if n == 0 {
			return false
		}
		off += n
		if off+int(size) > len(data) {
			return false
		}
		data = data[off+int(size):]
	}
	return false
}

func leb128(b []byte) (uint64, int) {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]&0x7F) << (7 * i)
		if b[i]&0x80 == 0 {
			return v, i + 1
		}
	}
	return 0, 0
}

// isADTS checks for the AAC ADTS syncword and layer 0.
func isADTS(data []byte) bool {
	if len(data) < 7 || data[0] != 0xFF || data[1]&0xF0 != 0xF0 {
		return false
	}
	return (data[1]>>1)&0x03 == 0
}

// isKeyframe inspects a compressed packet of the given codec.
func isKeyframe(id av.CodecID, data []byte) bool {
	switch id {
	case av.CodecVP8:
		return isVP8Keyframe(data)
	case av.CodecVP9:
		return isVP9Keyframe(data)
	case av.CodecAV1:
		return isAV1Keyframe(data)
	default:
		return true
	}
}

package av

// MediaType identifies the kind of data a stream or frame carries.
type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeVideo
	MediaTypeAudio
)

func (m MediaType) String() string {
	switch m {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// CodecID identifies a codec. Engines pass identifiers through opaquely;
// the constants below are the ones the core and the bundled engines know.
type CodecID string

const (
	CodecNone       CodecID = ""
	CodecH264       CodecID = "h264"
	CodecHEVC       CodecID = "hevc"
	CodecVP8        CodecID = "vp8"
	CodecVP9        CodecID = "vp9"
	CodecAV1        CodecID = "av1"
	CodecMPEG2Video CodecID = "mpeg2video"
	CodecRawVideo   CodecID = "rawvideo"
	CodecOpus       CodecID = "opus"
	CodecAAC        CodecID = "aac"
	CodecMP3        CodecID = "mp3"
	CodecPCMS16LE   CodecID = "pcm_s16le"
	CodecPCMF32LE   CodecID = "pcm_f32le"
)

// MediaType returns the media type of well known codecs.
func (c CodecID) MediaType() MediaType {
	switch c {
	case CodecH264, CodecHEVC, CodecVP8, CodecVP9, CodecAV1, CodecMPEG2Video, CodecRawVideo:
		return MediaTypeVideo
	case CodecOpus, CodecAAC, CodecMP3, CodecPCMS16LE, CodecPCMF32LE:
		return MediaTypeAudio
	default:
		return MediaTypeUnknown
	}
}

// MimeType returns the MIME type for this codec.
func (c CodecID) MimeType() string {
	switch c {
	case CodecVP8:
		return "video/VP8"
	case CodecVP9:
		return "video/VP9"
	case CodecH264:
		return "video/H264"
	case CodecHEVC:
		return "video/H265"
	case CodecAV1:
		return "video/AV1"
	case CodecOpus:
		return "audio/opus"
	case CodecAAC:
		return "audio/aac"
	case CodecMP3:
		return "audio/mpeg"
	default:
		return ""
	}
}

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatNone    PixelFormat = iota
	PixelFormatI420                // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatYUV444P             // YUV 4:4:4 planar
	PixelFormatRGB24               // Packed RGB, 3 bytes per pixel
	PixelFormatRGBA                // Packed RGBA, 4 bytes per pixel
	PixelFormatBGRA                // Packed BGRA, 4 bytes per pixel
)

// PixelFormatYUV420P is the libav name of PixelFormatI420.
const PixelFormatYUV420P = PixelFormatI420

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "yuv420p"
	case PixelFormatNV12:
		return "nv12"
	case PixelFormatYUV444P:
		return "yuv444p"
	case PixelFormatRGB24:
		return "rgb24"
	case PixelFormatRGBA:
		return "rgba"
	case PixelFormatBGRA:
		return "bgra"
	default:
		return "none"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420, PixelFormatYUV444P:
		return 3
	case PixelFormatNV12:
		return 2
	case PixelFormatRGB24, PixelFormatRGBA, PixelFormatBGRA:
		return 1
	default:
		return 0
	}
}

// PlaneGeometry returns the width in bytes and the height in rows of plane i
// for a frame of the given dimensions.
func (p PixelFormat) PlaneGeometry(width, height, plane int) (rowBytes, rows int) {
	chromaW, chromaH := (width+1)/2, (height+1)/2
	switch p {
	case PixelFormatI420:
		if plane == 0 {
			return width, height
		}
		return chromaW, chromaH
	case PixelFormatNV12:
		if plane == 0 {
			return width, height
		}
		return chromaW * 2, chromaH
	case PixelFormatYUV444P:
		return width, height
	case PixelFormatRGB24:
		return width * 3, height
	case PixelFormatRGBA, PixelFormatBGRA:
		return width * 4, height
	default:
		return 0, 0
	}
}

// BytesPerPixel returns the number of bytes one pixel occupies in plane i.
func (p PixelFormat) BytesPerPixel(plane int) int {
	switch p {
	case PixelFormatNV12:
		if plane == 1 {
			return 2
		}
		return 1
	case PixelFormatRGB24:
		return 3
	case PixelFormatRGBA, PixelFormatBGRA:
		return 4
	case PixelFormatI420, PixelFormatYUV444P:
		return 1
	default:
		return 0
	}
}

// FrameSize returns the tightly packed size of a frame in bytes.
func (p PixelFormat) FrameSize(width, height int) int {
	size := 0
	for i := 0; i < p.PlaneCount(); i++ {
		w, h := p.PlaneGeometry(width, height, i)
		size += w * h
	}
	return size
}

// ParsePixelFormat returns the pixel format with the given name.
func ParsePixelFormat(name string) PixelFormat {
	for p := PixelFormatI420; p <= PixelFormatBGRA; p++ {
		if p.String() == name {
			return p
		}
	}
	if name == "i420" {
		return PixelFormatI420
	}
	return PixelFormatNone
}

// SampleFormat represents audio sample formats.
type SampleFormat int

const (
	SampleFormatNone SampleFormat = iota
	SampleFormatS16               // Signed 16-bit, interleaved
	SampleFormatS16P              // Signed 16-bit, planar
	SampleFormatF32               // 32-bit float, interleaved
	SampleFormatF32P              // 32-bit float, planar
)

// SampleFormatFLTP is the libav name of SampleFormatF32P.
const SampleFormatFLTP = SampleFormatF32P

func (s SampleFormat) String() string {
	switch s {
	case SampleFormatS16:
		return "s16"
	case SampleFormatS16P:
		return "s16p"
	case SampleFormatF32:
		return "flt"
	case SampleFormatF32P:
		return "fltp"
	default:
		return "none"
	}
}

// BytesPerSample returns the number of bytes per sample for this format.
func (s SampleFormat) BytesPerSample() int {
	switch s {
	case SampleFormatS16, SampleFormatS16P:
		return 2
	case SampleFormatF32, SampleFormatF32P:
		return 4
	default:
		return 0
	}
}

// Planar reports whether each channel is stored in its own plane.
func (s SampleFormat) Planar() bool {
	return s == SampleFormatS16P || s == SampleFormatF32P
}

// ParseSampleFormat returns the sample format with the given name.
func ParseSampleFormat(name string) SampleFormat {
	for s := SampleFormatS16; s <= SampleFormatF32P; s++ {
		if s.String() == name {
			return s
		}
	}
	return SampleFormatNone
}

// CodecParameters describes an elementary stream or a codec configuration.
type CodecParameters struct {
	MediaType MediaType
	CodecID   CodecID

	// Video
	Width       int
	Height      int
	PixelFormat PixelFormat
	FrameRate   Rational
	GopSize     int
	MaxBFrames  int

	// Audio
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat
	FrameSize    int // samples per frame, 0 when variable

	BitRate int64
	// TimeBase is the codec time base; zero for stream level parameters.
	TimeBase Rational
	// GlobalHeader places codec headers in Extradata instead of keyframes.
	GlobalHeader bool
	// StrictExperimental allows experimental codec features.
	StrictExperimental bool
	Extradata          []byte
}

// CodecDescriptor describes a codec implementation offered by an engine.
type CodecDescriptor struct {
	Name      string
	LongName  string
	ID        CodecID
	MediaType MediaType
	Encoder   bool
	Decoder   bool
	Hardware  bool

	PixelFormats  []PixelFormat
	SampleFormats []SampleFormat
	SampleRates   []int
	ChannelCounts []int
}

// StreamInfo describes a stream of an opened input container.
type StreamInfo struct {
	Index     int
	Params    CodecParameters
	TimeBase  Rational
	FrameRate Rational // guessed average frame rate, video only
	Duration  int64    // in TimeBase units, NoPTS when unknown
}

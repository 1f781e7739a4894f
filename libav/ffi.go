package libav

import (
	"unsafe"

	"github.com/thesyncim/av"
)

// libmedia_av function pointers. Handles are opaque pointers owned by the
// shim; every call returning int32 uses the status codes below.
var (
	mediaAVGetError func() uintptr
	mediaAVVersion  func() uintptr

	mediaAVCodecCount func() int32
	mediaAVCodecGet   func(index int32, out uintptr) int32

	mediaAVCodecContextCreate    func(name string, encoder int32) uint64
	mediaAVCodecContextSetParams func(ctx uint64, par uintptr) int32
	mediaAVCodecContextGetParams func(ctx uint64, par uintptr) int32
	mediaAVCodecContextSetOption func(ctx uint64, key, value string) int32
	mediaAVCodecContextOpen      func(ctx uint64) int32
	mediaAVCodecSendPacket       func(ctx uint64, pkt uintptr) int32
	mediaAVCodecReceiveFrame     func(ctx uint64, frame uintptr) int32
	mediaAVCodecSendFrame        func(ctx uint64, frame uintptr) int32
	mediaAVCodecReceivePacket    func(ctx uint64, pkt uintptr) int32
	mediaAVCodecContextDestroy   func(ctx uint64)

	mediaAVInputOpen           func(url string) uint64
	mediaAVInputFindStreamInfo func(in uint64) int32
	mediaAVInputNbStreams      func(in uint64) int32
	mediaAVInputStream         func(in uint64, index int32, out uintptr) int32
	mediaAVInputFindBestStream func(in uint64, mediaType int32, out uintptr) int32
	mediaAVInputReadPacket     func(in uint64, pkt uintptr) int32
	mediaAVInputClose          func(in uint64)

	mediaAVOutputCreate         func(filename, format string) uint64
	mediaAVOutputFormatName     func(out uint64) uintptr
	mediaAVOutputFlags          func(out uint64) int32
	mediaAVOutputNewStream      func(out uint64, par uintptr, tbNum, tbDen int32) int32
	mediaAVOutputOpenIO         func(out uint64, filename string) int32
	mediaAVOutputWriteHeader    func(out uint64) int32
	mediaAVOutputStreamTimeBase func(out uint64, index int32, tb uintptr) int32
	mediaAVOutputWriteInterlvd  func(out uint64, pkt uintptr) int32
	mediaAVOutputWriteTrailer   func(out uint64) int32
	mediaAVOutputClose          func(out uint64)

	mediaAVBSFParse         func(desc string) uint64
	mediaAVBSFSetInput      func(bsf uint64, par uintptr, tbNum, tbDen int32) int32
	mediaAVBSFInit          func(bsf uint64) int32
	mediaAVBSFSendPacket    func(bsf uint64, pkt uintptr) int32
	mediaAVBSFReceivePacket func(bsf uint64, pkt uintptr) int32
	mediaAVBSFOutputParams  func(bsf uint64, par uintptr) int32
	mediaAVBSFDestroy       func(bsf uint64)

	mediaAVSwrCreate  func(inChannels, inFmt, inRate, outChannels, outFmt, outRate int32) uint64
	mediaAVSwrConvert func(swr uint64, out uintptr, outCount int32, in uintptr, inCount int32) int32
	mediaAVSwrDestroy func(swr uint64)

	mediaAVSwsCreate  func(srcW, srcH, srcFmt, dstW, dstH, dstFmt, flags int32) uint64
	mediaAVSwsScale   func(sws uint64, src, dst uintptr) int32
	mediaAVSwsDestroy func(sws uint64)
)

// Constants from media_av.h
const (
	mediaAVOK               = 0
	mediaAVError            = -1
	mediaAVErrorAgain       = -2
	mediaAVErrorEOF         = -3
	mediaAVErrorNoMem       = -4
	mediaAVErrorInvalid     = -5
	mediaAVErrorUnsupported = -6
	mediaAVErrorStream      = -7 // no stream of the requested type
	mediaAVErrorDecoder     = -8 // stream found, no decoder for it
	mediaAVErrorEncoder     = -9

	mediaAVMediaVideo = 0
	mediaAVMediaAudio = 1

	mediaAVCodecEncoder  = 1 << 0
	mediaAVCodecDecoder  = 1 << 1
	mediaAVCodecHardware = 1 << 2

	mediaAVParamGlobalHeader = 1 << 0
	mediaAVParamExperimental = 1 << 1

	mediaAVPacketKey     = 1 << 0
	mediaAVPacketCorrupt = 1 << 1
	mediaAVPacketDiscard = 1 << 2

	// libavformat AVFMT_* values, passed through unchanged.
	avfmtNoFile       = 0x0001
	avfmtGlobalHeader = 0x0040

	swsBilinear = 2

	mediaAVMaxPlanes = 4
)

// libav pixel and sample format numbers.
var (
	pixFmtToAV = map[av.PixelFormat]int32{
		av.PixelFormatI420:    0,
		av.PixelFormatRGB24:   2,
		av.PixelFormatYUV444P: 5,
		av.PixelFormatNV12:    23,
		av.PixelFormatRGBA:    26,
		av.PixelFormatBGRA:    28,
	}
	sampleFmtToAV = map[av.SampleFormat]int32{
		av.SampleFormatS16:  1,
		av.SampleFormatF32:  3,
		av.SampleFormatS16P: 6,
		av.SampleFormatF32P: 8,
	}
)

func avPixFmt(p av.PixelFormat) int32 {
	if v, ok := pixFmtToAV[p]; ok {
		return v
	}
	return -1
}

func goPixFmt(v int32) av.PixelFormat {
	for p, n := range pixFmtToAV {
		if n == v {
			return p
		}
	}
	return av.PixelFormatNone
}

func avSampleFmt(s av.SampleFormat) int32 {
	if v, ok := sampleFmtToAV[s]; ok {
		return v
	}
	return -1
}

func goSampleFmt(v int32) av.SampleFormat {
	for s, n := range sampleFmtToAV {
		if n == v {
			return s
		}
	}
	return av.SampleFormatNone
}

// mediaAVCodecInfo mirrors media_av_codec_info. Strings and arrays are owned
// by the shim and live as long as the library.
type mediaAVCodecInfo struct {
	Name          uintptr
	LongName      uintptr
	ID            uintptr
	PixFmts       uintptr // int32 array
	SampleFmts    uintptr // int32 array
	SampleRates   uintptr // int32 array
	MediaType     int32
	Flags         int32
	NbPixFmts     int32
	NbSampleFmts  int32
	NbSampleRates int32
	_             int32
}

// mediaAVCodecParams mirrors media_av_codec_params. On input Codec and
// Extradata point into Go memory kept alive for the call; on output they
// point into the shim's context and must be copied.
type mediaAVCodecParams struct {
	Codec         uintptr // C string, codec id name
	Extradata     uintptr
	BitRate       int64
	MediaType     int32
	Width         int32
	Height        int32
	PixFmt        int32
	FrameRateNum  int32
	FrameRateDen  int32
	GopSize       int32
	MaxBFrames    int32
	SampleRate    int32
	Channels      int32
	SampleFmt     int32
	FrameSize     int32
	TimeBaseNum   int32
	TimeBaseDen   int32
	Flags         int32
	ExtradataSize int32
}

// mediaAVPacket mirrors media_av_packet. Received data points into the shim
// and is valid until the next call on the same handle.
type mediaAVPacket struct {
	Data        uintptr
	PTS         int64
	DTS         int64
	Duration    int64
	Pos         int64
	Size        int32
	StreamIndex int32
	Flags       int32
	_           int32
}

// mediaAVFrame mirrors media_av_frame. Format is a pixel format for video
// and a sample format for audio.
type mediaAVFrame struct {
	Data       [mediaAVMaxPlanes]uintptr
	Linesize   [mediaAVMaxPlanes]int32
	PTS        int64
	Duration   int64
	MediaType  int32
	Width      int32
	Height     int32
	Format     int32
	SampleRate int32
	Channels   int32
	NbSamples  int32
	KeyFrame   int32
}

// mediaAVStream mirrors media_av_stream.
type mediaAVStream struct {
	Params       mediaAVCodecParams
	Duration     int64
	TimeBaseNum  int32
	TimeBaseDen  int32
	FrameRateNum int32
	FrameRateDen int32
}

// mediaAVBestStream mirrors media_av_best_stream.
type mediaAVBestStream struct {
	Decoder uintptr // codec name, 0 when none
	Index   int32
	_       int32
}

type mediaAVRational struct {
	Num int32
	Den int32
}

// goStringFromPtr converts a NUL terminated C string to a Go string.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
		if n > 4096 {
			break
		}
	}
	return string(unsafe.Slice((*byte)(p), n))
}

// goBytes copies n bytes at ptr.
func goBytes(ptr uintptr, n int32) []byte {
	if ptr == 0 || n <= 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n))
	return out
}

func int32Slice(ptr uintptr, n int32) []int32 {
	if ptr == 0 || n <= 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(ptr)), n)
}

// cString returns s as a NUL terminated byte slice.
func cString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

func ptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func mediaType(t int32) av.MediaType {
	switch t {
	case mediaAVMediaVideo:
		return av.MediaTypeVideo
	case mediaAVMediaAudio:
		return av.MediaTypeAudio
	default:
		return av.MediaTypeUnknown
	}
}

func cMediaType(t av.MediaType) int32 {
	if t == av.MediaTypeAudio {
		return mediaAVMediaAudio
	}
	return mediaAVMediaVideo
}

// cParams holds a C view of av.CodecParameters together with the Go memory
// it points into.
type cParams struct {
	c     *mediaAVCodecParams
	codec []byte
	extra []byte
}

func newCParams(par av.CodecParameters) *cParams {
	p := &cParams{
		c:     &mediaAVCodecParams{},
		codec: cString(string(par.CodecID)),
		extra: par.Extradata,
	}
	c := p.c
	c.Codec = ptrOf(p.codec)
	c.Extradata = ptrOf(p.extra)
	c.ExtradataSize = int32(len(p.extra))
	c.BitRate = par.BitRate
	c.MediaType = cMediaType(par.MediaType)
	c.Width, c.Height = int32(par.Width), int32(par.Height)
	c.PixFmt = avPixFmt(par.PixelFormat)
	c.FrameRateNum, c.FrameRateDen = int32(par.FrameRate.Num), int32(par.FrameRate.Den)
	c.GopSize, c.MaxBFrames = int32(par.GopSize), int32(par.MaxBFrames)
	c.SampleRate, c.Channels = int32(par.SampleRate), int32(par.Channels)
	c.SampleFmt = avSampleFmt(par.SampleFormat)
	c.FrameSize = int32(par.FrameSize)
	c.TimeBaseNum, c.TimeBaseDen = int32(par.TimeBase.Num), int32(par.TimeBase.Den)
	if par.GlobalHeader {
		c.Flags |= mediaAVParamGlobalHeader
	}
	if par.StrictExperimental {
		c.Flags |= mediaAVParamExperimental
	}
	return p
}

func (p *cParams) ptr() uintptr { return uintptr(unsafe.Pointer(p.c)) }

// goParams copies shim owned parameters into Go memory.
func goParams(c *mediaAVCodecParams) av.CodecParameters {
	return av.CodecParameters{
		MediaType:          mediaType(c.MediaType),
		CodecID:            av.CodecID(goStringFromPtr(c.Codec)),
		Width:              int(c.Width),
		Height:             int(c.Height),
		PixelFormat:        goPixFmt(c.PixFmt),
		FrameRate:          av.R(int(c.FrameRateNum), int(c.FrameRateDen)),
		GopSize:            int(c.GopSize),
		MaxBFrames:         int(c.MaxBFrames),
		SampleRate:         int(c.SampleRate),
		Channels:           int(c.Channels),
		SampleFormat:       goSampleFmt(c.SampleFmt),
		FrameSize:          int(c.FrameSize),
		BitRate:            c.BitRate,
		TimeBase:           av.R(int(c.TimeBaseNum), int(c.TimeBaseDen)),
		GlobalHeader:       c.Flags&mediaAVParamGlobalHeader != 0,
		StrictExperimental: c.Flags&mediaAVParamExperimental != 0,
		Extradata:          goBytes(c.Extradata, c.ExtradataSize),
	}
}

// cPacket fills a C packet that borrows pkt's payload.
func cPacket(pkt *av.Packet) *mediaAVPacket {
	c := &mediaAVPacket{
		Data:        ptrOf(pkt.Data()),
		Size:        int32(pkt.Size()),
		PTS:         pkt.PTS,
		DTS:         pkt.DTS,
		Duration:    pkt.Duration,
		Pos:         pkt.Pos,
		StreamIndex: int32(pkt.StreamIndex),
	}
	if pkt.Flags&av.PacketFlagKey != 0 {
		c.Flags |= mediaAVPacketKey
	}
	if pkt.Flags&av.PacketFlagCorrupt != 0 {
		c.Flags |= mediaAVPacketCorrupt
	}
	if pkt.Flags&av.PacketFlagDiscard != 0 {
		c.Flags |= mediaAVPacketDiscard
	}
	return c
}

// fillPacket copies a received C packet into pkt.
func fillPacket(c *mediaAVPacket, pkt *av.Packet) {
	pkt.Unref()
	if c.Size > 0 {
		copy(pkt.Alloc(int(c.Size)), unsafe.Slice((*byte)(unsafe.Pointer(c.Data)), c.Size))
	}
	pkt.PTS, pkt.DTS, pkt.Duration, pkt.Pos = c.PTS, c.DTS, c.Duration, c.Pos
	pkt.StreamIndex = int(c.StreamIndex)
	pkt.Flags = 0
	if c.Flags&mediaAVPacketKey != 0 {
		pkt.Flags |= av.PacketFlagKey
	}
	if c.Flags&mediaAVPacketCorrupt != 0 {
		pkt.Flags |= av.PacketFlagCorrupt
	}
	if c.Flags&mediaAVPacketDiscard != 0 {
		pkt.Flags |= av.PacketFlagDiscard
	}
}

// cFrame fills a C frame that borrows f's planes.
func cFrame(f *av.Frame) *mediaAVFrame {
	c := &mediaAVFrame{
		PTS:       f.PTS,
		Duration:  f.Duration,
		MediaType: cMediaType(f.MediaType),
	}
	for i := 0; i < len(f.Planes) && i < mediaAVMaxPlanes; i++ {
		c.Data[i] = ptrOf(f.Planes[i])
		if i < len(f.Linesize) {
			c.Linesize[i] = int32(f.Linesize[i])
		}
	}
	if f.MediaType == av.MediaTypeAudio {
		c.Format = avSampleFmt(f.SampleFormat)
		c.SampleRate, c.Channels, c.NbSamples = int32(f.SampleRate), int32(f.Channels), int32(f.NbSamples)
	} else {
		c.Format = avPixFmt(f.PixelFormat)
		c.Width, c.Height = int32(f.Width), int32(f.Height)
		if f.KeyFrame {
			c.KeyFrame = 1
		}
	}
	return c
}

// fillFrame copies a received C frame into a freshly allocated f.
func fillFrame(c *mediaAVFrame, f *av.Frame) error {
	f.Unref()
	f.MediaType = mediaType(c.MediaType)
	f.PTS, f.Duration = c.PTS, c.Duration
	if f.MediaType == av.MediaTypeAudio {
		f.SampleFormat = goSampleFmt(c.Format)
		f.SampleRate, f.Channels, f.NbSamples = int(c.SampleRate), int(c.Channels), int(c.NbSamples)
	} else {
		f.PixelFormat = goPixFmt(c.Format)
		f.Width, f.Height = int(c.Width), int(c.Height)
		f.KeyFrame = c.KeyFrame != 0
	}
	if err := f.AllocBuffer(); err != nil {
		return err
	}
	for i, plane := range f.Planes {
		if i >= mediaAVMaxPlanes || c.Data[i] == 0 {
			break
		}
		copyPlane(plane, f.Linesize[i], c.Data[i], int(c.Linesize[i]), planeRows(f, i))
	}
	return nil
}

// planeRows returns the number of rows of plane i; audio planes are one row.
func planeRows(f *av.Frame, i int) int {
	if f.MediaType == av.MediaTypeAudio {
		return 1
	}
	_, rows := f.PixelFormat.PlaneGeometry(f.Width, f.Height, i)
	return rows
}

func copyPlane(dst []byte, dstStride int, src uintptr, srcStride, rows int) {
	if rows == 1 {
		copy(dst, unsafe.Slice((*byte)(unsafe.Pointer(src)), len(dst)))
		return
	}
	n := min(dstStride, srcStride)
	for y := 0; y < rows; y++ {
		row := unsafe.Slice((*byte)(unsafe.Add(unsafe.Pointer(src), y*srcStride)), n)
		copy(dst[y*dstStride:], row)
	}
}

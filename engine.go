package av

// Engine is the capability set the core drives. Blocking verbs signal
// ErrAgain when output is not ready and io.EOF when a component is fully
// drained; any other error is a hard failure.
//
// Two implementations ship with the module: libav (the native libav shim via
// purego) and pureav (Go containers and raw codecs). avtest provides a
// scripted engine for tests.
type Engine interface {
	Name() string
	CodecEngine
	FormatEngine
	FilterEngine
	ConvertEngine
}

// CodecEngine locates codecs and creates codec contexts.
type CodecEngine interface {
	// Codecs lists every codec implementation the engine offers.
	Codecs() []CodecDescriptor
	FindDecoder(id CodecID) (CodecDescriptor, error)
	FindEncoder(id CodecID) (CodecDescriptor, error)
	FindEncoderByName(name string) (CodecDescriptor, error)
	NewCodecContext(desc CodecDescriptor) (CodecContext, error)
}

// CodecContext is one codec instance with send/receive semantics.
type CodecContext interface {
	Descriptor() CodecDescriptor
	Parameters() CodecParameters
	// SetParameters configures the context. Only valid before Open.
	SetParameters(par CodecParameters) error
	// SetOption sets a private codec option. value is a string, int, int64,
	// float64 or Rational.
	SetOption(name string, value any) error
	Open() error

	// SendPacket feeds a compressed packet to a decoder. nil enters
	// draining mode.
	SendPacket(pkt *Packet) error
	ReceiveFrame(frame *Frame) error
	// SendFrame feeds a raw frame to an encoder. nil enters draining mode.
	SendFrame(frame *Frame) error
	ReceivePacket(pkt *Packet) error

	Close() error
}

// FormatFlags describe container properties.
type FormatFlags int

const (
	// FormatGlobalHeader means streams want codec headers in extradata.
	FormatGlobalHeader FormatFlags = 1 << iota
	// FormatNoFile means the muxer does its own I/O.
	FormatNoFile
)

// FormatEngine opens containers.
type FormatEngine interface {
	OpenInput(url string) (DemuxContext, error)
	// NewOutput allocates a muxer. An empty formatName guesses the format
	// from filename.
	NewOutput(filename, formatName string) (MuxContext, error)
}

// DemuxContext reads packets from an opened container.
type DemuxContext interface {
	FindStreamInfo() error
	Streams() []StreamInfo
	// FindBestStream returns the index of the best stream of type t and the
	// decoder for it. ErrStreamNotFound or ErrDecoderNotFound when absent.
	FindBestStream(t MediaType) (int, CodecDescriptor, error)
	ReadPacket(pkt *Packet) error
	Close() error
}

// MuxContext writes packets into an output container.
type MuxContext interface {
	FormatName() string
	Flags() FormatFlags
	// NewStream adds a stream and returns its index. timeBase is a hint the
	// container may override when the header is written.
	NewStream(par CodecParameters, timeBase Rational) (int, error)
	OpenIO(filename string) error
	WriteHeader() error
	// StreamTimeBase is the stream time base in effect; valid after
	// WriteHeader.
	StreamTimeBase(index int) Rational
	// WriteInterleaved writes pkt, whose timestamps are in the stream time
	// base, buffering as needed to interleave streams by DTS.
	WriteInterleaved(pkt *Packet) error
	WriteTrailer() error
	Close() error
}

// FilterEngine creates bitstream filters.
type FilterEngine interface {
	// ParseBitstreamFilter parses a filter description such as
	// "h264_mp4toannexb" or "null,aac_adtstoasc".
	ParseBitstreamFilter(desc string) (BSFContext, error)
}

// BSFContext is an initialized or initializable bitstream filter.
type BSFContext interface {
	SetInputParameters(par CodecParameters, timeBase Rational) error
	Init() error
	// SendPacket feeds a packet; nil flushes.
	SendPacket(pkt *Packet) error
	ReceivePacket(pkt *Packet) error
	OutputParameters() CodecParameters
	Close() error
}

// AudioSpec is the fixed format of one side of a resampler.
type AudioSpec struct {
	Channels     int
	SampleFormat SampleFormat
	SampleRate   int
}

// VideoSpec is the fixed geometry of one side of a scaler.
type VideoSpec struct {
	Width       int
	Height      int
	PixelFormat PixelFormat
}

// ConvertEngine creates sample and pixel converters.
type ConvertEngine interface {
	NewResampleContext(in, out AudioSpec) (ResampleContext, error)
	NewScaleContext(in, out VideoSpec) (ScaleContext, error)
}

// ResampleContext converts audio between two fixed formats. Convert sets
// out.NbSamples to the produced count, which must fit out's capacity.
type ResampleContext interface {
	Convert(in, out *Frame) error
	Close() error
}

// ScaleContext converts pictures between two fixed geometries.
type ScaleContext interface {
	Scale(in, out *Frame) error
	Close() error
}

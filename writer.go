package av

import (
	"errors"
	"log/slog"
)

// VideoStreamConfig describes a video output stream: the raw input the
// caller will write and the encoder producing the output.
type VideoStreamConfig struct {
	// Codec selects the encoder by codec id; EncoderName, when set, selects
	// a specific implementation instead.
	Codec        CodecID
	EncoderName  string
	AllowHWAccel bool

	InputWidth       int
	InputHeight      int
	InputPixelFormat PixelFormat

	// Width and Height of the encoded picture; zero keeps the input size.
	Width  int
	Height int
	// PixelFormat overrides the encoder's default pixel format.
	PixelFormat PixelFormat

	FrameRate Rational
	Options   Options
}

// AudioStreamConfig describes an audio output stream.
type AudioStreamConfig struct {
	Codec        CodecID
	EncoderName  string
	AllowHWAccel bool

	InputChannels     int
	InputSampleRate   int
	InputSampleFormat SampleFormat

	// Channels and SampleRate of the encoded stream; zero keeps the input.
	Channels   int
	SampleRate int
	// SampleFormat overrides the encoder's default sample format.
	SampleFormat SampleFormat
	BitRate      int64
	// FrameCapacity is the largest number of samples one Write produces
	// after resampling. Zero uses the encoder frame size, or room for
	// DefaultAudioFrameCapacity input samples at the output rate when the
	// encoder takes any size. Larger input blocks need an explicit value.
	FrameCapacity int

	Options Options
}

// DefaultVideoStreamConfig returns an H.264 stream mirroring the input.
func DefaultVideoStreamConfig(width, height int, format PixelFormat, frameRate Rational) VideoStreamConfig {
	return VideoStreamConfig{
		Codec:            CodecH264,
		InputWidth:       width,
		InputHeight:      height,
		InputPixelFormat: format,
		FrameRate:        frameRate,
		Options:          Options{"preset": "fast", "crf": 29},
	}
}

// DefaultAudioStreamConfig returns an AAC stream mirroring the input.
func DefaultAudioStreamConfig(channels, sampleRate int, format SampleFormat) AudioStreamConfig {
	return AudioStreamConfig{
		Codec:             CodecAAC,
		InputChannels:     channels,
		InputSampleRate:   sampleRate,
		InputSampleFormat: format,
		BitRate:           128 * 1024,
	}
}

// writerStream is one output track of a StreamWriter.
type writerStream struct {
	mediaType MediaType
	index     int
	encoder   *Encoder
	scaler    *Scaler
	resampler *Resampler
	frame     *Frame
	packets   *Packets
	nextPTS   int64
	flushed   bool
}

// StreamWriter encodes raw frames into an output container. Each stream
// owns its encoder, its converter and a reusable frame and packet arena.
type StreamWriter struct {
	eng     Engine
	muxer   *OutputMuxer
	streams []*writerStream
	log     *slog.Logger
	metrics *Metrics
	opts    []Option

	opened bool
	closed bool
}

// NewStreamWriter creates a writer for filename; the container format is
// guessed from the name.
func NewStreamWriter(eng Engine, filename string, opts ...Option) (*StreamWriter, error) {
	return NewStreamWriterFormat(eng, filename, "", opts...)
}

// NewStreamWriterFormat creates a writer for filename in the named
// container format.
func NewStreamWriterFormat(eng Engine, filename, formatName string, opts ...Option) (*StreamWriter, error) {
	s := newSettings("writer", opts)
	m, err := NewOutputMuxer(eng, filename, formatName, opts...)
	if err != nil {
		return nil, Forward(err)
	}
	return &StreamWriter{
		eng:     eng,
		muxer:   m,
		log:     s.logger.With("file", filename),
		metrics: s.metrics,
		opts:    opts,
	}, nil
}

func (w *StreamWriter) newEncoder(id CodecID, name string, hw bool) (*Encoder, error) {
	if name != "" {
		return NewEncoderByName(w.eng, name, w.opts...)
	}
	return NewEncoder(w.eng, id, hw, w.opts...)
}

// AddVideoStream adds a video stream and returns its index.
func (w *StreamWriter) AddVideoStream(cfg VideoStreamConfig) (int, error) {
	if w.opened {
		return -1, Errorf("cannot add a stream after the writer was opened")
	}
	width, height := cfg.Width, cfg.Height
	if width == 0 {
		width = cfg.InputWidth
	}
	if height == 0 {
		height = cfg.InputHeight
	}
	enc, err := w.newEncoder(cfg.Codec, cfg.EncoderName, cfg.AllowHWAccel)
	if err != nil {
		return -1, Forward(err)
	}
	st := &writerStream{mediaType: MediaTypeVideo, encoder: enc}
	if err := w.setupVideo(st, cfg, width, height); err != nil {
		w.closeStream(st)
		return -1, Forward(err)
	}
	if err := w.register(st); err != nil {
		w.closeStream(st)
		return -1, Forward(err)
	}
	w.log.Info("added video stream", "index", st.index, "codec", enc.Descriptor().Name,
		"width", width, "height", height, "pixel_format", enc.Parameters().PixelFormat, "frame_rate", cfg.FrameRate)
	return st.index, nil
}

func (w *StreamWriter) setupVideo(st *writerStream, cfg VideoStreamConfig, width, height int) error {
	enc := st.encoder
	if cfg.PixelFormat != PixelFormatNone {
		enc.SetPixelFormat(cfg.PixelFormat)
	}
	if err := enc.SetVideoParams(width, height, cfg.FrameRate, cfg.Options); err != nil {
		return Forward(err)
	}
	enc.SetGlobalHeader(w.muxer.RequiresGlobalHeader())
	if err := enc.Open(); err != nil {
		return Forward(err)
	}
	frame, err := enc.NewWritableVideoFrame()
	if err != nil {
		return Forward(err)
	}
	st.frame = frame
	par := enc.Parameters()
	st.scaler, err = NewScaler(w.eng, cfg.InputWidth, cfg.InputHeight, cfg.InputPixelFormat,
		par.Width, par.Height, par.PixelFormat)
	return Forward(err)
}

// AddAudioStream adds an audio stream and returns its index.
func (w *StreamWriter) AddAudioStream(cfg AudioStreamConfig) (int, error) {
	if w.opened {
		return -1, Errorf("cannot add a stream after the writer was opened")
	}
	channels, rate := cfg.Channels, cfg.SampleRate
	if channels == 0 {
		channels = cfg.InputChannels
	}
	if rate == 0 {
		rate = cfg.InputSampleRate
	}
	enc, err := w.newEncoder(cfg.Codec, cfg.EncoderName, cfg.AllowHWAccel)
	if err != nil {
		return -1, Forward(err)
	}
	st := &writerStream{mediaType: MediaTypeAudio, encoder: enc}
	if err := w.setupAudio(st, cfg, channels, rate); err != nil {
		w.closeStream(st)
		return -1, Forward(err)
	}
	if err := w.register(st); err != nil {
		w.closeStream(st)
		return -1, Forward(err)
	}
	w.log.Info("added audio stream", "index", st.index, "codec", enc.Descriptor().Name,
		"channels", channels, "sample_rate", rate, "sample_format", enc.Parameters().SampleFormat, "bit_rate", cfg.BitRate)
	return st.index, nil
}

func (w *StreamWriter) setupAudio(st *writerStream, cfg AudioStreamConfig, channels, rate int) error {
	enc := st.encoder
	if cfg.SampleFormat != SampleFormatNone {
		enc.SetSampleFormat(cfg.SampleFormat)
	}
	if err := enc.SetAudioParams(channels, rate, cfg.BitRate, cfg.Options); err != nil {
		return Forward(err)
	}
	enc.SetGlobalHeader(w.muxer.RequiresGlobalHeader())
	if err := enc.Open(); err != nil {
		return Forward(err)
	}
	capacity := cfg.FrameCapacity
	if capacity <= 0 && enc.Parameters().FrameSize <= 0 {
		capacity = audioFrameCapacity(cfg.InputSampleRate, enc.Parameters().SampleRate)
	}
	frame, err := enc.NewWritableAudioFrame(capacity)
	if err != nil {
		return Forward(err)
	}
	st.frame = frame
	par := enc.Parameters()
	st.resampler, err = NewResampler(w.eng, cfg.InputChannels, cfg.InputSampleFormat, cfg.InputSampleRate,
		par.Channels, par.SampleFormat, par.SampleRate)
	return Forward(err)
}

// audioFrameCapacity returns room for DefaultAudioFrameCapacity input
// samples once resampled from inRate to outRate.
func audioFrameCapacity(inRate, outRate int) int {
	if inRate <= 0 || outRate <= inRate {
		return DefaultAudioFrameCapacity
	}
	return (DefaultAudioFrameCapacity*outRate+inRate-1)/inRate + 1
}

func (w *StreamWriter) register(st *writerStream) error {
	index, err := w.muxer.AddStream(st.encoder)
	if err != nil {
		return Forward(err)
	}
	st.index = index
	st.packets = NewPackets(0)
	w.streams = append(w.streams, st)
	if index != len(w.streams)-1 {
		w.streams = w.streams[:len(w.streams)-1]
		return Errorf("muxer assigned stream index %d, expected %d", index, len(w.streams))
	}
	w.metrics.streamsOpened(1)
	return nil
}

func (w *StreamWriter) closeStream(st *writerStream) error {
	var errs []error
	if st.scaler != nil {
		errs = append(errs, st.scaler.Close())
	}
	if st.resampler != nil {
		errs = append(errs, st.resampler.Close())
	}
	if st.frame != nil {
		st.frame.Unref()
	}
	if st.packets != nil {
		st.packets.ReleaseAll()
	}
	errs = append(errs, st.encoder.Close())
	return errors.Join(errs...)
}

// Open opens the output file and writes the container header.
func (w *StreamWriter) Open() error {
	if err := w.muxer.Open(); err != nil {
		return Forward(err)
	}
	w.opened = true
	return nil
}

// Write converts frame to the stream's encoder format, stamps it and
// encodes it. Produced packets are written to the container; a packet the
// container rejects is logged and skipped. An encoder failure is returned
// after the packets produced before it were written.
func (w *StreamWriter) Write(frame *Frame, streamIndex int) error {
	if !w.opened {
		return Errorf("writer is not open")
	}
	if streamIndex < 0 || streamIndex >= len(w.streams) {
		return Errorf("stream index %d out of range [0, %d)", streamIndex, len(w.streams))
	}
	st := w.streams[streamIndex]
	if st.flushed {
		return Errorf("stream %d was already flushed", streamIndex)
	}
	if err := st.frame.MakeWritable(); err != nil {
		return Forward(err)
	}
	switch st.mediaType {
	case MediaTypeVideo:
		if err := st.scaler.Scale(frame, st.frame); err != nil {
			return Forward(err)
		}
		st.frame.PTS = st.nextPTS
		st.nextPTS++
	case MediaTypeAudio:
		if err := st.resampler.Convert(frame, st.frame); err != nil {
			return Forward(err)
		}
		st.frame.PTS = st.nextPTS
		w.checkAudioDrift(st, frame)
		st.nextPTS += int64(st.frame.NbSamples)
	default:
		return Errorf("unknown media type %s", st.mediaType)
	}

	n, res, err := st.encoder.EncodeFrame(st.frame, st.packets)
	w.metrics.frameEncoded(st.mediaType)
	w.writePackets(st, n)
	if res == ResultFail {
		w.metrics.encodeFailure()
		return Forward(err)
	}
	return nil
}

// checkAudioDrift logs when the resampler produced a different sample count
// than the rate ratio predicts, which shifts later timestamps.
func (w *StreamWriter) checkAudioDrift(st *writerStream, in *Frame) {
	want := Rescale(int64(in.NbSamples), R(1, in.SampleRate), R(1, st.frame.SampleRate))
	if d := want - int64(st.frame.NbSamples); d > 1 || d < -1 {
		w.log.Debug("resampler output differs from input duration", "stream", st.index,
			"expected", want, "produced", st.frame.NbSamples)
	}
}

func (w *StreamWriter) writePackets(st *writerStream, n int) {
	for i := 0; i < n; i++ {
		if err := w.muxer.WritePacket(st.packets.At(i), st.index); err != nil {
			w.log.Error("error while writing packet", "stream", st.index, "error", err)
		}
	}
}

// FlushStream drains the encoder of stream streamIndex into the container.
// Each stream is flushed once; failures are logged.
func (w *StreamWriter) FlushStream(streamIndex int) {
	if streamIndex < 0 || streamIndex >= len(w.streams) {
		w.log.Error("flush of unknown stream", "stream", streamIndex)
		return
	}
	st := w.streams[streamIndex]
	if st.flushed {
		return
	}
	st.flushed = true
	n, res, err := st.encoder.Flush(st.packets)
	w.writePackets(st, n)
	if res == ResultFail {
		w.log.Error("failed to flush stream", "stream", streamIndex, "error", err)
		return
	}
	w.metrics.streamFlushed()
	w.log.Debug("stream flushed", "stream", streamIndex, "packets", n)
}

// FlushAllStreams flushes every stream.
func (w *StreamWriter) FlushAllStreams() {
	for i := range w.streams {
		w.FlushStream(i)
	}
}

// NumStreams returns the number of streams.
func (w *StreamWriter) NumStreams() int { return len(w.streams) }

// Encoder returns the encoder of stream i.
func (w *StreamWriter) Encoder(i int) *Encoder { return w.streams[i].encoder }

// Close flushes every stream, writes the container trailer and releases the
// encoders and converters. Calling Close again does nothing.
func (w *StreamWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.opened {
		w.FlushAllStreams()
	}
	errs := []error{w.muxer.Close()}
	for _, st := range w.streams {
		errs = append(errs, w.closeStream(st))
	}
	w.metrics.streamsOpened(-len(w.streams))
	if err := errors.Join(errs...); err != nil {
		return Forward(err)
	}
	return nil
}

package av

import (
	"errors"
	"log/slog"
)

// OutputMuxer writes encoded packets into an output container. Streams are
// registered before Open; WritePacket rescales timestamps from each
// stream's source time base to the container stream time base.
type OutputMuxer struct {
	ctx      MuxContext
	filename string
	log      *slog.Logger
	metrics  *Metrics

	sources []Rational // per stream: time base of incoming packets
	opened  bool
	closed  bool
}

// NewOutputMuxer allocates a muxer for filename. An empty formatName lets the
// engine guess the format from the file name.
func NewOutputMuxer(eng FormatEngine, filename, formatName string, opts ...Option) (*OutputMuxer, error) {
	s := newSettings("muxer", opts)
	ctx, err := eng.NewOutput(filename, formatName)
	if err != nil {
		return nil, Errorf("could not create output context for %q: %w", filename, err)
	}
	return &OutputMuxer{
		ctx:      ctx,
		filename: filename,
		log:      s.logger.With("file", filename, "format", ctx.FormatName()),
		metrics:  s.metrics,
	}, nil
}

// RequiresGlobalHeader reports whether encoders feeding this container must
// put codec headers in extradata.
func (m *OutputMuxer) RequiresGlobalHeader() bool {
	return m.ctx.Flags()&FormatGlobalHeader != 0
}

// AddStream registers a stream fed by enc and returns its index. The stream
// time base is seeded with the encoder time base.
func (m *OutputMuxer) AddStream(enc *Encoder) (int, error) {
	return m.addStream(enc.Parameters(), enc.TimeBase())
}

// AddStreamParams registers a stream for packets in time base tb, for stream
// copy.
func (m *OutputMuxer) AddStreamParams(par CodecParameters, tb Rational) (int, error) {
	return m.addStream(par, tb)
}

func (m *OutputMuxer) addStream(par CodecParameters, tb Rational) (int, error) {
	if m.opened {
		return -1, Errorf("cannot add a stream to %q after the header was written", m.filename)
	}
	if tb.IsZero() {
		return -1, Errorf("stream time base is not set: %w", ErrInvalidArgument)
	}
	index, err := m.ctx.NewStream(par, tb)
	if err != nil {
		return -1, Errorf("failed allocating output stream: %w", err)
	}
	m.sources = append(m.sources, tb)
	m.log.Debug("stream added", "index", index, "codec", par.CodecID, "time_base", tb)
	return index, nil
}

// Open opens the output file and writes the container header.
func (m *OutputMuxer) Open() error {
	if m.opened {
		return Errorf("output %q is already open", m.filename)
	}
	if m.ctx.Flags()&FormatNoFile == 0 {
		if err := m.ctx.OpenIO(m.filename); err != nil {
			return Errorf("could not open output file %q: %w", m.filename, err)
		}
	}
	if err := m.ctx.WriteHeader(); err != nil {
		return Errorf("error occurred when writing header to %q: %w", m.filename, err)
	}
	m.opened = true
	for i, src := range m.sources {
		m.log.Info("output stream", "index", i, "source_time_base", src, "stream_time_base", m.ctx.StreamTimeBase(i))
	}
	return nil
}

// WritePacket rescales pkt from the stream's source time base to the
// container time base, assigns it to streamIndex and writes it interleaved.
// The container takes the payload; pkt is left empty.
func (m *OutputMuxer) WritePacket(pkt *Packet, streamIndex int) error {
	if !m.opened {
		return Errorf("output %q is not open", m.filename)
	}
	if streamIndex < 0 || streamIndex >= len(m.sources) {
		return Errorf("stream index %d out of range [0, %d)", streamIndex, len(m.sources))
	}
	pkt.RescaleTS(m.sources[streamIndex], m.ctx.StreamTimeBase(streamIndex))
	pkt.StreamIndex = streamIndex
	pkt.Pos = -1
	if err := m.ctx.WriteInterleaved(pkt); err != nil {
		m.metrics.writeError(streamIndex)
		return Errorf("error while writing packet to stream %d: %w", streamIndex, err)
	}
	m.metrics.packetWritten(streamIndex)
	return nil
}

// NumStreams returns the number of registered streams.
func (m *OutputMuxer) NumStreams() int { return len(m.sources) }

// StreamTimeBase returns the container time base of stream i.
func (m *OutputMuxer) StreamTimeBase(i int) Rational { return m.ctx.StreamTimeBase(i) }

// Close writes the trailer when the header was written and releases the
// container. Trailer failures are logged.
func (m *OutputMuxer) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.opened {
		if err := m.ctx.WriteTrailer(); err != nil {
			m.log.Error("failed to write trailer", "error", err)
		}
	}
	if err := m.ctx.Close(); err != nil && !errors.Is(err, ErrUnsupported) {
		return Errorf("failed to close %q: %w", m.filename, err)
	}
	return nil
}

package pureav

import (
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

// maxInterleaveDelay bounds the packets queued while waiting for a stream
// that has not produced anything yet.
const maxInterleaveDelay = 64

type muxStream struct {
	par av.CodecParameters
	tb  av.Rational
}

// containerWriter writes one output container format.
type containerWriter interface {
	flags() av.FormatFlags
	// timeBase returns the stream time base the container imposes, zero to
	// keep the requested one.
	timeBase(par av.CodecParameters) av.Rational
	checkStream(par av.CodecParameters) error
	writeHeader(w io.WriteCloser, streams []muxStream) error
	writePacket(pkt *av.Packet) error
	close() error
}

// muxContext implements av.MuxContext. Packets are queued and released in
// DTS order once every stream has one pending.
type muxContext struct {
	eng      *Engine
	filename string
	format   string
	cw       containerWriter
	streams  []muxStream
	f        *os.File
	queue    []*av.Packet
	header   bool
	log      *slog.Logger
}

// NewOutput implements av.FormatEngine.
func (e *Engine) NewOutput(filename, formatName string) (av.MuxContext, error) {
	format := formatName
	if format == "" {
		format = formatFromName(filename)
	}
	var cw containerWriter
	switch format {
	case formatWebM, formatMKV:
		cw = newWebMWriter(format)
	case formatOgg:
		cw = &oggWriter{}
	case formatNull:
		cw = nullWriter{}
	default:
		return nil, errors.Wrapf(av.ErrUnsupported, "pureav: no muxer for %q (format %q)", filename, formatName)
	}
	return &muxContext{
		eng:      e,
		filename: filename,
		format:   format,
		cw:       cw,
		log:      e.log.With("output", filename, "format", format),
	}, nil
}

func (m *muxContext) FormatName() string { return m.format }

func (m *muxContext) Flags() av.FormatFlags { return m.cw.flags() }

func (m *muxContext) NewStream(par av.CodecParameters, tb av.Rational) (int, error) {
	if m.header {
		return -1, errors.New("pureav: stream added after header")
	}
	if err := m.cw.checkStream(par); err != nil {
		return -1, err
	}
	m.streams = append(m.streams, muxStream{par: par, tb: tb})
	return len(m.streams) - 1, nil
}

func (m *muxContext) OpenIO(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "pureav: create output")
	}
	m.f = f
	return nil
}

func (m *muxContext) WriteHeader() error {
	if len(m.streams) == 0 {
		return errors.Wrap(av.ErrInvalidArgument, "pureav: no streams")
	}
	if m.f == nil && m.cw.flags()&av.FormatNoFile == 0 {
		return errors.New("pureav: output is not open")
	}
	for i := range m.streams {
		if tb := m.cw.timeBase(m.streams[i].par); !tb.IsZero() {
			m.streams[i].tb = tb
		}
	}
	var w io.WriteCloser
	if m.f != nil {
		w = m.f
	}
	if err := m.cw.writeHeader(w, m.streams); err != nil {
		return err
	}
	m.header = true
	m.log.Debug("header written", "streams", len(m.streams))
	return nil
}

func (m *muxContext) StreamTimeBase(i int) av.Rational {
	if i < 0 || i >= len(m.streams) {
		return av.Rational{}
	}
	return m.streams[i].tb
}

func (m *muxContext) WriteInterleaved(pkt *av.Packet) error {
	if !m.header {
		pkt.Unref()
		return errors.New("pureav: header not written")
	}
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(m.streams) {
		pkt.Unref()
		return errors.Wrapf(av.ErrInvalidArgument, "pureav: stream %d", pkt.StreamIndex)
	}
	q := av.NewPacket()
	pkt.MoveRef(q)
	if q.DTS == av.NoPTS {
		q.DTS = q.PTS
	}
	m.queue = append(m.queue, q)
	return m.release(false)
}

// dts returns the packet DTS in microseconds for ordering across streams.
func (m *muxContext) dts(p *av.Packet) int64 {
	return av.Rescale(p.DTS, m.streams[p.StreamIndex].tb, av.R(1, 1000000))
}

// release writes queued packets in DTS order while every stream has a
// packet pending, or all of them when flush is set.
func (m *muxContext) release(flush bool) error {
	sort.SliceStable(m.queue, func(i, j int) bool { return m.dts(m.queue[i]) < m.dts(m.queue[j]) })
	for len(m.queue) > 0 {
		if !flush && len(m.queue) <= maxInterleaveDelay*len(m.streams) && !m.allPending() {
			return nil
		}
		p := m.queue[0]
		m.queue = m.queue[1:]
		err := m.cw.writePacket(p)
		p.Unref()
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *muxContext) allPending() bool {
	seen := make([]bool, len(m.streams))
	n := 0
	for _, p := range m.queue {
		if !seen[p.StreamIndex] {
			seen[p.StreamIndex] = true
			n++
		}
	}
	return n == len(m.streams)
}

func (m *muxContext) WriteTrailer() error {
	if !m.header {
		return errors.New("pureav: header not written")
	}
	return m.release(true)
}

func (m *muxContext) Close() error {
	for _, p := range m.queue {
		p.Unref()
	}
	m.queue = nil
	if m.header {
		m.header = false
		m.f = nil
		return m.cw.close()
	}
	if m.f != nil {
		err := m.f.Close()
		m.f = nil
		return err
	}
	return nil
}

// nullWriter discards everything.
type nullWriter struct{}

func (nullWriter) flags() av.FormatFlags                         { return av.FormatNoFile }
func (nullWriter) timeBase(av.CodecParameters) av.Rational       { return av.Rational{} }
func (nullWriter) checkStream(av.CodecParameters) error          { return nil }
func (nullWriter) writeHeader(io.WriteCloser, []muxStream) error { return nil }
func (nullWriter) writePacket(*av.Packet) error                  { return nil }
func (nullWriter) close() error                                  { return nil }

package avtest

import (
	"io"

	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

// Input is a scripted container.
type Input struct {
	Streams []av.StreamInfo
	Packets []*av.Packet
	// AgainEvery makes every nth read return av.ErrAgain first.
	AgainEvery int
	// ReadError, when set, is returned once the packets are exhausted
	// instead of io.EOF.
	ReadError error
	// FailStreamInfo makes FindStreamInfo fail.
	FailStreamInfo bool

	pos    int
	reads  int
	Closed bool
}

// AddInput registers a scripted container under url.
func (e *Engine) AddInput(url string, in *Input) { e.Inputs[url] = in }

// OpenInput implements av.FormatEngine.
func (e *Engine) OpenInput(url string) (av.DemuxContext, error) {
	e.count("OpenInput")
	in, ok := e.Inputs[url]
	if !ok {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "avtest: no input %q", url)
	}
	in.pos = 0
	in.reads = 0
	in.Closed = false
	return &demuxContext{engine: e, in: in}, nil
}

type demuxContext struct {
	engine *Engine
	in     *Input
}

func (d *demuxContext) FindStreamInfo() error {
	d.engine.count("FindStreamInfo")
	if d.in.FailStreamInfo {
		return ErrInjected
	}
	return nil
}

func (d *demuxContext) Streams() []av.StreamInfo { return d.in.Streams }

func (d *demuxContext) FindBestStream(t av.MediaType) (int, av.CodecDescriptor, error) {
	d.engine.count("FindBestStream")
	for _, s := range d.in.Streams {
		if s.Params.MediaType != t {
			continue
		}
		desc, err := d.engine.FindDecoder(s.Params.CodecID)
		if err != nil {
			return s.Index, av.CodecDescriptor{}, err
		}
		return s.Index, desc, nil
	}
	return -1, av.CodecDescriptor{}, errors.Wrapf(av.ErrStreamNotFound, "no %s stream", t)
}

func (d *demuxContext) ReadPacket(pkt *av.Packet) error {
	d.engine.count("ReadPacket")
	d.in.reads++
	if d.in.AgainEvery > 0 && d.in.reads%d.in.AgainEvery == 0 {
		return av.ErrAgain
	}
	if d.in.pos >= len(d.in.Packets) {
		if d.in.ReadError != nil {
			return d.in.ReadError
		}
		return io.EOF
	}
	pkt.Ref(d.in.Packets[d.in.pos])
	d.in.pos++
	return nil
}

func (d *demuxContext) Close() error {
	d.engine.count("CloseInput")
	d.in.Closed = true
	return nil
}

// OutputStream is a stream registered with a recording muxer.
type OutputStream struct {
	Params   av.CodecParameters
	TimeBase av.Rational
}

// WrittenPacket is a packet as the muxer received it.
type WrittenPacket struct {
	StreamIndex int
	PTS         int64
	DTS         int64
	Duration    int64
	Pos         int64
	Size        int
	Key         bool
}

// Output records everything written to a muxer.
type Output struct {
	Filename string
	Format   string
	Streams  []OutputStream
	Packets  []WrittenPacket

	// FailWrites lists write calls (0-based) that fail.
	FailWrites map[int]bool
	FailHeader bool

	Opened         bool
	HeaderWritten  bool
	TrailerWritten bool
	Closed         bool
	writes         int
}

// PacketsFor returns the packets written to stream i.
func (o *Output) PacketsFor(i int) []WrittenPacket {
	var out []WrittenPacket
	for _, p := range o.Packets {
		if p.StreamIndex == i {
			out = append(out, p)
		}
	}
	return out
}

// NewOutput implements av.FormatEngine. A prepared Output registered under
// filename is reused so tests can inject failures.
func (e *Engine) NewOutput(filename, formatName string) (av.MuxContext, error) {
	e.count("NewOutput")
	out, ok := e.Outputs[filename]
	if !ok {
		out = &Output{}
		e.Outputs[filename] = out
	}
	out.Filename = filename
	out.Format = formatName
	if out.Format == "" {
		out.Format = "avtest"
	}
	return &muxContext{engine: e, out: out}, nil
}

type muxContext struct {
	engine *Engine
	out    *Output
}

func (m *muxContext) FormatName() string { return m.out.Format }

func (m *muxContext) Flags() av.FormatFlags { return m.engine.OutputFlags }

func (m *muxContext) NewStream(par av.CodecParameters, tb av.Rational) (int, error) {
	m.engine.count("NewStream")
	m.out.Streams = append(m.out.Streams, OutputStream{Params: par, TimeBase: tb})
	return len(m.out.Streams) - 1, nil
}

func (m *muxContext) OpenIO(string) error {
	m.engine.count("OpenIO")
	m.out.Opened = true
	return nil
}

func (m *muxContext) WriteHeader() error {
	m.engine.count("WriteHeader")
	if m.out.FailHeader {
		return ErrInjected
	}
	for i, s := range m.out.Streams {
		if tb, ok := m.engine.ContainerTimeBases[s.Params.MediaType]; ok {
			m.out.Streams[i].TimeBase = tb
		}
	}
	m.out.HeaderWritten = true
	return nil
}

func (m *muxContext) StreamTimeBase(i int) av.Rational {
	if i < 0 || i >= len(m.out.Streams) {
		return av.Rational{}
	}
	return m.out.Streams[i].TimeBase
}

func (m *muxContext) WriteInterleaved(pkt *av.Packet) error {
	m.engine.count("WriteInterleaved")
	defer pkt.Unref()
	n := m.out.writes
	m.out.writes++
	if m.out.FailWrites[n] {
		return ErrInjected
	}
	m.out.Packets = append(m.out.Packets, WrittenPacket{
		StreamIndex: pkt.StreamIndex,
		PTS:         pkt.PTS,
		DTS:         pkt.DTS,
		Duration:    pkt.Duration,
		Pos:         pkt.Pos,
		Size:        pkt.Size(),
		Key:         pkt.IsKeyframe(),
	})
	return nil
}

func (m *muxContext) WriteTrailer() error {
	m.engine.count("WriteTrailer")
	m.out.TrailerWritten = true
	return nil
}

func (m *muxContext) Close() error {
	m.engine.count("CloseOutput")
	m.out.Closed = true
	return nil
}

package libav

import (
	"log/slog"
	"runtime"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

// demuxContext wraps an opened AVFormatContext.
type demuxContext struct {
	eng     *Engine
	handle  uint64
	url     string
	streams []av.StreamInfo
	cpkt    *mediaAVPacket
	log     *slog.Logger
}

// OpenInput implements av.FormatEngine.
func (e *Engine) OpenInput(url string) (av.DemuxContext, error) {
	h := mediaAVInputOpen(url)
	if h == 0 {
		return nil, errors.Errorf("libav: open %s: %s", url, lastError())
	}
	d := &demuxContext{
		eng:    e,
		handle: h,
		url:    url,
		cpkt:   &mediaAVPacket{},
		log:    e.log.With("input", url),
	}
	if err := d.loadStreams(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *demuxContext) loadStreams() error {
	n := mediaAVInputNbStreams(d.handle)
	d.streams = d.streams[:0]
	cs := &mediaAVStream{}
	for i := int32(0); i < n; i++ {
		*cs = mediaAVStream{}
		if err := status("stream info", mediaAVInputStream(d.handle, i, uintptr(unsafe.Pointer(cs)))); err != nil {
			return err
		}
		d.streams = append(d.streams, av.StreamInfo{
			Index:     int(i),
			Params:    goParams(&cs.Params),
			TimeBase:  av.R(int(cs.TimeBaseNum), int(cs.TimeBaseDen)),
			FrameRate: av.R(int(cs.FrameRateNum), int(cs.FrameRateDen)),
			Duration:  cs.Duration,
		})
	}
	return nil
}

func (d *demuxContext) FindStreamInfo() error {
	if err := status("find stream info", mediaAVInputFindStreamInfo(d.handle)); err != nil {
		return err
	}
	if err := d.loadStreams(); err != nil {
		return err
	}
	d.log.Debug("stream info", "streams", len(d.streams))
	return nil
}

func (d *demuxContext) Streams() []av.StreamInfo {
	out := make([]av.StreamInfo, len(d.streams))
	copy(out, d.streams)
	return out
}

func (d *demuxContext) FindBestStream(t av.MediaType) (int, av.CodecDescriptor, error) {
	best := &mediaAVBestStream{Index: -1}
	err := status("find best "+t.String()+" stream", mediaAVInputFindBestStream(d.handle, cMediaType(t), uintptr(unsafe.Pointer(best))))
	index := int(best.Index)
	if err != nil {
		return index, av.CodecDescriptor{}, err
	}
	if index < 0 || index >= len(d.streams) {
		return -1, av.CodecDescriptor{}, errors.Wrapf(av.ErrStreamNotFound, "libav: best %s stream %d", t, index)
	}
	name := goStringFromPtr(best.Decoder)
	if dec, ok := d.eng.find(func(c av.CodecDescriptor) bool { return c.Name == name && c.Decoder }); ok {
		return index, dec, nil
	}
	// Fall back to the codec id when the shim reports a decoder the
	// registry lists under another name.
	dec, err := d.eng.FindDecoder(d.streams[index].Params.CodecID)
	return index, dec, err
}

func (d *demuxContext) ReadPacket(pkt *av.Packet) error {
	*d.cpkt = mediaAVPacket{}
	if err := status("read packet", mediaAVInputReadPacket(d.handle, uintptr(unsafe.Pointer(d.cpkt)))); err != nil {
		return err
	}
	fillPacket(d.cpkt, pkt)
	return nil
}

func (d *demuxContext) Close() error {
	if d.handle != 0 {
		mediaAVInputClose(d.handle)
		d.handle = 0
	}
	return nil
}

// muxContext wraps an output AVFormatContext.
type muxContext struct {
	handle   uint64
	filename string
	log      *slog.Logger
}

// NewOutput implements av.FormatEngine.
func (e *Engine) NewOutput(filename, formatName string) (av.MuxContext, error) {
	h := mediaAVOutputCreate(filename, formatName)
	if h == 0 {
		return nil, errors.Wrapf(av.ErrUnsupported, "libav: output %s (format %q): %s", filename, formatName, lastError())
	}
	m := &muxContext{handle: h, filename: filename}
	m.log = e.log.With("output", filename, "format", m.FormatName())
	return m, nil
}

func (m *muxContext) FormatName() string {
	return goStringFromPtr(mediaAVOutputFormatName(m.handle))
}

func (m *muxContext) Flags() av.FormatFlags {
	raw := mediaAVOutputFlags(m.handle)
	var f av.FormatFlags
	if raw&avfmtGlobalHeader != 0 {
		f |= av.FormatGlobalHeader
	}
	if raw&avfmtNoFile != 0 {
		f |= av.FormatNoFile
	}
	return f
}

func (m *muxContext) NewStream(par av.CodecParameters, tb av.Rational) (int, error) {
	p := newCParams(par)
	ret := mediaAVOutputNewStream(m.handle, p.ptr(), int32(tb.Num), int32(tb.Den))
	runtime.KeepAlive(p)
	if ret < 0 {
		return -1, status("new stream", ret)
	}
	return int(ret), nil
}

func (m *muxContext) OpenIO(filename string) error {
	return status("open "+filename, mediaAVOutputOpenIO(m.handle, filename))
}

func (m *muxContext) WriteHeader() error {
	if err := status("write header", mediaAVOutputWriteHeader(m.handle)); err != nil {
		return err
	}
	m.log.Debug("header written")
	return nil
}

func (m *muxContext) StreamTimeBase(index int) av.Rational {
	tb := &mediaAVRational{}
	if mediaAVOutputStreamTimeBase(m.handle, int32(index), uintptr(unsafe.Pointer(tb))) != mediaAVOK {
		return av.Rational{}
	}
	return av.R(int(tb.Num), int(tb.Den))
}

// WriteInterleaved hands pkt to av_interleaved_write_frame, which takes
// ownership of the payload; pkt is left empty.
func (m *muxContext) WriteInterleaved(pkt *av.Packet) error {
	cp := cPacket(pkt)
	ret := mediaAVOutputWriteInterlvd(m.handle, uintptr(unsafe.Pointer(cp)))
	runtime.KeepAlive(pkt)
	runtime.KeepAlive(cp)
	pkt.Unref()
	return status("write packet", ret)
}

func (m *muxContext) WriteTrailer() error {
	return status("write trailer", mediaAVOutputWriteTrailer(m.handle))
}

func (m *muxContext) Close() error {
	if m.handle != 0 {
		mediaAVOutputClose(m.handle)
		m.handle = 0
	}
	return nil
}

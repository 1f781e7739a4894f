package pureav

import (
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

// packetSource reads the packets of one container format.
type packetSource interface {
	readPacket(pkt *av.Packet) error
	close() error
}

// demuxContext implements av.DemuxContext over a packetSource.
type demuxContext struct {
	eng     *Engine
	url     string
	format  string
	streams []av.StreamInfo
	src     packetSource
	log     *slog.Logger
}

// OpenInput implements av.FormatEngine. The container is probed from its
// first bytes, then from the file extension.
func (e *Engine) OpenInput(url string) (av.DemuxContext, error) {
	f, err := os.Open(url)
	if err != nil {
		return nil, errors.Wrap(err, "pureav: open input")
	}
	head := make([]byte, probeSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, errors.Wrap(err, "pureav: probe input")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "pureav: rewind input")
	}

	d := &demuxContext{eng: e, url: url, format: probeFormat(head[:n], url)}
	d.log = e.log.With("url", url, "format", d.format)
	switch d.format {
	case formatWebM, formatMKV:
		d.src, d.streams, err = openWebM(f)
	case formatIVF:
		d.src, d.streams, err = openIVF(f)
	case formatOgg:
		d.src, d.streams, err = openOgg(f)
	case formatH264:
		d.src, d.streams, err = openH264(f, e.rawFrameRate)
	default:
		err = errors.Wrapf(av.ErrUnsupported, "pureav: unknown container for %q", url)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	d.log.Debug("input opened", "streams", len(d.streams))
	return d, nil
}

// FindStreamInfo implements av.DemuxContext. Stream parameters are read
// when the input is opened.
func (d *demuxContext) FindStreamInfo() error {
	if len(d.streams) == 0 {
		return errors.Errorf("pureav: no streams in %q", d.url)
	}
	return nil
}

func (d *demuxContext) Streams() []av.StreamInfo { return d.streams }

// FindBestStream implements av.DemuxContext: the first stream of type t
// with a decoder, else the first stream of type t.
func (d *demuxContext) FindBestStream(t av.MediaType) (int, av.CodecDescriptor, error) {
	first := -1
	for _, s := range d.streams {
		if s.Params.MediaType != t {
			continue
		}
		if desc, err := d.eng.FindDecoder(s.Params.CodecID); err == nil {
			return s.Index, desc, nil
		}
		if first < 0 {
			first = s.Index
		}
	}
	if first < 0 {
		return -1, av.CodecDescriptor{}, errors.Wrapf(av.ErrStreamNotFound, "pureav: no %s stream", t)
	}
	id := d.streams[first].Params.CodecID
	desc, _ := d.eng.describe(id)
	return first, desc, errors.Wrapf(av.ErrDecoderNotFound, "pureav: no decoder for %s", id)
}

func (d *demuxContext) ReadPacket(pkt *av.Packet) error {
	if d.src == nil {
		return errors.New("pureav: input closed")
	}
	return d.src.readPacket(pkt)
}

func (d *demuxContext) Close() error {
	if d.src == nil {
		return nil
	}
	err := d.src.close()
	d.src = nil
	return err
}

// guessFrameRate derives a frame rate from the first timestamp step,
// falling back to 25 fps.
func guessFrameRate(pts []int64, tb av.Rational) av.Rational {
	for i := 1; i < len(pts); i++ {
		if step := pts[i] - pts[i-1]; step > 0 {
			return av.R(tb.Den, int(step)*tb.Num).Reduce()
		}
	}
	return av.R(25, 1)
}

package pureav

import (
	"io"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

// oggWriter muxes a single Opus stream. pion's writer derives granule
// positions from RTP timestamps, so packets are framed as RTP packets
// whose timestamp is the PTS in 1/48000.
type oggWriter struct {
	w   *oggwriter.OggWriter
	seq uint16
}

func (o *oggWriter) flags() av.FormatFlags { return 0 }

func (o *oggWriter) timeBase(av.CodecParameters) av.Rational { return av.R(1, opusRate) }

func (o *oggWriter) checkStream(par av.CodecParameters) error {
	if par.CodecID != av.CodecOpus {
		return errors.Wrapf(av.ErrUnsupported, "pureav: ogg muxer only carries opus, got %s", par.CodecID)
	}
	return nil
}

func (o *oggWriter) writeHeader(out io.WriteCloser, streams []muxStream) error {
	if len(streams) != 1 {
		return errors.Wrapf(av.ErrUnsupported, "pureav: ogg muxer takes one stream, got %d", len(streams))
	}
	channels := streams[0].par.Channels
	if channels <= 0 {
		channels = 2
	}
	w, err := oggwriter.NewWith(out, opusRate, uint16(channels))
	if err != nil {
		return errors.Wrap(err, "pureav: write ogg header")
	}
	o.w = w
	return nil
}

func (o *oggWriter) writePacket(pkt *av.Packet) error {
	ts := pkt.PTS
	if ts == av.NoPTS {
		ts = pkt.DTS
	}
	p := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    111,
			SequenceNumber: o.seq,
			Timestamp:      uint32(ts),
		},
		Payload: pkt.Data(),
	}
	o.seq++
	if err := o.w.WriteRTP(p); err != nil {
		return errors.Wrap(err, "pureav: write ogg page")
	}
	return nil
}

func (o *oggWriter) close() error {
	if o.w == nil {
		return nil
	}
	err := o.w.Close()
	o.w = nil
	return err
}

package pureav

import (
	"io"
	"os"

	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

var ivfCodecs = map[string]av.CodecID{
	"VP80": av.CodecVP8,
	"VP90": av.CodecVP9,
	"AV01": av.CodecAV1,
	"H264": av.CodecH264,
}

type ivfSource struct {
	f        *os.File
	r        *ivfreader.IVFReader
	codec    av.CodecID
	num, den uint64
}

func openIVF(f *os.File) (packetSource, []av.StreamInfo, error) {
	r, h, err := ivfreader.NewWith(f)
	if err != nil {
		return nil, nil, errors.Wrap(err, "pureav: parse ivf header")
	}
	id, ok := ivfCodecs[h.FourCC]
	if !ok {
		return nil, nil, errors.Wrapf(av.ErrUnsupported, "pureav: ivf fourcc %q", h.FourCC)
	}
	tb := av.R(int(h.TimebaseNumerator), int(h.TimebaseDenominator)).Reduce()
	if tb.IsZero() {
		tb = av.R(1, 30)
	}
	info := av.StreamInfo{
		Index: 0,
		Params: av.CodecParameters{
			MediaType: av.MediaTypeVideo,
			CodecID:   id,
			Width:     int(h.Width),
			Height:    int(h.Height),
			TimeBase:  tb,
		},
		TimeBase:  tb,
		FrameRate: tb.Inv(),
		Duration:  int64(h.NumFrames),
	}
	info.Params.FrameRate = info.FrameRate
	src := &ivfSource{f: f, r: r, codec: id, num: uint64(h.TimebaseNumerator), den: uint64(h.TimebaseDenominator)}
	return src, []av.StreamInfo{info}, nil
}

func (s *ivfSource) readPacket(pkt *av.Packet) error {
	payload, fh, err := s.r.ParseNextFrame()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return errors.Wrap(err, "pureav: read ivf frame")
	}
	pkt.SetData(payload)
	pkt.StreamIndex = 0
	pkt.PTS = s.pts(fh.Timestamp)
	pkt.DTS = pkt.PTS
	pkt.Duration = 1
	if isKeyframe(s.codec, payload) {
		pkt.Flags |= av.PacketFlagKey
	}
	return nil
}

// pts undoes the reader's scaling of frame timestamps by den/num, giving
// ticks of the header time base.
func (s *ivfSource) pts(ts uint64) int64 {
	if s.num == 0 || s.den == 0 {
		return int64(ts)
	}
	return int64((ts*s.num + s.den/2) / s.den)
}

func (s *ivfSource) close() error { return s.f.Close() }

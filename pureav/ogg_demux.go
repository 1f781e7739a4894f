package pureav

import (
	"bytes"
	"io"
	"os"

	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

const opusRate = 48000

// oggSource reads Ogg/Opus pages. Each page is returned as one packet;
// timestamps come from the granule positions in 1/48000.
type oggSource struct {
	f       *os.File
	r       *oggreader.OggReader
	granule int64
}

func openOgg(f *os.File) (packetSource, []av.StreamInfo, error) {
	r, h, err := oggreader.NewWith(f)
	if err != nil {
		return nil, nil, errors.Wrap(err, "pureav: parse ogg header")
	}
	tb := av.R(1, opusRate)
	info := av.StreamInfo{
		Params: av.CodecParameters{
			MediaType:  av.MediaTypeAudio,
			CodecID:    av.CodecOpus,
			Channels:   int(h.Channels),
			SampleRate: opusRate,
			TimeBase:   tb,
		},
		TimeBase: tb,
		Duration: av.NoPTS,
	}
	return &oggSource{f: f, r: r}, []av.StreamInfo{info}, nil
}

func (s *oggSource) readPacket(pkt *av.Packet) error {
	for {
		payload, ph, err := s.r.ParseNextPage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return io.EOF
			}
			return errors.Wrap(err, "pureav: read ogg page")
		}
		if bytes.HasPrefix(payload, []byte("OpusHead")) || bytes.HasPrefix(payload, []byte("OpusTags")) || len(payload) == 0 {
			continue
		}
		granule := int64(ph.GranulePosition)
		pkt.SetData(payload)
		pkt.StreamIndex = 0
		pkt.PTS = s.granule
		pkt.DTS = s.granule
		pkt.Duration = max(granule-s.granule, 0)
		pkt.Flags |= av.PacketFlagKey
		s.granule = granule
		return nil
	}
}

func (s *oggSource) close() error { return s.f.Close() }

package pureav

import (
	"io"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/pion/webrtc/v4/pkg/media/h264reader"
	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

// h264Source groups the NAL units of an Annex-B elementary stream into
// access units. Timestamps count frames.
type h264Source struct {
	f     *os.File
	r     *h264reader.H264Reader
	next  []byte // first NAL unit of the following access unit
	eof   bool
	count int64
}

func openH264(f *os.File, fallback av.Rational) (packetSource, []av.StreamInfo, error) {
	r, err := h264reader.NewReader(f)
	if err != nil {
		return nil, nil, errors.Wrap(err, "pureav: h264 reader")
	}
	par := av.CodecParameters{MediaType: av.MediaTypeVideo, CodecID: av.CodecH264, PixelFormat: av.PixelFormatI420}
	rate := fallback

	// Read up to the first SPS for the picture geometry, then rewind.
	for {
		nal, err := r.NextNAL()
		if err != nil {
			break
		}
		if len(nal.Data) > 0 && h264.NALUType(nal.Data[0]&0x1F) == h264.NALUTypeSPS {
			var sps h264.SPS
			if err := sps.Unmarshal(nal.Data); err == nil {
				par.Width = sps.Width()
				par.Height = sps.Height()
				if fps := sps.FPS(); fps > 0 {
					rate = av.RationalFromFloat(fps, 1<<20)
				}
			}
			break
		}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, nil, errors.Wrap(err, "pureav: rewind h264")
	}
	if r, err = h264reader.NewReader(f); err != nil {
		return nil, nil, errors.Wrap(err, "pureav: h264 reader")
	}
	tb := rate.Inv()
	par.FrameRate = rate
	par.TimeBase = tb
	info := av.StreamInfo{Params: par, TimeBase: tb, FrameRate: rate, Duration: av.NoPTS}
	return &h264Source{f: f, r: r}, []av.StreamInfo{info}, nil
}

func isVCL(t h264.NALUType) bool {
	return t == h264.NALUTypeNonIDR || t == h264.NALUTypeIDR
}

// startsAccessUnit reports whether nalu opens a new access unit once a
// picture has been seen (7.4.1.2.3).
func startsAccessUnit(nalu []byte) bool {
	t := h264.NALUType(nalu[0] & 0x1F)
	switch {
	case isVCL(t):
		// first_mb_in_slice == 0 is coded as a single 1 bit.
		return len(nalu) > 1 && nalu[1]&0x80 != 0
	case t == h264.NALUTypeAccessUnitDelimiter, t == h264.NALUTypeSPS,
		t == h264.NALUTypePPS, t == h264.NALUTypeSEI:
		return true
	}
	return false
}

func (s *h264Source) readPacket(pkt *av.Packet) error {
	var au h264.AnnexB
	var picture, key bool
	if s.next != nil {
		au = append(au, s.next)
		t := h264.NALUType(s.next[0] & 0x1F)
		picture, key = isVCL(t), t == h264.NALUTypeIDR
		s.next = nil
	}
	for !s.eof {
		nal, err := s.r.NextNAL()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return errors.Wrap(err, "pureav: read h264")
			}
			s.eof = true
			break
		}
		if len(nal.Data) == 0 {
			continue
		}
		data := append([]byte(nil), nal.Data...)
		if picture && startsAccessUnit(data) {
			s.next = data
			break
		}
		au = append(au, data)
		t := h264.NALUType(data[0] & 0x1F)
		picture = picture || isVCL(t)
		key = key || t == h264.NALUTypeIDR
	}
	if len(au) == 0 {
		return io.EOF
	}
	buf, err := au.Marshal()
	if err != nil {
		return errors.Wrap(err, "pureav: marshal access unit")
	}
	pkt.SetData(buf)
	pkt.StreamIndex = 0
	pkt.PTS = s.count
	pkt.DTS = s.count
	pkt.Duration = 1
	if key {
		pkt.Flags |= av.PacketFlagKey
	}
	s.count++
	return nil
}

func (s *h264Source) close() error { return s.f.Close() }

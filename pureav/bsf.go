package pureav

import (
	"io"
	"strings"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

// bsfStage is one filter of a chain. filter may emit any number of
// packets for one input.
type bsfStage interface {
	init(par av.CodecParameters) (av.CodecParameters, error)
	filter(in *av.Packet, emit func(*av.Packet)) error
	outputParameters() av.CodecParameters
}

var bsfRegistry = map[string]func() bsfStage{
	"null":             func() bsfStage { return &nullBSF{} },
	"h264_mp4toannexb": func() bsfStage { return &annexBBSF{} },
	"aac_adtstoasc":    func() bsfStage { return &adtsToASCBSF{} },
}

// bsfChain implements av.BSFContext for a comma separated filter list.
type bsfChain struct {
	stages  []bsfStage
	par     av.CodecParameters
	queue   []*av.Packet
	flushed bool
}

// ParseBitstreamFilter implements av.FilterEngine.
func (e *Engine) ParseBitstreamFilter(desc string) (av.BSFContext, error) {
	c := &bsfChain{}
	for _, name := range strings.Split(desc, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		newStage, ok := bsfRegistry[name]
		if !ok {
			return nil, errors.Wrapf(av.ErrUnsupported, "pureav: bitstream filter %q", name)
		}
		c.stages = append(c.stages, newStage())
	}
	if len(c.stages) == 0 {
		c.stages = append(c.stages, &nullBSF{})
	}
	return c, nil
}

func (c *bsfChain) SetInputParameters(par av.CodecParameters, _ av.Rational) error {
	c.par = par
	return nil
}

func (c *bsfChain) Init() error {
	par := c.par
	for _, s := range c.stages {
		var err error
		if par, err = s.init(par); err != nil {
			return err
		}
	}
	return nil
}

func (c *bsfChain) SendPacket(pkt *av.Packet) error {
	if c.flushed {
		return io.EOF
	}
	if pkt == nil {
		c.flushed = true
		return nil
	}
	batch := []*av.Packet{pkt.Clone()}
	for _, s := range c.stages {
		var next []*av.Packet
		for _, p := range batch {
			err := s.filter(p, func(out *av.Packet) { next = append(next, out) })
			if err != nil {
				for _, q := range next {
					q.Unref()
				}
				return err
			}
		}
		batch = next
	}
	c.queue = append(c.queue, batch...)
	return nil
}

func (c *bsfChain) ReceivePacket(pkt *av.Packet) error {
	if len(c.queue) == 0 {
		if c.flushed {
			return io.EOF
		}
		return av.ErrAgain
	}
	c.queue[0].MoveRef(pkt)
	c.queue = c.queue[1:]
	return nil
}

func (c *bsfChain) OutputParameters() av.CodecParameters {
	return c.stages[len(c.stages)-1].outputParameters()
}

func (c *bsfChain) Close() error {
	for _, p := range c.queue {
		p.Unref()
	}
	c.queue = nil
	return nil
}

type nullBSF struct{ par av.CodecParameters }

func (b *nullBSF) init(par av.CodecParameters) (av.CodecParameters, error) {
	b.par = par
	return par, nil
}

func (b *nullBSF) filter(in *av.Packet, emit func(*av.Packet)) error {
	emit(in)
	return nil
}

func (b *nullBSF) outputParameters() av.CodecParameters { return b.par }

// annexBBSF converts length prefixed H.264 to Annex-B, inserting the
// parameter sets from the avcC extradata before keyframes that lack them.
type annexBBSF struct {
	par      av.CodecParameters
	sps, pps []byte
}

func (b *annexBBSF) init(par av.CodecParameters) (av.CodecParameters, error) {
	if par.CodecID != av.CodecH264 {
		return par, errors.Wrapf(av.ErrInvalidArgument, "pureav: h264_mp4toannexb on %s", par.CodecID)
	}
	b.par = par
	if len(par.Extradata) == 0 || isAnnexBStartCode(par.Extradata) {
		return b.par, nil
	}
	sps, pps, lengthSize, ok := parseAVCDecoderConfig(par.Extradata)
	if !ok {
		return par, errors.Wrap(av.ErrInvalidArgument, "pureav: malformed avcC extradata")
	}
	if lengthSize != 4 {
		return par, errors.Wrapf(av.ErrUnsupported, "pureav: %d byte NAL lengths", lengthSize)
	}
	b.sps, b.pps = sps, pps
	extradata, err := h264.AnnexB([][]byte{sps, pps}).Marshal()
	if err != nil {
		return par, errors.Wrap(err, "pureav: marshal parameter sets")
	}
	b.par.Extradata = extradata
	return b.par, nil
}

func (b *annexBBSF) filter(in *av.Packet, emit func(*av.Packet)) error {
	if isAnnexBStartCode(in.Data()) {
		emit(in)
		return nil
	}
	var au h264.AVCC
	if err := au.Unmarshal(in.Data()); err != nil {
		in.Unref()
		return errors.Wrap(err, "pureav: parse avcc packet")
	}
	if b.sps != nil && containsNALU(au, h264.NALUTypeIDR) && !containsNALU(au, h264.NALUTypeSPS) {
		au = append([][]byte{b.sps, b.pps}, au...)
	}
	buf, err := h264.AnnexB(au).Marshal()
	if err != nil {
		in.Unref()
		return errors.Wrap(err, "pureav: marshal annex-b packet")
	}
	out := av.NewPacketFromData(buf)
	out.CopyProps(in)
	in.Unref()
	emit(out)
	return nil
}

func (b *annexBBSF) outputParameters() av.CodecParameters { return b.par }

func containsNALU(au [][]byte, t h264.NALUType) bool {
	for _, n := range au {
		if len(n) > 0 && h264.NALUType(n[0]&0x1F) == t {
			return true
		}
	}
	return false
}

// parseAVCDecoderConfig returns the first SPS and PPS of an
// AVCDecoderConfigurationRecord and its NAL length size.
func parseAVCDecoderConfig(avcc []byte) (sps, pps []byte, lengthSize int, ok bool) {
	if len(avcc) < 7 || avcc[0] != 1 {
		return nil, nil, 0, false
	}
	lengthSize = int(avcc[4]&0x03) + 1
	i := 5
	numSPS := int(avcc[i] & 0x1F)
	i++
	for n := 0; n < numSPS; n++ {
		if i+2 > len(avcc) {
			return nil, nil, 0, false
		}
		l := int(avcc[i])<<8 | int(avcc[i+1])
		i += 2
		if i+l > len(avcc) {
			return nil, nil, 0, false
		}
		if sps == nil && l > 0 {
			sps = append([]byte(nil), avcc[i:i+l]...)
		}
		i += l
	}
	if i >= len(avcc) {
		return nil, nil, 0, false
	}
	numPPS := int(avcc[i])
	i++
	for n := 0; n < numPPS; n++ {
		if i+2 > len(avcc) {
			return nil, nil, 0, false
		}
		l := int(avcc[i])<<8 | int(avcc[i+1])
		i += 2
		if i+l > len(avcc) {
			return nil, nil, 0, false
		}
		if pps == nil && l > 0 {
			pps = append([]byte(nil), avcc[i:i+l]...)
		}
		i += l
	}
	return sps, pps, lengthSize, sps != nil && pps != nil
}

// adtsToASCBSF strips ADTS headers from AAC packets. The first packet's
// header becomes the AudioSpecificConfig in the output extradata.
type adtsToASCBSF struct {
	par av.CodecParameters
}

func (b *adtsToASCBSF) init(par av.CodecParameters) (av.CodecParameters, error) {
	if par.CodecID != av.CodecAAC {
		return par, errors.Wrapf(av.ErrInvalidArgument, "pureav: aac_adtstoasc on %s", par.CodecID)
	}
	b.par = par
	return par, nil
}

func (b *adtsToASCBSF) filter(in *av.Packet, emit func(*av.Packet)) error {
	if !isADTS(in.Data()) {
		emit(in)
		return nil
	}
	var pkts mpeg4audio.ADTSPackets
	if err := pkts.Unmarshal(in.Data()); err != nil {
		in.Unref()
		return errors.Wrap(err, "pureav: parse adts")
	}
	if len(b.par.Extradata) == 0 && len(pkts) > 0 {
		asc := mpeg4audio.AudioSpecificConfig{
			Type:         pkts[0].Type,
			SampleRate:   pkts[0].SampleRate,
			ChannelCount: pkts[0].ChannelCount,
		}
		extradata, err := asc.Marshal()
		if err != nil {
			in.Unref()
			return errors.Wrap(err, "pureav: marshal AudioSpecificConfig")
		}
		b.par.Extradata = extradata
		b.par.SampleRate = pkts[0].SampleRate
		b.par.Channels = pkts[0].ChannelCount
	}
	step := int64(0)
	if len(pkts) > 1 {
		step = in.Duration / int64(len(pkts))
	}
	for i, p := range pkts {
		out := av.NewPacketFromData(p.AU)
		out.CopyProps(in)
		if step > 0 {
			out.Duration = step
			if in.PTS != av.NoPTS {
				out.PTS = in.PTS + int64(i)*step
			}
			if in.DTS != av.NoPTS {
				out.DTS = in.DTS + int64(i)*step
			}
		}
		emit(out)
	}
	in.Unref()
	return nil
}

func (b *adtsToASCBSF) outputParameters() av.CodecParameters { return b.par }

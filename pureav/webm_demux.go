package pureav

import (
	"io"
	"os"

	"github.com/at-wat/ebml-go"
	"github.com/at-wat/ebml-go/webm"
	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

type webmContainer struct {
	Header  webm.EBMLHeader `ebml:"EBML"`
	Segment webm.Segment    `ebml:"Segment"`
}

// Matroska codec ids, in both directions.
var matroskaCodecs = map[string]av.CodecID{
	"V_VP8":            av.CodecVP8,
	"V_VP9":            av.CodecVP9,
	"V_AV1":            av.CodecAV1,
	"V_MPEG4/ISO/AVC":  av.CodecH264,
	"V_MPEGH/ISO/HEVC": av.CodecHEVC,
	"V_MPEG2":          av.CodecMPEG2Video,
	"V_UNCOMPRESSED":   av.CodecRawVideo,
	"A_OPUS":           av.CodecOpus,
	"A_AAC":            av.CodecAAC,
	"A_MPEG/L3":        av.CodecMP3,
	"A_PCM/INT/LIT":    av.CodecPCMS16LE,
	"A_PCM/FLOAT/IEEE": av.CodecPCMF32LE,
}

func matroskaCodecID(id av.CodecID) (string, bool) {
	for k, v := range matroskaCodecs {
		if v == id {
			return k, true
		}
	}
	return "", false
}

const (
	trackTypeVideo = 1
	trackTypeAudio = 2
)

// webmSource replays the blocks of a parsed WebM/Matroska file in file
// order.
type webmSource struct {
	f       *os.File
	packets []*av.Packet
	pos     int
}

func openWebM(f *os.File) (packetSource, []av.StreamInfo, error) {
	var c webmContainer
	if err := ebml.Unmarshal(f, &c); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, nil, errors.Wrap(err, "pureav: parse matroska")
	}
	seg := &c.Segment
	if len(seg.Tracks.TrackEntry) == 0 {
		return nil, nil, errors.New("pureav: matroska file has no tracks")
	}
	scale := seg.Info.TimecodeScale
	if scale == 0 {
		scale = 1000000
	}
	tb := av.R(int(scale), 1000000000).Reduce()

	byNumber := map[uint64]int{}
	var streams []av.StreamInfo
	for _, t := range seg.Tracks.TrackEntry {
		info, ok := webmStreamInfo(t, tb)
		if !ok {
			continue
		}
		info.Index = len(streams)
		byNumber[t.TrackNumber] = info.Index
		streams = append(streams, info)
	}
	if len(streams) == 0 {
		return nil, nil, errors.Wrap(av.ErrUnsupported, "pureav: no audio or video tracks")
	}

	src := &webmSource{f: f}
	add := func(cluster uint64, b ebml.Block, key bool) {
		index, ok := byNumber[b.TrackNumber]
		if !ok {
			return
		}
		for _, frame := range b.Data {
			pkt := av.NewPacketFromData(frame)
			pkt.StreamIndex = index
			pkt.PTS = int64(cluster) + int64(b.Timecode)
			pkt.DTS = pkt.PTS
			pkt.Duration = blockDuration(streams[index], len(frame), tb)
			if key {
				pkt.Flags |= av.PacketFlagKey
			}
			src.packets = append(src.packets, pkt)
		}
	}
	for _, cl := range seg.Cluster {
		for _, b := range cl.SimpleBlock {
			add(cl.Timecode, b, b.Keyframe)
		}
		for _, g := range cl.BlockGroup {
			add(cl.Timecode, g.Block, g.ReferenceBlock == 0)
		}
	}

	for i := range streams {
		if streams[i].Params.MediaType == av.MediaTypeVideo && streams[i].FrameRate.IsZero() {
			var pts []int64
			for _, p := range src.packets {
				if p.StreamIndex == i && len(pts) < 8 {
					pts = append(pts, p.PTS)
				}
			}
			streams[i].FrameRate = guessFrameRate(pts, tb)
		}
	}
	return src, streams, nil
}

func webmStreamInfo(t webm.TrackEntry, tb av.Rational) (av.StreamInfo, bool) {
	id, ok := matroskaCodecs[t.CodecID]
	if !ok {
		id = av.CodecID(t.CodecID)
	}
	info := av.StreamInfo{TimeBase: tb, Duration: av.NoPTS}
	par := av.CodecParameters{CodecID: id, TimeBase: tb}
	switch {
	case t.TrackType == trackTypeVideo && t.Video != nil:
		par.MediaType = av.MediaTypeVideo
		par.Width = int(t.Video.PixelWidth)
		par.Height = int(t.Video.PixelHeight)
		if id == av.CodecRawVideo {
			par.PixelFormat = av.ParsePixelFormat(string(t.CodecPrivate))
		} else {
			par.Extradata = t.CodecPrivate
		}
		if t.DefaultDuration > 0 {
			info.FrameRate = av.R(1000000000, int(t.DefaultDuration)).Reduce()
			par.FrameRate = info.FrameRate
		}
	case t.TrackType == trackTypeAudio && t.Audio != nil:
		par.MediaType = av.MediaTypeAudio
		par.SampleRate = int(t.Audio.SamplingFrequency)
		par.Channels = int(t.Audio.Channels)
		par.Extradata = t.CodecPrivate
		switch id {
		case av.CodecPCMS16LE:
			par.SampleFormat = av.SampleFormatS16
		case av.CodecPCMF32LE:
			par.SampleFormat = av.SampleFormatF32
		}
	default:
		return av.StreamInfo{}, false
	}
	info.Params = par
	return info, true
}

// blockDuration returns the duration of a PCM block in tb, 0 when it is
// not derivable from the payload size.
func blockDuration(s av.StreamInfo, size int, tb av.Rational) int64 {
	p := s.Params
	if p.MediaType == av.MediaTypeVideo && !s.FrameRate.IsZero() {
		return av.Rescale(1, s.FrameRate.Inv(), tb)
	}
	frameBytes := p.Channels * p.SampleFormat.BytesPerSample()
	if frameBytes == 0 || p.SampleRate == 0 {
		return 0
	}
	return av.Rescale(int64(size/frameBytes), av.R(1, p.SampleRate), tb)
}

func (s *webmSource) readPacket(pkt *av.Packet) error {
	if s.pos >= len(s.packets) {
		return io.EOF
	}
	s.packets[s.pos].MoveRef(pkt)
	s.pos++
	return nil
}

func (s *webmSource) close() error {
	for _, p := range s.packets[s.pos:] {
		p.Unref()
	}
	s.packets = nil
	return s.f.Close()
}

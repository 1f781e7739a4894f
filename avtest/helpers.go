package avtest

import "github.com/thesyncim/av"

// VideoStream describes an input video stream.
func VideoStream(index int, id av.CodecID, width, height int, timeBase, frameRate av.Rational) av.StreamInfo {
	return av.StreamInfo{
		Index: index,
		Params: av.CodecParameters{
			MediaType:   av.MediaTypeVideo,
			CodecID:     id,
			Width:       width,
			Height:      height,
			PixelFormat: av.PixelFormatI420,
		},
		TimeBase:  timeBase,
		FrameRate: frameRate,
		Duration:  av.NoPTS,
	}
}

// AudioStream describes an input audio stream.
func AudioStream(index int, id av.CodecID, channels, sampleRate int) av.StreamInfo {
	return av.StreamInfo{
		Index: index,
		Params: av.CodecParameters{
			MediaType:    av.MediaTypeAudio,
			CodecID:      id,
			Channels:     channels,
			SampleRate:   sampleRate,
			SampleFormat: av.SampleFormatF32P,
		},
		TimeBase: av.R(1, sampleRate),
		Duration: av.NoPTS,
	}
}

// Packet returns a one byte packet for stream at pts.
func Packet(stream int, pts, duration int64) *av.Packet {
	p := av.NewPacketFromData([]byte{byte(pts)})
	p.StreamIndex = stream
	p.PTS = pts
	p.DTS = pts
	p.Duration = duration
	return p
}

// VideoFrame returns an allocated I420 frame.
func VideoFrame(width, height int, pts int64) *av.Frame {
	f := av.NewFrame()
	f.MediaType = av.MediaTypeVideo
	f.Width = width
	f.Height = height
	f.PixelFormat = av.PixelFormatI420
	if err := f.AllocBuffer(); err != nil {
		panic(err)
	}
	f.PTS = pts
	return f
}

// AudioFrame returns an allocated planar float frame of n samples.
func AudioFrame(channels, sampleRate, n int, pts int64) *av.Frame {
	f := av.NewFrame()
	f.MediaType = av.MediaTypeAudio
	f.Channels = channels
	f.SampleRate = sampleRate
	f.SampleFormat = av.SampleFormatF32P
	f.NbSamples = n
	if err := f.AllocBuffer(); err != nil {
		panic(err)
	}
	f.PTS = pts
	return f
}

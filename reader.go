package av

import "log/slog"

// StreamReader turns a container into a sequence of decoded frames. Frames
// are tagged with their media type; packets of streams that were not
// selected are dropped.
type StreamReader struct {
	demuxer *InputDemuxer
	packet  *Packet
	log     *slog.Logger
	metrics *Metrics

	// decoders in drain order: video first, then audio.
	decoders []*DemuxedStream
	draining bool
	drainIdx int
	done     bool
}

// NewStreamReader opens url and creates decoders for its best video stream
// and, when enableAudio is set, its best audio stream.
func NewStreamReader(eng Engine, url string, enableAudio bool, opts ...Option) (*StreamReader, error) {
	s := newSettings("reader", opts)
	d, err := OpenInput(eng, url, enableAudio, WithInputOptions(opts...))
	if err != nil {
		return nil, Forward(err)
	}
	r := &StreamReader{
		demuxer:  d,
		packet:   NewPacket(),
		log:      s.logger.With("url", url),
		metrics:  s.metrics,
		decoders: []*DemuxedStream{d.video},
	}
	if d.audio != nil {
		r.decoders = append(r.decoders, d.audio)
	}
	return r, nil
}

// ReadFrame decodes the next frame into frame. It returns false once every
// decoder is drained after the container ends; every later call also
// returns false, without error and without touching the engine.
func (r *StreamReader) ReadFrame(frame *Frame) (bool, error) {
	if r.done {
		return false, nil
	}
	for {
		if r.draining {
			return r.drain(frame)
		}
		ok, err := r.demuxer.ReadPacket(r.packet)
		if err != nil {
			return false, Forward(err)
		}
		if !ok {
			r.log.Debug("end of input, draining decoders")
			r.draining = true
			continue
		}
		st := r.streamFor(r.packet.StreamIndex)
		if st == nil {
			continue
		}
		res, err := st.Decoder.Decode(r.packet, frame)
		r.packet.Unref()
		if err != nil {
			return false, Forward(err)
		}
		if res == ResultSuccess {
			frame.MediaType = st.Info.Params.MediaType
			r.metrics.frameDecoded(frame.MediaType)
			return true, nil
		}
	}
}

func (r *StreamReader) drain(frame *Frame) (bool, error) {
	for r.drainIdx < len(r.decoders) {
		st := r.decoders[r.drainIdx]
		res, err := st.Decoder.Decode(nil, frame)
		if err != nil {
			return false, Forward(err)
		}
		switch res {
		case ResultSuccess:
			frame.MediaType = st.Info.Params.MediaType
			r.metrics.frameDecoded(frame.MediaType)
			return true, nil
		case ResultAgain:
			if st.Decoder.Pending() > 0 {
				continue
			}
			r.drainIdx++
		default:
			r.drainIdx++
		}
	}
	r.done = true
	return false, nil
}

func (r *StreamReader) streamFor(index int) *DemuxedStream {
	for _, st := range r.decoders {
		if st.Info.Index == index {
			return st
		}
	}
	return nil
}

// PixelFormat returns the decoded video pixel format.
func (r *StreamReader) PixelFormat() PixelFormat {
	return r.demuxer.video.Decoder.Parameters().PixelFormat
}

// FrameWidth returns the decoded video width.
func (r *StreamReader) FrameWidth() int { return r.demuxer.video.Decoder.Parameters().Width }

// FrameHeight returns the decoded video height.
func (r *StreamReader) FrameHeight() int { return r.demuxer.video.Decoder.Parameters().Height }

// FrameRate returns the video frame rate.
func (r *StreamReader) FrameRate() Rational { return r.demuxer.video.Decoder.FrameRate() }

// VideoTimeBase returns the time base of video frame timestamps.
func (r *StreamReader) VideoTimeBase() Rational { return r.demuxer.video.Info.TimeBase }

// HasAudio reports whether an audio stream was selected.
func (r *StreamReader) HasAudio() bool { return r.demuxer.audio != nil }

// Channels returns the decoded audio channel count, 0 without audio.
func (r *StreamReader) Channels() int {
	if r.demuxer.audio == nil {
		return 0
	}
	return r.demuxer.audio.Decoder.Parameters().Channels
}

// SampleRate returns the decoded audio sample rate, 0 without audio.
func (r *StreamReader) SampleRate() int {
	if r.demuxer.audio == nil {
		return 0
	}
	return r.demuxer.audio.Decoder.Parameters().SampleRate
}

// SampleFormat returns the decoded audio sample format.
func (r *StreamReader) SampleFormat() SampleFormat {
	if r.demuxer.audio == nil {
		return SampleFormatNone
	}
	return r.demuxer.audio.Decoder.Parameters().SampleFormat
}

// AudioTimeBase returns the time base of audio frame timestamps.
func (r *StreamReader) AudioTimeBase() Rational {
	if r.demuxer.audio == nil {
		return Rational{}
	}
	return r.demuxer.audio.Info.TimeBase
}

// Demuxer returns the underlying demuxer.
func (r *StreamReader) Demuxer() *InputDemuxer { return r.demuxer }

// Close releases decoders and the container.
func (r *StreamReader) Close() error {
	r.packet.Unref()
	return r.demuxer.Close()
}

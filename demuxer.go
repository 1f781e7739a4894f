package av

import (
	"errors"
	"io"
	"log/slog"
)

// DemuxedStream is a selected input stream and, unless the demuxer was
// opened without decoders, its Decoder.
type DemuxedStream struct {
	Info    StreamInfo
	Decoder *Decoder
}

// InputDemuxer opens a container, selects the best video stream and
// optionally the best audio stream, and reads their packets.
type InputDemuxer struct {
	ctx   DemuxContext
	url   string
	video *DemuxedStream
	audio *DemuxedStream
	log   *slog.Logger
}

type inputSettings struct {
	settings
	noDecoders bool
}

// InputOption configures OpenInput.
type InputOption func(*inputSettings)

// WithoutDecoders opens streams for packet copy only.
func WithoutDecoders() InputOption {
	return func(s *inputSettings) { s.noDecoders = true }
}

// WithInputOptions applies component options to the demuxer and its
// decoders.
func WithInputOptions(opts ...Option) InputOption {
	return func(s *inputSettings) {
		for _, o := range opts {
			if o != nil {
				o(&s.settings)
			}
		}
	}
}

// OpenInput opens url. A video stream is mandatory; an audio stream is
// selected only when enableAudio is set, and is then mandatory too.
func OpenInput(eng Engine, url string, enableAudio bool, opts ...InputOption) (*InputDemuxer, error) {
	var is inputSettings
	for _, o := range opts {
		o(&is)
	}
	s := newSettings("demuxer", []Option{WithLogger(is.logger), WithMetrics(is.metrics)})
	childOpts := []Option{WithLogger(is.logger), WithMetrics(is.metrics)}

	ctx, err := eng.OpenInput(url)
	if err != nil {
		return nil, Errorf("cannot open input file %q: %w", url, err)
	}
	d := &InputDemuxer{ctx: ctx, url: url, log: s.logger.With("url", url)}
	if err := ctx.FindStreamInfo(); err != nil {
		ctx.Close()
		return nil, Errorf("cannot find stream information in %q: %w", url, err)
	}

	types := []MediaType{MediaTypeVideo}
	if enableAudio {
		types = append(types, MediaTypeAudio)
	}
	for _, t := range types {
		st, err := d.openStream(eng, t, !is.noDecoders, childOpts)
		if err != nil {
			d.Close()
			return nil, Forward(err)
		}
		if t == MediaTypeVideo {
			d.video = st
		} else {
			d.audio = st
		}
	}
	d.log.Info("input opened", "streams", len(ctx.Streams()), "video_stream", d.video.Info.Index,
		"audio", d.audio != nil, "decoders", !is.noDecoders)
	return d, nil
}

func (d *InputDemuxer) openStream(eng Engine, t MediaType, decode bool, opts []Option) (*DemuxedStream, error) {
	index, desc, err := d.ctx.FindBestStream(t)
	if err != nil && !decode && index >= 0 && errors.Is(err, ErrDecoderNotFound) {
		// Stream copy does not need a decoder.
		err = nil
	}
	if err != nil {
		if errors.Is(err, ErrDecoderNotFound) {
			return nil, Errorf("failed to find %s codec in input file %q: %w", t, d.url, err)
		}
		return nil, Errorf("could not find %s stream in input file %q: %w", t, d.url, err)
	}
	streams := d.ctx.Streams()
	if index < 0 || index >= len(streams) {
		return nil, Errorf("engine returned %s stream index %d out of %d", t, index, len(streams))
	}
	st := &DemuxedStream{Info: streams[index]}
	if !decode {
		return st, nil
	}
	dec, err := NewDecoder(eng, desc, st.Info, st.Info.FrameRate, opts...)
	if err != nil {
		return nil, Forward(err)
	}
	st.Decoder = dec
	return st, nil
}

// ReadPacket reads the next packet of any stream. At the end of the
// container pkt becomes the empty end-of-stream packet and false is
// returned.
func (d *InputDemuxer) ReadPacket(pkt *Packet) (bool, error) {
	for {
		pkt.Unref()
		err := d.ctx.ReadPacket(pkt)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, ErrAgain):
			continue
		case errors.Is(err, io.EOF):
			pkt.Unref()
			return false, nil
		default:
			return false, Errorf("failed to read packet from %q: %w", d.url, err)
		}
	}
}

// ReadVideoPacket reads packets until one of the selected video stream is
// found. Other streams are skipped.
func (d *InputDemuxer) ReadVideoPacket(pkt *Packet) (bool, error) {
	for {
		ok, err := d.ReadPacket(pkt)
		if err != nil || !ok {
			return ok, Forward(err)
		}
		if pkt.StreamIndex == d.video.Info.Index {
			return true, nil
		}
	}
}

// Video returns the selected video stream.
func (d *InputDemuxer) Video() *DemuxedStream { return d.video }

// Audio returns the selected audio stream, nil when audio is disabled.
func (d *InputDemuxer) Audio() *DemuxedStream { return d.audio }

// Streams returns every stream in the container.
func (d *InputDemuxer) Streams() []StreamInfo { return d.ctx.Streams() }

// URL returns the input location.
func (d *InputDemuxer) URL() string { return d.url }

// Close closes decoders and the container.
func (d *InputDemuxer) Close() error {
	var errs []error
	for _, st := range []*DemuxedStream{d.video, d.audio} {
		if st != nil && st.Decoder != nil {
			errs = append(errs, st.Decoder.Close())
			st.Decoder = nil
		}
	}
	if d.ctx != nil {
		errs = append(errs, d.ctx.Close())
		d.ctx = nil
	}
	return errors.Join(errs...)
}

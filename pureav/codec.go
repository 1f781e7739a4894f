package pureav

import (
	"io"
	"log/slog"
	"slices"
	"strconv"

	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

// codecContext implements the raw video and PCM codecs. Both directions
// are plain copies; the "delay" option holds back output to behave like a
// codec with reordering latency.
type codecContext struct {
	desc  av.CodecDescriptor
	par   av.CodecParameters
	log   *slog.Logger
	delay int

	opened   bool
	flushing bool
	frames   []*av.Frame
	packets  []*av.Packet
}

func (c *codecContext) Descriptor() av.CodecDescriptor { return c.desc }

func (c *codecContext) Parameters() av.CodecParameters { return c.par }

func (c *codecContext) SetParameters(par av.CodecParameters) error {
	if c.opened {
		return errors.New("pureav: parameters changed after open")
	}
	if par.CodecID != "" && par.CodecID != c.desc.ID {
		return errors.Errorf("pureav: parameters for %s given to %s", par.CodecID, c.desc.Name)
	}
	par.MediaType = c.desc.MediaType
	par.CodecID = c.desc.ID
	c.par = par
	return nil
}

func (c *codecContext) SetOption(name string, value any) error {
	switch name {
	case "delay":
		n, err := intOption(value)
		if err != nil || n < 0 {
			return errors.Errorf("pureav: invalid delay %v", value)
		}
		c.delay = n
		return nil
	default:
		return errors.Wrapf(av.ErrUnsupported, "pureav: %s has no option %q", c.desc.Name, name)
	}
}

func intOption(v any) (int, error) {
	switch v := v.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, errors.Errorf("unsupported type %T", v)
	}
}

func (c *codecContext) Open() error {
	if c.opened {
		return errors.New("pureav: codec already open")
	}
	p := &c.par
	switch c.desc.MediaType {
	case av.MediaTypeVideo:
		if p.Width <= 0 || p.Height <= 0 {
			return errors.Wrapf(av.ErrInvalidArgument, "pureav: %s size %dx%d", c.desc.Name, p.Width, p.Height)
		}
		if !slices.Contains(c.desc.PixelFormats, p.PixelFormat) {
			return errors.Wrapf(av.ErrUnsupported, "pureav: %s pixel format %s", c.desc.Name, p.PixelFormat)
		}
		if p.TimeBase.IsZero() {
			if p.FrameRate.IsZero() {
				return errors.Wrapf(av.ErrInvalidArgument, "pureav: %s needs a time base or frame rate", c.desc.Name)
			}
			p.TimeBase = p.FrameRate.Inv()
		}
	case av.MediaTypeAudio:
		if p.Channels <= 0 || p.SampleRate <= 0 {
			return errors.Wrapf(av.ErrInvalidArgument, "pureav: %s %d channels at %d Hz", c.desc.Name, p.Channels, p.SampleRate)
		}
		if !slices.Contains(c.desc.SampleFormats, p.SampleFormat) {
			return errors.Wrapf(av.ErrUnsupported, "pureav: %s sample format %s", c.desc.Name, p.SampleFormat)
		}
		if p.TimeBase.IsZero() {
			p.TimeBase = av.R(1, p.SampleRate)
		}
	}
	c.opened = true
	c.log.Debug("codec opened", "delay", c.delay, "time_base", p.TimeBase)
	return nil
}

func (c *codecContext) checkSend() error {
	if !c.opened {
		return errors.New("pureav: codec not open")
	}
	if c.flushing {
		return io.EOF
	}
	return nil
}

// ready reports whether queued output of length n may be released.
func (c *codecContext) ready(n int) bool {
	return n > 0 && (c.flushing || n > c.delay)
}

func (c *codecContext) SendPacket(pkt *av.Packet) error {
	if err := c.checkSend(); err != nil {
		return err
	}
	if pkt == nil || pkt.IsEmpty() {
		c.flushing = true
		return nil
	}
	if !c.desc.Decoder {
		return errors.Wrapf(av.ErrUnsupported, "pureav: %s cannot decode", c.desc.Name)
	}
	f := av.NewFrame()
	var err error
	if c.desc.MediaType == av.MediaTypeVideo {
		err = c.decodeVideo(pkt, f)
	} else {
		err = c.decodeAudio(pkt, f)
	}
	if err != nil {
		f.Unref()
		return err
	}
	f.PTS = pkt.PTS
	if f.PTS == av.NoPTS {
		f.PTS = pkt.DTS
	}
	f.Duration = pkt.Duration
	c.frames = append(c.frames, f)
	return nil
}

func (c *codecContext) decodeVideo(pkt *av.Packet, f *av.Frame) error {
	f.MediaType = av.MediaTypeVideo
	f.Width, f.Height, f.PixelFormat = c.par.Width, c.par.Height, c.par.PixelFormat
	f.KeyFrame = true
	if want := f.PixelFormat.FrameSize(f.Width, f.Height); pkt.Size() != want {
		return errors.Errorf("pureav: rawvideo packet of %d bytes, want %d for %dx%d %s",
			pkt.Size(), want, f.Width, f.Height, f.PixelFormat)
	}
	if err := f.AllocBuffer(); err != nil {
		return err
	}
	data := pkt.Data()
	for _, p := range f.Planes {
		data = data[copy(p, data):]
	}
	return nil
}

func (c *codecContext) decodeAudio(pkt *av.Packet, f *av.Frame) error {
	frameBytes := c.par.Channels * c.par.SampleFormat.BytesPerSample()
	if pkt.Size()%frameBytes != 0 {
		return errors.Errorf("pureav: %s packet of %d bytes is not a whole number of %d byte sample frames",
			c.desc.Name, pkt.Size(), frameBytes)
	}
	f.MediaType = av.MediaTypeAudio
	f.Channels, f.SampleRate, f.SampleFormat = c.par.Channels, c.par.SampleRate, c.par.SampleFormat
	f.NbSamples = pkt.Size() / frameBytes
	if err := f.AllocBuffer(); err != nil {
		return err
	}
	copy(f.Planes[0], pkt.Data())
	return nil
}

func (c *codecContext) ReceiveFrame(frame *av.Frame) error {
	if !c.ready(len(c.frames)) {
		if c.flushing {
			return io.EOF
		}
		return av.ErrAgain
	}
	c.frames[0].MoveRef(frame)
	c.frames[0] = nil
	c.frames = c.frames[1:]
	return nil
}

func (c *codecContext) SendFrame(frame *av.Frame) error {
	if err := c.checkSend(); err != nil {
		return err
	}
	if frame == nil {
		c.flushing = true
		return nil
	}
	if !c.desc.Encoder {
		return errors.Wrapf(av.ErrUnsupported, "pureav: %s cannot encode", c.desc.Name)
	}
	pkt := av.NewPacket()
	var err error
	if c.desc.MediaType == av.MediaTypeVideo {
		err = c.encodeVideo(frame, pkt)
	} else {
		err = c.encodeAudio(frame, pkt)
	}
	if err != nil {
		return err
	}
	pkt.PTS = frame.PTS
	pkt.DTS = frame.PTS
	pkt.Flags |= av.PacketFlagKey
	c.packets = append(c.packets, pkt)
	return nil
}

func (c *codecContext) encodeVideo(f *av.Frame, pkt *av.Packet) error {
	if f.Width != c.par.Width || f.Height != c.par.Height || f.PixelFormat != c.par.PixelFormat {
		return errors.Wrapf(av.ErrInvalidArgument, "pureav: frame %dx%d %s does not match encoder %dx%d %s",
			f.Width, f.Height, f.PixelFormat, c.par.Width, c.par.Height, c.par.PixelFormat)
	}
	data := pkt.Alloc(f.PixelFormat.FrameSize(f.Width, f.Height))
	for i := range f.PixelFormat.PlaneCount() {
		rowBytes, rows := f.PixelFormat.PlaneGeometry(f.Width, f.Height, i)
		stride := rowBytes
		if i < len(f.Linesize) && f.Linesize[i] > 0 {
			stride = f.Linesize[i]
		}
		for y := 0; y < rows; y++ {
			data = data[copy(data, f.Planes[i][y*stride:y*stride+rowBytes]):]
		}
	}
	pkt.Duration = 1
	return nil
}

func (c *codecContext) encodeAudio(f *av.Frame, pkt *av.Packet) error {
	if f.Channels != c.par.Channels || f.SampleFormat != c.par.SampleFormat {
		return errors.Wrapf(av.ErrInvalidArgument, "pureav: frame %d channels %s does not match encoder %d channels %s",
			f.Channels, f.SampleFormat, c.par.Channels, c.par.SampleFormat)
	}
	n := f.NbSamples * f.Channels * f.SampleFormat.BytesPerSample()
	copy(pkt.Alloc(n), f.Planes[0][:n])
	pkt.Duration = int64(f.NbSamples)
	return nil
}

func (c *codecContext) ReceivePacket(pkt *av.Packet) error {
	if !c.ready(len(c.packets)) {
		if c.flushing {
			return io.EOF
		}
		return av.ErrAgain
	}
	c.packets[0].MoveRef(pkt)
	c.packets[0] = nil
	c.packets = c.packets[1:]
	return nil
}

func (c *codecContext) Close() error {
	for _, f := range c.frames {
		f.Unref()
	}
	for _, p := range c.packets {
		p.Unref()
	}
	c.frames, c.packets = nil, nil
	c.opened = false
	return nil
}

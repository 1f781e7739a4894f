package avtest

import (
	"io"

	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

// unit is one queued item inside a scripted codec.
type unit struct {
	pts      int64
	duration int64
	key      bool
	seq      int
}

type codecContext struct {
	engine   *Engine
	desc     av.CodecDescriptor
	behavior CodecBehavior
	par      av.CodecParameters
	options  map[string]any

	opened   bool
	flushing bool
	queue    []unit
	sends    int
	receives int
	seq      int
	closed   bool
}

func (c *codecContext) Descriptor() av.CodecDescriptor { return c.desc }

func (c *codecContext) Parameters() av.CodecParameters { return c.par }

func (c *codecContext) SetParameters(par av.CodecParameters) error {
	c.engine.count("SetParameters")
	if c.opened {
		return errors.New("avtest: codec already open")
	}
	c.par = par
	return nil
}

func (c *codecContext) SetOption(name string, value any) error {
	c.engine.count("SetOption")
	c.options[name] = value
	return nil
}

func (c *codecContext) Open() error {
	c.engine.count("Open")
	if c.behavior.FailOpen {
		return ErrInjected
	}
	if c.par.MediaType == av.MediaTypeAudio && c.par.FrameSize == 0 && c.desc.Encoder {
		c.par.FrameSize = 1024
	}
	c.opened = true
	return nil
}

func (c *codecContext) send() error {
	c.sends++
	if c.behavior.FailSendAt > 0 && c.sends == c.behavior.FailSendAt {
		return ErrInjected
	}
	if c.flushing {
		return io.EOF
	}
	if c.behavior.SendAgainEvery > 0 && c.sends%c.behavior.SendAgainEvery == 0 {
		return av.ErrAgain
	}
	if c.behavior.QueueLimit > 0 && len(c.queue) >= c.behavior.QueueLimit {
		return av.ErrAgain
	}
	return nil
}

func (c *codecContext) SendPacket(pkt *av.Packet) error {
	c.engine.count("SendPacket")
	if pkt == nil {
		c.flushing = true
		return nil
	}
	if err := c.send(); err != nil {
		return err
	}
	c.queue = append(c.queue, unit{pts: pkt.PTS, duration: pkt.Duration, key: pkt.IsKeyframe(), seq: c.seq})
	c.seq++
	return nil
}

func (c *codecContext) SendFrame(frame *av.Frame) error {
	c.engine.count("SendFrame")
	if frame == nil {
		c.flushing = true
		return nil
	}
	if err := c.send(); err != nil {
		return err
	}
	n := c.behavior.PacketsPerFrame
	if n <= 0 {
		n = 1
	}
	dur := int64(1)
	if frame.MediaType == av.MediaTypeAudio {
		dur = int64(frame.NbSamples)
	}
	for i := 0; i < n; i++ {
		c.queue = append(c.queue, unit{pts: frame.PTS, duration: dur, key: c.seq == 0, seq: c.seq})
		c.seq++
	}
	return nil
}

// pop returns the next unit ready for output.
func (c *codecContext) pop(perUnit int) (unit, error) {
	if len(c.queue) == 0 {
		if c.flushing {
			return unit{}, io.EOF
		}
		return unit{}, av.ErrAgain
	}
	full := c.behavior.QueueLimit > 0 && len(c.queue) >= c.behavior.QueueLimit
	if !c.flushing && !full && len(c.queue) <= c.behavior.Delay*perUnit {
		return unit{}, av.ErrAgain
	}
	c.receives++
	if c.behavior.FailReceiveAt > 0 && c.receives == c.behavior.FailReceiveAt {
		return unit{}, ErrInjected
	}
	u := c.queue[0]
	c.queue = c.queue[1:]
	return u, nil
}

func (c *codecContext) ReceiveFrame(frame *av.Frame) error {
	c.engine.count("ReceiveFrame")
	u, err := c.pop(1)
	if err != nil {
		return err
	}
	frame.MediaType = c.par.MediaType
	switch c.par.MediaType {
	case av.MediaTypeVideo:
		frame.Width = c.par.Width
		frame.Height = c.par.Height
		frame.PixelFormat = c.par.PixelFormat
		frame.KeyFrame = u.key
	case av.MediaTypeAudio:
		frame.Channels = c.par.Channels
		frame.SampleRate = c.par.SampleRate
		frame.SampleFormat = c.par.SampleFormat
		frame.NbSamples = int(u.duration)
		if frame.NbSamples <= 0 {
			frame.NbSamples = 1024
		}
	}
	if err := frame.AllocBuffer(); err != nil {
		return err
	}
	frame.Planes[0][0] = byte(u.seq)
	frame.PTS = u.pts
	frame.Duration = u.duration
	return nil
}

func (c *codecContext) ReceivePacket(pkt *av.Packet) error {
	c.engine.count("ReceivePacket")
	n := c.behavior.PacketsPerFrame
	if n <= 0 {
		n = 1
	}
	u, err := c.pop(n)
	if err != nil {
		return err
	}
	data := pkt.Alloc(8)
	data[0] = byte(u.seq)
	pkt.PTS = u.pts
	pkt.DTS = u.pts
	pkt.Duration = u.duration
	if u.key {
		pkt.Flags |= av.PacketFlagKey
	}
	return nil
}

func (c *codecContext) Close() error {
	c.engine.count("CloseCodec")
	c.closed = true
	c.queue = nil
	return nil
}

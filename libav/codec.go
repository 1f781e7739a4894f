package libav

import (
	"fmt"
	"log/slog"
	"runtime"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

// codecContext wraps one AVCodecContext held by the shim.
type codecContext struct {
	desc   av.CodecDescriptor
	handle uint64
	par    av.CodecParameters
	opened bool
	log    *slog.Logger

	// Heap allocated out-parameters reused across calls.
	cpkt   *mediaAVPacket
	cframe *mediaAVFrame
}

// NewCodecContext implements av.CodecEngine.
func (e *Engine) NewCodecContext(desc av.CodecDescriptor) (av.CodecContext, error) {
	if !desc.Encoder && !desc.Decoder {
		return nil, errors.Wrapf(av.ErrUnsupported, "libav: codec %s is neither encoder nor decoder", desc.Name)
	}
	encoder := int32(0)
	if desc.Encoder {
		encoder = 1
	}
	h := mediaAVCodecContextCreate(desc.Name, encoder)
	if h == 0 {
		return nil, errors.Errorf("libav: create %s context: %s", desc.Name, lastError())
	}
	return &codecContext{
		desc:   desc,
		handle: h,
		par:    av.CodecParameters{MediaType: desc.MediaType, CodecID: desc.ID},
		log:    e.log.With("codec", desc.Name),
		cpkt:   &mediaAVPacket{},
		cframe: &mediaAVFrame{},
	}, nil
}

func (c *codecContext) Descriptor() av.CodecDescriptor { return c.desc }

func (c *codecContext) Parameters() av.CodecParameters {
	if c.handle == 0 {
		return c.par
	}
	out := &mediaAVCodecParams{}
	if mediaAVCodecContextGetParams(c.handle, uintptr(unsafe.Pointer(out))) != mediaAVOK {
		return c.par
	}
	return goParams(out)
}

func (c *codecContext) SetParameters(par av.CodecParameters) error {
	if c.opened {
		return errors.New("libav: parameters changed after open")
	}
	if par.CodecID == "" {
		par.CodecID = c.desc.ID
	}
	p := newCParams(par)
	ret := mediaAVCodecContextSetParams(c.handle, p.ptr())
	runtime.KeepAlive(p)
	if err := status("set parameters", ret); err != nil {
		return err
	}
	c.par = par
	return nil
}

// optionString formats an option value the way av_opt_set expects it.
func optionString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return fmt.Sprint(v), nil
	case int64:
		return fmt.Sprint(v), nil
	case float64:
		return fmt.Sprint(v), nil
	case av.Rational:
		return v.String(), nil
	default:
		return "", errors.Wrapf(av.ErrInvalidArgument, "libav: option value of type %T", value)
	}
}

func (c *codecContext) SetOption(name string, value any) error {
	s, err := optionString(value)
	if err != nil {
		return err
	}
	return status(fmt.Sprintf("option %s=%s", name, s), mediaAVCodecContextSetOption(c.handle, name, s))
}

func (c *codecContext) Open() error {
	if c.opened {
		return nil
	}
	if err := status("open "+c.desc.Name, mediaAVCodecContextOpen(c.handle)); err != nil {
		return err
	}
	c.opened = true
	c.par = c.Parameters()
	c.log.Debug("opened", "encoder", c.desc.Encoder)
	return nil
}

func (c *codecContext) SendPacket(pkt *av.Packet) error {
	if pkt == nil || pkt.IsEmpty() {
		return status("send packet", mediaAVCodecSendPacket(c.handle, 0))
	}
	cp := cPacket(pkt)
	ret := mediaAVCodecSendPacket(c.handle, uintptr(unsafe.Pointer(cp)))
	runtime.KeepAlive(pkt)
	runtime.KeepAlive(cp)
	return status("send packet", ret)
}

func (c *codecContext) ReceiveFrame(frame *av.Frame) error {
	*c.cframe = mediaAVFrame{}
	if err := status("receive frame", mediaAVCodecReceiveFrame(c.handle, uintptr(unsafe.Pointer(c.cframe)))); err != nil {
		return err
	}
	return fillFrame(c.cframe, frame)
}

func (c *codecContext) SendFrame(frame *av.Frame) error {
	if frame == nil {
		return status("send frame", mediaAVCodecSendFrame(c.handle, 0))
	}
	cf := cFrame(frame)
	ret := mediaAVCodecSendFrame(c.handle, uintptr(unsafe.Pointer(cf)))
	runtime.KeepAlive(frame)
	runtime.KeepAlive(cf)
	return status("send frame", ret)
}

func (c *codecContext) ReceivePacket(pkt *av.Packet) error {
	*c.cpkt = mediaAVPacket{}
	if err := status("receive packet", mediaAVCodecReceivePacket(c.handle, uintptr(unsafe.Pointer(c.cpkt)))); err != nil {
		return err
	}
	fillPacket(c.cpkt, pkt)
	return nil
}

func (c *codecContext) Close() error {
	if c.handle != 0 {
		mediaAVCodecContextDestroy(c.handle)
		c.handle = 0
	}
	return nil
}

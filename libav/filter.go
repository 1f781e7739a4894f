package libav

import (
	"runtime"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

// bsfContext wraps an AVBSFContext or an AVBSFList built from a
// description.
type bsfContext struct {
	handle uint64
	desc   string
	cpkt   *mediaAVPacket
}

// ParseBitstreamFilter implements av.FilterEngine.
func (e *Engine) ParseBitstreamFilter(desc string) (av.BSFContext, error) {
	h := mediaAVBSFParse(desc)
	if h == 0 {
		return nil, errors.Wrapf(av.ErrUnsupported, "libav: bitstream filter %q: %s", desc, lastError())
	}
	return &bsfContext{handle: h, desc: desc, cpkt: &mediaAVPacket{}}, nil
}

func (b *bsfContext) SetInputParameters(par av.CodecParameters, tb av.Rational) error {
	p := newCParams(par)
	ret := mediaAVBSFSetInput(b.handle, p.ptr(), int32(tb.Num), int32(tb.Den))
	runtime.KeepAlive(p)
	return status("bsf input parameters", ret)
}

func (b *bsfContext) Init() error {
	return status("init "+b.desc, mediaAVBSFInit(b.handle))
}

func (b *bsfContext) SendPacket(pkt *av.Packet) error {
	if pkt == nil {
		return status("bsf send", mediaAVBSFSendPacket(b.handle, 0))
	}
	cp := cPacket(pkt)
	ret := mediaAVBSFSendPacket(b.handle, uintptr(unsafe.Pointer(cp)))
	runtime.KeepAlive(pkt)
	runtime.KeepAlive(cp)
	return status("bsf send", ret)
}

func (b *bsfContext) ReceivePacket(pkt *av.Packet) error {
	*b.cpkt = mediaAVPacket{}
	if err := status("bsf receive", mediaAVBSFReceivePacket(b.handle, uintptr(unsafe.Pointer(b.cpkt)))); err != nil {
		return err
	}
	fillPacket(b.cpkt, pkt)
	return nil
}

func (b *bsfContext) OutputParameters() av.CodecParameters {
	out := &mediaAVCodecParams{}
	if mediaAVBSFOutputParams(b.handle, uintptr(unsafe.Pointer(out))) != mediaAVOK {
		return av.CodecParameters{}
	}
	return goParams(out)
}

func (b *bsfContext) Close() error {
	if b.handle != 0 {
		mediaAVBSFDestroy(b.handle)
		b.handle = 0
	}
	return nil
}

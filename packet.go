package av

// PacketFlags are per-packet markers.
type PacketFlags int

const (
	PacketFlagKey PacketFlags = 1 << iota
	PacketFlagCorrupt
	PacketFlagDiscard
)

// Packet is one compressed unit of an elementary stream. Its payload lives in
// a reference counted Buffer; Ref and Clone share the buffer rather than
// copying it. A packet with no data is the end-of-stream sentinel.
type Packet struct {
	buf  *Buffer
	data []byte

	PTS         int64
	DTS         int64
	Duration    int64
	StreamIndex int
	Pos         int64
	Flags       PacketFlags
}

// NewPacket returns an empty packet.
func NewPacket() *Packet {
	p := &Packet{}
	p.reset()
	return p
}

// NewPacketFromData returns a packet owning a copy of data.
func NewPacketFromData(data []byte) *Packet {
	p := NewPacket()
	copy(p.Alloc(len(data)), data)
	return p
}

func (p *Packet) reset() {
	p.buf = nil
	p.data = nil
	p.PTS = NoPTS
	p.DTS = NoPTS
	p.Duration = 0
	p.StreamIndex = 0
	p.Pos = -1
	p.Flags = 0
}

// Data returns the payload.
func (p *Packet) Data() []byte { return p.data }

// Size returns the payload length.
func (p *Packet) Size() int { return len(p.data) }

// IsEmpty reports whether the packet carries no data.
func (p *Packet) IsEmpty() bool { return len(p.data) == 0 }

// IsKeyframe reports whether the key flag is set.
func (p *Packet) IsKeyframe() bool { return p.Flags&PacketFlagKey != 0 }

// Buffer returns the underlying buffer, nil for an empty packet.
func (p *Packet) Buffer() *Buffer { return p.buf }

// Alloc releases the current payload and allocates a new writable one of
// size bytes, returned for filling. Timing properties are kept.
func (p *Packet) Alloc(size int) []byte {
	if p.buf != nil {
		p.buf.release()
	}
	p.buf = NewBuffer(size)
	p.data = p.buf.Bytes()
	return p.data
}

// SetData replaces the payload with a copy of data.
func (p *Packet) SetData(data []byte) {
	copy(p.Alloc(len(data)), data)
}

// Ref makes p reference src's buffer and copies its properties. Any payload
// p held is released first.
func (p *Packet) Ref(src *Packet) {
	if p == src {
		return
	}
	p.Unref()
	if src.buf != nil {
		p.buf = src.buf.ref()
	}
	p.data = src.data
	p.CopyProps(src)
}

// Clone returns a new packet sharing p's buffer.
func (p *Packet) Clone() *Packet {
	c := NewPacket()
	c.Ref(p)
	return c
}

// CopyProps copies timing and routing properties, not the payload.
func (p *Packet) CopyProps(src *Packet) {
	p.PTS = src.PTS
	p.DTS = src.DTS
	p.Duration = src.Duration
	p.StreamIndex = src.StreamIndex
	p.Pos = src.Pos
	p.Flags = src.Flags
}

// Unref releases the payload and resets every property.
func (p *Packet) Unref() {
	if p.buf != nil {
		p.buf.release()
	}
	p.reset()
}

// MoveRef moves p's payload and properties into dst. p is left empty.
func (p *Packet) MoveRef(dst *Packet) {
	if p == dst {
		return
	}
	dst.Unref()
	*dst = *p
	p.reset()
}

// MakeWritable copies the payload if the buffer is shared.
func (p *Packet) MakeWritable() {
	if p.buf == nil || p.buf.Writable() {
		return
	}
	old := p.data
	p.buf.release()
	p.buf = NewBuffer(len(old))
	p.data = p.buf.Bytes()
	copy(p.data, old)
}

// RescaleTS converts PTS, DTS and Duration from one time base to another.
func (p *Packet) RescaleTS(from, to Rational) {
	p.PTS = Rescale(p.PTS, from, to)
	p.DTS = Rescale(p.DTS, from, to)
	if p.Duration > 0 {
		p.Duration = Rescale(p.Duration, from, to)
	}
}

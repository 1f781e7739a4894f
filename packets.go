package av

// Packets is a reusable arena of packet slots addressed by index. Slots keep
// their Packet structs across drains; only payloads are released.
type Packets struct {
	slots []*Packet
}

// NewPackets returns an arena with n empty slots.
func NewPackets(n int) *Packets {
	ps := &Packets{}
	for i := 0; i < n; i++ {
		ps.slots = append(ps.slots, NewPacket())
	}
	return ps
}

// Len returns the number of slots.
func (ps *Packets) Len() int { return len(ps.slots) }

// At returns slot i.
func (ps *Packets) At(i int) *Packet { return ps.slots[i] }

// Append adds pkt as a new slot and returns its index.
func (ps *Packets) Append(pkt *Packet) int {
	ps.slots = append(ps.slots, pkt)
	return len(ps.slots) - 1
}

// Release releases the payload of slot i and keeps the slot.
func (ps *Packets) Release(i int) { ps.slots[i].Unref() }

// ReleaseAll releases every slot's payload and keeps the slots.
func (ps *Packets) ReleaseAll() {
	for _, p := range ps.slots {
		p.Unref()
	}
}

// Remove drops slot i, releasing its payload.
func (ps *Packets) Remove(i int) {
	ps.slots[i].Unref()
	ps.slots = append(ps.slots[:i], ps.slots[i+1:]...)
}

// Slice returns the first n slots.
func (ps *Packets) Slice(n int) []*Packet { return ps.slots[:n] }

// drainer receives packets into an arena. It reuses existing slots and grows
// the arena only when a packet was actually produced; the terminal receive
// lands in a spare packet.
type drainer struct {
	spare *Packet
}

// drain calls recv for successive slots until it reports a non-nil error.
// It returns the number of slots filled and the terminating error.
func (d *drainer) drain(out *Packets, recv func(*Packet) error) (int, error) {
	out.ReleaseAll()
	for i := 0; ; i++ {
		var slot *Packet
		if i < out.Len() {
			slot = out.At(i)
		} else {
			if d.spare == nil {
				d.spare = NewPacket()
			}
			slot = d.spare
		}
		if err := recv(slot); err != nil {
			slot.Unref()
			return i, err
		}
		if slot == d.spare {
			out.Append(slot)
			d.spare = nil
		}
	}
}

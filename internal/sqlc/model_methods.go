package sqlc

// FindFreeSlot returns the lowest slot number not currently held, determined
// from the slot status bitmap. Returns -1 if every slot is held.
func (s *Semlock) FindFreeSlot() int {
	for i := 0; i < int(s.NumSlots); i++ {
		if !isBitSet(s.SlotStatus.Bytes, i) {
			return i
		}
	}
	return -1
}

// HeldSlots returns the numbers of all slots currently held.
func (s *Semlock) HeldSlots() []int {
	var held []int
	for i := 0; i < int(s.NumSlots); i++ {
		if isBitSet(s.SlotStatus.Bytes, i) {
			held = append(held, i)
		}
	}
	return held
}

// isBitSet checks if the bit at the given position is set in the byte array
func isBitSet(bytes []byte, position int) bool {
	if position < 0 || position >= len(bytes)*8 {
		return false
	}

	byteIndex := position / 8
	bitIndex := position % 8

	// PostgreSQL stores bits in big-endian order within each byte
	return bytes[byteIndex]&(1<<(7-bitIndex)) != 0
}

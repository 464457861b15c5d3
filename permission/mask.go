package permission

// MaxBits is the width of a Mask.
const MaxBits = 64

// Mask is a 64-bit permission set. With rootReserved the highest bit grants
// every other bit.
type Mask uint64

func (m Mask) Has(bit int, rootReserved bool) bool {
	if bit < 0 || bit >= MaxBits {
		return false
	}
	if rootReserved && m&(1<<(MaxBits-1)) != 0 {
		return true
	}
	return m&(1<<bit) != 0
}

func (m *Mask) Set(bit int) {
	if bit < 0 || bit >= MaxBits {
		return
	}
	*m |= 1 << bit
}

func (m *Mask) Clear(bit int) {
	if bit < 0 || bit >= MaxBits {
		return
	}
	*m &^= 1 << bit
}

func (m Mask) Raw() uint64 {
	return uint64(m)
}

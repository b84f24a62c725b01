package upbeat

import "encoding/binary"

// PhysicalMemory is the RAM of the simulated board.  Addresses are physical
// and start at Base; every access outside [Base, Base+Size) is a BusFault.
type PhysicalMemory struct {
	base uint64
	data []byte
}

func NewPhysicalMemory(base, size uint64) *PhysicalMemory {
	return &PhysicalMemory{
		base: base,
		data: make([]byte, size),
	}
}

func (m *PhysicalMemory) Base() uint64 {
	return m.base
}

func (m *PhysicalMemory) Size() uint64 {
	return uint64(len(m.data))
}

// Contains is true when the n bytes starting at pa are all backed by RAM.
func (m *PhysicalMemory) Contains(pa uint64, n uint64) bool {
	if pa < m.base {
		return false
	}
	off := pa - m.base
	return off <= uint64(len(m.data)) && n <= uint64(len(m.data))-off
}

func (m *PhysicalMemory) span(pa uint64, n int) ([]byte, error) {
	if !m.Contains(pa, uint64(n)) {
		return nil, BusFault
	}
	off := pa - m.base
	return m.data[off : off+uint64(n)], nil
}

// Read copies len(p) bytes starting at pa into p.
func (m *PhysicalMemory) Read(pa uint64, p []byte) error {
	s, err := m.span(pa, len(p))
	if err != nil {
		return err
	}
	copy(p, s)
	return nil
}

// Write copies p into RAM starting at pa.
func (m *PhysicalMemory) Write(pa uint64, p []byte) error {
	s, err := m.span(pa, len(p))
	if err != nil {
		return err
	}
	copy(s, p)
	return nil
}

func (m *PhysicalMemory) Zero(pa uint64, n uint64) error {
	s, err := m.span(pa, int(n))
	if err != nil {
		return err
	}
	for i := range s {
		s[i] = 0
	}
	return nil
}

// Load32 reads a little-endian word, the byte order of the board.
func (m *PhysicalMemory) Load32(pa uint64) (uint32, error) {
	s, err := m.span(pa, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(s), nil
}

func (m *PhysicalMemory) Store32(pa uint64, v uint32) error {
	s, err := m.span(pa, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(s, v)
	return nil
}

package joy

import (
	"contentment/src/hardware/arm"
)

// PageTable is an L1 translation table in physical memory: 4096 section
// entries covering the whole 32 bit address space.
type PageTable struct {
	k    *Kernel
	base uint64
}

func allocPageTable(k *Kernel) (*PageTable, error) {
	base, err := k.Tables.Alloc()
	if err != nil {
		log.Warnf("no room for a translation table: %v", err)
		return nil, ErrorMemoryRegionUnavailable
	}
	return &PageTable{k: k, base: base}, nil
}

// newKernelPageTable maps all of RAM at its physical address, readable and
// writable by privileged code only.
func newKernelPageTable(k *Kernel) (*PageTable, error) {
	pt, err := allocPageTable(k)
	if err != nil {
		return nil, err
	}
	start := k.Memory.Base()
	end := start + k.Memory.Size()
	for pa := start; pa < end; pa += arm.SectionSize {
		if err := pt.MapSection(uint32(pa), uint32(pa), arm.APPrivilegedOnly, arm.DescriptorNormalMemory); err != nil {
			pt.Release()
			return nil, err
		}
	}
	return pt, nil
}

// NewPageTableFrom makes a private copy of src, so the new table starts with
// every mapping src has.
func NewPageTableFrom(k *Kernel, src *PageTable) (*PageTable, error) {
	if src == nil || src.base == 0 {
		return nil, ErrorTranslationTableReleased
	}
	pt, err := allocPageTable(k)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, arm.L1TableSize)
	if err := k.Memory.Read(src.base, buf); err != nil {
		pt.Release()
		return nil, ErrorMemoryBadRegion
	}
	if err := k.Memory.Write(pt.base, buf); err != nil {
		pt.Release()
		return nil, ErrorMemoryBadRegion
	}
	return pt, nil
}

// Base is the physical address of the table.
func (pt *PageTable) Base() uint64 {
	return pt.base
}

// TTBR0 is the register value that makes this table the active one.
func (pt *PageTable) TTBR0() uint32 {
	return uint32(pt.base) | arm.TTBRAttributes
}

func (pt *PageTable) entryAddress(va uint32) uint64 {
	return pt.base + uint64(arm.SectionIndex(va))*arm.L1EntrySize
}

func (pt *PageTable) Entry(va uint32) (uint32, error) {
	if pt.base == 0 {
		return 0, ErrorTranslationTableReleased
	}
	return pt.k.Memory.Load32(pt.entryAddress(va))
}

// MapSection points the section holding va at the section holding pa.  Both
// must be section aligned and the entry must not already be in use.
func (pt *PageTable) MapSection(va, pa uint32, ap uint32, attrs uint32) error {
	if pt.base == 0 {
		return ErrorTranslationTableReleased
	}
	if va&arm.SectionOffsetMask != 0 || pa&arm.SectionOffsetMask != 0 {
		return ErrorTranslationMisaligned
	}
	old, err := pt.Entry(va)
	if err != nil {
		return err
	}
	if old&arm.DescriptorTypeMask != arm.DescriptorTypeFault {
		return ErrorTranslationAlreadyMapped
	}
	return pt.k.Memory.Store32(pt.entryAddress(va), arm.Section(pa, ap, attrs))
}

// Release gives the table's memory back.  The table must not be active.
func (pt *PageTable) Release() error {
	if pt.base == 0 {
		return ErrorTranslationTableReleased
	}
	err := pt.k.Tables.Free(pt.base)
	pt.base = 0
	return err
}

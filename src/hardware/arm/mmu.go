package arm

import "fmt"

// ***************************************
// Short-descriptor translation table format, B3.5 of the ARMv7-AR Architecture Reference Manual.
// Only 1MB sections are used: a single level of 4096 entries covers 4GB.
// ***************************************

const SectionShift = 20
const SectionSize = (1 << SectionShift)   //1MB
const SectionOffsetMask = SectionSize - 1 //0xF_FFFF
const SectionBaseMask = 0xFFF0_0000
const L1Entries = 4096
const L1EntrySize = 4
const L1TableSize = L1Entries * L1EntrySize //16KB
const L1TableAlign = L1TableSize

const DescriptorTypeMask = 0x3
const DescriptorTypeFault = 0x0
const DescriptorTypePageTable = 0x1
const DescriptorTypeSection = 0x2

const DescriptorBufferable = (1 << 2)
const DescriptorCacheable = (1 << 3)
const DescriptorExecuteNever = (1 << 4)
const DescriptorDomainShift = 5
const DescriptorAPShift = 10
const DescriptorAPMask = (3 << DescriptorAPShift)
const DescriptorShareable = (1 << 16)
const DescriptorNotGlobal = (1 << 17)

// access permissions, with APX clear
const APNoAccess = 0
const APPrivilegedOnly = 1 // privileged RW, user none
const APUserReadOnly = 2   // privileged RW, user RO
const APFullAccess = 3     // privileged RW, user RW

const DescriptorNormalMemory = DescriptorBufferable | DescriptorCacheable

// Section builds a section descriptor that maps one MB at pa with the given
// access permissions and attribute bits.
func Section(pa uint32, ap uint32, attrs uint32) uint32 {
	return (pa & SectionBaseMask) |
		((ap << DescriptorAPShift) & DescriptorAPMask) |
		(attrs &^ (SectionBaseMask | DescriptorAPMask | DescriptorTypeMask)) |
		DescriptorTypeSection
}

// SectionIndex is the L1 entry number that translates va.
func SectionIndex(va uint32) uint32 {
	return va >> SectionShift
}

func DescriptorAP(desc uint32) uint32 {
	return (desc & DescriptorAPMask) >> DescriptorAPShift
}

type Access int

const (
	AccessRead Access = iota
	AccessWrite
	AccessExecute
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessExecute:
		return "execute"
	}
	return "unknown access"
}

type FaultKind int

const (
	FaultTranslation FaultKind = iota
	FaultPermission
	FaultExternal
)

// Fault is an abort raised by the MMU walk or the bus behind it.
type Fault struct {
	Kind   FaultKind
	VA     uint32
	Access Access
	User   bool
}

func (f *Fault) Error() string {
	who := "privileged"
	if f.User {
		who = "user"
	}
	switch f.Kind {
	case FaultTranslation:
		return fmt.Sprintf("translation fault: %s %s at %#08x", who, f.Access, f.VA)
	case FaultPermission:
		return fmt.Sprintf("permission fault: %s %s at %#08x", who, f.Access, f.VA)
	}
	return fmt.Sprintf("external abort: %s %s at %#08x", who, f.Access, f.VA)
}

// permitted applies the AP table for a section (APX clear, domain client).
func permitted(desc uint32, acc Access, user bool) bool {
	if acc == AccessExecute && desc&DescriptorExecuteNever != 0 {
		return false
	}
	switch DescriptorAP(desc) {
	case APNoAccess:
		return false
	case APPrivilegedOnly:
		return !user
	case APUserReadOnly:
		return !user || acc != AccessWrite
	}
	return true
}

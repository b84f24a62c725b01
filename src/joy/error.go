package joy

import "fmt"

const subsystemMask = 0x00ff_0000_0000_0000
const errorNumberMask = 0x0000_0000_0000_ffff

const JoyNoError = JoyError(0)

// Memory Errors
const MemorySubsystem = 1
const MemoryRegionUnavailable = 1
const MemoryBadRegion = 2

var ErrorMemoryRegionUnavailable = errorValue(MemorySubsystem, MemoryRegionUnavailable)
var ErrorMemoryBadRegion = errorValue(MemorySubsystem, MemoryBadRegion)

// Translation Errors
const TranslationSubsystem = 2
const TranslationMisaligned = 1
const TranslationAlreadyMapped = 2
const TranslationTableReleased = 3

var ErrorTranslationMisaligned = errorValue(TranslationSubsystem, TranslationMisaligned)
var ErrorTranslationAlreadyMapped = errorValue(TranslationSubsystem, TranslationAlreadyMapped)
var ErrorTranslationTableReleased = errorValue(TranslationSubsystem, TranslationTableReleased)

// Kernel Errors
const KernelSubsystem = 3
const KernelBadParameters = 1
const KernelNoScheduler = 2

var ErrorKernelBadParameters = errorValue(KernelSubsystem, KernelBadParameters)
var ErrorKernelNoScheduler = errorValue(KernelSubsystem, KernelNoScheduler)

// JoyError is subsystem and number packed in one word, the way the kernel
// reports errors it can recover from.
type JoyError uint64

var errorMap = map[JoyError]string{
	ErrorMemoryRegionUnavailable:  "memory region cannot be allocated",
	ErrorMemoryBadRegion:          "memory region does not fit the board",
	ErrorTranslationMisaligned:    "address is not section aligned",
	ErrorTranslationAlreadyMapped: "section is already mapped",
	ErrorTranslationTableReleased: "translation table has been released",
	ErrorKernelBadParameters:      "board parameters are not usable",
	ErrorKernelNoScheduler:        "no scheduler attached",
}

func (j JoyError) Subsystem() byte {
	return byte((uint64(j) & subsystemMask) >> 48)
}

func (j JoyError) Number() uint16 {
	return uint16(uint64(j) & errorNumberMask)
}

func (j JoyError) Error() string {
	t, ok := errorMap[j]
	if !ok {
		return fmt.Sprintf("unknown error code %#x", uint64(j))
	}
	return t
}

func errorValue(subsys byte, errorNumber uint16) JoyError {
	ss := subsystemMask & (uint64(subsys) << 48)
	en := errorNumberMask & (uint64(errorNumber) << 0)
	return JoyError(ss | en)
}

package arm

// ***************************************
// CPSR, Current Program Status Register, B1.3.3 of the ARMv7-AR Architecture Reference Manual.
// ***************************************

const ModeUser = 0x10
const ModeFIQ = 0x11
const ModeIRQ = 0x12
const ModeSupervisor = 0x13
const ModeAbort = 0x17
const ModeUndefined = 0x1B
const ModeSystem = 0x1F
const ModeMask = 0x1F

const CPSRFIQDisable = (1 << 6)
const CPSRIRQDisable = (1 << 7)

// what a new kernel task starts with: System mode, IRQ and FIQ enabled
const CPSRKernelTask = ModeSystem //0x1F

// what a new user task starts with: User mode, IRQ and FIQ enabled
const CPSRUserTask = ModeUser //0x10

// ***************************************
// FPEXC, Floating-Point Exception Control register, B6.1.40.
// ***************************************

const FPEXCEnable = (1 << 30) //0x4000_0000

// ***************************************
// FPSCR, Floating-Point Status and Control Register, A2.6.
// ***************************************

const FPSCRDefaultNaN = (1 << 25) //0x0200_0000

// ***************************************
// TTBR0, Translation Table Base Register 0, B4.1.154.
// ***************************************

const TTBRBaseMask = 0xFFFF_C000 // 16KB aligned L1 table
const TTBRInnerCacheable = (1 << 0)
const TTBRShareable = (1 << 1)
const TTBROuterWriteBack = (1 << 3)
const TTBRAttributes = TTBRInnerCacheable | TTBROuterWriteBack //0x9

// ***************************************
// FPCR, Floating-point Control Register (AArch64), C5.2.8 of the Armv8-A Reference Manual.
// ***************************************

const FPCRDefaultNaN = (1 << 25)
const FPCRFlushToZero = (1 << 24)
const FPCRReset = 0

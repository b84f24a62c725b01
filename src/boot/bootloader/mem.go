package bootloader

// default board: 16MB of RAM at physical zero
const DefaultRAMBase = 0x0000_0000
const DefaultRAMSize = 0x0100_0000

// the first MB holds the kernel image, loaded at 0x8000 as on the Pi
const KernelLoadAddress = 0x0000_8000

// kernel heap: task control blocks and task stacks
const DefaultKernelHeapStart = 0x0010_0000
const DefaultKernelHeapSize = 0x0020_0000 // 2MB
const HeapGranule = 0x40                  // every heap block is 64 byte aligned

// translation tables, 16KB each
const DefaultTableAreaStart = 0x0030_0000
const DefaultTableAreaSize = 0x0010_0000 // room for 64 tables

// physical sections handed to user mode tasks, 1MB each
const DefaultUserPagesStart = 0x0040_0000
const DefaultUserPagesSize = 0x00C0_0000 // 12 sections

// user address space: program image low, stack high
const DefaultUserLoadAddress = 0x8000_0000
const DefaultUserStackAddress = 0xBFF0_0000 // SP starts at 0xC000_0000

const DefaultTaskStackSize = 0x8000
const DefaultHZ = 100

// a realtime tick must last at least a nanosecond
const MaxRealtimeHZ = 1_000_000_000

const MinTaskStackSize = 1024

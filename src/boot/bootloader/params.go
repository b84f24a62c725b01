package bootloader

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"contentment/src/hardware/arm"
)

const ClockVirtual = "virtual"
const ClockRealtime = "realtime"

// Params describes the board the kernel boots on and the layout of its
// physical and user memory.  A zero field in a loaded file keeps the default.
type Params struct {
	Model            string `yaml:"model"`
	RAMBase          uint64 `yaml:"ram_base"`
	RAMSize          uint64 `yaml:"ram_size"`
	KernelHeapStart  uint64 `yaml:"kernel_heap_start"`
	KernelHeapSize   uint64 `yaml:"kernel_heap_size"`
	TableAreaStart   uint64 `yaml:"table_area_start"`
	TableAreaSize    uint64 `yaml:"table_area_size"`
	UserPagesStart   uint64 `yaml:"user_pages_start"`
	UserPagesSize    uint64 `yaml:"user_pages_size"`
	UserLoadAddress  uint32 `yaml:"user_load_address"`
	UserStackAddress uint32 `yaml:"user_stack_address"`
	TaskStackSize    uint32 `yaml:"task_stack_size"`
	HZ               uint64 `yaml:"hz"`
	Clock            string `yaml:"clock"`
	LogLevel         string `yaml:"log_level"`
}

func Default() *Params {
	return &Params{
		Model:            arm.Model32.String(),
		RAMBase:          DefaultRAMBase,
		RAMSize:          DefaultRAMSize,
		KernelHeapStart:  DefaultKernelHeapStart,
		KernelHeapSize:   DefaultKernelHeapSize,
		TableAreaStart:   DefaultTableAreaStart,
		TableAreaSize:    DefaultTableAreaSize,
		UserPagesStart:   DefaultUserPagesStart,
		UserPagesSize:    DefaultUserPagesSize,
		UserLoadAddress:  DefaultUserLoadAddress,
		UserStackAddress: DefaultUserStackAddress,
		TaskStackSize:    DefaultTaskStackSize,
		HZ:               DefaultHZ,
		Clock:            ClockVirtual,
		LogLevel:         "info",
	}
}

// Load reads a YAML parameter file over the defaults.
func Load(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading board parameters %s", path)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "board parameters %s", path)
	}
	return p, nil
}

func Parse(data []byte) (*Params, error) {
	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, errors.Wrap(err, "parsing yaml")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Params) ProcessorModel() arm.Model {
	m, err := arm.ParseModel(p.Model)
	if err != nil {
		return arm.Model32
	}
	return m
}

// UserStackTop is the initial SP of a user task: the end of its stack section.
func (p *Params) UserStackTop() uint32 {
	return p.UserStackAddress + arm.SectionSize
}

type region struct {
	name        string
	start, size uint64
	align       uint64
}

// Validate checks that every region is aligned for what it holds, lies in
// RAM and overlaps no other, and that the task stack size is legal.
func (p *Params) Validate() error {
	m, err := arm.ParseModel(p.Model)
	if err != nil {
		return errors.WithStack(err)
	}
	if p.RAMSize == 0 || p.RAMBase%arm.SectionSize != 0 || p.RAMSize%arm.SectionSize != 0 {
		return errors.Errorf("ram %#x+%#x must be whole sections", p.RAMBase, p.RAMSize)
	}
	if p.RAMBase+p.RAMSize > 1<<32 {
		return errors.Errorf("ram %#x+%#x does not fit a 32 bit physical space", p.RAMBase, p.RAMSize)
	}
	regions := []region{
		{"kernel image", p.RAMBase, arm.SectionSize, arm.SectionSize},
		{"kernel heap", p.KernelHeapStart, p.KernelHeapSize, HeapGranule},
		{"table area", p.TableAreaStart, p.TableAreaSize, arm.L1TableAlign},
		{"user pages", p.UserPagesStart, p.UserPagesSize, arm.SectionSize},
	}
	for i, r := range regions {
		if r.size == 0 || r.start%r.align != 0 || r.size%r.align != 0 {
			return errors.Errorf("%s %#x+%#x is not aligned to %#x", r.name, r.start, r.size, r.align)
		}
		if r.start < p.RAMBase || r.start+r.size > p.RAMBase+p.RAMSize {
			return errors.Errorf("%s %#x+%#x is outside ram", r.name, r.start, r.size)
		}
		for _, o := range regions[:i] {
			if r.start < o.start+o.size && o.start < r.start+r.size {
				return errors.Errorf("%s overlaps %s", r.name, o.name)
			}
		}
	}
	for _, va := range []uint32{p.UserLoadAddress, p.UserStackAddress} {
		if va%arm.SectionSize != 0 {
			return errors.Errorf("user address %#08x is not section aligned", va)
		}
		if uint64(va) >= p.RAMBase && uint64(va) < p.RAMBase+p.RAMSize {
			return errors.Errorf("user address %#08x collides with the kernel's map of ram", va)
		}
	}
	if p.UserLoadAddress == p.UserStackAddress {
		return errors.Errorf("user image and stack share section %#08x", p.UserLoadAddress)
	}
	if p.TaskStackSize < MinTaskStackSize || p.TaskStackSize%m.StackAlignment() != 0 {
		return errors.Errorf("task stack size %#x must be at least %d and a multiple of %d",
			p.TaskStackSize, MinTaskStackSize, m.StackAlignment())
	}
	if p.HZ == 0 {
		return errors.New("hz must not be zero")
	}
	if p.Clock != ClockVirtual && p.Clock != ClockRealtime {
		return errors.Errorf("unknown clock %q", p.Clock)
	}
	if p.Clock == ClockRealtime && p.HZ > MaxRealtimeHZ {
		return errors.Errorf("hz %d is above %d, too fast for the realtime clock", p.HZ, MaxRealtimeHZ)
	}
	return nil
}

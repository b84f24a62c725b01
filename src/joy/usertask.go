package joy

import (
	"go.uber.org/multierr"

	"contentment/src/hardware/arm"
	"contentment/src/lib/loader"
)

// UserModeTask runs a program image in user mode inside its own address
// space.  The image gets one section at the board's user load address and
// the stack one section at the user stack address; everything else in the
// address space is the kernel's, and user mode cannot touch it.
type UserModeTask struct {
	*Task
	image     *loader.Image
	pageTable *PageTable
	codePage  uint64
	stackPage uint64
	userSP    uint32
	kernelSP  uint32
}

// NewUserModeTask builds and starts a user mode task for image.  Only the 32
// bit model has user mode tasks.
func NewUserModeTask(k *Kernel, image *loader.Image) *UserModeTask {
	log.Assertf(k.Model() == arm.Model32, "user mode tasks need the aarch32 model, not %s", k.Model())
	p := k.Params
	u := &UserModeTask{image: image}
	u.Task = NewTask(k, p.TaskStackSize, true, u)

	var err error
	u.pageTable, err = NewPageTableFrom(k, k.KernelTable)
	log.Assertf(err == nil, "translation table for %s: %v", u.name, err)
	u.codePage, err = k.Pages.Alloc()
	log.Assertf(err == nil, "code page for %s: %v", u.name, err)
	u.stackPage, err = k.Pages.Alloc()
	log.Assertf(err == nil, "stack page for %s: %v", u.name, err)

	log.Assertf(image.Size() <= arm.SectionSize, "image %s is %#x bytes, more than a section", image.Name, image.Size())
	err = k.Memory.Write(u.codePage, image.Text)
	log.Assertf(err == nil, "copying image %s: %v", image.Name, err)

	err = u.pageTable.MapSection(p.UserLoadAddress, uint32(u.codePage), arm.APFullAccess, arm.DescriptorNormalMemory)
	log.Assertf(err == nil, "mapping image of %s: %v", u.name, err)
	err = u.pageTable.MapSection(p.UserStackAddress, uint32(u.stackPage), arm.APFullAccess,
		arm.DescriptorNormalMemory|arm.DescriptorExecuteNever)
	log.Assertf(err == nil, "mapping stack of %s: %v", u.name, err)

	r := u.regs.(*arm.Context32)
	r.TTBR0 = u.pageTable.TTBR0()
	r.PC = p.UserLoadAddress
	r.SP = p.UserStackTop()
	r.CPSR = arm.CPSRUserTask
	u.kernelSP = uint32(u.StackTop())

	log.Debugf("user task %s: image %s at %#08x (pa %#x), stack at %#08x (pa %#x)",
		u.name, image.Name, p.UserLoadAddress, u.codePage, p.UserStackAddress, u.stackPage)
	u.Start()
	return u
}

// AsUserModeTask returns the user mode task t belongs to, if it is one.
func AsUserModeTask(t *Task) (*UserModeTask, bool) {
	if t == nil {
		return nil, false
	}
	u, ok := t.workload.(*UserModeTask)
	return u, ok
}

// Run is never reached: the first switch into a user mode task enters the
// image directly in user mode.
func (u *UserModeTask) Run(t *Task) {
	log.Fatalf(1, "user mode task %s entered kernel code through the trampoline", t.name)
}

func (u *UserModeTask) Image() *loader.Image {
	return u.image
}

func (u *UserModeTask) PageTable() *PageTable {
	return u.pageTable
}

// Pages returns the physical sections holding the image and the stack.
func (u *UserModeTask) Pages() (code uint64, stack uint64) {
	return u.codePage, u.stackPage
}

// SaveUserSPAndGetKernelSP is called by the trap dispatcher on entry from
// user mode: it keeps the user stack pointer and answers the stack the
// kernel should run the trap on.
func (u *UserModeTask) SaveUserSPAndGetKernelSP(userSP uint32) uint32 {
	u.userSP = userSP
	return u.kernelSP
}

// SavedUserSP is what the trap dispatcher restores on the way back out.
func (u *UserModeTask) SavedUserSP() uint32 {
	return u.userSP
}

// releaseResources gives back the stack page, the code page and the
// translation table, the reverse of the order they were taken in.
func (u *UserModeTask) releaseResources() error {
	var err error
	if u.stackPage != 0 {
		err = multierr.Append(err, u.k.Pages.Free(u.stackPage))
		u.stackPage = 0
	}
	if u.codePage != 0 {
		err = multierr.Append(err, u.k.Pages.Free(u.codePage))
		u.codePage = 0
	}
	if u.pageTable != nil {
		err = multierr.Append(err, u.pageTable.Release())
		u.pageTable = nil
	}
	return err
}

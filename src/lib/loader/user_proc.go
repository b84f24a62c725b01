package loader

import (
	"github.com/pkg/errors"

	"contentment/src/hardware/arm"
)

// Executor runs user mode code for a core: it reads the image header at the
// entry address through the MMU, with the user task's own permissions, and
// starts the program the header names.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

func (e *Executor) Execute(c *arm.Core, entry uint32) error {
	hdr := make([]byte, HeaderSize)
	if err := c.Fetch(entry, hdr); err != nil {
		return errors.Wrapf(err, "fetching image header at %#08x", entry)
	}
	n, id, err := decodeHeader(hdr)
	if err != nil {
		return errors.Wrapf(err, "image at %#08x", entry)
	}
	name := make([]byte, n)
	if err := c.Fetch(entry+HeaderSize, name); err != nil {
		return errors.Wrapf(err, "fetching image name at %#08x", entry+HeaderSize)
	}
	p, ok := Lookup(string(name))
	if !ok {
		return errors.Wrapf(LoaderUnknownProgram, "image %q", string(name))
	}
	log.Debugf("entering %s (build %s) at %#08x", string(name), id, entry)
	p(c)
	return nil
}

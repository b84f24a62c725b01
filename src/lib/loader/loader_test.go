package loader

import (
	"testing"

	"github.com/google/uuid"

	"contentment/src/hardware/arm"
)

// flat is a bus with physical memory at zero and no MMU in front of it.
type flat []byte

func (f flat) Load32(pa uint64) (uint32, error) {
	return uint32(f[pa]) | uint32(f[pa+1])<<8 | uint32(f[pa+2])<<16 | uint32(f[pa+3])<<24, nil
}
func (f flat) Read(pa uint64, p []byte) error  { copy(p, f[pa:]); return nil }
func (f flat) Write(pa uint64, p []byte) error { copy(f[pa:], p); return nil }

var execRan bool

func init() {
	Register("loader-test-roundtrip", func(*arm.Core) {})
	Register("loader-test-exec", func(c *arm.Core) { execRan = true })
}

func TestImageRoundTrip(t *testing.T) {
	img, err := NewImage("loader-test-roundtrip")
	if err != nil {
		t.Fatal(err)
	}
	if img.BuildID == uuid.Nil {
		t.Errorf("image has no build id")
	}
	back, err := Decode(img.Text)
	if err != nil {
		t.Fatal(err)
	}
	if back.Name != img.Name || back.BuildID != img.BuildID {
		t.Errorf("decoded %s/%s, expected %s/%s", back.Name, back.BuildID, img.Name, img.BuildID)
	}
}

func TestNewImageNeedsProgram(t *testing.T) {
	if _, err := NewImage("nobody-registered-this"); err != LoaderUnknownProgram {
		t.Errorf("expected LoaderUnknownProgram but got %v", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not an image at all, honest")); err != LoaderBadMagic {
		t.Errorf("expected LoaderBadMagic but got %v", err)
	}
	text := encode("x", uuid.New())
	text[4] = 9
	if _, err := Decode(text); err != LoaderBadVersion {
		t.Errorf("expected LoaderBadVersion but got %v", err)
	}
}

func TestExecutorRunsNamedProgram(t *testing.T) {
	execRan = false
	img, _ := NewImage("loader-test-exec")
	mem := make(flat, 0x1000)
	copy(mem[0x100:], img.Text)
	c := arm.NewCore(arm.Model32, mem)
	if err := NewExecutor().Execute(c, 0x100); err != nil {
		t.Fatal(err)
	}
	if !execRan {
		t.Errorf("program was not started")
	}
	if err := NewExecutor().Execute(c, 0x800); err == nil {
		t.Errorf("executing zeroed memory should fail")
	}
}

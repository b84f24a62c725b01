package loader

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"

	"contentment/src/hardware/arm"
	"contentment/src/lib/trust"
)

var log = trust.Named("loader")

// Image header, little endian:
//
//	0x00 magic "\x7fJOY"
//	0x04 format version
//	0x05 reserved, zero
//	0x06 name length (uint16)
//	0x08 build id (16 bytes)
//	0x18 name
const HeaderSize = 0x18
const FormatVersion = 1
const MaxNameLength = 0x100

var magic = [4]byte{0x7f, 'J', 'O', 'Y'}

type LoaderError int

const LoaderNoError LoaderError = 0
const LoaderBadMagic LoaderError = -1
const LoaderBadVersion LoaderError = -2
const LoaderBadName LoaderError = -3
const LoaderUnknownProgram LoaderError = -4
const LoaderImageTooLarge LoaderError = -5

func (e LoaderError) Error() string {
	return e.String()
}

func (e LoaderError) String() string {
	switch e {
	case LoaderNoError:
		return "LoaderNoError"
	case LoaderBadMagic:
		return "LoaderBadMagic"
	case LoaderBadVersion:
		return "LoaderBadVersion"
	case LoaderBadName:
		return "LoaderBadName"
	case LoaderUnknownProgram:
		return "LoaderUnknownProgram"
	case LoaderImageTooLarge:
		return "LoaderImageTooLarge"
	}
	return "unknown loader error"
}

// Program is the code behind an image: what runs once the core branches to
// the image's first byte in user mode.
type Program func(cpu *arm.Core)

var (
	registryLock sync.Mutex
	programs     = map[string]Program{}
)

// Register puts a program into the board's program store so images naming it
// can be executed.  Programs register from init.
func Register(name string, p Program) {
	registryLock.Lock()
	defer registryLock.Unlock()
	if len(name) == 0 || len(name) > MaxNameLength {
		log.Fatalf(1, "program name %q has a bad length", name)
	}
	if _, ok := programs[name]; ok {
		log.Fatalf(1, "program %s registered twice", name)
	}
	programs[name] = p
}

func Lookup(name string) (Program, bool) {
	registryLock.Lock()
	defer registryLock.Unlock()
	p, ok := programs[name]
	return p, ok
}

// Image is a program image as it sits in kernel memory before a user task
// copies it into its own page.
type Image struct {
	Name    string
	BuildID uuid.UUID
	Text    []byte
}

// NewImage builds the image for a registered program, stamped with a fresh
// build id.
func NewImage(name string) (*Image, error) {
	if _, ok := Lookup(name); !ok {
		return nil, LoaderUnknownProgram
	}
	img := &Image{
		Name:    name,
		BuildID: uuid.New(),
	}
	img.Text = encode(img.Name, img.BuildID)
	return img, nil
}

func (i *Image) Size() uint64 {
	return uint64(len(i.Text))
}

func encode(name string, id uuid.UUID) []byte {
	text := make([]byte, HeaderSize+len(name))
	copy(text[0:4], magic[:])
	text[4] = FormatVersion
	binary.LittleEndian.PutUint16(text[6:8], uint16(len(name)))
	copy(text[8:24], id[:])
	copy(text[HeaderSize:], name)
	return text
}

// decodeHeader checks the fixed part of an image and returns the name length
// and build id.
func decodeHeader(hdr []byte) (int, uuid.UUID, error) {
	if len(hdr) < HeaderSize {
		return 0, uuid.Nil, LoaderBadMagic
	}
	if hdr[0] != magic[0] || hdr[1] != magic[1] || hdr[2] != magic[2] || hdr[3] != magic[3] {
		return 0, uuid.Nil, LoaderBadMagic
	}
	if hdr[4] != FormatVersion {
		return 0, uuid.Nil, LoaderBadVersion
	}
	n := int(binary.LittleEndian.Uint16(hdr[6:8]))
	if n == 0 || n > MaxNameLength {
		return 0, uuid.Nil, LoaderBadName
	}
	id, err := uuid.FromBytes(hdr[8:24])
	if err != nil {
		return 0, uuid.Nil, LoaderBadMagic
	}
	return n, id, nil
}

// Decode parses a complete image.
func Decode(text []byte) (*Image, error) {
	n, id, err := decodeHeader(text)
	if err != nil {
		return nil, err
	}
	if len(text) < HeaderSize+n {
		return nil, LoaderBadName
	}
	return &Image{
		Name:    string(text[HeaderSize : HeaderSize+n]),
		BuildID: id,
		Text:    text,
	}, nil
}

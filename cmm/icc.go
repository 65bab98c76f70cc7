package cmm

import (
	"bytes"
	"fmt"
	"strings"

	"seehuhn.de/go/icc"
)

const headerSize = 128

var magic = []byte("acsp")

// ICCProfile implements Profile for ICC data.
type ICCProfile struct {
	data       []byte
	class      string
	space      string
	version    string
	components int
}

// NewICCProfile checks the header and decodes the tag table of data.
func NewICCProfile(data []byte) (*ICCProfile, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidProfile, len(data))
	}
	if !bytes.Equal(data[36:40], magic) {
		return nil, fmt.Errorf("%w: missing acsp signature", ErrInvalidProfile)
	}
	decoded, err := icc.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	return &ICCProfile{
		data:       data,
		class:      string(data[12:16]),
		space:      strings.TrimRight(string(data[16:20]), " "),
		version:    fmt.Sprintf("%d.%d", data[8], data[9]>>4),
		components: decoded.ColorSpace.NumComponents(),
	}, nil
}

func (p *ICCProfile) Class() string      { return p.class }
func (p *ICCProfile) ColorSpace() string { return p.space }
func (p *ICCProfile) Components() int    { return p.components }
func (p *ICCProfile) Data() []byte       { return p.data }

// Version returns the major.minor profile version.
func (p *ICCProfile) Version() string { return p.version }

// IsOutput reports whether the profile describes an output device.
func (p *ICCProfile) IsOutput() bool { return p.class == ClassOutput }

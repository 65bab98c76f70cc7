// Package cmm reads the ICC profiles that output intents and ICCBased color
// spaces carry.
package cmm

import "errors"

var (
	// ErrInvalidProfile is returned for data that is not an ICC profile.
	ErrInvalidProfile = errors.New("cmm: invalid ICC profile")
)

// Profile classes from the ICC header.
const (
	ClassInput      = "scnr"
	ClassDisplay    = "mntr"
	ClassOutput     = "prtr"
	ClassLink       = "link"
	ClassColorSpace = "spac"
	ClassAbstract   = "abst"
	ClassNamed      = "nmcl"
)

// Profile describes a color profile.
type Profile interface {
	// ColorSpace returns the data color space signature, e.g. "CMYK".
	ColorSpace() string
	// Class returns the profile class signature, e.g. "prtr".
	Class() string
	// Components returns the number of channels of the data color space.
	Components() int
	// Data returns the raw profile bytes.
	Data() []byte
}

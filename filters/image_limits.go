package filters

import "fmt"

const (
	// maxNativeImageDimension caps the width or height a decoder will allocate for.
	maxNativeImageDimension = 65535
	// maxNativeImagePixels bounds total pixels for decoders that materialize
	// a full image.
	maxNativeImagePixels int64 = 256 * 1024 * 1024
)

// ValidateImageBounds rejects image dimensions a decoder should not allocate for.
func ValidateImageBounds(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("image bounds invalid (%d x %d)", width, height)
	}
	if width > maxNativeImageDimension || height > maxNativeImageDimension {
		return fmt.Errorf("image dimension exceeds limit (%d x %d)", width, height)
	}
	if pixels := int64(width) * int64(height); pixels > maxNativeImagePixels {
		return fmt.Errorf("image pixel count %d exceeds limit %d", pixels, maxNativeImagePixels)
	}
	return nil
}

package pix2pix

import "errors"

// Errors returned by pipeline stages.
var (
	// ErrShapeMismatch is returned when an inference output holds fewer
	// values than the decoder needs. The output texture is left untouched.
	ErrShapeMismatch = errors.New("pix2pix: output tensor shorter than texture")

	// ErrResourceAcquisition is returned when a texture cannot be allocated.
	ErrResourceAcquisition = errors.New("pix2pix: texture allocation failed")

	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("pix2pix: invalid dimensions")

	// ErrInvalidChannels is returned for channel counts other than 1, 3 or 4.
	ErrInvalidChannels = errors.New("pix2pix: channel count must be 1, 3 or 4")

	// ErrTextureReleased is returned when a released texture is used.
	ErrTextureReleased = errors.New("pix2pix: texture already released")

	// ErrClosed is returned by operations on a closed pipeline.
	ErrClosed = errors.New("pix2pix: pipeline closed")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("pix2pix: invalid configuration")
)

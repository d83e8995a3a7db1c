package protocol

import "errors"

var (
	ErrInvalidMagic       = errors.New("protocol: invalid magic")
	ErrUnsupportedVersion = errors.New("protocol: unsupported version")
	ErrInvalidLength      = errors.New("protocol: invalid length")
	ErrTruncated          = errors.New("protocol: truncated data")
)

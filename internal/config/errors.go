package config

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("invalid config")

func invalid(field, msg string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, field, msg)
}

const (
	// HTTP errors
	ErrInvalidDocument   = "Invalid document"
	ErrBlockNotFound     = "Block not found"
	ErrTooManySaves      = "Too many save requests"
	ErrStreamUnsupported = "Streaming unsupported"

	// Config errors
	ErrWriteConfigContentFmt = "Failed to write config content: %v"
	ErrGenerateConfigFmt     = "Error generating config: %v"
)

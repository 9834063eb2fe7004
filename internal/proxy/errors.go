package proxy

import "errors"

var (
	// ErrInvalidTable indicates the proxy table contains an unusable entry
	ErrInvalidTable = errors.New("invalid proxy table")
	// ErrInvalidPattern indicates a request path pattern could not be compiled
	ErrInvalidPattern = errors.New("invalid proxy pattern")
)

package devserver

import "errors"

var (
	// ErrNotDevelopment indicates a dev server was requested for a production configuration
	ErrNotDevelopment = errors.New("dev server requires a development configuration")
	// ErrServerNotReady indicates the dev server did not answer before the browser was launched
	ErrServerNotReady = errors.New("dev server did not become ready")
)

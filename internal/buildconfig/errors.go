package buildconfig

import "errors"

// ErrUnknownMode indicates a build mode other than development or production
var ErrUnknownMode = errors.New("unknown build mode")

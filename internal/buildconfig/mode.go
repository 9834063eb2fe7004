package buildconfig

import (
	"fmt"
	"os"
	"strings"
)

// EnvVar is the environment variable the build mode is read from.
const EnvVar = "NODE_ENV"

// Mode selects the development or production branch of the configuration. Exactly
// one mode is active for a build.
type Mode int

const (
	Development Mode = iota
	Production
)

func (m Mode) String() string {
	switch m {
	case Development:
		return "development"
	case Production:
		return "production"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func (m Mode) IsDevelopment() bool { return m == Development }
func (m Mode) IsProduction() bool  { return m == Production }

// ParseMode parses "development" or "production", ignoring case and surrounding space.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development":
		return Development, nil
	case "production":
		return Production, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// ModeFromEnv reads the mode from NODE_ENV.
func ModeFromEnv() (Mode, error) {
	return ParseMode(os.Getenv(EnvVar))
}

func (m Mode) MarshalText() ([]byte, error) {
	if m != Development && m != Production {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

package profile

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/matheus3301/collab/internal/config"
)

const DefaultName = "main"

// Resolve determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. default_profile from config.toml or COLLAB_DEFAULT_PROFILE
// 3. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Resolve(ConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultName
}

// ErrInvalidName is wrapped by ValidateName failures.
var ErrInvalidName = errors.New("invalid profile name")

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name is usable as a directory under profiles/:
// lowercase letters, digits, '_' and '-', at most 64 bytes, not starting
// with '-' so it cannot be mistaken for a flag.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.HasPrefix(name, "-"):
		return fmt.Errorf("%w %q: must not start with '-'", ErrInvalidName, name)
	case !nameRegexp.MatchString(name):
		return fmt.Errorf("%w %q: use at most 64 of [a-z0-9_-]", ErrInvalidName, name)
	}
	return nil
}

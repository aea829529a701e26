package sanitize

import (
	"errors"
	"fmt"
	"regexp"
)

// MaxLength is the longest identifier accepted.
const MaxLength = 255

var ErrInvalidIdentifier = errors.New("invalid identifier")

// allowedPattern is the full allow-list. Anything else could break out of a
// quoted label match in a log filter.
var allowedPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Identifier validates raw against the identifier allow-list and returns it
// unchanged. kind names the value in error messages (e.g. "service_name").
// It must run before raw is interpolated into any query string.
func Identifier(raw, kind string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: %s cannot be empty", ErrInvalidIdentifier, kind)
	}
	if len(raw) > MaxLength {
		return "", fmt.Errorf("%w: %s exceeds maximum length of %d", ErrInvalidIdentifier, kind, MaxLength)
	}
	if !allowedPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: invalid %s %q, only letters, digits, '.', '_' and '-' are allowed",
			ErrInvalidIdentifier, kind, raw)
	}
	return raw, nil
}

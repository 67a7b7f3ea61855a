// Package sanitize cleans identifiers received from remote callers before
// they reach a workspace or its logs.
package sanitize

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// DefaultMaxSize bounds image refs, uids and session ids.
	DefaultMaxSize = 512
	// EnvMaxSize is the environment variable to override the default
	EnvMaxSize = "REGIONS_MAX_INPUT_SIZE"
)

var (
	ErrTooLarge    = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8 = errors.New("input contains invalid UTF-8 sequences")
	ErrEmpty       = errors.New("input is empty")
)

// ID enforces the size limit, validates UTF-8 and strips every control
// character. Surrounding whitespace is trimmed and an empty result is
// rejected.
func ID(input string) (string, error) {
	limit := maxSize()
	if len(input) > limit {
		// Rejected, never truncated.
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrTooLarge, len(input), limit)
	}

	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	clean := input
	if strings.IndexFunc(input, unicode.IsControl) >= 0 {
		var b strings.Builder
		b.Grow(len(input))
		for _, r := range input {
			if !unicode.IsControl(r) {
				b.WriteRune(r)
			}
		}
		clean = b.String()
	}

	clean = strings.TrimSpace(clean)
	if clean == "" {
		return "", ErrEmpty
	}
	return clean, nil
}

func maxSize() int {
	if val := os.Getenv(EnvMaxSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxSize
}

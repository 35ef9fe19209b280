package secret

import (
	"fmt"
	"regexp"
	"strings"
)

// refPattern matches ${type:name} references.
var refPattern = regexp.MustCompile(`^\$\{([^:}]+):([^}]+)\}$`)

// ParseRef parses a ${type:name} secret reference.
func ParseRef(input string) (*Ref, error) {
	matches := refPattern.FindStringSubmatch(strings.TrimSpace(input))
	if len(matches) != 3 {
		return nil, fmt.Errorf("invalid secret reference format: %s", input)
	}

	return &Ref{
		Type:     strings.TrimSpace(matches[1]),
		Name:     strings.TrimSpace(matches[2]),
		Original: input,
	}, nil
}

// IsRef reports whether the string looks like a secret reference.
func IsRef(input string) bool {
	return refPattern.MatchString(strings.TrimSpace(input))
}

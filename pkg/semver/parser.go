// Package semver provides management API version parsing and range checks.
package semver

import (
	"fmt"
	"regexp"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:parser"

var (
	majorOnlyRegex    = regexp.MustCompile(`^\d+$`)
	exactVersionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+(-[\w.]+)?(\+[\w.]+)?$`)
)

// ParseVersion parses a strict major.minor.patch version.
func ParseVersion(input string) (*masterminds.Version, error) {
	raw := strings.TrimSpace(input)
	if !IsExactVersion(raw) {
		return nil, fmt.Errorf("%s - invalid version %q, want major.minor.patch", logPrefix, input)
	}
	v, err := masterminds.StrictNewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version %q: %w", logPrefix, input, err)
	}
	return v, nil
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// IsExactVersion checks if a range is an exact version (e.g., "3.2.1").
func IsExactVersion(rangeStr string) bool {
	return exactVersionRegex.MatchString(rangeStr)
}

// ExtractMajorFromRange extracts the major version if the range is major-only.
// Returns -1 if not a major-only range.
func ExtractMajorFromRange(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	var major int
	fmt.Sscanf(rangeStr, "%d", &major)
	return major
}

package semver

import (
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
)

const resolverLogPrefix = "semver:resolver"

// ToVersionString converts version components to a version string.
func ToVersionString(major, minor, patch int, prerelease string) string {
	base := fmt.Sprintf("%d.%d.%d", major, minor, patch)
	if prerelease != "" {
		return base + "-" + prerelease
	}
	return base
}

// SatisfiesRange checks if a version string satisfies a range.
func SatisfiesRange(version, rangeStr string) bool {
	if IsMajorOnly(rangeStr) {
		sv, err := masterminds.NewVersion(version)
		if err != nil {
			return false
		}
		return int(sv.Major()) == ExtractMajorFromRange(rangeStr)
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}

	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}

	return constraint.Check(sv)
}

// CheckCompatible returns an error when a requested range (major-only, exact, or a
// constraint such as ^1.2) is not satisfied by the served version. An empty range
// accepts any version.
func CheckCompatible(served, requested string) error {
	if requested == "" {
		return nil
	}
	if IsExactVersion(requested) {
		requested = "=" + requested
	}
	if !IsMajorOnly(requested) {
		if _, err := masterminds.NewConstraint(requested); err != nil {
			return fmt.Errorf("%s - invalid version range %q: %w", resolverLogPrefix, requested, err)
		}
	}
	if !SatisfiesRange(served, requested) {
		return fmt.Errorf("%s - management version %s does not satisfy %q", resolverLogPrefix, served, requested)
	}
	return nil
}

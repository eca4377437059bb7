// Package util provides environment, key, logging, scoring and package helpers shared across the enricher.
//
//revive:disable-next-line:var-naming
package util

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	npm "github.com/aquasecurity/go-npm-version/pkg"
	pep440 "github.com/aquasecurity/go-pep440-version"
)

var requirementOperators = regexp.MustCompile(`^\s*(?:~>|[=<>~^!]=?)\s*`)

// VersionFromRequirement extracts the pinned version out of a requirement such as "= 4.17.11".
// Ranges with more than one clause yield an empty string.
func VersionFromRequirement(req string) string {
	req = strings.TrimSpace(req)
	if req == "" || strings.Contains(req, ",") {
		return ""
	}
	return strings.TrimSpace(requirementOperators.ReplaceAllString(req, ""))
}

// CompareVersions orders a and b using the ecosystem's own version rules.
// ok is false when either version cannot be parsed.
func CompareVersions(ecosystem, a, b string) (cmp int, ok bool) {
	switch strings.ToLower(ecosystem) {
	case "npm":
		va, errA := npm.NewVersion(a)
		vb, errB := npm.NewVersion(b)
		if errA != nil || errB != nil {
			return 0, false
		}
		switch {
		case va.LessThan(vb):
			return -1, true
		case va.GreaterThan(vb):
			return 1, true
		}
		return 0, true
	case "pip", "pypi":
		va, errA := pep440.Parse(a)
		vb, errB := pep440.Parse(b)
		if errA != nil || errB != nil {
			return 0, false
		}
		switch {
		case va.LessThan(vb):
			return -1, true
		case va.GreaterThan(vb):
			return 1, true
		}
		return 0, true
	}

	va, errA := semver.NewVersion(strings.TrimPrefix(a, "go"))
	vb, errB := semver.NewVersion(strings.TrimPrefix(b, "go"))
	if errA != nil || errB != nil {
		return 0, false
	}
	return va.Compare(vb), true
}

// UpgradeKind classifies the move from current to target as "major", "minor" or "patch".
// It returns an empty string when the versions cannot be compared or target is not newer.
func UpgradeKind(ecosystem, current, target string) string {
	if cmp, ok := CompareVersions(ecosystem, current, target); !ok || cmp >= 0 {
		return ""
	}
	from, errA := semver.NewVersion(current)
	to, errB := semver.NewVersion(target)
	if errA != nil || errB != nil {
		return ""
	}
	switch {
	case to.Major() != from.Major():
		return "major"
	case to.Minor() != from.Minor():
		return "minor"
	}
	return "patch"
}

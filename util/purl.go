// Package util provides environment, key, logging, scoring and package helpers shared across the enricher.
package util

import (
	"strings"

	"github.com/package-url/packageurl-go"
)

// EcosystemToPurlType converts a GitHub advisory ecosystem to a PURL type
func EcosystemToPurlType(ecosystem string) string {
	mapping := map[string]string{
		"npm":       "npm",
		"pip":       "pypi",
		"pypi":      "pypi",
		"maven":     "maven",
		"go":        "golang",
		"rubygems":  "gem",
		"nuget":     "nuget",
		"composer":  "composer",
		"rust":      "cargo",
		"crates.io": "cargo",
		"pub":       "pub",
		"erlang":    "hex",
		"actions":   "github",
		"swift":     "swift",
	}

	if purlType, exists := mapping[strings.ToLower(ecosystem)]; exists {
		return purlType
	}
	return strings.ToLower(ecosystem)
}

// BuildPURL constructs a package URL for a dependency. Empty name yields an empty string.
func BuildPURL(ecosystem, name, version string) string {
	if name == "" {
		return ""
	}
	purlType := EcosystemToPurlType(ecosystem)
	namespace := ""

	switch purlType {
	case "maven":
		if group, artifact, ok := strings.Cut(name, ":"); ok {
			namespace, name = group, artifact
		}
	case "golang", "composer", "github", "npm":
		if idx := strings.LastIndex(name, "/"); idx > 0 {
			namespace, name = name[:idx], name[idx+1:]
		}
	}

	return packageurl.NewPackageURL(purlType, namespace, name, version, nil, "").ToString()
}

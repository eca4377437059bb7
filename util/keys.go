// Package util provides environment, key, logging, scoring and package helpers shared across the enricher.
package util

import "strings"

// SanitizeKey ensures the database key is valid for ArangoDB
// ArangoDB keys cannot contain spaces, slashes, or brackets
func SanitizeKey(key string) string {
	key = strings.TrimSpace(key)

	replacer := strings.NewReplacer(
		" ", "-",
		"/", "-",
		"[", "",
		"]", "",
		"(", "",
		")", "",
		"#", "",
		"?", "",
	)

	return replacer.Replace(key)
}

// NameComponents holds the owner and short name of a repository
type NameComponents struct {
	Owner     string
	Shortname string
}

// ParseName splits an "owner/name" repository identity.
// Owner names are lowercased and trimmed; a missing owner yields an empty Owner.
func ParseName(name string) NameComponents {
	name = strings.TrimSpace(name)
	owner, short, found := strings.Cut(name, "/")
	if !found {
		return NameComponents{Shortname: name}
	}
	return NameComponents{
		Owner:     strings.ToLower(strings.TrimSpace(owner)),
		Shortname: strings.TrimSpace(short),
	}
}

// Package slug builds the stable URL identifiers of doctor profiles and holds
// the legacy name-matching rules still accepted as a fallback.
package slug

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	gslug "github.com/gosimple/slug"
)

const prefix = "dr"

var (
	titlePrefix  = regexp.MustCompile(`^(dr\.?|doctor)\s+`)
	degreeSuffix = regexp.MustCompile(`[,\s]+(mbbs|md|ms|mch|dm|dnb|bds|mds|phd|frcs|mrcp|do)\.?$`)
	spaces       = regexp.MustCompile(`\s+`)
)

// ForDoctor returns "dr-<name>-<8 hex of id>". The id suffix keeps two
// doctors with the same name apart.
func ForDoctor(name string, id uuid.UUID) string {
	base := gslug.Make(NormalizeName(name))
	if base == "" {
		base = "doctor"
	}
	return prefix + "-" + base + "-" + strings.ReplaceAll(id.String(), "-", "")[:8]
}

// NormalizeName lowercases a display name, removes a leading "Dr."
// title and any trailing degree suffixes.
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = titlePrefix.ReplaceAllString(n, "")
	for {
		stripped := degreeSuffix.ReplaceAllString(n, "")
		if stripped == n {
			break
		}
		n = stripped
	}
	return strings.TrimSpace(spaces.ReplaceAllString(n, " "))
}

// FromLegacy turns a hyphenated legacy URL segment ("dr-jane-doe") back into
// a normalized name ("jane doe").
func FromLegacy(segment string) string {
	return NormalizeName(strings.ReplaceAll(segment, "-", " "))
}

// LooseMatch applies the legacy rule: case-insensitive substring containment
// in either direction on normalized names.
func LooseMatch(query, name string) bool {
	q := NormalizeName(query)
	n := NormalizeName(name)
	if q == "" || n == "" {
		return false
	}
	return strings.Contains(n, q) || strings.Contains(q, n)
}

package enrichment

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"travelog-backend/internal/cities"
)

// Snapshot is an immutable copy of what resolution needs from one city.
type Snapshot struct {
	ID            string
	ExternalDocID string
	Names         []string
	ImageURL      string
}

// NewSnapshot copies the fields of c used for resolution.
func NewSnapshot(c cities.City) Snapshot {
	return Snapshot{
		ID:            c.ID,
		ExternalDocID: strings.TrimSpace(cities.Deref(c.ExternalDocID)),
		Names:         candidateNames(c.Name, c.NameEn),
		ImageURL:      strings.TrimSpace(cities.Deref(c.ImageURL)),
	}
}

// PreferredKey is the human-readable stem for the materialized filename.
// The romanized name is preferred so filenames stay ASCII where possible.
func (s Snapshot) PreferredKey() string {
	if len(s.Names) > 1 {
		return s.Names[1]
	}
	if len(s.Names) == 1 {
		return s.Names[0]
	}
	return s.ID
}

// candidateNames trims and NFC-normalizes names, dropping blanks and
// case-insensitive duplicates while keeping first-seen order and casing.
func candidateNames(names ...string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = norm.NFC.String(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		k := lowerKey(n)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, n)
	}
	return out
}

// lowerKey is the matching form of a name, comparable with the catalog's nameLower field.
func lowerKey(s string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(strings.TrimSpace(s)))
}

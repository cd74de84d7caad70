package enrichment

import (
	"sort"
	"strings"

	"travelog-backend/internal/catalog"
)

const popularityField = "popularity"

// matchRank orders prefix-query hits: 0 exact name, 1 name prefix, 2 name
// contains, 3 exact country, 4 country prefix, 5 anything else.
func matchRank(fields catalog.Fields, query string) int {
	name := fields.String("nameLower")
	if name == "" {
		name = lowerKey(fields.String("name"))
	}
	country := lowerKey(fields.String("country"))
	switch {
	case name == query:
		return 0
	case strings.HasPrefix(name, query):
		return 1
	case strings.Contains(name, query):
		return 2
	case country != "" && country == query:
		return 3
	case country != "" && strings.HasPrefix(country, query):
		return 4
	default:
		return 5
	}
}

// rankDocuments sorts docs by rank, then by descending popularity. Equal
// documents keep their query order.
func rankDocuments(docs []catalog.Document, query string) []catalog.Document {
	type ranked struct {
		doc        catalog.Document
		rank       int
		popularity int64
	}
	items := make([]ranked, len(docs))
	for i, d := range docs {
		items[i] = ranked{doc: d, rank: matchRank(d.Fields, query), popularity: d.Fields.Int(popularityField)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].rank != items[j].rank {
			return items[i].rank < items[j].rank
		}
		return items[i].popularity > items[j].popularity
	})
	out := make([]catalog.Document, len(items))
	for i, it := range items {
		out[i] = it.doc
	}
	return out
}

// bestWithImage returns the highest ranked document that has an image.
func bestWithImage(docs []catalog.Document, query string) (catalog.Document, bool) {
	for _, d := range rankDocuments(docs, query) {
		if d.Fields.ImageURL() != "" {
			return d, true
		}
	}
	return catalog.Document{}, false
}

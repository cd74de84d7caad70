package cities

import (
	"strings"
	"time"
)

// City is a catalog city referenced by trips. Enrichment fills ImageURL and
// LocalImageFilename; both are independently nullable.
type City struct {
	ID                 string
	ExternalDocID      *string
	Name               string
	NameEn             string
	Country            string
	ImageURL           *string
	LocalImageFilename *string
	LastUpdated        time.Time
	CreatedAt          time.Time
}

// NeedsEnrichment reports whether the remote URL or the local file is missing.
func (c City) NeedsEnrichment() bool {
	return isBlank(c.ImageURL) || isBlank(c.LocalImageFilename)
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (c City) Clone() City {
	out := c
	out.ExternalDocID = cloneString(c.ExternalDocID)
	out.ImageURL = cloneString(c.ImageURL)
	out.LocalImageFilename = cloneString(c.LocalImageFilename)
	return out
}

// ChangeOp identifies the kind of store change.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "insert"
	ChangeUpdate ChangeOp = "update"
)

// ChangeEvent is emitted by Observe for every committed write.
type ChangeEvent struct {
	Op ChangeOp `json:"op"`
	ID string   `json:"id"`
}

// StringPtr returns nil for blank strings and a pointer to the trimmed value otherwise.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to value or "".
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func isBlank(p *string) bool {
	return p == nil || strings.TrimSpace(*p) == ""
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

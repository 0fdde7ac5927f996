package imaging

import (
	"slices"

	"github.com/Brownie44l1/formtagger-api/internal/apperr"
)

// DefaultAllowList is the set of media types the inference endpoint accepts.
var DefaultAllowList = []string{"image/jpeg", "image/png"}

// ContentGate rejects uploads by declared media type before any decoding.
type ContentGate struct {
	allowed []string
}

func NewContentGate(allowed []string) *ContentGate {
	return &ContentGate{allowed: slices.Clone(allowed)}
}

// Check is a plain membership test; the bytes are not sniffed here.
func (g *ContentGate) Check(mediaType string) error {
	if slices.Contains(g.allowed, mediaType) {
		return nil
	}
	return apperr.NewUnsupportedMediaType(mediaType, g.allowed)
}

// Allowed returns a copy of the allow-list.
func (g *ContentGate) Allowed() []string {
	return slices.Clone(g.allowed)
}

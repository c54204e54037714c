// Package assets extracts asset identifiers from upload responses whose shape
// is not documented by the upload service.
package assets

import (
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/jsonvalue"
)

const (
	// DefaultMinFallbackLength rejects short strings (flags, enum values) found
	// as bare sequence elements.
	DefaultMinFallbackLength = 10
	// DefaultMaxDepth bounds the structural search. The root is depth 0.
	DefaultMaxDepth = 10
)

// DefaultKeyNames lists the member names checked, in priority order, before
// falling back to a structural search.
var DefaultKeyNames = []string{
	"asset_id", "assetId",
	"asset_ids", "assetIds",
	"id", "_id",
	"file_id", "fileId",
	"upload_id", "uploadId",
	"document_id", "documentId",
}

// Resolver holds the matching heuristics. The zero value uses the defaults.
type Resolver struct {
	KeyNames          []string
	MinFallbackLength int
	MaxDepth          int
}

// NewResolver builds a Resolver, substituting defaults for unset fields.
func NewResolver(keyNames []string, minFallbackLength, maxDepth int) *Resolver {
	r := &Resolver{KeyNames: keyNames, MinFallbackLength: minFallbackLength, MaxDepth: maxDepth}
	return r.withDefaults()
}

func (r *Resolver) withDefaults() *Resolver {
	out := Resolver{}
	if r != nil {
		out = *r
	}
	if len(out.KeyNames) == 0 {
		out.KeyNames = DefaultKeyNames
	}
	if out.MinFallbackLength <= 0 {
		out.MinFallbackLength = DefaultMinFallbackLength
	}
	if out.MaxDepth <= 0 {
		out.MaxDepth = DefaultMaxDepth
	}
	return &out
}

// Resolve returns the asset identifiers found in raw, unique and in the order
// they were first seen. It never fails; no match yields an empty slice.
func (r *Resolver) Resolve(raw jsonvalue.Value) []string {
	cfg := r.withDefaults()
	acc := &collector{seen: map[string]struct{}{}, ids: []string{}}
	cfg.walk(raw, 0, acc)
	return acc.ids
}

type collector struct {
	seen map[string]struct{}
	ids  []string
}

func (c *collector) add(id string) {
	if _, ok := c.seen[id]; ok {
		return
	}
	c.seen[id] = struct{}{}
	c.ids = append(c.ids, id)
}

func (r *Resolver) walk(v jsonvalue.Value, depth int, acc *collector) {
	if depth > r.MaxDepth {
		return
	}
	switch v.Kind() {
	case jsonvalue.KindSequence:
		for _, item := range v.Items() {
			switch item.Kind() {
			case jsonvalue.KindText:
				if s, _ := item.AsText(); len(s) >= r.MinFallbackLength {
					acc.add(s)
				}
			case jsonvalue.KindSequence, jsonvalue.KindMapping:
				r.walk(item, depth+1, acc)
			}
		}
	case jsonvalue.KindMapping:
		if r.matchNamedKeys(v, acc) > 0 {
			return
		}
		for _, m := range v.Members() {
			switch m.Value.Kind() {
			case jsonvalue.KindSequence, jsonvalue.KindMapping:
				r.walk(m.Value, depth+1, acc)
			}
		}
	}
}

// matchNamedKeys reports how many identifiers the named-key pass produced,
// counting ones already collected elsewhere so a duplicate still suppresses
// the structural fallback for this mapping.
func (r *Resolver) matchNamedKeys(v jsonvalue.Value, acc *collector) int {
	found := 0
	for _, key := range r.KeyNames {
		val, ok := v.Get(key)
		if !ok {
			continue
		}
		switch val.Kind() {
		case jsonvalue.KindText:
			if s, _ := val.AsText(); s != "" {
				acc.add(s)
				found++
			}
		case jsonvalue.KindSequence:
			for _, item := range val.Items() {
				if s, ok := item.AsText(); ok && s != "" {
					acc.add(s)
					found++
				}
			}
		}
	}
	return found
}

// Diagnostics describes an upload response for debugging empty resolutions.
type Diagnostics struct {
	Kind          string   `json:"kind"`
	TopLevelKeys  []string `json:"top_level_keys,omitempty"`
	SequenceItems int      `json:"sequence_items,omitempty"`
}

// Diagnose summarises the top level of raw.
func Diagnose(raw jsonvalue.Value) Diagnostics {
	d := Diagnostics{Kind: raw.Kind().String()}
	switch raw.Kind() {
	case jsonvalue.KindMapping:
		d.TopLevelKeys = raw.Keys()
	case jsonvalue.KindSequence:
		d.SequenceItems = raw.Len()
	}
	return d
}

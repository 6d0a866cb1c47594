package builder

import (
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

// Plan is the state carried across the discovery rounds of one top-level
// invocation: which sources were already rebuilt, and which located
// sources are not importable from the active search path. It is never
// persisted.
type Plan struct {
	ID uuid.UUID

	built      map[string]bool
	builtOrder []string
	notOnPath  map[string]string // key → path as located
	requests   [][]string
	passes     int
}

// NewPlan returns an empty plan.
func NewPlan() *Plan {
	return &Plan{
		ID:        uuid.New(),
		built:     make(map[string]bool),
		notOnPath: make(map[string]string),
	}
}

// Built returns the sources rebuilt so far, in request order.
func (p *Plan) Built() []string {
	return append([]string(nil), p.builtOrder...)
}

// IsBuilt reports whether path was already submitted for rebuild.
func (p *Plan) IsBuilt(path string) bool {
	return p.built[pathKey(path)]
}

// NotOnPath returns the located sources, deduplicated by path identity and
// sorted.
func (p *Plan) NotOnPath() []string {
	out := make([]string, 0, len(p.notOnPath))
	for _, path := range p.notOnPath {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Requests returns every rebuild batch submitted under this plan.
func (p *Plan) Requests() [][]string {
	out := make([][]string, len(p.requests))
	for i, r := range p.requests {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// Passes returns the number of discovery passes run under this plan.
func (p *Plan) Passes() int {
	return p.passes
}

func (p *Plan) addNotOnPath(path string) {
	k := pathKey(path)
	if _, ok := p.notOnPath[k]; !ok {
		p.notOnPath[k] = path
	}
}

// pending filters candidates down to those not yet built, removing
// duplicates within the batch.
func (p *Plan) pending(candidates []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range candidates {
		k := pathKey(c)
		if p.built[k] || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

func (p *Plan) markBuilt(batch []string) {
	for _, path := range batch {
		p.built[pathKey(path)] = true
		p.builtOrder = append(p.builtOrder, path)
	}
	p.requests = append(p.requests, append([]string(nil), batch...))
}

// pathKey identifies a file by its cleaned absolute path.
func pathKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

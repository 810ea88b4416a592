package store

import (
	"sort"

	"github.com/ehr/chartcore/internal/platform/fhir"
)

// Graph is typed, keyed storage for resource collections: one bucket per
// recognized kind, keyed by resource id. The bucket mapping is exhaustive
// over fhir.AllKinds, so an unrecognized kind is unrepresentable here; that
// check lives at the resourceType string boundary (fhir.KindFromType).
type Graph struct {
	buckets map[fhir.Kind]map[string]*fhir.Resource
}

func NewGraph() *Graph {
	buckets := make(map[fhir.Kind]map[string]*fhir.Resource, len(fhir.AllKinds))
	for _, k := range fhir.AllKinds {
		buckets[k] = make(map[string]*fhir.Resource)
	}
	return &Graph{buckets: buckets}
}

func (g *Graph) Get(kind fhir.Kind, id string) (*fhir.Resource, bool) {
	r, ok := g.buckets[kind][id]
	return r, ok
}

// Put stores the resource in its kind bucket, overwriting unconditionally.
// Last write wins; no version-conflict detection.
func (g *Graph) Put(r *fhir.Resource) {
	g.buckets[r.Kind][r.ID] = r
}

func (g *Graph) Remove(kind fhir.Kind, id string) {
	delete(g.buckets[kind], id)
}

func (g *Graph) Len() int {
	n := 0
	for _, b := range g.buckets {
		n += len(b)
	}
	return n
}

func (g *Graph) Empty() bool {
	return g.Len() == 0
}

// All returns the kind's resources sorted by id.
func (g *Graph) All(kind fhir.Kind) []*fhir.Resource {
	bucket := g.buckets[kind]
	out := make([]*fhir.Resource, 0, len(bucket))
	for _, r := range bucket {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Each calls fn for every stored resource.
func (g *Graph) Each(fn func(*fhir.Resource)) {
	for _, k := range fhir.AllKinds {
		for _, r := range g.buckets[k] {
			fn(r)
		}
	}
}

// Clone copies the bucket maps. Resource pointers are shared; resources are
// treated as immutable once stored (mutators always store fresh clones).
func (g *Graph) Clone() *Graph {
	out := NewGraph()
	for k, bucket := range g.buckets {
		for id, r := range bucket {
			out.buckets[k][id] = r
		}
	}
	return out
}

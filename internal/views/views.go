// Package views computes derived clinical views from a consistent working
// view of the chart: topic aggregation, timeline grouping and the
// observation-by-code index. Builders are pure and re-entrant; they are
// recomputed on demand, never incrementally maintained.
package views

import (
	"github.com/ehr/chartcore/internal/platform/fhir"
)

// ChartView is the read surface the builders consume. A store snapshot
// satisfies it.
type ChartView interface {
	Resource(kind fhir.Kind, id string) (*fhir.Resource, bool)
	Resources(kind fhir.Kind) []*fhir.Resource
}

// ObservationsByCode indexes the working view's observations by their
// primary code, keyed "system|code". Observations without a code are left
// out.
func ObservationsByCode(view ChartView) map[string][]*fhir.Resource {
	idx := make(map[string][]*fhir.Resource)
	for _, o := range view.Resources(fhir.KindObservation) {
		system, code, _ := fhir.FirstCoding(fhir.MapAt(o.Body, "code"))
		if code == "" {
			continue
		}
		key := system + "|" + code
		idx[key] = append(idx[key], o)
	}
	return idx
}

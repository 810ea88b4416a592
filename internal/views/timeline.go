package views

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/chartcore/internal/platform/fhir"
)

// Timeline item kinds; also the group names accepted by the visibility
// toggle.
const (
	ItemObservation        = "observation"
	ItemObservationCluster = "observation-cluster"
	ItemNote               = "note"
	ItemMedicationGroup    = "medication-group"
)

// TimelineItem is a display unit carrying a sortable timestamp string.
// Items are recomputed per render pass and never persisted.
type TimelineItem struct {
	Kind      string
	Title     string
	Timestamp string
	Resources []*fhir.Resource
}

// TimelineGroup is one calendar date's worth of items, keyed YYYYMMDD.
type TimelineGroup struct {
	Date  string
	Items []TimelineItem
}

// TimelineOptions filter the computed timeline. Filter is a free-text
// predicate re-scanned on every recompute; Hidden suppresses whole item
// kinds.
type TimelineOptions struct {
	Filter string
	Hidden map[string]bool
}

// BuildTimeline derives the timeline items of the working view, sorted
// newest-first, with the options applied. Items whose source resources
// carry no usable timestamp are logged and dropped.
func BuildTimeline(view ChartView, opts TimelineOptions, log zerolog.Logger) []TimelineItem {
	var items []TimelineItem
	items = append(items, observationItems(view)...)
	items = append(items, noteItems(view)...)
	items = append(items, medicationItems(view)...)

	kept := items[:0]
	for _, it := range items {
		if it.Timestamp == "" {
			log.Warn().Str("kind", it.Kind).Str("title", it.Title).Msg("timeline item without timestamp, dropping")
			continue
		}
		if opts.Hidden[it.Kind] {
			continue
		}
		if !matchesFilter(it, opts.Filter) {
			continue
		}
		kept = append(kept, it)
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Timestamp > kept[j].Timestamp })
	return kept
}

// GroupByDate groups items by calendar date, preserving the order of
// first-seen distinct dates. Within a group, items keep the order the
// caller imposed.
func GroupByDate(items []TimelineItem) []TimelineGroup {
	var groups []TimelineGroup
	index := make(map[string]int)
	for _, it := range items {
		key := DateKey(it.Timestamp)
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, TimelineGroup{Date: key})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}

// DateKey reduces a timestamp string to its YYYYMMDD date key. The key is
// taken from the literal date part of the string, independent of any
// time-zone display conversion. Empty when the input has no usable date.
func DateKey(ts string) string {
	if i := strings.IndexByte(ts, 'T'); i >= 0 {
		ts = ts[:i]
	}
	key := strings.ReplaceAll(ts, "-", "")
	if len(key) < 8 {
		return ""
	}
	for _, c := range key[:8] {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return key[:8]
}

func observationItems(view ChartView) []TimelineItem {
	byCode := make(map[string][]*fhir.Resource)
	var keys []string
	for _, o := range view.Resources(fhir.KindObservation) {
		system, code, _ := fhir.FirstCoding(fhir.MapAt(o.Body, "code"))
		key := system + "|" + code
		if _, ok := byCode[key]; !ok {
			keys = append(keys, key)
		}
		byCode[key] = append(byCode[key], o)
	}

	var items []TimelineItem
	for _, key := range keys {
		obs := byCode[key]
		title := fhir.ConceptText(fhir.MapAt(obs[0].Body, "code"))
		if len(obs) == 1 {
			items = append(items, TimelineItem{
				Kind:      ItemObservation,
				Title:     title,
				Timestamp: observationTime(obs[0]),
				Resources: obs,
			})
			continue
		}
		sort.SliceStable(obs, func(i, j int) bool {
			return observationTime(obs[i]) > observationTime(obs[j])
		})
		items = append(items, TimelineItem{
			Kind:      ItemObservationCluster,
			Title:     title,
			Timestamp: observationTime(obs[0]),
			Resources: obs,
		})
	}
	return items
}

func noteItems(view ChartView) []TimelineItem {
	var items []TimelineItem
	for _, comp := range view.Resources(fhir.KindComposition) {
		items = append(items, TimelineItem{
			Kind:      ItemNote,
			Title:     fhir.StrAt(comp.Body, "title"),
			Timestamp: fhir.StrAt(comp.Body, "date"),
			Resources: []*fhir.Resource{comp},
		})
	}
	return items
}

// medicationItems groups administrations by the prescription they fulfil
// (falling back to the medication reference, then the administration's own
// id) into one timeline item per group.
func medicationItems(view ChartView) []TimelineItem {
	byGroup := make(map[string][]*fhir.Resource)
	var keys []string
	for _, adm := range view.Resources(fhir.KindMedicationAdministration) {
		key := fhir.StrAt(fhir.MapAt(adm.Body, "request"), "reference")
		if key == "" {
			key = fhir.StrAt(fhir.MapAt(adm.Body, "medicationReference"), "reference")
		}
		if key == "" {
			key = adm.Ref()
		}
		if _, ok := byGroup[key]; !ok {
			keys = append(keys, key)
		}
		byGroup[key] = append(byGroup[key], adm)
	}

	var items []TimelineItem
	for _, key := range keys {
		adms := byGroup[key]
		sort.SliceStable(adms, func(i, j int) bool {
			return administrationTime(adms[i]) > administrationTime(adms[j])
		})
		title := fhir.ConceptText(fhir.MapAt(adms[0].Body, "medicationCodeableConcept"))
		if title == "" {
			title = fhir.StrAt(fhir.MapAt(adms[0].Body, "medicationReference"), "display")
		}
		items = append(items, TimelineItem{
			Kind:      ItemMedicationGroup,
			Title:     title,
			Timestamp: administrationTime(adms[0]),
			Resources: adms,
		})
	}
	return items
}

func observationTime(o *fhir.Resource) string {
	if ts := fhir.StrAt(o.Body, "effectiveDateTime"); ts != "" {
		return ts
	}
	return fhir.StrAt(o.Body, "issued")
}

func administrationTime(a *fhir.Resource) string {
	if ts := fhir.StrAt(a.Body, "effectiveDateTime"); ts != "" {
		return ts
	}
	return fhir.StrAt(fhir.MapAt(a.Body, "effectivePeriod"), "start")
}

func matchesFilter(it TimelineItem, filter string) bool {
	if filter == "" {
		return true
	}
	q := strings.ToLower(filter)
	if strings.Contains(strings.ToLower(it.Title), q) {
		return true
	}
	for _, r := range it.Resources {
		if strings.Contains(strings.ToLower(fhir.ConceptText(fhir.MapAt(r.Body, "code"))), q) {
			return true
		}
		if strings.Contains(strings.ToLower(fhir.StrAt(r.Body, "valueString")), q) {
			return true
		}
	}
	return false
}

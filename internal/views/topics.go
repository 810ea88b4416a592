package views

import (
	"github.com/rs/zerolog"

	"github.com/ehr/chartcore/internal/platform/fhir"
	"github.com/ehr/chartcore/pkg/fhirmodels"
)

// TopicStatus is the derived active/inactive state of a topic.
type TopicStatus string

const (
	TopicActive   TopicStatus = "active"
	TopicInactive TopicStatus = "inactive"
	TopicUnknown  TopicStatus = "unknown"
)

// Topic groups a composition with the clinical resources referenced from
// its body. Topics own no identity beyond the composition's id; they are
// recomputed from the working view on every load.
type Topic struct {
	Composition   *fhir.Resource
	Conditions    []*fhir.Resource
	Encounter     *fhir.Resource
	Prescriptions []*fhir.Resource
	Tasks         []*fhir.Resource
	Status        TopicStatus
	Title         string
}

// LoadTopics aggregates every topic-tagged composition in the view. A
// reference that fails to resolve is logged and dropped from the member
// list; it never aborts the computation.
func LoadTopics(view ChartView, log zerolog.Logger) []Topic {
	var topics []Topic
	for _, comp := range view.Resources(fhir.KindComposition) {
		if !IsTopicComposition(comp) {
			continue
		}
		topics = append(topics, loadTopic(view, comp, log))
	}
	return topics
}

// IsTopicComposition reports whether the composition carries the chart
// topic category.
func IsTopicComposition(comp *fhir.Resource) bool {
	return fhir.HasCoding(fhir.SliceAt(comp.Body, "category"), fhirmodels.SystemChartCategory, fhirmodels.ChartCategoryTopic)
}

func loadTopic(view ChartView, comp *fhir.Resource, log zerolog.Logger) Topic {
	t := Topic{
		Composition: comp,
		Title:       fhir.StrAt(comp.Body, "title"),
	}

	if ref := fhir.StrAt(fhir.MapAt(comp.Body, "encounter"), "reference"); ref != "" {
		if enc := resolve(view, comp, ref, log); enc != nil && enc.Kind == fhir.KindEncounter {
			t.Encounter = enc
		}
	}

	for _, ref := range sectionEntryRefs(comp) {
		member := resolve(view, comp, ref, log)
		if member == nil {
			continue
		}
		switch member.Kind {
		case fhir.KindCondition:
			t.Conditions = append(t.Conditions, member)
		case fhir.KindEncounter:
			if t.Encounter == nil {
				t.Encounter = member
			}
		case fhir.KindMedicationRequest:
			t.Prescriptions = append(t.Prescriptions, member)
		case fhir.KindTask:
			t.Tasks = append(t.Tasks, member)
		}
	}

	t.Status = topicStatus(t, log)
	return t
}

func resolve(view ChartView, comp *fhir.Resource, ref string, log zerolog.Logger) *fhir.Resource {
	p := fhir.ParseRef(ref)
	if p == nil {
		log.Warn().Str("composition", comp.ID).Str("reference", ref).Msg("unparseable topic reference, dropping")
		return nil
	}
	r, ok := view.Resource(p.Kind(), p.ID)
	if !ok {
		log.Warn().Str("composition", comp.ID).Str("reference", ref).Msg("topic reference does not resolve, dropping")
		return nil
	}
	return r
}

// sectionEntryRefs collects the reference strings of every section entry.
func sectionEntryRefs(comp *fhir.Resource) []string {
	var refs []string
	for _, s := range fhir.SliceAt(comp.Body, "section") {
		section, ok := s.(map[string]any)
		if !ok {
			continue
		}
		for _, e := range fhir.SliceAt(section, "entry") {
			entry, ok := e.(map[string]any)
			if !ok {
				continue
			}
			if ref := fhir.StrAt(entry, "reference"); ref != "" {
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

// topicStatus derives active/inactive from the linked encounter's status if
// present, else from a chart-category coding on the composition itself.
// When neither yields a recognized status the topic is reported unknown,
// never defaulted.
func topicStatus(t Topic, log zerolog.Logger) TopicStatus {
	if t.Encounter != nil {
		switch fhir.StrAt(t.Encounter.Body, "status") {
		case fhirmodels.EncounterStatusPlanned,
			fhirmodels.EncounterStatusArrived,
			fhirmodels.EncounterStatusTriaged,
			fhirmodels.EncounterStatusInProgress,
			fhirmodels.EncounterStatusOnLeave:
			return TopicActive
		case fhirmodels.EncounterStatusFinished,
			fhirmodels.EncounterStatusCancelled,
			fhirmodels.EncounterStatusEnteredInError:
			return TopicInactive
		}
	}

	categories := fhir.SliceAt(t.Composition.Body, "category")
	if fhir.HasCoding(categories, fhirmodels.SystemChartCategory, fhirmodels.ChartCategoryActive) {
		return TopicActive
	}
	if fhir.HasCoding(categories, fhirmodels.SystemChartCategory, fhirmodels.ChartCategoryInactive) {
		return TopicInactive
	}

	log.Warn().Str("composition", t.Composition.ID).Msg("topic has no recognizable status")
	return TopicUnknown
}

// SynthesizeStandaloneTopics wraps every condition and encounter that no
// existing topic references in a fresh auto-generated topic composition.
// The caller inserts the results into the working view via
// AddAutoGenerated so they appear in the UI without counting as user edits.
func SynthesizeStandaloneTopics(view ChartView) []*fhir.Resource {
	referenced := make(map[string]bool)
	for _, comp := range view.Resources(fhir.KindComposition) {
		if !IsTopicComposition(comp) {
			continue
		}
		for _, ref := range sectionEntryRefs(comp) {
			referenced[ref] = true
		}
		if ref := fhir.StrAt(fhir.MapAt(comp.Body, "encounter"), "reference"); ref != "" {
			referenced[ref] = true
		}
	}

	var created []*fhir.Resource
	for _, cond := range view.Resources(fhir.KindCondition) {
		if referenced[cond.Ref()] {
			continue
		}
		title := fhir.ConceptText(fhir.MapAt(cond.Body, "code"))
		if title == "" {
			title = "Untitled problem"
		}
		created = append(created, newTopicComposition(title, cond.Ref()))
	}
	for _, enc := range view.Resources(fhir.KindEncounter) {
		if referenced[enc.Ref()] {
			continue
		}
		title := ""
		if types := fhir.SliceAt(enc.Body, "type"); len(types) > 0 {
			if t, ok := types[0].(map[string]any); ok {
				title = fhir.ConceptText(t)
			}
		}
		if title == "" {
			title = "Untitled encounter"
		}
		created = append(created, newTopicComposition(title, enc.Ref()))
	}
	return created
}

func newTopicComposition(title, memberRef string) *fhir.Resource {
	body := map[string]any{
		"resourceType": fhir.KindComposition.Type(),
		"status":       fhirmodels.CompositionStatusPreliminary,
		"title":        title,
		"category": []any{
			map[string]any{
				"coding": []any{
					map[string]any{
						"system": fhirmodels.SystemChartCategory,
						"code":   fhirmodels.ChartCategoryTopic,
					},
				},
			},
		},
		"section": []any{
			map[string]any{
				"entry": []any{
					map[string]any{"reference": memberRef},
				},
			},
		},
	}
	return &fhir.Resource{
		Kind: fhir.KindComposition,
		ID:   fhir.NewTempID(),
		Body: body,
	}
}

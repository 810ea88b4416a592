package views

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/chartcore/internal/platform/fhir"
	"github.com/ehr/chartcore/pkg/fhirmodels"
)

func topicComp(id, title string, refs ...string) map[string]any {
	entries := make([]any, len(refs))
	for i, ref := range refs {
		entries[i] = map[string]any{"reference": ref}
	}
	return map[string]any{
		"resourceType": "Composition",
		"id":           id,
		"title":        title,
		"category": []any{
			map[string]any{"coding": []any{
				map[string]any{
					"system": fhirmodels.SystemChartCategory,
					"code":   fhirmodels.ChartCategoryTopic,
				},
			}},
		},
		"section": []any{
			map[string]any{"entry": entries},
		},
	}
}

func TestLoadTopicsAggregatesMembers(t *testing.T) {
	view := newFakeView(t,
		topicComp("comp-1", "Diabetes follow-up",
			"Condition/cond-1", "Encounter/enc-1", "MedicationRequest/rx-1", "Task/task-1"),
		map[string]any{
			"resourceType": "Condition",
			"id":           "cond-1",
			"code":         map[string]any{"text": "Type 2 diabetes"},
		},
		map[string]any{"resourceType": "Encounter", "id": "enc-1", "status": "in-progress"},
		map[string]any{"resourceType": "MedicationRequest", "id": "rx-1"},
		map[string]any{"resourceType": "Task", "id": "task-1"},
		// Plain composition, not topic-tagged: must be skipped.
		map[string]any{"resourceType": "Composition", "id": "note-1", "title": "Ward round"},
	)

	topics := LoadTopics(view, zerolog.Nop())
	if len(topics) != 1 {
		t.Fatalf("got %d topics, want 1", len(topics))
	}
	topic := topics[0]
	if topic.Title != "Diabetes follow-up" {
		t.Fatalf("title = %q", topic.Title)
	}
	if len(topic.Conditions) != 1 || topic.Conditions[0].ID != "cond-1" {
		t.Fatalf("conditions = %v", topic.Conditions)
	}
	if topic.Encounter == nil || topic.Encounter.ID != "enc-1" {
		t.Fatalf("encounter = %v", topic.Encounter)
	}
	if len(topic.Prescriptions) != 1 || len(topic.Tasks) != 1 {
		t.Fatalf("prescriptions = %v, tasks = %v", topic.Prescriptions, topic.Tasks)
	}
	if topic.Status != TopicActive {
		t.Fatalf("status = %s, want active from in-progress encounter", topic.Status)
	}
}

func TestUnresolvedReferencesDroppedNotFatal(t *testing.T) {
	view := newFakeView(t,
		topicComp("comp-1", "Sparse topic",
			"Condition/missing", "garbage-ref", "Condition/cond-1"),
		map[string]any{
			"resourceType": "Condition",
			"id":           "cond-1",
			"code":         map[string]any{"text": "Hypertension"},
		},
	)
	topics := LoadTopics(view, zerolog.Nop())
	if len(topics) != 1 {
		t.Fatalf("got %d topics, want 1", len(topics))
	}
	if len(topics[0].Conditions) != 1 || topics[0].Conditions[0].ID != "cond-1" {
		t.Fatalf("conditions = %v, want only the resolvable one", topics[0].Conditions)
	}
}

func TestTopicStatusDerivation(t *testing.T) {
	finished := topicComp("comp-1", "Closed", "Encounter/enc-1")
	withCategory := topicComp("comp-2", "Tagged inactive")
	cats := withCategory["category"].([]any)
	withCategory["category"] = append(cats, map[string]any{"coding": []any{
		map[string]any{
			"system": fhirmodels.SystemChartCategory,
			"code":   fhirmodels.ChartCategoryInactive,
		},
	}})
	bare := topicComp("comp-3", "No signal")

	view := newFakeView(t,
		finished, withCategory, bare,
		map[string]any{"resourceType": "Encounter", "id": "enc-1", "status": "finished"},
	)
	topics := LoadTopics(view, zerolog.Nop())
	if len(topics) != 3 {
		t.Fatalf("got %d topics", len(topics))
	}
	byID := make(map[string]Topic)
	for _, tp := range topics {
		byID[tp.Composition.ID] = tp
	}
	if byID["comp-1"].Status != TopicInactive {
		t.Errorf("finished encounter status = %s, want inactive", byID["comp-1"].Status)
	}
	if byID["comp-2"].Status != TopicInactive {
		t.Errorf("category status = %s, want inactive", byID["comp-2"].Status)
	}
	if byID["comp-3"].Status != TopicUnknown {
		t.Errorf("bare status = %s, want unknown, never defaulted", byID["comp-3"].Status)
	}
}

func TestEncounterFieldTakesPrecedence(t *testing.T) {
	comp := topicComp("comp-1", "Two encounters", "Encounter/enc-2")
	comp["encounter"] = map[string]any{"reference": "Encounter/enc-1"}
	view := newFakeView(t,
		comp,
		map[string]any{"resourceType": "Encounter", "id": "enc-1", "status": "in-progress"},
		map[string]any{"resourceType": "Encounter", "id": "enc-2", "status": "finished"},
	)
	topics := LoadTopics(view, zerolog.Nop())
	if topics[0].Encounter == nil || topics[0].Encounter.ID != "enc-1" {
		t.Fatalf("encounter = %v, want the encounter field's target", topics[0].Encounter)
	}
}

func TestSynthesizeStandaloneTopics(t *testing.T) {
	view := newFakeView(t,
		topicComp("comp-1", "Diabetes follow-up", "Condition/cond-1"),
		map[string]any{
			"resourceType": "Condition",
			"id":           "cond-1",
			"code":         map[string]any{"text": "Type 2 diabetes"},
		},
		map[string]any{
			"resourceType": "Condition",
			"id":           "cond-2",
			"code":         map[string]any{"text": "Hypertension"},
		},
		map[string]any{"resourceType": "Condition", "id": "cond-3"},
		map[string]any{
			"resourceType": "Encounter",
			"id":           "enc-1",
			"status":       "in-progress",
			"type": []any{
				map[string]any{"text": "Annual physical"},
			},
		},
	)

	created := SynthesizeStandaloneTopics(view)
	if len(created) != 3 {
		t.Fatalf("synthesized %d topics, want 3 (cond-2, cond-3, enc-1)", len(created))
	}
	titles := make(map[string]bool)
	for _, c := range created {
		if c.Kind != fhir.KindComposition || !c.IsTemp() {
			t.Fatalf("synthesized resource = %+v, want temp composition", c)
		}
		if !IsTopicComposition(c) {
			t.Fatal("synthesized composition not topic-tagged")
		}
		titles[fhir.StrAt(c.Body, "title")] = true
	}
	for _, want := range []string{"Hypertension", "Untitled problem", "Annual physical"} {
		if !titles[want] {
			t.Fatalf("missing synthesized title %q in %v", want, titles)
		}
	}
}

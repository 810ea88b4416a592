package views

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestBuildTimelineOrdering(t *testing.T) {
	view := newFakeView(t,
		obsBody("o1", "4548-4", "2024-01-02T10:00:00Z"),
		obsBody("o2", "718-7", "2024-01-02T09:00:00Z"),
		obsBody("o3", "2345-7", "2024-01-03T08:00:00Z"),
	)
	items := BuildTimeline(view, TimelineOptions{}, zerolog.Nop())
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	want := []string{"2024-01-03T08:00:00Z", "2024-01-02T10:00:00Z", "2024-01-02T09:00:00Z"}
	for i, ts := range want {
		if items[i].Timestamp != ts {
			t.Fatalf("item %d timestamp = %s, want %s", i, items[i].Timestamp, ts)
		}
	}

	groups := GroupByDate(items)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].Date != "20240103" || groups[1].Date != "20240102" {
		t.Fatalf("group order = %s, %s", groups[0].Date, groups[1].Date)
	}
	day2 := groups[1].Items
	if len(day2) != 2 || day2[0].Timestamp < day2[1].Timestamp {
		t.Fatalf("intra-group order broken: %v", day2)
	}
}

func TestSameCodeObservationsCluster(t *testing.T) {
	view := newFakeView(t,
		obsBody("o1", "4548-4", "2023-10-15T09:30:00Z"),
		obsBody("o2", "4548-4", "2024-01-02T10:00:00Z"),
		obsBody("o3", "718-7", "2024-01-03T08:00:00Z"),
	)
	items := BuildTimeline(view, TimelineOptions{}, zerolog.Nop())
	if len(items) != 2 {
		t.Fatalf("got %d items, want cluster + single", len(items))
	}
	var cluster *TimelineItem
	for i := range items {
		if items[i].Kind == ItemObservationCluster {
			cluster = &items[i]
		}
	}
	if cluster == nil {
		t.Fatal("no cluster item produced")
	}
	if len(cluster.Resources) != 2 {
		t.Fatalf("cluster holds %d resources, want 2", len(cluster.Resources))
	}
	// Newest member first, and the cluster sorts by it.
	if cluster.Resources[0].ID != "o2" {
		t.Fatalf("cluster head = %s, want newest", cluster.Resources[0].ID)
	}
	if cluster.Timestamp != "2024-01-02T10:00:00Z" {
		t.Fatalf("cluster timestamp = %s", cluster.Timestamp)
	}
}

func TestTimestamplessItemsDropped(t *testing.T) {
	view := newFakeView(t,
		obsBody("o1", "4548-4", "2024-01-02T10:00:00Z"),
		map[string]any{
			"resourceType": "Observation",
			"id":           "o2",
			"code": map[string]any{"coding": []any{
				map[string]any{"system": "http://loinc.org", "code": "718-7"},
			}},
		},
	)
	items := BuildTimeline(view, TimelineOptions{}, zerolog.Nop())
	if len(items) != 1 {
		t.Fatalf("got %d items, want timestampless one dropped", len(items))
	}
}

func TestTimelineVisibilityAndFilter(t *testing.T) {
	view := newFakeView(t,
		obsBody("o1", "4548-4", "2024-01-02T10:00:00Z"),
		map[string]any{
			"resourceType": "Composition",
			"id":           "n1",
			"title":        "Ward round note",
			"date":         "2024-01-02T12:00:00Z",
		},
	)

	hidden := BuildTimeline(view, TimelineOptions{Hidden: map[string]bool{ItemNote: true}}, zerolog.Nop())
	for _, it := range hidden {
		if it.Kind == ItemNote {
			t.Fatal("hidden kind still present")
		}
	}

	filtered := BuildTimeline(view, TimelineOptions{Filter: "hemoglobin"}, zerolog.Nop())
	if len(filtered) != 1 || filtered[0].Kind != ItemObservation {
		t.Fatalf("filtered = %v", filtered)
	}
	if got := BuildTimeline(view, TimelineOptions{Filter: "no such term"}, zerolog.Nop()); len(got) != 0 {
		t.Fatalf("filter matched %d items, want 0", len(got))
	}
}

func TestMedicationAdministrationsGroupByPrescription(t *testing.T) {
	adm := func(id, request, ts string) map[string]any {
		body := map[string]any{
			"resourceType": "MedicationAdministration",
			"id":           id,
			"medicationCodeableConcept": map[string]any{
				"text": "Metformin 500mg",
			},
			"effectiveDateTime": ts,
		}
		if request != "" {
			body["request"] = map[string]any{"reference": request}
		}
		return body
	}
	view := newFakeView(t,
		adm("a1", "MedicationRequest/rx-1", "2024-01-02T08:00:00Z"),
		adm("a2", "MedicationRequest/rx-1", "2024-01-02T20:00:00Z"),
		adm("a3", "", "2024-01-03T08:00:00Z"),
	)
	items := BuildTimeline(view, TimelineOptions{}, zerolog.Nop())
	if len(items) != 2 {
		t.Fatalf("got %d items, want one group per prescription", len(items))
	}
	var group *TimelineItem
	for i := range items {
		if len(items[i].Resources) == 2 {
			group = &items[i]
		}
	}
	if group == nil {
		t.Fatal("administrations of the same prescription not grouped")
	}
	if group.Title != "Metformin 500mg" {
		t.Fatalf("group title = %q", group.Title)
	}
	if group.Timestamp != "2024-01-02T20:00:00Z" {
		t.Fatalf("group timestamp = %s, want latest administration", group.Timestamp)
	}
}

func TestDateKey(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"2024-01-02T10:00:00Z", "20240102"},
		{"2024-01-02", "20240102"},
		{"2024-01", ""},
		{"", ""},
		{"not a date", ""},
	}
	for _, c := range cases {
		if got := DateKey(c.in); got != c.want {
			t.Errorf("DateKey(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

package stubserver

import (
	"github.com/ehr/chartcore/internal/platform/fhir"
	"github.com/ehr/chartcore/pkg/fhirmodels"
)

// SeedSampleChart loads a small demo chart for one patient: a couple of
// conditions, an encounter, observations, a topic composition and an
// unread tracking list. Returns the patient id.
func (s *Server) SeedSampleChart() string {
	const patientID = "pat-1"
	subject := map[string]any{"reference": "Patient/" + patientID}

	s.seedBody(map[string]any{
		"resourceType": "Patient",
		"id":           patientID,
		"name": []any{
			map[string]any{"family": "Norgaard", "given": []any{"Erik"}},
		},
		"birthDate": "1962-04-19",
	})
	s.seedBody(map[string]any{
		"resourceType":   "Condition",
		"id":             "cond-1",
		"subject":        subject,
		"code":           concept("http://snomed.info/sct", "44054006", "Type 2 diabetes"),
		"clinicalStatus": concept("http://terminology.hl7.org/CodeSystem/condition-clinical", fhirmodels.ConditionActive, "Active"),
		"recordedDate":   "2024-01-02",
	})
	s.seedBody(map[string]any{
		"resourceType": "Condition",
		"id":           "cond-2",
		"subject":      subject,
		"code":         concept("http://snomed.info/sct", "38341003", "Hypertension"),
		"recordedDate": "2023-11-20",
	})
	s.seedBody(map[string]any{
		"resourceType": "Encounter",
		"id":           "enc-1",
		"subject":      subject,
		"status":       fhirmodels.EncounterStatusInProgress,
		"period":       map[string]any{"start": "2024-01-02T09:00:00Z"},
	})
	s.seedBody(map[string]any{
		"resourceType":      "Observation",
		"id":                "obs-1",
		"subject":           subject,
		"code":              concept("http://loinc.org", "4548-4", "Hemoglobin A1c"),
		"valueQuantity":     map[string]any{"value": 7.2, "unit": "%"},
		"effectiveDateTime": "2024-01-02T10:00:00Z",
	})
	s.seedBody(map[string]any{
		"resourceType":      "Observation",
		"id":                "obs-2",
		"subject":           subject,
		"code":              concept("http://loinc.org", "4548-4", "Hemoglobin A1c"),
		"valueQuantity":     map[string]any{"value": 7.8, "unit": "%"},
		"effectiveDateTime": "2023-10-15T09:30:00Z",
	})
	s.seedBody(map[string]any{
		"resourceType": "Composition",
		"id":           "comp-1",
		"subject":      subject,
		"status":       fhirmodels.CompositionStatusFinal,
		"title":        "Diabetes follow-up",
		"date":         "2024-01-02T11:00:00Z",
		"category": []any{
			concept(fhirmodels.SystemChartCategory, fhirmodels.ChartCategoryTopic, "Chart topic"),
		},
		"encounter": map[string]any{"reference": "Encounter/enc-1"},
		"section": []any{
			map[string]any{
				"entry": []any{
					map[string]any{"reference": "Condition/cond-1"},
				},
			},
		},
	})
	s.seedBody(map[string]any{
		"resourceType": "List",
		"id":           "unread",
		"status":       fhirmodels.ListStatusCurrent,
		"mode":         fhirmodels.ListModeWorking,
		"subject":      subject,
		"entry": []any{
			map[string]any{"item": map[string]any{"reference": "Composition/comp-1"}},
		},
	})
	return patientID
}

func (s *Server) seedBody(body map[string]any) {
	r, err := fhir.ParseResource(body)
	if err != nil {
		panic(err) // seed data is static; a bad entry is a programming error
	}
	s.Seed(r)
}

func concept(system, code, display string) map[string]any {
	return map[string]any{
		"coding": []any{
			map[string]any{"system": system, "code": code, "display": display},
		},
		"text": display,
	}
}

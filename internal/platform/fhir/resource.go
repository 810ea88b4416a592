package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownKind is returned when a resource type string is not one of the
// kinds this layer stores. Hitting it indicates a programming or
// configuration mistake, not a runtime condition to recover from.
var ErrUnknownKind = errors.New("unknown resource kind")

// Kind identifies one of the clinical resource types held in the chart.
type Kind int

const (
	KindPatient Kind = iota
	KindCondition
	KindEncounter
	KindComposition
	KindObservation
	KindDiagnosticReport
	KindList
	KindMedicationRequest
	KindMedicationAdministration
	KindServiceRequest
	KindTask
	kindCount
)

var kindTypes = [kindCount]string{
	KindPatient:                  "Patient",
	KindCondition:                "Condition",
	KindEncounter:                "Encounter",
	KindComposition:              "Composition",
	KindObservation:              "Observation",
	KindDiagnosticReport:         "DiagnosticReport",
	KindList:                     "List",
	KindMedicationRequest:        "MedicationRequest",
	KindMedicationAdministration: "MedicationAdministration",
	KindServiceRequest:           "ServiceRequest",
	KindTask:                     "Task",
}

var typeKinds = func() map[string]Kind {
	m := make(map[string]Kind, kindCount)
	for k, t := range kindTypes {
		m[t] = Kind(k)
	}
	return m
}()

// AllKinds lists every recognized kind, in declaration order.
var AllKinds = func() []Kind {
	ks := make([]Kind, kindCount)
	for i := range ks {
		ks[i] = Kind(i)
	}
	return ks
}()

// Type returns the FHIR resourceType string for the kind.
func (k Kind) Type() string {
	if k < 0 || k >= kindCount {
		return ""
	}
	return kindTypes[k]
}

// KindFromType maps a resourceType string to its Kind. The second return
// is false for anything outside the recognized set.
func KindFromType(resourceType string) (Kind, bool) {
	k, ok := typeKinds[resourceType]
	return k, ok
}

// Resource wraps one clinical resource: a stable (Kind, ID) identity, the
// server revision marker, and the full payload as a generic JSON map.
// Newly created resources carry a temporary urn:uuid id until the server
// assigns a permanent one on first save.
type Resource struct {
	Kind      Kind
	ID        string
	VersionID string
	Body      map[string]any
}

// ParseResource builds a Resource from a decoded payload map. It extracts
// resourceType, id and meta.versionId; an unrecognized resourceType yields
// ErrUnknownKind.
func ParseResource(body map[string]any) (*Resource, error) {
	rt := StrAt(body, "resourceType")
	kind, ok := KindFromType(rt)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, rt)
	}
	r := &Resource{
		Kind: kind,
		ID:   StrAt(body, "id"),
		Body: body,
	}
	if meta := MapAt(body, "meta"); meta != nil {
		r.VersionID = StrAt(meta, "versionId")
	}
	return r, nil
}

// DecodeResource parses raw resource JSON.
func DecodeResource(raw json.RawMessage) (*Resource, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	return ParseResource(body)
}

// Ref returns the resource's reference string: "Type/id" for persisted
// resources, or the temporary urn marker for unsaved ones.
func (r *Resource) Ref() string {
	if r.IsTemp() {
		return r.ID
	}
	return FormatReference(r.Kind.Type(), r.ID)
}

// IsTemp reports whether the resource still carries a client-generated
// temporary id.
func (r *Resource) IsTemp() bool {
	return IsTempID(r.ID)
}

// Clone deep-copies the resource via a JSON round trip of its body.
func (r *Resource) Clone() *Resource {
	out := &Resource{Kind: r.Kind, ID: r.ID, VersionID: r.VersionID}
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err == nil {
			var body map[string]any
			if json.Unmarshal(data, &body) == nil {
				out.Body = body
			}
		}
	}
	if out.Body == nil {
		out.Body = map[string]any{}
	}
	return out
}

// MarshalBody renders the payload with resourceType, id and meta.versionId
// synchronized with the wrapper fields.
func (r *Resource) MarshalBody() json.RawMessage {
	body := map[string]any{}
	for k, v := range r.Body {
		body[k] = v
	}
	body["resourceType"] = r.Kind.Type()
	if r.ID != "" && !r.IsTemp() {
		body["id"] = r.ID
	} else {
		delete(body, "id")
	}
	if r.VersionID != "" {
		meta := map[string]any{}
		if m := MapAt(body, "meta"); m != nil {
			for k, v := range m {
				meta[k] = v
			}
		}
		meta["versionId"] = r.VersionID
		body["meta"] = meta
	}
	data, _ := json.Marshal(body)
	return data
}

// StrAt returns m[key] as a string, or "" when absent or not a string.
func StrAt(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// MapAt returns m[key] as a map, or nil when absent or not a map.
func MapAt(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]any)
	return v
}

// SliceAt returns m[key] as a slice, or nil when absent or not a slice.
func SliceAt(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	v, _ := m[key].([]any)
	return v
}

// FirstCoding returns system, code and display of the first coding in a
// CodeableConcept map.
func FirstCoding(concept map[string]any) (system, code, display string) {
	for _, c := range SliceAt(concept, "coding") {
		coding, ok := c.(map[string]any)
		if !ok {
			continue
		}
		return StrAt(coding, "system"), StrAt(coding, "code"), StrAt(coding, "display")
	}
	return "", "", ""
}

// ConceptText returns the display text of a CodeableConcept: its text field
// if set, otherwise the first coding's display.
func ConceptText(concept map[string]any) string {
	if t := StrAt(concept, "text"); t != "" {
		return t
	}
	_, _, display := FirstCoding(concept)
	return display
}

// HasCoding reports whether any CodeableConcept in concepts carries the
// given code (matching system too when system is non-empty).
func HasCoding(concepts []any, system, code string) bool {
	for _, c := range concepts {
		concept, ok := c.(map[string]any)
		if !ok {
			continue
		}
		for _, cd := range SliceAt(concept, "coding") {
			coding, ok := cd.(map[string]any)
			if !ok {
				continue
			}
			if StrAt(coding, "code") != code {
				continue
			}
			if system == "" || StrAt(coding, "system") == system {
				return true
			}
		}
	}
	return false
}

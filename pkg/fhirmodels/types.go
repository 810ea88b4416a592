package fhirmodels

// Common FHIR value set constants used across the application.

// EncounterStatus values per FHIR R4.
const (
	EncounterStatusPlanned        = "planned"
	EncounterStatusArrived        = "arrived"
	EncounterStatusTriaged        = "triaged"
	EncounterStatusInProgress     = "in-progress"
	EncounterStatusOnLeave        = "onleave"
	EncounterStatusFinished       = "finished"
	EncounterStatusCancelled      = "cancelled"
	EncounterStatusEnteredInError = "entered-in-error"
)

// ConditionClinicalStatus codes.
const (
	ConditionActive     = "active"
	ConditionRecurrence = "recurrence"
	ConditionRelapse    = "relapse"
	ConditionInactive   = "inactive"
	ConditionRemission  = "remission"
	ConditionResolved   = "resolved"
)

// ObservationCategory codes.
const (
	ObsCategoryVitalSigns    = "vital-signs"
	ObsCategoryLaboratory    = "laboratory"
	ObsCategoryImaging       = "imaging"
	ObsCategorySocialHistory = "social-history"
	ObsCategorySurvey        = "survey"
	ObsCategoryExam          = "exam"
)

// CompositionStatus values per FHIR R4.
const (
	CompositionStatusPreliminary = "preliminary"
	CompositionStatusFinal       = "final"
	CompositionStatusAmended     = "amended"
)

// Chart category coding: marks a Composition as a chart topic and carries
// an explicit active/inactive marker for topics without an encounter.
const (
	SystemChartCategory   = "https://ehr.dev/fhir/CodeSystem/chart-category"
	ChartCategoryTopic    = "topic"
	ChartCategoryActive   = "active"
	ChartCategoryInactive = "inactive"
)

// Extension URL annotating a composition section entry with the version of
// the referenced resource at composition time.
const ExtSourceVersionID = "https://ehr.dev/fhir/StructureDefinition/source-version-id"

// ListStatus and mode values per FHIR R4.
const (
	ListStatusCurrent = "current"
	ListModeWorking   = "working"
)

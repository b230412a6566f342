package fhir

import (
	"strings"
	"time"

	"github.com/jrsteele09/smart-launch/internal/utils"
)

const (
	ObservationCategorySystem = "http://terminology.hl7.org/CodeSystem/observation-category"
	LOINCSystem               = "http://loinc.org"
	UCUMSystem                = "http://unitsofmeasure.org"

	CategoryVitalSigns = "vital-signs"
	LOINCOralTemp      = "8331-1"
)

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Label returns the text, or the first coding's display or code.
func (c CodeableConcept) Label() string {
	if c.Text != "" {
		return c.Text
	}
	for _, coding := range c.Coding {
		if coding.Display != "" {
			return coding.Display
		}
		if coding.Code != "" {
			return coding.Code
		}
	}
	return ""
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
}

type Quantity struct {
	Value  *float64 `json:"value,omitempty"`
	Unit   string   `json:"unit,omitempty"`
	System string   `json:"system,omitempty"`
	Code   string   `json:"code,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

// Patient holds the demographics shown in the patient banner.
type Patient struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id,omitempty"`
	Name         []HumanName `json:"name,omitempty"`
	Gender       string      `json:"gender,omitempty"`
	BirthDate    string      `json:"birthDate,omitempty"`
}

// DisplayName is "given family" from the first name, or "Unknown Patient".
func (p Patient) DisplayName() string {
	if len(p.Name) == 0 {
		return "Unknown Patient"
	}
	name := p.Name[0]
	if name.Text != "" && name.Family == "" && len(name.Given) == 0 {
		return name.Text
	}
	full := strings.TrimSpace(strings.Join(name.Given, " ") + " " + name.Family)
	if full == "" {
		return "Unknown Patient"
	}
	return full
}

type Observation struct {
	ResourceType      string            `json:"resourceType"`
	ID                string            `json:"id,omitempty"`
	Status            string            `json:"status,omitempty"`
	Category          []CodeableConcept `json:"category,omitempty"`
	Code              CodeableConcept   `json:"code"`
	Subject           *Reference        `json:"subject,omitempty"`
	EffectiveDateTime string            `json:"effectiveDateTime,omitempty"`
	ValueQuantity     *Quantity         `json:"valueQuantity,omitempty"`
}

// NewOralTemperature builds a final vital-sign Observation for an oral
// temperature in degrees Celsius.
func NewOralTemperature(patientID string, celsius float64, effective time.Time) Observation {
	return Observation{
		ResourceType: "Observation",
		Status:       "final",
		Category: []CodeableConcept{{
			Coding: []Coding{{System: ObservationCategorySystem, Code: CategoryVitalSigns, Display: "Vital Signs"}},
			Text:   "Vital Signs",
		}},
		Code: CodeableConcept{
			Coding: []Coding{{System: LOINCSystem, Code: LOINCOralTemp, Display: "Temperature Oral"}},
			Text:   "Temperature Oral",
		},
		Subject:           &Reference{Reference: "Patient/" + patientID},
		EffectiveDateTime: effective.UTC().Format(time.RFC3339),
		ValueQuantity: &Quantity{
			Value:  utils.Ptr(celsius),
			Unit:   "degC",
			System: UCUMSystem,
			Code:   "Cel",
		},
	}
}

type BundleEntry struct {
	Resource Observation `json:"resource"`
}

// ObservationBundle is a searchset of Observations.
type ObservationBundle struct {
	ResourceType string        `json:"resourceType"`
	Total        int           `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

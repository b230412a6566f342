package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/smart-launch/fhir"
	"github.com/jrsteele09/smart-launch/internal/errors"
	"github.com/rs/zerolog/log"
)

type patientBanner struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Gender    string `json:"gender,omitempty"`
	BirthDate string `json:"birthDate,omitempty"`
}

type vitalSign struct {
	ID        string   `json:"id,omitempty"`
	Label     string   `json:"label"`
	Value     *float64 `json:"value,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	Effective string   `json:"effective,omitempty"`
	Status    string   `json:"status,omitempty"`
}

func toVitalSign(o fhir.Observation) vitalSign {
	v := vitalSign{
		ID:        o.ID,
		Label:     o.Code.Label(),
		Effective: o.EffectiveDateTime,
		Status:    o.Status,
	}
	if o.ValueQuantity != nil {
		v.Value = o.ValueQuantity.Value
		v.Unit = o.ValueQuantity.Unit
	}
	return v
}

// fhirClient builds a FHIR client from the browser's durable token record.
// Only a valid record issued for the browser's current launch is usable; the
// launch page starts a new cycle for anything else.
func (s *Server) fhirClient(r *http.Request) (*fhir.Client, string, error) {
	store := s.stores.Open(r, nil).Store()
	record, ok := store.TokenRecord()
	if !ok {
		return nil, "", fmt.Errorf("%w: %w", errors.ErrNotAuthenticated, errors.ErrSessionNotFound)
	}
	if record.ContextHash != store.LaunchContext().Hash() {
		return nil, "", fmt.Errorf("%w: token belongs to another launch", errors.ErrNotAuthenticated)
	}
	if !record.Valid(s.nowTime()) {
		return nil, "", fmt.Errorf("%w: %w", errors.ErrNotAuthenticated, errors.ErrTokenExpired)
	}
	client, err := fhir.NewClient(record.Issuer, record.AccessToken, fhir.WithHTTPClient(s.httpClient))
	if err != nil {
		return nil, "", err
	}
	return client, record.Patient, nil
}

func (s *Server) PatientHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, patientID, err := s.fhirClient(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		patient, err := client.GetPatient(r.Context(), patientID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, patientBanner{
			ID:        patientID,
			Name:      patient.DisplayName(),
			Gender:    patient.Gender,
			BirthDate: patient.BirthDate,
		})
	}
}

func (s *Server) VitalSignsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, patientID, err := s.fhirClient(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		observations, err := client.ListVitalSigns(r.Context(), patientID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		vitals := make([]vitalSign, 0, len(observations))
		for _, o := range observations {
			vitals = append(vitals, toVitalSign(o))
		}
		writeJSON(w, http.StatusOK, vitals)
	}
}

// CreateVitalSignHandler records an oral temperature from the form values
// "value" (degrees Celsius) and "effective".
func (s *Server) CreateVitalSignHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, patientID, err := s.fhirClient(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		value, effective, err := parseTemperatureForm(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		created, err := client.CreateObservation(r.Context(), fhir.NewOralTemperature(patientID, value, effective))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toVitalSign(*created))
	}
}

var effectiveLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

func parseTemperatureForm(r *http.Request) (float64, time.Time, error) {
	rawValue := strings.TrimSpace(r.FormValue("value"))
	rawEffective := strings.TrimSpace(r.FormValue("effective"))
	if rawValue == "" || rawEffective == "" {
		return 0, time.Time{}, errors.Wrap(errors.ErrInvalidRequest, "enter both temperature value and effective date/time")
	}

	value, err := strconv.ParseFloat(rawValue, 64)
	if err != nil {
		return 0, time.Time{}, errors.Wrapf(errors.ErrInvalidRequest, "temperature %q is not a number", rawValue)
	}
	for _, layout := range effectiveLayouts {
		if effective, err := time.Parse(layout, rawEffective); err == nil {
			return value, effective, nil
		}
	}
	return 0, time.Time{}, errors.Wrapf(errors.ErrInvalidRequest, "effective date/time %q is not recognised", rawEffective)
}

func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, errors.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, errors.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, errors.ErrNotFound):
		status = http.StatusNotFound
	}
	log.Ctx(r.Context()).Warn().Err(err).Int("status", status).Msg("Request failed")
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

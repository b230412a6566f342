// Package fhir is a small FHIR R4 client for the resources the launched app
// reads and writes on behalf of the user.
package fhir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/smart-launch/internal/errors"
)

const (
	contentType      = "application/fhir+json"
	vitalSignsCount  = 50
	maxErrorBodySize = 4096
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fhir server returned status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.ErrNotAuthenticated
	case http.StatusNotFound:
		return errors.ErrNotFound
	}
	return nil
}

// Client calls a FHIR server with a bearer token.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// NewClient returns a client for the FHIR base URL (the launch issuer).
func NewClient(baseURL, accessToken string, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[NewClient] FHIR base URL is required")
	}
	if accessToken == "" {
		return nil, errors.New("[NewClient] access token is required")
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// GetPatient reads Patient/{id}.
func (c *Client) GetPatient(ctx context.Context, id string) (*Patient, error) {
	var patient Patient
	if err := c.do(ctx, http.MethodGet, "/Patient/"+url.PathEscape(id), nil, &patient); err != nil {
		return nil, fmt.Errorf("[Client GetPatient] %w", err)
	}
	return &patient, nil
}

// ListVitalSigns searches the patient's vital-sign Observations.
func (c *Client) ListVitalSigns(ctx context.Context, patientID string) ([]Observation, error) {
	q := url.Values{}
	q.Set("patient", patientID)
	q.Set("category", CategoryVitalSigns)
	q.Set("_count", fmt.Sprint(vitalSignsCount))

	var bundle ObservationBundle
	if err := c.do(ctx, http.MethodGet, "/Observation?"+q.Encode(), nil, &bundle); err != nil {
		return nil, fmt.Errorf("[Client ListVitalSigns] %w", err)
	}

	observations := make([]Observation, 0, len(bundle.Entry))
	for _, entry := range bundle.Entry {
		observations = append(observations, entry.Resource)
	}
	return observations, nil
}

// CreateObservation posts obs. The server's copy is returned when it sends
// one back, otherwise obs itself.
func (c *Client) CreateObservation(ctx context.Context, obs Observation) (*Observation, error) {
	body, err := json.Marshal(obs)
	if err != nil {
		return nil, fmt.Errorf("[Client CreateObservation] %w", err)
	}

	var created Observation
	if err := c.do(ctx, http.MethodPost, "/Observation", body, &created); err != nil {
		return nil, fmt.Errorf("[Client CreateObservation] %w", err)
	}
	if created.ResourceType == "" {
		return &obs, nil
	}
	return &created, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", contentType)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Package client implements the remote resource server capability over
// HTTP against a FHIR R4 base URL.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/chartcore/internal/platform/fhir"
)

const fhirJSON = "application/fhir+json"

// Config holds the client settings. Timeout policy lives entirely in
// HTTPClient; the data layer above has no timeout of its own.
type Config struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client talks to one FHIR server.
type Client struct {
	base  string
	token string
	http  *http.Client
	log   zerolog.Logger
}

// New creates a client. When a bearer token is configured its expiry is
// inspected once up front so an already-expired token is flagged before the
// first request fails.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		base:  strings.TrimSuffix(cfg.BaseURL, "/"),
		token: cfg.Token,
		http:  httpClient,
		log:   cfg.Logger,
	}
	if c.token != "" {
		warnIfExpired(c.token, c.log)
	}
	return c
}

// Get runs a resource-type-prefixed query, e.g. "Observation?patient=123".
func (c *Client) Get(ctx context.Context, query string) (*fhir.QueryResult, error) {
	raw, err := c.do(ctx, http.MethodGet, c.base+"/"+query, nil)
	if err != nil {
		return nil, err
	}
	return fhir.InterpretQueryResult(raw)
}

// Post submits a transaction bundle to the server root.
func (c *Client) Post(ctx context.Context, tx *fhir.Bundle) (*fhir.Bundle, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	raw, err := c.do(ctx, http.MethodPost, c.base+"/", body)
	if err != nil {
		return nil, err
	}
	var resp fhir.Bundle
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode transaction response: %w", err)
	}
	return &resp, nil
}

// Delete removes a single resource by reference.
func (c *Client) Delete(ctx context.Context, res *fhir.Resource) error {
	_, err := c.do(ctx, http.MethodDelete, c.base+"/"+res.Ref(), nil)
	return err
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", fhirJSON)
	if body != nil {
		req.Header.Set("Content-Type", fhirJSON)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: %s%s", method, url, resp.Status, diagnostics(data))
	}
	return data, nil
}

// diagnostics pulls the first OperationOutcome issue text out of an error
// body, if there is one.
func diagnostics(body []byte) string {
	var outcome struct {
		ResourceType string `json:"resourceType"`
		Issue        []struct {
			Diagnostics string `json:"diagnostics"`
		} `json:"issue"`
	}
	if json.Unmarshal(body, &outcome) != nil || outcome.ResourceType != "OperationOutcome" {
		return ""
	}
	for _, issue := range outcome.Issue {
		if issue.Diagnostics != "" {
			return ": " + issue.Diagnostics
		}
	}
	return ""
}

package fhir

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Bundle represents a FHIR Bundle envelope.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Request  *BundleRequest  `json:"request,omitempty"`
	Response *BundleResponse `json:"response,omitempty"`
}

type BundleRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

type BundleResponse struct {
	Status       string     `json:"status"`
	Location     string     `json:"location,omitempty"`
	ETag         string     `json:"etag,omitempty"`
	LastModified *time.Time `json:"lastModified,omitempty"`
}

// NewTransaction builds an atomic transaction Bundle with one upsert entry
// per resource. Resources still carrying a temporary id become POST entries
// (server assigns the permanent id); all others become PUT replace-by-id
// entries.
func NewTransaction(resources []*Resource) *Bundle {
	now := time.Now().UTC()
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		entry := BundleEntry{
			FullURL:  r.Ref(),
			Resource: r.MarshalBody(),
		}
		if r.IsTemp() {
			entry.Request = &BundleRequest{Method: "POST", URL: r.Kind.Type()}
		} else {
			entry.Request = &BundleRequest{Method: "PUT", URL: FormatReference(r.Kind.Type(), r.ID)}
		}
		entries[i] = entry
	}
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "transaction",
		Timestamp:    &now,
		Entry:        entries,
	}
}

// NewTransactionResponse creates a transaction-response Bundle from entry
// outcomes.
func NewTransactionResponse(entries []BundleEntry) *Bundle {
	now := time.Now().UTC()
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "transaction-response",
		Timestamp:    &now,
		Entry:        entries,
	}
}

// NewSearchBundle creates a searchset Bundle from resources.
func NewSearchBundle(resources []*Resource) *Bundle {
	now := time.Now().UTC()
	total := len(resources)
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		entries[i] = BundleEntry{
			FullURL:  r.Ref(),
			Resource: r.MarshalBody(),
		}
	}
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &total,
		Timestamp:    &now,
		Entry:        entries,
	}
}

// IsTransactionSuccess reports whether a transaction response signals that
// the whole batch was accepted. Anything other than a well-formed
// transaction-response Bundle is treated as failure.
func IsTransactionSuccess(b *Bundle) bool {
	if b == nil || b.ResourceType != "Bundle" {
		return false
	}
	if b.Type != "transaction-response" {
		return false
	}
	for _, e := range b.Entry {
		if e.Response == nil {
			return false
		}
		if !strings.HasPrefix(e.Response.Status, "2") {
			return false
		}
	}
	return true
}

// AssignedRef extracts the permanent reference of a processed entry from
// its response Location ("Type/id" or "Type/id/_history/v"), falling back
// to the returned resource payload. Nil when neither yields one.
func AssignedRef(e BundleEntry) *ParsedRef {
	if e.Response != nil && e.Response.Location != "" {
		loc := e.Response.Location
		if i := strings.Index(loc, "/_history/"); i >= 0 {
			loc = loc[:i]
		}
		if p := ParseRef(loc); p != nil {
			return p
		}
	}
	if len(e.Resource) > 0 {
		if r, err := DecodeResource(e.Resource); err == nil && r.ID != "" {
			return &ParsedRef{Type: r.Kind.Type(), ID: r.ID}
		}
	}
	return nil
}

// AssignedVersion extracts the version id of a processed entry from its
// response ETag or Location history segment, or from the returned payload.
func AssignedVersion(e BundleEntry) string {
	if e.Response != nil {
		if etag := e.Response.ETag; etag != "" {
			return strings.Trim(strings.TrimPrefix(etag, "W/"), `"`)
		}
		if loc := e.Response.Location; loc != "" {
			if i := strings.Index(loc, "/_history/"); i >= 0 {
				return loc[i+len("/_history/"):]
			}
		}
	}
	if len(e.Resource) > 0 {
		if r, err := DecodeResource(e.Resource); err == nil {
			return r.VersionID
		}
	}
	return ""
}

// QueryResult is what a query against the remote capability yields: either
// one resource or the resources of a bundle envelope. Unrecognized
// resource types inside a bundle are skipped and reported, not fatal.
type QueryResult struct {
	Resources    []*Resource
	Unrecognized []string
}

// InterpretQueryResult decodes a raw query response. A Bundle envelope
// contributes every contained recognizable resource; anything else is
// treated as a single resource.
func InterpretQueryResult(raw json.RawMessage) (*QueryResult, error) {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode query result: %w", err)
	}
	if probe.ResourceType != "Bundle" {
		r, err := DecodeResource(raw)
		if err != nil {
			return nil, err
		}
		return &QueryResult{Resources: []*Resource{r}}, nil
	}

	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	out := &QueryResult{}
	for _, e := range b.Entry {
		if len(e.Resource) == 0 {
			continue
		}
		r, err := DecodeResource(e.Resource)
		if err != nil {
			var body map[string]any
			if json.Unmarshal(e.Resource, &body) == nil {
				out.Unrecognized = append(out.Unrecognized, StrAt(body, "resourceType"))
				continue
			}
			return nil, err
		}
		out.Resources = append(out.Resources, r)
	}
	return out, nil
}

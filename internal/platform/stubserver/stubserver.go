// Package stubserver runs an in-process FHIR server implementing just the
// three operations the chart layer consumes: query, transaction post and
// single delete. It backs the CLI stub command and integration-style tests.
package stubserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/chartcore/internal/platform/fhir"
)

// Server holds seeded resources in memory behind an echo instance.
type Server struct {
	mu        sync.Mutex
	resources map[string]*fhir.Resource // keyed "Type/id"
	echo      *echo.Echo
}

func New() *Server {
	s := &Server{
		resources: make(map[string]*fhir.Resource),
		echo:      echo.New(),
	}
	s.echo.HideBanner = true
	s.echo.POST("/", s.handleTransaction)
	s.echo.GET("/:rtype", s.handleSearch)
	s.echo.GET("/:rtype/:id", s.handleRead)
	s.echo.DELETE("/:rtype/:id", s.handleDelete)
	return s
}

// Handler exposes the HTTP handler, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Seed stores a resource, assigning version "1" when it carries none.
func (s *Server) Seed(r *fhir.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := r.Clone()
	if c.VersionID == "" {
		c.VersionID = "1"
	}
	s.resources[fhir.FormatReference(c.Kind.Type(), c.ID)] = c
}

// Has reports whether the server holds the referenced resource.
func (s *Server) Has(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.resources[ref]
	return ok
}

func (s *Server) handleSearch(c echo.Context) error {
	rtype := c.Param("rtype")
	kind, ok := fhir.KindFromType(rtype)
	if !ok {
		return c.JSON(http.StatusNotFound, outcome("not-found", "unknown resource type "+rtype))
	}
	s.mu.Lock()
	var matches []*fhir.Resource
	for _, r := range s.resources {
		if r.Kind != kind {
			continue
		}
		if patient := c.QueryParam("patient"); patient != "" && !referencesPatient(r, patient) {
			continue
		}
		matches = append(matches, r)
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, fhir.NewSearchBundle(matches))
}

func (s *Server) handleRead(c echo.Context) error {
	ref := fhir.FormatReference(c.Param("rtype"), c.Param("id"))
	s.mu.Lock()
	r, ok := s.resources[ref]
	s.mu.Unlock()
	if !ok {
		return c.JSON(http.StatusNotFound, outcome("not-found", ref+" not found"))
	}
	return c.JSONBlob(http.StatusOK, r.MarshalBody())
}

func (s *Server) handleDelete(c echo.Context) error {
	ref := fhir.FormatReference(c.Param("rtype"), c.Param("id"))
	s.mu.Lock()
	_, ok := s.resources[ref]
	delete(s.resources, ref)
	s.mu.Unlock()
	if !ok {
		return c.JSON(http.StatusNotFound, outcome("not-found", ref+" not found"))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleTransaction(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, outcome("invalid", err.Error()))
	}
	var tx fhir.Bundle
	if err := json.Unmarshal(body, &tx); err != nil {
		return c.JSON(http.StatusBadRequest, outcome("invalid", err.Error()))
	}
	if tx.ResourceType != "Bundle" || tx.Type != "transaction" {
		return c.JSON(http.StatusBadRequest, outcome("invalid", "expected a transaction Bundle"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Two phases so a bad entry rejects the whole bundle atomically.
	type staged struct {
		res      *fhir.Resource
		location string
	}
	plan := make([]staged, 0, len(tx.Entry))
	for i, e := range tx.Entry {
		if e.Request == nil {
			return c.JSON(http.StatusBadRequest, outcome("invalid", fmt.Sprintf("entry %d has no request", i)))
		}
		r, err := fhir.DecodeResource(e.Resource)
		if err != nil {
			return c.JSON(http.StatusBadRequest, outcome("invalid", fmt.Sprintf("entry %d: %v", i, err)))
		}
		switch e.Request.Method {
		case http.MethodPost:
			r.ID = uuid.NewString()
			r.VersionID = "1"
		case http.MethodPut:
			p := fhir.ParseRef(e.Request.URL)
			if p == nil {
				return c.JSON(http.StatusBadRequest, outcome("invalid", fmt.Sprintf("entry %d: bad request url %q", i, e.Request.URL)))
			}
			r.ID = p.ID
			r.VersionID = nextVersion(s.resources[p.String()])
		default:
			return c.JSON(http.StatusBadRequest, outcome("invalid", fmt.Sprintf("entry %d: unsupported method %s", i, e.Request.Method)))
		}
		plan = append(plan, staged{
			res:      r,
			location: fmt.Sprintf("%s/%s/_history/%s", r.Kind.Type(), r.ID, r.VersionID),
		})
	}

	entries := make([]fhir.BundleEntry, len(plan))
	for i, st := range plan {
		s.resources[fhir.FormatReference(st.res.Kind.Type(), st.res.ID)] = st.res
		status := "200 OK"
		if tx.Entry[i].Request.Method == http.MethodPost {
			status = "201 Created"
		}
		entries[i] = fhir.BundleEntry{
			Resource: st.res.MarshalBody(),
			Response: &fhir.BundleResponse{
				Status:   status,
				Location: st.location,
				ETag:     `W/"` + st.res.VersionID + `"`,
			},
		}
	}
	return c.JSON(http.StatusOK, fhir.NewTransactionResponse(entries))
}

func nextVersion(existing *fhir.Resource) string {
	if existing == nil {
		return "1"
	}
	n, err := strconv.Atoi(existing.VersionID)
	if err != nil {
		return "1"
	}
	return strconv.Itoa(n + 1)
}

func referencesPatient(r *fhir.Resource, patientID string) bool {
	want := fhir.FormatReference(fhir.KindPatient.Type(), patientID)
	if r.Kind == fhir.KindPatient {
		return r.ID == patientID
	}
	for _, field := range []string{"subject", "patient"} {
		if fhir.StrAt(fhir.MapAt(r.Body, field), "reference") == want {
			return true
		}
	}
	return false
}

func outcome(code, diagnostics string) map[string]any {
	return map[string]any{
		"resourceType": "OperationOutcome",
		"issue": []any{
			map[string]any{
				"severity":    "error",
				"code":        code,
				"diagnostics": diagnostics,
			},
		},
	}
}

// Shutdown stops a started server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

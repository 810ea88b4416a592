package fhir

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// tempIDPrefix marks client-generated ids for resources the server has not
// assigned a permanent id yet. The urn form doubles as the fullUrl of a
// transaction create entry.
const tempIDPrefix = "urn:uuid:"

// NewTempID returns a fresh temporary id marker.
func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id is a client-generated temporary id.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}

// ParsedRef is the outcome of parsing a reference string.
type ParsedRef struct {
	Type string
	ID   string
}

// ParseRef parses a reference string of the form "Type/id". Absolute URL
// references resolve from their trailing two segments. The parser is
// deliberately lenient: empty, malformed or temporary-urn input yields nil,
// never an error, because readers skip what they cannot resolve.
func ParseRef(ref string) *ParsedRef {
	if ref == "" || IsTempID(ref) {
		return nil
	}
	ref = strings.TrimSuffix(ref, "/")
	parts := strings.Split(ref, "/")
	if len(parts) < 2 {
		return nil
	}
	rt := parts[len(parts)-2]
	id := parts[len(parts)-1]
	if rt == "" || id == "" {
		return nil
	}
	if _, ok := KindFromType(rt); !ok {
		return nil
	}
	return &ParsedRef{Type: rt, ID: id}
}

// Kind returns the kind of the referenced resource type.
func (p *ParsedRef) Kind() Kind {
	k, _ := KindFromType(p.Type)
	return k
}

// String renders the reference back to "Type/id" form.
func (p *ParsedRef) String() string {
	return FormatReference(p.Type, p.ID)
}

package refresh

import (
	"errors"
	"fmt"
	"strings"

	"geo-refresh/core/dataset"
	"geo-refresh/core/featureservice"
)

// Method selects how a target is refreshed.
type Method string

const (
	// MethodTruncate deletes every target row and copies the source back in.
	MethodTruncate Method = "TRUNCATE"
	// MethodCompare applies a row level changeset keyed on an identifier field.
	MethodCompare Method = "COMPARE"
)

// ErrInvalidRequest is returned for requests that fail validation.
var ErrInvalidRequest = errors.New("invalid refresh request")

// ParseMethod parses a method name case-insensitively. Empty means COMPARE.
func ParseMethod(s string) (Method, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(MethodCompare):
		return MethodCompare, nil
	case string(MethodTruncate):
		return MethodTruncate, nil
	}
	return "", fmt.Errorf("%w: unknown method %q, use TRUNCATE or COMPARE", ErrInvalidRequest, s)
}

// Credentials select the portal login for a feature service target: either a
// named profile or an explicit portal URL, username and password.
type Credentials struct {
	Profile   string `json:"profile,omitempty"`
	PortalURL string `json:"portal_url,omitempty"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
}

// IsZero reports whether no credentials were given.
func (c Credentials) IsZero() bool {
	return c.Profile == "" && c.PortalURL == "" && c.Username == "" && c.Password == ""
}

func (c Credentials) portal() featureservice.Credentials {
	return featureservice.Credentials{PortalURL: c.PortalURL, Username: c.Username, Password: c.Password}
}

// Request describes one refresh. Build it with NewRequest; a Request is passed
// by value and never modified by the service.
type Request struct {
	Source      string      `json:"source"`
	Target      string      `json:"target"`
	Method      Method      `json:"method"`
	IDField     string      `json:"id_field,omitempty"`
	Credentials Credentials `json:"credentials"`
	ChunkSize   int         `json:"chunk_size,omitempty"`
}

// NewRequest validates and returns a Request.
func NewRequest(source, target string, method Method, idField string, creds Credentials, chunkSize int) (Request, error) {
	r := Request{
		Source:      strings.TrimSpace(source),
		Target:      strings.TrimSpace(target),
		Method:      method,
		IDField:     strings.TrimSpace(idField),
		Credentials: creds,
		ChunkSize:   chunkSize,
	}
	return r, r.Validate()
}

// Validate checks required fields and their combinations.
func (r Request) Validate() error {
	switch {
	case r.Source == "":
		return fmt.Errorf("%w: source is required", ErrInvalidRequest)
	case r.Target == "":
		return fmt.Errorf("%w: target is required", ErrInvalidRequest)
	case r.Method != MethodTruncate && r.Method != MethodCompare:
		return fmt.Errorf("%w: unknown method %q", ErrInvalidRequest, r.Method)
	case r.Method == MethodCompare && r.IDField == "":
		return fmt.Errorf("%w: %w", ErrMissingIDField, ErrInvalidRequest)
	case r.ChunkSize < 0:
		return fmt.Errorf("%w: chunk size must not be negative", ErrInvalidRequest)
	case dataset.IsRemote(r.Target) && r.Credentials.IsZero():
		return fmt.Errorf("%w: target is a feature service but no login parameters were supplied", ErrCredentials)
	}
	return nil
}

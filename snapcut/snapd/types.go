package snapd

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	connectionErrorCode   = 500
	connectionErrorStatus = "Not found"
)

// SnapInfo is the subset of a snapd snap object the cache uses.
type SnapInfo struct {
	Name            string   `json:"name"`
	Channel         string   `json:"channel"`
	TrackingChannel string   `json:"tracking-channel,omitempty"`
	Revision        Revision `json:"revision"`
	Confinement     string   `json:"confinement"`
	Version         string   `json:"version,omitempty"`
	Summary         string   `json:"summary,omitempty"`
}

// Revision is an opaque, daemon-assigned revision. snapd encodes it as a
// string, but a bare number is accepted as well.
type Revision string

func (r *Revision) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Revision(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("revision: %w", err)
	}
	*r = Revision(n.String())
	return nil
}

// APIError is returned for every failed snapd request: error responses from
// the daemon as well as failures to reach it at all (Code 500).
type APIError struct {
	// Body is the decoded "result" object of the error response, empty when
	// it could not be decoded.
	Body    map[string]any
	Code    int
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("snapd: %d %s", e.Code, e.Status)
	}
	return fmt.Sprintf("snapd: %d %s: %s", e.Code, e.Status, e.Message)
}

// Kind returns the machine readable error kind snapd reported, if any.
func (e *APIError) Kind() string {
	kind, _ := e.Body["kind"].(string)
	return kind
}

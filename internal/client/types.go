package client

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ID tolerates the tracker's habit of returning identifiers as either JSON
// numbers or strings, depending on the endpoint.
type ID string

// UnmarshalJSON accepts both "10023" and 10023.
func (id *ID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*id = ID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Issue is a read-only snapshot of a tracker issue. Fields stays a raw map
// because every business field is an externally configured custom field.
type Issue struct {
	ID     string         `json:"id"`
	Key    string         `json:"key"`
	Fields map[string]any `json:"fields"`
}

// StatusName returns the issue's current status name, or "".
func (i *Issue) StatusName() string {
	return nestedName(i.Fields, "status")
}

// ResolutionName returns the issue's resolution name, or "" when unresolved.
func (i *Issue) ResolutionName() string {
	return nestedName(i.Fields, "resolution")
}

// NumberField returns a numeric custom field value. The tracker delivers
// numeric custom fields as JSON numbers, but cost fields configured as text
// arrive as decimal strings; both parse. Missing, null or unparseable values
// report ok=false.
func (i *Issue) NumberField(fieldID string) (float64, bool) {
	raw, present := i.Fields[fieldID]
	if !present || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

// OrganizationRef returns the first organization linked through the given
// field. At most one organization drives budget logic.
func (i *Issue) OrganizationRef(fieldID string) (id, name string, ok bool) {
	raw, present := i.Fields[fieldID]
	if !present || raw == nil {
		return "", "", false
	}
	list, isList := raw.([]any)
	if !isList || len(list) == 0 {
		return "", "", false
	}
	entry, isMap := list[0].(map[string]any)
	if !isMap {
		return "", "", false
	}
	switch v := entry["id"].(type) {
	case string:
		id = v
	case float64:
		id = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return "", "", false
	}
	name, _ = entry["name"].(string)
	return id, name, true
}

func nestedName(fields map[string]any, key string) string {
	raw, present := fields[key]
	if !present || raw == nil {
		return ""
	}
	obj, isMap := raw.(map[string]any)
	if !isMap {
		return ""
	}
	name, _ := obj["name"].(string)
	return name
}

// Transition is a workflow transition available on an issue.
type Transition struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// SLAStatus is the breach state of an issue's resolution SLA. RemainingMillis
// is negative once the target has been exceeded.
type SLAStatus struct {
	Breached        bool
	RemainingMillis int64
}

// Organization is a customer organization in the tracker's directory.
type Organization struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// Project is a tracker project.
type Project struct {
	ID             ID     `json:"id"`
	Key            string `json:"key"`
	Name           string `json:"name"`
	ProjectTypeKey string `json:"projectTypeKey"`
}

// ServiceDesk is a service desk backed by a project.
type ServiceDesk struct {
	ID         ID     `json:"id"`
	ProjectID  ID     `json:"projectId"`
	ProjectKey string `json:"projectKey"`
}

// RequestType is one request type of a service desk, annotated with its
// owning project for the flattened catalog view.
type RequestType struct {
	ID         ID     `json:"id"`
	Name       string `json:"name"`
	ProjectID  string `json:"projectId"`
	ProjectKey string `json:"projectKey"`
}

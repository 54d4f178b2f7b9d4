package client

import (
	"encoding/json"
	"testing"
)

func TestIDUnmarshal(t *testing.T) {
	var parsed struct {
		A ID `json:"a"`
		B ID `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"10023","b":10023}`), &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.A != "10023" || parsed.B != "10023" {
		t.Fatalf("parsed = %+v, want both IDs normalized to 10023", parsed)
	}
}

func TestOrganizationRef(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		wantID   string
		wantName string
		wantOK   bool
	}{
		{
			name:     "string id",
			value:    []any{map[string]any{"id": "42", "name": "Acme"}},
			wantID:   "42",
			wantName: "Acme",
			wantOK:   true,
		},
		{
			name:     "numeric id",
			value:    []any{map[string]any{"id": float64(42), "name": "Acme"}},
			wantID:   "42",
			wantName: "Acme",
			wantOK:   true,
		},
		{
			name:   "first organization wins",
			value:  []any{map[string]any{"id": "1", "name": "First"}, map[string]any{"id": "2", "name": "Second"}},
			wantID: "1", wantName: "First", wantOK: true,
		},
		{name: "empty list", value: []any{}, wantOK: false},
		{name: "not a list", value: "42", wantOK: false},
		{name: "missing", value: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := map[string]any{}
			if tt.value != nil {
				fields["customfield_10002"] = tt.value
			}
			issue := &Issue{Fields: fields}

			id, name, ok := issue.OrganizationRef("customfield_10002")
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (id != tt.wantID || name != tt.wantName) {
				t.Fatalf("ref = %q/%q, want %q/%q", id, name, tt.wantID, tt.wantName)
			}
		})
	}
}

func TestStatusAndResolutionNames(t *testing.T) {
	issue := &Issue{Fields: map[string]any{
		"status": map[string]any{"name": "Resuelto"},
	}}
	if issue.StatusName() != "Resuelto" {
		t.Errorf("StatusName() = %q", issue.StatusName())
	}
	if issue.ResolutionName() != "" {
		t.Errorf("ResolutionName() = %q, want empty for unresolved issue", issue.ResolutionName())
	}
}

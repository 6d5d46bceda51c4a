package types

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestLooseID(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		want    LooseID
		wantErr bool
	}{
		{name: "string", json: `{"groupid": "5"}`, want: "5"},
		{name: "number", json: `{"groupid": 5}`, want: "5"},
		{name: "large number", json: `{"groupid": 18446744073709551615}`, want: "18446744073709551615"},
		{name: "null", json: `{"groupid": null}`, want: ""},
		{name: "boolean", json: `{"groupid": true}`, wantErr: true},
		{name: "object", json: `{"groupid": {}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c ConditionInput
			err := json.Unmarshal([]byte(tt.json), &c)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && c.GroupID != tt.want {
				t.Errorf("GroupID = %q, want %q", c.GroupID, tt.want)
			}
		})
	}
}

func TestLooseIDYAML(t *testing.T) {
	var c ConditionInput
	if err := yaml.Unmarshal([]byte("groupid: 7\n"), &c); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if c.GroupID != "7" {
		t.Errorf("GroupID = %q, want %q", c.GroupID, "7")
	}

	if err := yaml.Unmarshal([]byte("groupid: [1, 2]\n"), &c); err == nil {
		t.Error("Unmarshal(sequence) succeeded, want error")
	}
}

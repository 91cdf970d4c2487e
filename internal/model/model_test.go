package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestEventKeepsUnknownFields(t *testing.T) {
	in := `{"date":"2025-11-10","time":"3:00 PM","name":"Fall Recital","google-maps":"https://maps.example/x","tickets":{"price":20},"featured":true}`

	var ev Event
	if err := json.Unmarshal([]byte(in), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Date != "2025-11-10" || ev.Time != "3:00 PM" || ev.GoogleMaps != "https://maps.example/x" {
		t.Fatalf("known fields not decoded: %+v", ev)
	}
	if len(ev.Extra) != 2 {
		t.Fatalf("expected 2 extra fields, got %v", ev.Extra)
	}

	out, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{`"tickets":{"price":20}`, `"featured":true`, `"name":"Fall Recital"`} {
		if !strings.Contains(string(out), want) {
			t.Errorf("marshalled event missing %s: %s", want, out)
		}
	}
}

func TestEventWithoutExtrasHasNilExtra(t *testing.T) {
	var ev Event
	if err := json.Unmarshal([]byte(`{"date":"2025-01-01","name":"x"}`), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Extra != nil {
		t.Errorf("expected nil Extra, got %v", ev.Extra)
	}
}

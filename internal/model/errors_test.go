package model

import (
	"testing"
	"time"
)

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"120", 120 * time.Second},
		{"-3", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := ParseRetryAfter(tt.in); got != tt.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHTTPError_Temporary(t *testing.T) {
	for status, want := range map[int]bool{429: true, 500: true, 503: true, 400: false, 404: false} {
		if got := (&HTTPError{StatusCode: status}).Temporary(); got != want {
			t.Errorf("Temporary(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestWithDefaults(t *testing.T) {
	r := JobRecord{RoleCategory: RoleQA}.WithDefaults()
	if r.WorkMode != WorkModeUnknown || r.ExperienceLevel != ExperienceUnknown || r.RoleCategory != RoleQA {
		t.Fatalf("WithDefaults = %+v", r)
	}
}

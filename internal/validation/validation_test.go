package validation

import (
	"strings"
	"testing"

	"github.com/Willy-Angole/abilispace-sub002/internal/apperr"
)

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		max       int
		want      string
		shouldErr bool
	}{
		{"Plain", "hello", 10, "hello", false},
		{"Trimmed", "  hello  ", 10, "hello", false},
		{"Empty", "", 10, "", true},
		{"Whitespace only", "   \n\t", 10, "", true},
		{"At limit", strings.Repeat("a", 10), 10, strings.Repeat("a", 10), false},
		{"Over limit", strings.Repeat("a", 11), 10, "", true},
		{"Multibyte counted as runes", strings.Repeat("é", 10), 10, strings.Repeat("é", 10), false},
		{"Default limit", strings.Repeat("a", 10000), 0, strings.Repeat("a", 10000), false},
		{"Over default limit", strings.Repeat("a", 10001), 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeContent(tt.content, tt.max)
			if (err != nil) != tt.shouldErr {
				t.Fatalf("NormalizeContent() error = %v, wantErr %v", err, tt.shouldErr)
			}
			if err != nil && apperr.CodeOf(err) != apperr.CodeValidation {
				t.Errorf("NormalizeContent() code = %v, want %v", apperr.CodeOf(err), apperr.CodeValidation)
			}
			if got != tt.want {
				t.Errorf("NormalizeContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeGroupName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      string
		shouldErr bool
	}{
		{"Valid", "Team", "Team", false},
		{"Trimmed", "  Team  ", "Team", false},
		{"Empty", "   ", "", true},
		{"Too long", strings.Repeat("x", MaxGroupNameLength+1), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeGroupName(tt.input)
			if (err != nil) != tt.shouldErr {
				t.Fatalf("NormalizeGroupName() error = %v, wantErr %v", err, tt.shouldErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeGroupName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeClientID(t *testing.T) {
	upper := "0B9F3C0E-1F54-4D4E-9A59-6F0F2D3B7A11"
	got, err := NormalizeClientID(&upper)
	if err != nil {
		t.Fatalf("NormalizeClientID() error = %v", err)
	}
	if *got != strings.ToLower(upper) {
		t.Errorf("NormalizeClientID() = %q, want lowercase form", *got)
	}

	bad := "not-a-uuid"
	if _, err := NormalizeClientID(&bad); err == nil {
		t.Errorf("NormalizeClientID(%q) expected error", bad)
	}

	blank := "  "
	if got, err := NormalizeClientID(&blank); err != nil || got != nil {
		t.Errorf("NormalizeClientID(blank) = %v, %v; want nil, nil", got, err)
	}
	if got, err := NormalizeClientID(nil); err != nil || got != nil {
		t.Errorf("NormalizeClientID(nil) = %v, %v; want nil, nil", got, err)
	}
}

type sampleRequest struct {
	Content string `validate:"required,max=5"`
}

func TestStruct(t *testing.T) {
	if err := Struct(sampleRequest{Content: "hi"}); err != nil {
		t.Errorf("Struct() error = %v", err)
	}

	err := Struct(sampleRequest{})
	if apperr.CodeOf(err) != apperr.CodeValidation {
		t.Fatalf("Struct() code = %v, want %v", apperr.CodeOf(err), apperr.CodeValidation)
	}
	if !strings.Contains(err.Error(), "content failed on required") {
		t.Errorf("Struct() message = %q", err.Error())
	}
}

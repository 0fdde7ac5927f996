package storage

import (
	"slices"
	"testing"

	"github.com/Brownie44l1/formtagger-api/internal/model"
)

func TestDigestIsStable(t *testing.T) {
	a := Digest([]byte("page"))
	b := Digest([]byte("page"))
	c := Digest([]byte("other page"))

	if a != b {
		t.Errorf("Expected equal digests, got %s and %s", a, b)
	}
	if a == c {
		t.Error("Expected different content to produce different digests")
	}
	if len(a) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(a))
	}
}

func TestCacheKey(t *testing.T) {
	if got := cacheKey("abc"); got != "formtagger:predictions:abc" {
		t.Errorf("Unexpected key %q", got)
	}
}

func TestDecodePredictions(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected []model.Prediction
		wantErr  bool
	}{
		{
			name:     "empty list",
			data:     `[]`,
			expected: []model.Prediction{},
		},
		{
			name:     "null",
			data:     `null`,
			expected: []model.Prediction{},
		},
		{
			name: "one prediction",
			data: `[{"label":"B-HEADER","score":0.91,"text":"invoice","bbox":[100,80,200,96]}]`,
			expected: []model.Prediction{
				{Label: "B-HEADER", Score: 0.91, Text: "invoice", BBox: [4]float64{100, 80, 200, 96}},
			},
		},
		{
			name:    "corrupt",
			data:    `{"label"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodePredictions([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got == nil || !slices.Equal(got, tt.expected) {
				t.Errorf("Expected %v, got %#v", tt.expected, got)
			}
		})
	}
}

func TestAuditEntryLabels(t *testing.T) {
	entry := AuditEntry{
		Predictions: []model.Prediction{
			{Label: "B-QUESTION"}, {Label: "B-ANSWER"}, {Label: "B-QUESTION"}, {Label: "I-ANSWER"},
		},
	}

	expected := []string{"B-QUESTION", "B-ANSWER", "I-ANSWER"}
	if got := entry.Labels(); !slices.Equal(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}

	if got := (&AuditEntry{}).Labels(); got == nil || len(got) != 0 {
		t.Errorf("Expected empty non-nil labels, got %#v", got)
	}
}

func TestConstructorsRequireURL(t *testing.T) {
	if _, err := NewRedisCache("", 0); err == nil {
		t.Error("Expected error for empty Redis URL")
	}
	if _, err := NewPostgresAudit(""); err == nil {
		t.Error("Expected error for empty database URL")
	}
}

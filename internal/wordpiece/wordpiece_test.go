package wordpiece

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/Brownie44l1/formtagger-api/internal/model"
)

var testVocab = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]",
	"date", ":", "invoice", "total", "##s", "un", "##aff", "##able", "cafe", "$", "12", ".", "00",
}

func newTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	wp, err := New(testVocab, true)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return wp
}

func decodeAll(wp *Tokenizer, ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = wp.Decode(id)
	}
	return out
}

func TestTokenize(t *testing.T) {
	wp := newTestTokenizer(t)

	tests := []struct {
		input    string
		expected []string
	}{
		{"Date:", []string{"date", ":"}},
		{"Invoices", []string{"invoice", "##s"}},
		{"unaffable", []string{"un", "##aff", "##able"}},
		{"Café", []string{"cafe"}},
		{"$12.00", []string{"$", "12", ".", "00"}},
		{"xyz", []string{"[UNK]"}},
		{strings.Repeat("a", 101), []string{"[UNK]"}},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := wp.Tokenize(tt.input)
			if !slices.Equal(got, tt.expected) {
				t.Errorf("Tokenize(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEncodeWordsFramesAndAssignsBoxes(t *testing.T) {
	wp := newTestTokenizer(t)
	words := []string{"Invoices", "Total:"}
	boxes := []model.Box{{10, 10, 100, 30}, {10, 40, 80, 60}}

	enc := wp.EncodeWords(words, boxes, 512)

	expectedTokens := []string{"[CLS]", "invoice", "##s", "total", ":", "[SEP]"}
	if got := decodeAll(wp, enc.IDs); !slices.Equal(got, expectedTokens) {
		t.Fatalf("Expected tokens %v, got %v", expectedTokens, got)
	}

	expectedBoxes := []model.Box{clsBox, boxes[0], boxes[0], boxes[1], boxes[1], sepBox}
	if !slices.Equal(enc.Boxes, expectedBoxes) {
		t.Errorf("Expected boxes %v, got %v", expectedBoxes, enc.Boxes)
	}
}

func TestEncodeWordsTruncates(t *testing.T) {
	wp := newTestTokenizer(t)
	words := []string{"date", "invoice", "total", "cafe"}
	boxes := make([]model.Box, len(words))

	enc := wp.EncodeWords(words, boxes, 4)

	expected := []string{"[CLS]", "date", "invoice", "[SEP]"}
	if got := decodeAll(wp, enc.IDs); !slices.Equal(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
	if len(enc.Boxes) != len(enc.IDs) {
		t.Errorf("Expected %d boxes, got %d", len(enc.IDs), len(enc.Boxes))
	}
}

func TestEncodeWordsNoWords(t *testing.T) {
	wp := newTestTokenizer(t)
	enc := wp.EncodeWords(nil, nil, 512)

	if got := decodeAll(wp, enc.IDs); !slices.Equal(got, []string{"[CLS]", "[SEP]"}) {
		t.Errorf("Expected only framing tokens, got %v", got)
	}
}

func TestDecodeOutOfRange(t *testing.T) {
	wp := newTestTokenizer(t)
	if got := wp.Decode(-1); got != "[UNK]" {
		t.Errorf("Expected [UNK], got %q", got)
	}
	if got := wp.Decode(len(testVocab)); got != "[UNK]" {
		t.Errorf("Expected [UNK], got %q", got)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte(strings.Join(testVocab, "\r\n")+"\n"), 0644); err != nil {
		t.Fatalf("Failed to write vocab: %v", err)
	}

	wp, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := wp.Decode(6); got != "invoice" {
		t.Errorf("Expected id 6 to be invoice, got %q", got)
	}
}

func TestNewRequiresSpecialTokens(t *testing.T) {
	if _, err := New([]string{"[CLS]", "[SEP]", "hello"}, true); err == nil {
		t.Error("Expected error for vocab without [UNK]")
	}
}

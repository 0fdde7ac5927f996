// Package wordpiece implements BERT-style WordPiece tokenization with
// per-token layout boxes.
package wordpiece

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/Brownie44l1/formtagger-api/internal/model"
)

// UnknownToken stands in for words the vocabulary cannot segment.
const UnknownToken = "[UNK]"

const (
	clsToken = "[CLS]"
	sepToken = "[SEP]"

	maxCharsPerWord = 100
)

var (
	clsBox = model.Box{0, 0, 0, 0}
	sepBox = model.Box{1000, 1000, 1000, 1000}
)

// Tokenizer is a WordPiece tokenizer over a vocab.txt file.
type Tokenizer struct {
	vocab     map[string]int
	inverse   []string
	lowercase bool
}

// Encoding is a tokenized document, one box per token.
type Encoding struct {
	IDs   []int
	Boxes []model.Box
}

func Load(path string, lowercase bool) (*Tokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab: %w", err)
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tokens = append(tokens, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}

	return New(tokens, lowercase)
}

// New builds a tokenizer where tokens[i] has id i.
func New(tokens []string, lowercase bool) (*Tokenizer, error) {
	vocab := make(map[string]int, len(tokens))
	for i, tok := range tokens {
		if _, dup := vocab[tok]; !dup {
			vocab[tok] = i
		}
	}
	for _, special := range []string{clsToken, sepToken, UnknownToken} {
		if _, ok := vocab[special]; !ok {
			return nil, fmt.Errorf("vocab is missing %s", special)
		}
	}

	return &Tokenizer{vocab: vocab, inverse: tokens, lowercase: lowercase}, nil
}

// Decode returns the vocabulary entry for id with sub-word markers intact.
func (w *Tokenizer) Decode(id int) string {
	if id < 0 || id >= len(w.inverse) {
		return UnknownToken
	}
	return w.inverse[id]
}

// EncodeWords tokenizes OCR words. Every sub-token inherits its word's box,
// the sequence is framed by [CLS] and [SEP] and truncated to maxLen.
func (w *Tokenizer) EncodeWords(words []string, boxes []model.Box, maxLen int) Encoding {
	enc := Encoding{
		IDs:   []int{w.vocab[clsToken]},
		Boxes: []model.Box{clsBox},
	}
	budget := maxLen - 2

	for i, word := range words {
		for _, piece := range w.Tokenize(word) {
			if len(enc.IDs)-1 >= budget {
				break
			}
			enc.IDs = append(enc.IDs, w.vocab[piece])
			enc.Boxes = append(enc.Boxes, boxes[i])
		}
	}

	enc.IDs = append(enc.IDs, w.vocab[sepToken])
	enc.Boxes = append(enc.Boxes, sepBox)
	return enc
}

// Tokenize splits text into vocabulary entries.
func (w *Tokenizer) Tokenize(text string) []string {
	var pieces []string
	for _, word := range w.basicSplit(text) {
		pieces = append(pieces, w.wordPieces(word)...)
	}
	return pieces
}

// basicSplit cleans text, optionally lowercases and strips accents, and
// splits on whitespace, punctuation and CJK characters.
func (w *Tokenizer) basicSplit(text string) []string {
	if w.lowercase {
		text = stripAccents(strings.ToLower(text))
	}

	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case r == 0 || r == unicode.ReplacementChar || (unicode.IsControl(r) && !unicode.IsSpace(r)):
			continue
		case unicode.IsSpace(r):
			flush()
		case isPunctuation(r) || isCJK(r):
			flush()
			words = append(words, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return words
}

// wordPieces applies greedy longest-match-first segmentation.
func (w *Tokenizer) wordPieces(word string) []string {
	runes := []rune(word)
	if len(runes) > maxCharsPerWord {
		return []string{UnknownToken}
	}

	var pieces []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		match := ""
		for start < end {
			candidate := string(runes[start:end])
			if start > 0 {
				candidate = "##" + candidate
			}
			if _, ok := w.vocab[candidate]; ok {
				match = candidate
				break
			}
			end--
		}
		if match == "" {
			return []string{UnknownToken}
		}
		pieces = append(pieces, match)
		start = end
	}

	return pieces
}

func stripAccents(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}

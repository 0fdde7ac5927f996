package layoutlm

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/Brownie44l1/formtagger-api/internal/model"
)

// Word is one OCR word with its pixel box.
type Word struct {
	Text string
	Box  image.Rectangle
}

// WordExtractor finds words and their positions in a page image.
type WordExtractor interface {
	ExtractWords(img image.Image) ([]Word, error)
}

// TesseractOCR extracts words through libtesseract.
type TesseractOCR struct {
	Language string
}

func NewTesseractOCR(language string) *TesseractOCR {
	if language == "" {
		language = "eng"
	}
	return &TesseractOCR{Language: language}
}

// ExtractWords runs word-level recognition. A gosseract client is not safe
// for concurrent use, so each call gets its own.
func (t *TesseractOCR) ExtractWords(img image.Image) ([]Word, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode page for OCR: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.Language); err != nil {
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		words = append(words, Word{Text: text, Box: b.Box})
	}

	return words, nil
}

// normalizeBox maps a pixel rectangle into the 0-1000 space of a
// width x height page, truncating toward zero.
func normalizeBox(r image.Rectangle, width, height int) model.Box {
	return model.Box{
		1000 * r.Min.X / width,
		1000 * r.Min.Y / height,
		1000 * r.Max.X / width,
		1000 * r.Max.Y / height,
	}
}

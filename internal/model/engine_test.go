package model

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/Brownie44l1/formtagger-api/internal/imaging"
)

func testBitmap(w, h int) *imaging.Bitmap {
	return &imaging.Bitmap{Image: image.NewRGBA(image.Rect(0, 0, w, h)), Format: "png"}
}

func TestSerializedAdmitsOneCallAtATime(t *testing.T) {
	static := &StaticEngine{LabelSet: funsdLabels, Delay: 20 * time.Millisecond}
	engine := Serialized(static)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Infer(testBitmap(10, 10)); err != nil {
				t.Errorf("Infer failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if static.Calls() != 5 {
		t.Errorf("Expected 5 calls, got %d", static.Calls())
	}
	if static.MaxActive() != 1 {
		t.Errorf("Expected at most 1 concurrent call, got %d", static.MaxActive())
	}
}

func TestSerializedExposesVocabulary(t *testing.T) {
	static := &StaticEngine{LabelSet: funsdLabels, Tokens: map[int]string{5: "total"}}
	engine := Serialized(static)

	if got := engine.DecodeToken(5); got != "total" {
		t.Errorf("Expected total, got %q", got)
	}
	if got := engine.DecodeToken(6); got != "[UNK]" {
		t.Errorf("Expected [UNK], got %q", got)
	}
	if len(engine.Labels()) != len(funsdLabels) {
		t.Errorf("Expected %d labels, got %d", len(funsdLabels), len(engine.Labels()))
	}
	if engine.Device() != DeviceCPU {
		t.Errorf("Expected cpu device, got %s", engine.Device())
	}
}

func TestStaticEngineReportsImageSize(t *testing.T) {
	static := &StaticEngine{LabelSet: funsdLabels}
	out, err := static.Infer(testBitmap(1000, 800))
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if out.Width != 1000 || out.Height != 800 {
		t.Errorf("Expected 1000x800, got %dx%d", out.Width, out.Height)
	}
}

func TestStaticEngineError(t *testing.T) {
	boom := errors.New("out of memory")
	static := &StaticEngine{Err: boom}
	if _, err := static.Infer(testBitmap(1, 1)); !errors.Is(err, boom) {
		t.Errorf("Expected %v, got %v", boom, err)
	}
}

func TestPredictUsesBitmapDimensions(t *testing.T) {
	static := &StaticEngine{
		LabelSet: []string{"O", "B-ANSWER"},
		Tokens:   map[int]string{9: "42"},
		Output: EngineOutput{
			TokenIDs:           []int{9},
			LabelProbabilities: [][]float32{{0.2, 0.8}},
			Boxes:              []Box{{500, 500, 1000, 1000}},
		},
	}

	preds, err := Predict(static, testBitmap(200, 100))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(preds) != 1 {
		t.Fatalf("Expected 1 prediction, got %d", len(preds))
	}
	if expected := [4]float64{100, 50, 200, 100}; preds[0].BBox != expected {
		t.Errorf("Expected bbox %v, got %v", expected, preds[0].BBox)
	}
	if preds[0].Text != "42" || preds[0].Label != "B-ANSWER" {
		t.Errorf("Unexpected prediction %+v", preds[0])
	}
}

func TestPredictPropagatesEngineError(t *testing.T) {
	boom := errors.New("engine exploded")
	if _, err := Predict(&StaticEngine{Err: boom}, testBitmap(1, 1)); !errors.Is(err, boom) {
		t.Errorf("Expected %v, got %v", boom, err)
	}
}

func TestPredictScalesByReportedDimensions(t *testing.T) {
	static := &StaticEngine{
		LabelSet: []string{"O", "B-ANSWER"},
		Tokens:   map[int]string{9: "42"},
		Output: EngineOutput{
			TokenIDs:           []int{9},
			LabelProbabilities: [][]float32{{0.2, 0.8}},
			Boxes:              []Box{{500, 500, 1000, 1000}},
			Width:              400,
			Height:             300,
		},
	}

	preds, err := Predict(static, testBitmap(200, 100))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if expected := [4]float64{200, 150, 400, 300}; preds[0].BBox != expected {
		t.Errorf("Expected bbox %v, got %v", expected, preds[0].BBox)
	}
}

type sizelessEngine struct {
	StaticEngine
}

func (e *sizelessEngine) Infer(*imaging.Bitmap) (*EngineOutput, error) {
	return &EngineOutput{}, nil
}

func TestPredictRejectsMissingDimensions(t *testing.T) {
	if _, err := Predict(&sizelessEngine{}, testBitmap(10, 10)); err == nil {
		t.Error("Expected error for an engine that reports no image size")
	}
}

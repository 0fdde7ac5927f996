package model

import (
	"fmt"
	"sync"

	"github.com/Brownie44l1/formtagger-api/internal/imaging"
)

const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// Vocabulary maps model output indices to label names and token ids to text.
type Vocabulary interface {
	Labels() []string
	DecodeToken(id int) string
}

// Engine is the black-box token classifier. Implementations are loaded once
// and shared read-only across requests.
type Engine interface {
	Vocabulary
	Infer(bmp *imaging.Bitmap) (*EngineOutput, error)
	Device() string
	Close()
}

// serialEngine admits one Infer call at a time. Inference is CPU or
// accelerator bound, so running calls in parallel only slows every one of
// them down; throughput comes from running more processes.
type serialEngine struct {
	Engine
	mu sync.Mutex
}

// Serialized wraps e so concurrent callers take turns. There is no timeout:
// a caller that has entered Infer runs to completion.
func Serialized(e Engine) Engine {
	return &serialEngine{Engine: e}
}

func (s *serialEngine) Infer(bmp *imaging.Bitmap) (*EngineOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Engine.Infer(bmp)
}

// Predict runs e on bmp and aggregates the output against the image
// dimensions the engine reports.
func Predict(e Engine, bmp *imaging.Bitmap) ([]Prediction, error) {
	out, err := e.Infer(bmp)
	if err != nil {
		return nil, err
	}
	if out.Width <= 0 || out.Height <= 0 {
		return nil, fmt.Errorf("engine reported invalid image size %dx%d", out.Width, out.Height)
	}
	return Aggregate(out, e, out.Width, out.Height)
}

package model

import (
	"sync/atomic"
	"time"

	"github.com/Brownie44l1/formtagger-api/internal/imaging"
)

// StaticEngine returns fixed tensors regardless of the input image. It lets
// the pipeline run without model weights. Output.Width and Output.Height
// default to the bitmap's size when left zero.
type StaticEngine struct {
	LabelSet []string
	Tokens   map[int]string
	Output   EngineOutput
	Err      error
	Delay    time.Duration

	calls     atomic.Int64
	active    atomic.Int64
	maxActive atomic.Int64
}

func (e *StaticEngine) Labels() []string {
	return e.LabelSet
}

func (e *StaticEngine) DecodeToken(id int) string {
	if text, ok := e.Tokens[id]; ok {
		return text
	}
	return "[UNK]"
}

func (e *StaticEngine) Device() string {
	return DeviceCPU
}

func (e *StaticEngine) Infer(bmp *imaging.Bitmap) (*EngineOutput, error) {
	e.calls.Add(1)
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		prev := e.maxActive.Load()
		if n <= prev || e.maxActive.CompareAndSwap(prev, n) {
			break
		}
	}

	if e.Delay > 0 {
		time.Sleep(e.Delay)
	}
	if e.Err != nil {
		return nil, e.Err
	}

	out := e.Output
	if out.Width == 0 && out.Height == 0 {
		out.Width = bmp.Width()
		out.Height = bmp.Height()
	}
	return &out, nil
}

func (e *StaticEngine) Close() {}

// Calls reports how many times Infer ran.
func (e *StaticEngine) Calls() int64 {
	return e.calls.Load()
}

// MaxActive reports the largest number of overlapping Infer calls seen.
func (e *StaticEngine) MaxActive() int64 {
	return e.maxActive.Load()
}

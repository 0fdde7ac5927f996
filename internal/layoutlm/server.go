// Package layoutlm runs an ONNX-exported LayoutLM token classifier over
// OCR words found by Tesseract.
package layoutlm

import (
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/formtagger-api/internal/imaging"
	"github.com/Brownie44l1/formtagger-api/internal/model"
	"github.com/Brownie44l1/formtagger-api/internal/wordpiece"
)

// ServerConfig locates the exported model and picks the compute device.
type ServerConfig struct {
	ModelDir    string
	LibraryPath string
	Device      string
	Language    string
	OCR         WordExtractor
}

// Server runs a LayoutLM-style token classifier exported to ONNX. The
// session, vocabulary and device are fixed at construction.
type Server struct {
	session   *ort.DynamicAdvancedSession
	Metadata  Metadata
	tokenizer *wordpiece.Tokenizer
	ocr       WordExtractor
	device    string
}

func NewServer(cfg ServerConfig) (*Server, error) {
	metaFile, err := os.ReadFile(filepath.Join(cfg.ModelDir, "model_metadata.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	metadata.applyDefaults()
	if len(metadata.Labels) == 0 {
		return nil, fmt.Errorf("metadata has no labels")
	}

	tokenizer, err := wordpiece.Load(filepath.Join(cfg.ModelDir, "vocab.txt"), metadata.DoLowerCase)
	if err != nil {
		return nil, err
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	options, device, err := newSessionOptions(cfg.Device)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(filepath.Join(cfg.ModelDir, "model.onnx"),
		metadata.InputNames, []string{metadata.OutputName}, options)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	ocr := cfg.OCR
	if ocr == nil {
		ocr = NewTesseractOCR(cfg.Language)
	}

	return &Server{
		session:   session,
		Metadata:  metadata,
		tokenizer: tokenizer,
		ocr:       ocr,
		device:    device,
	}, nil
}

// newSessionOptions resolves the requested device once. "auto" tries CUDA
// and falls back to CPU; "cuda" fails if the provider is unavailable.
func newSessionOptions(device string) (*ort.SessionOptions, string, error) {
	if device == "" {
		device = model.DeviceAuto
	}
	if device != model.DeviceAuto && device != model.DeviceCPU && device != model.DeviceCUDA {
		return nil, "", fmt.Errorf("unknown device %q", device)
	}

	if device != model.DeviceCPU {
		options, err := cudaSessionOptions()
		if err == nil {
			return options, model.DeviceCUDA, nil
		}
		if device == model.DeviceCUDA {
			return nil, "", fmt.Errorf("CUDA execution provider unavailable: %w", err)
		}
		slog.Warn("CUDA unavailable, falling back to CPU", "err", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session options: %w", err)
	}
	return options, model.DeviceCPU, nil
}

func cudaSessionOptions() (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}

	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		options.Destroy()
		return nil, err
	}
	defer cudaOptions.Destroy()

	if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func (s *Server) Labels() []string {
	return s.Metadata.Labels
}

func (s *Server) DecodeToken(id int) string {
	return s.tokenizer.Decode(id)
}

func (s *Server) Device() string {
	return s.device
}

// Infer runs OCR, tokenization and the ONNX graph on one page.
func (s *Server) Infer(bmp *imaging.Bitmap) (*model.EngineOutput, error) {
	enc, err := s.encodePage(bmp.Image)
	if err != nil {
		return nil, err
	}

	probs, err := s.run(enc)
	if err != nil {
		return nil, err
	}

	return &model.EngineOutput{
		TokenIDs:           enc.IDs,
		LabelProbabilities: probs,
		Boxes:              enc.Boxes,
		Width:              bmp.Width(),
		Height:             bmp.Height(),
	}, nil
}

// encodePage extracts words from img and encodes them with boxes in the
// 0-1000 space of the working image.
func (s *Server) encodePage(img image.Image) (wordpiece.Encoding, error) {
	page := s.workingImage(img)
	bounds := page.Bounds()

	words, err := s.ocr.ExtractWords(page)
	if err != nil {
		return wordpiece.Encoding{}, err
	}

	texts := make([]string, len(words))
	boxes := make([]model.Box, len(words))
	for i, w := range words {
		texts[i] = w.Text
		boxes[i] = normalizeBox(w.Box.Sub(bounds.Min), bounds.Dx(), bounds.Dy())
	}

	return s.tokenizer.EncodeWords(texts, boxes, s.Metadata.MaxSequenceLength), nil
}

// workingImage shrinks oversized pages for OCR. Normalized boxes do not
// depend on the working resolution.
func (s *Server) workingImage(img image.Image) image.Image {
	limit := s.Metadata.MaxImageSide
	b := img.Bounds()
	if b.Dx() <= limit && b.Dy() <= limit {
		return img
	}
	return resize.Thumbnail(uint(limit), uint(limit), img, resize.Lanczos3)
}

type tensorInput struct {
	shape  ort.Shape
	values []int64
}

// buildInputs lays out one encoded page as batch-of-one int64 tensors,
// keyed by graph input name.
func buildInputs(enc wordpiece.Encoding) map[string]tensorInput {
	seq := int64(len(enc.IDs))

	ids := make([]int64, seq)
	mask := make([]int64, seq)
	typeIDs := make([]int64, seq)
	bbox := make([]int64, seq*4)
	for i, id := range enc.IDs {
		ids[i] = int64(id)
		mask[i] = 1
		for j := 0; j < 4; j++ {
			bbox[i*4+j] = int64(enc.Boxes[i][j])
		}
	}

	return map[string]tensorInput{
		"input_ids":      {ort.NewShape(1, seq), ids},
		"bbox":           {ort.NewShape(1, seq, 4), bbox},
		"attention_mask": {ort.NewShape(1, seq), mask},
		"token_type_ids": {ort.NewShape(1, seq), typeIDs},
	}
}

// labelProbabilities reshapes flat [1, seq, labels] logits into one
// probability distribution per token.
func labelProbabilities(logits []float32, seq, numLabels int) ([][]float32, error) {
	if numLabels <= 0 || len(logits) != seq*numLabels {
		return nil, fmt.Errorf("logits length %d does not match %d tokens x %d labels", len(logits), seq, numLabels)
	}

	probs := make([][]float32, seq)
	for i := range probs {
		probs[i] = softmax(logits[i*numLabels : (i+1)*numLabels])
	}
	return probs, nil
}

func (s *Server) run(enc wordpiece.Encoding) ([][]float32, error) {
	seq := len(enc.IDs)
	numLabels := len(s.Metadata.Labels)
	data := buildInputs(enc)

	inputs := make([]ort.ArbitraryTensor, 0, len(s.Metadata.InputNames))
	defer func() {
		for _, in := range inputs {
			in.Destroy()
		}
	}()
	for _, name := range s.Metadata.InputNames {
		d, ok := data[name]
		if !ok {
			return nil, fmt.Errorf("unsupported model input %q", name)
		}
		tensor, err := ort.NewTensor(d.shape, d.values)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s tensor: %w", name, err)
		}
		inputs = append(inputs, tensor)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(seq), int64(numLabels)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := s.session.Run(inputs, []ort.ArbitraryTensor{output}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return labelProbabilities(output.GetData(), seq, numLabels)
}

func softmax(logits []float32) []float32 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

func (s *Server) Close() {
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}

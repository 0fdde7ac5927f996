package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"time"

	"github.com/Brownie44l1/formtagger-api/internal/apperr"
	"github.com/Brownie44l1/formtagger-api/internal/auth"
	"github.com/Brownie44l1/formtagger-api/internal/imaging"
	"github.com/Brownie44l1/formtagger-api/internal/model"
	"github.com/Brownie44l1/formtagger-api/internal/storage"
)

// TokenVerifier authorizes a bearer credential.
type TokenVerifier interface {
	Verify(token string) error
}

// PredictionCache short-circuits inference for previously seen images.
type PredictionCache interface {
	Get(ctx context.Context, digest string) ([]model.Prediction, bool, error)
	Set(ctx context.Context, digest string, predictions []model.Prediction) error
}

// AuditLog records successful requests.
type AuditLog interface {
	Record(ctx context.Context, entry storage.AuditEntry) error
}

// Deps is everything the handler needs, built once at startup and never
// changed afterwards. Cache and Audit may be nil.
type Deps struct {
	Engine         model.Engine
	Verifier       TokenVerifier
	Gate           *imaging.ContentGate
	MaxUploadBytes int64
	Cache          PredictionCache
	Audit          AuditLog
}

type Handler struct {
	engine         model.Engine
	verifier       TokenVerifier
	gate           *imaging.ContentGate
	maxUploadBytes int64
	cache          PredictionCache
	audit          AuditLog
}

// NewHandler wraps the engine so inference calls run one at a time.
func NewHandler(deps Deps) *Handler {
	gate := deps.Gate
	if gate == nil {
		gate = imaging.NewContentGate(imaging.DefaultAllowList)
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}

	return &Handler{
		engine:         model.Serialized(deps.Engine),
		verifier:       deps.Verifier,
		gate:           gate,
		maxUploadBytes: maxUpload,
		cache:          deps.Cache,
		audit:          deps.Audit,
	}
}

// Routes returns the HTTP surface of the service.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/inference_image/{$}", h.InferenceImage)
	mux.HandleFunc("/inference_image", func(w http.ResponseWriter, r *http.Request) {
		target := "/inference_image/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
	})
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/docs", h.Docs)
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs", http.StatusTemporaryRedirect)
	})
	return withRequestID(enableCORS(mux))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"device": h.engine.Device(),
	})
}

func (h *Handler) Docs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, docsText)
}

const docsText = `POST /inference_image/
  Authorization: Bearer <token>
  multipart/form-data with one file field (image/jpeg or image/png)

  200 {"predictions": [{"label": str, "score": float, "text": str, "bbox": [x0, y0, x1, y1]}]}
  401 invalid or missing credentials
  413 upload too large
  415 unsupported media type
  400 image could not be decoded
  500 inference failed

GET /health
`

// InferenceImage authenticates, validates, decodes and classifies one page.
// Each stage short-circuits with its own error class.
func (h *Handler) InferenceImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, r, apperr.NewMethodNotAllowed(r.Method))
		return
	}
	start := time.Now()
	log := logger(r)

	if err := h.authenticate(r); err != nil {
		writeError(w, r, err)
		return
	}

	data, mediaType, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	bmp, err := imaging.Decode(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.Debug("Image decoded", "format", bmp.Format, "width", bmp.Width(), "height", bmp.Height())

	digest := storage.Digest(data)
	predictions, cached := h.cachedPredictions(r, digest)
	if !cached {
		predictions, err = model.Predict(h.engine, bmp)
		if err != nil {
			writeError(w, r, apperr.NewInferenceFailed(err))
			return
		}
		h.storePredictions(r, digest, predictions)
	}

	elapsed := time.Since(start)
	log.Info("Inference complete", "predictions", len(predictions), "cached", cached, "duration", elapsed)

	if h.audit != nil {
		entry := storage.AuditEntry{
			RequestID:   requestID(r.Context()),
			ImageDigest: digest,
			MediaType:   mediaType,
			Width:       bmp.Width(),
			Height:      bmp.Height(),
			Predictions: predictions,
			Duration:    elapsed,
			Cached:      cached,
		}
		if err := h.audit.Record(r.Context(), entry); err != nil {
			log.Error("Unable to record audit entry", "err", err)
		}
	}

	writeJSON(w, r, http.StatusOK, model.PredictionResponse{Predictions: predictions})
}

func (h *Handler) authenticate(r *http.Request) error {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return apperr.NewUnauthorized(errors.New("missing bearer credential"))
	}
	return h.verifier.Verify(token)
}

// readUpload returns the bytes and declared media type of the uploaded file.
// The declared type is checked before the file is read into memory.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", apperr.NewPayloadTooLarge(h.maxUploadBytes)
		}
		return nil, "", apperr.NewBadInput("Failed to parse multipart form", err)
	}

	header := firstFile(r.MultipartForm)
	if header == nil {
		return nil, "", apperr.NewBadInput("No file provided. Use 'file' as the form field name", nil)
	}

	mediaType := header.Header.Get("Content-Type")
	if err := h.gate.Check(mediaType); err != nil {
		return nil, "", err
	}

	file, err := header.Open()
	if err != nil {
		return nil, "", apperr.NewBadInput("Failed to open uploaded file", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", apperr.NewBadInput("Failed to read uploaded file", err)
	}

	return data, mediaType, nil
}

// firstFile prefers the "file" field and otherwise takes the first file
// field by name.
func firstFile(form *multipart.Form) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	if files := form.File["file"]; len(files) > 0 {
		return files[0]
	}

	names := make([]string, 0, len(form.File))
	for name := range form.File {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if files := form.File[name]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

func (h *Handler) cachedPredictions(r *http.Request, digest string) ([]model.Prediction, bool) {
	if h.cache == nil {
		return nil, false
	}
	predictions, hit, err := h.cache.Get(r.Context(), digest)
	if err != nil {
		logger(r).Warn("Prediction cache lookup failed", "err", err)
		return nil, false
	}
	return predictions, hit
}

func (h *Handler) storePredictions(r *http.Request, digest string, predictions []model.Prediction) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(r.Context(), digest, predictions); err != nil {
		logger(r).Warn("Unable to cache predictions", "err", err)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger(r).Error("Unable to encode JSON response", "err", err)
	}
}

// writeError logs the full error and sends only the public message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusOf(err)
	log := logger(r).With("code", apperr.CodeOf(err), "status", status)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "err", err)
	} else {
		log.Warn("Request rejected", "err", err)
	}

	if apperr.CodeOf(err) == apperr.Unauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, r, status, map[string]string{"detail": apperr.PublicMessage(err)})
}

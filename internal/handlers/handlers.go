package handlers

import (
	"context"
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/Brownie44l1/tumorscan/internal/classifier"
	"github.com/Brownie44l1/tumorscan/internal/logger"
)

const (
	Title        = "Brain Tumor Prediction"
	PageDetector = "Tumor Detector"

	msgPrompt      = "Please try another file."
	msgNotJPEG     = "Please upload a JPEG image."
	msgBadUpload   = "Failed to read upload."
	msgClassifying = "Classifying..."
	captionUpload  = "Uploaded Image."
	formField      = "image"
)

// multipartOverhead is the body allowance beyond the file limit for the
// multipart boundaries and part headers.
const multipartOverhead = 1 << 20

var pages = []string{PageDetector}

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Classifier is the part of the pipeline the page needs.
type Classifier interface {
	Classify(ctx context.Context, raw []byte) (*classifier.Result, error)
	State() classifier.State
}

type Handler struct {
	classifier     Classifier
	logger         *zap.Logger
	maxUploadBytes int64
}

func NewHandler(c Classifier, logger *zap.Logger, maxUploadBytes int64) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		classifier:     c,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// NewRouter wires the page, health check and middleware.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	h.Routes(r)
	return r
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Get("/", h.Page)
	r.Post("/", h.ClassifyUpload)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"state":  h.classifier.State().String(),
	})
}

type pageData struct {
	Title   string
	Pages   []string
	Page    string
	Upload  bool
	Prompt  string
	Notice  string
	Preview template.URL
	Caption string
	Status  string
	Result  string
	Failed  bool
}

func newPageData(page string) pageData {
	if page == "" {
		page = PageDetector
	}
	return pageData{
		Title:  Title,
		Pages:  pages,
		Page:   page,
		Upload: page == PageDetector,
	}
}

func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	data := newPageData(r.URL.Query().Get("page"))
	if data.Upload {
		data.Prompt = msgPrompt
	}
	h.render(w, http.StatusOK, data)
}

func (h *Handler) ClassifyUpload(w http.ResponseWriter, r *http.Request) {
	data := newPageData(PageDetector)

	// The body limit leaves room for multipart framing so that the upload
	// limit applies to the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.logger.Info("rejected upload", zap.Error(err))
		data.Notice = msgBadUpload
		data.Prompt = msgPrompt
		h.render(w, http.StatusBadRequest, data)
		return
	}

	file, header, err := r.FormFile(formField)
	if err != nil {
		data.Prompt = msgPrompt
		h.render(w, http.StatusOK, data)
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		h.logger.Info("rejected upload", zap.Int64("size", header.Size), zap.Int64("limit", h.maxUploadBytes))
		data.Notice = msgBadUpload
		data.Prompt = msgPrompt
		h.render(w, http.StatusBadRequest, data)
		return
	}

	if !isJPEGName(header.Filename) {
		data.Notice = msgNotJPEG
		data.Prompt = msgPrompt
		h.render(w, http.StatusOK, data)
		return
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		h.logger.Warn("failed to read upload", zap.Error(err))
		data.Notice = msgBadUpload
		data.Prompt = msgPrompt
		h.render(w, http.StatusBadRequest, data)
		return
	}

	h.logger.Debug("received file",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size),
		zap.String("request_id", middleware.GetReqID(r.Context())),
	)

	data.Preview = previewURL(raw)
	data.Caption = captionUpload
	data.Status = msgClassifying

	result, err := h.classifier.Classify(r.Context(), raw)
	if err != nil {
		var cerr *classifier.Error
		if !errors.As(err, &cerr) {
			h.logger.Error("unexpected classification error", zap.Error(err))
		}
		data.Result = classifier.MessageError
		data.Failed = true
	} else {
		data.Result = result.Message()
	}

	h.render(w, http.StatusOK, data)
}

func (h *Handler) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		h.logger.Error("failed to render page", zap.Error(err))
	}
}

func isJPEGName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}

// previewURL inlines the upload as a data URL. Bytes that are not an image
// get no preview.
func previewURL(raw []byte) template.URL {
	mtype := mimetype.Detect(raw)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return ""
	}
	return template.URL("data:" + mtype.String() + ";base64," + base64.StdEncoding.EncodeToString(raw))
}

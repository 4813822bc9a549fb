package httpserver

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/miporis/compliance-evaluator/internal/domain"
	"github.com/miporis/compliance-evaluator/internal/usecase"
)

const maxFormMemory = 32 << 20

type uploadFields struct {
	ControlID   string `validate:"required,max=128"`
	UserID      string `validate:"required,max=128"`
	ControlType string `validate:"max=128"`
}

type uploadResult struct {
	CompliantResult domain.Label               `json:"compliant_result"`
	Score           int                        `json:"score"`
	Remarks         string                     `json:"remarks"`
	RawScore        int                        `json:"raw_score"`
	RawResult       domain.Label               `json:"raw_result"`
	PriorScore      int                        `json:"prior_score"`
	Duplicate       bool                       `json:"duplicate"`
	UploadHistory   *domain.UploadHistoryEntry `json:"uploadHistory,omitempty"`
}

// toUploadResult pairs the final verdict with the upload history entry it
// produced. entry is nil for dry runs.
func toUploadResult(v domain.FinalVerdict, entry *domain.UploadHistoryEntry) uploadResult {
	return uploadResult{
		CompliantResult: v.Result,
		Score:           v.Score,
		Remarks:         v.Remarks,
		RawScore:        v.RawScore,
		RawResult:       v.RawResult,
		PriorScore:      v.PriorScore,
		Duplicate:       v.Duplicate,
		UploadHistory:   entry,
	}
}

// UploadHandler runs the full evaluation pipeline for a multipart upload.
func (s *Server) UploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := s.readUpload(w, r)
		if !ok {
			return
		}
		res, err := s.Evaluate.Evaluate(r.Context(), in)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      true,
			"controlData": res.Record,
			"result":      toUploadResult(res.Verdict, &res.Entry),
			"chat":        res.Chat,
			"files":       res.Outcomes,
		})
	}
}

// UploadCheckHandler judges an upload without storing or persisting anything.
func (s *Server) UploadCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := s.readUpload(w, r)
		if !ok {
			return
		}
		res, err := s.Evaluate.QuickCheck(r.Context(), in)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    true,
			"result":    toUploadResult(res.Verdict, nil),
			"raw":       res.Raw,
			"duplicate": false,
			"files":     res.Outcomes,
		})
	}
}

// readUpload parses the multipart form into an EvaluateInput. It writes the
// error response itself and reports false when the request was rejected.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (usecase.EvaluateInput, bool) {
	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
		return usecase.EvaluateInput{}, false
	}
	maxBytes := s.Cfg.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) || strings.Contains(err.Error(), "too large") {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
				Code: "INVALID_ARGUMENT", Message: "payload too large", Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB},
			}})
			return usecase.EvaluateInput{}, false
		}
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
		return usecase.EvaluateInput{}, false
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	fields := uploadFields{
		ControlID:   strings.TrimSpace(r.FormValue("controlId")),
		UserID:      strings.TrimSpace(r.FormValue("userId")),
		ControlType: strings.TrimSpace(r.FormValue("controlType")),
	}
	if details, err := validateStruct(fields); err != nil {
		writeError(w, r, err, details)
		return usecase.EvaluateInput{}, false
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, r, fmt.Errorf("%w: at least one file is required", domain.ErrInvalidArgument), map[string]string{"field": "files"})
		return usecase.EvaluateInput{}, false
	}
	if s.Cfg.MaxFiles > 0 && len(headers) > s.Cfg.MaxFiles {
		writeError(w, r, fmt.Errorf("%w: at most %d files per submission", domain.ErrInvalidArgument, s.Cfg.MaxFiles), map[string]int{"max_files": s.Cfg.MaxFiles})
		return usecase.EvaluateInput{}, false
	}
	files := make([]domain.UploadFile, 0, len(headers))
	for _, h := range headers {
		f, err := readPart(h)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: read %s: %v", domain.ErrInvalidArgument, h.Filename, err), nil)
			return usecase.EvaluateInput{}, false
		}
		files = append(files, f)
	}
	return usecase.EvaluateInput{
		ControlID:   fields.ControlID,
		UserID:      fields.UserID,
		ControlType: fields.ControlType,
		Files:       files,
	}, true
}

// readPart reads one file and sniffs its content type. Formats the
// extractors cannot handle are kept; they surface as per-file markers.
func readPart(h *multipart.FileHeader) (domain.UploadFile, error) {
	f, err := h.Open()
	if err != nil {
		return domain.UploadFile{}, err
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return domain.UploadFile{}, err
	}
	ct := mimetype.Detect(data).String()
	if declared := h.Header.Get("Content-Type"); ct == "application/octet-stream" && declared != "" {
		ct = declared
	}
	return domain.UploadFile{Name: h.Filename, ContentType: ct, Data: data}, nil
}

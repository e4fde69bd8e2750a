package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/you-humble/mybook/internal/domain"
	filestore "github.com/you-humble/mybook/internal/infra/store/file"

	"github.com/google/uuid"
)

type Usecase interface {
	Submit(ctx context.Context, files []domain.Upload, timeline domain.Timeline, prompt string) (string, error)
	GetStatus(ctx context.Context, jobID string) (domain.StatusResponse, error)
	Download(ctx context.Context, jobID string) (filestore.Object, error)
}

type handler struct {
	maxUploadBytes int64
	usecase        Usecase
}

func NewHandler(maxUploadMb int64, uc Usecase) *handler {
	return &handler{
		maxUploadBytes: maxUploadMb << 20,
		usecase:        uc,
	}
}

func (h *handler) generateBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	requestID := uuid.NewString()
	logger := slog.With(
		slog.String("request_id", requestID),
		slog.String("handler", "generate-book"),
		slog.String("remote_addr", r.RemoteAddr),
	)

	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		logger.Error("ParseMultipartForm", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "unable to parse multipart form")
		return
	}

	var timeline domain.Timeline
	if raw := r.FormValue("timeline"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &timeline); err != nil {
			logger.Warn("bad timeline", slog.String("error", err.Error()))
			writeError(w, http.StatusBadRequest, "field `timeline` must be JSON with start and end")
			return
		}
	}
	prompt := r.FormValue("prompt")

	var files []domain.Upload
	var toClose []io.Closer
	defer func() {
		for _, c := range toClose {
			c.Close()
		}
	}()

	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			f, err := header.Open()
			if err != nil {
				logger.Error("open multipart file", slog.String("error", err.Error()))
				writeError(w, http.StatusBadRequest, "unable to read uploaded file")
				return
			}
			toClose = append(toClose, f)

			files = append(files, domain.Upload{
				Name:        header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Size:        header.Size,
				Content:     f,
			})
		}
	}

	jobID, err := h.usecase.Submit(r.Context(), files, timeline, prompt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			logger.Warn("invalid submission", slog.String("error", err.Error()))
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("Submit usecase", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "cannot create generation job")
		return
	}

	logger.Info("job submitted", slog.String("job_id", jobID), slog.Int("files", len(files)))
	writeJSON(w, http.StatusAccepted, domain.SubmitResponse{
		JobID:  jobID,
		Status: domain.StatusQueued,
	})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing jobId parameter")
		return
	}

	resp, err := h.usecase.GetStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		slog.Error("GetStatus",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) download(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	requestID := uuid.NewString()
	logger := slog.With(
		slog.String("request_id", requestID),
		slog.String("handler", "download"),
		slog.String("remote_addr", r.RemoteAddr),
	)

	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing jobId parameter")
		return
	}

	obj, err := h.usecase.Download(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, domain.ErrJobNotReady):
			writeError(w, http.StatusNotFound, "book not ready or job failed")
		case errors.Is(err, filestore.ErrNotFound):
			logger.Error("result object missing", slog.String("job_id", jobID))
			writeError(w, http.StatusNotFound, "book file not found")
		default:
			logger.Error("Download usecase",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "cannot get result file")
		}
		return
	}
	defer obj.Content.Close()

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Disposition", `attachment; filename="book-`+jobID+`.txt"`)

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Content); err != nil {
		logger.Error("download: send file",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	resp := domain.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON", slog.String("error", err.Error()))
	}
}

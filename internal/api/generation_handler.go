package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/api/shared"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/platform/logger"
	"github.com/phrazzld/inkwell-api/internal/service"
	"github.com/phrazzld/inkwell-api/internal/storage"
	"github.com/phrazzld/inkwell-api/internal/store"
)

// DefaultMaxUploadBytes bounds reference image uploads when no limit is configured.
const DefaultMaxUploadBytes = 10 << 20

// uploadTypes are the accepted reference image types and their extensions.
var uploadTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
}

// GenerationManager is the generation functionality the HTTP layer needs.
type GenerationManager interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error)
	Cancel(ctx context.Context, taskID, ownerID uuid.UUID) (*domain.GenerationTask, error)
	GetStatus(ctx context.Context, taskID, requester uuid.UUID) (*service.TaskView, error)
	ListTasks(ctx context.Context, ownerID uuid.UUID, filter store.TaskFilter, page store.Page) ([]*service.TaskView, int, error)
}

// GenerationHandler serves the generation task endpoints.
type GenerationHandler struct {
	generations    GenerationManager
	files          storage.FileStore
	maxUploadBytes int64
}

// NewGenerationHandler creates a GenerationHandler. Uploaded reference images
// are written to files; maxUploadBytes <= 0 selects DefaultMaxUploadBytes.
func NewGenerationHandler(generations GenerationManager, files storage.FileStore, maxUploadBytes int64) *GenerationHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &GenerationHandler{
		generations:    generations,
		files:          files,
		maxUploadBytes: maxUploadBytes,
	}
}

// SubmitTextToImage handles POST /api/generations/text-to-image.
func (h *GenerationHandler) SubmitTextToImage(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var req TextToImageRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		HandleAPIError(w, r, domain.NewValidationError("body", "must be a JSON object", nil), "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	result, err := h.generations.Submit(r.Context(), service.SubmitRequest{
		OwnerID: ownerID,
		Kind:    domain.TaskKindTextToImage,
		Input: domain.GenerationInput{
			Prompt:      req.Prompt,
			AspectRatio: domain.AspectRatio(req.AspectRatio),
			IsPublic:    req.IsPublic,
		},
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, submitResponse(result))
}

// SubmitImageToImage handles POST /api/generations/image-to-image. The
// multipart form carries the reference image in "image" plus aspect_ratio,
// and optionally prompt and is_public. The image is stored before the task
// is submitted and deleted again if the submission is rejected.
func (h *GenerationHandler) SubmitImageToImage(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	log := logger.FromContextOrDefault(r.Context(), slog.Default())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			HandleAPIError(w, r, h.tooLargeError(), "")
			return
		}
		HandleAPIError(w, r, domain.NewValidationError("body", "must be multipart/form-data", nil), "Invalid request format")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	input, err := parseImageForm(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	key, sourceName, err := h.storeUpload(r, ownerID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	input.ReferenceImage = key
	input.SourceName = sourceName

	result, err := h.generations.Submit(r.Context(), service.SubmitRequest{
		OwnerID: ownerID,
		Kind:    domain.TaskKindImageToImage,
		Input:   input,
	})
	if err != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 10*time.Second)
		defer cancel()
		if delErr := h.files.Delete(ctx, key); delErr != nil {
			log.Warn("failed to delete rejected upload",
				slog.String("key", key),
				slog.String("error", delErr.Error()))
		}
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, submitResponse(result))
}

// parseImageForm reads the non-file fields of an image-to-image form.
func parseImageForm(r *http.Request) (domain.GenerationInput, error) {
	input := domain.GenerationInput{
		Prompt:      r.FormValue("prompt"),
		AspectRatio: domain.AspectRatio(strings.TrimSpace(r.FormValue("aspect_ratio"))),
	}
	verr := &domain.ValidationError{Err: domain.ErrValidation}
	if input.AspectRatio == "" {
		verr.Add("aspect_ratio", "is required")
	}
	if raw := strings.TrimSpace(r.FormValue("is_public")); raw != "" {
		public, err := strconv.ParseBool(raw)
		if err != nil {
			verr.Add("is_public", "must be true or false")
		}
		input.IsPublic = public
	}
	if verr.HasErrors() {
		return domain.GenerationInput{}, verr
	}
	return input, nil
}

// storeUpload validates the "image" file and writes it to storage, returning
// its key and the client's file name.
func (h *GenerationHandler) storeUpload(r *http.Request, ownerID uuid.UUID) (string, string, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		return "", "", domain.NewValidationError("image", "is required", nil)
	}
	defer func() { _ = file.Close() }()

	if header.Size > h.maxUploadBytes {
		return "", "", h.tooLargeError()
	}
	if header.Size == 0 {
		return "", "", domain.NewValidationError("image", "is empty", nil)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	ext, ok := uploadTypes[contentType]
	if !ok {
		return "", "", domain.NewValidationError("image", "must be a PNG, JPEG or GIF image", nil)
	}

	key := storage.UploadKey(ownerID.String(), uuid.NewString(), ext)
	body := io.MultiReader(bytes.NewReader(head), file)
	if err := h.files.Put(r.Context(), key, body, header.Size, contentType); err != nil {
		return "", "", fmt.Errorf("store upload: %w", err)
	}
	return key, path.Base(header.Filename), nil
}

func (h *GenerationHandler) tooLargeError() error {
	return domain.NewValidationError("image", fmt.Sprintf("must be at most %d bytes", h.maxUploadBytes), nil)
}

// ListTasks handles GET /api/generations.
func (h *GenerationHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	page, err := parsePage(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	filter, err := parseTaskFilter(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	views, total, err := h.generations.ListTasks(r.Context(), ownerID, filter, page)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{
		Tasks:      views,
		Pagination: Pagination{Page: page.Number, Limit: page.Limit, Total: total},
	})
}

// GetTask handles GET /api/generations/{id}. Anonymous requests are allowed;
// the configured read policy decides what they may see.
func (h *GenerationHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	requester, _ := shared.AccountIDFromRequest(r)

	view, err := h.generations.GetStatus(r.Context(), taskID, requester)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, view)
}

// CancelTask handles POST /api/generations/{id}/cancel.
func (h *GenerationHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	ownerID, taskID, ok := handleAccountAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.generations.Cancel(r.Context(), taskID, ownerID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	view, err := h.generations.GetStatus(r.Context(), taskID, ownerID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, view)
}

func submitResponse(result *service.SubmitResult) SubmitResponse {
	return SubmitResponse{
		TaskID:        result.Task.ID,
		Status:        string(result.Task.State),
		Progress:      result.Task.Progress,
		Cost:          result.Task.Cost,
		EstimatedTime: int(result.EstimatedTime / time.Second),
	}
}

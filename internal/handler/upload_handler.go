package handler

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/service"
	"github.com/lhlamlehoang/BigBikeBlitz/pkg/apierror"
)

type UploadHandler struct {
	images        *service.ImageService
	maxUploadSize int64
}

func NewUploadHandler(images *service.ImageService, maxUploadSize int64) *UploadHandler {
	return &UploadHandler{images: images, maxUploadSize: maxUploadSize}
}

// Upload stores the first multipart part named "file".
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, apierror.BadRequest("invalid multipart body", ""))
		return
	}

	for {
		part, nextErr := reader.NextPart()
		if nextErr == io.EOF {
			break
		}
		if nextErr != nil {
			if isPayloadTooLarge(nextErr) {
				writeError(w, payloadTooLarge())
				return
			}
			writeError(w, apierror.BadRequest("invalid multipart stream", nextErr.Error()))
			return
		}

		if part.FormName() != "file" || strings.TrimSpace(part.FileName()) == "" {
			_ = part.Close()
			continue
		}

		result, uploadErr := h.images.Upload(r.Context(), part.FileName(), part)
		_ = part.Close()
		if uploadErr != nil {
			if isPayloadTooLarge(uploadErr) {
				writeError(w, payloadTooLarge())
				return
			}
			writeError(w, uploadErr)
			return
		}

		writeSuccess(w, http.StatusCreated, result, nil)
		return
	}

	writeError(w, apierror.BadRequest("multipart field 'file' is required", "file"))
}

// Serve streams a stored upload under service.PublicUploadPrefix.
func (h *UploadHandler) Serve(w http.ResponseWriter, r *http.Request) {
	file, info, err := h.images.Open(r.URL.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	defer file.Close()

	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, path.Base(r.URL.Path), info.ModTime(), file)
}

func isPayloadTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return true
	}

	return strings.Contains(strings.ToLower(err.Error()), "request body too large")
}

func payloadTooLarge() error {
	return apierror.New("PAYLOAD_TOO_LARGE", "request body exceeds MAX_UPLOAD_SIZE", "MAX_UPLOAD_SIZE", http.StatusRequestEntityTooLarge)
}

// UploadsPattern is the route the stored images are served from.
const UploadsPattern = service.PublicUploadPrefix + "*"

package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/stefando/weddingPhotos/internal/auth"
	"github.com/stefando/weddingPhotos/internal/photos"
)

// multipartOverhead is the body allowance for boundaries and part headers on
// top of the file size limit.
const multipartOverhead = 1 << 20

var (
	errNotConfigured = errors.New("photo service not configured")
	errBadMultipart  = errors.New("malformed multipart body")
	errMultipleFiles = errors.New("more than one file part")
)

type handler struct {
	photos    PhotoService
	configErr error
	logger    *slog.Logger
}

type listResponse struct {
	Items []photos.Item `json:"items"`
}

// uploadPhoto handles POST /upload-photo
func (h *handler) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w, r) {
		return
	}

	token, ok := auth.AppToken(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, msgMissingToken)
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		writeError(w, http.StatusBadRequest, msgBadContentType)
		return
	}

	maxBytes := h.photos.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	file, err := readFilePart(r, maxBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, msgFileTooLarge)
		case errors.Is(err, photos.ErrMissingFile):
			writeError(w, http.StatusBadRequest, msgMissingFile)
		case errors.Is(err, errMultipleFiles):
			writeError(w, http.StatusBadRequest, msgTooManyFiles)
		default:
			h.logger.WarnContext(r.Context(), "rejecting multipart body", slog.Any("error", err))
			writeError(w, http.StatusBadRequest, msgBadMultipart)
		}
		return
	}

	res, err := h.photos.Upload(r.Context(), token, file)
	if err != nil {
		h.fail(w, r, err, opUpload)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// listPhotos handles GET|POST /list-photos
func (h *handler) listPhotos(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w, r) {
		return
	}

	token, ok := auth.AppToken(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, msgMissingToken)
		return
	}

	items, err := h.photos.List(r.Context(), token)
	if err != nil {
		h.fail(w, r, err, opList)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items})
}

// readFilePart streams the multipart body and returns the "file" part. At
// most maxBytes+1 bytes of it are read so the size check can tell an exact
// fit from an overflow. A "file" field without a filename is form text, not
// an upload, and is skipped. A second upload is rejected.
func readFilePart(r *http.Request, maxBytes int64) (photos.File, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return photos.File{}, errors.Join(errBadMultipart, err)
	}

	var (
		file  photos.File
		found bool
	)
	for {
		part, err := mr.NextPart()
		// A bare io.EOF means the closing boundary was read; truncated
		// bodies come back wrapped.
		if err == io.EOF {
			if !found {
				return photos.File{}, photos.ErrMissingFile
			}
			return file, nil
		}
		if err != nil {
			return photos.File{}, errors.Join(errBadMultipart, err)
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		if found {
			_ = part.Close()
			return photos.File{}, errMultipleFiles
		}

		data, err := io.ReadAll(io.LimitReader(part, maxBytes+1))
		_ = part.Close()
		if err != nil {
			return photos.File{}, errors.Join(errBadMultipart, err)
		}
		file = photos.File{
			Name:        part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		}
		found = true
		// Oversized uploads are rejected downstream; no need to drain the rest.
		if int64(len(data)) > maxBytes {
			return file, nil
		}
	}
}

func (h *handler) unavailable(w http.ResponseWriter, r *http.Request) bool {
	if h.configErr == nil {
		return false
	}
	h.logger.ErrorContext(r.Context(), "photo service unavailable", slog.Any("error", h.configErr))
	writeError(w, http.StatusInternalServerError, msgMissingConfig)
	return true
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error, op operation) {
	status, body := classify(err, op)
	lvl := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		lvl = slog.LevelError
	}
	h.logger.Log(r.Context(), lvl, "photo request failed",
		slog.Int("status", status),
		slog.Any("error", err))
	writeJSON(w, status, body)
}

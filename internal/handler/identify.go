package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/identify"
)

// maxPhotoBytes caps an uploaded photo.
const maxPhotoBytes = 10 << 20

// IdentifyHandler forwards a horse photo to the classifier.
type IdentifyHandler struct {
	classifier identify.Classifier
	logger     *slog.Logger
}

// NewIdentifyHandler creates an IdentifyHandler. A nil classifier makes
// every request answer 503.
func NewIdentifyHandler(classifier identify.Classifier, logger *slog.Logger) *IdentifyHandler {
	return &IdentifyHandler{
		classifier: classifier,
		logger:     logger,
	}
}

type identifyResponse struct {
	identify.Result
	Known      bool                `json:"known"`
	Assessment identify.Assessment `json:"assessment"`
}

// HandleIdentify takes a multipart upload with the photo in field "file".
//
// HTTP: POST /api/identify
func (h *IdentifyHandler) HandleIdentify(w http.ResponseWriter, r *http.Request) {
	if h.classifier == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "unavailable",
			Message: "Horse identification is not configured.",
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, apperror.ValidationFailed("file", "Photo is too large."))
			return
		}
		h.logger.Warn("invalid identify upload", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("file", "A photo is required."))
		return
	}
	defer file.Close()

	h.logger.Info("identifying horse photo",
		slog.String("filename", header.Filename),
		slog.Int64("bytes", header.Size),
	)

	res, err := h.classifier.Identify(r.Context(), header.Filename, file)
	if err != nil {
		h.logger.Error("horse identification failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "classifier_error",
			Message: "Could not identify the horse right now.",
		})
		return
	}

	writeJSON(w, http.StatusOK, identifyResponse{
		Result:     *res,
		Known:      res.Known(),
		Assessment: identify.Describe(res.Confidence),
	})
}

package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/jacobs-ranch/internal/blob"
)

// Contracts opens a user's boarding contract. *service.ContractService
// implements it.
type Contracts interface {
	Open(ctx context.Context, userID string) (blob.Info, io.ReadCloser, error)
}

type ContractHandler struct {
	contracts Contracts
	logger    *slog.Logger
}

func NewContractHandler(contracts Contracts, logger *slog.Logger) *ContractHandler {
	return &ContractHandler{contracts: contracts, logger: logger}
}

// HandleGetContract streams the signed-in user's contract PDF.
//
// HTTP: GET /api/contract
func (h *ContractHandler) HandleGetContract(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	info, body, err := h.contracts.Open(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Disposition", `inline; filename="contract.pdf"`)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if !info.LastModified.IsZero() {
		w.Header().Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)

	// Headers are out; a copy failure can only be logged.
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("contract stream interrupted",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
	}
}

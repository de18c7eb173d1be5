package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/blob"
)

const contractContentType = "application/pdf"

// ContractKey is the blob key of a user's boarding contract.
func ContractKey(userID string) string { return userID + ".pdf" }

// ContractService serves the signed boarding contracts the ranch uploads
// for each user.
type ContractService struct {
	blobs  blob.Store
	logger *slog.Logger
}

func NewContractService(blobs blob.Store, logger *slog.Logger) *ContractService {
	return &ContractService{blobs: blobs, logger: logger}
}

// Open returns the user's contract. The caller closes the reader.
func (s *ContractService) Open(ctx context.Context, userID string) (blob.Info, io.ReadCloser, error) {
	info, rc, err := s.blobs.Get(ctx, ContractKey(userID))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return blob.Info{}, nil, apperror.NotFound("contract", userID)
		}
		s.logger.Error("contract download failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return blob.Info{}, nil, fmt.Errorf("service/contract: opening contract: %w", err)
	}
	if info.ContentType == "" {
		info.ContentType = contractContentType
	}
	return info, rc, nil
}

// Upload stores or replaces the user's contract.
func (s *ContractService) Upload(ctx context.Context, userID string, r io.Reader) (blob.Info, error) {
	if userID == "" {
		return blob.Info{}, apperror.ValidationFailed("user_id", "A user id is required.")
	}
	info, err := s.blobs.Put(ctx, ContractKey(userID), r, blob.PutOptions{ContentType: contractContentType})
	if err != nil {
		return blob.Info{}, fmt.Errorf("service/contract: uploading contract: %w", err)
	}
	s.logger.Info("contract uploaded",
		slog.String("userID", userID),
		slog.Int64("bytes", info.Size),
	)
	return info, nil
}

package job

import (
	"context"

	"github.com/adityawiguna/jobscout-api/internal/apperror"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListBySession(ctx context.Context, req ListBySessionRequest) ([]Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListBySession(ctx, req.SessionID, req.UserID)
}

func (s *Service) UpdateApplicationStatus(ctx context.Context, req UpdateStatusRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return s.repo.UpdateApplicationStatus(ctx, req.JobID, req.UserID, req.Status)
}

type ListBySessionRequest struct {
	SessionID string
	UserID    string
}

func (r ListBySessionRequest) Validate() *apperror.AppError {
	if r.SessionID == "" {
		return apperror.New(apperror.BadRequest, "session id is required")
	}
	if r.UserID == "" {
		return apperror.New(apperror.BadRequest, "user id is required")
	}
	return nil
}

type UpdateStatusRequest struct {
	JobID  string
	UserID string
	Status ApplicationStatus
}

func (r UpdateStatusRequest) Validate() *apperror.AppError {
	if r.JobID == "" {
		return apperror.New(apperror.BadRequest, "job id is required")
	}
	if r.UserID == "" {
		return apperror.New(apperror.BadRequest, "user id is required")
	}
	if _, ok := ParseApplicationStatus(string(r.Status)); !ok {
		return apperror.Newf(apperror.BadRequest, "unknown application status %q", string(r.Status))
	}
	return nil
}

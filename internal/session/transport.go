package session

import "github.com/adityawiguna/jobscout-api/internal/apperror"

type StartRequest struct {
	UserID string
	CVID   string
	Params SearchParams
}

func (r StartRequest) Validate() *apperror.AppError {
	if r.UserID == "" {
		return apperror.New(apperror.BadRequest, "user id is required")
	}
	return r.Params.Validate()
}

type GetRequest struct {
	ID     string
	UserID string
}

func (r GetRequest) Validate() *apperror.AppError {
	if r.ID == "" {
		return apperror.New(apperror.BadRequest, "session id is required")
	}
	if r.UserID == "" {
		return apperror.New(apperror.BadRequest, "user id is required")
	}
	return nil
}

type ListRequest struct {
	UserID string
}

func (r ListRequest) Validate() *apperror.AppError {
	if r.UserID == "" {
		return apperror.New(apperror.BadRequest, "user id is required")
	}
	return nil
}

// CommandRequest addresses one session for pause/resume/cancel/retry.
type CommandRequest struct {
	ID     string
	UserID string
}

func (r CommandRequest) Validate() *apperror.AppError {
	return GetRequest(r).Validate()
}

type ReportProgressRequest struct {
	ID       string
	UserID   string
	Progress Progress
}

func (r ReportProgressRequest) Validate() *apperror.AppError {
	if err := (GetRequest{ID: r.ID, UserID: r.UserID}).Validate(); err != nil {
		return err
	}
	if r.Progress.CurrentPage < 0 || r.Progress.TotalPages < 0 {
		return apperror.New(apperror.BadRequest, "page counts cannot be negative")
	}
	return nil
}

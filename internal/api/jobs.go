package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/procstream/internal/api/models"
	"github.com/smazurov/procstream/internal/jobs"
)

func (s *Server) registerJobRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/api/jobs",
		Summary:     "List Jobs",
		Description: "List all known jobs with their state and recent output",
		Tags:        []string{"jobs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.JobListResponse, error) {
		list := s.jobs.List()
		return &models.JobListResponse{
			Body: models.JobListData{Jobs: list, Count: len(list)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "start-job",
		Method:        http.MethodPost,
		Path:          "/api/jobs",
		Summary:       "Start Job",
		Description:   "Start a pipeline as a job. Blocking jobs respond once finished; non-blocking jobs respond immediately.",
		Tags:          []string{"jobs"},
		Security:      withAuth(),
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 409},
	}, func(ctx context.Context, input *models.StartJobRequest) (*models.JobResponse, error) {
		info, err := s.jobs.Start(ctx, input.Body)
		if err != nil {
			return nil, jobError(err)
		}
		s.logger.Info("Job submitted", "job_id", info.ID, "state", info.State)
		return &models.JobResponse{Body: *info}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/api/jobs/{job_id}",
		Summary:     "Get Job",
		Description: "Get a job's state, pids, recent output and result",
		Tags:        []string{"jobs"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.JobIDInput) (*models.JobResponse, error) {
		info, err := s.jobs.Status(input.JobID)
		if err != nil {
			return nil, jobError(err)
		}
		return &models.JobResponse{Body: *info}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "kill-job",
		Method:      http.MethodPost,
		Path:        "/api/jobs/{job_id}/kill",
		Summary:     "Kill Job",
		Description: "Terminate a running job's pipeline",
		Tags:        []string{"jobs"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409},
	}, func(_ context.Context, input *models.JobIDInput) (*models.KillJobResponse, error) {
		if err := s.jobs.Kill(input.JobID); err != nil {
			return nil, jobError(err)
		}
		return &models.KillJobResponse{
			Body: models.KillJobData{JobID: input.JobID, Message: "Kill requested"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-job",
		Method:        http.MethodDelete,
		Path:          "/api/jobs/{job_id}",
		Summary:       "Delete Job",
		Description:   "Forget a finished job",
		Tags:          []string{"jobs"},
		Security:      withAuth(),
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404, 409},
	}, func(_ context.Context, input *models.JobIDInput) (*struct{}, error) {
		if err := s.jobs.Remove(input.JobID); err != nil {
			return nil, jobError(err)
		}
		return nil, nil
	})
}

// jobError maps job manager errors to HTTP errors.
func jobError(err error) error {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, jobs.ErrJobRunning), errors.Is(err, jobs.ErrJobNotRunning):
		return huma.Error409Conflict(err.Error())
	default:
		return huma.Error400BadRequest(err.Error())
	}
}

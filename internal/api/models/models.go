// Package models defines request and response bodies for the HTTP API.
package models

import (
	"github.com/smazurov/procstream/internal/config"
	"github.com/smazurov/procstream/internal/jobs"
	"github.com/smazurov/procstream/internal/version"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Health status"`
	Message string `json:"message" example:"API is healthy" doc:"Health message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionResponse struct {
	Body version.Info
}

// Job models
type JobIDInput struct {
	JobID string `path:"job_id" maxLength:"128" example:"listing" doc:"Job identifier"`
}

type StartJobRequest struct {
	Body config.JobSpec
}

type JobResponse struct {
	Body jobs.Info
}

type JobListData struct {
	Jobs  []jobs.Info `json:"jobs" doc:"Known jobs, oldest first"`
	Count int         `json:"count" example:"2" doc:"Number of jobs"`
}

type JobListResponse struct {
	Body JobListData
}

type KillJobData struct {
	JobID   string `json:"job_id" example:"listing" doc:"Job identifier"`
	Message string `json:"message" example:"Kill requested" doc:"Outcome message"`
}

type KillJobResponse struct {
	Body KillJobData
}

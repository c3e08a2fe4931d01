package api

import (
	"context"

	"regscanner/app/database"
	"regscanner/app/scan"
)

type ScanRunnerInterface interface {
	Run(ctx context.Context, opts scan.Options) (*scan.Report, error)
}

var _ ScanRunnerInterface = (*scan.Orchestrator)(nil)

// Pinger verifies storage liveness for the health endpoint.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	runner  ScanRunnerInterface
	updates database.UpdateRepository
	health  database.HealthRepository
	db      Pinger
}

// ScanRequest is the POST /scan body. Zero values fall back to defaults.
type ScanRequest struct {
	DateRangeDays     int      `json:"dateRangeDays"`
	SelectedSourceIDs []string `json:"selectedSourceIds"`
}

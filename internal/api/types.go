package api

import (
	"sitedoc/internal/job"
	"sitedoc/pkg/types"
)

// CreateJobRequest captures the payload used to launch a conversion job.
// Unknown option keys are dropped by JSON decoding; missing ones pick up the
// service defaults.
type CreateJobRequest struct {
	URL     string                   `json:"url"`
	Options *types.ConversionOptions `json:"options,omitempty"`
}

// JobDetail extends a job snapshot with the final result once available.
type JobDetail struct {
	Job    job.Snapshot            `json:"job"`
	Result *types.ConversionResult `json:"result,omitempty"`
}

// SSEEvent envelopes job progress for Server-Sent Event clients.
type SSEEvent struct {
	Type     string              `json:"type"`
	Progress types.ProgressEvent `json:"progress"`
}

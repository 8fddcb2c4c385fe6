package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/quota-guard/internal/audit"
	"github.com/serroba/quota-guard/internal/clientid"
	"github.com/serroba/quota-guard/internal/messaging"
	"go.uber.org/zap"
)

// JobIDGenerator generates unique export job ids.
type JobIDGenerator func() string

// ExportHandler queues export jobs.
type ExportHandler struct {
	newJobID JobIDGenerator
	publish  messaging.Publish[audit.ExportRequestedEvent]
	logger   *zap.Logger
}

// NewExportHandler creates an export handler.
func NewExportHandler(
	newJobID JobIDGenerator,
	publish messaging.Publish[audit.ExportRequestedEvent],
	logger *zap.Logger,
) *ExportHandler {
	return &ExportHandler{
		newJobID: newJobID,
		publish:  publish,
		logger:   logger,
	}
}

// IdentifyExport keys export quotas by resource and caller, so each shop gets its
// own budget per resource.
func IdentifyExport(ctx huma.Context) string {
	return clientid.Compound(ctx.Param("resource"), RequestMetaFromContext(ctx.Context()).Caller())
}

// Request queues an export and answers 202 with the job id.
func (h *ExportHandler) Request(ctx context.Context, req *RequestExportRequest) (*RequestExportResponse, error) {
	meta := RequestMetaFromContext(ctx)

	event := &audit.ExportRequestedEvent{
		JobID:       h.newJobID(),
		Resource:    req.Resource,
		Shop:        meta.Caller(),
		RequestedAt: time.Now().UTC(),
	}

	if err := h.publish(event); err != nil {
		h.logger.Error("failed to publish export request",
			zap.String("job_id", event.JobID),
			zap.Error(err),
		)

		return nil, huma.Error503ServiceUnavailable("export queue unavailable")
	}

	resp := &RequestExportResponse{Status: http.StatusAccepted}
	resp.Body.JobID = event.JobID
	resp.Body.Resource = event.Resource
	resp.Body.Result = "queued"

	return resp, nil
}

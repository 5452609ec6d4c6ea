package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gobelinus/review-system-microservice-sub000/internal/domain"
	"github.com/gobelinus/review-system-microservice-sub000/internal/logger"
)

// WebhookConfig holds configuration for the job-completion webhook.
type WebhookConfig struct {
	URL        string
	Secret     string
	Timeout    time.Duration
	RetryCount int
}

// WebhookNotifier posts a summary payload to a configured endpoint whenever a
// job reaches a terminal state. Delivery is best-effort: failures are logged
// and never affect the job outcome.
type WebhookNotifier struct {
	client *resty.Client
	url    string
	logger *logger.Logger
}

// jobFinishedPayload is the webhook body for one terminal job.
type jobFinishedPayload struct {
	Event          string  `json:"event"`
	JobID          string  `json:"job_id"`
	Status         string  `json:"status"`
	Provider       string  `json:"provider,omitempty"`
	TotalFiles     int     `json:"total_files"`
	ProcessedFiles int     `json:"processed_files"`
	FailedFiles    int     `json:"failed_files"`
	TotalReviews   int     `json:"total_reviews"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	DurationSecs   float64 `json:"duration_seconds,omitempty"`
	FinishedAt     string  `json:"finished_at"`
}

// NewWebhookNotifier creates a WebhookNotifier.
// Parameters:
//   - cfg: webhook endpoint, auth secret, timeout, and retry count.
//   - log: logger instance; nil uses the default logger.
// Returns:
//   - *WebhookNotifier: initialized notifier, or nil when no URL is configured.
func NewWebhookNotifier(cfg WebhookConfig, log *logger.Logger) *WebhookNotifier {
	if cfg.URL == "" {
		return nil
	}
	if log == nil {
		log = logger.GetDefault()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}

	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(cfg.Timeout)
	client.SetRetryCount(cfg.RetryCount)
	if cfg.Secret != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.Secret)
	}

	return &WebhookNotifier{
		client: client,
		url:    cfg.URL,
		logger: log,
	}
}

// JobFinished posts the terminal job summary to the configured endpoint.
// Parameters:
//   - ctx: context for the HTTP call.
//   - job: terminal job record.
// Returns: none.
func (n *WebhookNotifier) JobFinished(ctx context.Context, job *domain.ProcessingJob) {
	payload := jobFinishedPayload{
		Event:          "ingestion.job.finished",
		JobID:          job.ID,
		Status:         string(job.Status),
		Provider:       job.Provider,
		TotalFiles:     job.TotalFiles,
		ProcessedFiles: job.ProcessedFiles,
		FailedFiles:    job.FailedFiles,
		TotalReviews:   job.TotalReviews,
		ErrorMessage:   job.ErrorMessage,
		FinishedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if job.StartedAt != nil && job.CompletedAt != nil {
		payload.DurationSecs = job.CompletedAt.Sub(*job.StartedAt).Seconds()
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(n.url)
	if err != nil {
		n.logger.WithField(logger.FieldJobID, job.ID).WithError(err).
			Warn("Webhook delivery failed")
		return
	}
	if resp.StatusCode() >= 300 {
		n.logger.WithFields(logger.Fields{
			logger.FieldJobID: job.ID,
			"status_code":     resp.StatusCode(),
		}).Warn("Webhook endpoint rejected payload")
		return
	}

	n.logger.WithField(logger.FieldJobID, job.ID).Debug("Webhook delivered")
}

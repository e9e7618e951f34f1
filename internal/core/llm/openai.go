package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
	"github.com/lueurxax/trade-idea-parser/internal/platform/config"
	"github.com/lueurxax/trade-idea-parser/internal/platform/observability"
)

type openaiClient struct {
	cfg         *config.Config
	client      *openai.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter
	circuit     *CircuitBreaker
	budget      *BudgetTracker
}

// NewOpenAI creates a provider backed by an OpenAI-compatible API.
func NewOpenAI(cfg *config.Config, budget *BudgetTracker, logger *zerolog.Logger) Provider {
	clientCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		clientCfg.BaseURL = cfg.LLMBaseURL
	}

	limit := rate.Inf
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
	}

	return &openaiClient{
		cfg:         cfg,
		client:      openai.NewClientWithConfig(clientCfg),
		logger:      logger,
		rateLimiter: rate.NewLimiter(limit, rateLimiterBurst),
		circuit:     NewCircuitBreaker(cfg.LLMCircuitThreshold, cfg.LLMCircuitTimeout, nil, logger),
		budget:      budget,
	}
}

// Complete runs one structured chat completion. Each call gets its own timeout;
// a timeout is reported as context.DeadlineExceeded and is retryable.
func (c *openaiClient) Complete(ctx context.Context, req Request) (Response, error) {
	if err := c.circuit.CheckCircuit(); err != nil {
		return Response{}, err
	}

	if c.budget != nil {
		if err := c.budget.Allow(); err != nil {
			c.logger.Warn().Err(err).Str(logKeyTask, string(req.Task)).Msg(logMsgBudgetExceeded)

			return Response{}, err
		}
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf(errRateLimiter, err)
	}

	callCtx := ctx

	if c.cfg.LLMCallTimeout > 0 {
		var cancel context.CancelFunc

		callCtx, cancel = context.WithTimeout(ctx, c.cfg.LLMCallTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(callCtx, ChatRequest(req))

	observability.LLMRequestDuration.WithLabelValues(req.Model, string(req.Task)).Observe(time.Since(start).Seconds())

	if err != nil {
		observability.LLMRequests.WithLabelValues(req.Model, string(req.Task), statusError).Inc()

		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}

		c.circuit.RecordFailure()

		return Response{}, fmt.Errorf(errOpenAIChatCompletion, classifyProviderError(err))
	}

	c.circuit.RecordSuccess()
	observability.LLMRequests.WithLabelValues(req.Model, string(req.Task), statusOK).Inc()

	out, err := responseFrom(resp)
	if err != nil {
		return Response{}, err
	}

	c.recordUsage(req, out)

	return out, nil
}

func (c *openaiClient) recordUsage(req Request, out Response) {
	observability.LLMTokens.WithLabelValues(req.Model).Add(float64(out.TotalTokens))

	if c.budget != nil {
		c.budget.RecordTokens(out.TotalTokens)
	}

	if out.Truncated() {
		c.logger.Warn().
			Str(logKeyTask, string(req.Task)).
			Str(logKeyModel, req.Model).
			Int(logKeyMaxTokens, req.MaxTokens).
			Int(logKeyOutputTokens, out.CompletionTokens).
			Msg(logMsgTruncated)
	}
}

// UploadBatchFile uploads an NDJSON job file with purpose "batch".
func (c *openaiClient) UploadBatchFile(ctx context.Context, name string, data []byte) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf(errRateLimiter, err)
	}

	file, err := c.client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    name,
		Bytes:   data,
		Purpose: batchFilePurpose,
	})
	if err != nil {
		return "", fmt.Errorf(errOpenAIFiles, classifyProviderError(err))
	}

	c.logger.Debug().Str(logKeyFileID, file.ID).Int("bytes", len(data)).Msg("uploaded batch input file")

	return file.ID, nil
}

// CreateBatch starts a chat-completions batch over an uploaded file.
func (c *openaiClient) CreateBatch(ctx context.Context, inputFileID string, metadata map[string]any) (domain.BatchJob, error) {
	window := c.cfg.BatchCompletionWindow
	if window == "" {
		window = defaultBatchWindow
	}

	resp, err := c.client.CreateBatch(ctx, openai.CreateBatchRequest{
		InputFileID:      inputFileID,
		Endpoint:         openai.BatchEndpointChatCompletions,
		CompletionWindow: window,
		Metadata:         metadata,
	})
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf(errOpenAIBatch, classifyProviderError(err))
	}

	c.logger.Info().Str(logKeyBatchID, resp.ID).Str(logKeyFileID, inputFileID).Msg("batch created")

	return toBatchJob(resp.Batch), nil
}

// RetrieveBatch fetches the current state of a batch.
func (c *openaiClient) RetrieveBatch(ctx context.Context, batchID string) (domain.BatchJob, error) {
	resp, err := c.client.RetrieveBatch(ctx, batchID)
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf(errOpenAIBatch, classifyProviderError(err))
	}

	return toBatchJob(resp.Batch), nil
}

// CancelBatch asks the provider to stop a batch.
func (c *openaiClient) CancelBatch(ctx context.Context, batchID string) (domain.BatchJob, error) {
	resp, err := c.client.CancelBatch(ctx, batchID)
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf(errOpenAIBatch, classifyProviderError(err))
	}

	return toBatchJob(resp.Batch), nil
}

// DownloadFile reads a whole output or error file.
func (c *openaiClient) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	raw, err := c.client.GetFileContent(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf(errOpenAIFiles, classifyProviderError(err))
	}
	defer raw.Close()

	data, err := io.ReadAll(raw)
	if err != nil {
		return nil, fmt.Errorf(errOpenAIFiles, err)
	}

	return data, nil
}

func toBatchJob(b openai.Batch) domain.BatchJob {
	job := domain.BatchJob{
		ID:          b.ID,
		Status:      domain.BatchStatus(b.Status),
		InputFileID: b.InputFileID,
		RequestCounts: domain.RequestCounts{
			Total:     b.RequestCounts.Total,
			Completed: b.RequestCounts.Completed,
			Failed:    b.RequestCounts.Failed,
		},
	}

	if b.OutputFileID != nil {
		job.OutputFileID = *b.OutputFileID
	}

	if b.ErrorFileID != nil {
		job.ErrorFileID = *b.ErrorFileID
	}

	if b.CreatedAt > 0 {
		job.CreatedAt = time.Unix(int64(b.CreatedAt), 0).UTC()
	}

	return job
}

// classifyProviderError tags rate limiting and server-side failures with the
// matching sentinel while keeping the provider error in the chain.
func classifyProviderError(err error) error {
	var (
		apiErr *openai.APIError
		reqErr *openai.RequestError
		status int
	)

	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return err
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", errors.ErrRateLimited, err)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w", errors.ErrProviderUnavailable, err)
	default:
		return err
	}
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
)

const mockConfidence = 0.9

var (
	mockTickerRegex = regexp.MustCompile(`\$([A-Za-z]{1,6})`)
	mockClauseRegex = regexp.MustCompile(`[,;\n]`)
)

var mockCrypto = map[string]struct{}{"BTC": {}, "ETH": {}, "SOL": {}}

// mockProvider answers deterministically from the prompt text so local runs and
// tests work without network access. Batches complete as soon as they are created.
type mockProvider struct {
	mu      sync.Mutex
	seq     int
	files   map[string][]byte
	batches map[string]domain.BatchJob
	now     func() time.Time
}

// NewMockProvider creates an in-memory provider.
func NewMockProvider() Provider {
	return &mockProvider{
		files:   make(map[string][]byte),
		batches: make(map[string]domain.BatchJob),
		now:     time.Now,
	}
}

// Complete implements Client.
func (p *mockProvider) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	content, err := mockContent(req.Task, req.User)
	if err != nil {
		return Response{}, err
	}

	return Response{
		Content:      content,
		Model:        req.Model,
		TotalTokens:  len(req.User) / 4,
		FinishReason: string(openai.FinishReasonStop),
	}, nil
}

func mockContent(task Task, text string) (string, error) {
	tickers := mockTickers(text)

	var v any

	switch task {
	case TaskTriage:
		verdict := TriageVerdict{
			IsNoise:              len(tickers) == 0,
			HasActionableContent: len(tickers) > 0,
			TickersPresent:       tickers,
		}
		if verdict.IsNoise {
			verdict.SkipReason = "no tickers"
		}

		v = verdict
	default:
		v = ParseResult{Ideas: mockIdeas(text, tickers)}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("mock response: %w", err)
	}

	return string(b), nil
}

func mockTickers(text string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)

	for _, m := range mockTickerRegex.FindAllStringSubmatch(text, -1) {
		t := strings.ToUpper(m[1])
		if _, ok := seen[t]; ok {
			continue
		}

		seen[t] = struct{}{}
		out = append(out, t)
	}

	return out
}

func mockIdeas(text string, tickers []string) []ParsedIdea {
	ideas := make([]ParsedIdea, 0, len(tickers))

	for _, t := range tickers {
		line := mockLineFor(text, t)
		direction, action := mockDirection(line)

		instrument := domain.InstrumentEquity
		if _, ok := mockCrypto[t]; ok {
			instrument = domain.InstrumentCrypto
		}

		ideas = append(ideas, ParsedIdea{
			IdeaText:      line,
			IdeaSummary:   fmt.Sprintf("%s view on %s", direction, t),
			PrimarySymbol: t,
			Symbols:       []string{t},
			Instrument:    instrument,
			Direction:     direction,
			Action:        action,
			TimeHorizon:   domain.HorizonUnknown,
			Levels:        []domain.Level{},
			Labels:        []string{},
			Confidence:    mockConfidence,
		})
	}

	return ideas
}

func mockLineFor(text, ticker string) string {
	for _, clause := range mockClauseRegex.Split(text, -1) {
		if strings.Contains(strings.ToUpper(clause), "$"+ticker) {
			return strings.TrimSpace(clause)
		}
	}

	return strings.TrimSpace(text)
}

func mockDirection(line string) (direction, action string) {
	lower := strings.ToLower(line)

	switch {
	case strings.Contains(lower, "short") || strings.Contains(lower, "puts") || strings.Contains(lower, "sell"):
		return domain.DirectionShort, domain.ActionSell
	case strings.Contains(lower, "long") || strings.Contains(lower, "calls") || strings.Contains(lower, "buy") || strings.Contains(lower, "bought"):
		return domain.DirectionLong, domain.ActionBuy
	default:
		return domain.DirectionNeutral, domain.ActionWatch
	}
}

// UploadBatchFile implements BatchClient.
func (p *mockProvider) UploadBatchFile(_ context.Context, _ string, data []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	id := fmt.Sprintf("file-mock-%d", p.seq)
	p.files[id] = bytes.Clone(data)

	return id, nil
}

// CreateBatch implements BatchClient. The batch is answered immediately.
func (p *mockProvider) CreateBatch(_ context.Context, inputFileID string, _ map[string]any) (domain.BatchJob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	input, ok := p.files[inputFileID]
	if !ok {
		return domain.BatchJob{}, fmt.Errorf("%w: file %s", errors.ErrNotFound, inputFileID)
	}

	output, counts, err := mockRunBatch(input)
	if err != nil {
		return domain.BatchJob{}, err
	}

	p.seq++
	outputID := fmt.Sprintf("file-mock-%d", p.seq)
	p.files[outputID] = output

	p.seq++
	job := domain.BatchJob{
		ID:            fmt.Sprintf("batch_mock_%d", p.seq),
		Status:        domain.BatchCompleted,
		InputFileID:   inputFileID,
		OutputFileID:  outputID,
		RequestCounts: counts,
		CreatedAt:     p.now().UTC(),
	}
	p.batches[job.ID] = job

	return job, nil
}

func mockRunBatch(input []byte) ([]byte, domain.RequestCounts, error) {
	var (
		out    bytes.Buffer
		counts domain.RequestCounts
	)

	for _, raw := range bytes.Split(input, []byte("\n")) {
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		var line openai.BatchChatCompletionRequest
		if err := json.Unmarshal(raw, &line); err != nil {
			return nil, counts, fmt.Errorf("%w: %w", errors.ErrMalformedLine, err)
		}

		counts.Total++

		task := TaskTriage
		if rf := line.Body.ResponseFormat; rf != nil && rf.JSONSchema != nil && rf.JSONSchema.Name == ParseSchemaName {
			task = TaskParse
		}

		var user string
		if n := len(line.Body.Messages); n > 0 {
			user = line.Body.Messages[n-1].Content
		}

		content, err := mockContent(task, user)
		if err != nil {
			return nil, counts, err
		}

		body, err := json.Marshal(openai.ChatCompletionResponse{
			Model: line.Body.Model,
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				FinishReason: openai.FinishReasonStop,
			}},
		})
		if err != nil {
			return nil, counts, fmt.Errorf("mock batch body: %w", err)
		}

		encoded, err := json.Marshal(BatchOutputLine{
			ID:       fmt.Sprintf("batch_req_%d", counts.Total),
			CustomID: line.CustomID,
			Response: &BatchLineResponse{StatusCode: 200, Body: body},
		})
		if err != nil {
			return nil, counts, fmt.Errorf("mock batch line: %w", err)
		}

		out.Write(encoded)
		out.WriteByte('\n')

		counts.Completed++
	}

	return out.Bytes(), counts, nil
}

// RetrieveBatch implements BatchClient.
func (p *mockProvider) RetrieveBatch(_ context.Context, batchID string) (domain.BatchJob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	job, ok := p.batches[batchID]
	if !ok {
		return domain.BatchJob{}, fmt.Errorf("%w: batch %s", errors.ErrNotFound, batchID)
	}

	return job, nil
}

// CancelBatch implements BatchClient. Completed mock batches stay completed.
func (p *mockProvider) CancelBatch(ctx context.Context, batchID string) (domain.BatchJob, error) {
	return p.RetrieveBatch(ctx, batchID)
}

// DownloadFile implements BatchClient.
func (p *mockProvider) DownloadFile(_ context.Context, fileID string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, ok := p.files[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: file %s", errors.ErrNotFound, fileID)
	}

	return bytes.Clone(data), nil
}

var _ Provider = (*mockProvider)(nil)

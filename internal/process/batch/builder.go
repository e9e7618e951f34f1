package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/core/llm"
	"github.com/lueurxax/trade-idea-parser/internal/process/ingest"
	"github.com/lueurxax/trade-idea-parser/internal/process/preprocess"
)

// BuildOptions selects the models written into the job file.
type BuildOptions struct {
	PrimaryModel     string
	EscalationModel  string
	LongContextChars int
	MaxTokens        int
	PromptVersion    string
}

// Build is the result of turning pending messages into a job file.
type Build struct {
	File []byte
	// Lines is the number of requests in File.
	Lines int
	// MessageIDs lists messages with at least one line, in input order.
	MessageIDs []string
	// Skipped holds prefilter rejections, ready to be applied.
	Skipped []ingest.Outcome
}

type Builder struct {
	prep *preprocess.Preprocessor
	opts BuildOptions
}

func NewBuilder(prep *preprocess.Preprocessor, opts BuildOptions) *Builder {
	if opts.EscalationModel == "" {
		opts.EscalationModel = opts.PrimaryModel
	}

	return &Builder{prep: prep, opts: opts}
}

// Build writes one NDJSON parse request per chunk. Messages the prefilter rejects
// produce no lines; their skipped outcome carries the same verdict reason.
func (b *Builder) Build(messages []domain.Message) (Build, error) {
	var (
		out Build
		buf bytes.Buffer
	)

	for _, m := range messages {
		prepared := b.prep.Prepare(m)
		if prepared.Skip() {
			o := ingest.Skipped(m.ID, string(prepared.Verdict.Reason))
			o.PromptVersion = b.opts.PromptVersion
			out.Skipped = append(out.Skipped, o)

			continue
		}

		for _, chunk := range prepared.Chunks {
			req := llm.ParseRequest(b.model(chunk), b.opts.PromptVersion, b.opts.MaxTokens, chunk)

			line, err := json.Marshal(llm.BatchLine(FormatCustomID(m.ID, chunk.Index), req))
			if err != nil {
				return Build{}, fmt.Errorf("encode line for message %s chunk %d: %w", m.ID, chunk.Index, err)
			}

			buf.Write(line)
			buf.WriteByte('\n')

			out.Lines++
		}

		if len(prepared.Chunks) > 0 {
			out.MessageIDs = append(out.MessageIDs, m.ID)
		}
	}

	out.File = buf.Bytes()

	return out, nil
}

func (b *Builder) model(chunk domain.Chunk) string {
	if b.opts.LongContextChars > 0 && utf8.RuneCountInString(chunk.Text) > b.opts.LongContextChars {
		return b.opts.EscalationModel
	}

	return b.opts.PrimaryModel
}

package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gobelinus/review-system-microservice-sub000/internal/logger"
)

// maxLineBytes bounds a single line; provider files occasionally carry very
// long review comments but never legitimately exceed this.
const maxLineBytes = 1024 * 1024

// ParseStats counts what one parser run saw.
type ParseStats struct {
	LinesSeen      int `json:"lines_seen"`
	RecordsParsed  int `json:"records_parsed"`
	ParseErrors    int `json:"parse_errors"`
	BatchesEmitted int `json:"batches_emitted"`
	BatchErrors    int `json:"batch_errors"`
}

// BatchHandler consumes one bounded batch of parsed records. An error from
// the handler is counted against the run but does not stop later batches.
type BatchHandler func(ctx context.Context, batch []RawReview) error

// LineParser reads a review file as a sequence of independent JSON records,
// one per non-blank line, without buffering the whole file. A line that
// fails to parse is skipped and counted; one corrupt line in a large file
// must not abort the file.
type LineParser struct {
	batchSize int
	logger    *logger.Logger
}

// NewLineParser creates a LineParser.
// Parameters:
//   - batchSize: records buffered before the batch handler fires; values
//     below 1 fall back to 500.
//   - log: logger instance; nil uses the default logger.
// Returns:
//   - *LineParser: initialized parser.
func NewLineParser(batchSize int, log *logger.Logger) *LineParser {
	if batchSize < 1 {
		batchSize = 500
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &LineParser{batchSize: batchSize, logger: log}
}

// Parse materializes every record in the stream. Intended for small files
// and tests; large files should use ParseBatches.
// Parameters:
//   - r: byte stream over the file content.
// Returns:
//   - []RawReview: all successfully parsed records in order.
//   - *ParseStats: line and error counters for the run.
//   - error: non-nil only for a read failure on the underlying stream.
func (p *LineParser) Parse(r io.Reader) ([]RawReview, *ParseStats, error) {
	var records []RawReview
	stats, err := p.scan(r, func(rec RawReview) {
		records = append(records, rec)
	})
	return records, stats, err
}

// ParseBatches streams the file through a bounded buffer, invoking handler
// each time batchSize records accumulate and once more for the final partial
// batch. Peak memory is bounded by batchSize regardless of file size.
// Parameters:
//   - ctx: context checked at batch boundaries.
//   - r: byte stream over the file content.
//   - handler: batch consumer; its errors are counted, not fatal.
// Returns:
//   - *ParseStats: counters including batches emitted and handler errors.
//   - error: non-nil for a stream read failure or context cancellation.
func (p *LineParser) ParseBatches(ctx context.Context, r io.Reader, handler BatchHandler) (*ParseStats, error) {
	buffer := make([]RawReview, 0, p.batchSize)

	flush := func(stats *ParseStats) {
		if len(buffer) == 0 {
			return
		}
		batch := make([]RawReview, len(buffer))
		copy(batch, buffer)
		buffer = buffer[:0]
		stats.BatchesEmitted++
		if err := handler(ctx, batch); err != nil {
			stats.BatchErrors++
			p.logger.WithError(err).WithField(logger.FieldCount, len(batch)).
				Warn("Batch handler failed, continuing with next batch")
		}
	}

	stats, err := p.scanCtx(ctx, r, func(rec RawReview, stats *ParseStats) {
		buffer = append(buffer, rec)
		if len(buffer) >= p.batchSize {
			flush(stats)
		}
	})
	if err != nil {
		return stats, err
	}
	flush(stats)
	return stats, nil
}

// scan drives the line loop without context checks.
func (p *LineParser) scan(r io.Reader, emit func(RawReview)) (*ParseStats, error) {
	return p.scanCtx(context.Background(), r, func(rec RawReview, _ *ParseStats) { emit(rec) })
}

func (p *LineParser) scanCtx(ctx context.Context, r io.Reader, emit func(RawReview, *ParseStats)) (*ParseStats, error) {
	stats := &ParseStats{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		stats.LinesSeen++

		var rec RawReview
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			stats.ParseErrors++
			p.logger.WithField("line", stats.LinesSeen).WithError(err).
				Debug("Skipping malformed line")
			continue
		}

		stats.RecordsParsed++
		emit(rec, stats)
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read review stream: %w", err)
	}
	return stats, nil
}

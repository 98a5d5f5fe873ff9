// Package batch masks log exports on disk, one message per record.
package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/raaihank/logmask/internal/masking"
)

// HitRecorder accumulates per-rule match counts
type HitRecorder interface {
	RecordFindings(ctx context.Context, findings []masking.Finding) error
}

// Processor masks the message field of every record in a file and writes
// the records, in order, to an output of the same format.
type Processor struct {
	masker *masking.Masker
	hits   HitRecorder
	config *Config
	logger *zap.Logger
}

// row is one record in flight. Only message is rewritten; the other
// columns or keys are written back as read.
type row struct {
	message string
	fields  []string
	object  map[string]json.RawMessage
}

type outcome struct {
	findings []masking.Finding
	changed  bool
	err      error
}

// NewProcessor creates a new batch processor
func NewProcessor(masker *masking.Masker, config *Config, logger *zap.Logger) *Processor {
	if config == nil {
		config = &Config{}
	}
	return &Processor{
		masker: masker,
		config: config.withDefaults(),
		logger: logger,
	}
}

// WithHitRecorder reports findings of each batch to h
func (p *Processor) WithHitRecorder(h HitRecorder) *Processor {
	p.hits = h
	return p
}

// ProcessFile masks inputPath into outputPath. The format is detected from
// the input extension.
func (p *Processor) ProcessFile(ctx context.Context, inputPath, outputPath string) (*Result, error) {
	format := DetectFileFormat(inputPath)
	p.logger.Info("Starting batch masking",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.String("format", string(format)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	result, err := p.Process(ctx, format, in, out)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close output file: %w", closeErr)
	}
	return result, err
}

// Process masks records read from in and writes them to out
func (p *Processor) Process(ctx context.Context, format FileFormat, in io.Reader, out io.Writer) (*Result, error) {
	start := time.Now()
	result := &Result{Findings: make(map[string]int64)}

	var err error
	switch format {
	case FormatCSV:
		err = p.processCSV(ctx, in, out, result)
	case FormatJSON:
		err = p.processJSON(ctx, in, out, result)
	case FormatParquet:
		err = p.processParquet(ctx, in, out, result)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	result.Duration = time.Since(start)
	if err != nil {
		return result, fmt.Errorf("%s processing failed: %w", format, err)
	}

	p.logger.Info("Batch masking completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("masked", result.Masked),
		zap.Int64("unchanged", result.Unchanged),
		zap.Int64("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// processCSV masks the message column and keeps every other column
func (p *Processor) processCSV(ctx context.Context, in io.Reader, out io.Writer, result *Result) error {
	reader := csv.NewReader(in)

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), MessageField) {
			col = i
			break
		}
	}
	if col < 0 {
		return fmt.Errorf("CSV header has no %q column", MessageField)
	}

	writer := csv.NewWriter(out)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	return p.processBatches(ctx, func() ([]*row, error) {
		var batch []*row
		for len(batch) < p.config.BatchSize {
			fields, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				// the parse error carries a position, never the field text
				p.logger.Warn("Skipping malformed CSV record", zap.Error(err))
				result.Failed++
				p.addError(result, err.Error())
				continue
			}
			batch = append(batch, &row{message: fields[col], fields: fields})
		}
		return batch, nil
	}, func(batch []*row) error {
		for _, r := range batch {
			r.fields[col] = r.message
			if err := writer.Write(r.fields); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	}, result)
}

// processJSON masks the message key of one JSON object per line. A
// non-string message is masked as its JSON text.
func (p *Processor) processJSON(ctx context.Context, in io.Reader, out io.Writer, result *Result) error {
	decoder := json.NewDecoder(in)
	encoder := json.NewEncoder(out)
	encoder.SetEscapeHTML(false)

	return p.processBatches(ctx, func() ([]*row, error) {
		var batch []*row
		for len(batch) < p.config.BatchSize {
			var object map[string]json.RawMessage
			err := decoder.Decode(&object)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to decode JSON record: %w", err)
			}

			r := &row{object: object}
			if raw, ok := object[MessageField]; ok {
				if err := json.Unmarshal(raw, &r.message); err != nil {
					r.message = string(raw)
				}
			}
			batch = append(batch, r)
		}
		return batch, nil
	}, func(batch []*row) error {
		for _, r := range batch {
			if _, ok := r.object[MessageField]; ok {
				raw, err := json.Marshal(r.message)
				if err != nil {
					return err
				}
				r.object[MessageField] = raw
			}
			if err := encoder.Encode(r.object); err != nil {
				return err
			}
		}
		return nil
	}, result)
}

// processParquet masks the message column. The output holds only that
// column.
func (p *Processor) processParquet(ctx context.Context, in io.Reader, out io.Writer, result *Result) error {
	input, ok := in.(io.ReaderAt)
	if !ok {
		data, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("failed to read Parquet input: %w", err)
		}
		input = bytes.NewReader(data)
	}

	reader := parquet.NewReader(input)
	defer reader.Close()

	writer := parquet.NewWriter(out, parquet.SchemaOf(new(Record)))

	err := p.processBatches(ctx, func() ([]*row, error) {
		var batch []*row
		for len(batch) < p.config.BatchSize {
			var record Record
			err := reader.Read(&record)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read Parquet record: %w", err)
			}
			batch = append(batch, &row{message: record.Message})
		}
		return batch, nil
	}, func(batch []*row) error {
		for _, r := range batch {
			if err := writer.Write(&Record{Message: r.message}); err != nil {
				return err
			}
		}
		return nil
	}, result)
	if err != nil {
		return err
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish Parquet output: %w", err)
	}
	return nil
}

// processBatches reads, masks and writes batches until the input is drained
func (p *Processor) processBatches(ctx context.Context, readBatch func() ([]*row, error), writeBatch func([]*row) error, result *Result) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := readBatch()
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		p.processBatch(ctx, batch, result)

		if err := writeBatch(batch); err != nil {
			return fmt.Errorf("failed to write batch: %w", err)
		}

		before := result.TotalRecords
		result.TotalRecords += int64(len(batch))
		report := int64(p.config.ProgressReport)
		if before/report != result.TotalRecords/report {
			p.logger.Info("Batch masking progress",
				zap.Int64("records_processed", result.TotalRecords),
				zap.Int64("records_failed", result.Failed))
		}
	}
}

// processBatch masks a batch in place across the worker pool
func (p *Processor) processBatch(ctx context.Context, batch []*row, result *Result) {
	outcomes := make([]outcome, len(batch))

	workers := p.config.WorkerCount
	if workers > len(batch) {
		workers = len(batch)
	}

	next := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				outcomes[i] = p.maskRow(batch[i])
			}
		}()
	}
	for i := range batch {
		next <- i
	}
	close(next)
	wg.Wait()

	var findings []masking.Finding
	for i, o := range outcomes {
		switch {
		case o.err != nil:
			result.Failed++
			p.addError(result, fmt.Sprintf("record %d: %v", result.TotalRecords+int64(i)+1, o.err))
		case o.changed:
			result.Masked++
		default:
			result.Unchanged++
		}
		for _, f := range o.findings {
			result.Findings[f.Expression] += int64(f.Count)
		}
		findings = append(findings, o.findings...)
	}

	if p.hits != nil && len(findings) > 0 {
		if err := p.hits.RecordFindings(ctx, findings); err != nil {
			p.logger.Warn("Failed to record findings", zap.Error(err))
		}
	}

	p.logger.Debug("Batch processed", zap.Int("batch_size", len(batch)))
}

func (p *Processor) maskRow(r *row) outcome {
	res, err := p.masker.RenderDetailed(r.message)
	if err != nil {
		r.message = p.config.FailMode.Fallback(r.message)
		return outcome{err: err}
	}

	changed := res.Text != r.message
	r.message = res.Text
	return outcome{findings: res.Findings, changed: changed}
}

func (p *Processor) addError(result *Result, msg string) {
	if len(result.Errors) < p.config.MaxErrors {
		result.Errors = append(result.Errors, msg)
	}
}

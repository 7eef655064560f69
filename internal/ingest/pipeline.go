package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/openveil/pii-gateway/internal/catalog"
)

// Pipeline imports pattern and dictionary datasets into the catalog store.
type Pipeline struct {
	store  *catalog.Store
	config *Config
	logger *zap.Logger
}

// NewPipeline creates an import pipeline. The store may be nil only when the
// config is validate-only or dry-run.
func NewPipeline(store *catalog.Store, config *Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		config: config,
		logger: logger,
	}
}

// ProcessFile imports one dataset file (CSV, Parquet, or JSON lines) into
// the table selected by kind.
func (p *Pipeline) ProcessFile(ctx context.Context, filePath string, kind RecordKind) (*ProcessingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	format := DetectFileFormat(filePath)
	p.logger.Info("Starting catalog import",
		zap.String("file", filePath),
		zap.String("format", string(format)),
		zap.String("kind", string(kind)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Bool("validate_only", p.config.ValidateOnly))

	start := time.Now()
	result := &ProcessingResult{}

	var err error
	switch kind {
	case KindPatterns:
		err = p.processPatterns(ctx, filePath, format, result)
	case KindDictionary:
		err = p.processDictionary(ctx, filePath, format, result)
	default:
		return result, fmt.Errorf("unsupported record kind: %s", kind)
	}
	if err != nil {
		return result, err
	}

	result.Duration = time.Since(start)

	p.logger.Info("Catalog import completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("invalid", result.Invalid),
		zap.Int64("duplicates", result.Duplicates),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("database_time", result.DatabaseTime))

	return result, nil
}

func (p *Pipeline) processPatterns(ctx context.Context, filePath string, format FileFormat, result *ProcessingResult) error {
	readBatch, closeFn, err := p.patternReader(filePath, format, result)
	if err != nil {
		return err
	}
	defer closeFn()

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
			break
		}

		defs := make([]catalog.PatternDefinition, 0, len(batch))
		for _, rec := range batch {
			result.TotalRecords++
			if p.config.ValidateData && !p.validatePattern(rec) {
				result.Invalid++
				continue
			}
			defs = append(defs, catalog.PatternDefinition{
				ID:                  rec.ID,
				Name:                rec.Name,
				Regex:               rec.Regex,
				DataType:            rec.DataType,
				Severity:            strings.ToLower(strings.TrimSpace(rec.Severity)),
				ReplacementTemplate: rec.ReplacementTemplate,
				Category:            rec.Category,
			})
		}

		if err := p.storePatterns(ctx, defs, result); err != nil {
			return err
		}
		p.reportProgress(result)
	}
	return nil
}

func (p *Pipeline) processDictionary(ctx context.Context, filePath string, format FileFormat, result *ProcessingResult) error {
	readBatch, closeFn, err := p.dictionaryReader(filePath, format, result)
	if err != nil {
		return err
	}
	defer closeFn()

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
			break
		}

		entries := make([]catalog.DictionaryEntry, 0, len(batch))
		for _, rec := range batch {
			result.TotalRecords++
			if p.config.ValidateData && !p.validateDictionary(rec) {
				result.Invalid++
				continue
			}
			entries = append(entries, catalog.DictionaryEntry{
				OriginalValue: rec.OriginalValue,
				Pseudonym:     rec.Pseudonym,
				DataType:      rec.DataType,
				Category:      rec.Category,
			})
		}

		if err := p.storeDictionary(ctx, entries, result); err != nil {
			return err
		}
		p.reportProgress(result)
	}
	return nil
}

func (p *Pipeline) storePatterns(ctx context.Context, defs []catalog.PatternDefinition, result *ProcessingResult) error {
	if len(defs) == 0 {
		return nil
	}
	if p.config.ValidateOnly || p.config.DryRun {
		result.ProcessedOK += int64(len(defs))
		return nil
	}

	dbStart := time.Now()
	batchResult, err := p.store.UpsertPatterns(ctx, defs)
	if err != nil {
		result.ProcessedFailed += int64(len(defs))
		result.Errors = append(result.Errors, err.Error())
		return fmt.Errorf("pattern batch insert failed: %w", err)
	}
	result.DatabaseTime += time.Since(dbStart)
	result.ProcessedOK += batchResult.Inserted
	result.Duplicates += batchResult.Skipped
	return nil
}

func (p *Pipeline) storeDictionary(ctx context.Context, entries []catalog.DictionaryEntry, result *ProcessingResult) error {
	if len(entries) == 0 {
		return nil
	}
	if p.config.ValidateOnly || p.config.DryRun {
		result.ProcessedOK += int64(len(entries))
		return nil
	}

	dbStart := time.Now()
	batchResult, err := p.store.UpsertDictionary(ctx, entries)
	if err != nil {
		result.ProcessedFailed += int64(len(entries))
		result.Errors = append(result.Errors, err.Error())
		return fmt.Errorf("dictionary batch insert failed: %w", err)
	}
	result.DatabaseTime += time.Since(dbStart)
	result.ProcessedOK += batchResult.Inserted
	result.Duplicates += batchResult.Skipped
	return nil
}

// patternReader returns a batched reader for pattern records in the given
// format, plus a close function for the underlying file.
func (p *Pipeline) patternReader(filePath string, format FileFormat, result *ProcessingResult) (func() ([]PatternRecord, error), func(), error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input file: %w", err)
	}

	switch format {
	case FormatCSV:
		reader := csv.NewReader(file)
		header, err := reader.Read()
		if err != nil {
			file.Close()
			return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
		}
		cols := columnIndex(header)
		p.logger.Info("CSV header detected", zap.Strings("columns", header))

		return func() ([]PatternRecord, error) {
			var batch []PatternRecord
			for len(batch) < p.config.BatchSize {
				record, err := reader.Read()
				if err == io.EOF {
					break
				}
				if err != nil {
					p.logger.Warn("Failed to read CSV record", zap.Error(err))
					result.Invalid++
					continue
				}
				batch = append(batch, PatternRecord{
					ID:                  field(record, cols, "id"),
					Name:                field(record, cols, "name"),
					Regex:               field(record, cols, "regex"),
					DataType:            field(record, cols, "data_type"),
					Severity:            field(record, cols, "severity"),
					ReplacementTemplate: field(record, cols, "replacement_template"),
					Category:            field(record, cols, "category"),
				})
			}
			return batch, nil
		}, func() { file.Close() }, nil

	case FormatParquet:
		reader := parquet.NewReader(file)
		return func() ([]PatternRecord, error) {
				var batch []PatternRecord
				for len(batch) < p.config.BatchSize {
					var record PatternRecord
					err := reader.Read(&record)
					if err == io.EOF {
						break
					}
					if err != nil {
						p.logger.Warn("Failed to read Parquet record", zap.Error(err))
						result.Invalid++
						continue
					}
					batch = append(batch, record)
				}
				return batch, nil
			}, func() {
				reader.Close()
				file.Close()
			}, nil

	case FormatJSON:
		decoder := json.NewDecoder(file)
		return func() ([]PatternRecord, error) {
			var batch []PatternRecord
			for len(batch) < p.config.BatchSize {
				var record PatternRecord
				err := decoder.Decode(&record)
				if err == io.EOF {
					break
				}
				if err != nil {
					p.logger.Warn("Failed to read JSON record", zap.Error(err))
					result.Invalid++
					continue
				}
				batch = append(batch, record)
			}
			return batch, nil
		}, func() { file.Close() }, nil
	}

	file.Close()
	return nil, nil, fmt.Errorf("unsupported file format: %s", format)
}

func (p *Pipeline) dictionaryReader(filePath string, format FileFormat, result *ProcessingResult) (func() ([]DictionaryRecord, error), func(), error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input file: %w", err)
	}

	switch format {
	case FormatCSV:
		reader := csv.NewReader(file)
		header, err := reader.Read()
		if err != nil {
			file.Close()
			return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
		}
		cols := columnIndex(header)
		p.logger.Info("CSV header detected", zap.Strings("columns", header))

		return func() ([]DictionaryRecord, error) {
			var batch []DictionaryRecord
			for len(batch) < p.config.BatchSize {
				record, err := reader.Read()
				if err == io.EOF {
					break
				}
				if err != nil {
					p.logger.Warn("Failed to read CSV record", zap.Error(err))
					result.Invalid++
					continue
				}
				batch = append(batch, DictionaryRecord{
					OriginalValue: field(record, cols, "original_value"),
					Pseudonym:     field(record, cols, "pseudonym"),
					DataType:      field(record, cols, "data_type"),
					Category:      field(record, cols, "category"),
				})
			}
			return batch, nil
		}, func() { file.Close() }, nil

	case FormatParquet:
		reader := parquet.NewReader(file)
		return func() ([]DictionaryRecord, error) {
				var batch []DictionaryRecord
				for len(batch) < p.config.BatchSize {
					var record DictionaryRecord
					err := reader.Read(&record)
					if err == io.EOF {
						break
					}
					if err != nil {
						p.logger.Warn("Failed to read Parquet record", zap.Error(err))
						result.Invalid++
						continue
					}
					batch = append(batch, record)
				}
				return batch, nil
			}, func() {
				reader.Close()
				file.Close()
			}, nil

	case FormatJSON:
		decoder := json.NewDecoder(file)
		return func() ([]DictionaryRecord, error) {
			var batch []DictionaryRecord
			for len(batch) < p.config.BatchSize {
				var record DictionaryRecord
				err := decoder.Decode(&record)
				if err == io.EOF {
					break
				}
				if err != nil {
					p.logger.Warn("Failed to read JSON record", zap.Error(err))
					result.Invalid++
					continue
				}
				batch = append(batch, record)
			}
			return batch, nil
		}, func() { file.Close() }, nil
	}

	file.Close()
	return nil, nil, fmt.Errorf("unsupported file format: %s", format)
}

// validatePattern checks a pattern record, including that the regex compiles
// and the severity is one of the known tiers.
func (p *Pipeline) validatePattern(rec PatternRecord) bool {
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.Name) == "" {
		p.logger.Debug("Invalid record: missing id or name")
		return false
	}
	if strings.TrimSpace(rec.DataType) == "" {
		p.logger.Debug("Invalid record: missing data_type", zap.String("id", rec.ID))
		return false
	}
	if _, err := regexp.Compile(rec.Regex); err != nil {
		p.logger.Warn("Invalid record: regex does not compile",
			zap.String("id", rec.ID),
			zap.Error(err))
		return false
	}
	if _, err := catalog.ParseSeverity(strings.ToLower(strings.TrimSpace(rec.Severity))); err != nil {
		p.logger.Warn("Invalid record: unknown severity",
			zap.String("id", rec.ID),
			zap.String("severity", rec.Severity))
		return false
	}
	return true
}

func (p *Pipeline) validateDictionary(rec DictionaryRecord) bool {
	if strings.TrimSpace(rec.OriginalValue) == "" || strings.TrimSpace(rec.Pseudonym) == "" {
		p.logger.Debug("Invalid record: missing original_value or pseudonym")
		return false
	}
	if strings.TrimSpace(rec.DataType) == "" {
		p.logger.Debug("Invalid record: missing data_type")
		return false
	}
	return true
}

func (p *Pipeline) reportProgress(result *ProcessingResult) {
	if p.config.ProgressReport <= 0 || result.TotalRecords == 0 {
		return
	}
	if result.TotalRecords%int64(p.config.ProgressReport) == 0 {
		p.logger.Info("Import progress",
			zap.Int64("records_processed", result.TotalRecords),
			zap.Int64("records_ok", result.ProcessedOK),
			zap.Int64("invalid", result.Invalid))
	}
}

// columnIndex maps CSV header names to positions.
func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}

func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

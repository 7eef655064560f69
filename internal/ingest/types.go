package ingest

import (
	"path/filepath"
	"time"
)

// RecordKind selects which catalog table an input file feeds.
type RecordKind string

const (
	KindPatterns   RecordKind = "patterns"
	KindDictionary RecordKind = "dictionary"
)

// PatternRecord is one pattern definition row from an input dataset.
type PatternRecord struct {
	ID                  string `csv:"id" parquet:"id" json:"id"`
	Name                string `csv:"name" parquet:"name" json:"name"`
	Regex               string `csv:"regex" parquet:"regex" json:"regex"`
	DataType            string `csv:"data_type" parquet:"data_type" json:"data_type"`
	Severity            string `csv:"severity" parquet:"severity" json:"severity"`
	ReplacementTemplate string `csv:"replacement_template" parquet:"replacement_template" json:"replacement_template"`
	Category            string `csv:"category" parquet:"category" json:"category"`
}

// DictionaryRecord is one dictionary entry row from an input dataset.
type DictionaryRecord struct {
	OriginalValue string `csv:"original_value" parquet:"original_value" json:"original_value"`
	Pseudonym     string `csv:"pseudonym" parquet:"pseudonym" json:"pseudonym"`
	DataType      string `csv:"data_type" parquet:"data_type" json:"data_type"`
	Category      string `csv:"category" parquet:"category" json:"category"`
}

// ProcessingResult summarizes one import run.
type ProcessingResult struct {
	TotalRecords    int64         `json:"total_records"`
	ProcessedOK     int64         `json:"processed_ok"`
	ProcessedFailed int64         `json:"processed_failed"`
	Invalid         int64         `json:"invalid"`
	Duplicates      int64         `json:"duplicates"`
	Duration        time.Duration `json:"duration"`
	DatabaseTime    time.Duration `json:"database_time"`
	Errors          []string      `json:"errors,omitempty"`
}

// Config contains import pipeline configuration
type Config struct {
	BatchSize      int  `yaml:"batch_size" mapstructure:"batch_size"`
	ValidateData   bool `yaml:"validate_data" mapstructure:"validate_data"`
	ValidateOnly   bool `yaml:"validate_only" mapstructure:"validate_only"`
	DryRun         bool `yaml:"dry_run" mapstructure:"dry_run"`
	ProgressReport int  `yaml:"progress_report" mapstructure:"progress_report"`
}

// FileFormat represents supported input formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch filepath.Ext(filename) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}

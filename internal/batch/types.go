package batch

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/logmask/internal/masking"
)

// MessageField is the column or key holding the log message in every format
const MessageField = "message"

// Record is the parquet row layout for log exports
type Record struct {
	Message string `csv:"message" parquet:"message" json:"message"`
}

// Result represents the result of masking one file
type Result struct {
	TotalRecords int64            `json:"total_records"`
	Masked       int64            `json:"masked"`
	Unchanged    int64            `json:"unchanged"`
	Failed       int64            `json:"failed"`
	Findings     map[string]int64 `json:"findings"`
	Duration     time.Duration    `json:"duration"`
	Errors       []string         `json:"errors,omitempty"`
}

// Config contains batch masking configuration
type Config struct {
	BatchSize      int              `yaml:"batch_size" mapstructure:"batch_size"`           // 1000
	WorkerCount    int              `yaml:"worker_count" mapstructure:"worker_count"`       // 4
	FailMode       masking.FailMode `yaml:"fail_mode" mapstructure:"fail_mode"`             // closed
	MaxErrors      int              `yaml:"max_errors" mapstructure:"max_errors"`           // 100
	ProgressReport int              `yaml:"progress_report" mapstructure:"progress_report"` // 10000
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.BatchSize <= 0 {
		out.BatchSize = 1000
	}
	if out.WorkerCount <= 0 {
		out.WorkerCount = 4
	}
	if out.FailMode == "" {
		out.FailMode = masking.FailClosed
	}
	if out.MaxErrors <= 0 {
		out.MaxErrors = 100
	}
	if out.ProgressReport <= 0 {
		out.ProgressReport = 10000
	}
	return &out
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension. JSON input is one
// object per line.
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}

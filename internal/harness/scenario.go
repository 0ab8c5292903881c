package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/qcmask/internal/qc"
)

// Scenario defines one reconciliation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Channel is the "STA.CHAN" every segment and record defaults to.
	Channel string `yaml:"channel"`

	// MinimumGap overrides the reconciler's gap threshold ("1s", "500ms").
	MinimumGap string `yaml:"minimum_gap,omitempty"`

	// Segments are stored before any record is applied.
	Segments []SegmentSpec `yaml:"segments,omitempty"`

	// Records are ingested in order.
	Records []RecordSpec `yaml:"records"`

	// Derive optionally derives masks after the last record.
	Derive *DeriveSpec `yaml:"derive,omitempty"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// SegmentSpec is a pre-existing single-version segment.
type SegmentSpec struct {
	Start    time.Time   `yaml:"start"`
	End      time.Time   `yaml:"end"`
	Category qc.Category `yaml:"category"`
	Type     qc.Type     `yaml:"type,omitempty"`
}

// RecordSpec is a provider record with scenario defaults.
type RecordSpec struct {
	RecordID    int64     `yaml:"record_id"`
	Station     string    `yaml:"station,omitempty"`
	Channel     string    `yaml:"channel,omitempty"`
	Start       time.Time `yaml:"start"`
	End         time.Time `yaml:"end"`
	SampleRate  float64   `yaml:"sample_rate,omitempty"`
	MaskType    int       `yaml:"mask_type"`
	Author      string    `yaml:"author,omitempty"`
	LoadTime    time.Time `yaml:"load_time,omitempty"`
	StartSample int64     `yaml:"start_sample,omitempty"`
	EndSample   int64     `yaml:"end_sample,omitempty"`
}

// DeriveSpec is an inline processing mask definition plus the window to
// derive over. A zero Start or End leaves that side unbounded.
type DeriveSpec struct {
	Name           string              `yaml:"name,omitempty"`
	Operation      string              `yaml:"operation"`
	MergeThreshold string              `yaml:"merge_threshold,omitempty"`
	Allowed        []qc.Classification `yaml:"allowed"`
	Start          time.Time           `yaml:"start,omitempty"`
	End            time.Time           `yaml:"end,omitempty"`
	Save           bool                `yaml:"save,omitempty"`
}

// Assertion validates the result of a scenario.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Record and Outcome are used by outcome.
	Record  int64  `yaml:"record,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Count is used by segment_count and mask_count.
	Count *int `yaml:"count,omitempty"`

	// Start, End and Classification are used by covers.
	Start          time.Time          `yaml:"start,omitempty"`
	End            time.Time          `yaml:"end,omitempty"`
	Classification *qc.Classification `yaml:"classification,omitempty"`
}

// Assertion type constants.
const (
	AssertOutcome      = "outcome"
	AssertSegmentCount = "segment_count"
	AssertCovers       = "covers"
	AssertMaskCount    = "mask_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files directly under dir whose
// base name (without extension) matches filter. An empty filter matches
// everything. Results are in lexical order.
func FindScenarios(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(e.Name(), ext))
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, ok := qc.ParseChannelName(s.Channel); !ok {
		return fmt.Errorf("channel %q must be STA.CHAN", s.Channel)
	}
	if s.MinimumGap != "" {
		if _, err := time.ParseDuration(s.MinimumGap); err != nil {
			return fmt.Errorf("minimum_gap: %w", err)
		}
	}
	if len(s.Records) == 0 && len(s.Segments) == 0 {
		return fmt.Errorf("records or segments are required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, seg := range s.Segments {
		if seg.Start.IsZero() || seg.End.IsZero() {
			return fmt.Errorf("segments[%d]: start and end are required", i)
		}
		if seg.Category == qc.CategoryNone {
			return fmt.Errorf("segments[%d]: category is required", i)
		}
	}

	seen := make(map[int64]bool, len(s.Records))
	for i, rec := range s.Records {
		if rec.RecordID == 0 {
			return fmt.Errorf("records[%d]: record_id is required", i)
		}
		if seen[rec.RecordID] {
			return fmt.Errorf("records[%d]: duplicate record_id %d", i, rec.RecordID)
		}
		seen[rec.RecordID] = true
	}

	if d := s.Derive; d != nil {
		if d.Operation == "" {
			return fmt.Errorf("derive: operation is required")
		}
		if len(d.Allowed) == 0 {
			return fmt.Errorf("derive: allowed list is required and must be non-empty")
		}
		if d.MergeThreshold != "" {
			if _, err := time.ParseDuration(d.MergeThreshold); err != nil {
				return fmt.Errorf("derive: merge_threshold: %w", err)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], s); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, s *Scenario) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertOutcome:
		if a.Record == 0 || a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: record and outcome are required for outcome", index)
		}
	case AssertSegmentCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for segment_count", index)
		}
	case AssertCovers:
		if a.Start.IsZero() || a.End.IsZero() || a.Classification == nil {
			return fmt.Errorf("assertions[%d]: start, end and classification are required for covers", index)
		}
	case AssertMaskCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for mask_count", index)
		}
		if s.Derive == nil {
			return fmt.Errorf("assertions[%d]: mask_count requires a derive block", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

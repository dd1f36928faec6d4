package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/ir"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// Scenario describes one recording session and what it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Interface is the descriptor the hosted service reports and the
	// analyzer used to resolve method names and render the log.
	Interface string `yaml:"interface"`

	// Analyzers is a directory of interface definitions, relative to the
	// scenario file. When empty, steps must use numeric codes and the log
	// is rendered with the raw analyzer.
	Analyzers string `yaml:"analyzers,omitempty"`

	// ProtoPaths are import paths for proto-encoded definitions.
	ProtoPaths []string `yaml:"proto_paths,omitempty"`

	// Setup calls run before recording starts.
	Setup []CallStep `yaml:"setup,omitempty"`

	// Flow calls are recorded.
	Flow []CallStep `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions"`
}

// CallStep is one call on the hosted service.
type CallStep struct {
	// Call is a method name from the interface definition.
	Call string `yaml:"call,omitempty"`

	// Code is used when Call is empty.
	Code uint32 `yaml:"code,omitempty"`

	// Args is encoded as a JSON object. Keys may be dotted paths.
	Args map[string]any `yaml:"args,omitempty"`

	// Data is sent verbatim. Mutually exclusive with Args.
	Data *string `yaml:"data,omitempty"`

	// Oneway forces the oneway flag for a numeric code. Named methods take
	// it from the definition.
	Oneway bool `yaml:"oneway,omitempty"`

	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// label names the step in errors and traces.
func (s CallStep) label() string {
	if s.Call != "" {
		return s.Call
	}
	return fmt.Sprintf("code %d", s.Code)
}

// ExpectClause checks what the caller received.
type ExpectClause struct {
	// Status is a symbolic status name or decimal value. Empty means NO_ERROR.
	Status string `yaml:"status,omitempty"`

	// Reply holds expected JSON reply fields, keyed by gjson path. Subset
	// match: fields not named are ignored.
	Reply map[string]any `yaml:"reply,omitempty"`
}

// Assertion validates the recorded log.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Method is a method name or decimal code (log_contains, log_status).
	Method string `yaml:"method,omitempty"`

	// Args are expected request fields (log_contains). Subset match.
	Args map[string]any `yaml:"args,omitempty"`

	// Methods is the expected order (log_order).
	Methods []string `yaml:"methods,omitempty"`

	// Status is the recorded status to count (log_status).
	Status string `yaml:"status,omitempty"`

	// Count is the expected number of records (log_count, log_status).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertLogCount      = "log_count"
	AssertLogContains   = "log_contains"
	AssertLogOrder      = "log_order"
	AssertLogStatus     = "log_status"
	AssertReplayMatches = "replay_matches"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected and Analyzers is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if scenario.Analyzers != "" {
		if !filepath.IsAbs(scenario.Analyzers) {
			scenario.Analyzers = filepath.Join(filepath.Dir(path), scenario.Analyzers)
		}
		if _, err := os.Stat(scenario.Analyzers); err != nil {
			return nil, fmt.Errorf("%s: analyzers directory: %w", path, err)
		}
	}
	return scenario, nil
}

// ParseScenario decodes and validates a scenario. Relative paths are left
// as written.
func ParseScenario(data []byte) (*Scenario, error) {
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := ir.ValidateServiceName(s.Name); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Interface == "" {
		return fmt.Errorf("interface is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step, s.Analyzers != ""); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step, s.Analyzers != ""); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step CallStep, named bool) error {
	switch {
	case step.Call == "" && step.Code == 0:
		return fmt.Errorf("call or code is required")
	case step.Call != "" && step.Code != 0:
		return fmt.Errorf("call and code are mutually exclusive")
	case step.Call != "" && !named:
		return fmt.Errorf("call %q needs an analyzers directory to resolve", step.Call)
	case step.Args != nil && step.Data != nil:
		return fmt.Errorf("args and data are mutually exclusive")
	}
	if step.Expect != nil && step.Expect.Status != "" {
		if _, err := txlog.ParseStatus(step.Expect.Status); err != nil {
			return fmt.Errorf("expect: %w", err)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertLogCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for log_count", index)
		}
	case AssertLogContains:
		if a.Method == "" {
			return fmt.Errorf("assertions[%d]: method is required for log_contains", index)
		}
	case AssertLogOrder:
		if len(a.Methods) == 0 {
			return fmt.Errorf("assertions[%d]: methods list is required for log_order", index)
		}
	case AssertLogStatus:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for log_status", index)
		}
		if _, err := txlog.ParseStatus(a.Status); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for log_status", index)
		}
	case AssertReplayMatches:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

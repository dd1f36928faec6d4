package harness

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/inspect"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/ipc"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// Render returns the recorded log as the inspect command prints it.
func (r *Result) Render() ([]byte, error) {
	var buf bytes.Buffer
	in := &inspect.Inspector{Analyzer: r.analyzer, Out: &buf}
	if _, err := in.Run(txlog.NewReader(bytes.NewReader(r.Log))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares the rendered log against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass and Errors; an error means
// the scenario could not be executed.
func RunWithGolden(t *testing.T, scenario *Scenario, newHandler func() ipc.Handler) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, newHandler)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already executed result against the golden file
// for scenarioName.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	out, err := result.Render()
	if err != nil {
		return fmt.Errorf("render recording: %w", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, out)
	return nil
}

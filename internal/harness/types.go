package harness

import (
	"github.com/TeamWin/android-device-system-tools-aidl/internal/analyzer"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/replay"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// TraceEvent is one flow call as the caller saw it.
type TraceEvent struct {
	Step    int    `json:"step"` // 1-based position in the flow
	Method  string `json:"method,omitempty"`
	Code    uint32 `json:"code"`
	Oneway  bool   `json:"oneway,omitempty"`
	Request string `json:"request,omitempty"`
	Status  string `json:"status"`
	Reply   string `json:"reply,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds the flow calls in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Log is the recorded log exactly as the service wrote it.
	Log []byte `json:"-"`

	// Records are the decoded transactions of Log.
	Records []txlog.Transaction `json:"-"`

	// Replay is set when the scenario asserts replay_matches.
	Replay *replay.Report `json:"replay,omitempty"`

	analyzer analyzer.Analyzer
	methods  methodTable
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends one flow call.
func (r *Result) AddTrace(ev TraceEvent) {
	ev.Step = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}

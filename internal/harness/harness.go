package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/analyzer"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/ipc"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/ir"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/replay"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/session"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/testutil"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// replaySuffix names the second service instance replay_matches runs against.
const replaySuffix = ".replay"

// harness holds the per-run state of one scenario.
type harness struct {
	dir        ipc.Directory
	recordings string
	clock      *testutil.DeterministicClock
	logger     *slog.Logger
	methods    methodTable
}

// Run executes scenario against a service built by newHandler.
//
// Each run gets a private services directory, a fresh handler and a
// deterministic clock, so the recorded log is byte-identical across runs.
// replay_matches builds a second handler and replays the log against it.
//
// A returned error means the scenario could not be executed. Failed
// expectations and assertions are reported in the result.
func Run(ctx context.Context, scenario *Scenario, newHandler func() ipc.Handler) (*Result, error) {
	a, err := loadAnalyzer(scenario)
	if err != nil {
		return nil, err
	}

	// Socket paths must stay under the sun_path limit, so avoid t.TempDir.
	root, err := os.MkdirTemp("", "harness")
	if err != nil {
		return nil, fmt.Errorf("create scenario directory: %w", err)
	}
	defer os.RemoveAll(root)

	h := &harness{
		dir:        ipc.Directory{Root: filepath.Join(root, "svc")},
		recordings: filepath.Join(root, "rec"),
		clock:      testutil.NewDeterministicClock(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		methods:    newMethodTable(a),
	}

	result := NewResult()
	result.analyzer = a
	result.methods = h.methods

	client, stop, err := h.host(ctx, scenario.Name, scenario.Interface, newHandler())
	if err != nil {
		return nil, err
	}
	defer stop()

	for i, step := range scenario.Setup {
		if _, _, err := h.call(ctx, client, step); err != nil {
			return nil, fmt.Errorf("setup[%d] %s: %w", i, step.label(), err)
		}
	}

	ctl := session.New(h.recordings, h.logger)
	path := ctl.LogPath(scenario.Name)
	if err := ctl.Start(ctx, client, path); err != nil {
		return nil, fmt.Errorf("failed to start recording: %w", err)
	}

	for i, step := range scenario.Flow {
		ev, reply, err := h.call(ctx, client, step)
		if err != nil {
			return nil, fmt.Errorf("flow[%d] %s: %w", i, step.label(), err)
		}
		result.AddTrace(ev)
		for _, msg := range checkExpect(step, ev, reply) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.label(), msg))
		}
	}

	if err := ctl.Stop(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to stop recording: %w", err)
	}

	result.Log, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	result.Records, err = txlog.ReadAll(bytes.NewReader(result.Log))
	if err != nil {
		return nil, fmt.Errorf("failed to decode recording: %w", err)
	}

	if wantsReplay(scenario.Assertions) {
		result.Replay, err = h.replay(ctx, scenario, a, result.Log, newHandler())
		if err != nil {
			return nil, err
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"records", len(result.Records),
		"pass", result.Pass,
	)
	return result, nil
}

// loadAnalyzer returns the analyzer for the scenario's interface.
func loadAnalyzer(s *Scenario) (analyzer.Analyzer, error) {
	if s.Analyzers == "" {
		return analyzer.Raw{Name: s.Interface}, nil
	}
	reg := analyzer.NewRegistry()
	if _, err := analyzer.RegisterDir(reg, s.Analyzers, s.ProtoPaths); err != nil {
		return nil, fmt.Errorf("failed to load analyzers: %w", err)
	}
	return reg.Lookup(s.Interface)
}

// host serves handler as service and connects to it. stop closes the client
// and shuts the server down.
func (h *harness) host(ctx context.Context, service, descriptor string, handler ipc.Handler) (*ipc.Client, func(), error) {
	l, err := h.dir.Listen(service)
	if err != nil {
		return nil, nil, err
	}

	srv := &ipc.Server{
		Descriptor: descriptor,
		Handler:    handler,
		Logger:     h.logger,
		Now:        h.clock.Next,
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, l) }()

	client, err := h.dir.CheckService(ctx, service)
	if err != nil {
		cancel()
		<-done
		return nil, nil, err
	}

	stop := func() {
		client.Close()
		cancel()
		if err := <-done; err != nil {
			h.logger.Warn("service stopped with error", "service", service, "error", err)
		}
	}
	return client, stop, nil
}

// call issues one step and returns its trace event and raw reply.
func (h *harness) call(ctx context.Context, client *ipc.Client, step CallStep) (TraceEvent, []byte, error) {
	code, flags, err := h.methods.resolve(step)
	if err != nil {
		return TraceEvent{}, nil, err
	}
	data, err := encodeRequest(step)
	if err != nil {
		return TraceEvent{}, nil, err
	}

	reply, status, err := client.Transact(ctx, code, data, flags)
	if err != nil {
		return TraceEvent{}, nil, err
	}

	h.logger.Debug("call completed", "method", step.label(), "code", code, "status", status)
	return TraceEvent{
		Method:  h.methods.name(code),
		Code:    code,
		Oneway:  flags&txlog.FlagOneway != 0,
		Request: string(data),
		Status:  status.String(),
		Reply:   string(reply),
	}, reply, nil
}

// replay hosts a fresh handler and replays log against it.
func (h *harness) replay(ctx context.Context, s *Scenario, a analyzer.Analyzer, log []byte, handler ipc.Handler) (*replay.Report, error) {
	client, stop, err := h.host(ctx, s.Name+replaySuffix, s.Interface, handler)
	if err != nil {
		return nil, fmt.Errorf("failed to host replay target: %w", err)
	}
	defer stop()

	v := &replay.Verifier{
		Service:  client,
		Analyzer: a,
		Out:      io.Discard,
		Logger:   h.logger,
	}
	report, err := v.Run(ctx, txlog.NewReader(bytes.NewReader(log)))
	if err != nil {
		return nil, fmt.Errorf("failed to replay recording: %w", err)
	}
	return report, nil
}

// encodeRequest builds the request payload of step.
func encodeRequest(step CallStep) ([]byte, error) {
	if step.Data != nil {
		return []byte(*step.Data), nil
	}
	if step.Args == nil {
		return nil, nil
	}

	keys := make([]string, 0, len(step.Args))
	for k := range step.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := []byte("{}")
	for _, k := range keys {
		var err error
		data, err = sjson.SetBytes(data, k, step.Args[k])
		if err != nil {
			return nil, fmt.Errorf("encode arg %q: %w", k, err)
		}
	}
	return data, nil
}

// checkExpect compares what the caller received with step.Expect.
func checkExpect(step CallStep, ev TraceEvent, reply []byte) []string {
	want := txlog.StatusOK
	if step.Expect != nil && step.Expect.Status != "" {
		want, _ = txlog.ParseStatus(step.Expect.Status)
	}

	var errs []string
	if ev.Status != want.String() {
		errs = append(errs, fmt.Sprintf("expected status %s, received %s", want, ev.Status))
	}
	if step.Expect == nil || len(step.Expect.Reply) == 0 {
		return errs
	}
	if !gjson.ValidBytes(reply) {
		return append(errs, fmt.Sprintf("reply is not JSON: %q", reply))
	}
	return append(errs, matchFields(reply, step.Expect.Reply, "reply")...)
}

// methodTable maps between method names and codes of one interface.
type methodTable struct {
	byName map[string]ir.MethodSig
	byCode map[uint32]ir.MethodSig
}

func newMethodTable(a analyzer.Analyzer) methodTable {
	t := methodTable{
		byName: make(map[string]ir.MethodSig),
		byCode: make(map[uint32]ir.MethodSig),
	}
	sa, ok := a.(*analyzer.SpecAnalyzer)
	if !ok {
		return t
	}
	for _, m := range sa.Spec().Methods {
		t.byName[m.Name] = m
		t.byCode[m.Code] = m
	}
	return t
}

// resolve returns the code and flags for step.
func (t methodTable) resolve(step CallStep) (uint32, uint32, error) {
	if step.Call == "" {
		var flags uint32
		if step.Oneway {
			flags = txlog.FlagOneway
		}
		return step.Code, flags, nil
	}
	m, ok := t.byName[step.Call]
	if !ok {
		return 0, 0, fmt.Errorf("unknown method %q", step.Call)
	}
	var flags uint32
	if m.Oneway || step.Oneway {
		flags = txlog.FlagOneway
	}
	return m.Code, flags, nil
}

// name returns the method name for code, or "" if the interface has none.
func (t methodTable) name(code uint32) string {
	return t.byCode[code].Name
}

// matches reports whether ref, a method name or decimal code, names code.
func (t methodTable) matches(ref string, code uint32) bool {
	if m, ok := t.byName[ref]; ok {
		return m.Code == code
	}
	n, err := strconv.ParseUint(ref, 10, 32)
	return err == nil && uint32(n) == code
}

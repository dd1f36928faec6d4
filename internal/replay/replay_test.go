package replay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/analyzer"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/ir"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/testutil"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

func counterAnalyzer(t *testing.T) analyzer.Analyzer {
	t.Helper()
	a, err := analyzer.NewSpecAnalyzer(&ir.InterfaceSpec{
		Name:     "demo.ICounter",
		Encoding: ir.EncodingJSON,
		Methods: []ir.MethodSig{
			{Name: "add", Code: 1},
			{Name: "get", Code: 2},
			{Name: "reset", Code: 3, Oneway: true},
		},
	}, nil)
	require.NoError(t, err)
	return a
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func counterLog() []byte {
	return testutil.NewLogBuilder("demo.ICounter").
		Add(1, `{"delta":2}`, `{"value":2}`, txlog.StatusOK).
		Add(2, ``, `{"value":2}`, txlog.StatusOK).
		AddOneway(3, `{}`).
		Bytes()
}

func newVerifier(t *testing.T, svc Transactor, out io.Writer) *Verifier {
	return &Verifier{Service: svc, Analyzer: counterAnalyzer(t), Out: out, Logger: quietLogger()}
}

func TestReplayAllMatched(t *testing.T) {
	svc := &testutil.ScriptedTransactor{}
	var out bytes.Buffer

	report, err := newVerifier(t, svc, &out).Run(context.Background(), txlog.NewReader(bytes.NewReader(counterLog())))
	require.NoError(t, err)

	assert.True(t, report.AllMatched)
	assert.Len(t, report.Results, 3)
	assert.Empty(t, report.Mismatches())
	assert.Contains(t, out.String(), "All transactions replayed correctly.\n")

	calls := svc.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []uint32{1, 2, 3}, []uint32{calls[0].Code, calls[1].Code, calls[2].Code})
	assert.Equal(t, `{"delta":2}`, string(calls[0].Data))
	assert.Equal(t, txlog.FlagOneway, calls[2].Flags)
}

func TestReplayMismatchGolden(t *testing.T) {
	svc := &testutil.ScriptedTransactor{
		Script: []testutil.Result{
			{Status: txlog.StatusOK},
			{Status: txlog.StatusDeadObject},
			{Err: errors.New("connection reset")},
		},
	}
	var out bytes.Buffer

	report, err := newVerifier(t, svc, &out).Run(context.Background(), txlog.NewReader(bytes.NewReader(counterLog())))
	require.NoError(t, err)

	assert.False(t, report.AllMatched)
	require.Len(t, report.Results, 3, "a mismatch must not stop the run")

	mismatches := report.Mismatches()
	require.Len(t, mismatches, 2)
	assert.Equal(t, 2, mismatches[0].Index)
	assert.Equal(t, txlog.StatusOK, mismatches[0].Expected)
	assert.Equal(t, txlog.StatusDeadObject, mismatches[0].Actual)
	assert.Equal(t, 3, mismatches[1].Index)
	assert.Equal(t, "connection reset", mismatches[1].Error)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "counter_mismatch", out.Bytes())
}

func TestReplaySendsDeclaredRequestSize(t *testing.T) {
	data := testutil.NewLogBuilder("x").AddTx(txlog.Transaction{
		Code:     1,
		DataSize: 3,
		Data:     []byte("abcdef"),
	}).Bytes()

	svc := &testutil.ScriptedTransactor{}
	_, err := newVerifier(t, svc, io.Discard).Run(context.Background(), txlog.NewReader(bytes.NewReader(data)))
	require.NoError(t, err)

	require.Len(t, svc.Calls(), 1)
	assert.Equal(t, "abc", string(svc.Calls()[0].Data))
}

func TestReplayEmptyLog(t *testing.T) {
	var out bytes.Buffer
	report, err := newVerifier(t, &testutil.ScriptedTransactor{}, &out).
		Run(context.Background(), txlog.NewReader(bytes.NewReader(nil)))
	require.NoError(t, err)
	assert.True(t, report.AllMatched)
	assert.Empty(t, report.Results)
}

func TestReplayMalformedReturnsPartialReport(t *testing.T) {
	data := counterLog()
	data[len(data)-1] ^= 0xff

	svc := &testutil.ScriptedTransactor{}
	report, err := newVerifier(t, svc, io.Discard).Run(context.Background(), txlog.NewReader(bytes.NewReader(data)))
	require.Error(t, err)
	assert.True(t, txlog.IsMalformed(err))

	require.NotNil(t, report)
	assert.Len(t, report.Results, 2)
	assert.False(t, report.AllMatched)
	assert.Len(t, svc.Calls(), 2)
}

func TestReplayCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := &testutil.ScriptedTransactor{}
	report, err := newVerifier(t, svc, io.Discard).Run(ctx, txlog.NewReader(bytes.NewReader(counterLog())))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Results)
	assert.Empty(t, svc.Calls())
}

func TestReplayRequiresDependencies(t *testing.T) {
	_, err := (&Verifier{}).Run(context.Background(), txlog.NewReader(bytes.NewReader(nil)))
	require.Error(t, err)
}

package testutil

import (
	"context"
	"sync"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// Call is one transaction issued to a ScriptedTransactor.
type Call struct {
	Code  uint32
	Data  []byte
	Flags uint32
}

// Result is a scripted outcome.
type Result struct {
	Reply  []byte
	Status txlog.Status
	Err    error
}

// ScriptedTransactor answers calls from a script, in order. Once the script
// is exhausted every call returns Default.
type ScriptedTransactor struct {
	mu      sync.Mutex
	Script  []Result
	Default Result
	calls   []Call
}

// Transact records the call and returns the next scripted result.
func (s *ScriptedTransactor) Transact(_ context.Context, code uint32, data []byte, flags uint32) ([]byte, txlog.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Code: code, Data: append([]byte(nil), data...), Flags: flags})

	res := s.Default
	if len(s.Script) > 0 {
		res = s.Script[0]
		s.Script = s.Script[1:]
	}
	return res.Reply, res.Status, res.Err
}

// Calls returns every call issued so far.
func (s *ScriptedTransactor) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

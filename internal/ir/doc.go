// Package ir holds the compiled form of interface definitions used by
// analyzers, plus naming helpers shared by the session controller and the
// IPC service directory.
//
// This package contains type definitions and pure functions only. Other
// internal packages import ir; ir imports nothing internal.
package ir

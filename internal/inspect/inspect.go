// Package inspect prints the complete records of a log once.
package inspect

import (
	"errors"
	"fmt"
	"io"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/analyzer"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// Inspector renders every complete record of a log with its recorded status.
type Inspector struct {
	Analyzer analyzer.Analyzer
	Out      io.Writer
}

// Run prints records from the reader's cursor until the first incomplete
// frame, which ends the pass cleanly. It returns the number printed.
// Malformed data and read failures are returned as errors.
func (i *Inspector) Run(r *txlog.Reader) (int, error) {
	if i.Analyzer == nil || i.Out == nil {
		return 0, fmt.Errorf("inspect: analyzer and output are required")
	}

	printed := 0
	for {
		tx, err := r.Next()
		if errors.Is(err, txlog.ErrNotYetAvailable) {
			return printed, nil
		}
		if err != nil {
			return printed, fmt.Errorf("inspect record %d: %w", r.Count()+1, err)
		}
		printed++
		analyzer.Print(i.Out, i.Analyzer, r.Count(), tx)
	}
}

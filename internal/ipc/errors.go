package ipc

import (
	"errors"
	"fmt"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// ErrServiceNotFound is returned when no socket is registered for a service.
var ErrServiceNotFound = errors.New("service not found")

// RemoteError is a non-zero status returned by the service for a control
// operation.
type RemoteError struct {
	Op     string
	Status txlog.Status
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed with status %s", e.Op, e.Status)
}

// RemoteStatus extracts the status of a *RemoteError in err's chain.
func RemoteStatus(err error) (txlog.Status, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Status, true
	}
	return 0, false
}

package txlog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Status is the integer outcome of a transaction. Zero is success; the named
// codes follow the negative errno convention of the transport.
type Status int32

const (
	StatusOK                 Status = 0
	StatusNameNotFound       Status = -2
	StatusAlreadyExists      Status = -17
	StatusBadValue           Status = -22
	StatusDeadObject         Status = -32
	StatusInvalidOperation   Status = -38
	StatusUnknownTransaction Status = -74
	StatusUnknownError       Status = math.MinInt32
	StatusFailedTransaction  Status = math.MinInt32 + 2
)

var statusNames = map[Status]string{
	StatusOK:                 "NO_ERROR",
	StatusNameNotFound:       "NAME_NOT_FOUND",
	StatusAlreadyExists:      "ALREADY_EXISTS",
	StatusBadValue:           "BAD_VALUE",
	StatusDeadObject:         "DEAD_OBJECT",
	StatusInvalidOperation:   "INVALID_OPERATION",
	StatusUnknownTransaction: "UNKNOWN_TRANSACTION",
	StatusUnknownError:       "UNKNOWN_ERROR",
	StatusFailedTransaction:  "FAILED_TRANSACTION",
}

// String returns the symbolic name of s, or its decimal value if unnamed.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return strconv.FormatInt(int64(s), 10)
}

// OK reports whether s is NO_ERROR.
func (s Status) OK() bool {
	return s == StatusOK
}

// ParseStatus accepts a symbolic name as printed by String, case-insensitive,
// or a decimal value.
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	for st, name := range statusNames {
		if strings.EqualFold(name, s) {
			return st, nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown status %q", s)
	}
	return Status(n), nil
}

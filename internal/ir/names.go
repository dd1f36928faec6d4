package ir

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SafeName turns a service identifier into a single path element.
//
// The identifier is NFC normalized so that visually identical names map to
// the same file, and '/' is replaced by '.' so a name like
// "android.hardware.foo/default" cannot escape its directory.
func SafeName(service string) string {
	return strings.ReplaceAll(norm.NFC.String(service), "/", ".")
}

// ValidateServiceName rejects identifiers that cannot name a file.
func ValidateServiceName(service string) error {
	switch SafeName(service) {
	case "":
		return fmt.Errorf("service name is empty")
	case ".", "..":
		return fmt.Errorf("invalid service name %q", service)
	}
	if strings.ContainsRune(service, 0) {
		return fmt.Errorf("service name %q contains NUL", service)
	}
	return nil
}

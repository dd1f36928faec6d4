package analyzer

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// RawName is the interface name of the built-in hex dump analyzer.
const RawName = "raw"

// Raw renders any interface as a hex dump of its payloads. It is always
// registered so recordings of unknown interfaces can still be inspected.
type Raw struct {
	// Name overrides the interface name. Empty means RawName.
	Name string
}

// InterfaceName implements Analyzer.
func (r Raw) InterfaceName() string {
	if r.Name == "" {
		return RawName
	}
	return r.Name
}

// Render implements Analyzer.
func (r Raw) Render(w io.Writer, code uint32, request, reply []byte) {
	fmt.Fprintf(w, "  Code: %d\n", code)
	dumpPayload(w, "Request", request)
	dumpPayload(w, "Reply", reply)
}

func dumpPayload(w io.Writer, label string, data []byte) {
	fmt.Fprintf(w, "  %s (%d bytes)", label, len(data))
	if len(data) == 0 {
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintln(w, ":")
	writeIndented(w, strings.TrimRight(hex.Dump(data), "\n"))
}

// writeIndented writes text with every line indented by four spaces.
func writeIndented(w io.Writer, text string) {
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(w, "    %s\n", line)
	}
}

package analyzer

import (
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/ir"
)

// SpecAnalyzer renders transactions using a compiled interface definition:
// method names come from the method table and payloads are decoded by the
// interface's encoding.
type SpecAnalyzer struct {
	spec    ir.InterfaceSpec
	methods map[uint32]ir.MethodSig

	// proto message types by method code; nil unless encoding is proto.
	messages map[uint32]protoMethod
}

// NewSpecAnalyzer builds an analyzer for spec. Proto-encoded interfaces have
// their .proto files compiled here, resolved against importPaths.
func NewSpecAnalyzer(spec *ir.InterfaceSpec, importPaths []string) (*SpecAnalyzer, error) {
	if spec == nil || spec.Name == "" {
		return nil, fmt.Errorf("new analyzer: interface name is required")
	}
	if !ir.ValidEncodings[spec.Encoding] {
		return nil, fmt.Errorf("new analyzer %s: unsupported encoding %q", spec.Name, spec.Encoding)
	}

	a := &SpecAnalyzer{spec: *spec}
	a.spec.Methods = append([]ir.MethodSig(nil), spec.Methods...)

	if spec.Encoding == ir.EncodingProto {
		schema, err := compileProto(spec, importPaths)
		if err != nil {
			return nil, fmt.Errorf("new analyzer %s: %w", spec.Name, err)
		}
		a.spec.Methods = schema.methods
		a.messages = schema.messages
	}

	a.spec.SortMethods()
	a.methods = make(map[uint32]ir.MethodSig, len(a.spec.Methods))
	for _, m := range a.spec.Methods {
		a.methods[m.Code] = m
	}
	return a, nil
}

// InterfaceName implements Analyzer.
func (a *SpecAnalyzer) InterfaceName() string { return a.spec.Name }

// Spec returns the interface definition with the resolved method table.
func (a *SpecAnalyzer) Spec() ir.InterfaceSpec { return a.spec }

// Render implements Analyzer.
func (a *SpecAnalyzer) Render(w io.Writer, code uint32, request, reply []byte) {
	m, ok := a.methods[code]
	switch {
	case !ok:
		fmt.Fprintf(w, "  Method: unknown (code %d)\n", code)
		dumpPayload(w, "Request", request)
		dumpPayload(w, "Reply", reply)
		return
	case m.Oneway:
		fmt.Fprintf(w, "  Method: %s (code %d, oneway)\n", m.Name, code)
	default:
		fmt.Fprintf(w, "  Method: %s (code %d)\n", m.Name, code)
	}

	switch a.spec.Encoding {
	case ir.EncodingJSON:
		renderJSON(w, "Request", request)
		if !m.Oneway {
			renderJSON(w, "Reply", reply)
		}
	case ir.EncodingProto:
		pm := a.messages[code]
		renderProto(w, "Request", pm.request, request)
		if !m.Oneway {
			renderProto(w, "Reply", pm.reply, reply)
		}
	default:
		dumpPayload(w, "Request", request)
		if !m.Oneway {
			dumpPayload(w, "Reply", reply)
		}
	}
}

func renderJSON(w io.Writer, label string, data []byte) {
	if len(data) == 0 {
		fmt.Fprintf(w, "  %s: (empty)\n", label)
		return
	}
	if !gjson.ValidBytes(data) {
		fmt.Fprintf(w, "  %s: invalid JSON\n", label)
		dumpPayload(w, label, data)
		return
	}
	writePretty(w, label, gjson.GetBytes(data, "@pretty").Raw)
}

func renderProto(w io.Writer, label string, md protoreflect.MessageDescriptor, data []byte) {
	if md == nil {
		dumpPayload(w, label, data)
		return
	}

	msg := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(data, msg); err != nil {
		fmt.Fprintf(w, "  %s: cannot decode %s: %v\n", label, md.FullName(), err)
		dumpPayload(w, label, data)
		return
	}

	// protojson output is deliberately unstable; reformat it.
	out, err := protojson.Marshal(msg)
	if err != nil {
		fmt.Fprintf(w, "  %s: cannot format %s: %v\n", label, md.FullName(), err)
		return
	}
	writePretty(w, label+" "+string(md.FullName()), gjson.GetBytes(out, "@pretty").Raw)
}

func writePretty(w io.Writer, label, pretty string) {
	fmt.Fprintf(w, "  %s:\n", label)
	writeIndented(w, strings.TrimRight(pretty, "\n"))
}

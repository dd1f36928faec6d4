package ir

import "sort"

// FirstCallCode is the code of the first method of an interface. Codes below
// it are reserved by the transport.
const FirstCallCode uint32 = 1

// Encoding names how an interface's payloads are serialized.
type Encoding string

const (
	EncodingRaw   Encoding = "raw"
	EncodingJSON  Encoding = "json"
	EncodingProto Encoding = "proto"
)

// ValidEncodings lists the encodings analyzers can decode.
var ValidEncodings = map[Encoding]bool{
	EncodingRaw:   true,
	EncodingJSON:  true,
	EncodingProto: true,
}

// InterfaceSpec is a compiled interface definition.
type InterfaceSpec struct {
	// Name is the interface descriptor, e.g. "demo.ICounter".
	Name     string       `json:"name"`
	Encoding Encoding     `json:"encoding"`
	Proto    *ProtoSource `json:"proto,omitempty"`
	Methods  []MethodSig  `json:"methods"`
}

// ProtoSource locates the protobuf service describing a proto-encoded interface.
type ProtoSource struct {
	// Files are .proto paths, resolved against the import paths.
	Files []string `json:"files"`

	// Service is the fully qualified proto service name.
	Service string `json:"service"`
}

// MethodSig describes one method of an interface.
type MethodSig struct {
	Name   string `json:"name"`
	Code   uint32 `json:"code"`
	Oneway bool   `json:"oneway,omitempty"`

	// Request and Reply are fully qualified message names for proto
	// interfaces. Empty for other encodings.
	Request string `json:"request,omitempty"`
	Reply   string `json:"reply,omitempty"`
}

// Method returns the method with the given code.
func (s *InterfaceSpec) Method(code uint32) (MethodSig, bool) {
	for _, m := range s.Methods {
		if m.Code == code {
			return m, true
		}
	}
	return MethodSig{}, false
}

// SortMethods orders Methods by code, then name.
func (s *InterfaceSpec) SortMethods() {
	sort.Slice(s.Methods, func(i, j int) bool {
		if s.Methods[i].Code != s.Methods[j].Code {
			return s.Methods[i].Code < s.Methods[j].Code
		}
		return s.Methods[i].Name < s.Methods[j].Name
	})
}

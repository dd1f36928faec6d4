package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainInterface = "ipcrecord/interface/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SpecHash computes a stable identity for an interface definition.
//
// Two specs hash equal when they describe the same methods with the same
// encoding, regardless of method declaration order or Unicode normalization
// form of their names. Replay runs record this hash so a report can be tied
// back to the analyzer that rendered it.
func SpecHash(spec InterfaceSpec) (string, error) {
	canonical, err := MarshalCanonical(spec)
	if err != nil {
		return "", fmt.Errorf("SpecHash: %w", err)
	}
	return hashWithDomain(DomainInterface, canonical), nil
}

// MarshalCanonical produces the canonical JSON used for hashing: methods
// sorted by code, strings NFC normalized, no HTML escaping, no trailing
// newline.
func MarshalCanonical(spec InterfaceSpec) ([]byte, error) {
	c := InterfaceSpec{
		Name:     norm.NFC.String(spec.Name),
		Encoding: spec.Encoding,
		Methods:  make([]MethodSig, len(spec.Methods)),
	}
	for i, m := range spec.Methods {
		c.Methods[i] = MethodSig{
			Name:    norm.NFC.String(m.Name),
			Code:    m.Code,
			Oneway:  m.Oneway,
			Request: norm.NFC.String(m.Request),
			Reply:   norm.NFC.String(m.Reply),
		}
	}
	c.SortMethods()
	if spec.Proto != nil {
		c.Proto = &ProtoSource{
			Files:   append([]string(nil), spec.Proto.Files...),
			Service: norm.NFC.String(spec.Proto.Service),
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(struct {
		Version string `json:"ir_version"`
		InterfaceSpec
	}{IRVersion, c}); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Package compiler turns CUE interface definitions into ir.InterfaceSpec.
package compiler

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// CompileInterface parses a CUE value into an InterfaceSpec named name.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value is the interface struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`interface: "demo.ICounter": { encoding: "json", method: add: code: 1 }`)
//	spec, err := CompileInterface("demo.ICounter", v.LookupPath(cue.ParsePath(`interface."demo.ICounter"`)))
func CompileInterface(name string, v cue.Value) (*ir.InterfaceSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if name == "" {
		return nil, &CompileError{Field: "interface", Message: "interface name is required", Pos: v.Pos()}
	}

	schema := v.Context().CompileString(schemaCUE, cue.Filename("schema.cue")).
		LookupPath(cue.ParsePath("#Interface"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile interface schema: %w", err)
	}

	// Unknown fields and out-of-range codes are rejected here, with positions
	// pointing into the user's file.
	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.InterfaceSpec{Name: name}

	encVal := unified.LookupPath(cue.ParsePath("encoding"))
	if def, ok := encVal.Default(); ok {
		encVal = def
	}
	enc, err := encVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.Encoding = ir.Encoding(enc)

	if protoVal := unified.LookupPath(cue.ParsePath("proto")); protoVal.Exists() {
		spec.Proto, err = parseProto(protoVal)
		if err != nil {
			return nil, err
		}
	}

	spec.Methods, err = parseMethods(unified)
	if err != nil {
		return nil, err
	}
	spec.SortMethods()

	if err := validateSpec(spec, unified); err != nil {
		return nil, err
	}

	return spec, nil
}

// parseProto extracts the proto source block.
func parseProto(v cue.Value) (*ir.ProtoSource, error) {
	src := &ir.ProtoSource{}

	service, err := v.LookupPath(cue.ParsePath("service")).String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	src.Service = service

	iter, err := v.LookupPath(cue.ParsePath("files")).List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		file, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		src.Files = append(src.Files, file)
	}

	return src, nil
}

// parseMethods extracts the method table. Method names are the struct labels.
func parseMethods(v cue.Value) ([]ir.MethodSig, error) {
	methodVal := v.LookupPath(cue.ParsePath("method"))
	if !methodVal.Exists() {
		return nil, nil
	}

	iter, err := methodVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var methods []ir.MethodSig
	for iter.Next() {
		mv := iter.Value()
		m := ir.MethodSig{Name: iter.Selector().Unquoted()}

		code, err := mv.LookupPath(cue.ParsePath("code")).Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		m.Code = uint32(code)

		if ov := mv.LookupPath(cue.ParsePath("oneway")); ov.Exists() {
			if m.Oneway, err = ov.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if rv := mv.LookupPath(cue.ParsePath("request")); rv.Exists() {
			if m.Request, err = rv.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if rv := mv.LookupPath(cue.ParsePath("reply")); rv.Exists() {
			if m.Reply, err = rv.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}

		methods = append(methods, m)
	}

	return methods, nil
}

// validateSpec checks constraints the schema cannot express.
func validateSpec(spec *ir.InterfaceSpec, v cue.Value) error {
	seen := make(map[uint32]string, len(spec.Methods))
	for _, m := range spec.Methods {
		if other, ok := seen[m.Code]; ok {
			return &CompileError{
				Field:   "method." + m.Name + ".code",
				Message: fmt.Sprintf("code %d already used by method %s", m.Code, other),
				Pos:     v.LookupPath(cue.MakePath(cue.Str("method"), cue.Str(m.Name), cue.Str("code"))).Pos(),
			}
		}
		seen[m.Code] = m.Name
	}

	switch spec.Encoding {
	case ir.EncodingProto:
		if spec.Proto == nil {
			return &CompileError{
				Field:   "proto",
				Message: "proto encoding requires a proto block",
				Pos:     v.Pos(),
			}
		}
	default:
		if spec.Proto != nil {
			return &CompileError{
				Field:   "proto",
				Message: fmt.Sprintf("proto block is only valid with proto encoding, not %s", spec.Encoding),
				Pos:     v.LookupPath(cue.ParsePath("proto")).Pos(),
			}
		}
		if len(spec.Methods) == 0 && spec.Encoding != ir.EncodingRaw {
			return &CompileError{
				Field:   "method",
				Message: "at least one method is required",
				Pos:     v.Pos(),
			}
		}
	}

	return nil
}

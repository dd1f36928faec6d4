package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/bufbuild/protocompile"
	"github.com/bufbuild/protocompile/linker"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/ir"
)

// protoMethod holds the message types of one method's payloads.
type protoMethod struct {
	request protoreflect.MessageDescriptor
	reply   protoreflect.MessageDescriptor
}

type protoSchema struct {
	methods  []ir.MethodSig
	messages map[uint32]protoMethod
}

// compileProto compiles spec.Proto.Files and resolves the method table.
//
// Without an explicit method table, methods are taken from the proto service
// in declaration order and numbered from ir.FirstCallCode. Explicit methods
// are matched to service methods by name (case-insensitive); their request
// and reply fields override the service's message types.
func compileProto(spec *ir.InterfaceSpec, importPaths []string) (*protoSchema, error) {
	if spec.Proto == nil || len(spec.Proto.Files) == 0 {
		return nil, fmt.Errorf("proto encoding requires proto files")
	}

	compiler := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			ImportPaths: importPaths,
		}),
	}
	files, err := compiler.Compile(context.Background(), spec.Proto.Files...)
	if err != nil {
		return nil, fmt.Errorf("compile proto: %w", err)
	}

	svc := findService(files, spec.Proto.Service)
	if svc == nil {
		return nil, fmt.Errorf("proto service %q not found in %v", spec.Proto.Service, spec.Proto.Files)
	}

	schema := &protoSchema{messages: make(map[uint32]protoMethod)}
	resolver := files.AsResolver()

	if len(spec.Methods) == 0 {
		methods := svc.Methods()
		for i := 0; i < methods.Len(); i++ {
			md := methods.Get(i)
			code := ir.FirstCallCode + uint32(i)
			schema.methods = append(schema.methods, ir.MethodSig{
				Name:    string(md.Name()),
				Code:    code,
				Request: string(md.Input().FullName()),
				Reply:   string(md.Output().FullName()),
			})
			schema.messages[code] = protoMethod{request: md.Input(), reply: md.Output()}
		}
		return schema, nil
	}

	for _, m := range spec.Methods {
		var pm protoMethod
		if md := findMethod(svc, m.Name); md != nil {
			pm = protoMethod{request: md.Input(), reply: md.Output()}
		}
		if m.Request != "" {
			if pm.request, err = findMessage(resolver, m.Request); err != nil {
				return nil, fmt.Errorf("method %s request: %w", m.Name, err)
			}
		}
		if m.Reply != "" {
			if pm.reply, err = findMessage(resolver, m.Reply); err != nil {
				return nil, fmt.Errorf("method %s reply: %w", m.Name, err)
			}
		}
		if pm.request == nil {
			return nil, fmt.Errorf("method %s: not in service %s and no request type given", m.Name, spec.Proto.Service)
		}
		if m.Request == "" {
			m.Request = string(pm.request.FullName())
		}
		if m.Reply == "" && pm.reply != nil {
			m.Reply = string(pm.reply.FullName())
		}
		schema.methods = append(schema.methods, m)
		schema.messages[m.Code] = pm
	}
	return schema, nil
}

func findService(files linker.Files, name string) protoreflect.ServiceDescriptor {
	for _, file := range files {
		services := file.Services()
		for i := 0; i < services.Len(); i++ {
			if svc := services.Get(i); string(svc.FullName()) == name {
				return svc
			}
		}
	}
	return nil
}

func findMethod(svc protoreflect.ServiceDescriptor, name string) protoreflect.MethodDescriptor {
	methods := svc.Methods()
	for i := 0; i < methods.Len(); i++ {
		if md := methods.Get(i); strings.EqualFold(string(md.Name()), name) {
			return md
		}
	}
	return nil
}

func findMessage(resolver linker.Resolver, name string) (protoreflect.MessageDescriptor, error) {
	d, err := resolver.FindDescriptorByName(protoreflect.FullName(name))
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", name, err)
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a message", name)
	}
	return md, nil
}

package msgplan

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	rlerrors "github.com/roverlog/roverlog/internal/errors"
	"github.com/roverlog/roverlog/pkg/types"
)

// ProtobufBuilder builds plans for the "protobuf" message encoding. The
// schema blob is a serialized FileDescriptorSet; the schema name selects
// the root message type used to decode payloads.
type ProtobufBuilder struct{}

// Encoding returns "protobuf".
func (*ProtobufBuilder) Encoding() string { return "protobuf" }

// Build parses the descriptor set and resolves the root message type.
func (*ProtobufBuilder) Build(schema *SchemaInfo) (Plan, error) {
	if schema == nil {
		return nil, rlerrors.NewPlanError(rlerrors.CodePlanFailed,
			"protobuf channels require a schema", nil)
	}
	if schema.Encoding != "protobuf" {
		return nil, rlerrors.NewPlanError(rlerrors.CodePlanFailed,
			fmt.Sprintf("protobuf channels require a protobuf schema, got %q", schema.Encoding), nil)
	}

	var fds descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(schema.Data, &fds); err != nil {
		return nil, rlerrors.NewPlanError(rlerrors.CodePlanFailed,
			"malformed FileDescriptorSet for schema "+schema.Name, err)
	}
	files, err := protodesc.NewFiles(&fds)
	if err != nil {
		return nil, rlerrors.NewPlanError(rlerrors.CodePlanFailed,
			"invalid descriptor set for schema "+schema.Name, err)
	}

	desc, err := files.FindDescriptorByName(protoreflect.FullName(schema.Name))
	if err != nil {
		return nil, rlerrors.NewPlanError(rlerrors.CodePlanFailed,
			"root message type "+schema.Name+" not found in descriptor set", err)
	}
	root, ok := desc.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, rlerrors.NewPlanError(rlerrors.CodePlanFailed,
			schema.Name+" is not a message type", nil)
	}

	plan := &protobufPlan{
		root:      root,
		datatypes: make(map[string]types.Datatype),
	}
	files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		collectMessageTypes(fd.Messages(), plan.datatypes)
		return true
	})
	return plan, nil
}

// collectMessageTypes walks a message list recursively, adding one datatype
// entry per message.
func collectMessageTypes(msgs protoreflect.MessageDescriptors, out map[string]types.Datatype) {
	for i := 0; i < msgs.Len(); i++ {
		md := msgs.Get(i)
		dt := types.Datatype{Name: string(md.FullName())}
		fields := md.Fields()
		for j := 0; j < fields.Len(); j++ {
			fd := fields.Get(j)
			ft := fd.Kind().String()
			if fd.Kind() == protoreflect.MessageKind {
				ft = string(fd.Message().FullName())
			}
			dt.Fields = append(dt.Fields, types.Field{Name: string(fd.Name()), Type: ft})
		}
		out[dt.Name] = dt
		collectMessageTypes(md.Messages(), out)
	}
}

type protobufPlan struct {
	root      protoreflect.MessageDescriptor
	datatypes map[string]types.Datatype
}

func (p *protobufPlan) Datatypes() map[string]types.Datatype {
	return p.datatypes
}

// Decode unmarshals the payload into a dynamic message of the root type.
func (p *protobufPlan) Decode(data []byte) (interface{}, error) {
	msg := dynamicpb.NewMessage(p.root)
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, rlerrors.NewPlanError(rlerrors.CodePlanFailed,
			"protobuf payload decode failed", err)
	}
	return msg, nil
}

package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemonberrylabs/fieldrules/pkg/constraint"
)

// Response is the decoded reply of a Validator call.
type Response struct {
	Valid      bool
	Expression string
	Error      *constraint.Detail
	// CheckID is set by ValidateRule only.
	CheckID string
}

// Client is a typed client for the Validator service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a Client using cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Validate evaluates value against an ad-hoc constraint.
func (c *Client) Validate(ctx context.Context, value, expr string, opts ...grpc.CallOption) (*Response, error) {
	in, err := structpb.NewStruct(map[string]any{"value": value, "constraint": expr})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, validateMethod, in, opts)
}

// ValidateRule evaluates value against the named stored rule.
func (c *Client) ValidateRule(ctx context.Context, rule, value string, opts ...grpc.CallOption) (*Response, error) {
	in, err := structpb.NewStruct(map[string]any{"rule": rule, "value": value})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, validateRuleMethod, in, opts)
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*Response, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}

	f := out.GetFields()
	resp := &Response{
		Valid:      f["valid"].GetBoolValue(),
		Expression: f["expression"].GetStringValue(),
		CheckID:    f["checkId"].GetStringValue(),
	}
	if e := f["error"].GetStructValue(); e != nil {
		ef := e.GetFields()
		resp.Error = &constraint.Detail{
			Kind:     ef["kind"].GetStringValue(),
			Position: int(ef["position"].GetNumberValue()),
			Message:  ef["message"].GetStringValue(),
		}
	}
	return resp, nil
}

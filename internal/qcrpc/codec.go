// Package qcrpc carries backend.API over gRPC. Every method exchanges a
// google.protobuf.Struct holding the JSON form of its request and response.
package qcrpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// empty is the request of parameterless methods and the response of deletes.
type empty struct{}

type idRequest struct {
	ID uint `json:"id"`
}

type nameRequest struct {
	Name string `json:"name"`
}

// items wraps list responses, a Struct envelope cannot hold a bare array.
type items[T any] struct {
	Items []T `json:"items"`
}

// encode converts v into a Struct envelope via its JSON form.
func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}

	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build envelope: %w", err)
	}
	return out, nil
}

// decode fills v from a Struct envelope.
func decode(in *structpb.Struct, v any) error {
	if in == nil {
		in = &structpb.Struct{}
	}

	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}

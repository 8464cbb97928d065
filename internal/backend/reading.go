package backend

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// MarshalReading encodes a reading as a protobuf Struct for the readings queue.
func MarshalReading(in ReadingInput) ([]byte, error) {
	msg, err := structpb.NewStruct(map[string]any{
		"sensor_id": float64(in.SensorID),
		"value":     in.Value,
		"timestamp": in.Timestamp.UTC().Format(time.RFC3339Nano),
		"source":    in.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build reading message: %w", err)
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reading: %w", err)
	}
	return data, nil
}

// UnmarshalReading decodes a queue message produced by MarshalReading.
func UnmarshalReading(data []byte) (*ReadingInput, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reading: %w", err)
	}
	fields := msg.GetFields()

	id, ok := fields["sensor_id"].GetKind().(*structpb.Value_NumberValue)
	if !ok || id.NumberValue <= 0 || id.NumberValue != math.Trunc(id.NumberValue) {
		return nil, errors.New("reading has no valid sensor_id")
	}
	value, ok := fields["value"].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return nil, errors.New("reading has no numeric value")
	}

	in := &ReadingInput{
		SensorID: uint(id.NumberValue),
		Value:    value.NumberValue,
		Source:   fields["source"].GetStringValue(),
	}
	if ts := fields["timestamp"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("reading has invalid timestamp: %w", err)
		}
		in.Timestamp = t.UTC()
	}
	return in, nil
}

package model

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Batch holds every reading of one step. Sinks receive whole batches only.
type Batch struct {
	RunID       string    `json:"run_id" msgpack:"run_id"`
	Step        int       `json:"step" msgpack:"step"`
	TimestampMs int64     `json:"timestamp_ms" msgpack:"timestamp_ms"`
	Readings    []Reading `json:"readings" msgpack:"readings"`
}

func NewBatch(runID string, tp TimePoint, readings []Reading) *Batch {
	return &Batch{
		RunID:       runID,
		Step:        tp.Step,
		TimestampMs: tp.TimestampMs,
		Readings:    readings,
	}
}

const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

func (b *Batch) Encode(encoding string) ([]byte, error) {
	switch encoding {
	case "", EncodingJSON:
		return json.Marshal(b)
	case EncodingMsgpack:
		return msgpack.Marshal(b)
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

func DecodeBatch(encoding string, data []byte) (*Batch, error) {
	var b Batch
	switch encoding {
	case "", EncodingJSON:
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
	case EncodingMsgpack:
		if err := msgpack.Unmarshal(data, &b); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
	return &b, nil
}

func ContentType(encoding string) string {
	if encoding == EncodingMsgpack {
		return "application/msgpack"
	}
	return "application/json"
}

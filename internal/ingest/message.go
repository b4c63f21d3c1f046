package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/filedata"
	"github.com/nerrad567/gray-logic-historian/internal/pointvalue"
)

// Message is the JSON payload of a point sample. A missing ts means
// receive time; ts 0 is the epoch.
type Message struct {
	Type   string          `json:"type"`
	Value  json.RawMessage `json:"value"`
	TS     *int64          `json:"ts,omitempty"`
	Source string          `json:"source,omitempty"`
	Format string          `json:"format,omitempty"`
	Sync   bool            `json:"sync,omitempty"`
	XID    string          `json:"xid,omitempty"`
	Name   string          `json:"name,omitempty"`
}

// imageFormats maps the "format" field to blob type codes.
var imageFormats = map[string]int{
	"jpg":  filedata.TypeJPG,
	"jpeg": filedata.TypeJPG,
	"gif":  filedata.TypeGIF,
	"png":  filedata.TypePNG,
}

// ParseMessage decodes a sample payload.
func ParseMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("%w: type is required", ErrInvalidMessage)
	}
	if len(msg.Value) == 0 || string(msg.Value) == "null" {
		return Message{}, fmt.Errorf("%w: value is required", ErrInvalidMessage)
	}
	return msg, nil
}

// PointValue converts msg into a point value for pointID. now is used
// when the message carries no timestamp.
func (m Message) PointValue(pointID int, now int64) (pointvalue.PointValue, error) {
	value, err := m.decodeValue()
	if err != nil {
		return pointvalue.PointValue{}, err
	}

	pv := pointvalue.PointValue{
		PointID: pointID,
		Time:    now,
		Value:   value,
	}
	if m.TS != nil {
		pv.Time = *m.TS
	}
	if m.Source != "" {
		pv.Annotation = &pointvalue.Annotation{SourceMessage: m.Source}
	}
	return pv, nil
}

// dataType returns the parsed "type" field.
func (m Message) dataType() (pointvalue.DataType, error) {
	dt, err := pointvalue.ParseDataType(m.Type)
	if err != nil {
		return pointvalue.DataTypeUnknown, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return dt, nil
}

func (m Message) decodeValue() (pointvalue.Value, error) {
	dt, err := m.dataType()
	if err != nil {
		return nil, err
	}

	switch dt {
	case pointvalue.DataTypeNumeric:
		var v float64
		if err := json.Unmarshal(m.Value, &v); err != nil {
			return nil, m.valueErr(err)
		}
		return pointvalue.NumericValue(v), nil
	case pointvalue.DataTypeBinary:
		var v bool
		if err := json.Unmarshal(m.Value, &v); err != nil {
			return nil, m.valueErr(err)
		}
		return pointvalue.BinaryValue(v), nil
	case pointvalue.DataTypeMultistate:
		var v int64
		if err := json.Unmarshal(m.Value, &v); err != nil {
			return nil, m.valueErr(err)
		}
		return pointvalue.MultistateValue(v), nil
	case pointvalue.DataTypeAlphanumeric:
		var v string
		if err := json.Unmarshal(m.Value, &v); err != nil {
			return nil, m.valueErr(err)
		}
		return pointvalue.AlphanumericValue(v), nil
	case pointvalue.DataTypeImage:
		code, ok := imageFormats[strings.ToLower(m.Format)]
		if !ok {
			return nil, fmt.Errorf("%w: unknown image format %q", ErrInvalidMessage, m.Format)
		}
		var data []byte // base64 in JSON
		if err := json.Unmarshal(m.Value, &data); err != nil {
			return nil, m.valueErr(err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: empty image", ErrInvalidMessage)
		}
		return pointvalue.ImageValue{TypeCode: code, Data: data}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrInvalidMessage, m.Type)
	}
}

func (m Message) valueErr(err error) error {
	return fmt.Errorf("%w: %s value: %w", ErrInvalidMessage, m.Type, err)
}

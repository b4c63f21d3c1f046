package api

import (
	"github.com/nerrad567/gray-logic-historian/internal/pointvalue"
)

// pointValueResponse is the JSON form of a point value.
type pointValueResponse struct {
	ID      int64  `json:"id,omitempty"`
	PointID int    `json:"point_id"`
	TS      int64  `json:"ts"`
	Type    string `json:"type,omitempty"`
	Value   any    `json:"value"`
	Source  string `json:"source,omitempty"`
	Bookend bool   `json:"bookend,omitempty"`
}

// imageResponse references a stored image without its payload.
type imageResponse struct {
	BlobID   int64 `json:"blob_id"`
	TypeCode int   `json:"type_code"`
}

// pointResponse is the JSON form of a registered point.
type pointResponse struct {
	ID   int    `json:"id"`
	XID  string `json:"xid"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

func toPointValueResponse(pv pointvalue.PointValue) pointValueResponse {
	resp := pointValueResponse{
		ID:      pv.ID,
		PointID: pv.PointID,
		TS:      pv.Time,
		Value:   jsonValue(pv.Value),
	}
	if pv.Value != nil {
		resp.Type = pv.Value.DataType().String()
	}
	if pv.Annotation != nil {
		resp.Source = pv.Annotation.SourceMessage
	}
	return resp
}

func toPointValueResponses(values []pointvalue.PointValue) []pointValueResponse {
	out := make([]pointValueResponse, len(values))
	for i, pv := range values {
		out[i] = toPointValueResponse(pv)
	}
	return out
}

func toPointResponse(p pointvalue.Point) pointResponse {
	resp := pointResponse{ID: p.ID, XID: p.XID, Name: p.Name}
	if p.DataType != pointvalue.DataTypeUnknown {
		resp.Type = p.DataType.String()
	}
	return resp
}

// jsonValue converts a Value to its plain JSON representation.
func jsonValue(v pointvalue.Value) any {
	switch tv := v.(type) {
	case pointvalue.NumericValue:
		return float64(tv)
	case pointvalue.BinaryValue:
		return bool(tv)
	case pointvalue.MultistateValue:
		return int64(tv)
	case pointvalue.AlphanumericValue:
		return string(tv)
	case pointvalue.ImageValue:
		return imageResponse{BlobID: tv.BlobID, TypeCode: tv.TypeCode}
	default:
		return nil
	}
}

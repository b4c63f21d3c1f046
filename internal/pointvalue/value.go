package pointvalue

import (
	"bytes"
	"fmt"
)

// DataType is the persisted discriminant of a Value.
type DataType int

// Data types. The numbers are stored in point_values.data_type and must
// never change.
const (
	DataTypeUnknown      DataType = 0
	DataTypeBinary       DataType = 1
	DataTypeMultistate   DataType = 2
	DataTypeNumeric      DataType = 3
	DataTypeAlphanumeric DataType = 4
	DataTypeImage        DataType = 5
)

// String returns the lower-case name of the data type.
func (d DataType) String() string {
	switch d {
	case DataTypeBinary:
		return "binary"
	case DataTypeMultistate:
		return "multistate"
	case DataTypeNumeric:
		return "numeric"
	case DataTypeAlphanumeric:
		return "alphanumeric"
	case DataTypeImage:
		return "image"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// ParseDataType returns the data type named by String.
func ParseDataType(name string) (DataType, error) {
	for _, d := range []DataType{DataTypeBinary, DataTypeMultistate, DataTypeNumeric, DataTypeAlphanumeric, DataTypeImage} {
		if d.String() == name {
			return d, nil
		}
	}
	return DataTypeUnknown, fmt.Errorf("%w: %q", ErrUnsupportedValueKind, name)
}

// Value is one of NumericValue, BinaryValue, MultistateValue,
// AlphanumericValue or ImageValue.
type Value interface {
	DataType() DataType
	isValue()
}

// NumericValue is an analogue reading.
type NumericValue float64

// BinaryValue is an on/off reading.
type BinaryValue bool

// MultistateValue is an enumerated state.
type MultistateValue int64

// AlphanumericValue is free text.
type AlphanumericValue string

// ImageValue references an image payload kept in the blob side-store.
//
// Data is only set on values that have not been stored yet. BlobID is
// zero until the value is saved, after which it equals the id of the
// point value row that created the blob.
type ImageValue struct {
	TypeCode int
	BlobID   int64
	Data     []byte
}

func (NumericValue) DataType() DataType      { return DataTypeNumeric }
func (BinaryValue) DataType() DataType       { return DataTypeBinary }
func (MultistateValue) DataType() DataType   { return DataTypeMultistate }
func (AlphanumericValue) DataType() DataType { return DataTypeAlphanumeric }
func (ImageValue) DataType() DataType        { return DataTypeImage }

func (NumericValue) isValue()      {}
func (BinaryValue) isValue()       {}
func (MultistateValue) isValue()   {}
func (AlphanumericValue) isValue() {}
func (ImageValue) isValue()        {}

// Saved reports whether the image payload is already in the side-store.
func (v ImageValue) Saved() bool {
	return v.BlobID != 0
}

// Equal reports whether a and b hold the same kind and content.
// Image payload bytes are compared only when both sides carry them.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case ImageValue:
		bv, ok := b.(ImageValue)
		if !ok || av.TypeCode != bv.TypeCode || av.BlobID != bv.BlobID {
			return false
		}
		if av.Data != nil && bv.Data != nil {
			return bytes.Equal(av.Data, bv.Data)
		}
		return true
	default:
		return a == b
	}
}

// Annotation describes why or how a value was set.
// SourceMessage is opaque to the store.
type Annotation struct {
	SourceMessage string
}

// PointValue is one timestamped reading for a point.
//
// Time is in epoch milliseconds. ID is the generated row id, zero for
// values that were never stored. A bookend value re-stamped to a window
// edge keeps the id of the row it was taken from. Value is nil only for
// bookend placeholders of points with no data, which also have no id.
type PointValue struct {
	ID         int64
	PointID    int
	Time       int64
	Value      Value
	Annotation *Annotation
}

// asyncEligible reports whether pv may go through the write-behind batcher.
// Annotated, text and image values need side-table or blob writes and are
// always stored synchronously.
func (pv PointValue) asyncEligible() bool {
	if pv.Annotation != nil || pv.Value == nil {
		return false
	}
	switch pv.Value.DataType() {
	case DataTypeAlphanumeric, DataTypeImage:
		return false
	default:
		return true
	}
}

// withTime returns a copy of pv re-stamped to t.
func (pv PointValue) withTime(t int64) PointValue {
	pv.Time = t
	return pv
}

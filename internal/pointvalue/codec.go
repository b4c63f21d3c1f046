package pointvalue

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// shortTextMax is the longest string kept in the short text slot.
const shortTextMax = 128

// multistateMax bounds multistate values to the integers a float64 holds
// exactly.
const multistateMax = 1 << 53

// Row is the generic storage encoding of a Value: a discriminant, a
// double slot and two optional text slots.
type Row struct {
	DataType DataType
	Double   float64
	Short    sql.NullString
	Long     sql.NullString
}

// hasText reports whether the row needs an annotation table entry.
func (r Row) hasText() bool {
	return r.Short.Valid || r.Long.Valid
}

// Encode maps v to its row encoding.
//
// Alphanumeric text longer than 128 characters goes to the Long slot,
// anything shorter to the Short slot. Multistate values outside ±2^53 are
// rejected with ErrUnsupportedValueKind. An image keeps its type code in the
// double slot and its blob id in the Short slot once saved.
func Encode(v Value) (Row, error) {
	switch tv := v.(type) {
	case NumericValue:
		return Row{DataType: DataTypeNumeric, Double: applyBounds(float64(tv))}, nil
	case BinaryValue:
		r := Row{DataType: DataTypeBinary}
		if tv {
			r.Double = 1
		}
		return r, nil
	case MultistateValue:
		if tv > multistateMax || tv < -multistateMax {
			return Row{}, fmt.Errorf("%w: multistate value %d out of range", ErrUnsupportedValueKind, int64(tv))
		}
		return Row{DataType: DataTypeMultistate, Double: float64(tv)}, nil
	case AlphanumericValue:
		r := Row{DataType: DataTypeAlphanumeric}
		s := string(tv)
		if utf8.RuneCountInString(s) > shortTextMax {
			r.Long = sql.NullString{String: s, Valid: true}
		} else {
			r.Short = sql.NullString{String: s, Valid: true}
		}
		return r, nil
	case ImageValue:
		r := Row{DataType: DataTypeImage, Double: float64(tv.TypeCode)}
		if tv.Saved() {
			r.Short = sql.NullString{String: strconv.FormatInt(tv.BlobID, 10), Valid: true}
		}
		return r, nil
	default:
		return Row{}, fmt.Errorf("%w: %T", ErrUnsupportedValueKind, v)
	}
}

// Decode maps a stored row back to its Value.
//
// An unknown discriminant means the data was written by an incompatible
// version and is reported as ErrUnsupportedValueKind.
func Decode(r Row) (Value, error) {
	switch r.DataType {
	case DataTypeNumeric:
		return NumericValue(r.Double), nil
	case DataTypeBinary:
		return BinaryValue(r.Double == 1), nil
	case DataTypeMultistate:
		if math.Abs(r.Double) > multistateMax {
			return nil, fmt.Errorf("%w: multistate value %g out of range", ErrUnsupportedValueKind, r.Double)
		}
		return MultistateValue(int64(r.Double)), nil
	case DataTypeAlphanumeric:
		if r.Long.Valid {
			return AlphanumericValue(r.Long.String), nil
		}
		return AlphanumericValue(r.Short.String), nil
	case DataTypeImage:
		if !r.Short.Valid {
			return nil, fmt.Errorf("%w: image row without blob id", ErrUnsupportedValueKind)
		}
		id, err := strconv.ParseInt(r.Short.String, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: image blob id %q: %w", ErrUnsupportedValueKind, r.Short.String, err)
		}
		return ImageValue{TypeCode: int(r.Double), BlobID: id}, nil
	default:
		return nil, fmt.Errorf("%w: data type %d", ErrUnsupportedValueKind, int(r.DataType))
	}
}

// applyBounds keeps doubles storable on every backend.
// SQLite turns NaN into NULL, which the NOT NULL column rejects.
func applyBounds(d float64) float64 {
	switch {
	case math.IsNaN(d):
		return 0
	case math.IsInf(d, 1):
		return math.MaxFloat64
	case math.IsInf(d, -1):
		return -math.MaxFloat64
	default:
		return d
	}
}

package graph

import (
	"encoding/json"
	"fmt"
)

// ValueKind discriminates the tagged Value union (design notes §9: "Values
// of heterogeneous shape"). A claim's value may be a bare primitive, a
// homogeneous list of primitives, or anything else, serialized to JSON.
type ValueKind int

const (
	ValuePrimitive ValueKind = iota
	ValuePrimitiveList
	ValueBlob
)

// Value is the normalized form of a claim target value, computed once at
// the boundary (ingestion) before any graph write. Primitives and
// homogeneous primitive lists pass through as their native Go form;
// everything else is serialized to a JSON string (Blob).
type Value struct {
	Kind ValueKind
	// Scalar holds the primitive value when Kind == ValuePrimitive.
	Scalar any
	// List holds the primitive list when Kind == ValuePrimitiveList.
	List []any
	// Blob holds the serialized JSON when Kind == ValueBlob.
	Blob string
}

// NewValue classifies an arbitrary decoded-JSON value into the tagged union.
func NewValue(v any) Value {
	switch t := v.(type) {
	case nil, bool, string, float64, int, int64:
		return Value{Kind: ValuePrimitive, Scalar: v}
	case []any:
		if isHomogeneousPrimitiveList(t) {
			return Value{Kind: ValuePrimitiveList, List: t}
		}
		return Value{Kind: ValueBlob, Blob: mustMarshal(v)}
	default:
		return Value{Kind: ValueBlob, Blob: mustMarshal(v)}
	}
}

func isHomogeneousPrimitiveList(items []any) bool {
	if len(items) == 0 {
		return true
	}
	switch items[0].(type) {
	case bool, string, float64, int, int64, nil:
	default:
		return false
	}
	for _, it := range items {
		switch it.(type) {
		case bool, string, float64, int, int64, nil:
		default:
			return false
		}
		if fmt.Sprintf("%T", it) != fmt.Sprintf("%T", items[0]) {
			return false
		}
	}
	return true
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// StorageValue returns the form written to the graph store's property map:
// the native scalar/list for Primitive/PrimitiveList, the JSON string for Blob.
func (v Value) StorageValue() any {
	switch v.Kind {
	case ValuePrimitive:
		return v.Scalar
	case ValuePrimitiveList:
		return v.List
	default:
		return v.Blob
	}
}

package fields

import (
	"math"
	"strconv"
	"strings"
)

// KeyTable lists the field names one logical value has been stored under by
// different uploaders, in priority order.
type KeyTable []string

// Key tables for the logical fields read from Nightscout records.
var (
	EntryValue     = KeyTable{"sgv", "mbg", "glucose"}
	EntryTimeText  = KeyTable{"dateString", "created_at"}
	EntryTimeEpoch = KeyTable{"date", "mills"}
	EntryDelta     = KeyTable{"delta", "trendDelta", "tick"}

	TreatmentTimeText  = KeyTable{"created_at", "timestamp", "dateString"}
	TreatmentTimeEpoch = KeyTable{"mills", "date"}

	StatusTimeText  = KeyTable{"created_at", "dateString", "timestamp"}
	StatusTimeEpoch = KeyTable{"mills", "date"}

	Carbs     = KeyTable{"carbs", "carb_input"}
	Dose      = KeyTable{"insulin", "insulinInUnits", "amount", "units", "value"}
	BolusPart = KeyTable{"normal", "extended", "immediate"}

	LoopObject   = KeyTable{"openaps", "loop"}
	COBObject    = KeyTable{"cob", "grams", "amount"}
	COBSuggested = KeyTable{"cob", "COB"}
	COBTopLevel  = KeyTable{"cob", "COB"}
	COBTopObject = KeyTable{"cob", "grams"}
	BasalIOB     = KeyTable{"basaliob", "basal_iob"}

	TargetLow  = KeyTable{"target_low", "targets", "targetLower"}
	TargetHigh = KeyTable{"target_high", "targetUpper"}

	SensorAge = KeyTable{"sage", "sensorage"}
)

// StrictNumber accepts JSON numbers only.
func StrictNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Number accepts JSON numbers and numeric strings. Strings may use a decimal
// comma ("1,5").
func Number(v any) (float64, bool) {
	if f, ok := StrictNumber(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, ",", ".")), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FirstNumber returns the value of the first key in keys whose value converts
// with convert.
func (o *Object) FirstNumber(keys KeyTable, convert func(any) (float64, bool)) (float64, string, bool) {
	for _, k := range keys {
		v, ok := o.Get(k)
		if !ok {
			continue
		}
		if f, ok := convert(v); ok {
			return f, k, true
		}
	}
	return 0, "", false
}

// FirstPositive returns the first strictly positive JSON number under keys.
func (o *Object) FirstPositive(keys KeyTable) (float64, bool) {
	for _, k := range keys {
		if f, ok := o.Number(k); ok && f > 0 {
			return f, true
		}
	}
	return 0, false
}

// FirstObject returns the first non-empty nested object under keys.
func (o *Object) FirstObject(keys KeyTable) (*Object, bool) {
	for _, k := range keys {
		if child, ok := o.Object(k); ok && child.Len() > 0 {
			return child, true
		}
	}
	return nil, false
}

// FirstArray returns the first non-empty array under keys.
func (o *Object) FirstArray(keys KeyTable) ([]any, bool) {
	for _, k := range keys {
		if arr, ok := o.Array(k); ok && len(arr) > 0 {
			return arr, true
		}
	}
	return nil, false
}

// Path follows a chain of object keys.
func (o *Object) Path(keys ...string) (any, bool) {
	var cur any = o
	for _, k := range keys {
		obj, ok := cur.(*Object)
		if !ok || obj == nil {
			return nil, false
		}
		cur, ok = obj.Get(k)
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// KeyIn returns a predicate matching keys case-insensitively against names.
func KeyIn(names KeyTable) func(string) bool {
	return func(key string) bool {
		for _, n := range names {
			if strings.EqualFold(key, n) {
				return true
			}
		}
		return false
	}
}

// Search walks v depth first in document order and returns the first value
// stored under a key accepted by match that convert accepts. The root is
// depth 0; objects and arrays nested deeper than maxDepth are not visited.
func Search[T any](v any, maxDepth int, match func(string) bool, convert func(any) (T, bool)) (T, string, bool) {
	return search(v, 0, maxDepth, match, convert)
}

func search[T any](v any, depth, maxDepth int, match func(string) bool, convert func(any) (T, bool)) (T, string, bool) {
	var zero T
	if depth > maxDepth {
		return zero, "", false
	}

	switch node := v.(type) {
	case *Object:
		for _, k := range node.keys {
			child := node.values[k]
			if match(k) {
				if out, ok := convert(child); ok {
					return out, k, true
				}
			}
			if out, key, ok := search(child, depth+1, maxDepth, match, convert); ok {
				return out, key, true
			}
		}
	case []any:
		for _, child := range node {
			if out, key, ok := search(child, depth+1, maxDepth, match, convert); ok {
				return out, key, true
			}
		}
	}
	return zero, "", false
}

// SearchLevels is like Search but inspects every key of an object before
// descending into any of its children.
func SearchLevels[T any](v any, maxDepth int, match func(string) bool, convert func(any) (T, bool)) (T, bool) {
	return searchLevels(v, 0, maxDepth, match, convert)
}

func searchLevels[T any](v any, depth, maxDepth int, match func(string) bool, convert func(any) (T, bool)) (T, bool) {
	var zero T
	if depth > maxDepth {
		return zero, false
	}

	switch node := v.(type) {
	case *Object:
		for _, k := range node.keys {
			if !match(k) {
				continue
			}
			if out, ok := convert(node.values[k]); ok {
				return out, true
			}
		}
		for _, k := range node.keys {
			if out, ok := searchLevels(node.values[k], depth+1, maxDepth, match, convert); ok {
				return out, true
			}
		}
	case []any:
		for _, child := range node {
			if out, ok := searchLevels(child, depth+1, maxDepth, match, convert); ok {
				return out, true
			}
		}
	}
	return zero, false
}

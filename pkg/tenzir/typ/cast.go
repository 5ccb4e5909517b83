// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package typ

import "fmt"

// CastReason explains why a column could not be cast, keyed by the
// originating field path.
type CastReason struct {
	Field  string
	Detail string
}

// Castable reports whether every value of "from" can be represented in
// "to" without loss of structure (numeric widening/narrowing and the
// null/any conversions are always attempted at the value layer; this
// function only rules out structurally incompatible shapes). It returns
// the list of column-level reasons blocking the cast, one per incompatible
// field path, empty when the cast is possible.
func Castable(from, to Type) []CastReason {
	return castable("", from, to)
}

func castable(path string, from, to Type) []CastReason {
	if from.Kind == KindNull {
		return nil
	}
	if from.Kind == to.Kind {
		switch from.Kind {
		case KindList:
			return castable(path+"[]", *from.Element, *to.Element)
		case KindMap:
			r := castable(path+".key", *from.MapKey, *to.MapKey)
			r = append(r, castable(path+".value", *from.MapValue, *to.MapValue)...)
			return r
		case KindRecord:
			return castableRecord(path, from, to)
		default:
			return nil
		}
	}
	if numericKind(from.Kind) && numericKind(to.Kind) {
		return nil
	}
	if to.Kind == KindRecord && from.Kind == KindRecord {
		return castableRecord(path, from, to)
	}
	return []CastReason{{
		Field:  joinPath(path),
		Detail: fmt.Sprintf("cannot cast %s to %s", from.Kind, to.Kind),
	}}
}

func castableRecord(path string, from, to Type) []CastReason {
	var reasons []CastReason
	for _, tf := range to.Fields {
		ff, ok := from.FieldByName(tf.Name)
		if !ok {
			// Missing source columns are filled with null; always castable.
			continue
		}
		fieldPath := tf.Name
		if path != "" {
			fieldPath = path + "." + tf.Name
		}
		reasons = append(reasons, castable(fieldPath, ff, tf.Type)...)
	}
	return reasons
}

func numericKind(k Kind) bool {
	switch k {
	case KindInt64, KindUint64, KindDouble:
		return true
	default:
		return false
	}
}

func joinPath(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package typ implements the closed set of element kinds that make up the
// Tenzir data model: a tagged union of scalar kinds plus the composite
// list/map/record/enumeration kinds, with structural equality and a stable
// fingerprint usable to compare schemas across processes.
package typ

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies the tag of the type union. Kind deliberately mirrors a
// Go-native enum rather than an open interface hierarchy: the set is closed
// by design and plugins never add new kinds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindUint64
	KindDouble
	KindDuration
	KindTime
	KindString
	KindPattern
	KindIP
	KindSubnet
	KindBlob
	KindSecret
	KindEnum
	KindList
	KindMap
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindDouble:
		return "double"
	case KindDuration:
		return "duration"
	case KindTime:
		return "time"
	case KindString:
		return "string"
	case KindPattern:
		return "pattern"
	case KindIP:
		return "ip"
	case KindSubnet:
		return "subnet"
	case KindBlob:
		return "blob"
	case KindSecret:
		return "secret"
	case KindEnum:
		return "enumeration"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Field is one named, typed member of a record, in declaration order.
type Field struct {
	Name string
	Type Type
}

// Type is a tagged union over the kinds enumerated above. It carries an
// optional name and a set of string attributes (e.g. "internal"), both of
// which are excluded from Fingerprint/Equal's structural comparison: two
// types with the same structure but different names are considered distinct
// for display purposes but Equal to each other.
type Type struct {
	Kind Kind

	// KindEnum only: dense, unique name -> index map.
	EnumNames []string

	// KindList only.
	Element *Type
	// KindMap only.
	MapKey   *Type
	MapValue *Type
	// KindRecord only, field names unique within the record.
	Fields []Field

	// KindPattern only: compiled regex options (case-insensitivity etc).
	PatternOptions string

	Name       string
	Attributes map[string]string
}

func Null() Type               { return Type{Kind: KindNull} }
func Bool() Type                { return Type{Kind: KindBool} }
func Int64() Type               { return Type{Kind: KindInt64} }
func Uint64() Type              { return Type{Kind: KindUint64} }
func Double() Type              { return Type{Kind: KindDouble} }
func Duration() Type            { return Type{Kind: KindDuration} }
func Time() Type                { return Type{Kind: KindTime} }
func String() Type              { return Type{Kind: KindString} }
func IP() Type                  { return Type{Kind: KindIP} }
func Subnet() Type              { return Type{Kind: KindSubnet} }
func Blob() Type                { return Type{Kind: KindBlob} }
func Secret() Type              { return Type{Kind: KindSecret} }

func Pattern(options string) Type {
	return Type{Kind: KindPattern, PatternOptions: options}
}

// Enum builds a dense enumeration type from an ordered set of names. It
// panics on duplicate names, matching the invariant in spec §3.1: dense,
// unique indices are a construction-time guarantee, not a runtime check.
func Enum(names ...string) Type {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			panic(fmt.Sprintf("typ.Enum: duplicate name %q", n))
		}
		seen[n] = struct{}{}
	}
	return Type{Kind: KindEnum, EnumNames: append([]string(nil), names...)}
}

func List(element Type) Type {
	if element.Kind == KindNull {
		panic("typ.List: element type must be non-null")
	}
	e := element
	return Type{Kind: KindList, Element: &e}
}

func Map(key, value Type) Type {
	if key.Kind == KindNull || value.Kind == KindNull {
		panic("typ.Map: key/value types must be non-null")
	}
	k, v := key, value
	return Type{Kind: KindMap, MapKey: &k, MapValue: &v}
}

// Record builds a record type from ordered fields. It panics on duplicate
// field names.
func Record(fields ...Field) Type {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, ok := seen[f.Name]; ok {
			panic(fmt.Sprintf("typ.Record: duplicate field %q", f.Name))
		}
		seen[f.Name] = struct{}{}
	}
	return Type{Kind: KindRecord, Fields: append([]Field(nil), fields...)}
}

// Named returns a copy of t carrying the given display name.
func (t Type) Named(name string) Type {
	t.Name = name
	return t
}

// WithAttribute returns a copy of t with the given attribute set.
func (t Type) WithAttribute(key, value string) Type {
	out := t
	out.Attributes = make(map[string]string, len(t.Attributes)+1)
	for k, v := range t.Attributes {
		out.Attributes[k] = v
	}
	out.Attributes[key] = value
	return out
}

func (t Type) HasAttribute(key string) bool {
	_, ok := t.Attributes[key]
	return ok
}

// Equal reports structural equality, ignoring Name and Attributes.
func (t Type) Equal(other Type) bool {
	return t.Fingerprint() == other.Fingerprint()
}

// Fingerprint computes a stable content hash identifying t across
// processes. Name and Attributes never enter the hash: two
// types differing only in display metadata are the same type.
func (t Type) Fingerprint() string {
	h := sha256.New()
	t.hash(h)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (t Type) hash(h interface{ Write([]byte) (int, error) }) {
	writeUint(h, uint64(t.Kind))
	switch t.Kind {
	case KindEnum:
		writeUint(h, uint64(len(t.EnumNames)))
		for _, n := range t.EnumNames {
			writeString(h, n)
		}
	case KindPattern:
		writeString(h, t.PatternOptions)
	case KindList:
		t.Element.hash(h)
	case KindMap:
		t.MapKey.hash(h)
		t.MapValue.hash(h)
	case KindRecord:
		writeUint(h, uint64(len(t.Fields)))
		for _, f := range t.Fields {
			writeString(h, f.Name)
			f.Type.hash(h)
		}
	}
}

func writeUint(h interface{ Write([]byte) (int, error) }, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:])
}

func writeString(h interface{ Write([]byte) (int, error) }, s string) {
	writeUint(h, uint64(len(s)))
	_, _ = h.Write([]byte(s))
}

// String renders a human-readable type expression, e.g. "record{a: int64,
// b: list(string)}". It is used in diagnostics and is not
// guaranteed stable across versions.
func (t Type) String() string {
	var b strings.Builder
	t.render(&b)
	if t.Name != "" {
		return fmt.Sprintf("%s(%s)", t.Name, b.String())
	}
	return b.String()
}

func (t Type) render(b *strings.Builder) {
	switch t.Kind {
	case KindEnum:
		b.WriteString("enumeration{")
		b.WriteString(strings.Join(t.EnumNames, ", "))
		b.WriteString("}")
	case KindList:
		b.WriteString("list(")
		t.Element.render(b)
		b.WriteString(")")
	case KindMap:
		b.WriteString("map(")
		t.MapKey.render(b)
		b.WriteString(", ")
		t.MapValue.render(b)
		b.WriteString(")")
	case KindRecord:
		b.WriteString("record{")
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			b.WriteString(f.Type.String())
		}
		b.WriteString("}")
	default:
		b.WriteString(t.Kind.String())
	}
}

// Flatten expands nested record fields by joining field names with sep,
// e.g. {a: {b: int64}} with sep "." becomes {a.b: int64}. It reports
// renamed-field conflicts (two distinct original paths colliding on the
// flattened name) via the returned conflicts slice, deduplicated by
// flattened name, matching spec §4.1: "reports renamed-field conflicts once
// per schema".
func Flatten(t Type, sep string) (flat Type, conflicts []string) {
	if t.Kind != KindRecord {
		return t, nil
	}
	fields, conflicts := flattenFields(t.Fields, "", sep)
	return Record(fields...), conflicts
}

func flattenFields(fields []Field, prefix, sep string) ([]Field, []string) {
	var out []Field
	var conflicts []string
	seen := make(map[string]struct{})
	for _, f := range fields {
		name := f.Name
		if prefix != "" {
			name = prefix + sep + f.Name
		}
		if f.Type.Kind == KindRecord {
			nested, nc := flattenFields(f.Type.Fields, name, sep)
			conflicts = append(conflicts, nc...)
			for _, nf := range nested {
				if _, dup := seen[nf.Name]; dup {
					conflicts = append(conflicts, nf.Name)
					continue
				}
				seen[nf.Name] = struct{}{}
				out = append(out, nf)
			}
			continue
		}
		if _, dup := seen[name]; dup {
			conflicts = append(conflicts, name)
			continue
		}
		seen[name] = struct{}{}
		out = append(out, Field{Name: name, Type: f.Type})
	}
	sort.SliceStable(conflicts, func(i, j int) bool { return conflicts[i] < conflicts[j] })
	return out, dedupeStrings(conflicts)
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// FieldByName looks up a direct field of a record type.
func (t Type) FieldByName(name string) (Type, bool) {
	if t.Kind != KindRecord {
		return Type{}, false
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return Type{}, false
}

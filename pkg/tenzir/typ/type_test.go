// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package typ

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintStructuralEquality(t *testing.T) {
	a := Record(Field{"a", Int64()}, Field{"b", String()})
	b := Record(Field{"a", Int64()}, Field{"b", String()}).Named("shape")

	require.True(t, a.Equal(b), "name must not affect structural equality")
	require.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintDistinguishesFieldOrder(t *testing.T) {
	a := Record(Field{"a", Int64()}, Field{"b", String()})
	b := Record(Field{"b", String()}, Field{"a", Int64()})
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestEnumRejectsDuplicateNames(t *testing.T) {
	require.Panics(t, func() { Enum("a", "b", "a") })
}

func TestRecordRejectsDuplicateFields(t *testing.T) {
	require.Panics(t, func() { Record(Field{"a", Int64()}, Field{"a", String()}) })
}

func TestFlattenJoinsNestedNames(t *testing.T) {
	nested := Record(
		Field{"a", Record(Field{"b", Int64()}, Field{"c", String()})},
		Field{"d", Bool()},
	)
	flat, conflicts := Flatten(nested, ".")
	require.Empty(t, conflicts)
	require.Equal(t, []Field{
		{"a.b", Int64()},
		{"a.c", String()},
		{"d", Bool()},
	}, flat.Fields)
}

func TestFlattenReportsConflictsOnce(t *testing.T) {
	nested := Record(
		Field{"a", Record(Field{"b", Int64()})},
		Field{"a.b", String()},
	)
	_, conflicts := Flatten(nested, ".")
	require.Equal(t, []string{"a.b"}, conflicts)
}

func TestFlattenIsIdempotent(t *testing.T) {
	nested := Record(Field{"a", Record(Field{"b", Int64()})})
	once, _ := Flatten(nested, ".")
	twice, _ := Flatten(once, ".")
	require.True(t, once.Equal(twice))
}

func TestCastableNumericWidening(t *testing.T) {
	require.Empty(t, Castable(Int64(), Double()))
	require.Empty(t, Castable(Uint64(), Int64()))
}

func TestCastableReportsPerColumnReason(t *testing.T) {
	from := Record(Field{"a", String()}, Field{"b", Int64()})
	to := Record(Field{"a", Int64()}, Field{"b", Int64()})
	reasons := Castable(from, to)
	require.Len(t, reasons, 1)
	require.Equal(t, "a", reasons[0].Field)
}

func TestCastableMissingSourceColumnIsFine(t *testing.T) {
	from := Record(Field{"a", Int64()})
	to := Record(Field{"a", Int64()}, Field{"b", String()})
	require.Empty(t, Castable(from, to))
}

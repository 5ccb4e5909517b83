// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

func TestRegisterAndListPartitions(t *testing.T) {
	c := New()
	id := uuid.New()
	c.RegisterPartition(Partition{UUID: id, Events: 10, Schema: typ.Record(typ.Field{Name: "a", Type: typ.Int64()}).Named("s")})

	parts := c.Partitions()
	require.Len(t, parts, 1)
	require.Equal(t, id, parts[0].UUID)

	c.RemovePartition(id)
	require.Empty(t, c.Partitions())
}

func TestSchemasDeduplicatesByFingerprint(t *testing.T) {
	c := New()
	schema := typ.Record(typ.Field{Name: "a", Type: typ.Int64()}).Named("s")
	c.RegisterPartition(Partition{UUID: uuid.New(), Schema: schema})
	c.RegisterPartition(Partition{UUID: uuid.New(), Schema: schema})

	schemas := c.Schemas()
	require.Len(t, schemas, 1)
}

func TestPluginsRoundTrip(t *testing.T) {
	c := New()
	c.RegisterPlugin(Plugin{Name: "where", Kind: "operator", Version: "1.0"})
	plugins := c.Plugins()
	require.Len(t, plugins, 1)
	require.Equal(t, "where", plugins[0].Name)
}

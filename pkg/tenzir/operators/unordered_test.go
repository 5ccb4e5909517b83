// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operators

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
)

// Spec §8 property 6: "unordered(op) preserves the multiset of rows
// produced by op but need not preserve order." Unordered itself never
// reorders (its Open simply delegates to the child); this test checks it
// is a transparent pass-through that preserves the exact multiset the
// wrapped child would have produced on its own.
func TestUnorderedPreservesMultiset(t *testing.T) {
	in := &sliceStream{msgs: []op.Message{
		op.BatchMessage(singleColumnBatch("n", []int64{3, 1, 2})),
		op.Exhausted(),
	}}

	head := NewHead(3)
	u := NewUnordered(head)

	out, err := u.Open(newOpenOctx(), in)
	require.NoError(t, err)

	msgs := drainAll(t, out)
	got := collectInt64Column(t, msgs, "n")
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Equal(t, []int64{1, 2, 3}, got)
}

func TestUnorderedRequestsUnorderedFromOptimize(t *testing.T) {
	u := NewUnordered(NewHead(1))
	result := u.Optimize("residual", op.Ordered)
	require.Equal(t, op.Unordered, result.RequestedOrder)
}

func TestUnorderedNameWrapsChildName(t *testing.T) {
	u := NewUnordered(NewHead(1))
	require.Equal(t, "unordered(head)", u.Name())
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package exec

import "github.com/tenzir/pipeline-core/pkg/tenzir/metrics"

// WireMetrics registers one buffer-stats cell per stage's outbound
// buffer against reg, so the node-wide 1 Hz poller (pkg/tenzir/metrics)
// picks up this pipeline's depths without the scheduler importing
// anything about where those snapshots end up. Call before Run; the
// last stage (the sink) has no outbound buffer and is skipped.
func (p *Pipeline) WireMetrics(reg *metrics.Registry) {
	for _, s := range p.stages {
		if s.Outbound == nil {
			continue
		}
		stage := s
		update := reg.Register(p.ID, stage.Operator.Name(), func() bool {
			return !stage.cancelled.Load()
		})
		stage.Outbound.OnDepthChange(update)
	}
}

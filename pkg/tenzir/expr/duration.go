// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration extends time.ParseDuration with the day ("d") and week
// ("w") suffixes TQL duration literals support but the Go standard
// library does not. Exported for pkg/tenzir/tql's `duration`-hinted
// argument parsing.
func ParseDuration(s string) (time.Duration, error) { return parseDuration(s) }

// parseDuration extends time.ParseDuration with the day ("d") and week
// ("w") suffixes TQL duration literals support but the Go standard
// library does not.
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	trimmed := strings.TrimSpace(s)
	for _, unit := range []struct {
		suffix string
		scale  time.Duration
	}{
		{"w", 7 * 24 * time.Hour},
		{"d", 24 * time.Hour},
	} {
		if strings.HasSuffix(trimmed, unit.suffix) {
			numPart := strings.TrimSuffix(trimmed, unit.suffix)
			n, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				continue
			}
			return time.Duration(n * float64(unit.scale)), nil
		}
	}
	return 0, fmt.Errorf("invalid duration %q", s)
}

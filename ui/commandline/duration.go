// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"time"
)

// FormatDuration pretty prints duration with at most 3 significant digits, e.g. "1.23ms" instead
// of "1.234567ms".
func FormatDuration(d time.Duration) string {
	var unit time.Duration
	switch abs := d.Abs(); {
	case abs >= 100*time.Second:
		unit = time.Second
	case abs >= time.Millisecond:
		unit = magnitude(abs, time.Millisecond, time.Second)
	case abs >= time.Microsecond:
		unit = magnitude(abs, time.Microsecond, time.Millisecond)
	default:
		return d.String()
	}
	return d.Round(unit).String()
}

// magnitude returns the rounding unit that keeps 3 significant digits for abs, with abs >= base.
// The unit is never larger than limit.
func magnitude(abs, base, limit time.Duration) time.Duration {
	unit := base / 100
	for threshold := 10 * base; abs >= threshold && unit < limit; threshold *= 10 {
		unit *= 10
	}
	return unit
}

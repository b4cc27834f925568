// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
)

// Energy represents energy usage as an uint64 MicroJoule count.
// The maximum energy that can be captured is 2^64 - 1 MicroJoules
type Energy uint64

const (
	MicroJoule Energy = 1
	MilliJoule        = 1000 * MicroJoule
	Joule             = 1000 * MilliJoule

	// joulesPerKWh is the number of joules in one kilowatt hour
	joulesPerKWh = 3_600_000.0
)

func (e Energy) MicroJoules() uint64 {
	return uint64(e)
}

func (e Energy) Joules() float64 {
	return float64(e) / float64(Joule)
}

func (e Energy) KWh() float64 {
	return e.Joules() / joulesPerKWh
}

func (e Energy) String() string {
	return fmt.Sprintf("%.2fJ", e.Joules())
}

// JoulesToKWh converts joules to kilowatt hours
func JoulesToKWh(j float64) float64 {
	return j / joulesPerKWh
}

// delta returns the energy consumed between two readings of a counter that
// wraps around to zero after reaching max
func delta(prev, cur, max Energy) Energy {
	if cur >= prev {
		return cur - prev
	}
	if max == 0 || prev > max {
		// unknown range; treat the reading as a counter reset
		return cur
	}
	return (max - prev) + cur
}

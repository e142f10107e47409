/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package debug

import (
	"sync/atomic"

	"github.com/cloudwego/mergecalls/internal/ssa"
)

// A Stats records statistics about the call site merging.
type Stats struct {
	Merge  MergeStats
	Demote DemoteStats
}

// A MergeStats records statistics about the merged call sites.
type MergeStats struct {
	Functions int
	Groups    int
	CallSites int
}

// A DemoteStats records statistics about the registers and Phi nodes demoted
// to stack slots.
type DemoteStats struct {
	Registers int
	Phis      int
}

// GetStats returns statistics of the call site merging.
func GetStats() Stats {
	return Stats{
		Merge: MergeStats{
			Functions: int(atomic.LoadUint64(&ssa.MergedFuncs)),
			Groups:    int(atomic.LoadUint64(&ssa.MergedGroups)),
			CallSites: int(atomic.LoadUint64(&ssa.MergedSites)),
		},
		Demote: DemoteStats{
			Registers: int(atomic.LoadUint64(&ssa.DemotedRegs)),
			Phis:      int(atomic.LoadUint64(&ssa.DemotedPhis)),
		},
	}
}

// ResetStats clears all the statistics.
func ResetStats() {
	ssa.ResetStats()
}

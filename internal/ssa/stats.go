/*
 * Copyright 2022 ByteDance Inc.
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

package ssa

import (
    `sync/atomic`
)

var (
    MergedFuncs  uint64
    MergedGroups uint64
    MergedSites  uint64
    DemotedRegs  uint64
    DemotedPhis  uint64
)

// ResetStats clears all the counters.
func ResetStats() {
    atomic.StoreUint64(&MergedFuncs, 0)
    atomic.StoreUint64(&MergedGroups, 0)
    atomic.StoreUint64(&MergedSites, 0)
    atomic.StoreUint64(&DemotedRegs, 0)
    atomic.StoreUint64(&DemotedPhis, 0)
}

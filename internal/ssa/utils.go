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
    `sort`
)

// blockSortedKeys returns the incoming blocks of a Phi node ordered by block
// ID, so that passes rewrite them in a stable order.
func blockSortedKeys(v map[*BasicBlock]*Value) []*BasicBlock {
    ret := make([]*BasicBlock, 0, len(v))
    for bb := range v { ret = append(ret, bb) }
    sort.Slice(ret, func(i int, j int) bool { return ret[i].Id < ret[j].Id })
    return ret
}

// CountCalls returns the number of direct calls to target in fn.
func CountCalls(fn *Func, target *Func) int {
    ret := 0
    for _, bb := range fn.Blocks {
        for _, ins := range bb.Ins {
            if c, ok := ins.(*IrCall); ok && c.Kind == CallDirect && c.Fn == target {
                ret++
            }
        }
    }
    return ret
}

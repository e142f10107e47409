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

// PostOrder iterates over the reachable blocks in post-order.
func (self *Func) PostOrder() *BasicBlockIter {
    return newBasicBlockIter(self)
}

// ReversePostOrder returns the reachable blocks in reverse post-order.
func (self *Func) ReversePostOrder() []*BasicBlock {
    return newBasicBlockIter(self).Reversed()
}

// Predecessors derives the predecessor lists from the terminators. Each
// predecessor appears once per block, in function order.
func (self *Func) Predecessors() map[*BasicBlock][]*BasicBlock {
    ret := make(map[*BasicBlock][]*BasicBlock, len(self.Blocks))
    for _, bb := range self.Blocks {
        for _, succ := range bb.Successors() {
            ret[succ] = append(ret[succ], bb)
        }
    }
    return ret
}

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
    `fmt`
    `strings`
)

type BasicBlock struct {
    Id   int
    Phi  []*IrPhi
    Ins  []IrNode
    Term IrTerminator
}

func (self *BasicBlock) String() string {
    buf := make([]string, 0, len(self.Phi) + len(self.Ins) + 2)
    buf = append(buf, fmt.Sprintf("bb_%d:", self.Id))

    /* Phi nodes first */
    for _, p := range self.Phi {
        buf = append(buf, indent(p.String()))
    }

    /* the block body */
    for _, p := range self.Ins {
        buf = append(buf, indent(p.String()))
    }

    /* a block under construction may not have a terminator yet */
    if self.Term != nil {
        buf = append(buf, indent(self.Term.String()))
    }

    /* join them together */
    return strings.Join(buf, "\n")
}

// Successors returns the distinct successors of the block, in the
// order of the terminator.
func (self *BasicBlock) Successors() []*BasicBlock {
    var ret []*BasicBlock
    var vis map[*BasicBlock]bool

    /* blocks under construction */
    if self.Term == nil {
        return nil
    }

    /* deduplicate the switch targets */
    for it := self.Term.Successors(); it.Next(); {
        if bb := it.Block(); !vis[bb] {
            if vis == nil {
                vis = make(map[*BasicBlock]bool)
            }
            vis[bb] = true
            ret = append(ret, bb)
        }
    }

    /* all done */
    return ret
}

func (self *BasicBlock) indexOf(ins IrNode) int {
    for i, p := range self.Ins {
        if p == ins {
            return i
        }
    }
    return -1
}

func (self *BasicBlock) insertAt(i int, ins ...IrNode) {
    buf := make([]IrNode, 0, len(self.Ins) + len(ins))
    buf = append(buf, self.Ins[:i]...)
    buf = append(buf, ins...)
    self.Ins = append(buf, self.Ins[i:]...)
}

func (self *BasicBlock) removeAt(i int) {
    copy(self.Ins[i:], self.Ins[i + 1:])
    self.Ins[len(self.Ins) - 1] = nil
    self.Ins = self.Ins[:len(self.Ins) - 1]
}

// rekeyPhis makes every Phi node of this block that has an incoming value
// from `from` take it from `to` instead.
func (self *BasicBlock) rekeyPhis(from *BasicBlock, to *BasicBlock) {
    for _, p := range self.Phi {
        if v, ok := p.V[from]; ok {
            delete(p.V, from)
            p.V[to] = v
        }
    }
}

func indent(s string) string {
    return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}

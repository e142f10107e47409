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
    `github.com/oleiade/lane`
)

type _IterFrame struct {
    i  int
    bb *BasicBlock
    sb []*BasicBlock
}

func newIterFrame(bb *BasicBlock) *_IterFrame {
    return &_IterFrame {
        bb: bb,
        sb: bb.Successors(),
    }
}

// BasicBlockIter visits every block reachable from the entry block in
// post-order.
type BasicBlockIter struct {
    b *BasicBlock
    s *lane.Stack
    v map[*BasicBlock]struct{}
}

func newBasicBlockIter(fn *Func) *BasicBlockIter {
    it := &BasicBlockIter {
        s: lane.NewStack(),
        v: make(map[*BasicBlock]struct{}, len(fn.Blocks)),
    }

    /* declarations have nothing to visit */
    if !fn.IsDeclaration() {
        it.s.Push(newIterFrame(fn.Entry()))
        it.v[fn.Entry()] = struct{}{}
    }

    /* all done */
    return it
}

func (self *BasicBlockIter) Next() bool {
    var ok bool
    var nx *BasicBlock

    /* scan until the stack is empty */
    for !self.s.Empty() {
        this := self.s.Head().(*_IterFrame)

        /* all the successors are visited, pop the current node */
        if this.i == len(this.sb) {
            self.b = self.s.Pop().(*_IterFrame).bb
            return true
        }

        /* visit the next successor */
        nx = this.sb[this.i]
        this.i++

        /* push it if not visited yet */
        if _, ok = self.v[nx]; !ok {
            self.v[nx] = struct{}{}
            self.s.Push(newIterFrame(nx))
        }
    }

    /* clear the basic block pointer to indicate no more blocks */
    self.b = nil
    return false
}

func (self *BasicBlockIter) Block() *BasicBlock {
    return self.b
}

func (self *BasicBlockIter) ForEach(action func(bb *BasicBlock)) {
    for self.Next() {
        action(self.b)
    }
}

func (self *BasicBlockIter) Reversed() []*BasicBlock {
    var ret []*BasicBlock

    /* dump all the blocks */
    for self.Next() {
        ret = append(ret, self.b)
    }

    /* reverse the order */
    blockreverse(ret)
    return ret
}

func blockreverse(s []*BasicBlock) {
    for i, j := 0, len(s) - 1; i < j; i, j = i + 1, j - 1 {
        s[i], s[j] = s[j], s[i]
    }
}

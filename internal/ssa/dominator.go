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

    `gonum.org/v1/gonum/graph/flow`
    `gonum.org/v1/gonum/graph/simple`
    `gonum.org/v1/gonum/graph/traverse`
)

// DominatorTree answers dominance and reachability queries about the
// blocks of a function, as of the time it was built.
type DominatorTree struct {
    Root *BasicBlock
    tree flow.DominatorTree
    walk traverse.DepthFirst
    byid map[int64]*BasicBlock
}

func buildFlowGraph(fn *Func) *simple.DirectedGraph {
    g := simple.NewDirectedGraph()

    /* add every block as a node */
    for _, bb := range fn.Blocks {
        g.AddNode(simple.Node(bb.Id))
    }

    /* add the control flow edges, self loops never affect dominance */
    for _, bb := range fn.Blocks {
        for _, succ := range bb.Successors() {
            if succ != bb {
                g.SetEdge(g.NewEdge(simple.Node(bb.Id), simple.Node(succ.Id)))
            }
        }
    }

    /* all done */
    return g
}

func BuildDominatorTree(fn *Func) *DominatorTree {
    g := buildFlowGraph(fn)
    root := simple.Node(fn.Entry().Id)

    /* construct the dominator tree */
    dt := &DominatorTree {
        Root: fn.Entry(),
        tree: flow.Dominators(root, g),
        byid: make(map[int64]*BasicBlock, len(fn.Blocks)),
    }

    /* index the blocks */
    for _, bb := range fn.Blocks {
        dt.byid[int64(bb.Id)] = bb
    }

    /* find out every reachable block */
    dt.walk.Walk(g, root, nil)
    return dt
}

// Reachable reports whether bb can be reached from the entry block.
func (self *DominatorTree) Reachable(bb *BasicBlock) bool {
    return self.walk.Visited(simple.Node(bb.Id))
}

// DominatedBy returns the immediate dominator of bb, or nil for the entry
// block and unreachable blocks.
func (self *DominatorTree) DominatedBy(bb *BasicBlock) *BasicBlock {
    if p := self.tree.DominatorOf(int64(bb.Id)); p == nil {
        return nil
    } else {
        return self.byid[p.ID()]
    }
}

// DominatorOf returns the blocks immediately dominated by bb, ordered by
// block ID.
func (self *DominatorTree) DominatorOf(bb *BasicBlock) []*BasicBlock {
    nodes := self.tree.DominatedBy(int64(bb.Id))
    ret := make([]*BasicBlock, 0, len(nodes))

    /* map back to blocks */
    for _, p := range nodes {
        ret = append(ret, self.byid[p.ID()])
    }

    /* sort by block ID */
    sort.Slice(ret, func(i int, j int) bool { return ret[i].Id < ret[j].Id })
    return ret
}

// Dominates reports whether every path from the entry block to b passes
// through a. Every block dominates itself.
func (self *DominatorTree) Dominates(a *BasicBlock, b *BasicBlock) bool {
    if !self.Reachable(b) {
        return false
    }

    /* walk up the tree */
    for p := b; p != nil; p = self.DominatedBy(p) {
        if p == a {
            return true
        }
    }

    /* not found */
    return false
}

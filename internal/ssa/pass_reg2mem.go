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

type _RegDef struct {
    bb  *BasicBlock
    ins IrNode
}

// Reg2Mem demotes every register that is used outside of its defining block
// into a stack slot, then replaces every Phi node with memory operations. The
// result is trivially in SSA form regardless of how the CFG was rewritten.
type Reg2Mem struct{}

func (Reg2Mem) definitions(fn *Func) ([]Reg, map[Reg]_RegDef) {
    var ok bool
    var rr []Reg
    var dd IrDefinitions
    var ds = make(map[Reg]_RegDef)

    /* record every definition in function order */
    for _, bb := range fn.Blocks {
        for _, p := range bb.Phi {
            rr = append(rr, p.R)
            ds[p.R] = _RegDef{bb: bb, ins: p}
        }

        /* scan instructions */
        for _, p := range bb.Ins {
            if dd, ok = p.(IrDefinitions); ok {
                for _, r := range dd.Definitions() {
                    rr = append(rr, *r)
                    ds[*r] = _RegDef{bb: bb, ins: p}
                }
            }
        }
    }

    /* all done */
    return rr, ds
}

func (self Reg2Mem) escapes(fn *Func) []Reg {
    var ret []Reg
    var esc = make(map[Reg]bool)
    var def, ds = self.definitions(fn)

    /* the entry block dominates everything */
    pinned := func(d _RegDef) bool {
        switch d.ins.(type) {
            case *IrLoadArg : return d.bb == fn.Blocks[0]
            case *IrAlloca  : return d.bb == fn.Blocks[0]
            default         : return false
        }
    }

    /* registers used by Phi nodes or by another block */
    fn.ForEachUsage(func(bb *BasicBlock, ins IrNode, v *Value) {
        if r, ok := (*v).(Reg); ok {
            if d, ok := ds[r]; ok && !pinned(d) {
                if _, isphi := ins.(*IrPhi); isphi || d.bb != bb {
                    esc[r] = true
                }
            }
        }
    })

    /* keep the definition order */
    for _, r := range def {
        if esc[r] {
            ret = append(ret, r)
        }
    }

    /* all done */
    return ret
}

func (self Reg2Mem) demoteRegs(fn *Func, regs []Reg, slots map[Reg]Reg) {
    var ok bool
    var tail = make(map[*BasicBlock][]IrNode)

    /* reload a register right before it is used */
    reload := func(buf []IrNode, v *Value) []IrNode {
        if r, ok := (*v).(Reg); ok {
            if s, ok := slots[r]; ok {
                t := fn.NewReg()
                buf = append(buf, &IrLoad{R: t, Mem: s})
                *v = t
            }
        }
        return buf
    }

    /* allocate the slots */
    for _, r := range regs {
        slots[r] = fn.NewReg()
    }

    /* Phi operands are reloaded at the end of the incoming blocks */
    for _, bb := range fn.Blocks {
        for _, p := range bb.Phi {
            for _, b := range blockSortedKeys(p.V) {
                tail[b] = reload(tail[b], p.V[b])
            }
        }
    }

    /* rewrite every block */
    for _, bb := range fn.Blocks {
        var use IrUsages
        var def IrDefinitions
        var buf = make([]IrNode, 0, len(bb.Ins))

        /* spill the Phi results at the top of block */
        for _, p := range bb.Phi {
            if s, ok := slots[p.R]; ok {
                buf = append(buf, &IrStore{V: p.R, Mem: s})
            }
        }

        /* reload the operands and spill the results */
        for _, p := range bb.Ins {
            if use, ok = p.(IrUsages); ok {
                for _, v := range use.Usages() {
                    buf = reload(buf, v)
                }
            }

            /* the instruction itself */
            buf = append(buf, p)

            /* spill the results */
            if def, ok = p.(IrDefinitions); ok {
                for _, r := range def.Definitions() {
                    if s, ok := slots[*r]; ok {
                        buf = append(buf, &IrStore{V: *r, Mem: s})
                    }
                }
            }
        }

        /* operands of the terminator */
        if use, ok = bb.Term.(IrUsages); ok {
            for _, v := range use.Usages() {
                buf = reload(buf, v)
            }
        }

        /* reloads for the Phi nodes in successors */
        bb.Ins = append(buf, tail[bb]...)
    }
}

func (self Reg2Mem) demotePhis(fn *Func) []Reg {
    var ret []Reg

    /* every Phi node becomes a stack slot */
    for _, bb := range fn.Blocks {
        if len(bb.Phi) == 0 {
            continue
        }

        /* load the value at the top of the block */
        ins := make([]IrNode, 0, len(bb.Phi))
        for _, p := range bb.Phi {
            s := fn.NewReg()
            ret = append(ret, s)
            ins = append(ins, &IrLoad{R: p.R, Mem: s})

            /* store the incoming values at the end of each predecessor */
            for _, b := range blockSortedKeys(p.V) {
                b.Ins = append(b.Ins, &IrStore{V: *p.V[b], Mem: s})
            }
        }

        /* replace the Phi nodes */
        bb.Phi = nil
        bb.insertAt(0, ins...)
    }

    /* all done */
    return ret
}

func (self Reg2Mem) Apply(fn *Func) bool {
    if fn.IsDeclaration() {
        return false
    }

    /* demote the registers */
    regs := self.escapes(fn)
    slots := make(map[Reg]Reg, len(regs))
    self.demoteRegs(fn, regs, slots)

    /* then the Phi nodes */
    phis := self.demotePhis(fn)
    allocs := make([]IrNode, 0, len(regs) + len(phis))

    /* stack slots for registers */
    for _, r := range regs {
        allocs = append(allocs, &IrAlloca{R: slots[r]})
    }

    /* stack slots for Phi nodes */
    for _, s := range phis {
        allocs = append(allocs, &IrAlloca{R: s})
    }

    /* nothing to demote */
    if len(allocs) == 0 {
        return false
    }

    /* allocate all the slots in the entry block */
    fn.Blocks[0].insertAt(0, allocs...)
    atomic.AddUint64(&DemotedRegs, uint64(len(regs)))
    atomic.AddUint64(&DemotedPhis, uint64(len(phis)))
    return true
}

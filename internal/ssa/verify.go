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
    `github.com/cloudwego/mergecalls/internal/utils`
)

type _DefSite struct {
    bb *BasicBlock
    id int
}

type _Verifier struct {
    fn   *Func
    dt   *DominatorTree
    defs map[Reg]_DefSite
    blks map[*BasicBlock]bool
}

// Verify checks that fn is a well-formed SSA function: every block ends
// with exactly one terminator that only targets blocks of fn, Phi nodes
// have exactly one incoming value per predecessor, calls match the arity
// of their callee, and every use of a register is dominated by its
// definition. Uses in unreachable blocks are not checked for dominance.
func Verify(fn *Func) error {
    if fn.IsDeclaration() {
        return nil
    }

    /* create the verifier */
    v := &_Verifier {
        fn   : fn,
        defs : make(map[Reg]_DefSite),
        blks : make(map[*BasicBlock]bool, len(fn.Blocks)),
    }

    /* check the structure before building the dominator tree */
    if err := v.structure(); err != nil {
        return err
    }

    /* all the registers and instructions */
    if err := v.definitions(); err != nil {
        return err
    }

    /* check the uses against the dominator tree */
    v.dt = BuildDominatorTree(fn)
    return v.usages()
}

func (self *_Verifier) structure() error {
    ids := make(map[int]bool, len(self.fn.Blocks))
    for _, bb := range self.fn.Blocks {
        if ids[bb.Id] {
            return utils.EBlock(self.fn.Name, bb.Id, "duplicated block ID")
        }
        ids[bb.Id] = true
        self.blks[bb] = true
    }

    /* check every terminator */
    for _, bb := range self.fn.Blocks {
        if bb.Term == nil {
            return utils.EBlock(self.fn.Name, bb.Id, "block does not terminate")
        }

        /* conditional switches must have a value */
        if sw, ok := bb.Term.(*IrSwitch); ok {
            if sw.Ln == nil {
                return utils.EBlock(self.fn.Name, bb.Id, "switch without default branch")
            } else if len(sw.Br) != 0 && sw.V == nil {
                return utils.EBlock(self.fn.Name, bb.Id, "switch without value")
            }
        }

        /* returns must match the function type */
        if rt, ok := bb.Term.(*IrReturn); ok {
            if self.fn.Void && rt.V != nil {
                return utils.EBlock(self.fn.Name, bb.Id, "void function returns a value")
            } else if !self.fn.Void && rt.V == nil {
                return utils.EBlock(self.fn.Name, bb.Id, "missing return value")
            }
        }

        /* all successors must be part of this function */
        for _, succ := range bb.Successors() {
            if !self.blks[succ] {
                return utils.EBlock(self.fn.Name, bb.Id, "branch to foreign block bb_%d", succ.Id)
            }
        }
    }

    /* check the Phi nodes against the predecessors */
    pred := self.fn.Predecessors()
    entry := self.fn.Entry()

    /* the entry block can never be a branch target */
    if len(pred[entry]) != 0 {
        return utils.EBlock(self.fn.Name, entry.Id, "entry block has predecessors")
    }

    /* every Phi node must cover exactly all the predecessors */
    for _, bb := range self.fn.Blocks {
        for _, p := range bb.Phi {
            if len(p.V) != len(pred[bb]) {
                return utils.EBlock(self.fn.Name, bb.Id, "%s: expected %d incoming values, got %d", p.R, len(pred[bb]), len(p.V))
            }
            for _, b := range pred[bb] {
                if _, ok := p.V[b]; !ok {
                    return utils.EBlock(self.fn.Name, bb.Id, "%s: missing incoming value from bb_%d", p.R, b.Id)
                }
            }
        }
    }

    /* all checked ok */
    return nil
}

func (self *_Verifier) define(bb *BasicBlock, i int, r Reg) error {
    if r == Rz {
        return nil
    } else if _, ok := self.defs[r]; ok {
        return utils.EBlock(self.fn.Name, bb.Id, "register redefined: %s", r)
    } else {
        self.defs[r] = _DefSite{bb: bb, id: i}
        return nil
    }
}

func (self *_Verifier) instr(bb *BasicBlock, ins IrNode) error {
    switch p := ins.(type) {
        case *IrPhi: {
            return utils.EBlock(self.fn.Name, bb.Id, "Phi node in block body: %s", p)
        }

        /* arguments are only loaded in the entry block */
        case *IrLoadArg: {
            if bb != self.fn.Entry() {
                return utils.EBlock(self.fn.Name, bb.Id, "argument loaded outside the entry block")
            } else if p.Id < 0 || p.Id >= self.fn.Params {
                return utils.EBlock(self.fn.Name, bb.Id, "argument index out of range: #%d", p.Id)
            }
        }

        /* calls must match the callee */
        case *IrCall: {
            switch p.Kind {
                case CallDirect: {
                    if p.Fn == nil {
                        return utils.EBlock(self.fn.Name, bb.Id, "direct call without callee")
                    } else if len(p.In) != p.Fn.Params {
                        return utils.EBlock(self.fn.Name, bb.Id, "@%s takes %d arguments, got %d", p.Fn.Name, p.Fn.Params, len(p.In))
                    } else if p.Fn.Void && p.R != Rz {
                        return utils.EBlock(self.fn.Name, bb.Id, "result of void function @%s is used", p.Fn.Name)
                    }
                }
                case CallIndirect: {
                    if p.Target == nil {
                        return utils.EBlock(self.fn.Name, bb.Id, "indirect call without target")
                    }
                }
            }
        }

        /* the function must be resolved */
        case *IrFuncAddr: {
            if p.Fn == nil {
                return utils.EBlock(self.fn.Name, bb.Id, "address of unknown function")
            }
        }
    }
    return nil
}

func (self *_Verifier) definitions() error {
    for _, bb := range self.fn.Blocks {
        for _, p := range bb.Phi {
            if err := self.define(bb, -1, p.R); err != nil {
                return err
            }
        }

        /* check the instructions */
        for i, ins := range bb.Ins {
            if err := self.instr(bb, ins); err != nil {
                return err
            }

            /* record the definitions */
            if def, ok := ins.(IrDefinitions); ok {
                for _, r := range def.Definitions() {
                    if err := self.define(bb, i, *r); err != nil {
                        return err
                    }
                }
            }
        }
    }
    return nil
}

func (self *_Verifier) lookup(bb *BasicBlock, v *Value) (_DefSite, bool, error) {
    var ok bool
    var rr Reg
    var ds _DefSite

    /* check for operands */
    if *v == nil {
        return ds, false, utils.EBlock(self.fn.Name, bb.Id, "missing operand")
    }

    /* constants are always available */
    if rr, ok = (*v).(Reg); !ok {
        return ds, false, nil
    }

    /* the zero register is never a valid operand */
    if rr == Rz {
        return ds, false, utils.EBlock(self.fn.Name, bb.Id, "use of the zero register")
    }

    /* find the definition */
    if ds, ok = self.defs[rr]; !ok {
        return ds, false, utils.EBlock(self.fn.Name, bb.Id, "use of undefined register: %s", rr)
    } else {
        return ds, true, nil
    }
}

func (self *_Verifier) use(bb *BasicBlock, i int, v *Value) error {
    ds, ok, err := self.lookup(bb, v)
    if err != nil || !ok || !self.dt.Reachable(bb) {
        return err
    }

    /* definitions in the same block must come first */
    if ds.bb == bb {
        if ds.id < i {
            return nil
        } else {
            return utils.EBlock(self.fn.Name, bb.Id, "%s is used before its definition", *v)
        }
    }

    /* otherwise the definition must dominate the use */
    if !self.dt.Dominates(ds.bb, bb) {
        return utils.EBlock(self.fn.Name, bb.Id, "%s defined in bb_%d does not dominate its use", *v, ds.bb.Id)
    } else {
        return nil
    }
}

func (self *_Verifier) usePhi(bb *BasicBlock, pred *BasicBlock, v *Value) error {
    ds, ok, err := self.lookup(bb, v)
    if err != nil || !ok || !self.dt.Reachable(pred) {
        return err
    }

    /* the value must be available at the end of the predecessor */
    if !self.dt.Dominates(ds.bb, pred) {
        return utils.EBlock(self.fn.Name, bb.Id, "%s defined in bb_%d is not available at the end of bb_%d", *v, ds.bb.Id, pred.Id)
    } else {
        return nil
    }
}

func (self *_Verifier) usages() error {
    for _, bb := range self.fn.Blocks {
        for _, p := range bb.Phi {
            for pred, v := range p.V {
                if err := self.usePhi(bb, pred, v); err != nil {
                    return err
                }
            }
        }

        /* check the instructions */
        for i, ins := range bb.Ins {
            if use, ok := ins.(IrUsages); ok {
                for _, v := range use.Usages() {
                    if err := self.use(bb, i, v); err != nil {
                        return err
                    }
                }
            }
        }

        /* check the terminator */
        if use, ok := bb.Term.(IrUsages); ok {
            for _, v := range use.Usages() {
                if err := self.use(bb, len(bb.Ins), v); err != nil {
                    return err
                }
            }
        }
    }
    return nil
}

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

// Func is either a function definition with a body, or a declaration of an
// external function (no blocks). Blocks[0] is the entry block.
type Func struct {
    Name      string
    Params    int
    Void      bool
    Intrinsic bool
    Blocks    []*BasicBlock
    nreg      Reg
    nblk      int
}

func (self *Func) IsDeclaration() bool {
    return len(self.Blocks) == 0
}

func (self *Func) Entry() *BasicBlock {
    if len(self.Blocks) == 0 {
        panic("entry block of function declaration: @" + self.Name)
    } else {
        return self.Blocks[0]
    }
}

// NewReg allocates a register that was never defined in this function.
func (self *Func) NewReg() Reg {
    self.nreg++
    return self.nreg
}

func (self *Func) newBlock() *BasicBlock {
    bb := &BasicBlock{Id: self.nblk}
    self.nblk++
    return bb
}

// CreateBlock creates an empty block at the end of the function. Block IDs
// are never reused, even after blocks are removed.
func (self *Func) CreateBlock() *BasicBlock {
    bb := self.newBlock()
    self.Blocks = append(self.Blocks, bb)
    return bb
}

func (self *Func) MaxBlock() int {
    return self.nblk
}

func (self *Func) Block(id int) *BasicBlock {
    for _, bb := range self.Blocks {
        if bb.Id == id {
            return bb
        }
    }
    return nil
}

// Locate finds the block that contains ins, and the index of ins in it.
func (self *Func) Locate(ins IrNode) (*BasicBlock, int) {
    for _, bb := range self.Blocks {
        if i := bb.indexOf(ins); i >= 0 {
            return bb, i
        }
    }
    return nil, -1
}

// SplitBlock moves bb.Ins[i:] and the terminator of bb into a new block
// placed right after bb, then terminates bb with a jump to the new block.
// Phi nodes in the successors are updated to take their values from the
// new block.
func (self *Func) SplitBlock(bb *BasicBlock, i int) *BasicBlock {
    nb := self.newBlock()
    nb.Ins = append(nb.Ins, bb.Ins[i:]...)
    nb.Term = bb.Term

    /* the old block jumps straight to the new block */
    for j := i; j < len(bb.Ins); j++ {
        bb.Ins[j] = nil
    }

    /* truncate the old block */
    bb.Ins = bb.Ins[:i]
    bb.Term = IrJump(nb)

    /* the successors are now reached from the new block */
    for _, succ := range nb.Successors() {
        succ.rekeyPhis(bb, nb)
    }

    /* insert right after the original block */
    for p, v := range self.Blocks {
        if v == bb {
            self.Blocks = append(self.Blocks, nil)
            copy(self.Blocks[p + 2:], self.Blocks[p + 1:])
            self.Blocks[p + 1] = nb
            return nb
        }
    }

    /* not a block of this function */
    panic(fmt.Sprintf("split: bb_%d does not belong to @%s", bb.Id, self.Name))
}

// RemoveInstr removes ins from its block.
func (self *Func) RemoveInstr(ins IrNode) {
    if bb, i := self.Locate(ins); bb == nil {
        panic("remove: instruction not found: " + ins.String())
    } else {
        bb.removeAt(i)
    }
}

// ForEachUsage calls action with every operand slot of every Phi node,
// instruction and terminator in the function.
func (self *Func) ForEachUsage(action func(bb *BasicBlock, ins IrNode, v *Value)) {
    for _, bb := range self.Blocks {
        for _, p := range bb.Phi {
            for _, v := range p.Usages() {
                action(bb, p, v)
            }
        }

        /* scan instructions */
        for _, p := range bb.Ins {
            if use, ok := p.(IrUsages); ok {
                for _, v := range use.Usages() {
                    action(bb, p, v)
                }
            }
        }

        /* scan the terminator */
        if use, ok := bb.Term.(IrUsages); ok {
            for _, v := range use.Usages() {
                action(bb, bb.Term, v)
            }
        }
    }
}

// ReplaceAllUses rewrites every use of register r with v. Definitions are
// left untouched.
func (self *Func) ReplaceAllUses(r Reg, v Value) {
    self.ForEachUsage(func(_ *BasicBlock, _ IrNode, p *Value) {
        if x, ok := (*p).(Reg); ok && x == r {
            *p = v
        }
    })
}

func (self *Func) signature() string {
    var void string
    if self.Void { void = "void " }
    return fmt.Sprintf("%s@%s(%d)", void, self.Name, self.Params)
}

func (self *Func) String() string {
    if self.IsDeclaration() {
        if self.Intrinsic {
            return "declare intrinsic " + self.signature()
        } else {
            return "declare " + self.signature()
        }
    }

    /* dump every block */
    buf := make([]string, 0, len(self.Blocks) + 2)
    buf = append(buf, fmt.Sprintf("func %s {", self.signature()))

    /* function body */
    for _, bb := range self.Blocks {
        buf = append(buf, bb.String())
    }

    /* join them together */
    buf = append(buf, "}")
    return strings.Join(buf, "\n")
}

// Module is a set of functions that may call each other. Functions are
// identified by pointer identity, names only matter to the textual form.
type Module struct {
    Funcs []*Func
    names map[string]*Func
}

func NewModule() *Module {
    return &Module {
        names: make(map[string]*Func),
    }
}

func (self *Module) Lookup(name string) *Func {
    return self.names[name]
}

func (self *Module) add(fn *Func) *Func {
    if _, ok := self.names[fn.Name]; ok {
        panic("function redefined: @" + fn.Name)
    }
    self.names[fn.Name] = fn
    self.Funcs = append(self.Funcs, fn)
    return fn
}

// Declare adds an external function that takes `params` arguments.
func (self *Module) Declare(name string, params int, void bool) *Func {
    return self.add(&Func {
        Name   : name,
        Params : params,
        Void   : void,
    })
}

// DeclareIntrinsic adds an operation that is handled by the compiler
// itself rather than implemented as an ordinary function.
func (self *Module) DeclareIntrinsic(name string, params int, void bool) *Func {
    return self.add(&Func {
        Name      : name,
        Params    : params,
        Void      : void,
        Intrinsic : true,
    })
}

// Define adds a function whose body is to be built by the caller. The
// entry block is created along with the function.
func (self *Module) Define(name string, params int, void bool) *Func {
    fn := self.add(&Func {
        Name   : name,
        Params : params,
        Void   : void,
    })
    fn.CreateBlock()
    return fn
}

// Index returns the position of fn in the module, used as the address of
// the function, or -1 if fn is not part of the module.
func (self *Module) Index(fn *Func) int {
    for i, f := range self.Funcs {
        if f == fn {
            return i
        }
    }
    return -1
}

func (self *Module) String() string {
    buf := make([]string, 0, len(self.Funcs))
    for _, fn := range self.Funcs { buf = append(buf, fn.String()) }
    return strings.Join(buf, "\n\n") + "\n"
}

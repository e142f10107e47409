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
)

// Builder appends instructions to a function, one block at a time.
type Builder struct {
    Fn *Func
    bb *BasicBlock
}

// NewBuilder creates a builder positioned at the end of the entry block.
func NewBuilder(fn *Func) *Builder {
    return &Builder {
        Fn: fn,
        bb: fn.Entry(),
    }
}

func (self *Builder) Block() *BasicBlock {
    return self.bb
}

func (self *Builder) NewBlock() *BasicBlock {
    return self.Fn.CreateBlock()
}

func (self *Builder) SetBlock(bb *BasicBlock) {
    self.bb = bb
}

func (self *Builder) add(ins IrNode) {
    if self.bb.Term != nil {
        panic(fmt.Sprintf("builder: bb_%d of @%s is already terminated", self.bb.Id, self.Fn.Name))
    } else {
        self.bb.Ins = append(self.bb.Ins, ins)
    }
}

func (self *Builder) term(t IrTerminator) {
    if self.bb.Term != nil {
        panic(fmt.Sprintf("builder: bb_%d of @%s is already terminated", self.bb.Id, self.Fn.Name))
    } else {
        self.bb.Term = t
    }
}

func (self *Builder) Arg(i int) Reg {
    r := self.Fn.NewReg()
    self.add(&IrLoadArg{R: r, Id: i})
    return r
}

func (self *Builder) Copy(v Value) Reg {
    r := self.Fn.NewReg()
    self.add(&IrCopy{R: r, V: v})
    return r
}

func (self *Builder) Addr(fn *Func) Reg {
    r := self.Fn.NewReg()
    self.add(&IrFuncAddr{R: r, Fn: fn})
    return r
}

func (self *Builder) Binary(op IrBinaryOp, x Value, y Value) Reg {
    r := self.Fn.NewReg()
    self.add(&IrBinaryExpr{R: r, X: x, Y: y, Op: op})
    return r
}

// Call emits a direct call to fn, returns the result register, or Rz if fn
// is a void function.
func (self *Builder) Call(fn *Func, args ...Value) Reg {
    p := &IrCall {
        Kind : CallDirect,
        Fn   : fn,
        In   : args,
    }

    /* allocate the result register */
    if !fn.Void {
        p.R = self.Fn.NewReg()
    }

    /* add to the current block */
    self.add(p)
    return p.R
}

func (self *Builder) CallIndirect(target Value, void bool, args ...Value) Reg {
    p := &IrCall {
        Kind   : CallIndirect,
        Target : target,
        In     : args,
    }

    /* allocate the result register */
    if !void {
        p.R = self.Fn.NewReg()
    }

    /* add to the current block */
    self.add(p)
    return p.R
}

func (self *Builder) CallAsm(asm string, args ...Value) {
    self.add(&IrCall{Kind: CallAsm, Asm: asm, In: args})
}

func (self *Builder) Print(v Value) {
    self.add(&IrPrint{V: v})
}

// Phi adds a Phi node to the current block. The current block may already
// contain instructions.
func (self *Builder) Phi(in map[*BasicBlock]Value) Reg {
    p := &IrPhi {
        R: self.Fn.NewReg(),
        V: make(map[*BasicBlock]*Value, len(in)),
    }

    /* add every incoming value */
    for bb, v := range in {
        p.V[bb] = valnewref(v)
    }

    /* add to the current block */
    self.bb.Phi = append(self.bb.Phi, p)
    return p.R
}

func (self *Builder) Jump(to *BasicBlock) {
    self.term(IrJump(to))
}

// Branch goes to ifnz if cond is not zero, and ifz otherwise.
func (self *Builder) Branch(cond Value, ifnz *BasicBlock, ifz *BasicBlock) {
    self.term(&IrSwitch {
        V  : cond,
        Ln : ifnz,
        Br : map[int64]*BasicBlock { 0: ifz },
    })
}

func (self *Builder) Switch(v Value, def *BasicBlock, cases map[int64]*BasicBlock) {
    self.term(&IrSwitch{V: v, Ln: def, Br: cases})
}

// Return terminates the current block, v is nil for void functions.
func (self *Builder) Return(v Value) {
    self.term(&IrReturn{V: v})
}

func (self *Builder) Unreachable() {
    self.term(new(IrUnreachable))
}

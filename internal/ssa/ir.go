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
    `sort`
    `strconv`
    `strings`
)

type Value interface {
    fmt.Stringer
    irvalue()
}

func (Reg) irvalue() {}
func (Imm) irvalue() {}

// Reg is a virtual register. Rz is the zero register, which discards
// anything written to it and is never a valid operand.
type Reg uint32

const (
    Rz Reg = 0
)

func (self Reg) String() string {
    if self == Rz {
        return "_"
    } else {
        return "%" + strconv.FormatUint(uint64(self), 10)
    }
}

// Imm is a 64-bit integer constant operand.
type Imm int64

func (self Imm) String() string {
    return strconv.FormatInt(int64(self), 10)
}

func valnewref(v Value) (r *Value) {
    r = new(Value)
    *r = v
    return
}

func valsliceref(v []Value) (r []*Value) {
    r = make([]*Value, len(v))
    for i := range v { r[i] = &v[i] }
    return
}

func valsliceString(v []Value) string {
    ret := make([]string, 0, len(v))
    for _, x := range v { ret = append(ret, x.String()) }
    return strings.Join(ret, ", ")
}

type IrNode interface {
    fmt.Stringer
    irnode()
}

func (*IrPhi)         irnode() {}
func (*IrSwitch)      irnode() {}
func (*IrReturn)      irnode() {}
func (*IrUnreachable) irnode() {}
func (*IrLoadArg)     irnode() {}
func (*IrCopy)        irnode() {}
func (*IrFuncAddr)    irnode() {}
func (*IrBinaryExpr)  irnode() {}
func (*IrCall)        irnode() {}
func (*IrPrint)       irnode() {}
func (*IrAlloca)      irnode() {}
func (*IrLoad)        irnode() {}
func (*IrStore)       irnode() {}

type IrUsages interface {
    IrNode
    Usages() []*Value
}

type IrDefinitions interface {
    IrNode
    Definitions() []*Reg
}

type IrPhi struct {
    R Reg
    V map[*BasicBlock]*Value
}

func (self *IrPhi) String() string {
    nb := len(self.V)
    ret := make([]string, 0, nb)
    phi := make([]struct{b int; v Value}, 0, nb)

    /* add each path */
    for bb, v := range self.V {
        phi = append(phi, struct{b int; v Value}{b: bb.Id, v: *v})
    }

    /* sort by basic block ID */
    sort.Slice(phi, func(i int, j int) bool {
        return phi[i].b < phi[j].b
    })

    /* dump as string */
    for _, p := range phi {
        ret = append(ret, fmt.Sprintf("bb_%d: %s", p.b, p.v))
    }

    /* join them together */
    return fmt.Sprintf(
        "%s = φ(%s)",
        self.R,
        strings.Join(ret, ", "),
    )
}

func (self *IrPhi) Usages() (r []*Value) {
    r = make([]*Value, 0, len(self.V))
    for _, v := range self.V { r = append(r, v) }
    return
}

func (self *IrPhi) Definitions() []*Reg {
    return []*Reg { &self.R }
}

type IrSuccessors interface {
    Next() bool
    Block() *BasicBlock
    Value() (int64, bool)
}

type IrTerminator interface {
    IrNode
    Successors() IrSuccessors
    irterminator()
}

func (*IrSwitch)      irterminator() {}
func (*IrReturn)      irterminator() {}
func (*IrUnreachable) irterminator() {}

type _SwitchSuccessors struct {
    i int
    k []int64
    v *BasicBlock
    c *IrSwitch
    d bool
}

func (self *_SwitchSuccessors) Next() bool {
    if self.i < len(self.k) {
        self.v = self.c.Br[self.k[self.i]]
        self.i++
        return true
    } else if !self.d {
        self.d = true
        self.v = self.c.Ln
        self.i++
        return true
    } else {
        return false
    }
}

func (self *_SwitchSuccessors) Block() *BasicBlock {
    return self.v
}

func (self *_SwitchSuccessors) Value() (int64, bool) {
    if self.i > len(self.k) {
        return 0, false
    } else {
        return self.k[self.i - 1], true
    }
}

// IrSwitch jumps to Br[V] if present, otherwise to the default block Ln.
// A switch without any cases is an unconditional branch.
type IrSwitch struct {
    V  Value
    Ln *BasicBlock
    Br map[int64]*BasicBlock
}

func IrJump(to *BasicBlock) *IrSwitch {
    return &IrSwitch{Ln: to}
}

func (self *IrSwitch) keys() []int64 {
    ret := make([]int64, 0, len(self.Br))
    for k := range self.Br { ret = append(ret, k) }
    sort.Slice(ret, func(i int, j int) bool { return ret[i] < ret[j] })
    return ret
}

func (self *IrSwitch) String() string {
    nb := len(self.Br)
    ret := make([]string, 0, nb + 1)

    /* no branches */
    if nb == 0 {
        return fmt.Sprintf("goto bb_%d", self.Ln.Id)
    }

    /* add each case */
    for _, id := range self.keys() {
        ret = append(ret, fmt.Sprintf("  %d => bb_%d,", id, self.Br[id].Id))
    }

    /* default branch */
    ret = append(ret, fmt.Sprintf(
        "  _ => bb_%d,",
        self.Ln.Id,
    ))

    /* join them together */
    return fmt.Sprintf(
        "switch %s {\n%s\n}",
        self.V,
        strings.Join(ret, "\n"),
    )
}

func (self *IrSwitch) Usages() []*Value {
    if len(self.Br) == 0 || self.V == nil {
        return nil
    } else {
        return []*Value { &self.V }
    }
}

func (self *IrSwitch) Successors() IrSuccessors {
    return &_SwitchSuccessors {
        k: self.keys(),
        c: self,
    }
}

type _EmptySuccessor struct{}
func (_EmptySuccessor) Next()  bool          { return false }
func (_EmptySuccessor) Block() *BasicBlock   { return nil }
func (_EmptySuccessor) Value() (int64, bool) { return 0, false }

type IrReturn struct {
    V Value
}

func (self *IrReturn) String() string {
    if self.V == nil {
        return "ret"
    } else {
        return "ret " + self.V.String()
    }
}

func (self *IrReturn) Usages() []*Value {
    if self.V == nil {
        return nil
    } else {
        return []*Value { &self.V }
    }
}

func (self *IrReturn) Successors() IrSuccessors {
    return _EmptySuccessor{}
}

// IrUnreachable asserts that control never reaches the end of its block.
type IrUnreachable struct{}

func (*IrUnreachable) String() string {
    return "unreachable"
}

func (*IrUnreachable) Successors() IrSuccessors {
    return _EmptySuccessor{}
}

type IrLoadArg struct {
    R  Reg
    Id int
}

func (self *IrLoadArg) String() string {
    return fmt.Sprintf("%s = load.arg #%d", self.R, self.Id)
}

func (self *IrLoadArg) Definitions() []*Reg {
    return []*Reg { &self.R }
}

type IrCopy struct {
    R Reg
    V Value
}

func (self *IrCopy) String() string {
    return fmt.Sprintf("%s = copy %s", self.R, self.V)
}

func (self *IrCopy) Usages() []*Value {
    return []*Value { &self.V }
}

func (self *IrCopy) Definitions() []*Reg {
    return []*Reg { &self.R }
}

// IrFuncAddr materializes the address of a function, the only way to obtain
// a target for indirect calls.
type IrFuncAddr struct {
    R  Reg
    Fn *Func
}

func (self *IrFuncAddr) String() string {
    return fmt.Sprintf("%s = addr @%s", self.R, self.Fn.Name)
}

func (self *IrFuncAddr) Definitions() []*Reg {
    return []*Reg { &self.R }
}

type IrBinaryOp uint8

const (
    IrOpAdd IrBinaryOp = iota
    IrOpSub
    IrOpMul
    IrOpAnd
    IrOpOr
    IrOpXor
    IrOpShl
    IrOpShr
    IrCmpEq
    IrCmpNe
    IrCmpLt
)

var _BinaryOps = map[string]IrBinaryOp {
    "+"  : IrOpAdd,
    "-"  : IrOpSub,
    "*"  : IrOpMul,
    "&"  : IrOpAnd,
    "|"  : IrOpOr,
    "^"  : IrOpXor,
    "<<" : IrOpShl,
    ">>" : IrOpShr,
    "==" : IrCmpEq,
    "!=" : IrCmpNe,
    "<"  : IrCmpLt,
}

func (self IrBinaryOp) String() string {
    switch self {
        case IrOpAdd : return "+"
        case IrOpSub : return "-"
        case IrOpMul : return "*"
        case IrOpAnd : return "&"
        case IrOpOr  : return "|"
        case IrOpXor : return "^"
        case IrOpShl : return "<<"
        case IrOpShr : return ">>"
        case IrCmpEq : return "=="
        case IrCmpNe : return "!="
        case IrCmpLt : return "<"
        default      : panic("unreachable")
    }
}

type IrBinaryExpr struct {
    R  Reg
    X  Value
    Y  Value
    Op IrBinaryOp
}

func (self *IrBinaryExpr) String() string {
    return fmt.Sprintf("%s = %s %s %s", self.R, self.X, self.Op, self.Y)
}

func (self *IrBinaryExpr) Usages() []*Value {
    return []*Value { &self.X, &self.Y }
}

func (self *IrBinaryExpr) Definitions() []*Reg {
    return []*Reg { &self.R }
}

type CallKind uint8

const (
    CallDirect CallKind = iota
    CallIndirect
    CallAsm
)

// IrCall invokes Fn (CallDirect), the function whose address is held in
// Target (CallIndirect) or the inline assembly snippet Asm (CallAsm). The
// result is written to R, which is Rz for void calls.
type IrCall struct {
    Kind   CallKind
    Fn     *Func
    Target Value
    Asm    string
    In     []Value
    R      Reg
}

func (self *IrCall) String() string {
    var call string
    var desc string

    /* convert the call target */
    switch self.Kind {
        case CallDirect   : call, desc = "call", "@" + self.Fn.Name
        case CallIndirect : call, desc = "call.indirect", self.Target.String()
        case CallAsm      : call, desc = "call.asm", strconv.Quote(self.Asm)
        default           : panic("invalid call kind")
    }

    /* void calls */
    if self.R == Rz {
        return fmt.Sprintf("%s %s(%s)", call, desc, valsliceString(self.In))
    } else {
        return fmt.Sprintf("%s = %s %s(%s)", self.R, call, desc, valsliceString(self.In))
    }
}

func (self *IrCall) Usages() []*Value {
    if in := valsliceref(self.In); self.Kind != CallIndirect {
        return in
    } else {
        return append([]*Value { &self.Target }, in...)
    }
}

func (self *IrCall) Definitions() []*Reg {
    if self.R == Rz {
        return nil
    } else {
        return []*Reg { &self.R }
    }
}

// IrPrint emits V as an observable side effect.
type IrPrint struct {
    V Value
}

func (self *IrPrint) String() string {
    return "print " + self.V.String()
}

func (self *IrPrint) Usages() []*Value {
    return []*Value { &self.V }
}

// IrAlloca reserves a stack slot for the lifetime of the current frame.
type IrAlloca struct {
    R Reg
}

func (self *IrAlloca) String() string {
    return fmt.Sprintf("%s = alloca", self.R)
}

func (self *IrAlloca) Definitions() []*Reg {
    return []*Reg { &self.R }
}

type IrLoad struct {
    R   Reg
    Mem Value
}

func (self *IrLoad) String() string {
    return fmt.Sprintf("%s = load %s", self.R, self.Mem)
}

func (self *IrLoad) Usages() []*Value {
    return []*Value { &self.Mem }
}

func (self *IrLoad) Definitions() []*Reg {
    return []*Reg { &self.R }
}

type IrStore struct {
    V   Value
    Mem Value
}

func (self *IrStore) String() string {
    return fmt.Sprintf("store %s -> %s", self.V, self.Mem)
}

func (self *IrStore) Usages() []*Value {
    return []*Value { &self.V, &self.Mem }
}

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

const (
    _DefaultMaxSteps = 1 << 20
)

// CallRecord describes one call executed by the emulator.
type CallRecord struct {
    Fn   string
    Args []int64
}

func (self CallRecord) String() string {
    return fmt.Sprintf("@%s%v", self.Fn, self.Args)
}

// Emulator executes functions of a module. Declarations are handed to
// Extern, which returns 0 for every call if not set.
type Emulator struct {
    Module   *Module
    Extern   func(fn *Func, args []int64) int64
    MaxSteps int
    Trace    []CallRecord
    Output   []int64
    mem      map[int64]int64
    sp       int64
    steps    int
}

type _Frame struct {
    fn   *Func
    args []int64
    regs map[Reg]int64
}

func NewEmulator(m *Module) *Emulator {
    return &Emulator {
        Module   : m,
        MaxSteps : _DefaultMaxSteps,
        mem      : make(map[int64]int64),
    }
}

// Call runs fn with the given arguments and returns its result (0 for void
// functions).
func (self *Emulator) Call(fn *Func, args ...int64) (int64, error) {
    if len(args) != fn.Params {
        return 0, fmt.Errorf("emu: @%s takes %d arguments, got %d", fn.Name, fn.Params, len(args))
    } else if fn.IsDeclaration() {
        return self.extern(fn, args), nil
    } else {
        return self.run(&_Frame{fn: fn, args: args, regs: make(map[Reg]int64)})
    }
}

func (self *Emulator) extern(fn *Func, args []int64) int64 {
    if self.Extern == nil {
        return 0
    } else {
        return self.Extern(fn, args)
    }
}

func (self *Emulator) eval(fp *_Frame, v Value) (int64, error) {
    switch x := v.(type) {
        case Imm: {
            return int64(x), nil
        }

        /* registers must be written before being read */
        case Reg: {
            if r, ok := fp.regs[x]; ok {
                return r, nil
            } else {
                return 0, fmt.Errorf("emu: @%s: read of undefined register %s", fp.fn.Name, x)
            }
        }

        /* should never happen */
        default: {
            return 0, fmt.Errorf("emu: @%s: invalid operand", fp.fn.Name)
        }
    }
}

func (self *Emulator) evalArgs(fp *_Frame, in []Value) ([]int64, error) {
    var err error
    ret := make([]int64, len(in))

    /* evaluate every argument */
    for i, v := range in {
        if ret[i], err = self.eval(fp, v); err != nil {
            return nil, err
        }
    }

    /* all done */
    return ret, nil
}

func (self *Emulator) call(fp *_Frame, p *IrCall) (int64, error) {
    var fn *Func
    var err error
    var args []int64

    /* evaluate the arguments */
    if args, err = self.evalArgs(fp, p.In); err != nil {
        return 0, err
    }

    /* resolve the callee */
    switch p.Kind {
        case CallDirect: {
            fn = p.Fn
        }

        /* function address is the index into the module plus 1 */
        case CallIndirect: {
            var addr int64
            if addr, err = self.eval(fp, p.Target); err != nil {
                return 0, err
            } else if addr < 1 || addr > int64(len(self.Module.Funcs)) {
                return 0, fmt.Errorf("emu: @%s: indirect call to invalid address %d", fp.fn.Name, addr)
            } else {
                fn = self.Module.Funcs[addr - 1]
            }
        }

        /* inline assembly has no effect other than being traced */
        case CallAsm: {
            self.Trace = append(self.Trace, CallRecord{Fn: "asm " + p.Asm, Args: args})
            return 0, nil
        }
    }

    /* record the call */
    self.Trace = append(self.Trace, CallRecord{Fn: fn.Name, Args: args})
    return self.Call(fn, args...)
}

func (self *Emulator) exec(fp *_Frame, ins IrNode) error {
    var err error
    var x, y int64

    /* execute the instruction */
    switch p := ins.(type) {
        default: {
            return fmt.Errorf("emu: @%s: cannot execute %s", fp.fn.Name, ins)
        }

        /* function arguments */
        case *IrLoadArg: {
            fp.regs[p.R] = fp.args[p.Id]
        }

        /* register copy */
        case *IrCopy: {
            if x, err = self.eval(fp, p.V); err == nil {
                fp.regs[p.R] = x
            }
        }

        /* function address */
        case *IrFuncAddr: {
            if i := self.Module.Index(p.Fn); i < 0 {
                return fmt.Errorf("emu: @%s: address of foreign function @%s", fp.fn.Name, p.Fn.Name)
            } else {
                fp.regs[p.R] = int64(i) + 1
            }
        }

        /* arithmetic and comparison */
        case *IrBinaryExpr: {
            if x, err = self.eval(fp, p.X); err != nil {
                return err
            }
            if y, err = self.eval(fp, p.Y); err != nil {
                return err
            }
            fp.regs[p.R] = binaryop(p.Op, x, y)
        }

        /* function calls */
        case *IrCall: {
            if x, err = self.call(fp, p); err == nil && p.R != Rz {
                fp.regs[p.R] = x
            }
        }

        /* observable output */
        case *IrPrint: {
            if x, err = self.eval(fp, p.V); err == nil {
                self.Output = append(self.Output, x)
            }
        }

        /* stack slots are never freed, addresses are unique for every frame */
        case *IrAlloca: {
            self.sp++
            self.mem[self.sp] = 0
            fp.regs[p.R] = self.sp
        }

        /* memory load */
        case *IrLoad: {
            if x, err = self.eval(fp, p.Mem); err == nil {
                if v, ok := self.mem[x]; !ok {
                    err = fmt.Errorf("emu: @%s: load from invalid address %d", fp.fn.Name, x)
                } else {
                    fp.regs[p.R] = v
                }
            }
        }

        /* memory store */
        case *IrStore: {
            if x, err = self.eval(fp, p.Mem); err != nil {
                return err
            }
            if _, ok := self.mem[x]; !ok {
                return fmt.Errorf("emu: @%s: store to invalid address %d", fp.fn.Name, x)
            }
            if y, err = self.eval(fp, p.V); err == nil {
                self.mem[x] = y
            }
        }
    }

    /* all done */
    return err
}

func (self *Emulator) phis(fp *_Frame, bb *BasicBlock, pred *BasicBlock) error {
    var err error
    val := make([]int64, len(bb.Phi))

    /* all Phi nodes are evaluated before any of them is written */
    for i, p := range bb.Phi {
        if v, ok := p.V[pred]; !ok {
            return fmt.Errorf("emu: @%s: bb_%d has no incoming value from bb_%d", fp.fn.Name, bb.Id, pred.Id)
        } else if val[i], err = self.eval(fp, *v); err != nil {
            return err
        }
    }

    /* write back the values */
    for i, p := range bb.Phi {
        fp.regs[p.R] = val[i]
    }

    /* all done */
    return nil
}

func (self *Emulator) run(fp *_Frame) (int64, error) {
    var pred *BasicBlock
    var this = fp.fn.Entry()

    /* execute until the function returns */
    for {
        if self.steps++; self.steps > self.MaxSteps {
            return 0, fmt.Errorf("emu: @%s: step limit exceeded", fp.fn.Name)
        }

        /* evaluate the Phi nodes */
        if len(this.Phi) != 0 {
            if err := self.phis(fp, this, pred); err != nil {
                return 0, err
            }
        }

        /* execute the block body */
        for _, ins := range this.Ins {
            if err := self.exec(fp, ins); err != nil {
                return 0, err
            }
        }

        /* execute the terminator */
        switch t := this.Term.(type) {
            default: {
                return 0, fmt.Errorf("emu: @%s: bb_%d does not terminate", fp.fn.Name, this.Id)
            }

            /* return from the function */
            case *IrReturn: {
                if t.V == nil {
                    return 0, nil
                } else {
                    return self.eval(fp, t.V)
                }
            }

            /* assertion failure */
            case *IrUnreachable: {
                return 0, fmt.Errorf("emu: @%s: reached unreachable code in bb_%d", fp.fn.Name, this.Id)
            }

            /* jump to the next block */
            case *IrSwitch: {
                next := t.Ln
                pred = this

                /* check for the switch cases */
                if len(t.Br) != 0 {
                    if v, err := self.eval(fp, t.V); err != nil {
                        return 0, err
                    } else if bb, ok := t.Br[v]; ok {
                        next = bb
                    }
                }

                /* move to the next block */
                this = next
            }
        }
    }
}

func binaryop(op IrBinaryOp, x int64, y int64) int64 {
    switch op {
        case IrOpAdd : return x + y
        case IrOpSub : return x - y
        case IrOpMul : return x * y
        case IrOpAnd : return x & y
        case IrOpOr  : return x | y
        case IrOpXor : return x ^ y
        case IrOpShl : return x << (uint64(y) & 63)
        case IrOpShr : return x >> (uint64(y) & 63)
        case IrCmpEq : return b2i(x == y)
        case IrCmpNe : return b2i(x != y)
        case IrCmpLt : return b2i(x < y)
        default      : panic("unreachable")
    }
}

func b2i(v bool) int64 {
    if v {
        return 1
    } else {
        return 0
    }
}

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
    `strconv`
    `strings`

    `github.com/cloudwego/mergecalls/internal/utils`
)

type _Line struct {
    no  int
    src string
    tok []_Token
}

type _Body struct {
    fn  *Func
    ln  []*_Line
    end *_Line
}

type _Parser struct {
    m  *Module
    ln *_Line
    i  int
}

// ParseModule reads the textual form of a module, as produced by
// Module.String.
func ParseModule(src string) (*Module, error) {
    var err error
    var ret []*_Line

    /* tokenize every line */
    for i, v := range strings.Split(src, "\n") {
        ln := &_Line{no: i + 1, src: v}
        ret = append(ret, ln)

        /* tokenize the line */
        if ln.tok, err = tokenize(v); err != nil {
            return nil, utils.ESyntax(ln.no, v, err.Error())
        }
    }

    /* parse the module */
    p := &_Parser{m: NewModule()}
    return p.module(ret)
}

func (self *_Parser) reset(ln *_Line) {
    self.i = 0
    self.ln = ln
}

func (self *_Parser) err(format string, args ...interface{}) error {
    return utils.ESyntaxf(self.ln.no, self.ln.src, format, args...)
}

func (self *_Parser) peek() _Token {
    if self.i >= len(self.ln.tok) {
        return _Token{tag: _T_end}
    } else {
        return self.ln.tok[self.i]
    }
}

func (self *_Parser) next() _Token {
    tk := self.peek()
    self.i++
    return tk
}

func (self *_Parser) expect(tag _TokenKind, str string) (_Token, error) {
    if tk := self.next(); tk.tag != tag {
        return tk, self.err("%s expected, got %s", tag, tk)
    } else if str != "" && tk.str != str {
        return tk, self.err("%q expected, got %s", str, tk)
    } else {
        return tk, nil
    }
}

func (self *_Parser) eol() error {
    if tk := self.peek(); tk.tag != _T_end {
        return self.err("unexpected %s", tk)
    } else {
        return nil
    }
}

func (self *_Parser) only(tag _TokenKind, str string) bool {
    return len(self.ln.tok) == 1 && self.ln.tok[0].is(tag, str)
}

func (self *_Parser) module(lines []*_Line) (*Module, error) {
    var err error
    var sw bool
    var fb *_Body
    var body []*_Body

    /* read all the function headers first, so functions can be used
     * before being defined */
    for _, ln := range lines {
        self.reset(ln)

        /* function bodies */
        if fb != nil {
            if sw {
                sw = !self.only(_T_punc, "}")
                fb.ln = append(fb.ln, ln)
            } else if self.only(_T_punc, "}") {
                fb.end, fb = ln, nil
            } else {
                sw = len(ln.tok) != 0 && ln.tok[0].is(_T_name, "switch")
                fb.ln = append(fb.ln, ln)
            }
            continue
        }

        /* skip empty lines */
        if len(ln.tok) == 0 {
            continue
        }

        /* function headers */
        switch tk := self.peek(); {
            case tk.is(_T_name, "declare") : err = self.declare()
            case tk.is(_T_name, "func")    : fb, err = self.header()
            default                        : err = self.err("unexpected %s", tk)
        }

        /* check for errors */
        if err != nil {
            return nil, err
        }

        /* add to function body list */
        if fb != nil {
            body = append(body, fb)
        }
    }

    /* must have a closing brace */
    if fb != nil {
        return nil, self.err("unexpected end of input, missing \"}\" of function @%s", fb.fn.Name)
    }

    /* parse every function body */
    for _, fb = range body {
        if err = self.body(fb); err != nil {
            return nil, err
        }
    }

    /* all done */
    return self.m, nil
}

func (self *_Parser) signature() (*Func, error) {
    var err error
    var tk _Token
    var fn = new(Func)

    /* function flags */
    for {
        if tk = self.next(); tk.is(_T_name, "void") {
            fn.Void = true
        } else if tk.is(_T_name, "intrinsic") {
            fn.Intrinsic = true
        } else {
            break
        }
    }

    /* function name */
    if tk.tag != _T_func {
        return nil, self.err("function name expected, got %s", tk)
    } else if self.m.Lookup(tk.str) != nil {
        return nil, self.err("function @%s redefined", tk.str)
    } else {
        fn.Name = tk.str
    }

    /* number of parameters */
    if _, err = self.expect(_T_punc, "("); err != nil {
        return nil, err
    } else if tk, err = self.expect(_T_int, ""); err != nil {
        return nil, err
    } else if tk.val < 0 {
        return nil, self.err("negative parameter count")
    } else if _, err = self.expect(_T_punc, ")"); err != nil {
        return nil, err
    }

    /* all done */
    fn.Params = int(tk.val)
    return fn, nil
}

func (self *_Parser) declare() error {
    self.next()
    fn, err := self.signature()

    /* check for errors */
    if err != nil {
        return err
    } else if err = self.eol(); err != nil {
        return err
    }

    /* add to the module */
    self.m.add(fn)
    return nil
}

func (self *_Parser) header() (*_Body, error) {
    self.next()
    fn, err := self.signature()

    /* check for errors */
    if err != nil {
        return nil, err
    } else if fn.Intrinsic {
        return nil, self.err("intrinsic function @%s cannot have a body", fn.Name)
    }

    /* must be followed by an open brace */
    if _, err = self.expect(_T_punc, "{"); err != nil {
        return nil, err
    } else if err = self.eol(); err != nil {
        return nil, err
    }

    /* add to the module */
    self.m.add(fn)
    return &_Body{fn: fn}, nil
}

func (self *_Parser) body(fb *_Body) error {
    fp := &_FuncParser {
        _Parser : self,
        fn      : fb.fn,
        regs    : make(map[string]Reg),
        defs    : make(map[Reg]bool),
        blocks  : make(map[string]*BasicBlock),
    }

    /* find all the labels and register numbers */
    if err := fp.prescan(fb); err != nil {
        return err
    }

    /* parse the function body */
    for i := 0; i < len(fb.ln); i++ {
        var err error
        var ln = fb.ln[i]

        /* skip empty lines */
        if self.reset(ln); len(ln.tok) == 0 {
            continue
        }

        /* parse the line */
        if isLabel(ln) {
            err = fp.label(ln.tok[0].str)
        } else if fp.bb == nil {
            err = self.err("instruction outside of any basic block")
        } else if fp.bb.Term != nil {
            err = self.err("instruction after the terminator of bb_%d", fp.bb.Id)
        } else if ln.tok[0].is(_T_name, "switch") {
            i, err = fp.switchcase(fb.ln, i)
        } else {
            err = fp.instr()
        }

        /* check for errors */
        if err != nil {
            return err
        }
    }

    /* the last block must be terminated as well */
    if self.reset(fb.end); fp.bb.Term == nil {
        return self.err("bb_%d does not have a terminator", fp.bb.Id)
    } else {
        return nil
    }
}

func isLabel(ln *_Line) bool {
    return len(ln.tok) == 2 && ln.tok[0].tag == _T_name && ln.tok[1].is(_T_punc, ":")
}

func blockNumber(name string) (int, bool) {
    if !strings.HasPrefix(name, "bb_") {
        return 0, false
    } else if v, err := strconv.ParseUint(name[3:], 10, 31); err != nil {
        return 0, false
    } else {
        return int(v), true
    }
}

func regNumber(name string) (Reg, bool) {
    if v, err := strconv.ParseUint(name, 10, 32); err != nil {
        return 0, false
    } else {
        return Reg(v), true
    }
}

type _FuncParser struct {
    *_Parser
    fn     *Func
    bb     *BasicBlock
    regs   map[string]Reg
    defs   map[Reg]bool
    blocks map[string]*BasicBlock
}

func (self *_FuncParser) prescan(fb *_Body) error {
    var names []string
    var dups = make(map[string]bool)

    /* find all the labels, and the largest register number */
    for _, ln := range fb.ln {
        self.reset(ln)

        /* check for labels */
        if isLabel(ln) {
            if name := ln.tok[0].str; dups[name] {
                return self.err("label %s redefined", name)
            } else {
                dups[name] = true
                names = append(names, name)
            }
        }

        /* find all the numbered registers */
        for _, tk := range ln.tok {
            if tk.tag == _T_reg {
                if r, ok := regNumber(tk.str); !ok {
                    continue
                } else if r == Rz {
                    return self.err("%%0 is not a valid register")
                } else if r > self.fn.nreg {
                    self.fn.nreg = r
                }
            }
        }
    }

    /* find the largest block number */
    for _, name := range names {
        if id, ok := blockNumber(name); ok && id >= self.fn.nblk {
            self.fn.nblk = id + 1
        }
    }

    /* create all the blocks in order */
    for _, name := range names {
        var bb *BasicBlock
        var id, ok = blockNumber(name)

        /* numbered blocks keeps their IDs */
        if ok {
            bb = &BasicBlock{Id: id}
        } else {
            bb = self.fn.newBlock()
        }

        /* add to function */
        self.blocks[name] = bb
        self.fn.Blocks = append(self.fn.Blocks, bb)
    }

    /* must have at least one block */
    if len(names) == 0 {
        self.reset(fb.end)
        return self.err("function @%s does not have any basic blocks", self.fn.Name)
    }

    /* check for duplicated block IDs, like "bb_1" and "bb_01" */
    ids := make(map[int]bool, len(names))
    for _, bb := range self.fn.Blocks {
        if ids[bb.Id] {
            self.reset(fb.end)
            return self.err("duplicated block bb_%d", bb.Id)
        } else {
            ids[bb.Id] = true
        }
    }

    /* all done */
    return nil
}

func (self *_FuncParser) label(name string) error {
    if self.bb != nil && self.bb.Term == nil {
        return self.err("bb_%d does not have a terminator", self.bb.Id)
    } else {
        self.bb = self.blocks[name]
        return nil
    }
}

func (self *_FuncParser) block() (*BasicBlock, error) {
    if tk, err := self.expect(_T_name, ""); err != nil {
        return nil, err
    } else if bb, ok := self.blocks[tk.str]; !ok {
        return nil, self.err("undefined label %s", tk.str)
    } else {
        return bb, nil
    }
}

func (self *_FuncParser) function() (*Func, error) {
    if tk, err := self.expect(_T_func, ""); err != nil {
        return nil, err
    } else if fn := self.m.Lookup(tk.str); fn == nil {
        return nil, self.err("undefined function @%s", tk.str)
    } else {
        return fn, nil
    }
}

func (self *_FuncParser) reg(tk _Token) Reg {
    var ok bool
    var rr Reg

    /* numbered registers */
    if rr, ok = regNumber(tk.str); ok {
        return rr
    }

    /* named registers */
    if rr, ok = self.regs[tk.str]; !ok {
        rr = self.fn.NewReg()
        self.regs[tk.str] = rr
    }

    /* all done */
    return rr
}

func (self *_FuncParser) define(tk _Token) (Reg, error) {
    if r := self.reg(tk); self.defs[r] {
        return 0, self.err("register %s redefined", tk)
    } else {
        self.defs[r] = true
        return r, nil
    }
}

func (self *_FuncParser) value() (Value, error) {
    switch tk := self.next(); tk.tag {
        case _T_int : return Imm(tk.val), nil
        case _T_reg : return self.reg(tk), nil
        default     : return nil, self.err("value expected, got %s", tk)
    }
}

func (self *_FuncParser) args() ([]Value, error) {
    var err error
    var val Value
    var ret []Value

    /* open parenthesis */
    if _, err = self.expect(_T_punc, "("); err != nil {
        return nil, err
    }

    /* empty argument list */
    if self.peek().is(_T_punc, ")") {
        self.next()
        return nil, nil
    }

    /* parse every argument */
    for {
        if val, err = self.value(); err != nil {
            return nil, err
        }

        /* add to argument list */
        tk := self.next()
        ret = append(ret, val)

        /* check for delimiters */
        if tk.is(_T_punc, ")") {
            return ret, nil
        } else if !tk.is(_T_punc, ",") {
            return nil, self.err("\",\" or \")\" expected, got %s", tk)
        }
    }
}

func (self *_FuncParser) call(op string, r Reg) (*IrCall, error) {
    var err error
    var ret = &IrCall{R: r}

    /* parse the call target */
    switch op {
        case "call": {
            ret.Kind = CallDirect
            ret.Fn, err = self.function()
        }

        /* indirect calls */
        case "call.indirect": {
            ret.Kind = CallIndirect
            ret.Target, err = self.value()
        }

        /* inline assembly */
        case "call.asm": {
            ret.Kind = CallAsm
            tk, e := self.expect(_T_string, "")
            ret.Asm, err = tk.str, e
        }
    }

    /* check for errors */
    if err != nil {
        return nil, err
    }

    /* parse the arguments */
    if ret.In, err = self.args(); err != nil {
        return nil, err
    }

    /* void functions does not return any value */
    if ret.Kind == CallDirect && ret.Fn.Void && r != Rz {
        return nil, self.err("void function @%s does not return any value", ret.Fn.Name)
    }

    /* all done */
    return ret, nil
}

func (self *_FuncParser) phi(r Reg) (*IrPhi, error) {
    var err error
    var val Value
    var ret = &IrPhi{R: r, V: make(map[*BasicBlock]*Value)}

    /* Phi nodes must preceed all the instructions */
    if len(self.bb.Ins) != 0 {
        return nil, self.err("Phi node after instructions")
    }

    /* open parenthesis */
    if _, err = self.expect(_T_punc, "("); err != nil {
        return nil, err
    }

    /* incoming values */
    for !self.peek().is(_T_punc, ")") {
        var bb *BasicBlock
        var tk _Token

        /* block and value */
        if bb, err = self.block(); err != nil {
            return nil, err
        } else if _, err = self.expect(_T_punc, ":"); err != nil {
            return nil, err
        } else if val, err = self.value(); err != nil {
            return nil, err
        }

        /* duplicated incoming blocks */
        if _, ok := ret.V[bb]; ok {
            return nil, self.err("duplicated incoming block bb_%d", bb.Id)
        }

        /* add the value */
        ret.V[bb] = valnewref(val)
        tk = self.peek()

        /* check for delimiters */
        if tk.is(_T_punc, ",") {
            self.next()
        } else if !tk.is(_T_punc, ")") {
            return nil, self.err("\",\" or \")\" expected, got %s", tk)
        }
    }

    /* skip the closing parenthesis */
    self.next()
    return ret, nil
}

func (self *_FuncParser) assign() error {
    var err error
    var ins IrNode

    /* the register being defined */
    tk := self.next()
    rr, err := self.define(tk)

    /* check for errors */
    if err != nil {
        return err
    } else if _, err = self.expect(_T_punc, "="); err != nil {
        return err
    }

    /* binary expressions */
    if op := self.peek(); op.tag == _T_int || op.tag == _T_reg {
        return self.binary(rr)
    }

    /* other instructions */
    switch op := self.next(); {
        default: {
            return self.err("unknown instruction %s", op)
        }

        /* Phi nodes */
        case op.is(_T_name, "phi"): {
            var p *IrPhi
            if p, err = self.phi(rr); err == nil {
                self.bb.Phi = append(self.bb.Phi, p)
            }
            return self.checked(err)
        }

        /* function arguments */
        case op.is(_T_name, "load.arg"): {
            var id _Token
            if _, err = self.expect(_T_punc, "#"); err != nil {
                return err
            } else if id, err = self.expect(_T_int, ""); err != nil {
                return err
            } else {
                ins = &IrLoadArg{R: rr, Id: int(id.val)}
            }
        }

        /* register copy */
        case op.is(_T_name, "copy"): {
            var v Value
            if v, err = self.value(); err != nil {
                return err
            } else {
                ins = &IrCopy{R: rr, V: v}
            }
        }

        /* function address */
        case op.is(_T_name, "addr"): {
            var fn *Func
            if fn, err = self.function(); err != nil {
                return err
            } else {
                ins = &IrFuncAddr{R: rr, Fn: fn}
            }
        }

        /* stack slot */
        case op.is(_T_name, "alloca"): {
            ins = &IrAlloca{R: rr}
        }

        /* memory load */
        case op.is(_T_name, "load"): {
            var v Value
            if v, err = self.value(); err != nil {
                return err
            } else {
                ins = &IrLoad{R: rr, Mem: v}
            }
        }

        /* function calls */
        case op.is(_T_name, "call") || op.is(_T_name, "call.indirect") || op.is(_T_name, "call.asm"): {
            if ins, err = self.call(op.str, rr); err != nil {
                return err
            }
        }
    }

    /* add to the block */
    self.bb.Ins = append(self.bb.Ins, ins)
    return self.eol()
}

func (self *_FuncParser) checked(err error) error {
    if err != nil {
        return err
    } else {
        return self.eol()
    }
}

func (self *_FuncParser) binary(r Reg) error {
    var ok bool
    var err error
    var x, y Value
    var op IrBinaryOp

    /* left operand */
    if x, err = self.value(); err != nil {
        return err
    }

    /* operator */
    if tk := self.next(); tk.tag != _T_punc {
        return self.err("operator expected, got %s", tk)
    } else if op, ok = _BinaryOps[tk.str]; !ok {
        return self.err("invalid operator %s", tk)
    }

    /* right operand */
    if y, err = self.value(); err != nil {
        return err
    }

    /* add to the block */
    self.bb.Ins = append(self.bb.Ins, &IrBinaryExpr{R: r, X: x, Y: y, Op: op})
    return self.eol()
}

func (self *_FuncParser) instr() error {
    var err error
    var val Value

    /* assignments */
    if self.peek().tag == _T_reg {
        return self.assign()
    }

    /* other instructions */
    switch op := self.next(); {
        default: {
            return self.err("unknown instruction %s", op)
        }

        /* void calls */
        case op.is(_T_name, "call") || op.is(_T_name, "call.indirect") || op.is(_T_name, "call.asm"): {
            var p *IrCall
            if p, err = self.call(op.str, Rz); err == nil {
                self.bb.Ins = append(self.bb.Ins, p)
            }
        }

        /* observable output */
        case op.is(_T_name, "print"): {
            if val, err = self.value(); err == nil {
                self.bb.Ins = append(self.bb.Ins, &IrPrint{V: val})
            }
        }

        /* memory store */
        case op.is(_T_name, "store"): {
            var mem Value
            if val, err = self.value(); err != nil {
                return err
            } else if _, err = self.expect(_T_punc, "->"); err != nil {
                return err
            } else if mem, err = self.value(); err == nil {
                self.bb.Ins = append(self.bb.Ins, &IrStore{V: val, Mem: mem})
            }
        }

        /* unconditional branch */
        case op.is(_T_name, "goto"): {
            var bb *BasicBlock
            if bb, err = self.block(); err == nil {
                self.bb.Term = IrJump(bb)
            }
        }

        /* function return */
        case op.is(_T_name, "ret"): {
            if self.peek().tag == _T_end {
                self.bb.Term = &IrReturn{}
            } else if val, err = self.value(); err == nil {
                self.bb.Term = &IrReturn{V: val}
            }
        }

        /* unreachable code */
        case op.is(_T_name, "unreachable"): {
            self.bb.Term = new(IrUnreachable)
        }
    }

    /* must be the end of line */
    return self.checked(err)
}

func (self *_FuncParser) switchcase(lines []*_Line, i int) (int, error) {
    var err error
    var val Value
    var ret = &IrSwitch{Br: make(map[int64]*BasicBlock)}

    /* switch <value> { */
    self.next()
    if ret.V, err = self.value(); err != nil {
        return i, err
    } else if _, err = self.expect(_T_punc, "{"); err != nil {
        return i, err
    } else if err = self.eol(); err != nil {
        return i, err
    }

    /* switch cases */
    for i++; i < len(lines); i++ {
        var bb *BasicBlock
        var tk _Token

        /* skip empty lines */
        if self.reset(lines[i]); len(lines[i].tok) == 0 {
            continue
        }

        /* end of switch */
        if self.only(_T_punc, "}") {
            break
        }

        /* case value or default */
        if tk = self.peek(); tk.is(_T_name, "_") {
            self.next()
            val = nil
        } else if tk.tag == _T_int {
            self.next()
            val = Imm(tk.val)
        } else {
            return i, self.err("case value expected, got %s", tk)
        }

        /* target block */
        if _, err = self.expect(_T_punc, "=>"); err != nil {
            return i, err
        } else if bb, err = self.block(); err != nil {
            return i, err
        }

        /* optional trailing comma */
        if self.peek().is(_T_punc, ",") {
            self.next()
        }

        /* must be the end of line */
        if err = self.eol(); err != nil {
            return i, err
        }

        /* default branch */
        if val == nil {
            if ret.Ln != nil {
                return i, self.err("duplicated default branch")
            } else {
                ret.Ln = bb
                continue
            }
        }

        /* case branches */
        if k := int64(val.(Imm)); ret.Br[k] != nil {
            return i, self.err("duplicated case %d", k)
        } else {
            ret.Br[k] = bb
        }
    }

    /* must have a default branch */
    if ret.Ln == nil {
        return i, self.err("switch without a default branch")
    }

    /* all done */
    self.bb.Term = ret
    return i, nil
}

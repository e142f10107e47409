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
    `sync/atomic`
)

// CallSite is a call instruction together with the block it was found in
// at collection time.
type CallSite struct {
    Call  *IrCall
    Block *BasicBlock
}

// CallGroup is the list of eligible call sites of one callee, in the order
// they appear in the function.
type CallGroup struct {
    Fn    *Func
    Sites []*CallSite
}

// eligibleCall reports whether the call can take part in a merge: direct
// calls to ordinary functions only.
func eligibleCall(c *IrCall) bool {
    switch c.Kind {
        case CallAsm      : return false
        case CallIndirect : return false
        default           : return c.Fn != nil && !c.Fn.Intrinsic
    }
}

// collectCallSites groups every eligible call of fn by callee. Groups are
// ordered by the first appearance of their callee.
func collectCallSites(fn *Func) []CallGroup {
    var ret []CallGroup
    var idx = make(map[*Func]int)

    /* walk the blocks in function order */
    for _, bb := range fn.Blocks {
        for _, ins := range bb.Ins {
            c, ok := ins.(*IrCall)

            /* only eligible calls */
            if !ok || !eligibleCall(c) {
                continue
            }

            /* add to the callee group */
            if i, ok := idx[c.Fn]; ok {
                ret[i].Sites = append(ret[i].Sites, &CallSite{Call: c, Block: bb})
            } else {
                idx[c.Fn] = len(ret)
                ret = append(ret, CallGroup{Fn: c.Fn, Sites: []*CallSite{{Call: c, Block: bb}}})
            }
        }
    }

    /* all done */
    return ret
}

// unreachableBlock returns a block that consists of only an `unreachable`
// terminator, creating one if the function does not have any.
func unreachableBlock(fn *Func) *BasicBlock {
    for _, bb := range fn.Blocks {
        if _, ok := bb.Term.(*IrUnreachable); ok && len(bb.Phi) == 0 && len(bb.Ins) == 0 {
            return bb
        }
    }

    /* create a new one */
    bb := fn.CreateBlock()
    bb.Term = new(IrUnreachable)
    return bb
}

// hoistArgs moves the argument loads to the top of the entry block, so that
// they stay in the entry block after it is split.
func hoistArgs(fn *Func) {
    var args []IrNode
    var rest []IrNode

    /* partition the entry block */
    bb := fn.Entry()
    for _, ins := range bb.Ins {
        if _, ok := ins.(*IrLoadArg); ok {
            args = append(args, ins)
        } else {
            rest = append(rest, ins)
        }
    }

    /* argument loads first, keep the relative order */
    if len(args) != 0 {
        bb.Ins = append(args, rest...)
    }
}

// mergeCallSites rewrites fn so that every call in sites is performed by a
// single call to target. Each call site jumps to a shared call block, which
// selects the arguments by the block it came from, performs the call and
// switches back to the rest of the original block.
//
// It returns the new call, or nil if there were less than 2 call sites, in
// which case fn is not modified.
func mergeCallSites(fn *Func, target *Func, sites []*CallSite) *IrCall {
    if len(sites) < 2 {
        return nil
    }

    var cb *BasicBlock
    var src []*BasicBlock
    var ret []*BasicBlock

    /* arguments can only be loaded in the entry block */
    hoistArgs(fn)

    /* split the blocks after every call site */
    for _, cs := range sites {
        c := cs.Call
        p, i := fn.Locate(c)

        /* the call site must still be in the function */
        if p == nil {
            panic(fmt.Sprintf("mergecalls: call site not found in @%s: %s", fn.Name, c))
        }

        /* check the call signature */
        if c.Fn != target || len(c.In) != target.Params {
            panic(fmt.Sprintf("mergecalls: call site does not match @%s(%d): %s", target.Name, target.Params, c))
        }

        /* the instructions after the call goes into the resume block,
         * then the call itself is moved to the front of it */
        r := fn.SplitBlock(p, i + 1)
        p.removeAt(i)
        r.insertAt(0, c)

        /* create the call block on first use */
        if cb == nil {
            cb = fn.CreateBlock()
        }

        /* the origin block goes to the call block instead */
        p.Term = IrJump(cb)
        src = append(src, p)
        ret = append(ret, r)
    }

    /* select the arguments by origin */
    args := make([]Value, target.Params)
    for i := range args {
        phi := &IrPhi {
            R: fn.NewReg(),
            V: make(map[*BasicBlock]*Value, len(sites)),
        }

        /* add every incoming argument */
        for j, cs := range sites {
            phi.V[src[j]] = valnewref(cs.Call.In[i])
        }

        /* add to the call block */
        args[i] = phi.R
        cb.Phi = append(cb.Phi, phi)
    }

    /* the unified call */
    uc := &IrCall {
        Kind : CallDirect,
        Fn   : target,
        In   : args,
    }

    /* void functions does not have a result */
    if !target.Void {
        uc.R = fn.NewReg()
    }

    /* every original call takes the result from the unified call */
    for j, cs := range sites {
        if c := cs.Call; c.R == Rz {
            ret[j].removeAt(0)
        } else if uc.R == Rz {
            panic(fmt.Sprintf("mergecalls: result of void function @%s is used: %s", target.Name, c))
        } else {
            ret[j].Ins[0] = &IrCopy{R: c.R, V: uc.R}
        }
    }

    /* discriminator of the origin blocks */
    dr := &IrPhi {
        R: fn.NewReg(),
        V: make(map[*BasicBlock]*Value, len(src)),
    }

    /* switch back to the resume blocks */
    sw := &IrSwitch {
        V  : dr.R,
        Br : make(map[int64]*BasicBlock, len(ret)),
    }

    /* one constant per origin, in the order of the call sites */
    for j, p := range src {
        sw.Br[int64(j)] = ret[j]
        dr.V[p] = valnewref(Imm(j))
    }

    /* default branch never taken, the locator runs before the call block
     * is terminated so it cannot be mistaken as an unreachable block */
    sw.Ln = unreachableBlock(fn)
    cb.Phi = append(cb.Phi, dr)
    cb.Ins = append(cb.Ins, uc)
    cb.Term = sw
    return uc
}

// MergeCalls merges all the calls to the same function within a function
// into a single call site, which makes the callee a better candidate for
// inlining. The resulting function is demoted by Reg2Mem unless NoDemote is
// set.
type MergeCalls struct {
    MinCallSites int
    NoDemote     bool
}

func (self MergeCalls) threshold() int {
    if self.MinCallSites < 2 {
        return 2
    } else {
        return self.MinCallSites
    }
}

func (self MergeCalls) Apply(fn *Func) bool {
    nb := 0
    ns := 0

    /* declarations does not have calls */
    if fn.IsDeclaration() {
        return false
    }

    /* merge every callee with enough call sites */
    for _, cg := range collectCallSites(fn) {
        if len(cg.Sites) >= self.threshold() && mergeCallSites(fn, cg.Fn, cg.Sites) != nil {
            nb++
            ns += len(cg.Sites)
        }
    }

    /* nothing changed */
    if nb == 0 {
        return false
    }

    /* update the statistics */
    atomic.AddUint64(&MergedFuncs, 1)
    atomic.AddUint64(&MergedGroups, uint64(nb))
    atomic.AddUint64(&MergedSites, uint64(ns))

    /* values may no longer dominate their uses */
    if !self.NoDemote {
        Reg2Mem{}.Apply(fn)
    }

    /* the function was modified */
    return true
}

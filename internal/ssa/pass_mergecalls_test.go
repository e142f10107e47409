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
    `testing`

    `github.com/brianvoe/gofakeit/v6`
    `github.com/davecgh/go-spew/spew`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

const _ThreeSitesSource = `declare @T(1)

func @F(1) {
bb_0:
    %1 = load.arg #0
    switch %1 {
      0 => bb_1,
      1 => bb_2,
      _ => bb_3,
    }
bb_1:
    %2 = call @T(10)
    %3 = %2 + 1
    print %3
    goto bb_4
bb_2:
    %4 = call @T(20)
    %5 = %4 * 2
    print %5
    goto bb_4
bb_3:
    %6 = call @T(30)
    %7 = %6 - 3
    print %7
    goto bb_4
bb_4:
    %8 = φ(bb_1: %3, bb_2: %5, bb_3: %7)
    ret %8
}
`

const _ThreeSitesMerged = `func @F(1) {
bb_0:
    %1 = load.arg #0
    switch %1 {
      0 => bb_1,
      1 => bb_2,
      _ => bb_3,
    }
bb_1:
    goto bb_6
bb_5:
    %2 = copy %10
    %3 = %2 + 1
    print %3
    goto bb_4
bb_2:
    goto bb_6
bb_7:
    %4 = copy %10
    %5 = %4 * 2
    print %5
    goto bb_4
bb_3:
    goto bb_6
bb_8:
    %6 = copy %10
    %7 = %6 - 3
    print %7
    goto bb_4
bb_4:
    %8 = φ(bb_5: %3, bb_7: %5, bb_8: %7)
    ret %8
bb_6:
    %9 = φ(bb_1: 10, bb_2: 20, bb_3: 30)
    %11 = φ(bb_1: 0, bb_2: 1, bb_3: 2)
    %10 = call @T(%9)
    switch %11 {
      0 => bb_5,
      1 => bb_7,
      2 => bb_8,
      _ => bb_9,
    }
bb_9:
    unreachable
}`

type _Run struct {
    Ret    int64
    Err    string
    Trace  []CallRecord
    Output []int64
}

// extern is a deterministic implementation of every external function.
func extern(fn *Func, args []int64) int64 {
    h := int64(len(fn.Name)) * 1000003
    for i, v := range args {
        h = h * 31 + v * int64(i + 7)
    }
    return h % 1000
}

func run(m *Module, fn *Func, args ...int64) _Run {
    emu := NewEmulator(m)
    emu.Extern = extern
    emu.MaxSteps = 100000
    r, err := emu.Call(fn, args...)
    ret := _Run{Ret: r, Trace: emu.Trace, Output: emu.Output}
    if err != nil {
        ret.Err = err.Error()
    }
    return ret
}

func runAll(m *Module, fn *Func, inputs [][]int64) []_Run {
    ret := make([]_Run, 0, len(inputs))
    for _, in := range inputs {
        ret = append(ret, run(m, fn, in...))
    }
    return ret
}

func TestMergeCalls_Eligibility(t *testing.T) {
    m := NewModule()
    f := m.Declare("f", 0, false)
    i := m.DeclareIntrinsic("i", 0, false)
    assert.True(t, eligibleCall(&IrCall{Kind: CallDirect, Fn: f}))
    assert.False(t, eligibleCall(&IrCall{Kind: CallDirect, Fn: i}))
    assert.False(t, eligibleCall(&IrCall{Kind: CallIndirect, Target: Reg(1)}))
    assert.False(t, eligibleCall(&IrCall{Kind: CallAsm, Asm: "nop"}))
}

func TestMergeCalls_CollectCallSites(t *testing.T) {
    m := mustParse(t, `
declare @a(0)
declare @b(1)
declare intrinsic @c(0)

func @f(0) {
bb_0:
    %1 = call @b(1)
    %2 = call @a()
    %3 = call @c()
    %4 = call @c()
    %5 = addr @a
    %6 = call.indirect %5()
    call.asm "nop"()
    goto bb_1
bb_1:
    %7 = call @a()
    %8 = call @b(2)
    %9 = call @a()
    ret 0
}`)
    fn := m.Lookup("f")
    cg := collectCallSites(fn)
    require.Len(t, cg, 2)

    /* groups are ordered by first appearance */
    assert.Same(t, m.Lookup("b"), cg[0].Fn)
    assert.Same(t, m.Lookup("a"), cg[1].Fn)
    require.Len(t, cg[0].Sites, 2)
    require.Len(t, cg[1].Sites, 3)

    /* sites are in block order, then instruction order */
    assert.Equal(t, "%1 = call @b(1)", cg[0].Sites[0].Call.String())
    assert.Equal(t, "%8 = call @b(2)", cg[0].Sites[1].Call.String())
    assert.Equal(t, "%2 = call @a()", cg[1].Sites[0].Call.String())
    assert.Equal(t, "%7 = call @a()", cg[1].Sites[1].Call.String())
    assert.Equal(t, "%9 = call @a()", cg[1].Sites[2].Call.String())
    assert.Equal(t, 0, cg[1].Sites[0].Block.Id)
    assert.Equal(t, 1, cg[1].Sites[2].Block.Id)
}

func TestMergeCalls_UnreachableBlock(t *testing.T) {
    m := mustParse(t, `
func @f(1) {
bb_0:
    %1 = load.arg #0
    switch %1 {
      0 => bb_1,
      _ => bb_2,
    }
bb_1:
    print 1
    unreachable
bb_2:
    ret 0
bb_3:
    unreachable
}`)
    fn := m.Lookup("f")

    /* blocks with instructions are not reused */
    assert.Same(t, fn.Block(3), unreachableBlock(fn))
    assert.Len(t, fn.Blocks, 4)

    /* create a new one if there isn't any */
    fn.Blocks = fn.Blocks[:3]
    bb := unreachableBlock(fn)
    assert.Equal(t, 4, bb.Id)
    assert.Len(t, fn.Blocks, 4)
    assert.IsType(t, new(IrUnreachable), bb.Term)
    assert.Same(t, bb, unreachableBlock(fn))
}

func TestMergeCalls_ThreeSites(t *testing.T) {
    m := mustParse(t, _ThreeSitesSource)
    fn := m.Lookup("F")
    target := m.Lookup("T")
    inputs := [][]int64{{0}, {1}, {2}, {-1}}
    before := runAll(m, fn, inputs)

    /* merge the calls without demotion */
    cg := collectCallSites(fn)
    require.Len(t, cg, 1)
    uc := mergeCallSites(fn, target, cg[0].Sites)
    require.NotNil(t, uc)
    assert.Equal(t, _ThreeSitesMerged, fn.String())
    assert.Equal(t, 1, CountCalls(fn, target))
    require.NoError(t, Verify(fn))

    /* the call block */
    cb, i := fn.Locate(uc)
    require.Equal(t, 0, i)
    require.Len(t, cb.Phi, 2)
    assert.Equal(t, []int{1, 2, 3}, blockIds(fn.Predecessors()[cb]))

    /* the default branch goes to an unreachable block */
    sw := cb.Term.(*IrSwitch)
    assert.IsType(t, new(IrUnreachable), sw.Ln.Term)
    assert.Empty(t, sw.Ln.Ins)

    /* the behavior is not changed */
    assert.Equal(t, before, runAll(m, fn, inputs))
}

func TestMergeCalls_ApplyThreeSites(t *testing.T) {
    m := mustParse(t, _ThreeSitesSource)
    fn := m.Lookup("F")
    inputs := [][]int64{{0}, {1}, {2}, {7}}
    before := runAll(m, fn, inputs)

    /* merge and demote */
    ResetStats()
    require.True(t, MergeCalls{}.Apply(fn))
    require.NoError(t, Verify(fn), fn.String())
    assert.Equal(t, 1, CountCalls(fn, m.Lookup("T")))
    assert.Equal(t, before, runAll(m, fn, inputs))

    /* no Phi nodes are left */
    for _, bb := range fn.Blocks {
        assert.Empty(t, bb.Phi, "bb_%d", bb.Id)
    }

    /* statistics */
    assert.Equal(t, uint64(1), MergedFuncs)
    assert.Equal(t, uint64(1), MergedGroups)
    assert.Equal(t, uint64(3), MergedSites)
    assert.Equal(t, uint64(3), DemotedPhis)
    assert.NotZero(t, DemotedRegs)

    /* idempotent */
    text := fn.String()
    assert.False(t, MergeCalls{}.Apply(fn))
    assert.Equal(t, text, fn.String())
}

func TestMergeCalls_SingleSite(t *testing.T) {
    m := mustParse(t, `
declare @g(1)

func @f(1) {
bb_0:
    %1 = load.arg #0
    %2 = call @g(%1)
    ret %2
}`)
    fn := m.Lookup("f")
    text := fn.String()
    assert.False(t, MergeCalls{}.Apply(fn))
    assert.Equal(t, text, fn.String())
    assert.Nil(t, mergeCallSites(fn, m.Lookup("g"), collectCallSites(fn)[0].Sites))
    assert.Equal(t, text, fn.String())
}

func TestMergeCalls_Exclusions(t *testing.T) {
    m := mustParse(t, `
declare @g(1)
declare intrinsic @memcpy(1)

func @f(1) {
bb_0:
    %1 = load.arg #0
    %2 = addr @g
    %3 = call.indirect %2(%1)
    %4 = call.indirect %2(%3)
    call.asm "mfence"()
    call.asm "mfence"()
    %5 = call @memcpy(%4)
    %6 = call @memcpy(%5)
    ret %6
}`)
    fn := m.Lookup("f")
    text := fn.String()
    assert.Empty(t, collectCallSites(fn))
    assert.False(t, MergeCalls{}.Apply(fn))
    assert.Equal(t, text, fn.String())
}

func TestMergeCalls_MinCallSites(t *testing.T) {
    m := mustParse(t, _ThreeSitesSource)
    fn := m.Lookup("F")
    text := fn.String()
    assert.False(t, MergeCalls{MinCallSites: 4}.Apply(fn))
    assert.Equal(t, text, fn.String())
    assert.True(t, MergeCalls{MinCallSites: 3}.Apply(fn))
}

func TestMergeCalls_NoDemote(t *testing.T) {
    m := mustParse(t, _ThreeSitesSource)
    fn := m.Lookup("F")
    require.True(t, MergeCalls{NoDemote: true}.Apply(fn))
    assert.Equal(t, _ThreeSitesMerged, fn.String())
}

func TestMergeCalls_SameBlock(t *testing.T) {
    m := mustParse(t, `
declare @f(1)

func @g(0) {
bb_0:
    %1 = call @f(1)
    %2 = call @f(2)
    %3 = %1 + %2
    ret %3
}`)
    fn := m.Lookup("g")
    emu := NewEmulator(m)
    emu.Extern = func(_ *Func, args []int64) int64 { return args[0] * 10 }

    /* every call site keeps its own result */
    require.True(t, MergeCalls{}.Apply(fn))
    require.NoError(t, Verify(fn), fn.String())
    assert.Equal(t, 1, CountCalls(fn, m.Lookup("f")))
    r, err := emu.Call(fn)
    require.NoError(t, err)
    assert.Equal(t, int64(30), r)
    assert.Equal(t, []CallRecord{{Fn: "f", Args: []int64{1}}, {Fn: "f", Args: []int64{2}}}, emu.Trace)
}

func TestMergeCalls_Loop(t *testing.T) {
    m := mustParse(t, `
declare @f(1)

func @g(1) {
bb_0:
    %1 = load.arg #0
    %2 = call @f(%1)
    goto bb_1
bb_1:
    %3 = φ(bb_0: 0, bb_2: %6)
    %4 = φ(bb_0: %2, bb_2: %7)
    %5 = %3 < %1
    switch %5 {
      0 => bb_3,
      _ => bb_2,
    }
bb_2:
    %6 = %3 + 1
    %7 = call @f(%4)
    goto bb_1
bb_3:
    ret %4
}`)
    fn := m.Lookup("g")
    inputs := [][]int64{{0}, {1}, {2}, {5}}
    before := runAll(m, fn, inputs)
    require.True(t, MergeCalls{}.Apply(fn))
    require.NoError(t, Verify(fn), fn.String())
    assert.Equal(t, 1, CountCalls(fn, m.Lookup("f")))
    assert.Equal(t, before, runAll(m, fn, inputs))
}

func TestMergeCalls_VoidWithoutArguments(t *testing.T) {
    m := mustParse(t, `
declare void @tick(0)

func void @h(0) {
bb_0:
    call @tick()
    print 1
    call @tick()
    print 2
    call @tick()
    ret
}`)
    fn := m.Lookup("h")
    before := run(m, fn)
    require.True(t, MergeCalls{NoDemote: true}.Apply(fn))
    require.NoError(t, Verify(fn))

    /* only the discriminator in the call block */
    cg := collectCallSites(fn)
    require.Len(t, cg, 1)
    require.Len(t, cg[0].Sites, 1)
    uc := cg[0].Sites[0].Call
    cb := cg[0].Sites[0].Block
    assert.Equal(t, "call @tick()", uc.String())
    assert.Len(t, cb.Phi, 1)
    assert.Equal(t, before, run(m, fn))
    assert.Len(t, before.Trace, 3)
}

func TestMergeCalls_MultipleCallees(t *testing.T) {
    m := mustParse(t, `
declare @a(2)
declare @b(1)

func @f(2) {
bb_0:
    %1 = load.arg #0
    %2 = load.arg #1
    %3 = call @a(%1, %2)
    %4 = call @b(%3)
    %5 = call @a(%4, %1)
    %6 = call @b(%5)
    %7 = call @a(%6, %6)
    ret %7
}`)
    fn := m.Lookup("f")
    inputs := [][]int64{{1, 2}, {-3, 4}}
    before := runAll(m, fn, inputs)
    ResetStats()
    require.True(t, MergeCalls{}.Apply(fn))
    require.NoError(t, Verify(fn), fn.String())
    assert.Equal(t, 1, CountCalls(fn, m.Lookup("a")))
    assert.Equal(t, 1, CountCalls(fn, m.Lookup("b")))
    assert.Equal(t, uint64(2), MergedGroups)
    assert.Equal(t, uint64(5), MergedSites)
    assert.Equal(t, before, runAll(m, fn, inputs))
}

// randomProgram builds a function out of random blocks that only branch
// forward, so every execution terminates.
func randomProgram(f *gofakeit.Faker) (*Module, *Func) {
    m := NewModule()
    ext := []*Func {
        m.Declare("f", 2, false),
        m.Declare("g", 1, false),
        m.Declare("h", 0, true),
        m.DeclareIntrinsic("i", 1, false),
    }

    /* the function being tested */
    fn := m.Define("main", 2, false)
    nb := f.Number(1, 12)
    bb := []*BasicBlock{fn.Entry()}
    for len(bb) < nb {
        bb = append(bb, fn.CreateBlock())
    }

    /* values defined in the entry block dominates every block */
    b := NewBuilder(fn)
    top := []Value{b.Arg(0), b.Arg(1)}
    addr := b.Addr(ext[0])

    /* generate the blocks */
    for i, p := range bb {
        b.SetBlock(p)
        vals := append([]Value(nil), top...)
        pick := func() Value {
            if f.Number(0, 4) == 0 {
                return Imm(f.Number(-100, 100))
            } else {
                return vals[f.Number(0, len(vals) - 1)]
            }
        }

        /* random instructions */
        for n := f.Number(0, 8); n > 0; n-- {
            var r Reg
            switch f.Number(0, 7) {
                case 0  : r = b.Call(ext[0], pick(), pick())
                case 1  : r = b.Call(ext[1], pick())
                case 2  : b.Call(ext[2]); b.Print(Imm(i))
                case 3  : r = b.Call(ext[3], pick())
                case 4  : r = b.CallIndirect(addr, false, pick(), pick())
                case 5  : b.Print(pick())
                default : r = b.Binary(IrBinaryOp(f.Number(int(IrOpAdd), int(IrCmpLt))), pick(), pick())
            }
            if r != Rz {
                vals = append(vals, r)
            }
        }

        /* values of the entry block are visible everywhere */
        if i == 0 {
            top = vals
        }

        /* the last block returns */
        if i == len(bb) - 1 {
            b.Return(pick())
            continue
        }

        /* branch forward */
        t := bb[f.Number(i + 1, len(bb) - 1)]
        if f.Bool() {
            b.Jump(t)
        } else {
            e := bb[f.Number(i + 1, len(bb) - 1)]
            b.Branch(b.Binary(IrOpAnd, pick(), Imm(1)), t, e)
        }
    }

    /* add some Phi nodes to the join points */
    preds := fn.Predecessors()
    for _, p := range bb {
        if pred := preds[p]; len(pred) > 1 && f.Bool() {
            in := make(map[*BasicBlock]Value, len(pred))
            for _, v := range pred {
                in[v] = Imm(f.Number(-10, 10))
            }
            b.SetBlock(p)
            r := b.Phi(in)
            p.Ins = append([]IrNode{&IrPrint{V: r}}, p.Ins...)
        }
    }

    /* all done */
    return m, fn
}

func TestMergeCalls_RandomPrograms(t *testing.T) {
    f := gofakeit.New(20221017)
    for n := 0; n < 200; n++ {
        m, fn := randomProgram(f)
        require.NoError(t, Verify(fn), fn.String())

        /* run with random inputs */
        inputs := make([][]int64, 4)
        for i := range inputs {
            inputs[i] = []int64{int64(f.Number(-50, 50)), int64(f.Number(-50, 50))}
        }

        /* transform the function */
        src := fn.String()
        before := runAll(m, fn, inputs)
        intrinsics := CountCalls(fn, m.Lookup("i"))
        MergeCalls{}.Apply(fn)

        /* must be valid SSA with the same behavior */
        require.NoError(t, Verify(fn), "%s\n=== after ===\n%s", src, fn)
        for _, name := range []string{"f", "g", "h"} {
            require.LessOrEqual(t, CountCalls(fn, m.Lookup(name)), 1, name)
        }
        require.Equal(t, intrinsics, CountCalls(fn, m.Lookup("i")))
        if after := runAll(m, fn, inputs); !assert.Equal(t, before, after) {
            t.Fatalf("%s\n=== after ===\n%s\n%s", src, fn, spew.Sdump(inputs))
        }
    }
}

func TestMergeCalls_LateArgument(t *testing.T) {
    m := mustParse(t, `
declare @f(1)

func @g(2) {
bb_0:
    %1 = call @f(1)
    %2 = load.arg #0
    %3 = call @f(%2)
    %4 = load.arg #1
    %5 = %3 + %4
    %6 = %5 + %1
    ret %6
}`)
    fn := m.Lookup("g")
    inputs := [][]int64{{1, 2}, {9, -9}}
    before := runAll(m, fn, inputs)
    require.True(t, MergeCalls{}.Apply(fn))
    require.NoError(t, Verify(fn), fn.String())
    assert.Equal(t, before, runAll(m, fn, inputs))

    /* the argument loads are still in the entry block */
    for _, bb := range fn.Blocks {
        for _, ins := range bb.Ins {
            if _, ok := ins.(*IrLoadArg); ok {
                assert.Same(t, fn.Entry(), bb, ins.String())
            }
        }
    }
}

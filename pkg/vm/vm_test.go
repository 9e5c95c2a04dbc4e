package vm

import (
	"testing"

	goipc "github.com/mach-sim/rmach/pkg/ipc"
	"github.com/mach-sim/rmach/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushI(v int64) Instr { return Instr{Op: PUSH, Val: types.Int(v)} }

func TestArithmetic(t *testing.T) {
	m := New(goipc.New(), 1, nil)
	m.Load([]Instr{
		pushI(7),
		pushI(3),
		{Op: SUB},
		{Op: HALT},
	})
	m.Step(10)
	require.Len(t, m.Stack, 1)
	assert.Equal(t, types.Int(4), m.Stack[0])
}

func TestDivFloorsTowardNegativeInfinity(t *testing.T) {
	m := New(goipc.New(), 1, nil)
	m.Load([]Instr{
		pushI(-7),
		pushI(2),
		{Op: DIV},
		{Op: HALT},
	})
	m.Step(10)
	assert.Equal(t, types.Int(-4), m.Stack[0])
}

func TestStoreFetch(t *testing.T) {
	m := New(goipc.New(), 1, nil)
	m.Load([]Instr{
		pushI(99),
		{Op: STORE, Name: "a"},
		{Op: FETCH, Name: "a"},
		{Op: HALT},
	})
	m.Step(10)
	assert.Equal(t, types.Int(99), m.Stack[0])
}

func TestFetchMissingPushesZero(t *testing.T) {
	m := New(goipc.New(), 1, nil)
	m.Load([]Instr{
		{Op: FETCH, Name: "nope"},
		{Op: HALT},
	})
	m.Step(10)
	assert.Equal(t, types.Zero, m.Stack[0])
}

func TestJumpLoop(t *testing.T) {
	// i = 3; while i != 0 { i = i - 1 }; halt
	m := New(goipc.New(), 1, nil)
	m.Load([]Instr{
		pushI(3),
		{Op: STORE, Name: "i"},
		{Op: FETCH, Name: "i"}, // 2: loop head
		{Op: JZ, Addr: 8},
		{Op: FETCH, Name: "i"},
		pushI(1),
		{Op: SUB},
		{Op: STORE, Name: "i"},
		{Op: JMP, Addr: 2},
		{Op: HALT},
	})
	// correct JZ target is index 9 (HALT); fix it
	m.Program[3].Addr = 9
	m.Step(100)
	assert.Equal(t, types.Int(0), m.Env["i"])
}

func TestListAndIndex(t *testing.T) {
	m := New(goipc.New(), 1, nil)
	m.Load([]Instr{
		pushI(1), pushI(2), pushI(3),
		pushI(3),
		{Op: LIST},
		pushI(1),
		{Op: INDEX},
		{Op: HALT},
	})
	m.Step(10)
	assert.Equal(t, types.Int(2), m.Stack[0])
}

func TestIndexOutOfRangePushesZero(t *testing.T) {
	m := New(goipc.New(), 1, nil)
	m.Load([]Instr{
		pushI(1),
		pushI(1),
		{Op: LIST},
		pushI(5),
		{Op: INDEX},
		{Op: HALT},
	})
	m.Step(10)
	assert.Equal(t, types.Zero, m.Stack[0])
}

func TestDict(t *testing.T) {
	m := New(goipc.New(), 1, nil)
	// DICT consumes count popped values as alternating value/key pairs,
	// newest first: push key then value so value pops first.
	m.Load([]Instr{
		pushI(10), // key
		pushI(99), // val
		pushI(2),
		{Op: DICT},
		pushI(10),
		{Op: INDEX},
		{Op: HALT},
	})
	m.Step(10)
	assert.Equal(t, types.Int(99), m.Stack[0])
}

func TestAppendList(t *testing.T) {
	m := New(goipc.New(), 1, nil)
	m.Load([]Instr{
		pushI(5),
		{Op: APPEND, Name: "xs"},
		{Op: HALT},
	})
	m.Env["xs"] = types.List{}
	m.Step(10)
	assert.Equal(t, types.List{types.Int(5)}, m.Env["xs"])
}

func TestStackOverflowClosesTask(t *testing.T) {
	m := New(goipc.New(), 1, nil)
	instrs := make([]Instr, 0, 40)
	for n := 0; n < 40; n++ {
		instrs = append(instrs, pushI(int64(n)))
	}
	m.Load(instrs)
	m.Step(100)
	assert.Equal(t, Closed, m.State)
	assert.True(t, m.Ended)
}

func TestCreatePortCapsAtEight(t *testing.T) {
	i := goipc.New()
	m := New(i, 1, nil)
	instrs := make([]Instr, 0)
	for n := 0; n < 9; n++ {
		instrs = append(instrs, Instr{Op: CREATE_PORT})
	}
	instrs = append(instrs, Instr{Op: HALT})
	m.Load(instrs)
	m.Step(100)
	require.Len(t, m.Stack, 9)
	assert.Equal(t, types.Int(-1), m.Stack[8])
}

func TestRecvOnEmptyPortBlocksAndRePushesPortID(t *testing.T) {
	i := goipc.New()
	m := New(i, 1, nil)
	port := i.CreatePort(1)
	m.Load([]Instr{
		{Op: PUSH, Val: types.Int(int64(port))},
		{Op: RECV},
		{Op: HALT},
	})
	res := m.Step(100)
	assert.False(t, res.HasHandoff)
	assert.Equal(t, Waiting, m.State)
	assert.Equal(t, types.Int(int64(port)), m.Stack[0])
	assert.Equal(t, 1, m.PC, "RECV must not advance pc when it blocks, so it re-executes on resume")
}

func TestSendProducesHandoffResult(t *testing.T) {
	i := goipc.New()
	owner := types.TaskID(1)
	sender := types.TaskID(2)
	port := i.CreatePort(owner)
	require.True(t, i.TransferRight(owner, sender, port, types.RightSend))

	// The owner blocks on its empty port first, so the send lands on a
	// waiting receiver and names it as the handoff target.
	_, status := i.Receive(owner, port)
	require.Equal(t, types.StatusBuffered, status)

	m := New(i, sender, nil)
	m.Load([]Instr{
		pushI(7),                                 // payload
		pushI(0),                                 // reply
		{Op: PUSH, Val: types.Int(int64(port))},  // remote
		{Op: SEND},
		{Op: HALT},
	})
	res := m.Step(100)
	assert.True(t, res.HasHandoff)
	assert.Equal(t, owner, res.Handoff)
}

func TestQuantumBound(t *testing.T) {
	m := New(goipc.New(), 1, nil)
	instrs := make([]Instr, 0, 10)
	for n := 0; n < 10; n++ {
		instrs = append(instrs, Instr{Op: POP})
	}
	m.Load(instrs)
	res := m.Step(3)
	assert.Equal(t, 3, res.StepsRun)
	assert.True(t, res.QuantumUsedUp)
}

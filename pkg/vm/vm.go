package vm

import (
	"github.com/mach-sim/rmach/pkg/ipc"
	"github.com/mach-sim/rmach/pkg/types"
)

// stackCap and portCap mirror the resource caps in the component this
// package reimplements: an operand stack over 32 entries terminates
// the task, and a task may never hold more than 8 self-created ports.
const (
	stackCap = 32
	portCap  = 8
)

// RunState is the VM's own run state. It has no READY value — that is
// a property of the owning proc.ProcessState, one layer up.
type RunState int

const (
	Closed RunState = iota
	Running
	Waiting
)

func (s RunState) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Running:
		return "RUNNING"
	case Waiting:
		return "WAITING"
	default:
		return "UNKNOWN"
	}
}

// OutputSink receives the value of every PRINT opcode. Tests typically
// pass a slice-collecting sink; given nil, New uses a sink that
// discards every value.
type OutputSink func(types.Value)

// StepResult reports what a single Step call accomplished.
type StepResult struct {
	StepsRun      int
	Handoff       types.TaskID
	HasHandoff    bool
	QuantumUsedUp bool
}

// VM is one task's bytecode interpreter.
type VM struct {
	ipc  *ipc.IPC
	Task types.TaskID

	Program []Instr
	PC      int
	Stack   []types.Value
	Env     map[string]types.Value

	State        RunState
	Ended        bool
	PortsCreated int

	// ExitReason is set the moment State becomes Closed: "end",
	// "overflow", or "halt". Zero value otherwise. Kernel-level
	// metrics use it to label why a task closed.
	ExitReason string

	Out OutputSink
}

// New creates a VM for task, wired to the given IPC switch. The VM
// starts Closed; call Load before the first Step.
func New(switchIPC *ipc.IPC, task types.TaskID, out OutputSink) *VM {
	if out == nil {
		out = func(types.Value) {}
	}
	return &VM{
		ipc:   switchIPC,
		Task:  task,
		Env:   map[string]types.Value{"exitcode": types.Int(0)},
		State: Closed,
		Out:   out,
	}
}

// Load installs program and resets the VM to run it from the top.
func (m *VM) Load(program []Instr) {
	m.Program = program
	m.PC = 0
	m.Stack = nil
	m.Env = map[string]types.Value{"exitcode": types.Int(0)}
	m.PortsCreated = 0
	m.Ended = false
	m.ExitReason = ""
}

// Step runs up to quantum opcodes and returns what happened. It stops
// early on program end, stack overflow, a blocking RECV, a
// handoff-producing SEND, RETURN, or HALT, and otherwise stops once
// quantum opcodes have run.
func (m *VM) Step(quantum int) StepResult {
	if m.Ended {
		return StepResult{}
	}
	m.State = Running

	if m.PC >= len(m.Program) {
		m.State = Closed
		m.ExitReason = "end"
		return StepResult{}
	}

	result := StepResult{}
	steps := 0
	for steps < quantum {
		if m.PC >= len(m.Program) {
			m.State = Closed
			m.ExitReason = "end"
			break
		}
		if len(m.Stack) > stackCap {
			m.State = Closed
			m.Ended = true
			m.ExitReason = "overflow"
			break
		}

		instr := m.Program[m.PC]
		steps++

		switch instr.Op {
		case FETCH:
			v, ok := m.Env[instr.Name]
			if ok && types.Truthy(v) {
				m.push(v)
			} else {
				m.push(types.Zero)
			}
			m.PC++
		case STORE:
			m.Env[instr.Name] = m.pop()
			m.PC++
		case PUSH:
			m.push(instr.Val)
			m.PC++
		case POP:
			m.pop()
			m.PC++
		case ADD:
			m.binIntOp(func(a, b int64) int64 { return a + b })
			m.PC++
		case SUB:
			m.binIntOp(func(a, b int64) int64 { return a - b })
			m.PC++
		case MUL:
			m.binIntOp(func(a, b int64) int64 { return a * b })
			m.PC++
		case DIV:
			m.binIntOp(floorDiv)
			m.PC++
		case LT:
			m.binBoolOp(func(a, b int64) bool { return a < b })
			m.PC++
		case GT:
			m.binBoolOp(func(a, b int64) bool { return a > b })
			m.PC++
		case EQ:
			m.binBoolOp(func(a, b int64) bool { return a == b })
			m.PC++
		case NOTEQ:
			m.binBoolOp(func(a, b int64) bool { return a != b })
			m.PC++
		case JZ:
			if !types.Truthy(m.pop()) {
				m.PC = instr.Addr
			} else {
				m.PC++
			}
		case JNZ:
			if types.Truthy(m.pop()) {
				m.PC = instr.Addr
			} else {
				m.PC++
			}
		case JMP:
			m.PC = instr.Addr
		case PRINT:
			m.Out(m.pop())
			m.PC++
		case LIST:
			m.execList()
			m.PC++
		case DICT:
			m.execDict()
			m.PC++
		case INDEX:
			m.execIndex()
			m.PC++
		case APPEND:
			m.execAppend(instr.Name)
			m.PC++
		case CREATE_PORT:
			m.execCreatePort()
			m.PC++
		case SEND:
			handoff, hasHandoff, isHandoffStatus := m.execSend()
			m.PC++
			if isHandoffStatus {
				result.Handoff = handoff
				result.HasHandoff = hasHandoff
				result.StepsRun = steps
				return result
			}
		case RECV:
			blocked := m.execRecv()
			if blocked {
				result.StepsRun = steps
				return result
			}
			m.PC++
		case RETURN:
			m.PC++
			result.StepsRun = steps
			return result
		case HALT:
			m.State = Closed
			m.Ended = true
			m.ExitReason = "halt"
			result.StepsRun = steps
			return result
		default:
			// Unreachable: the assembler never emits an opcode outside
			// this set.
			m.State = Closed
			m.Ended = true
			result.StepsRun = steps
			return result
		}
	}

	result.StepsRun = steps
	if steps >= quantum {
		result.QuantumUsedUp = true
	}
	return result
}

func (m *VM) push(v types.Value) {
	m.Stack = append(m.Stack, v)
}

func (m *VM) pop() types.Value {
	if len(m.Stack) == 0 {
		return types.Zero
	}
	v := m.Stack[len(m.Stack)-1]
	m.Stack = m.Stack[:len(m.Stack)-1]
	return v
}

func asInt(v types.Value) int64 {
	if n, ok := v.(types.Int); ok {
		return int64(n)
	}
	return 0
}

func floorDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// binIntOp pops two operands, applies f, and pushes the result — the
// ADD/SUB/MUL/DIV family, which only ever operate on the second-from-top
// slot in place before dropping the top one in the source this mirrors.
func (m *VM) binIntOp(f func(a, b int64) int64) {
	b := asInt(m.pop())
	a := asInt(m.pop())
	m.push(types.Int(f(a, b)))
}

func (m *VM) binBoolOp(f func(a, b int64) bool) {
	b := asInt(m.pop())
	a := asInt(m.pop())
	if f(a, b) {
		m.push(types.Int(1))
	} else {
		m.push(types.Int(0))
	}
}

func (m *VM) execList() {
	count := int(asInt(m.pop()))
	vals := make([]types.Value, 0, count)
	for n := 0; n < count; n++ {
		vals = append(vals, m.pop())
	}
	// vals was built newest-first; reverse to restore push order.
	for i, j := 0, len(vals)-1; i < j; i, j = i+1, j-1 {
		vals[i], vals[j] = vals[j], vals[i]
	}
	m.push(types.List(vals))
}

func (m *VM) execDict() {
	count := int(asInt(m.pop()))
	raw := make([]types.Value, 0, count)
	for n := 0; n < count; n++ {
		raw = append(raw, m.pop())
	}
	res := make(types.Map)
	for i := len(raw) - 1; i > 0; i -= 2 {
		key := raw[i]
		val := raw[i-1]
		res[key] = val
	}
	m.push(res)
}

func (m *VM) execIndex() {
	idx := m.pop()
	obj := m.pop()
	res := indexValue(obj, idx)
	m.push(res)
}

func indexValue(obj, idx types.Value) (res types.Value) {
	defer func() {
		if recover() != nil {
			res = types.Zero
		}
	}()
	switch o := obj.(type) {
	case types.List:
		i := int(asInt(idx))
		if i < 0 || i >= len(o) {
			return types.Zero
		}
		return o[i]
	case types.Map:
		v, ok := o[idx]
		if !ok {
			return types.Zero
		}
		return v
	default:
		return types.Zero
	}
}

func (m *VM) execAppend(name string) {
	obj := m.Env[name]
	switch o := obj.(type) {
	case types.Map:
		key := m.pop()
		val := m.pop()
		o[key] = val
		m.push(o)
	case types.List:
		val := m.pop()
		grown := append(o, val)
		m.Env[name] = grown
		m.push(grown)
	default:
		m.push(types.Zero)
	}
}

func (m *VM) execCreatePort() {
	m.PortsCreated++
	if m.PortsCreated > portCap {
		m.push(types.Int(-1))
		return
	}
	id := m.ipc.CreatePort(m.Task)
	m.push(types.Int(int64(id)))
}

// execSend reports (target, hasTarget, isHandoffStatus). A SEND that
// lands on a live port always returns HANDOFF and ends the step early,
// whether or not the put actually woke a blocked receiver; hasTarget
// distinguishes the two so the kernel only chains when there is
// somebody to chain to.
func (m *VM) execSend() (handoff types.TaskID, hasTarget bool, isHandoffStatus bool) {
	remote := types.PortID(asInt(m.pop()))
	reply := types.PortID(asInt(m.pop()))
	payload := m.pop()

	status, target, hasTarget := m.ipc.Send(m.Task, types.Message{Remote: remote, Reply: reply, Payload: payload})
	if status == types.StatusHandoff {
		return target, hasTarget, true
	}
	return 0, false, false
}

func (m *VM) execRecv() (blocked bool) {
	port := types.PortID(asInt(m.pop()))
	val, status := m.ipc.Receive(m.Task, port)
	switch status {
	case types.StatusBuffered:
		m.State = Waiting
		m.push(types.Int(int64(port)))
		return true
	case types.StatusDiedName:
		m.push(types.DiedValue)
	case types.StatusSuccess:
		m.push(val)
	default:
		m.push(types.Zero)
	}
	return false
}

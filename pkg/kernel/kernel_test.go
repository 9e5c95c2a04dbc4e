package kernel

import (
	"strconv"
	"testing"

	"github.com/mach-sim/rmach/pkg/ipc"
	"github.com/mach-sim/rmach/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectOutput(dst *[]types.Value) func(types.Value) {
	return func(v types.Value) { *dst = append(*dst, v) }
}

// allocEchoHandler registers a native handler that replies "hello" on
// whatever reply port the sender supplied.
func allocEchoHandler(k *Kernel) types.PortID {
	var id types.PortID
	id = k.IPC().RegisterNativeHandler(func(msg types.Message, sw *ipc.IPC) {
		sw.SyscallSend(id, types.Message{Remote: msg.Reply, Payload: types.Str("hello")})
	})
	return id
}

// TestEchoThroughNativeHandler exercises scenario S1: a task sends to a
// native handler and reads the handler's reply back off its own port.
func TestEchoThroughNativeHandler(t *testing.T) {
	var out []types.Value
	k := New(Config{Output: collectOutput(&out)})

	handlerID := allocEchoHandler(k)

	task := types.TaskID(2)
	k.GrantRight(task, handlerID, types.RightSend)
	k.Spawn(task, 4, `
		CREATE_PORT
		STORE a
		PUSH ping
		FETCH a
		PUSH `+itoa(handlerID)+`
		SEND
		FETCH a
		RECV
		PRINT
		HALT
	`)

	k.Run()

	require.Len(t, out, 1)
	assert.Equal(t, types.Str("hello"), out[0])
}

// TestBlockedReceiverWokenBySend exercises scenario S2: task A blocks
// on an empty port's RECV, task B sends into it, and the kernel chains
// straight into A's wakeup within the same dispatch.
func TestBlockedReceiverWokenBySend(t *testing.T) {
	var out []types.Value
	k := New(Config{Output: collectOutput(&out)})

	taskA := types.TaskID(1)
	taskB := types.TaskID(2)

	port := k.IPC().CreatePort(taskA)
	k.GrantRight(taskB, port, types.RightSend)

	k.Spawn(taskA, 5, `
		PUSH `+itoa(port)+`
		RECV
		PRINT
		HALT
	`)
	k.Spawn(taskB, 5, `
		PUSH 42
		PUSH 0
		PUSH `+itoa(port)+`
		SEND
		HALT
	`)

	k.Run()

	require.Len(t, out, 1)
	assert.Equal(t, types.Int(42), out[0])
}

// TestPriorityPreemptionByWake exercises scenario S6: a high-priority
// task blocked on a port wakes and runs before a same-round
// low-priority peer that was still waiting its turn when the send
// landed.
func TestPriorityPreemptionByWake(t *testing.T) {
	var out []types.Value
	k := New(Config{Output: collectOutput(&out)})

	high := types.TaskID(1)
	low1 := types.TaskID(2)
	sender := types.TaskID(3)
	low2 := types.TaskID(4)

	port := k.IPC().CreatePort(high)
	k.GrantRight(sender, port, types.RightSend)

	k.Spawn(high, 5, `
		PUSH `+itoa(port)+`
		RECV
		PUSH 1
		PRINT
		HALT
	`)
	// Spawned in FIFO order: low1 drains before the send, low2 is
	// still queued at the moment sender wakes high.
	k.Spawn(low1, 1, `PUSH 2
PRINT
HALT`)
	k.Spawn(sender, 1, `PUSH 99
PUSH 0
PUSH `+itoa(port)+`
SEND
HALT`)
	k.Spawn(low2, 1, `PUSH 3
PRINT
HALT`)

	k.Run()

	require.Len(t, out, 3)
	idxHigh := indexOfValue(out, types.Int(1))
	idxLow2 := indexOfValue(out, types.Int(3))
	require.GreaterOrEqual(t, idxHigh, 0)
	require.GreaterOrEqual(t, idxLow2, 0)
	assert.Less(t, idxHigh, idxLow2, "high wakes and prints before the still-queued low-priority peer gets its turn")
}

func indexOfValue(vals []types.Value, target types.Value) int {
	for i, v := range vals {
		if v == target {
			return i
		}
	}
	return -1
}

func itoa(p types.PortID) string {
	return strconv.Itoa(int(p))
}

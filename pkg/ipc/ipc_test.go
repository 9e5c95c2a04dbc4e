package ipc

import (
	"testing"

	"github.com/mach-sim/rmach/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	taskA types.TaskID = 1
	taskB types.TaskID = 2
)

func TestCreatePortGrantsOwnerReceive(t *testing.T) {
	i := New()
	port := i.CreatePort(taskA)
	assert.True(t, i.HasRight(taskA, port, types.RightReceive))
	assert.True(t, i.HasRight(taskA, port, types.RightSend))
}

func TestSendRequiresRight(t *testing.T) {
	i := New()
	port := i.CreatePort(taskA)

	status, _, _ := i.Send(taskB, types.Message{Remote: port, Payload: types.Int(1)})
	assert.Equal(t, types.StatusErrNoRight, status)
}

func TestSendEnqueuesAndWakesBlockedReceiver(t *testing.T) {
	i := New()
	port := i.CreatePort(taskA)
	require.True(t, i.TransferRight(taskA, taskB, port, types.RightSend))

	// Owner blocks first.
	_, status := i.Receive(taskA, port)
	require.Equal(t, types.StatusBuffered, status)

	status2, target, hasTarget := i.Send(taskB, types.Message{Remote: port, Payload: types.Int(42)})
	assert.Equal(t, types.StatusHandoff, status2)
	assert.True(t, hasTarget)
	assert.Equal(t, taskA, target)

	val, readStatus := i.Receive(taskA, port)
	assert.Equal(t, types.StatusSuccess, readStatus)
	assert.Equal(t, types.Int(42), val)
}

func TestSendToFullQueueDrops(t *testing.T) {
	i := New()
	port := i.CreatePort(taskA)
	require.True(t, i.TransferRight(taskA, taskB, port, types.RightSend))

	for n := 0; n < portQueueCap; n++ {
		status, _, _ := i.Send(taskB, types.Message{Remote: port, Payload: types.Int(int64(n))})
		require.Equal(t, types.StatusHandoff, status)
	}
	assert.Equal(t, portQueueCap, i.QueueDepth(port))

	status, _, _ := i.Send(taskB, types.Message{Remote: port, Payload: types.Int(999)})
	assert.Equal(t, types.StatusHandoff, status) // put drops silently, send still reports handoff
	assert.Equal(t, portQueueCap, i.QueueDepth(port), "queue must not grow past its cap")
}

func TestReceiveUnknownPortIsInvalidName(t *testing.T) {
	i := New()
	i.GrantRight(taskA, 999, types.RightReceive)
	_, status := i.Receive(taskA, 999)
	assert.Equal(t, types.StatusErrInvalidName, status)
}

func TestDestroyPortTombstonesAndPurgesRights(t *testing.T) {
	i := New()
	port := i.CreatePort(taskA)
	require.True(t, i.TransferRight(taskA, taskB, port, types.RightSend))

	status := i.DestroyPort(port)
	assert.Equal(t, types.StatusExtinguished, status)
	assert.True(t, i.IsDead(port))
	assert.False(t, i.HasRight(taskA, port, types.RightReceive))
	assert.False(t, i.HasRight(taskB, port, types.RightSend))

	// No dangling rights (invariant #3): a reference by anybody now
	// resolves through the tombstone, not the rights table.
	sendStatus, _, _ := i.Send(taskB, types.Message{Remote: port, Payload: types.Int(1)})
	assert.Equal(t, types.StatusDiedName, sendStatus)
}

// TestCleanupDestroysOwnedPortRegardlessOfHolders exercises scenario
// S4: when the owner exits, its port dies even though another task
// still holds a send right on it, and that right stops working
// immediately afterward. The exact failure code is DIED_NAME here
// (see the ordering note on IPC.Send) rather than the ERR_INVALID_NAME
// phrasing used loosely to describe this case elsewhere — the
// substantive guarantee, that the send fails and nothing is enqueued,
// is what's pinned down by this test.
func TestCleanupDestroysOwnedPortRegardlessOfHolders(t *testing.T) {
	i := New()
	port := i.CreatePort(taskA)
	require.True(t, i.TransferRight(taskA, taskB, port, types.RightSend))

	i.CleanupProcess(taskA)

	assert.True(t, i.IsDead(port))
	status, _, hasTarget := i.Send(taskB, types.Message{Remote: port, Payload: types.Int(7)})
	assert.Equal(t, types.StatusDiedName, status)
	assert.False(t, hasTarget)
	assert.Equal(t, 0, i.QueueDepth(port))
}

func TestNativeHandlerInvokedSynchronously(t *testing.T) {
	i := New()
	var seen types.Value
	handler := i.RegisterNativeHandler(func(msg types.Message, ipc *IPC) {
		seen = msg.Payload
	})
	i.GrantRight(taskA, handler, types.RightSend)

	status, _, _ := i.Send(taskA, types.Message{Remote: handler, Payload: types.Str("ping")})
	assert.Equal(t, types.StatusSuccess, status)
	assert.Equal(t, types.Str("ping"), seen)
}

func TestNativeHandlerFaultRepliesWithSentinel(t *testing.T) {
	i := New()
	handler := i.RegisterNativeHandler(func(msg types.Message, ipc *IPC) {
		panic("boom")
	})
	i.GrantRight(taskA, handler, types.RightSend)
	replyPort := i.CreatePort(taskA)

	status, _, _ := i.Send(taskA, types.Message{Remote: handler, Reply: replyPort, Payload: types.Int(1)})
	assert.Equal(t, types.StatusSuccess, status)

	val, _ := i.Receive(taskA, replyPort)
	assert.Equal(t, types.HandlerErrorValue, val)
}

// TestSendWithReplyTransfersSendRightToRemoteOwner exercises spec §4.3:
// a send carrying a reply port transfers a SEND right on that reply
// port from the sender to the owner of the port being sent to, not a
// SERVER bit retained by the sender itself.
func TestSendWithReplyTransfersSendRightToRemoteOwner(t *testing.T) {
	i := New()
	requestPort := i.CreatePort(taskB)
	require.True(t, i.TransferRight(taskB, taskA, requestPort, types.RightSend))
	replyPort := i.CreatePort(taskA)

	status, _, _ := i.Send(taskA, types.Message{Remote: requestPort, Reply: replyPort, Payload: types.Int(1)})
	assert.Equal(t, types.StatusHandoff, status)

	assert.True(t, i.HasRight(taskB, replyPort, types.RightSend), "remote owner must gain SEND on the reply port")
	assert.False(t, i.HasRight(taskA, replyPort, types.RightServer), "sender must not keep a SERVER bit on its own reply port")

	replyStatus, _, _ := i.Send(taskB, types.Message{Remote: replyPort, Payload: types.Str("reply")})
	assert.Equal(t, types.StatusHandoff, replyStatus)
}

func TestTransferRightRequiresSourceHoldsIt(t *testing.T) {
	i := New()
	port := i.CreatePort(taskA)
	ok := i.TransferRight(taskB, taskA, port, types.RightSend)
	assert.False(t, ok, "taskB never held a right on port, transfer must fail")
}

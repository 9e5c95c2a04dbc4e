package types

import (
	"fmt"
	"strconv"
	"strings"
)

// TaskID identifies a task. Callers of spawn choose it; it is never
// generated internally.
type TaskID int

// PortID identifies a port or a native handler. Both are drawn from the
// same monotonic counter owned by IPC.
type PortID int

// RightMask is a bitmask of capabilities a task holds on a port.
type RightMask uint8

// Right bits. RECEIVE implies SEND; SERVER is independent and is
// consumed the first time it is used to reply.
const (
	RightSend    RightMask = 0b001
	RightReceive RightMask = 0b011
	RightServer  RightMask = 0b100
)

// Has reports whether all bits of required are present in m.
func (m RightMask) Has(required RightMask) bool {
	return m&required == required
}

// Status is the result code returned by IPC operations.
type Status int

const (
	StatusSuccess Status = iota
	StatusBuffered
	StatusHandoff
	StatusErrInvalidName
	StatusErrNoRight
	StatusDiedName
	StatusExtinguished
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusBuffered:
		return "BUFFERED"
	case StatusHandoff:
		return "HANDOFF"
	case StatusErrInvalidName:
		return "ERR_INVALID_NAME"
	case StatusErrNoRight:
		return "ERR_NO_RIGHT"
	case StatusDiedName:
		return "DIED_NAME"
	case StatusExtinguished:
		return "EXTINGUISHED"
	default:
		return "UNKNOWN"
	}
}

// RightsKey identifies one cell of the rights table: the rights a single
// task holds on a single port. Using a struct key (rather than packing
// task/port into one integer with an ad hoc shift width) sidesteps the
// inconsistent-shift bug present in the system this simulator reimplements.
type RightsKey struct {
	Task TaskID
	Port PortID
}

// Message is the payload of a single send: the destination port, an
// optional one-shot reply port (0 means none), and the value carried.
type Message struct {
	Remote  PortID
	Reply   PortID
	Payload Value
}

// Value is the tagged union the VM operand stack holds: an integer,
// string, list, or map. Concrete types implement this marker interface.
type Value interface {
	isValue()
	String() string
}

// Int is an integer Value. The VM treats Int(0) and the absence of a
// value interchangeably ("falsy").
type Int int64

func (Int) isValue()          {}
func (v Int) String() string  { return strconv.FormatInt(int64(v), 10) }
func (v Int) IsZero() bool    { return v == 0 }

// Str is a string Value. It also carries the two distinguished sentinel
// values the kernel produces: DiedValue ('DIED', pushed by RECV on a
// tombstoned port) and HandlerErrorValue ('HANDLER_ERROR', delivered on
// a reply channel when a native handler faults).
type Str string

func (Str) isValue()         {}
func (v Str) String() string { return string(v) }

// List is an ordered Value collection, produced by the LIST opcode and
// grown by APPEND.
type List []Value

func (List) isValue() {}
func (v List) String() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Map is a Value-keyed, Value-valued collection produced by DICT and
// grown by APPEND. Only Value implementations with comparable underlying
// types (Int, Str) may be used as keys; using List or Map as a key
// panics at runtime, mirroring the host language's own dict-key rules.
type Map map[Value]Value

func (Map) isValue() {}
func (v Map) String() string {
	parts := make([]string, 0, len(v))
	for k, val := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", k.String(), val.String()))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Zero is the falsy value the VM substitutes for missing environment
// cells and faulted INDEX/FETCH operations.
var Zero Value = Int(0)

// DiedValue is pushed by RECV when the target port id is tombstoned.
var DiedValue Value = Str("DIED")

// HandlerErrorValue is delivered on the reply channel when a native
// handler panics while processing a message.
var HandlerErrorValue Value = Str("HANDLER_ERROR")

// Truthy mirrors the VM's notion of a nonzero/nonempty value for JZ/JNZ.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case Int:
		return t != 0
	case Str:
		return t != ""
	case List:
		return len(t) != 0
	case Map:
		return len(t) != 0
	default:
		return v != nil
	}
}

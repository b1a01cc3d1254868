package bus

import (
	"fmt"
	"strings"

	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
)

// Request layout: [length][0x40][register][checksum]
const (
	ReadRequestLength   = 0x03
	CmdReadRegister     = 0x40
	SpoofBaseOffset     = 3
	maxRequestBodyBytes = 0xFF
)

// ErrorSentinel is the answer to unknown registers and malformed requests.
var ErrorSentinel = types.Payload{0x15, 0xEA}

// Checksum returns the complement of the 8-bit sum of n bytes of b starting at off.
func Checksum(b []byte, off, n int) byte {
	var sum byte
	for i := 0; i < n; i++ {
		sum += b[off+i]
	}
	return ^sum
}

// Seal overwrites the last byte of frame with the checksum of the bytes before it.
func Seal(frame []byte) {
	if len(frame) == 0 {
		return
	}
	frame[len(frame)-1] = Checksum(frame, 0, len(frame)-1)
}

// Request is a decoded length-prefixed request.
type Request struct {
	Length byte
	Body   []byte
}

// Register reports the addressed register if the request is a well-formed read.
func (r Request) Register() (types.Register, bool) {
	if r.Length != ReadRequestLength || len(r.Body) < 2 || r.Body[0] != CmdReadRegister {
		return 0, false
	}
	return types.Register(r.Body[1]), true
}

// Encode returns the wire form of the request.
func (r Request) Encode() []byte {
	out := make([]byte, 1+len(r.Body))
	out[0] = r.Length
	copy(out[1:], r.Body)
	return out
}

// ReadRegisterRequest builds the canonical read request for reg, checksum included.
func ReadRegisterRequest(reg types.Register) Request {
	frame := []byte{ReadRequestLength, CmdReadRegister, byte(reg), 0}
	Seal(frame)
	return Request{Length: frame[0], Body: frame[1:]}
}

// IsErrorSentinel reports whether b is the error answer.
func IsErrorSentinel(b []byte) bool {
	return len(b) == len(ErrorSentinel) && b[0] == ErrorSentinel[0] && b[1] == ErrorSentinel[1]
}

// Hex formats b as colon-separated upper-case hex.
func Hex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(b)*3 - 1)
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}

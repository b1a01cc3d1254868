package telemetry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenBusSpoofer/internal/bus"
	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
)

// linePrefix marks telemetry lines carrying a captured register frame.
const linePrefix = "0x40"

// Frame is a decoded "0x40 AAAA bb cc ..." telemetry line.
type Frame struct {
	RawRegister string
	Address     uint16
	Bytes       []byte
}

// Register is the cache key: the low byte of the address.
func (f Frame) Register() types.Register {
	return types.Register(f.Address & 0xFF)
}

// LineError describes a rejected telemetry line.
type LineError struct {
	Line   string
	Reason string
	Err    error
}

func (e *LineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("telemetry line %q: %s: %v", e.Line, e.Reason, e.Err)
	}
	return fmt.Sprintf("telemetry line %q: %s", e.Line, e.Reason)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// IsFrameLine reports whether line carries a register frame.
func IsFrameLine(line string) bool {
	fields := strings.Fields(line)
	return len(fields) > 0 && fields[0] == linePrefix
}

// ParseLine decodes a frame line.
func ParseLine(line string) (Frame, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != linePrefix {
		return Frame{}, &LineError{Line: line, Reason: "missing 0x40 prefix"}
	}
	if len(fields) < 3 {
		return Frame{}, &LineError{Line: line, Reason: fmt.Sprintf("expected register and frame bytes, got %d tokens", len(fields))}
	}

	raw := fields[1]
	addr, err := parseAddress(raw)
	if err != nil {
		return Frame{}, &LineError{Line: line, Reason: "invalid register", Err: err}
	}

	bytes := make([]byte, 0, len(fields)-2)
	for _, tok := range fields[2:] {
		if len(tok) != 2 {
			return Frame{}, &LineError{Line: line, Reason: fmt.Sprintf("byte %q is not 2 hex digits", tok)}
		}
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return Frame{}, &LineError{Line: line, Reason: "invalid byte", Err: err}
		}
		bytes = append(bytes, byte(v))
	}

	return Frame{RawRegister: raw, Address: uint16(addr), Bytes: bytes}, nil
}

func parseAddress(raw string) (uint16, error) {
	if len(raw) != 4 {
		return 0, fmt.Errorf("register %q is not 4 hex digits", raw)
	}
	addr, err := strconv.ParseUint(raw, 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(addr), nil
}

// LineRegister extracts the register of a frame line even when the frame
// bytes are malformed.
func LineRegister(line string) (raw string, reg types.Register, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != linePrefix {
		return "", 0, false
	}
	addr, err := parseAddress(fields[1])
	if err != nil {
		return fields[1], 0, false
	}
	return fields[1], types.Register(addr & 0xFF), true
}

// ApplyOverrides writes every present override k at frame[SpoofBaseOffset+k].
// Overrides falling outside the frame are counted in skipped and left out.
func ApplyOverrides(frame []byte, ov types.SpoofOverride) (applied, skipped int) {
	for k, o := range ov {
		if !o.Set {
			continue
		}
		pos := bus.SpoofBaseOffset + k
		if pos >= len(frame) {
			skipped++
			continue
		}
		frame[pos] = o.Value
		applied++
	}
	return applied, skipped
}

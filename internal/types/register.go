package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Register is the one-byte address of a queryable data point.
type Register uint8

// ParseRegister parses a hexadecimal register address without prefix.
// Values above 0xFF are rejected.
func ParseRegister(s string) (Register, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid register %q: %w", s, err)
	}
	return Register(v), nil
}

func (r Register) String() string {
	return fmt.Sprintf("%02X", uint8(r))
}

// Payload is a complete response frame. Published payloads are read-only.
type Payload []byte

// Clone returns a private copy of the payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	copy(out, p)
	return out
}

// Override is one position of a spoof table line. Set=false is the "--" no-op.
type Override struct {
	Value byte
	Set   bool
}

func (o Override) String() string {
	if !o.Set {
		return "--"
	}
	return fmt.Sprintf("%02X", o.Value)
}

// SpoofOverride lists byte overrides for a register, index-aligned to the
// frame offset minus SpoofBaseOffset.
type SpoofOverride []Override

func (s SpoofOverride) String() string {
	parts := make([]string, len(s))
	for i, o := range s {
		parts[i] = o.String()
	}
	return strings.Join(parts, " ")
}

// Mode selects the backing source of truth for the register cache.
type Mode string

const (
	ModeTelemetry Mode = "telemetry"
	ModeDataset   Mode = "dataset"
)

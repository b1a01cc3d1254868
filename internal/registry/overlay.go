package registry

import (
	"sort"
	"sync/atomic"

	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
)

type overlayTable map[types.Register]types.SpoofOverride

// SpoofEntry is one register of an overlay snapshot.
type SpoofEntry struct {
	Register types.Register
	Override types.SpoofOverride
}

// Overlay holds the spoof table. Readers see one published table at a time;
// ReplaceAll builds the next table off to the side and swaps it in.
type Overlay struct {
	table atomic.Pointer[overlayTable]
}

func NewOverlay() *Overlay {
	o := &Overlay{}
	empty := make(overlayTable)
	o.table.Store(&empty)
	return o
}

// ReplaceAll publishes entries merged over the current table. Registers not
// named in entries keep their previous override list. Single writer only.
func (o *Overlay) ReplaceAll(entries map[types.Register]types.SpoofOverride) {
	current := *o.table.Load()

	next := make(overlayTable, len(current)+len(entries))
	for reg, ov := range current {
		next[reg] = ov
	}
	for reg, ov := range entries {
		cp := make(types.SpoofOverride, len(ov))
		copy(cp, ov)
		next[reg] = cp
	}

	o.table.Store(&next)
}

// Get returns the override list of reg.
func (o *Overlay) Get(reg types.Register) (types.SpoofOverride, bool) {
	ov, ok := (*o.table.Load())[reg]
	return ov, ok
}

func (o *Overlay) Len() int {
	return len(*o.table.Load())
}

// Snapshot returns the table ordered by register.
func (o *Overlay) Snapshot() []SpoofEntry {
	table := *o.table.Load()
	out := make([]SpoofEntry, 0, len(table))
	for reg, ov := range table {
		out = append(out, SpoofEntry{Register: reg, Override: ov})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Register < out[j].Register })
	return out
}

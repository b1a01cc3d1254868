package registry

import (
	"sync"
	"testing"

	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
)

func set(b byte) types.Override { return types.Override{Value: b, Set: true} }

var skip = types.Override{}

func TestOverlayReplaceAllMerges(t *testing.T) {
	o := NewOverlay()
	o.ReplaceAll(map[types.Register]types.SpoofOverride{
		0x05: {skip, set(0xAB)},
		0x10: {set(0x01)},
	})
	o.ReplaceAll(map[types.Register]types.SpoofOverride{
		0x05: {set(0xCD)},
	})

	ov, ok := o.Get(0x05)
	if !ok || ov.String() != "CD" {
		t.Fatalf("Get(05) = %v, %v; want CD", ov, ok)
	}
	ov, ok = o.Get(0x10)
	if !ok || ov.String() != "01" {
		t.Fatalf("Get(10) = %v, %v; want retained 01", ov, ok)
	}
	if o.Len() != 2 {
		t.Fatalf("Len = %d, want 2", o.Len())
	}
}

func TestOverlayCopiesInput(t *testing.T) {
	o := NewOverlay()
	in := types.SpoofOverride{set(0x01)}
	o.ReplaceAll(map[types.Register]types.SpoofOverride{0x01: in})
	in[0] = set(0xFF)

	ov, _ := o.Get(0x01)
	if ov[0].Value != 0x01 {
		t.Fatalf("overlay shares caller slice: %v", ov)
	}
}

func TestOverlaySnapshotIsStable(t *testing.T) {
	o := NewOverlay()
	o.ReplaceAll(map[types.Register]types.SpoofOverride{0x20: {set(0x01)}, 0x02: {skip}})

	snap := o.Snapshot()
	o.ReplaceAll(map[types.Register]types.SpoofOverride{0x30: {set(0x02)}})

	if len(snap) != 2 || snap[0].Register != 0x02 || snap[1].Register != 0x20 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if o.Len() != 3 {
		t.Fatalf("Len = %d, want 3", o.Len())
	}
}

func TestOverlayReadersSeeWholeTables(t *testing.T) {
	o := NewOverlay()
	tableA := map[types.Register]types.SpoofOverride{0x01: {set(0xAA)}, 0x02: {set(0xAA)}}
	tableB := map[types.Register]types.SpoofOverride{0x01: {set(0xBB)}, 0x02: {set(0xBB)}}
	o.ReplaceAll(tableA)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if i%2 == 0 {
				o.ReplaceAll(tableB)
			} else {
				o.ReplaceAll(tableA)
			}
		}
		close(stop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := o.Snapshot()
			if len(snap) != 2 {
				t.Errorf("snapshot has %d entries", len(snap))
				return
			}
			if snap[0].Override[0].Value != snap[1].Override[0].Value {
				t.Errorf("mixed snapshot: %v / %v", snap[0].Override, snap[1].Override)
				return
			}
		}
	}()

	wg.Wait()
}

package telemetry

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenBusSpoofer/internal/audit"
	"github.com/KevinKickass/OpenBusSpoofer/internal/bus"
	"github.com/KevinKickass/OpenBusSpoofer/internal/registry"
	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
	"go.uber.org/zap"
)

// Event is one message delivered by the telemetry transport.
type Event struct {
	Topic    string
	Payload  string
	Received time.Time
}

// Stats counts ingested and rejected frame lines.
type Stats struct {
	Stored   uint64 `json:"stored"`
	Rejected uint64 `json:"rejected"`
	Spoofed  uint64 `json:"spoofed"`
}

// Ingester drains the event channel into the register cache, applying the
// spoof overlay on the way.
type Ingester struct {
	topic    string
	events   <-chan Event
	cache    *registry.Cache
	overlay  *registry.Overlay
	recorder audit.Recorder
	logger   *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex

	stored   atomic.Uint64
	rejected atomic.Uint64
	spoofed  atomic.Uint64
}

// NewIngester creates an ingester. recorder may be nil.
func NewIngester(
	topic string,
	events <-chan Event,
	cache *registry.Cache,
	overlay *registry.Overlay,
	recorder audit.Recorder,
	logger *zap.Logger,
) *Ingester {
	return &Ingester{
		topic:    topic,
		events:   events,
		cache:    cache,
		overlay:  overlay,
		recorder: recorder,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start launches the consumer goroutine
func (i *Ingester) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.running {
		return nil
	}

	i.running = true
	i.wg.Add(1)

	go i.consumeLoop()

	i.logger.Info("Telemetry ingester started", zap.String("topic", i.topic))

	return nil
}

// Stop stops the consumer and waits for it to exit
func (i *Ingester) Stop() {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return
	}
	i.mu.Unlock()

	close(i.stopChan)
	i.wg.Wait()

	i.mu.Lock()
	i.running = false
	i.mu.Unlock()

	i.logger.Info("Telemetry ingester stopped")
}

func (i *Ingester) consumeLoop() {
	defer i.wg.Done()

	for {
		select {
		case <-i.stopChan:
			return
		case ev, ok := <-i.events:
			if !ok {
				return
			}
			i.Handle(ev)
		}
	}
}

// Handle processes every frame line of ev. Events on other topics are ignored.
func (i *Ingester) Handle(ev Event) {
	if ev.Topic != i.topic {
		return
	}
	if ev.Received.IsZero() {
		ev.Received = time.Now()
	}

	for _, line := range strings.Split(ev.Payload, "\n") {
		line = strings.TrimSpace(line)
		if !IsFrameLine(line) {
			continue
		}

		_, stored, err := i.Ingest(line)

		rec := audit.Record{
			Time:   ev.Received,
			Topic:  ev.Topic,
			Line:   line,
			Stored: stored,
		}
		rec.RawRegister, rec.Register, rec.HasRegister = LineRegister(line)
		i.record(rec)

		if err != nil {
			i.rejected.Add(1)
			i.logger.Warn("Telemetry line dropped",
				zap.String("topic", ev.Topic),
				zap.Error(err))
		}
	}
}

// Ingest parses one frame line, applies the overlay and stores the result.
func (i *Ingester) Ingest(line string) (types.Register, types.Payload, error) {
	frame, err := ParseLine(line)
	if err != nil {
		return 0, nil, err
	}

	reg := frame.Register()
	data := frame.Bytes

	i.logger.Debug("Telemetry frame",
		zap.String("reg", reg.String()),
		zap.String("bin", bus.Hex(data)))

	if ov, ok := i.overlay.Get(reg); ok && len(ov) > 0 {
		applied, skipped := ApplyOverrides(data, ov)
		if skipped > 0 {
			i.logger.Warn("Spoof overrides beyond frame length skipped",
				zap.String("reg", reg.String()),
				zap.Int("frame_len", len(data)),
				zap.Int("skipped", skipped))
		}
		bus.Seal(data)
		if applied > 0 {
			i.spoofed.Add(1)
		}
	}

	i.cache.Put(reg, data)
	i.stored.Add(1)

	i.logger.Debug("Telemetry frame stored",
		zap.String("reg", reg.String()),
		zap.String("spoof", bus.Hex(data)))

	return reg, data, nil
}

func (i *Ingester) record(rec audit.Record) {
	if i.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := i.recorder.Record(ctx, rec); err != nil {
		i.logger.Warn("Audit record failed",
			zap.String("raw_register", rec.RawRegister),
			zap.Error(err))
	}
}

// Stats returns the ingestion counters
func (i *Ingester) Stats() Stats {
	return Stats{
		Stored:   i.stored.Load(),
		Rejected: i.rejected.Load(),
		Spoofed:  i.spoofed.Load(),
	}
}

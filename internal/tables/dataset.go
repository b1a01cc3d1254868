package tables

import (
	"fmt"
	"io"
	"os"

	"github.com/KevinKickass/OpenBusSpoofer/internal/bus"
	"github.com/KevinKickass/OpenBusSpoofer/internal/registry"
	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
	"go.uber.org/zap"
)

// ParseDataset reads a dataset table. Each data line "REG b0 b1 ..." becomes
// a frame of the body bytes followed by their checksum. Entries keep file
// order, so a repeated register resolves to its last line.
func ParseDataset(r io.Reader, name string) ([]registry.Entry, error) {
	lines, err := scanLines(r, true)
	if err != nil {
		return nil, err
	}

	entries := make([]registry.Entry, 0, len(lines))
	for _, line := range lines {
		reg, err := types.ParseRegister(line.fields[0])
		if err != nil {
			return nil, &ParseError{File: name, Line: line.number, Token: line.fields[0], Err: err}
		}

		frame := make(types.Payload, len(line.fields))
		for i, tok := range line.fields[1:] {
			b, err := parseByte(tok)
			if err != nil {
				return nil, &ParseError{File: name, Line: line.number, Token: tok, Err: err}
			}
			frame[i] = b
		}
		bus.Seal(frame)

		entries = append(entries, registry.Entry{Register: reg, Payload: frame})
	}

	return entries, nil
}

// DatasetLoader publishes a dataset file into the register cache.
type DatasetLoader struct {
	path   string
	cache  *registry.Cache
	logger *zap.Logger
	status statusTracker
}

func NewDatasetLoader(path string, cache *registry.Cache, logger *zap.Logger) *DatasetLoader {
	l := &DatasetLoader{
		path:   path,
		cache:  cache,
		logger: logger,
	}
	l.status.status.Path = path
	return l
}

func (l *DatasetLoader) Name() string { return "dataset" }
func (l *DatasetLoader) Path() string { return l.path }

func (l *DatasetLoader) Status() Status {
	return l.status.get()
}

// Load parses the whole file before touching the cache; on error the cache
// keeps its previous contents.
func (l *DatasetLoader) Load() error {
	f, err := os.Open(l.path)
	if err != nil {
		err = fmt.Errorf("failed to open dataset: %w", err)
		l.status.failure(err)
		return err
	}
	defer f.Close()

	entries, err := ParseDataset(f, l.path)
	if err != nil {
		l.status.failure(err)
		return err
	}

	for _, e := range entries {
		l.cache.Put(e.Register, e.Payload)
	}
	l.status.success(len(entries))

	l.logger.Info("Register cache updated",
		zap.String("file", l.path),
		zap.Int("entries", len(entries)),
		zap.Int("cache_size", l.cache.Len()))

	for _, e := range l.cache.Snapshot() {
		l.logger.Debug("Register",
			zap.String("reg", e.Register.String()),
			zap.String("payload", bus.Hex(e.Payload)))
	}

	return nil
}

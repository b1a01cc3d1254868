package tables

import (
	"fmt"
	"io"
	"os"

	"github.com/KevinKickass/OpenBusSpoofer/internal/registry"
	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
	"go.uber.org/zap"
)

const noOverride = "--"

// ParseSpoofTable reads a spoof table: "REG ov0 ov1 ..." with "--" for
// positions left untouched.
func ParseSpoofTable(r io.Reader, name string) (map[types.Register]types.SpoofOverride, error) {
	lines, err := scanLines(r, false)
	if err != nil {
		return nil, err
	}

	entries := make(map[types.Register]types.SpoofOverride, len(lines))
	for _, line := range lines {
		reg, err := types.ParseRegister(line.fields[0])
		if err != nil {
			return nil, &ParseError{File: name, Line: line.number, Token: line.fields[0], Err: err}
		}

		overrides := make(types.SpoofOverride, 0, len(line.fields)-1)
		for _, tok := range line.fields[1:] {
			if tok == noOverride {
				overrides = append(overrides, types.Override{})
				continue
			}
			b, err := parseByte(tok)
			if err != nil {
				return nil, &ParseError{File: name, Line: line.number, Token: tok, Err: err}
			}
			overrides = append(overrides, types.Override{Value: b, Set: true})
		}

		entries[reg] = overrides
	}

	return entries, nil
}

// SpoofTableLoader publishes a spoof table file into the overlay.
type SpoofTableLoader struct {
	path    string
	overlay *registry.Overlay
	logger  *zap.Logger
	status  statusTracker
}

func NewSpoofTableLoader(path string, overlay *registry.Overlay, logger *zap.Logger) *SpoofTableLoader {
	l := &SpoofTableLoader{
		path:    path,
		overlay: overlay,
		logger:  logger,
	}
	l.status.status.Path = path
	return l
}

func (l *SpoofTableLoader) Name() string { return "spoof" }
func (l *SpoofTableLoader) Path() string { return l.path }

func (l *SpoofTableLoader) Status() Status {
	return l.status.get()
}

func (l *SpoofTableLoader) Load() error {
	f, err := os.Open(l.path)
	if err != nil {
		err = fmt.Errorf("failed to open spoof table: %w", err)
		l.status.failure(err)
		return err
	}
	defer f.Close()

	entries, err := ParseSpoofTable(f, l.path)
	if err != nil {
		l.status.failure(err)
		return err
	}

	l.overlay.ReplaceAll(entries)
	l.status.success(len(entries))

	l.logger.Info("Spoof table updated",
		zap.String("file", l.path),
		zap.Int("entries", len(entries)),
		zap.Int("overlay_size", l.overlay.Len()))

	for _, e := range l.overlay.Snapshot() {
		l.logger.Info("Spoof",
			zap.String("reg", e.Register.String()),
			zap.Stringer("overrides", e.Override))
	}

	return nil
}

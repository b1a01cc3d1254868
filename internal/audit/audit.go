package audit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
)

// Record is one telemetry line as received, plus the frame it produced.
type Record struct {
	Time        time.Time
	Topic       string
	RawRegister string // 4 hex digits as sent on the wire
	Line        string
	Register    types.Register
	HasRegister bool          // false when the address could not be parsed
	Stored      types.Payload // nil when the line was rejected
}

// Recorder persists audit records.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Multi fans a record out to several recorders and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, rec Record) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const timeLayout = "2006-01-02 15:04:05"

// FileRecorder appends each record to <dir>/<prefix>_<RRRR>.log.
type FileRecorder struct {
	dir    string
	prefix string
	mu     sync.Mutex
}

func NewFileRecorder(dir, prefix string) (*FileRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit dir: %w", err)
	}
	return &FileRecorder{dir: dir, prefix: prefix}, nil
}

// Path returns the log file used for a raw register string.
func (f *FileRecorder) Path(rawRegister string) string {
	if !isHex4(rawRegister) {
		rawRegister = "invalid"
	}
	return filepath.Join(f.dir, fmt.Sprintf("%s_%s.log", f.prefix, rawRegister))
}

func (f *FileRecorder) Record(_ context.Context, rec Record) error {
	line := rec.Time.Format(timeLayout) + " " + rec.Line + "\n"

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.Path(rec.RawRegister), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func isHex4(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

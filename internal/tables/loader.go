package tables

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Loader reads one table file and publishes it.
type Loader interface {
	Name() string
	Path() string
	Load() error
	Status() Status
}

// Status describes the outcome of the most recent load attempts.
type Status struct {
	Path        string    `json:"path"`
	Entries     int       `json:"entries"`
	Loads       int       `json:"loads"`
	LastLoad    time.Time `json:"last_load"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
}

type statusTracker struct {
	mu     sync.RWMutex
	status Status
}

func (t *statusTracker) success(entries int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Entries = entries
	t.status.Loads++
	t.status.LastLoad = time.Now()
	t.status.LastError = ""
}

func (t *statusTracker) failure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.LastError = err.Error()
	t.status.LastErrorAt = time.Now()
}

func (t *statusTracker) get() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// ParseError locates a malformed token in a table file.
type ParseError struct {
	File  string
	Line  int
	Token string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: invalid token %q: %v", e.File, e.Line, e.Token, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// tableLine is a tokenized data line with its 1-based line number.
type tableLine struct {
	number int
	fields []string
}

// scanLines skips the header line and blank lines, plus comments when
// skipComments is set.
func scanLines(r io.Reader, skipComments bool) ([]tableLine, error) {
	var out []tableLine

	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		if n == 1 {
			continue
		}
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		if skipComments && strings.HasPrefix(text, "#") {
			continue
		}
		out = append(out, tableLine{number: n, fields: strings.Fields(text)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}

	return out, nil
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

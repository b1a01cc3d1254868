package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/KevinKickass/OpenBusSpoofer/internal/api/websocket"
	"github.com/KevinKickass/OpenBusSpoofer/internal/config"
	"github.com/KevinKickass/OpenBusSpoofer/internal/interfaces"
	"github.com/KevinKickass/OpenBusSpoofer/internal/registry"
	"github.com/KevinKickass/OpenBusSpoofer/internal/storage"
	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
	"go.uber.org/zap/zaptest"
)

type fakeLifecycle struct {
	cfg       *config.Config
	cache     *registry.Cache
	overlay   *registry.Overlay
	reloadErr error
	reloads   int
}

func (f *fakeLifecycle) Config() *config.Config             { return f.cfg }
func (f *fakeLifecycle) Cache() *registry.Cache             { return f.cache }
func (f *fakeLifecycle) Overlay() *registry.Overlay         { return f.overlay }
func (f *fakeLifecycle) Storage() *storage.PostgresClient   { return nil }
func (f *fakeLifecycle) Shutdown(ctx context.Context) error { return nil }

func (f *fakeLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{
		State:     "RUNNING",
		Mode:      string(types.ModeDataset),
		CacheSize: f.cache.Len(),
	}
}

func (f *fakeLifecycle) TriggerReload() error {
	f.reloads++
	return f.reloadErr
}

func newTestServer(t *testing.T) (*Server, *fakeLifecycle) {
	t.Helper()

	lm := &fakeLifecycle{
		cfg:     &config.Config{Server: config.ServerConfig{HTTPPort: 0}},
		cache:   registry.NewCache(),
		overlay: registry.NewOverlay(),
	}
	lm.cache.Put(0x42, types.Payload{0x01, 0x02, 0xFC})
	lm.cache.Put(0x05, types.Payload{0x03, 0x40, 0x05, 0xB7})
	lm.overlay.ReplaceAll(map[types.Register]types.SpoofOverride{
		0x05: {{}, {Value: 0xAB, Set: true}},
	})

	logger := zaptest.NewLogger(t)
	return NewServer(lm.cfg, lm, logger, websocket.NewHub(logger), nil), lm
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	if w := do(t, s, http.MethodGet, "/health"); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestListRegistersOrdered(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/registers")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Registers []registerDump `json:"registers"`
		Count     int            `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Count != 2 || body.Registers[0].Register != "05" || body.Registers[1].Register != "42" {
		t.Fatalf("body = %+v", body)
	}
	if body.Registers[1].Payload != "01:02:FC" || body.Registers[1].Length != 3 {
		t.Fatalf("register 42 = %+v", body.Registers[1])
	}
}

func TestListRegistersYAML(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/registers?format=yaml")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/yaml") {
		t.Fatalf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "01:02:FC") {
		t.Fatalf("yaml body = %s", w.Body.String())
	}
}

func TestGetRegister(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantBody string
	}{
		{"cached", "/api/v1/registers/42", http.StatusOK, `"payload":"01:02:FC"`},
		{"with spoof", "/api/v1/registers/05", http.StatusOK, `"spoof":"-- AB"`},
		{"not cached", "/api/v1/registers/10", http.StatusNotFound, "REGISTERS_404"},
		{"invalid", "/api/v1/registers/zz", http.StatusBadRequest, "REGISTERS_400"},
		{"out of range", "/api/v1/registers/100", http.StatusBadRequest, "REGISTERS_400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodGet, tt.target)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Fatalf("body = %s, want substring %s", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestListSpoof(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/spoof")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"overrides":"-- AB"`) {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestTriggerReload(t *testing.T) {
	s, lm := newTestServer(t)

	if w := do(t, s, http.MethodPost, "/api/v1/reload"); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	lm.reloadErr = errors.New("spoof.txt:3: invalid token")
	w := do(t, s, http.MethodPost, "/api/v1/reload")
	if w.Code != http.StatusUnprocessableEntity || !strings.Contains(w.Body.String(), "RELOAD_422") {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if lm.reloads != 2 {
		t.Fatalf("reloads = %d, want 2", lm.reloads)
	}
}

func TestStorageRoutesWithoutDatabase(t *testing.T) {
	s, _ := newTestServer(t)

	for _, target := range []string{"/api/v1/system/reloads", "/api/v1/registers/42/history"} {
		if w := do(t, s, http.MethodGet, target); w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: status = %d, want 503", target, w.Code)
		}
	}
}

func TestSystemStatus(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/system/status")
	var status interfaces.SystemStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if status.State != "RUNNING" || status.CacheSize != 2 {
		t.Fatalf("status = %+v", status)
	}
}

package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenBusSpoofer/internal/config"
	"github.com/KevinKickass/OpenBusSpoofer/internal/registry"
	"github.com/KevinKickass/OpenBusSpoofer/internal/storage"
	"github.com/KevinKickass/OpenBusSpoofer/internal/tables"
	"github.com/KevinKickass/OpenBusSpoofer/internal/telemetry"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string           `json:"state"`
	Mode             string           `json:"mode"`
	CacheSize        int              `json:"cache_size"`
	SpoofEntries     int              `json:"spoof_entries"`
	Connections      int              `json:"connections"`
	Requests         uint64           `json:"requests"`
	WebSocketClients int              `json:"websocket_clients"`
	Table            tables.Status    `json:"table"`
	Telemetry        *telemetry.Stats `json:"telemetry,omitempty"`
}

type LifecycleManager interface {
	Config() *config.Config
	Cache() *registry.Cache
	Overlay() *registry.Overlay
	// Storage is nil unless the database is enabled
	Storage() *storage.PostgresClient
	GetCurrentStatus() SystemStatus
	TriggerReload() error
	Shutdown(ctx context.Context) error
}

package interfaces

import (
	"context"
	"io"

	"github.com/KevinKickass/OpenRotoCore/internal/catalog"
	"github.com/KevinKickass/OpenRotoCore/internal/config"
	"github.com/KevinKickass/OpenRotoCore/internal/machine"
	"github.com/KevinKickass/OpenRotoCore/internal/orders"
	"github.com/KevinKickass/OpenRotoCore/internal/storage"
)

// SystemStatus is the plant-level summary served at /api/v1/system/status.
type SystemStatus struct {
	State         string `json:"state"`
	MachineCount  int    `json:"machine_count"`
	MachinesReady int    `json:"machines_ready"`
	MoldCount     int    `json:"mold_count"`
	OrderCount    int    `json:"order_count"`
	Persistent    bool   `json:"persistent"`
}

type LifecycleManager interface {
	Config() *config.Config
	Catalog() *catalog.Catalog
	Machines() *machine.Registry
	Orders() *orders.Service
	SpiderProfile(ref string) (*catalog.SpiderProfile, error)
	// ImportMolds merges a mold sheet into the catalog and persists the accepted rows.
	ImportMolds(ctx context.Context, r io.Reader) (int, []catalog.RowError, error)
	// CycleHistory lists recorded cycles newest first. It fails when no database is configured.
	CycleHistory(ctx context.Context, machineID string, limit int) ([]storage.CycleRecord, error)
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}

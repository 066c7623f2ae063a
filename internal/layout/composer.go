package layout

import (
	"fmt"

	"github.com/KevinKickass/OpenRotoCore/internal/catalog"
	"github.com/KevinKickass/OpenRotoCore/internal/molding"
	"go.uber.org/zap"
)

// SpiderSource resolves spider references used in layouts.
type SpiderSource interface {
	Load(ref string) (*catalog.SpiderProfile, error)
}

// Composer turns layouts into machines, drawing mounted molds out of the catalog.
type Composer struct {
	catalog         *catalog.Catalog
	spiders         SpiderSource
	defaultMaxDaily int
	logger          *zap.Logger
}

func NewComposer(cat *catalog.Catalog, spiders SpiderSource, defaultMaxDaily int, logger *zap.Logger) *Composer {
	return &Composer{
		catalog:         cat,
		spiders:         spiders,
		defaultMaxDaily: defaultMaxDaily,
		logger:          logger,
	}
}

// Compose builds the machine described by l. Every mounted mold takes one unit of
// catalog stock; if any step fails, units already taken are returned.
func (c *Composer) Compose(l *Layout) (m *molding.RTXMachine, err error) {
	c.logger.Info("Composing machine",
		zap.String("machine_id", l.MachineID),
		zap.Int("arms", len(l.Arms)))

	reserved := make([]string, 0)
	defer func() {
		if err == nil {
			return
		}
		for _, id := range reserved {
			if relErr := c.catalog.Release(id, 1); relErr != nil {
				c.logger.Warn("Failed to release mold", zap.String("mold_id", id), zap.Error(relErr))
			}
		}
	}()

	m = molding.NewRTXMachine(l.MachineID, l.MachineCount)
	m.MaxDailyCycles = c.defaultMaxDaily
	if l.MaxDailyCycles != nil {
		m.MaxDailyCycles = *l.MaxDailyCycles
	}

	for _, al := range l.Arms {
		arm := molding.NewArm(al.ArmID, al.MountingSpots, al.MaxVolume, al.WeightCapacity,
			al.TorqueLeftSide, al.TorqueRightSide)

		for _, ref := range al.Spiders {
			profile, err := c.spiders.Load(ref)
			if err != nil {
				return nil, fmt.Errorf("arm %s: failed to load spider: %w", al.ArmID, err)
			}
			arm.MountSpider(profile.Spider())
		}

		for _, moldID := range al.Molds {
			mold, err := c.catalog.Reserve(moldID, 1)
			if err != nil {
				return nil, fmt.Errorf("arm %s: failed to reserve mold: %w", al.ArmID, err)
			}
			reserved = append(reserved, moldID)
			arm.MountMold(mold)
		}

		for _, w := range al.Weights {
			pos, err := molding.ParsePosition(w.Position)
			if err != nil {
				return nil, fmt.Errorf("arm %s: %w", al.ArmID, err)
			}
			if err := arm.AddBalancingWeight(w.Weight, pos); err != nil {
				return nil, fmt.Errorf("arm %s: %w", al.ArmID, err)
			}
		}

		m.AddArm(arm)

		c.logger.Debug("Arm composed",
			zap.String("machine_id", l.MachineID),
			zap.String("arm_id", al.ArmID),
			zap.Int("molds", len(al.Molds)),
			zap.Int("spiders", len(al.Spiders)))
	}

	if ok, msg := m.ValidateArrangement(); !ok {
		c.logger.Warn("Composed machine arrangement is not runnable",
			zap.String("machine_id", l.MachineID),
			zap.String("reason", msg))
	}

	c.logger.Info("Machine composition complete",
		zap.String("machine_id", l.MachineID),
		zap.Int("max_daily_cycles", m.MaxDailyCycles))

	return m, nil
}

package layout

import (
	"errors"
	"fmt"
	"os"

	"github.com/KevinKickass/OpenRotoCore/internal/molding"
	"gopkg.in/yaml.v3"
)

// Layout is the on-disk description of one machine and what is mounted on it.
type Layout struct {
	MachineID      string      `yaml:"machine_id"`
	MachineCount   int         `yaml:"machine_count"`
	MaxDailyCycles *int        `yaml:"max_daily_cycles,omitempty"`
	Arms           []ArmLayout `yaml:"arms"`
}

type ArmLayout struct {
	ArmID           string         `yaml:"arm_id"`
	MountingSpots   int            `yaml:"mounting_spots"`
	MaxVolume       float64        `yaml:"max_volume"`
	WeightCapacity  float64        `yaml:"weight_capacity"`
	TorqueLeftSide  float64        `yaml:"torque_left_side"`
	TorqueRightSide float64        `yaml:"torque_right_side"`
	Molds           []string       `yaml:"molds,omitempty"`
	Spiders         []string       `yaml:"spiders,omitempty"`
	Weights         []WeightLayout `yaml:"weights,omitempty"`
}

type WeightLayout struct {
	Weight   float64 `yaml:"weight"`
	Position string  `yaml:"position"`
}

func Load(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout: %w", err)
	}

	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("layout %s: %w", path, err)
	}
	return l, nil
}

func Parse(data []byte) (*Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal layout: %w", err)
	}
	if l.MachineCount == 0 {
		l.MachineCount = 1
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Validate checks the layout's structure. Physical constraints are left to the machine.
func (l *Layout) Validate() error {
	if l.MachineID == "" {
		return errors.New("machine_id is required")
	}
	if l.MaxDailyCycles != nil && *l.MaxDailyCycles < 0 {
		return fmt.Errorf("max_daily_cycles must not be negative, got %d", *l.MaxDailyCycles)
	}

	seen := make(map[string]bool, len(l.Arms))
	for i, arm := range l.Arms {
		if arm.ArmID == "" {
			return fmt.Errorf("arm %d: arm_id is required", i)
		}
		if seen[arm.ArmID] {
			return fmt.Errorf("duplicate arm_id %q", arm.ArmID)
		}
		seen[arm.ArmID] = true

		if arm.MountingSpots > 0 && len(arm.Molds) > arm.MountingSpots {
			return fmt.Errorf("arm %s: %d molds for %d mounting spots",
				arm.ArmID, len(arm.Molds), arm.MountingSpots)
		}
		for _, w := range arm.Weights {
			if _, err := molding.ParsePosition(w.Position); err != nil {
				return fmt.Errorf("arm %s: %w", arm.ArmID, err)
			}
		}
	}
	return nil
}

package molding

import "math"

// Default relative tolerances used when co-mounting molds on one arm.
const (
	DefaultTemperatureTolerance = 0.02
	DefaultTimeTolerance        = 0.02

	// toleranceSlack absorbs float rounding so a difference sitting exactly on the
	// tolerance (e.g. 3.06 vs 3 at 2%) is accepted.
	toleranceSlack = 1e-9
)

// Mold describes one mold cavity and its process parameters.
// Times and temperatures only need to be consistent across a catalog.
type Mold struct {
	MoldID             string  `json:"mold_id"`
	Volume             float64 `json:"volume"`
	Weight             float64 `json:"weight"`
	HeatingTime        float64 `json:"heating_time"`
	HeatingTemperature float64 `json:"heating_temperature"`
	CoolingTime        float64 `json:"cooling_time"`
	MountingTime       float64 `json:"mounting_time"`
	DistanceFromCenter float64 `json:"distance_from_center"`
	AvailableQuantity  int     `json:"available_quantity"`
	MoldType           string  `json:"mold_type"`
}

// ProcessParameters is a snapshot of the parameters that govern co-mounting.
type ProcessParameters struct {
	HeatingTime        float64 `json:"heating_time"`
	HeatingTemperature float64 `json:"heating_temperature"`
	CoolingTime        float64 `json:"cooling_time"`
	MountingTime       float64 `json:"mounting_time"`
}

// CalculateTorque returns weight * distance from the arm's pivot.
func (m Mold) CalculateTorque() float64 {
	return m.Weight * m.DistanceFromCenter
}

// CycleTime returns heating + cooling + mounting time.
func (m Mold) CycleTime() float64 {
	return m.HeatingTime + m.CoolingTime + m.MountingTime
}

func (m Mold) CheckAvailability(requiredQuantity int) bool {
	return requiredQuantity <= m.AvailableQuantity
}

// CheckCompatibilityWith compares other against m using the default tolerances.
func (m Mold) CheckCompatibilityWith(other Mold) bool {
	return m.CheckCompatibilityWithin(other, DefaultTemperatureTolerance, DefaultTimeTolerance)
}

// CheckCompatibilityWithin reports whether other's heating temperature and heating time
// lie within the given relative tolerances of m's. The receiver is the reference: its
// values are the divisors, so a.CheckCompatibilityWithin(b) may differ from the reverse.
func (m Mold) CheckCompatibilityWithin(other Mold, tempTolerance, timeTolerance float64) bool {
	tempDiff := relativeDiff(m.HeatingTemperature, other.HeatingTemperature)
	timeDiff := relativeDiff(m.HeatingTime, other.HeatingTime)
	return tempDiff <= tempTolerance+toleranceSlack && timeDiff <= timeTolerance+toleranceSlack
}

func (m Mold) ParameterRange() ProcessParameters {
	return ProcessParameters{
		HeatingTime:        m.HeatingTime,
		HeatingTemperature: m.HeatingTemperature,
		CoolingTime:        m.CoolingTime,
		MountingTime:       m.MountingTime,
	}
}

// relativeDiff returns |base-value| / base. A zero base yields 0 when value is also
// zero and +Inf otherwise.
func relativeDiff(base, value float64) float64 {
	delta := math.Abs(base - value)
	if base == 0 {
		if delta == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return delta / base
}

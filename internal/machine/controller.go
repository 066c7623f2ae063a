package machine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/KevinKickass/OpenRotoCore/internal/api/websocket"
	"github.com/KevinKickass/OpenRotoCore/internal/catalog"
	"github.com/KevinKickass/OpenRotoCore/internal/metrics"
	"github.com/KevinKickass/OpenRotoCore/internal/molding"
	"github.com/KevinKickass/OpenRotoCore/internal/storage"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var (
	ErrArmNotFound      = errors.New("arm not found")
	ErrNoFreeSpot       = errors.New("no free mounting spot")
	ErrMoldNotMounted   = errors.New("mold not mounted on arm")
	ErrSpiderNotMounted = errors.New("spider not mounted on arm")
	ErrInvalidPlan      = errors.New("invalid balancing request")
)

// MaxPlanWeights caps the counterweights a single balancing plan may propose.
const MaxPlanWeights = 1000

// CycleRecorder persists cycle attempts.
type CycleRecorder interface {
	RecordCycle(ctx context.Context, rec storage.CycleRecord) (*storage.CycleRecord, error)
}

type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

// HealthReporter is satisfied by *health.Server from google.golang.org/grpc/health.
type HealthReporter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// Options wires optional collaborators into a Controller. Nil fields are skipped.
type Options struct {
	Recorder CycleRecorder
	Hub      Broadcaster
	Metrics  *metrics.Metrics
	Health   HealthReporter
}

// Controller serializes all access to one RTXMachine and publishes its events.
type Controller struct {
	logger  *zap.Logger
	catalog *catalog.Catalog
	opts    Options

	mu              sync.RWMutex
	machine         *molding.RTXMachine
	baseQuota       int
	state           State
	reason          string
	lastCycleAt     *time.Time
	lastStateChange time.Time
}

func NewController(m *molding.RTXMachine, cat *catalog.Catalog, logger *zap.Logger, opts Options) *Controller {
	c := &Controller{
		logger:          logger.With(zap.String("machine_id", m.MachineID)),
		catalog:         cat,
		opts:            opts,
		machine:         m,
		baseQuota:       m.MaxDailyCycles,
		lastStateChange: time.Now(),
	}

	c.mu.Lock()
	c.refreshLocked()
	c.mu.Unlock()

	return c
}

// HealthService is the gRPC health service name reported for machineID.
func HealthService(machineID string) string {
	return "rtx." + machineID
}

func (c *Controller) MachineID() string {
	return c.machine.MachineID
}

func (c *Controller) Status() MachineStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m := c.machine
	status := MachineStatus{
		MachineID:            m.MachineID,
		State:                c.state,
		Reason:               c.reason,
		CurrentCycle:         m.CurrentCycle,
		DailyCyclesCompleted: m.DailyCyclesCompleted,
		MaxDailyCycles:       m.MaxDailyCycles,
		RemainingDailyCycles: m.RemainingDailyCycles(),
		Arms:                 make([]ArmStatus, 0, len(m.Arms)),
		LastCycleAt:          c.lastCycleAt,
		LastStateChange:      c.lastStateChange,
	}

	for _, arm := range m.Arms {
		spiders := arm.Spiders()
		spiderTypes := make([]string, len(spiders))
		for i, s := range spiders {
			spiderTypes[i] = s.SpiderType
		}
		status.Arms = append(status.Arms, ArmStatus{
			ArmID:          arm.ArmID,
			MountingSpots:  arm.MountingSpots,
			MoldIDs:        arm.MoldIDs(),
			SpiderTypes:    spiderTypes,
			UsedVolume:     arm.UsedVolume(),
			MaxVolume:      arm.MaxVolume,
			NetTorque:      arm.CalculateBalanceTorque(),
			Balanced:       arm.CheckBalanceConstraint(molding.DefaultBalanceTolerance),
			TorqueLeft:     arm.TorqueLeftSide,
			TorqueRight:    arm.TorqueRightSide,
			WeightCapacity: arm.WeightCapacity,
		})
	}
	return status
}

func (c *Controller) Validate() (bool, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.machine.ValidateArrangement()
}

func (c *Controller) Inspect() molding.ValidationReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.machine.InspectArrangement()
}

// ExecuteCycle runs one cycle and records the attempt whether or not it succeeded.
// Failing to record is logged and does not undo the cycle.
func (c *Controller) ExecuteCycle(ctx context.Context) CycleResult {
	c.mu.Lock()
	ok, msg := c.machine.ExecuteCycle()
	result := CycleResult{
		MachineID: c.machine.MachineID,
		Success:   ok,
		Message:   msg,
		MoldIDs:   c.mountedMoldIDsLocked(),
		Remaining: c.machine.RemainingDailyCycles(),
	}
	daily := c.machine.DailyCyclesCompleted
	if ok {
		result.CycleNumber = c.machine.CurrentCycle
		now := time.Now()
		c.lastCycleAt = &now
	}
	c.refreshLocked()
	c.mu.Unlock()

	if ok {
		c.logger.Info("Cycle completed",
			zap.Int("cycle", result.CycleNumber),
			zap.Int("remaining", result.Remaining))
	} else {
		c.logger.Warn("Cycle rejected", zap.String("reason", msg))
	}

	if c.opts.Metrics != nil {
		reason := ""
		if !ok {
			reason = metrics.ReasonArrangement
			if msg == molding.MsgDailyLimit {
				reason = metrics.ReasonDailyLimit
			}
		}
		c.opts.Metrics.ObserveCycle(result.MachineID, ok, reason, result.Remaining)
	}

	if c.opts.Recorder != nil {
		_, err := c.opts.Recorder.RecordCycle(ctx, storage.CycleRecord{
			MachineID:   result.MachineID,
			CycleNumber: result.CycleNumber,
			Success:     ok,
			Message:     msg,
			MoldIDs:     result.MoldIDs,
		})
		if err != nil {
			c.logger.Error("Failed to record cycle", zap.Error(err))
		}
	}

	c.broadcast(websocket.NewCycleMessage(result.MachineID, websocket.CycleData{
		CycleNumber:          result.CycleNumber,
		Success:              ok,
		Message:              msg,
		DailyCyclesCompleted: daily,
		RemainingDailyCycles: result.Remaining,
	}))

	return result
}

// ChangeArrangement charges setupTimeLoss cycles against the daily quota.
func (c *Controller) ChangeArrangement(setupTimeLoss int) string {
	c.mu.Lock()
	msg := c.machine.ChangeArrangement(setupTimeLoss)
	maxDaily := c.machine.MaxDailyCycles
	remaining := c.machine.RemainingDailyCycles()
	c.refreshLocked()
	c.mu.Unlock()

	c.logger.Info("Arrangement changed",
		zap.Int("setup_loss", setupTimeLoss),
		zap.Int("max_daily_cycles", maxDaily))

	if c.opts.Metrics != nil {
		c.opts.Metrics.ObserveArrangementChange(c.machine.MachineID, remaining)
	}
	c.broadcast(websocket.NewMachineMessage(websocket.MessageTypeArrangementChanged, c.machine.MachineID,
		websocket.ArrangementData{Action: "setup_loss", Message: msg, MaxDailyCycles: maxDaily}))

	return msg
}

// MountMold reserves one unit of moldID in the catalog and mounts it on armID.
func (c *Controller) MountMold(armID, moldID string) error {
	c.mu.Lock()
	arm, ok := c.machine.Arm(armID)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrArmNotFound, armID)
	}
	if arm.MountingSpots > 0 && len(arm.MoldIDs()) >= arm.MountingSpots {
		c.mu.Unlock()
		return fmt.Errorf("%w on arm %s", ErrNoFreeSpot, armID)
	}

	mold, err := c.catalog.Reserve(moldID, 1)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	arm.MountMold(mold)
	maxDaily := c.machine.MaxDailyCycles
	c.refreshLocked()
	c.mu.Unlock()

	c.logger.Info("Mold mounted", zap.String("arm_id", armID), zap.String("mold_id", moldID))
	c.broadcast(websocket.NewMachineMessage(websocket.MessageTypeArrangementChanged, c.machine.MachineID,
		websocket.ArrangementData{Action: "mount", ArmID: armID, MoldID: moldID,
			Message: fmt.Sprintf("Mold %s mounted on arm %s", moldID, armID), MaxDailyCycles: maxDaily}))
	return nil
}

// UnmountMold removes moldID from armID and releases its catalog reservation.
func (c *Controller) UnmountMold(armID, moldID string) error {
	c.mu.Lock()
	arm, ok := c.machine.Arm(armID)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrArmNotFound, armID)
	}
	if !arm.UnmountMold(moldID) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s on %s", ErrMoldNotMounted, moldID, armID)
	}
	releaseErr := c.catalog.Release(moldID, 1)
	maxDaily := c.machine.MaxDailyCycles
	c.refreshLocked()
	c.mu.Unlock()

	if releaseErr != nil {
		c.logger.Warn("Unmounted mold has no catalog reservation", zap.String("mold_id", moldID), zap.Error(releaseErr))
	}

	c.logger.Info("Mold unmounted", zap.String("arm_id", armID), zap.String("mold_id", moldID))
	c.broadcast(websocket.NewMachineMessage(websocket.MessageTypeArrangementChanged, c.machine.MachineID,
		websocket.ArrangementData{Action: "unmount", ArmID: armID, MoldID: moldID,
			Message: fmt.Sprintf("Mold %s unmounted from arm %s", moldID, armID), MaxDailyCycles: maxDaily}))
	return nil
}

func (c *Controller) MountSpider(armID string, spider molding.Spider) error {
	return c.withArm(armID, func(arm *molding.Arm) error {
		arm.MountSpider(spider)
		return nil
	})
}

func (c *Controller) UnmountSpider(armID, spiderType string) error {
	return c.withArm(armID, func(arm *molding.Arm) error {
		if !arm.UnmountSpider(spiderType) {
			return fmt.Errorf("%w: %s on %s", ErrSpiderNotMounted, spiderType, armID)
		}
		return nil
	})
}

// AddBalancingWeight hangs a counterweight on armID permanently.
func (c *Controller) AddBalancingWeight(armID string, weight float64, position molding.Position) error {
	err := c.withArm(armID, func(arm *molding.Arm) error {
		return arm.AddBalancingWeight(weight, position)
	})
	if err != nil {
		return err
	}

	c.logger.Info("Balancing weight added",
		zap.String("arm_id", armID),
		zap.Float64("weight", weight),
		zap.String("position", string(position)))
	c.broadcast(websocket.NewMachineMessage(websocket.MessageTypeArrangementChanged, c.machine.MachineID,
		websocket.ArrangementData{Action: "weight", ArmID: armID, Weight: weight,
			Message: fmt.Sprintf("Added %.3g on %s side of arm %s", weight, position, armID),
			MaxDailyCycles: c.Status().MaxDailyCycles}))
	return nil
}

// PlanBalancing proposes counterweights from options for armID's current imbalance.
// The weights go on the side opposite the heavy one and are not applied.
func (c *Controller) PlanBalancing(armID string, options []float64) (BalancingPlan, error) {
	c.mu.RLock()
	arm, ok := c.machine.Arm(armID)
	if !ok {
		c.mu.RUnlock()
		return BalancingPlan{}, fmt.Errorf("%w: %s", ErrArmNotFound, armID)
	}
	net := arm.CalculateBalanceTorque()
	c.mu.RUnlock()

	return PlanCounterweights(armID, net, options)
}

// PlanCounterweights is the planning step of PlanBalancing for a given net torque.
// Options must be positive and finite, and the plan may need at most MaxPlanWeights
// weights; anything else fails with ErrInvalidPlan.
func PlanCounterweights(armID string, net float64, options []float64) (BalancingPlan, error) {
	if math.IsNaN(net) || math.IsInf(net, 0) {
		return BalancingPlan{}, fmt.Errorf("%w: net torque %v", ErrInvalidPlan, net)
	}
	for _, w := range options {
		if !(w > 0) || math.IsInf(w, 0) {
			return BalancingPlan{}, fmt.Errorf("%w: weight option %v", ErrInvalidPlan, w)
		}
	}

	plan := BalancingPlan{
		ArmID:          armID,
		NetTorque:      net,
		Placements:     []molding.WeightPlacement{},
		ResidualTorque: net,
	}

	if net > 0 {
		plan.CounterSide = molding.PositionLeft
	} else if net < 0 {
		plan.CounterSide = molding.PositionRight
	}

	if plan.CounterSide != "" {
		bw := molding.NewBalancingWeight(options, plan.CounterSide)
		count := bw.MinimizeWeightCount(net)
		if count > MaxPlanWeights {
			return BalancingPlan{}, fmt.Errorf("%w: %d weights needed, at most %d allowed",
				ErrInvalidPlan, count, MaxPlanWeights)
		}
		positions := make([]molding.Position, count)
		for i := range positions {
			positions[i] = plan.CounterSide
		}
		plan.Placements = bw.CalculateOptimalWeights(net, positions)
		plan.WeightCount = len(plan.Placements)

		applied := 0.0
		for _, p := range plan.Placements {
			applied += p.Weight * molding.DefaultWeightDistance
		}
		plan.ResidualTorque = net - math.Copysign(applied, net)
	}

	plan.Balanced = math.Abs(plan.ResidualTorque) <= molding.DefaultBalanceTolerance
	return plan, nil
}

// ResetDaily starts a new production day: the completed count goes to zero and the
// quota returns to the machine's configured value.
func (c *Controller) ResetDaily() {
	c.mu.Lock()
	c.machine.DailyCyclesCompleted = 0
	c.machine.MaxDailyCycles = c.baseQuota
	maxDaily := c.baseQuota
	c.refreshLocked()
	c.mu.Unlock()

	c.logger.Info("Daily cycle counter reset", zap.Int("max_daily_cycles", maxDaily))
	c.broadcast(websocket.NewMachineMessage(websocket.MessageTypeDailyReset, c.machine.MachineID,
		websocket.DailyResetData{MaxDailyCycles: maxDaily}))
}

func (c *Controller) withArm(armID string, fn func(arm *molding.Arm) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	arm, ok := c.machine.Arm(armID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrArmNotFound, armID)
	}
	if err := fn(arm); err != nil {
		return err
	}
	c.refreshLocked()
	return nil
}

func (c *Controller) mountedMoldIDsLocked() []string {
	ids := make([]string, 0)
	for _, arm := range c.machine.Arms {
		ids = append(ids, arm.MoldIDs()...)
	}
	return ids
}

// refreshLocked recomputes state, gauges and health. Callers hold c.mu.
func (c *Controller) refreshLocked() {
	next := StateReady
	reason := ""
	if ok, msg := c.machine.ValidateArrangement(); !ok {
		next, reason = StateInvalidArrangement, msg
	} else if c.machine.RemainingDailyCycles() == 0 {
		next, reason = StateQuotaReached, molding.MsgDailyLimit
	}

	if c.opts.Metrics != nil {
		c.opts.Metrics.SetRemaining(c.machine.MachineID, c.machine.RemainingDailyCycles())
		for _, arm := range c.machine.Arms {
			c.opts.Metrics.SetArmTorque(c.machine.MachineID, arm.ArmID, arm.CalculateBalanceTorque())
		}
	}

	c.reason = reason
	if next == c.state {
		return
	}
	c.setStateLocked(next)
}

func (c *Controller) setStateLocked(state State) {
	previous := c.state
	c.state = state
	c.lastStateChange = time.Now()

	c.logger.Info("Machine state changed",
		zap.String("state", string(state)),
		zap.String("previous", string(previous)),
		zap.String("reason", c.reason))

	if c.opts.Health != nil {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if state == StateReady {
			status = healthpb.HealthCheckResponse_SERVING
		}
		c.opts.Health.SetServingStatus(HealthService(c.machine.MachineID), status)
	}

	if previous != "" {
		c.broadcast(websocket.NewMachineStateMessage(c.machine.MachineID, string(state), string(previous)))
	}
}

func (c *Controller) broadcast(msg websocket.Message) {
	if c.opts.Hub != nil {
		c.opts.Hub.Broadcast(msg)
	}
}

package machine

import (
	"context"
	"errors"
	"math"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/KevinKickass/OpenRotoCore/internal/api/websocket"
	"github.com/KevinKickass/OpenRotoCore/internal/catalog"
	"github.com/KevinKickass/OpenRotoCore/internal/metrics"
	"github.com/KevinKickass/OpenRotoCore/internal/molding"
	"github.com/KevinKickass/OpenRotoCore/internal/storage"
)

type fakeRecorder struct {
	mu      sync.Mutex
	records []storage.CycleRecord
	err     error
}

func (f *fakeRecorder) RecordCycle(_ context.Context, rec storage.CycleRecord) (*storage.CycleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return &rec, f.err
}

type fakeHub struct {
	mu       sync.Mutex
	messages []websocket.Message
}

func (f *fakeHub) Broadcast(msg websocket.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
}

func (f *fakeHub) types() []websocket.MessageType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]websocket.MessageType, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.Type
	}
	return out
}

type fakeHealth struct {
	status map[string]healthpb.HealthCheckResponse_ServingStatus
}

func (f *fakeHealth) SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus) {
	f.status[service] = status
}

func sampleMold(id string) molding.Mold {
	return molding.Mold{
		MoldID:             id,
		Volume:             1,
		Weight:             5,
		HeatingTime:        3,
		HeatingTemperature: 200,
		CoolingTime:        2,
		MountingTime:       1,
		DistanceFromCenter: 0.5,
		AvailableQuantity:  2,
		MoldType:           "TUB",
	}
}

var _ = Describe("Controller", func() {
	var (
		cat      *catalog.Catalog
		recorder *fakeRecorder
		hub      *fakeHub
		health   *fakeHealth
		m        *metrics.Metrics
		rtx      *molding.RTXMachine
		ctrl     *Controller
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		cat = catalog.New()
		cat.Put(sampleMold("M1"))
		cat.Put(sampleMold("M2"))

		recorder = &fakeRecorder{}
		hub = &fakeHub{}
		health = &fakeHealth{status: map[string]healthpb.HealthCheckResponse_ServingStatus{}}
		m = metrics.New()

		rtx = molding.NewRTXMachine("RTX-1", 1)
		// Left baseline offsets one mounted mold (5 kg at 0.5 m).
		rtx.AddArm(molding.NewArm("A1", 2, 10, 100, 2.5, 0))

		ctrl = NewController(rtx, cat, zap.NewNop(), Options{
			Recorder: recorder,
			Hub:      hub,
			Metrics:  m,
			Health:   health,
		})
	})

	Context("with an empty arm", func() {
		It("starts invalid because the baseline is left-heavy", func() {
			Expect(ctrl.Status().State).To(Equal(StateInvalidArrangement))
			Expect(ctrl.Status().Reason).To(Equal("Balance constraint violated on arm A1"))
			Expect(health.status[HealthService("RTX-1")]).To(Equal(healthpb.HealthCheckResponse_NOT_SERVING))
		})

		It("records rejected cycles", func() {
			res := ctrl.ExecuteCycle(ctx)
			Expect(res.Success).To(BeFalse())
			Expect(res.CycleNumber).To(Equal(0))
			Expect(recorder.records).To(HaveLen(1))
			Expect(recorder.records[0].Success).To(BeFalse())
			Expect(hub.types()).To(ContainElement(websocket.MessageTypeCycleRejected))
		})
	})

	Context("after mounting a mold", func() {
		BeforeEach(func() {
			Expect(ctrl.MountMold("A1", "M1")).To(Succeed())
		})

		It("becomes ready and reserves stock", func() {
			status := ctrl.Status()
			Expect(status.State).To(Equal(StateReady))
			Expect(status.Arms[0].MoldIDs).To(Equal([]string{"M1"}))
			Expect(status.Arms[0].Balanced).To(BeTrue())

			mold, ok := cat.Get("M1")
			Expect(ok).To(BeTrue())
			Expect(mold.AvailableQuantity).To(Equal(1))
			Expect(health.status[HealthService("RTX-1")]).To(Equal(healthpb.HealthCheckResponse_SERVING))
		})

		It("runs cycles until the daily quota is used", func() {
			for i := 1; i <= molding.DefaultMaxDailyCycles; i++ {
				res := ctrl.ExecuteCycle(ctx)
				Expect(res.Success).To(BeTrue(), res.Message)
				Expect(res.CycleNumber).To(Equal(i))
				Expect(res.MoldIDs).To(Equal([]string{"M1"}))
			}

			res := ctrl.ExecuteCycle(ctx)
			Expect(res.Success).To(BeFalse())
			Expect(res.Message).To(Equal(molding.MsgDailyLimit))
			Expect(res.CycleNumber).To(BeZero(), "a rejected cycle has no number")
			Expect(recorder.records[molding.DefaultMaxDailyCycles].CycleNumber).To(BeZero())
			Expect(ctrl.Status().CurrentCycle).To(Equal(molding.DefaultMaxDailyCycles))
			Expect(ctrl.Status().State).To(Equal(StateQuotaReached))
			Expect(recorder.records).To(HaveLen(molding.DefaultMaxDailyCycles + 1))
		})

		It("keeps the cycle when recording fails", func() {
			recorder.err = errors.New("db down")
			res := ctrl.ExecuteCycle(ctx)
			Expect(res.Success).To(BeTrue())
			Expect(ctrl.Status().CurrentCycle).To(Equal(1))
		})

		It("restores the configured quota on daily reset", func() {
			ctrl.ChangeArrangement(3)
			Expect(ctrl.Status().MaxDailyCycles).To(Equal(4))
			for i := 0; i < 4; i++ {
				Expect(ctrl.ExecuteCycle(ctx).Success).To(BeTrue())
			}
			Expect(ctrl.Status().State).To(Equal(StateQuotaReached))

			ctrl.ResetDaily()
			status := ctrl.Status()
			Expect(status.DailyCyclesCompleted).To(Equal(0))
			Expect(status.MaxDailyCycles).To(Equal(molding.DefaultMaxDailyCycles))
			Expect(status.CurrentCycle).To(Equal(4))
			Expect(status.State).To(Equal(StateReady))
			Expect(hub.types()).To(ContainElement(websocket.MessageTypeDailyReset))
		})

		It("returns stock when the mold is unmounted", func() {
			Expect(ctrl.UnmountMold("A1", "M1")).To(Succeed())
			mold, _ := cat.Get("M1")
			Expect(mold.AvailableQuantity).To(Equal(2))
			Expect(ctrl.Status().State).To(Equal(StateInvalidArrangement))
		})

		It("refuses to unmount a mold that is not there", func() {
			err := ctrl.UnmountMold("A1", "M2")
			Expect(errors.Is(err, ErrMoldNotMounted)).To(BeTrue())
		})
	})

	Context("mount failures", func() {
		It("rejects unknown arms", func() {
			err := ctrl.MountMold("A9", "M1")
			Expect(errors.Is(err, ErrArmNotFound)).To(BeTrue())
		})

		It("rejects mounts beyond the arm's spots", func() {
			Expect(ctrl.MountMold("A1", "M2")).To(Succeed())
			Expect(ctrl.MountMold("A1", "M2")).To(Succeed())

			err := ctrl.MountMold("A1", "M1")
			Expect(errors.Is(err, ErrNoFreeSpot)).To(BeTrue())

			mold, _ := cat.Get("M1")
			Expect(mold.AvailableQuantity).To(Equal(2), "a refused mount reserves nothing")
		})

		It("rejects molds missing from the catalog", func() {
			err := ctrl.MountMold("A1", "NOPE")
			Expect(errors.Is(err, catalog.ErrMoldNotFound)).To(BeTrue())
		})

		It("rejects reservations beyond stock", func() {
			cat.Put(molding.Mold{MoldID: "EMPTY", AvailableQuantity: 0})
			err := ctrl.MountMold("A1", "EMPTY")
			Expect(errors.Is(err, catalog.ErrInsufficientQuantity)).To(BeTrue())
		})
	})

	Context("balancing", func() {
		It("plans counterweights on the light side", func() {
			plan, err := ctrl.PlanBalancing("A1", []float64{1, 0.5, 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.NetTorque).To(BeNumerically("~", -2.5, 1e-9))
			Expect(plan.CounterSide).To(Equal(molding.PositionRight))
			Expect(plan.Placements).To(Equal([]molding.WeightPlacement{
				{Weight: 2, Position: molding.PositionRight},
				{Weight: 0.5, Position: molding.PositionRight},
			}))
			Expect(plan.Balanced).To(BeTrue())
		})

		It("applies a weight permanently", func() {
			Expect(ctrl.AddBalancingWeight("A1", 2.5, molding.PositionRight)).To(Succeed())
			Expect(ctrl.Status().State).To(Equal(StateReady))
			Expect(ctrl.Status().Arms[0].TorqueRight).To(Equal(2.5))
		})

		It("rejects unknown positions", func() {
			err := ctrl.AddBalancingWeight("A1", 1, molding.Position("top"))
			Expect(errors.Is(err, molding.ErrInvalidPosition)).To(BeTrue())
		})

		It("reports an already balanced arm", func() {
			plan, err := PlanCounterweights("A1", 0.05, []float64{1})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.CounterSide).To(Equal(molding.PositionLeft))
			Expect(plan.Placements).To(BeEmpty())
			Expect(plan.Balanced).To(BeTrue())
		})

		It("refuses plans that need too many weights", func() {
			_, err := PlanCounterweights("A1", 1e10, []float64{1e-9})
			Expect(errors.Is(err, ErrInvalidPlan)).To(BeTrue())

			_, err = ctrl.PlanBalancing("A1", []float64{1e-9})
			Expect(errors.Is(err, ErrInvalidPlan)).To(BeTrue())

			plan, err := PlanCounterweights("A1", MaxPlanWeights, []float64{1})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.WeightCount).To(Equal(MaxPlanWeights))
		})

		It("refuses non-positive or non-finite input", func() {
			for _, opts := range [][]float64{{0}, {-1}, {math.Inf(1)}, {math.NaN()}} {
				_, err := PlanCounterweights("A1", 3, opts)
				Expect(errors.Is(err, ErrInvalidPlan)).To(BeTrue(), "options %v", opts)
			}
			_, err := PlanCounterweights("A1", math.Inf(-1), []float64{1})
			Expect(errors.Is(err, ErrInvalidPlan)).To(BeTrue())
		})
	})

	Context("spiders", func() {
		It("mounts and removes spiders", func() {
			spider := molding.Spider{SpiderType: "4-way", AttachmentSites: 8, Volume: 20, Weight: 10}
			Expect(ctrl.MountSpider("A1", spider)).To(Succeed())
			Expect(ctrl.Status().Arms[0].SpiderTypes).To(Equal([]string{"4-way"}))
			Expect(ctrl.Inspect().Valid).To(BeFalse())

			Expect(ctrl.UnmountSpider("A1", "4-way")).To(Succeed())
			Expect(ctrl.UnmountSpider("A1", "4-way")).NotTo(Succeed())
		})
	})
})

var _ = Describe("Registry", func() {
	It("lists machines by id and resets them together", func() {
		reg := NewRegistry()
		for _, id := range []string{"RTX-2", "RTX-1"} {
			rtx := molding.NewRTXMachine(id, 1)
			rtx.DailyCyclesCompleted = 3
			Expect(reg.Add(NewController(rtx, catalog.New(), zap.NewNop(), Options{}))).To(Succeed())
		}

		dup := NewController(molding.NewRTXMachine("RTX-1", 1), catalog.New(), zap.NewNop(), Options{})
		Expect(reg.Add(dup)).NotTo(Succeed())

		list := reg.List()
		Expect(list).To(HaveLen(2))
		Expect(list[0].MachineID()).To(Equal("RTX-1"))

		reg.ResetAllDaily()
		for _, c := range list {
			Expect(c.Status().DailyCyclesCompleted).To(BeZero())
		}

		_, ok := reg.Get("RTX-3")
		Expect(ok).To(BeFalse())
	})
})

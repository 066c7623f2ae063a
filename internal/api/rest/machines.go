package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenRotoCore/internal/machine"
	"github.com/KevinKickass/OpenRotoCore/internal/molding"
	"github.com/KevinKickass/OpenRotoCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ExecuteCycleRequest struct {
	OrderID string `json:"order_id"`
}

type ChangeArrangementRequest struct {
	SetupTimeLoss int `json:"setup_time_loss"`
}

type MountMoldRequest struct {
	MoldID string `json:"mold_id" binding:"required"`
}

// MountSpiderRequest names a spider profile or describes the spider inline.
type MountSpiderRequest struct {
	Profile            string  `json:"profile"`
	SpiderType         string  `json:"spider_type"`
	AttachmentSites    int     `json:"attachment_sites"`
	Volume             float64 `json:"volume"`
	Weight             float64 `json:"weight"`
	AttachmentDistance float64 `json:"attachment_distance"`
}

type AddWeightRequest struct {
	Weight   float64 `json:"weight" binding:"required,gt=0"`
	Position string  `json:"position" binding:"required"`
}

// GET /api/v1/machines
func (s *Server) listMachines(c *gin.Context) {
	controllers := s.lm.Machines().List()
	statuses := make([]machine.MachineStatus, len(controllers))
	for i, ctrl := range controllers {
		statuses[i] = ctrl.Status()
	}
	c.JSON(http.StatusOK, gin.H{
		"machines": statuses,
		"count":    len(statuses),
	})
}

// GET /api/v1/machines/:id
func (s *Server) getMachine(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ctrl.Status())
}

// GET /api/v1/machines/:id/validate
func (s *Server) validateMachine(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}
	valid, msg := ctrl.Validate()
	c.JSON(http.StatusOK, gin.H{
		"valid":   valid,
		"message": msg,
	})
}

// GET /api/v1/machines/:id/inspect
func (s *Server) inspectMachine(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ctrl.Inspect())
}

// POST /api/v1/machines/:id/cycles
// A rejected cycle answers 409 with the cycle result as details.
func (s *Server) executeCycle(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}

	var req ExecuteCycleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body", err)
			return
		}
	}

	result := ctrl.ExecuteCycle(c.Request.Context())
	if !result.Success {
		c.JSON(http.StatusConflict, types.NewErrorResponse(types.CodeMachineRejected, result.Message, result))
		return
	}

	resp := gin.H{"cycle": result}
	if req.OrderID != "" {
		progress, err := s.lm.Orders().CreditCycle(c.Request.Context(), req.OrderID, result.MoldIDs)
		if err != nil {
			s.logger.Warn("Failed to credit order",
				zap.String("order_id", req.OrderID),
				zap.Error(err))
			resp["order_error"] = err.Error()
		} else {
			resp["order"] = progress
		}
	}

	c.JSON(http.StatusOK, resp)
}

// GET /api/v1/machines/:id/cycles?limit=50
func (s *Server) listCycles(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "Invalid limit", err)
			return
		}
		limit = n
	}

	cycles, err := s.lm.CycleHistory(c.Request.Context(), ctrl.MachineID(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cycles": cycles,
		"count":  len(cycles),
	})
}

// POST /api/v1/machines/:id/arrangement
func (s *Server) changeArrangement(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}

	var req ChangeArrangementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	msg := ctrl.ChangeArrangement(req.SetupTimeLoss)
	c.JSON(http.StatusOK, gin.H{
		"message": msg,
		"machine": ctrl.Status(),
	})
}

// POST /api/v1/machines/:id/arms/:arm/molds
func (s *Server) mountMold(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}

	var req MountMoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if err := ctrl.MountMold(c.Param("arm"), req.MoldID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Status())
}

// DELETE /api/v1/machines/:id/arms/:arm/molds/:mold
func (s *Server) unmountMold(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}

	if err := ctrl.UnmountMold(c.Param("arm"), c.Param("mold")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Status())
}

// POST /api/v1/machines/:id/arms/:arm/spiders
func (s *Server) mountSpider(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}

	var req MountSpiderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	var spider molding.Spider
	switch {
	case req.Profile != "":
		profile, err := s.lm.SpiderProfile(req.Profile)
		if err != nil {
			c.JSON(http.StatusNotFound, types.NewErrorResponse("SPIDER_404", "Spider profile not found", err.Error()))
			return
		}
		spider = profile.Spider()
	case req.SpiderType != "":
		spider = molding.Spider{
			SpiderType:         req.SpiderType,
			AttachmentSites:    req.AttachmentSites,
			Volume:             req.Volume,
			Weight:             req.Weight,
			AttachmentDistance: req.AttachmentDistance,
		}
	default:
		badRequest(c, "Either profile or spider_type is required", nil)
		return
	}

	if err := ctrl.MountSpider(c.Param("arm"), spider); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Status())
}

// DELETE /api/v1/machines/:id/arms/:arm/spiders/:type
func (s *Server) unmountSpider(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}

	if err := ctrl.UnmountSpider(c.Param("arm"), c.Param("type")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Status())
}

// POST /api/v1/machines/:id/arms/:arm/weights
func (s *Server) addBalancingWeight(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}

	var req AddWeightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	pos, err := molding.ParsePosition(req.Position)
	if err != nil {
		badRequest(c, "Invalid position", err)
		return
	}

	if err := ctrl.AddBalancingWeight(c.Param("arm"), req.Weight, pos); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Status())
}

// GET /api/v1/machines/:id/arms/:arm/balancing?options=1,2,5
func (s *Server) planArmBalancing(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}

	options, err := parseOptions(c.QueryArray("options"))
	if err != nil {
		badRequest(c, "Invalid weight options", err)
		return
	}

	plan, err := ctrl.PlanBalancing(c.Param("arm"), options)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// POST /api/v1/machines/:id/reset-daily
func (s *Server) resetDaily(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}
	ctrl.ResetDaily()
	c.JSON(http.StatusOK, ctrl.Status())
}

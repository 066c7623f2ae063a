package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type CreateOrderRequest struct {
	OrderID          string         `json:"order_id" binding:"required"`
	MoldRequirements map[string]int `json:"mold_requirements" binding:"required"`
	Deadline         *time.Time     `json:"deadline"`
}

type RecordProgressRequest struct {
	MoldID   string `json:"mold_id" binding:"required"`
	Quantity int    `json:"quantity"`
}

// POST /api/v1/orders
func (s *Server) createOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	var deadline time.Time
	if req.Deadline != nil {
		deadline = *req.Deadline
	}

	progress, err := s.lm.Orders().Create(c.Request.Context(), req.OrderID, req.MoldRequirements, deadline)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, progress)
}

// GET /api/v1/orders
func (s *Server) listOrders(c *gin.Context) {
	list := s.lm.Orders().List()
	c.JSON(http.StatusOK, gin.H{
		"orders": list,
		"count":  len(list),
	})
}

// GET /api/v1/orders/:id
func (s *Server) getOrder(c *gin.Context) {
	progress, err := s.lm.Orders().Get(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// POST /api/v1/orders/:id/progress
func (s *Server) recordOrderProgress(c *gin.Context) {
	var req RecordProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	progress, err := s.lm.Orders().RecordProduction(c.Request.Context(), c.Param("id"), req.MoldID, req.Quantity)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// GET /api/v1/orders/:id/completion
func (s *Server) checkOrderCompletion(c *gin.Context) {
	complete, err := s.lm.Orders().CheckCompletion(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id":    c.Param("id"),
		"is_complete": complete,
	})
}

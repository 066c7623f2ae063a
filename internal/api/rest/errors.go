package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/OpenRotoCore/internal/catalog"
	"github.com/KevinKickass/OpenRotoCore/internal/machine"
	"github.com/KevinKickass/OpenRotoCore/internal/molding"
	"github.com/KevinKickass/OpenRotoCore/internal/orders"
	"github.com/KevinKickass/OpenRotoCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps domain errors to status codes and error codes. Anything unrecognized
// is logged and reported as a 500.
func (s *Server) writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, types.CodeInternal

	switch {
	case errors.Is(err, catalog.ErrMoldNotFound):
		status, code = http.StatusNotFound, types.CodeMoldNotFound
	case errors.Is(err, catalog.ErrInsufficientQuantity):
		status, code = http.StatusConflict, types.CodeMoldUnavailable
	case errors.Is(err, machine.ErrArmNotFound):
		status, code = http.StatusNotFound, types.CodeArmNotFound
	case errors.Is(err, machine.ErrNoFreeSpot), errors.Is(err, machine.ErrMoldNotMounted),
		errors.Is(err, machine.ErrSpiderNotMounted):
		status, code = http.StatusConflict, types.CodeMachineRejected
	case errors.Is(err, molding.ErrInvalidPosition), errors.Is(err, machine.ErrInvalidPlan):
		status, code = http.StatusBadRequest, types.CodeBadRequest
	case errors.Is(err, orders.ErrOrderNotFound):
		status, code = http.StatusNotFound, types.CodeOrderNotFound
	case errors.Is(err, orders.ErrInvalidOrder):
		status, code = http.StatusBadRequest, types.CodeOrderInvalid
	case errors.Is(err, orders.ErrOrderExists):
		status, code = http.StatusConflict, types.CodeOrderInvalid
	default:
		s.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, types.NewErrorResponse(code, "Internal error", nil))
		return
	}

	c.JSON(status, types.NewErrorResponse(code, err.Error(), nil))
}

func badRequest(c *gin.Context, message string, err error) {
	var details any
	if err != nil {
		details = err.Error()
	}
	c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, message, details))
}

// controller resolves the :id machine or writes a 404.
func (s *Server) controller(c *gin.Context) (*machine.Controller, bool) {
	id := c.Param("id")
	ctrl, ok := s.lm.Machines().Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeMachineNotFound, "Machine not found",
			map[string]string{"machine_id": id}))
		return nil, false
	}
	return ctrl, true
}

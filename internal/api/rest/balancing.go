package rest

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenRotoCore/internal/machine"
	"github.com/gin-gonic/gin"
)

// DefaultWeightOptions are the counterweights offered when a request names none.
var DefaultWeightOptions = []float64{10, 5, 2, 1, 0.5}

type BalancingPlanRequest struct {
	NetTorque float64   `json:"net_torque"`
	Options   []float64 `json:"options"`
}

// POST /api/v1/balancing/plan
func (s *Server) planBalancing(c *gin.Context) {
	var req BalancingPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	options := req.Options
	if len(options) == 0 {
		options = DefaultWeightOptions
	}
	plan, err := machine.PlanCounterweights("", req.NetTorque, options)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// parseOptions accepts repeated and comma-separated values.
func parseOptions(raw []string) ([]float64, error) {
	var out []float64
	for _, chunk := range raw {
		for _, field := range strings.Split(chunk, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, err
			}
			if !(v > 0) || math.IsInf(v, 0) {
				return nil, errors.New("weight options must be positive and finite")
			}
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return DefaultWeightOptions, nil
	}
	return out, nil
}

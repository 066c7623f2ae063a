package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenRotoCore/internal/molding"
	"github.com/KevinKickass/OpenRotoCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /api/v1/molds?type=TUB
func (s *Server) listMolds(c *gin.Context) {
	var molds []molding.Mold
	if moldType := c.Query("type"); moldType != "" {
		molds = s.lm.Catalog().ByType(moldType)
	} else {
		molds = s.lm.Catalog().All()
	}

	c.JSON(http.StatusOK, gin.H{
		"molds": molds,
		"count": len(molds),
	})
}

// GET /api/v1/molds/:id
func (s *Server) getMold(c *gin.Context) {
	mold, ok := s.lm.Catalog().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeMoldNotFound, "Mold not found",
			map[string]string{"mold_id": c.Param("id")}))
		return
	}
	c.JSON(http.StatusOK, mold)
}

// GET /api/v1/molds/:id/compatible?tolerance=0.02
func (s *Server) compatibleMolds(c *gin.Context) {
	ref, ok := s.lm.Catalog().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeMoldNotFound, "Mold not found",
			map[string]string{"mold_id": c.Param("id")}))
		return
	}

	tolerance := s.lm.Config().Scheduling.CompatibilityTolerance
	if raw := c.Query("tolerance"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil || t < 0 {
			badRequest(c, "Invalid tolerance", err)
			return
		}
		tolerance = t
	}

	matches := s.lm.Catalog().Compatible(ref, tolerance)
	c.JSON(http.StatusOK, gin.H{
		"reference": ref.MoldID,
		"tolerance": tolerance,
		"molds":     matches,
		"count":     len(matches),
	})
}

// POST /api/v1/molds/import
// Accepts a multipart "file" field or a raw text/csv body.
func (s *Server) importMolds(c *gin.Context) {
	body := c.Request.Body
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			badRequest(c, "Failed to open upload", err)
			return
		}
		defer f.Close()
		body = f
	}

	imported, rowErrs, err := s.lm.ImportMolds(c.Request.Context(), body)
	if err != nil {
		s.logger.Warn("Mold import failed", zap.Error(err))
		badRequest(c, "Failed to import mold sheet", err)
		return
	}

	skipped := make([]gin.H, len(rowErrs))
	for i, re := range rowErrs {
		skipped[i] = gin.H{"line": re.Line, "error": re.Err.Error()}
	}

	c.JSON(http.StatusOK, gin.H{
		"imported": imported,
		"skipped":  skipped,
		"total":    s.lm.Catalog().Len(),
	})
}

// GET /api/v1/spiders/:ref
func (s *Server) getSpiderProfile(c *gin.Context) {
	profile, err := s.lm.SpiderProfile(c.Param("ref"))
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("SPIDER_404", "Spider profile not found", err.Error()))
		return
	}
	c.JSON(http.StatusOK, profile)
}

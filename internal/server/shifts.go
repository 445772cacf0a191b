package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	shiftdomain "github.com/smallbiznis/ordersync/internal/shift/domain"
)

type openShiftRequest struct {
	CashierID    string          `json:"cashier_id" binding:"required"`
	OpeningFloat decimal.Decimal `json:"opening_float"`
}

type closeShiftRequest struct {
	ClosingCash decimal.Decimal `json:"closing_cash"`
}

func (s *Server) OpenShift(c *gin.Context) {
	if s.shifts == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var req openShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	shift, err := s.shifts.Open(c.Request.Context(), posIDFrom(c), req.CashierID, req.OpeningFloat)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": shift})
}

func (s *Server) GetCurrentShift(c *gin.Context) {
	if s.shifts == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	shift, ok := s.shifts.Current(posIDFrom(c))
	if !ok {
		AbortWithError(c, shiftdomain.ErrShiftNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": shift})
}

func (s *Server) CloseShift(c *gin.Context) {
	if s.shifts == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	var req closeShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	shift, err := s.shifts.Close(c.Request.Context(), id, req.ClosingCash)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": shift})
}

func (s *Server) GetShiftSummary(c *gin.Context) {
	if s.shifts == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	summary, err := s.shifts.Summarize(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

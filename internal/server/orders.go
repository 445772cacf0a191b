package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ordersync/internal/order/domain"
	"github.com/smallbiznis/ordersync/pkg/db/pagination"
)

type listOrdersResponse struct {
	Data     []domain.Order      `json:"data"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type capturePaymentRequest struct {
	MethodID  string          `json:"method_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

type finalizeRequest struct {
	Stage string `json:"stage" binding:"required"`
}

func (s *Server) ListOrders(c *gin.Context) {
	if s.orders == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	updatedSince, err := parseOptionalTime(c.Query("updated_since"))
	if err != nil {
		AbortWithError(c, newValidationError("updated_since", "invalid_time", "invalid time"))
		return
	}

	filter := domain.ListFilter{
		PosID:        strings.TrimSpace(c.Query("pos_id")),
		ShiftID:      strings.TrimSpace(c.Query("shift_id")),
		Statuses:     parseStatuses(c.Query("status")),
		UpdatedSince: updatedSince,
		PageToken:    page.PageToken,
		Limit:        page.Size(),
	}
	if filter.PosID == "" {
		filter.PosID = posIDFrom(c)
	}

	orders, info, err := s.orders.ListPage(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, listOrdersResponse{Data: orders, PageInfo: info})
}

func (s *Server) GetOrderByID(c *gin.Context) {
	if s.orders == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if order == nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) GetCurrentOrder(c *gin.Context) {
	if s.coordinator == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	order, ok := s.coordinator.Current()
	if !ok {
		AbortWithError(c, domain.ErrNoCurrentOrder)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":    order,
		"state":   domain.StateName(order.State),
		"version": order.Version(),
		"pending": s.coordinator.PendingFinalize(),
	})
}

func (s *Server) SaveCurrentOrder(c *gin.Context) {
	if s.coordinator == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	order, err := s.coordinator.Save(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order, "version": order.Version()})
}

func (s *Server) CapturePayment(c *gin.Context) {
	if s.coordinator == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var req capturePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.coordinator.CapturePayment(c.Request.Context(), domain.Payment{
		MethodID:  strings.TrimSpace(req.MethodID),
		Amount:    req.Amount,
		Reference: strings.TrimSpace(req.Reference),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) FinalizeCurrentOrder(c *gin.Context) {
	if s.coordinator == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var req finalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.coordinator.Finalize(c.Request.Context(), domain.Stage(strings.ToLower(strings.TrimSpace(req.Stage))))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order, "version": order.Version()})
}

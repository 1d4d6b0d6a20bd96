package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"options-dashboard/internal/errors"
	"options-dashboard/internal/models"
)

func (s *Server) register(r gin.IRouter) {
	r.GET("/option-chain/:symbol", s.handleOptionChain)
	r.GET("/db-positions/:user_id", s.handlePositions)
	r.POST("/place-order", s.handlePlaceOrder)
	r.POST("/square-off-trade/:trade_id", s.handleSquareOff)
	r.POST("/exit-all-positions/:user_id", s.handleExitAll)
	r.POST("/exit-selected-positions", s.handleExitSelected)
}

func (s *Server) handleOptionChain(c *gin.Context) {
	u, err := models.ParseUnderlying(strings.ToUpper(c.Param("symbol")))
	if err != nil {
		s.fail(c, errors.NewValidationError("symbol", c.Param("symbol"), err.Error()))
		return
	}
	chain, err := s.desk.OptionChain(c.Request.Context(), u)
	if errors.Is(err, errors.ErrNoChainData) {
		c.JSON(http.StatusOK, models.OptionChain{Data: []models.ChainRow{}, Error: "No options found for " + string(u)})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chain)
}

func (s *Server) handlePositions(c *gin.Context) {
	data, err := s.desk.Positions(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.PositionsResponse{Status: models.StatusSuccess, Data: *data})
}

func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req models.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.NewValidationError("body", nil, err.Error()))
		return
	}
	resp, err := s.desk.PlaceOrder(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSquareOff(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("trade_id"), 10, 64)
	if err != nil {
		s.fail(c, errors.NewValidationError("trade_id", c.Param("trade_id"), "must be an integer"))
		return
	}
	resp, err := s.desk.SquareOff(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleExitAll(c *gin.Context) {
	report, err := s.desk.ExitAll(c.Request.Context(), c.Param("user_id"))
	s.exitReply(c, report, err, "All positions exited")
}

func (s *Server) handleExitSelected(c *gin.Context) {
	var req models.ExitSelectedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.NewValidationError("body", nil, err.Error()))
		return
	}
	ids := make([]int64, 0, len(req.TradeIDs))
	for _, raw := range req.TradeIDs {
		id, err := raw.Int()
		if err != nil {
			s.fail(c, errors.NewValidationError("trade_ids", raw, "must be integers"))
			return
		}
		ids = append(ids, id)
	}
	report, err := s.desk.ExitSelected(c.Request.Context(), req.UserID, ids)
	s.exitReply(c, report, err, "Selected positions exited")
}

func (s *Server) exitReply(c *gin.Context, report ExitReport, err error, message string) {
	if err != nil {
		s.fail(c, err)
		return
	}
	if report.Failed > 0 {
		c.JSON(http.StatusInternalServerError, gin.H{
			"detail": report.Err.Error(),
			"closed": report.Closed,
			"failed": report.Failed,
		})
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{
		Status:  models.StatusSuccess,
		Message: message,
		Closed:  report.Closed,
	})
}

// fail writes err as a {"detail": ...} body with a matching status.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrTradeNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrTradeClosed),
		errors.Is(err, errors.ErrInputValidation),
		errors.Is(err, errors.ErrInvalidOrder),
		errors.Is(err, errors.ErrUnknownUnderlying),
		errors.Is(err, errors.ErrUnparseableSymbol):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Package ingress is the HTTP surface for signal submission and trade
// inspection. It parses requests into the structured Signal shape and
// forwards them to the orchestrator; no trading decisions live here.
package ingress

import (
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"multisig-trader/internal/domain"
	"multisig-trader/internal/orchestrator"
)

// Server wires the router and the orchestrator handle.
type Server struct {
	R      *gin.Engine
	Orch   *orchestrator.Orchestrator
	Logger *zap.SugaredLogger
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// signalRequest is the submission payload. SignalID is optional; the
// ingress mints one when absent, and the caller must reuse it on
// retransmission for idempotent redelivery.
type signalRequest struct {
	SignalID      string `json:"signalId"`
	CallerID      string `json:"callerId" binding:"required"`
	WalletAddress string `json:"walletAddress" binding:"required"`
	Side          string `json:"side" binding:"required"`
	Symbol        string `json:"symbol" binding:"required"`
	EntryPrice    string `json:"entryPrice" binding:"required"`
	TP1           string `json:"tp1" binding:"required"`
	TP2           string `json:"tp2" binding:"required"`
	StopLoss      string `json:"stopLoss" binding:"required"`
	Deadline      int64  `json:"deadline" binding:"required"` // unix ms
}

type submitResponse struct {
	SignalID string `json:"signalId"`
	TradeID  string `json:"tradeId,omitempty"`
	Accepted bool   `json:"accepted"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// NewServer wires the router, handlers, and middleware.
func NewServer(orch *orchestrator.Orchestrator, logger *zap.SugaredLogger) *Server {
	g := gin.New()

	// Request logging
	g.Use(func(cn *gin.Context) {
		start := time.Now()
		cn.Next()
		logger.Infow("http_request",
			"method", cn.Request.Method,
			"path", cn.Request.URL.Path,
			"status", cn.Writer.Status(),
			"latency", time.Since(start),
		)
	})

	g.Use(gin.Recovery())

	s := &Server{R: g, Orch: orch, Logger: logger}

	g.GET("/health", func(cn *gin.Context) { cn.JSON(http.StatusOK, gin.H{"ok": true}) })
	g.POST("/signals", s.submitSignal)
	g.GET("/trades", s.listTrades)
	g.GET("/trades/:id", s.getTrade)

	return s
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, apiError{Code: "bad_request", Message: msg})
}

// submitSignal parses the payload and forwards it to the orchestrator.
func (s *Server) submitSignal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "malformed signal payload: "+err.Error())
		return
	}

	prices := make([]decimal.Decimal, 4)
	for i, raw := range []string{req.EntryPrice, req.TP1, req.TP2, req.StopLoss} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			s.badRequest(c, "price levels must be decimal strings")
			return
		}
		prices[i] = d
	}

	if !common.IsHexAddress(req.WalletAddress) {
		s.badRequest(c, "walletAddress must be a hex address")
		return
	}

	signalID := req.SignalID
	if signalID == "" {
		signalID = uuid.NewString()
	}

	sig := &domain.Signal{
		SignalID:      signalID,
		CallerID:      req.CallerID,
		WalletAddress: common.HexToAddress(req.WalletAddress),
		Side:          domain.Side(req.Side),
		Symbol:        req.Symbol,
		EntryPrice:    prices[0],
		TP1:           prices[1],
		TP2:           prices[2],
		StopLoss:      prices[3],
		Deadline:      time.UnixMilli(req.Deadline),
	}

	result := s.Orch.SubmitSignal(c.Request.Context(), sig)

	status := http.StatusOK
	if !result.Accepted {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, submitResponse{
		SignalID: result.SignalID,
		TradeID:  result.TradeID,
		Accepted: result.Accepted,
		Code:     result.Code,
		Message:  result.Message,
	})
}

// tradeView is the read-only JSON projection of a trade.
type tradeView struct {
	TradeID     string     `json:"tradeId"`
	SignalID    string     `json:"signalId"`
	CallerID    string     `json:"callerId"`
	Wallet      string     `json:"wallet"`
	Network     string     `json:"network"`
	Side        string     `json:"side"`
	Symbol      string     `json:"symbol"`
	State       string     `json:"state"`
	EntryTxHash string     `json:"entryTxHash,omitempty"`
	FilledRaw   string     `json:"filledRaw,omitempty"`
	ExitedPct   int        `json:"exitedPercent"`
	FailureCode string     `json:"failureCode,omitempty"`
	Exits       []exitView `json:"exits,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type exitView struct {
	Kind      string    `json:"kind"`
	Price     string    `json:"price"`
	AmountRaw string    `json:"amountRaw"`
	Pct       int       `json:"percentageOfPosition"`
	TxHash    string    `json:"txHash,omitempty"`
	At        time.Time `json:"at"`
}

func toView(t *domain.Trade) tradeView {
	symbol := t.BuyBinding.Symbol
	if t.Side == domain.SideSell {
		symbol = t.SellBinding.Symbol
	}
	v := tradeView{
		TradeID:     t.TradeID,
		SignalID:    t.SignalID,
		CallerID:    t.CallerID,
		Wallet:      t.WalletAddress.Hex(),
		Network:     string(t.NetworkKey),
		Side:        string(t.Side),
		Symbol:      symbol,
		State:       string(t.State),
		ExitedPct:   t.ExitedPercent(),
		FailureCode: t.FailureCode,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.EntryTxHash != (common.Hash{}) {
		v.EntryTxHash = t.EntryTxHash.Hex()
	}
	if t.EntryFilledRaw != nil {
		v.FilledRaw = t.EntryFilledRaw.String()
	}
	for _, e := range t.ExitEvents {
		ev := exitView{
			Kind:  string(e.Kind),
			Price: e.Price.String(),
			Pct:   e.PercentageOfPosition,
			At:    e.At,
		}
		if e.AmountRaw != nil {
			ev.AmountRaw = e.AmountRaw.String()
		}
		if e.TxHash != (common.Hash{}) {
			ev.TxHash = e.TxHash.Hex()
		}
		v.Exits = append(v.Exits, ev)
	}
	return v
}

func (s *Server) listTrades(c *gin.Context) {
	trades := s.Orch.Trades()
	out := make([]tradeView, 0, len(trades))
	for _, t := range trades {
		out = append(out, toView(t))
	}
	c.JSON(http.StatusOK, gin.H{"rows": out})
}

func (s *Server) getTrade(c *gin.Context) {
	t, ok := s.Orch.Trade(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, apiError{Code: "not_found", Message: "unknown trade id"})
		return
	}
	c.JSON(http.StatusOK, toView(t))
}

package http

import (
	"context"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"pairtrade/internal/domain"
	"pairtrade/internal/usecase"
)

// TradingHandler exposes the operational read endpoints and the manual
// job triggers.
type TradingHandler struct {
	exchange       string
	tradingService *usecase.TradingService
	live           domain.LiveStore
	spreads        domain.SpreadRepository
	history        domain.TradeHistoryRepository
}

// NewTradingHandler creates a new TradingHandler
func NewTradingHandler(
	exchange string,
	tradingService *usecase.TradingService,
	live domain.LiveStore,
	spreads domain.SpreadRepository,
	history domain.TradeHistoryRepository,
) *TradingHandler {
	return &TradingHandler{
		exchange:       exchange,
		tradingService: tradingService,
		live:           live,
		spreads:        spreads,
		history:        history,
	}
}

// GetPositions returns all open positions with their live PnL
// GET /api/positions
func (h *TradingHandler) GetPositions(c echo.Context) error {
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	positions, err := h.live.ListPositions(ctx, h.exchange)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to load positions", err)
	}

	out := make([]*domain.Position, 0, len(positions))
	for _, p := range positions {
		out = append(out, p)
	}
	return SuccessResponse(c, map[string]interface{}{
		"exchange":  h.exchange,
		"count":     len(out),
		"positions": out,
	})
}

// GetRecentTrades returns the most recently closed trades
// GET /api/trades/recent?limit=50
func (h *TradingHandler) GetRecentTrades(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return BadRequestResponse(c, "limit must be an integer between 1 and 500")
		}
		limit = n
	}

	ctx, cancel := h.requestCtx(c)
	defer cancel()

	trades, err := h.history.GetRecent(ctx, h.exchange, limit)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to load trade history", err)
	}
	return SuccessResponse(c, map[string]interface{}{
		"exchange": h.exchange,
		"count":    len(trades),
		"trades":   trades,
	})
}

// GetLatestSpread returns the latest persisted bars and the live spread
// for one pair
// GET /api/spreads/:pair/latest?bars=10
func (h *TradingHandler) GetLatestSpread(c echo.Context) error {
	pair := c.Param("pair")
	if pair == "" {
		return BadRequestResponse(c, "pair is required")
	}

	bars := 10
	if raw := c.QueryParam("bars"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			return BadRequestResponse(c, "bars must be an integer between 1 and 1000")
		}
		bars = n
	}

	ctx, cancel := h.requestCtx(c)
	defer cancel()

	recent, err := h.spreads.GetRecent(ctx, pair, bars)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to load spread bars", err)
	}
	if len(recent) == 0 {
		return NotFoundResponse(c, "No spread data for pair "+pair)
	}

	data := map[string]interface{}{
		"pair": pair,
		"bars": recent,
	}
	if liveSpread, err := h.live.GetLiveSpread(ctx, h.exchange, pair); err == nil {
		data["live"] = liveSpread
	}
	return SuccessResponse(c, data)
}

// GetParams returns the effective strategy parameters
// GET /api/params
func (h *TradingHandler) GetParams(c echo.Context) error {
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	return SuccessResponse(c, h.tradingService.Params(ctx))
}

// TriggerBackfill starts a backfill run in the background
// POST /api/backfill/trigger
func (h *TradingHandler) TriggerBackfill(c echo.Context) error {
	go h.tradingService.RunBackfill(context.Background())
	return AcceptedResponse(c, "Backfill started")
}

// TriggerScan starts a signal scan in the background
// POST /api/scan/trigger
func (h *TradingHandler) TriggerScan(c echo.Context) error {
	go h.tradingService.RunScan(context.Background())
	return AcceptedResponse(c, "Scan started")
}

func (h *TradingHandler) requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}

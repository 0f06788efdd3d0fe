package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mteoong/quickscope-sub000/internal/domain"
)

// queryInt parses a bounded positive integer query parameter, falling back
// to def for absent or out-of-range values.
func queryInt(c *gin.Context, name string, def, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		return def
	}
	return n
}

// GetPriceData godoc
// @Summary      Get normalized OHLCV candles for a token
// @Description  Tries each upstream provider in priority order; exhaustion yields a flagged synthetic series
// @Tags         market
// @Produce      json
// @Param        address    query  string  true   "Token mint address"
// @Param        timeframe  query  string  false  "Candle timeframe (1m, 5m, 15m, 1h, 4h, 1d)"  default(1h)
// @Param        chain      query  string  false  "Chain identifier"  default(solana)
// @Param        before     query  int     false  "Unix-second backward cursor"
// @Param        limit      query  int     false  "Number of candles (default 500, max 1000)"  default(500)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/price-data [get]
func (h *Handler) GetPriceData(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-price-data")
	defer span.End()

	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "address is required"})
		return
	}
	span.SetAttributes(attribute.String("token", address))

	timeframe := c.DefaultQuery("timeframe", "1h")
	if !domain.IsSupportedTimeframe(timeframe) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":              false,
			"error":                "unsupported timeframe: " + timeframe,
			"supported_timeframes": domain.SupportedTimeframes,
		})
		return
	}

	chain := c.DefaultQuery("chain", "solana")

	var before int64
	if raw := c.Query("before"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "before must be a unix timestamp"})
			return
		}
		before = n
	}

	limit := queryInt(c, "limit", 500, 1000)

	pd, err := h.market.GetPriceData(ctx, address, chain, timeframe, before, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": pd})
}

// GetTrending godoc
// @Summary      Get the trending token list
// @Tags         market
// @Produce      json
// @Param        limit  query  int  false  "Number of tokens (default 20, max 100)"  default(20)
// @Success      200  {object}  map[string]interface{}
// @Router       /api/trending [get]
func (h *Handler) GetTrending(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-trending")
	defer span.End()

	limit := queryInt(c, "limit", 20, 100)

	tr, err := h.market.GetTrending(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"data":         tr.Tokens,
		"is_synthetic": tr.IsSynthetic,
		"source":       tr.Source,
	})
}

// GetTokenSecurity godoc
// @Summary      Get the security scan for a token
// @Tags         market
// @Produce      json
// @Param        address  query  string  true  "Token mint address"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/token-security [get]
func (h *Handler) GetTokenSecurity(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-token-security")
	defer span.End()

	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "address is required"})
		return
	}
	span.SetAttributes(attribute.String("token", address))

	sec, err := h.market.GetTokenSecurity(ctx, address)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": sec})
}

// GetTopHolders godoc
// @Summary      Get a token's largest holders
// @Tags         market
// @Produce      json
// @Param        address  query  string  true   "Token mint address"
// @Param        limit    query  int     false  "Number of holders (default 20, max 100)"  default(20)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/holders [get]
func (h *Handler) GetTopHolders(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-top-holders")
	defer span.End()

	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "address is required"})
		return
	}
	span.SetAttributes(attribute.String("token", address))

	limit := queryInt(c, "limit", 20, 100)

	holders, err := h.market.GetTopHolders(ctx, address, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": holders})
}

// GetRecentTrades godoc
// @Summary      Get recent swaps for a token
// @Description  Historical seed for the live trade stream
// @Tags         market
// @Produce      json
// @Param        address  query  string  true   "Token mint address"
// @Param        limit    query  int     false  "Number of trades (default 50, max 200)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/trades [get]
func (h *Handler) GetRecentTrades(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-recent-trades")
	defer span.End()

	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "address is required"})
		return
	}
	span.SetAttributes(attribute.String("token", address))

	limit := queryInt(c, "limit", 50, 200)

	events, err := h.market.GetRecentTrades(ctx, address, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": events})
}

package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/mteoong/quickscope-sub000/internal/domain"
	"github.com/mteoong/quickscope-sub000/internal/service"
)

// MarketService is the slice of the orchestrator the HTTP layer needs.
type MarketService interface {
	GetPriceData(ctx context.Context, address, chain, timeframe string, before int64, limit int) (*domain.PriceData, error)
	GetTrending(ctx context.Context, limit int) (*service.TrendingResult, error)
	GetTokenSecurity(ctx context.Context, address string) (*domain.TokenSecurity, error)
	GetTopHolders(ctx context.Context, address string, limit int) ([]domain.TokenHolder, error)
	GetRecentTrades(ctx context.Context, address string, limit int) ([]domain.TradeEvent, error)
}

type Handler struct {
	tracer trace.Tracer
	market MarketService
}

func New(tracer trace.Tracer, market MarketService) *Handler {
	return &Handler{
		tracer: tracer,
		market: market,
	}
}

// RegisterRoutes mounts the API. middleware applies to /api routes only;
// /health stays open for liveness checks.
func (h *Handler) RegisterRoutes(r *gin.Engine, middleware ...gin.HandlerFunc) {
	r.GET("/health", h.Health)

	api := r.Group("/api", middleware...)
	api.GET("/price-data", h.GetPriceData)
	api.GET("/trending", h.GetTrending)
	api.GET("/token-security", h.GetTokenSecurity)
	api.GET("/holders", h.GetTopHolders)
	api.GET("/trades", h.GetRecentTrades)
}

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/eventix/eventix/api"
	"github.com/eventix/eventix/config"
	"github.com/eventix/eventix/internal/service/checkout"
	"github.com/eventix/eventix/internal/service/events"
	"github.com/eventix/eventix/internal/service/tickets"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/sync/errgroup"
)

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails.
func Run(
	ctx context.Context,
	cfg *config.Config,
	eventSvc events.EventUseCase,
	ticketSvc tickets.TicketUseCase,
	checkoutSvc checkout.CheckoutUseCase,
) error {
	router := newRouter(cfg, eventSvc, ticketSvc, checkoutSvc)

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func newRouter(
	cfg *config.Config,
	eventSvc events.EventUseCase,
	ticketSvc tickets.TicketUseCase,
	checkoutSvc checkout.CheckoutUseCase,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	eventHandler := api.NewEventHandler(eventSvc)
	ticketHandler := api.NewTicketHandler(ticketSvc)
	checkoutHandler := api.NewCheckoutHandler(checkoutSvc)

	// Catalog reads and the gateway webhook stay unauthenticated.
	public := router.Group("/api")
	eventHandler.Register(public.Group("/events"))
	checkoutHandler.RegisterWebhook(public.Group("/checkout"))

	private := router.Group("/api")
	private.Use(api.AuthMiddleware(cfg.Auth.JWTSecret))
	ticketHandler.Register(private.Group("/tickets"))
	checkoutHandler.Register(private.Group("/checkout"))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.HTTP.SwaggerDir != "" {
		router.StaticFile("/docs/openapi.json", cfg.HTTP.SwaggerDir+"/openapi.json")
		router.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(
			httpSwagger.URL("/docs/openapi.json"),
		)))
	}

	return router
}

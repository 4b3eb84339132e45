package http

import (
	"context"
	"errors"
	"net/http"

	echoHTTP "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"attendance/entity"
	"attendance/reconcile"
)

type AvailabilityService interface {
	Snapshot(ctx context.Context, eventID string) entity.AvailabilitySnapshot
}

type ViewHub interface {
	Subscribe(eventID string, onChange func(entity.EventView)) (*reconcile.Subscription, error)
	Current(eventID string) (entity.EventView, bool)
}

type ViewLoader interface {
	Load(ctx context.Context, eventID string) (entity.EventView, error)
}

type CheckInService interface {
	CheckIn(ctx context.Context, credentialID, actorID string) (entity.CheckInResult, error)
	CheckInPurchase(ctx context.Context, purchaseID, actorID string) (entity.CheckInResult, error)
	MarkNoShow(ctx context.Context, purchaseID, actorID string) (entity.CheckInRecord, error)
}

type BackfillPlanner interface {
	EnsureCredentials(ctx context.Context, purchaseID string) (int, error)
}

type ScanMemory interface {
	Invalidate(ctx context.Context) error
}

type Server struct {
	addr         string
	e            *echo.Echo
	availability AvailabilityService
	hub          ViewHub
	loader       ViewLoader
	checkIns     CheckInService
	planner      BackfillPlanner
	scanMemory   ScanMemory
}

func NewServer(
	addr string,
	availability AvailabilityService,
	hub ViewHub,
	loader ViewLoader,
	checkIns CheckInService,
	planner BackfillPlanner,
	scanMemory ScanMemory,
) *Server {
	e := echoHTTP.NewEcho()
	e.Use(otelecho.Middleware("attendance"))

	server := &Server{
		addr:         addr,
		e:            e,
		availability: availability,
		hub:          hub,
		loader:       loader,
		checkIns:     checkIns,
		planner:      planner,
		scanMemory:   scanMemory,
	}

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/events/:event_id/availability", server.GetAvailability)
	e.GET("/events/:event_id/view", server.GetView)
	e.GET("/events/:event_id/stream", server.StreamView)

	e.POST("/credentials/:credential_id/check-in", server.PostCredentialCheckIn)
	e.POST("/purchases/:purchase_id/check-in", server.PostPurchaseCheckIn)
	e.POST("/purchases/:purchase_id/no-show", server.PostNoShow)
	e.POST("/purchases/:purchase_id/credentials", server.PostPurchaseCredentials)

	e.DELETE("/scan-memory", server.DeleteScanMemory)

	return server
}

func (s Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		err := s.e.Shutdown(context.Background())
		if err != nil {
			log.FromContext(ctx).WithError(err).Error("failed to shutdown HTTP server")
		}
	}()
	log.FromContext(ctx).WithField("addr", s.addr).Info("[HTTP] server listening")
	if err := s.e.Start(s.addr); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP lets the server be driven without a listener.
func (s Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

package hub

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Altanb21/TideBitEx-sub000/pkg/config"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
	"github.com/Altanb21/TideBitEx-sub000/pkg/util"
)

const serverShutdownTimeout = 5 * time.Second

// Server exposes the hub over HTTP: /ws upgrades to WebSocket, /healthz
// answers liveness probes.
type Server struct {
	hub      *Hub
	cfg      config.HubConfig
	logger   logger.Interface
	upgrader websocket.Upgrader
	http     *http.Server
}

// NewServer builds the gin router around the hub.
func NewServer(h *Hub, cfg config.HubConfig, log logger.Interface) *Server {
	s := &Server{
		hub:    h,
		cfg:    cfg,
		logger: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from the exchange front end on other
			// origins; authentication happens per member subscription.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/ws", s.handleWS)
	router.GET("/healthz", s.handleHealthz)

	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}
	return s
}

// Run serves until ctx is done, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("hub server listening",
			logger.Field{Key: "addr", Value: s.http.Addr},
		)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WarnContext(c.Request.Context(), "websocket upgrade failed",
			logger.Field{Key: "error", Value: err.Error()},
		)
		return
	}

	// Serve blocks until the connection closes, keeping the request context
	// alive for the pumps.
	ctx := util.WithRequestID(c.Request.Context(), c.GetHeader("X-Request-Id"))
	client := NewClient(s.hub, conn, s.cfg, s.logger)
	client.Serve(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

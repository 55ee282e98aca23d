package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

// Server expone GET /ping para los monitores de uptime del host.
// No comparte estado con el engine.
type Server struct {
	addr string
	r    *gin.Engine
}

// NewServer crea el router. addr tiene la forma host:port.
func NewServer(addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()

	g.Use(func(cn *gin.Context) {
		start := time.Now()
		cn.Next()
		slog.Debug("http request",
			"method", cn.Request.Method,
			"path", cn.Request.URL.Path,
			"status", cn.Writer.Status(),
			"latency", time.Since(start),
		)
	})
	g.Use(gin.Recovery())

	g.GET("/ping", func(cn *gin.Context) { cn.String(http.StatusOK, "Pong!") })

	return &Server{addr: addr, r: g}
}

// Handler devuelve el router, para tests.
func (s *Server) Handler() http.Handler { return s.r }

// Run escucha hasta que ctx se cancela. Un puerto ocupado devuelve error
// inmediatamente.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("health.Run: listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve atiende en ln hasta que ctx se cancela.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.r, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("health endpoint listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health.Serve: %w", err)
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("health.Serve: shutdown: %w", err)
	}
	return nil
}

// Package admin serves read-only server statistics over HTTP.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fzft/go-frame-reactor/log"
	"github.com/fzft/go-frame-reactor/node"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StatsSource interface {
	Stats() node.Stats
}

// New builds the admin router.
func New(src StatsSource) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.Stats())
	})
	return r
}

// Serve runs the admin endpoint on addr until ctx is done.
func Serve(ctx context.Context, addr string, src StatsSource) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           New(src),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Logger.Info("admin listening on", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

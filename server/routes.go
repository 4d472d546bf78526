// Package server exposes a Decoder over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/jmorganca/headliner/api"
	"github.com/jmorganca/headliner/runner"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	addr net.Addr

	// mu serializes decoding; the model is not safe for concurrent use
	mu      sync.Mutex
	decoder *runner.Decoder
}

func New(d *runner.Decoder) *Server {
	return &Server{decoder: d}
}

func (s *Server) GenerateRoutes() http.Handler {
	r := gin.Default()

	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "Headliner is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "Headliner is running") })

	r.POST("/api/summarize", s.SummarizeHandler)
	r.GET("/api/info", s.InfoHandler)

	return r
}

func (s *Server) SummarizeHandler(c *gin.Context) {
	var req api.SummarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	s.mu.Lock()
	summary, err := s.decoder.Summarize(req.Text)
	s.mu.Unlock()
	if err != nil {
		slog.Error("summarize failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.SummarizeResponse{
		Summary: summary.Text,
		Bucket:  s.decoder.Model().Buckets()[summary.Bucket].String(),
		Tokens:  len(summary.IDs),
	})
}

func (s *Server) InfoHandler(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.decoder.Model()
	opts := m.Options()

	var buckets []string
	for _, b := range m.Buckets() {
		buckets = append(buckets, b.String())
	}

	c.JSON(http.StatusOK, api.InfoResponse{
		Buckets:      buckets,
		SourceVocab:  s.decoder.SourceVocabulary().Size(),
		TargetVocab:  s.decoder.TargetVocabulary().Size(),
		Layers:       opts.NumLayers,
		HiddenUnits:  opts.HiddenUnits,
		Parameters:   m.NumParameters(),
		GlobalStep:   m.GlobalStep(),
		LearningRate: m.LearningRate(),
	})
}

// Serve handles requests on ln until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, ln net.Listener, d *runner.Decoder) error {
	s := New(d)
	s.addr = ln.Addr()
	srv := &http.Server{Handler: s.GenerateRoutes()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", s.addr)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

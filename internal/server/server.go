// Package server exposes the color analysis pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dudu/colorseason/internal/dominant"
	"github.com/dudu/colorseason/internal/imageio"
	"github.com/dudu/colorseason/internal/logger"
	"github.com/dudu/colorseason/internal/pipeline"
)

// Analyzer is the part of the pipeline the HTTP layer depends on
type Analyzer interface {
	AnalyzeBytes(data []byte) (pipeline.ColorResult, error)
}

// Options configures the HTTP layer
type Options struct {
	UploadDir      string // uploads are kept here when non-empty
	MaxUploadBytes int64
	Debug          bool
}

// Server routes analysis requests to an Analyzer
type Server struct {
	analyzer Analyzer
	opts     Options
	engine   *gin.Engine
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New builds the gin engine and registers routes
func New(analyzer Analyzer, opts Options) *Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{analyzer: analyzer, opts: opts}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	engine.MaxMultipartMemory = opts.MaxUploadBytes

	engine.POST("/analyze", s.analyze)
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "not_found", fmt.Sprintf("%s %s does not exist", c.Request.Method, c.Request.URL.Path))
	})

	s.engine = engine
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", logger.Options{Key: "addr", Data: addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) analyze(c *gin.Context) {
	if s.opts.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, "upload_too_large",
				fmt.Sprintf("Image must be at most %d bytes.", s.opts.MaxUploadBytes))
			return
		}
		fail(c, http.StatusBadRequest, "missing_image", "An image file is required in the \"image\" field.")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		logger.Error("failed to open upload", logger.Options{Key: "error", Data: err.Error()})
		fail(c, http.StatusInternalServerError, "internal_error", "Could not read the uploaded file.")
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		logger.Error("failed to read upload", logger.Options{Key: "error", Data: err.Error()})
		fail(c, http.StatusInternalServerError, "internal_error", "Could not read the uploaded file.")
		return
	}

	s.saveUpload(fileHeader.Filename, data)

	// Caller-supplied colors skip extraction
	if raw := c.PostForm("colors"); raw != "" {
		colors, err := parseColors(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid_colors", err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"colors": colors})
		return
	}

	result, err := s.analyzer.AnalyzeBytes(data)
	if err != nil {
		s.analysisFailed(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"colors": result})
}

func (s *Server) analysisFailed(c *gin.Context, err error) {
	var ae *pipeline.AnalysisError
	switch {
	case errors.As(err, &ae):
		logger.Info("analysis failed",
			logger.Options{Key: "kind", Data: string(ae.Kind)},
			logger.Options{Key: "stage", Data: string(ae.Stage)},
			logger.Options{Key: "error", Data: err.Error()})
		fail(c, http.StatusUnprocessableEntity, string(ae.Kind), ae.Message)
	case errors.Is(err, imageio.ErrInvalidImage):
		fail(c, http.StatusBadRequest, "invalid_image", "The uploaded file is not a readable image.")
	default:
		logger.Error("analysis error", logger.Options{Key: "error", Data: err.Error()})
		fail(c, http.StatusInternalServerError, "internal_error", "Unexpected error while analyzing the image.")
	}
}

// saveUpload keeps a transient copy of the upload; failures are only logged
func (s *Server) saveUpload(filename string, data []byte) {
	if s.opts.UploadDir == "" {
		return
	}
	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		logger.Warning("failed to create upload dir", logger.Options{Key: "error", Data: err.Error()})
		return
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 8 {
		ext = ""
	}
	path := filepath.Join(s.opts.UploadDir, uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Warning("failed to save upload", logger.Options{Key: "error", Data: err.Error()})
		return
	}
	logger.Debug("upload saved", logger.Options{Key: "path", Data: path})
}

// parseColors validates a {"hair","skin","lip"} JSON object and normalizes each hex
func parseColors(raw string) (pipeline.ColorResult, error) {
	var in map[string]string
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return pipeline.ColorResult{}, fmt.Errorf("colors must be a JSON object: %v", err)
	}

	var out pipeline.ColorResult
	fields := []struct {
		key string
		dst *string
	}{
		{"hair", &out.Hair},
		{"skin", &out.Skin},
		{"lip", &out.Lip},
	}
	for _, f := range fields {
		v, ok := in[f.key]
		if !ok {
			return pipeline.ColorResult{}, fmt.Errorf("colors.%s is required", f.key)
		}
		c, err := dominant.ParseHex(strings.TrimSpace(v))
		if err != nil {
			return pipeline.ColorResult{}, fmt.Errorf("colors.%s %q is not a #rrggbb color", f.key, v)
		}
		*f.dst = c.Hex()
	}
	return out, nil
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{Code: code, Message: message}})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			logger.Options{Key: "method", Data: c.Request.Method},
			logger.Options{Key: "path", Data: c.Request.URL.Path},
			logger.Options{Key: "status", Data: c.Writer.Status()},
			logger.Options{Key: "latency", Data: time.Since(start).String()})
	}
}

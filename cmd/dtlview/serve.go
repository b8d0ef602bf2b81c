package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve <trace-dir>",
	Short: "Serve a trace directory to viewers",
	Long: "Serves the trace manifest at /manifest.json and its arrays at\n" +
		"/data/{array}.parquet. The manifest is trace.json or manifest.json in\n" +
		"<trace-dir>; arrays live in <trace-dir>/arrays or <trace-dir>/data.",
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "localhost:3000", "listen address")
}

// traceLayout locates the manifest and array directory of a trace.
type traceLayout struct {
	manifest string
	arrays   string
}

func findTraceLayout(dir string) (traceLayout, error) {
	var l traceLayout
	for _, name := range []string{"trace.json", "manifest.json"} {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			l.manifest = p
			break
		}
	}
	if l.manifest == "" {
		return l, fmt.Errorf("no trace.json or manifest.json in %s", dir)
	}
	for _, name := range []string{"arrays", "data"} {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			l.arrays = p
			break
		}
	}
	if l.arrays == "" {
		return l, fmt.Errorf("no arrays or data directory in %s", dir)
	}
	return l, nil
}

// newRouter serves one trace. Only array files are exposed under /data.
func newRouter(l traceLayout) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/manifest.json", func(c *gin.Context) {
		c.File(l.manifest)
	})

	data := r.Group("/data", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Next()
	})
	data.GET("/:file", func(c *gin.Context) {
		name := c.Param("file")
		if !strings.HasSuffix(name, ".parquet") {
			name += ".parquet"
		}
		if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		p := filepath.Join(l.arrays, name)
		if _, err := os.Stat(p); err != nil {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		c.File(p)
	})
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("request")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	l, err := findTraceLayout(args[0])
	if err != nil {
		return err
	}
	if flagLogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{Addr: flagAddr, Handler: newRouter(l)}
	go func() {
		<-cmd.Context().Done()
		srv.Close()
	}()

	logger.Info().Str("addr", flagAddr).Str("manifest", l.manifest).Str("arrays", l.arrays).Msg("serving trace")
	fmt.Fprintf(os.Stderr, "Serving %s at http://%s/manifest.json\n", args[0], flagAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roostrcapital/xposter/internal/api"
	"github.com/roostrcapital/xposter/internal/config"
	"github.com/roostrcapital/xposter/internal/metrics"
	"github.com/roostrcapital/xposter/internal/queue"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the queue to dashboards (foreground)",
	Long: `Serve a read API over the queue, the posted log and the run journal.

With --mcp the queue tools are also offered to an agent over stdio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(cmd.Context(), withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running xposter server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools on stdin/stdout")
}

const pendingRefresh = 30 * time.Second

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "xposter.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(ctx context.Context, withMCP bool) error {
	fmt.Fprintf(os.Stderr, "xposter version %s\n", version)

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	pidPath := pidFilePath(a.cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", a.cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("xposter is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("xposter is already running on port %d", a.cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", a.cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	handler := api.NewAppHandler(api.AppDeps{
		Queue:   a.queue,
		Runs:    a.journal,
		Token:   apiToken,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "xposter listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		refreshPending(ctx, a.queue, m)
		t := time.NewTicker(pendingRefresh)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				refreshPending(ctx, a.queue, m)
			}
		}
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Queue: a.queue, Runs: a.journal})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			serveMCP(ctx, stdioSrv, os.Stdin, os.Stdout, stop)
			return nil
		})
	}

	return g.Wait()
}

// serveMCP runs the stdio transport until ctx ends or the client closes
// stdin. In the latter case stop shuts the whole server down.
func serveMCP(ctx context.Context, stdio *server.StdioServer, in io.Reader, out io.Writer, stop context.CancelFunc) {
	slog.Info("MCP server started (stdio transport)")
	err := stdio.Listen(ctx, in, out)
	switch {
	case ctx.Err() != nil:
		return
	case err != nil && !errors.Is(err, context.Canceled):
		slog.Error("MCP stdio server error", "error", err)
	default:
		slog.Info("MCP client disconnected, shutting down")
	}
	stop()
}

func refreshPending(ctx context.Context, q *queue.Store, m *metrics.Metrics) {
	doc, err := q.Load(ctx)
	if err != nil {
		slog.Debug("pending gauge refresh skipped", "error", err)
		return
	}
	m.SetPending(queue.PendingBySlot(doc.Posts))
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("xposter is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop xposter (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to xposter (PID %d)", pid)
	return nil
}

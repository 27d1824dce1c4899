package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/issuetracker/internal/api"
	"github.com/joescharf/issuetracker/internal/daemon"
)

const (
	shutdownTimeout = 10 * time.Second
	stopTimeout     = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the HTTP server for /api/issues/{project} in the foreground.
By default it listens on port 8080. Use --port to change it, or
'issuetracker serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun()
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "issuetracker-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "issuetracker-serve.log")
}

func serveAddr() string {
	return net.JoinHostPort(viper.GetString("host"), strconv.Itoa(viper.GetInt("port")))
}

func serveRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running && pid != os.Getpid() {
		return fmt.Errorf("server already running (pid %d)", pid)
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}

	addr := serveAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(svc, s, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(pf.Path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	if err := pf.Write(); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	defer func() { _ = pf.Remove() }()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("serving issue API", "addr", addr, "db", viper.GetString("db_path"))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return s.Close()
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	args := []string{"serve", "--port", strconv.Itoa(viper.GetInt("port"))}
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}

	if dryRun {
		ui.DryRunMsg("Would start %s %v, logging to %s", exe, args, serveLogPath())
		return nil
	}

	if err := os.MkdirAll(viper.GetString("state_dir"), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := pf.WritePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	_ = child.Process.Release()

	ui.Success("Server started on %s (pid %d)", serveAddr(), child.Process.Pid)
	ui.Info("Logs: %s", serveLogPath())
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		_ = pf.RemoveStale()
		return fmt.Errorf("server is not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (pid %d)", pid)
		return nil
	}

	_, killed, err := pf.Stop(stopTimeout)
	if err != nil {
		return fmt.Errorf("stop server: %w", err)
	}
	if killed {
		ui.Warning("Server did not exit within %s and was killed", stopTimeout)
	}

	ui.Success("Server stopped (pid %d)", pid)
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		ui.Success("Server running (pid %d) on %s", pid, serveAddr())
		return nil
	}
	ui.Info("Server not running")
	return nil
}

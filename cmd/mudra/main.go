package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/tray"
)

const shutdownTimeout = 5 * time.Second

func main() {
	fmt.Println("Mudra - Sign Gesture Detection")

	cfg, path, err := config.Discover()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.LogLevel)
	log := logging.Named("main")
	if path != "" {
		log.Infow("loaded config", "path", path)
	} else {
		log.Info("no config file found, using defaults")
	}

	if err := run(cfg, log); err != nil {
		log.Errorw("exiting", "error", err)
		_ = logging.Sync()
		os.Exit(1)
	}
	_ = logging.Sync()
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	labels, err := cfg.Model.ClassNames()
	if err != nil {
		return fmt.Errorf("read class labels: %w", err)
	}
	if len(labels) == 0 {
		log.Warn("no class labels configured, detections will be named by class id")
	}

	// A load failure is reported on the dashboard and refuses sessions; the
	// server still comes up so the operator can see why.
	var det detector.Detector
	yolo, loadErr := detector.Load(detector.Config{
		ModelPath:    cfg.Model.Path,
		Labels:       labels,
		InputSize:    cfg.Model.InputSize,
		NMSThreshold: cfg.Model.NMSThreshold,
	})
	if loadErr == nil {
		det = yolo
		log.Infow("model loaded", "path", cfg.Model.Path, "classes", len(yolo.Labels()))
	}

	dashboard := server.NewDashboard(cfg.Camera.JPEGQuality)
	application := app.New(app.Config{
		Detector: det,
		LoadErr:  loadErr,
		Opener: capture.NewWebcamOpener(capture.Settings{
			Device: cfg.Camera.Device,
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FPS:    cfg.Camera.FPS,
		}),
		Display:   dashboard,
		Threshold: cfg.Dashboard.DefaultThreshold,
	})

	srv := server.New(server.Config{
		StaticDir:  cfg.Dashboard.StaticDir,
		Controller: application,
		Dashboard:  dashboard,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var serveErr error
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		if err := srv.ListenAndServe(cfg.Dashboard.Addr); err != nil {
			serveErr = fmt.Errorf("serve %s: %w", cfg.Dashboard.Addr, err)
			stop()
		}
	}()

	url := dashboardURL(cfg.Dashboard.Addr)
	fmt.Printf("Dashboard at %s\n", url)

	if cfg.Dashboard.Tray {
		runTray(ctx, stop, application, dashboard, url, log)
	}
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = multierr.Combine(
		srv.Shutdown(shutdownCtx),
		application.Close(),
	)
	<-serveDone
	return multierr.Append(serveErr, err)
}

// runTray blocks on the system tray until it quits or ctx is done.
func runTray(ctx context.Context, stop context.CancelFunc, application *app.App, dashboard *server.Dashboard, url string, log *zap.SugaredLogger) {
	t := tray.New()
	t.OnStart(func() {
		if err := application.Start(); err != nil {
			log.Warnw("start from tray failed", "error", err)
		}
	})
	t.OnStop(application.Stop)
	t.OnOpen(func() {
		if err := openBrowser(url); err != nil {
			log.Warnw("open browser failed", "url", url, "error", err)
		}
	})
	t.OnQuit(stop)

	updates, cancel := dashboard.Subscribe()
	defer cancel()
	go t.Watch(updates)

	go func() {
		<-ctx.Done()
		t.Quit()
	}()

	t.Run()
}

// dashboardURL turns a listen address into a browsable URL.
func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

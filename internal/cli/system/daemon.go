package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/julianstephens/streakline/internal/cli"
	"github.com/julianstephens/streakline/internal/config"
	"github.com/julianstephens/streakline/internal/control"
	"github.com/julianstephens/streakline/internal/coordinator"
	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/logger"
	"github.com/julianstephens/streakline/internal/metrics"
	"github.com/julianstephens/streakline/internal/notifier"
	"github.com/julianstephens/streakline/internal/writerlock"
)

const shutdownTimeout = 5 * time.Second

// DaemonCmd owns the store: it runs background sync and serves the control API
// that one-shot commands forward their intents to.
type DaemonCmd struct {
	MetricsAddr string `help:"Serve /metrics, /healthz and /status on this address (overrides the config file)." placeholder:"HOST:PORT"`
	NoBackup    bool   `help:"Skip the backup taken at startup."`
}

func syncConfig(cfg config.Config) coordinator.Config {
	return coordinator.Config{
		Interval:         cfg.Sync.Interval.Duration,
		FetchTimeout:     cfg.Sync.FetchTimeout.Duration,
		Concurrency:      cfg.Sync.Concurrency,
		RefreshPerMinute: cfg.Sync.RefreshPerMinute,
		RefreshBurst:     cfg.Sync.RefreshBurst,
	}
}

func (c *DaemonCmd) Run(ctx *cli.Context) error {
	lock, owner, err := writerlock.Acquire(ctx.LockPath())
	if err != nil {
		if errors.Is(err, apperrors.ErrWriterLocked) {
			return fmt.Errorf("a daemon is already running (pid %d)", owner.PID)
		}
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("Failed to release writer lock", "error", err)
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !c.NoBackup && !ctx.Config.Daemon.SkipBackup {
		ctx.PerformAutomaticBackup(sigCtx)
	}

	tr, err := ctx.Tracker(sigCtx)
	if err != nil {
		return err
	}
	m := metrics.NewSync()
	coord := coordinator.New(ctx.Store, tr, syncConfig(ctx.Config), m)
	server := control.NewServer(tr, coord, m, lock.Info().Secret)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to open control listener: %w", err)
	}
	if err := lock.SetPort(ln.Addr().(*net.TCPAddr).Port); err != nil {
		ln.Close()
		return err
	}

	servers := []*http.Server{{Handler: server.Router(), ReadHeaderTimeout: 5 * time.Second}}
	listeners := []net.Listener{ln}

	metricsAddr := ctx.Config.Daemon.MetricsAddr
	if c.MetricsAddr != "" {
		metricsAddr = c.MetricsAddr
	}
	if metricsAddr != "" {
		mln, err := net.Listen("tcp", metricsAddr)
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to open metrics listener: %w", err)
		}
		servers = append(servers, &http.Server{Handler: server.PublicRouter(), ReadHeaderTimeout: 5 * time.Second})
		listeners = append(listeners, mln)
		fmt.Printf("Metrics on http://%s/metrics\n", mln.Addr())
	}

	transitions, unsubscribe := coord.Subscribe()
	defer unsubscribe()
	go logTransitions(transitions)
	if url := ctx.Config.Daemon.NotifyURL; url != "" {
		health, unsubscribeHealth := coord.Subscribe()
		defer unsubscribeHealth()
		go notifier.New(url).Watch(sigCtx, health)
	}

	coord.Start(sigCtx)
	logger.Info("Daemon started", "pid", os.Getpid(), "control_port", lock.Info().Port, "interval", ctx.Config.Sync.Interval)
	fmt.Printf("Daemon running (pid %d). Press Ctrl+C to stop.\n", os.Getpid())

	g, gctx := errgroup.WithContext(sigCtx)
	for i := range servers {
		srv, l := servers[i], listeners[i]
		g.Go(func() error {
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		errs = append(errs, coord.Close())
		return errors.Join(errs...)
	})

	err = g.Wait()
	logger.Info("Daemon stopped")
	fmt.Println("Daemon stopped.")
	return err
}

func logTransitions(ch <-chan coordinator.Transition) {
	for t := range ch {
		if t.Report == nil {
			logger.Debug("Sync state", "from", t.From, "to", t.To)
			continue
		}
		logger.Debug("Sync state", "from", t.From, "to", t.To,
			"trigger", t.Report.Trigger, "created", t.Report.Created, "updated", t.Report.Updated,
			"failures", len(t.Report.Failures))
	}
}

package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/nvr-ai/go-alarm/config"
	"github.com/nvr-ai/go-alarm/profiler"
	"github.com/nvr-ai/go-alarm/session"
	"github.com/nvr-ai/go-alarm/storage"
	"github.com/nvr-ai/go-alarm/timeutil"
)

// Run starts a session for every enabled assignment and blocks until ctx is
// cancelled. Enabled assignments without a session are picked up every
// reconcile interval.
func Run(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	prof := profiler.New()
	mgr := session.NewManager(newEngine(cfg, store, prof).build)

	var wg sync.WaitGroup
	if cfg.Metrics.Listen != "" {
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: metricsMux(prof)}
		wg.Add(1)
		go func() {
			defer wg.Done()
			klog.InfoS("Serving metrics", "addr", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				klog.ErrorS(err, "Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Retention.Days > 0 {
		r := &retention{store: store, root: cfg.DataDir, days: cfg.Retention.Days, clock: timeutil.RealClock{}}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(ctx, cfg.Retention.SweepInterval)
		}()
	}

	reconcile(ctx, mgr, store)
	if cfg.Session.ReconcileInterval > 0 {
		ticker := time.NewTicker(cfg.Session.ReconcileInterval)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				reconcile(ctx, mgr, store)
			}
		}
	} else {
		<-ctx.Done()
	}

	klog.InfoS("Shutting down", "sessions", len(mgr.Keys()))
	mgr.StopAll()
	mgr.Wait()
	wg.Wait()
	return nil
}

func reconcile(ctx context.Context, mgr *session.Manager, store *storage.Store) {
	started, err := mgr.Reconcile(ctx, store)
	if err != nil {
		klog.ErrorS(err, "Reconcile failed")
		return
	}
	if started > 0 {
		klog.InfoS("Sessions started", "count", started, "running", len(mgr.Keys()))
	}
}

func metricsMux(prof *profiler.Profiler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prof.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

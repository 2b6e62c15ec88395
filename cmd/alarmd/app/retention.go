package app

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/nvr-ai/go-alarm/timeutil"
	"github.com/nvr-ai/go-alarm/util"
)

// alarmPruner deletes alarm rows older than a cutoff.
type alarmPruner interface {
	DeleteAlarmsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// retention removes frame directories and alarm rows older than days.
type retention struct {
	store alarmPruner
	root  string
	days  int
	clock timeutil.Clock
}

// sweep runs one pass. Failures are logged and retried on the next pass.
func (r *retention) sweep(ctx context.Context) {
	cutoff := r.clock.Now().AddDate(0, 0, -r.days)

	dirs, err := util.RemoveDatedDirsBefore(r.root, cutoff)
	if err != nil {
		klog.ErrorS(err, "Frame retention failed", "path", r.root)
	}
	rows, err := r.store.DeleteAlarmsBefore(ctx, cutoff)
	if err != nil {
		klog.ErrorS(err, "Alarm retention failed")
	}
	if len(dirs) > 0 || rows > 0 {
		klog.InfoS("Retention sweep", "cutoff", cutoff.Format(util.DateLayout), "dirs", len(dirs), "alarms", rows)
	}
}

// loop sweeps now and then every interval until ctx is done.
func (r *retention) loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	for {
		r.sweep(ctx)
		if err := timeutil.Sleep(ctx, r.clock, interval); err != nil {
			return
		}
	}
}

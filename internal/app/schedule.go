package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/dashboard"
)

// reportJob downloads the daily sales report into a directory on a cron
// schedule.
type reportJob struct {
	dashboard *dashboard.Service
	dir       string
	cron      *cron.Cron
	lg        *zap.Logger
}

func newReportJob(d *dashboard.Service, dir string, lg *zap.Logger) *reportJob {
	return &reportJob{
		dashboard: d,
		dir:       dir,
		cron:      cron.New(),
		lg:        lg.Named("report_job"),
	}
}

// Start registers the download on spec (standard five-field cron syntax) and
// starts the scheduler. Downloads run detached from ctx cancellation but
// carry its values.
func (j *reportJob) Start(ctx context.Context, spec string) error {
	ctx = context.WithoutCancel(ctx)
	if _, err := j.cron.AddFunc(spec, func() {
		if _, err := j.run(ctx); err != nil {
			j.lg.Error("Report download failed", zap.Error(err))
		}
	}); err != nil {
		return errors.Wrapf(err, "parse schedule %q", spec)
	}

	j.cron.Start()
	j.lg.Info("Report job started", zap.String("schedule", spec), zap.String("dir", j.dir))
	return nil
}

func (j *reportJob) run(ctx context.Context) (string, error) {
	a, err := j.dashboard.DailySalesPDF(ctx, "")
	if err != nil {
		return "", err
	}
	path, err := a.Save(j.dir)
	if err != nil {
		return "", err
	}
	j.lg.Info("Report saved", zap.String("path", path))
	return path, nil
}

// Stop stops the scheduler and waits for a running download.
func (j *reportJob) Stop() {
	<-j.cron.Stop().Done()
	j.lg.Info("Report job stopped")
}

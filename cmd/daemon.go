package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/archfetch/archfetch/internal/api"
	"github.com/archfetch/archfetch/internal/schedule"
	"github.com/archfetch/archfetch/internal/server"
	"github.com/archfetch/archfetch/pkg/fetchlib"
	"github.com/archfetch/archfetch/pkg/logger"
)

const apiBaseEnv = "ARCHFETCH_API_BASE"

var (
	daemonPort        int
	daemonSecret      string
	daemonWorkers     int
	daemonSlots       int
	daemonBandwidth   string
	daemonAPIBase     string
	daemonMaxAge      int
	daemonRefreshCron string
	daemonLogFile     string

	daemonFlags = []cli.Flag{
		cli.IntFlag{
			Name:        "port, p",
			Usage:       "tcp fallback port for the rpc endpoint",
			Destination: &daemonPort,
		},
		cli.StringFlag{
			Name:        "secret",
			Usage:       "bearer token required for rpc access (empty trusts the local socket)",
			EnvVar:      "ARCHFETCH_RPC_SECRET",
			Destination: &daemonSecret,
		},
		cli.IntFlag{
			Name:        "workers, w",
			Usage:       "download worker pool size",
			Value:       fetchlib.DEF_WORKERS,
			Destination: &daemonWorkers,
		},
		cli.IntFlag{
			Name:        "max-concurrent, c",
			Usage:       "maximum simultaneous requests against the archive service",
			Value:       fetchlib.DEF_MAX_CONCURRENT,
			Destination: &daemonSlots,
		},
		cli.StringFlag{
			Name:        "bandwidth, b",
			Usage:       "global download budget per second, e.g. 500k or 2m (0 = unlimited)",
			Destination: &daemonBandwidth,
		},
		cli.StringFlag{
			Name:        "api-base",
			Usage:       "base url of the remote archive service",
			EnvVar:      apiBaseEnv,
			Value:       "https://archive.org",
			Destination: &daemonAPIBase,
		},
		cli.IntFlag{
			Name:        "meta-max-age",
			Usage:       "metadata staleness horizon in hours",
			Value:       24,
			Destination: &daemonMaxAge,
		},
		cli.StringFlag{
			Name:        "refresh-cron",
			Usage:       "cron expression for recurring metadata refresh of pinned archives",
			Value:       "0 */6 * * *",
			Destination: &daemonRefreshCron,
		},
		cli.StringFlag{
			Name:        "log-file",
			Usage:       "also append daemon logs to this file",
			Destination: &daemonLogFile,
		},
	}
)

// daemon assembles and runs the fetch daemon in the foreground.
func daemon(ctx *cli.Context) error {
	var l logger.Logger = logger.NewStandardLogger(log.Default())
	if daemonLogFile != "" {
		fl, err := logger.NewFileLogger(daemonLogFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		l = logger.NewMultiLogger(l, fl)
	}

	dataDir, err := fetchlib.DataDir()
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	store, err := fetchlib.OpenStore(filepath.Join(dataDir, "archfetch.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	var budget int64
	if daemonBandwidth != "" && daemonBandwidth != "0" {
		budget, err = fetchlib.ParseSpeedLimit(daemonBandwidth)
		if err != nil {
			return fmt.Errorf("invalid bandwidth: %w", err)
		}
	}

	client := &http.Client{}
	limiter := fetchlib.NewRateLimiter(daemonSlots)
	bandwidth := fetchlib.NewBandwidthManager(budget)
	metaCache := fetchlib.NewMetadataCache(store, client, metadataURL(daemonAPIBase), l)
	identCache := fetchlib.NewIdentifierVerificationCache(
		store,
		limiter,
		fetchlib.HTTPExistenceCheck(client, metadataURL(daemonAPIBase)),
		fetchlib.DefaultVariants(),
		l,
	)
	transfer := fetchlib.NewTransfer(client, afero.NewOsFs())

	schedCfg := fetchlib.DefaultSchedulerConfig()
	schedCfg.Workers = daemonWorkers
	sched, err := fetchlib.NewScheduler(store, limiter, bandwidth, metaCache, transfer, schedCfg, l)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.Start()

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	maxAge := time.Duration(daemonMaxAge) * time.Hour
	startTimedJobs(runCtx, l, metaCache, daemonRefreshCron, maxAge)

	a := api.NewApi(l, sched, metaCache, identCache, limiter, bandwidth, store, maxAge, api.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildType: BuildType,
	})
	srv := server.NewServer(l, a.Methods(), &server.Config{
		Port:   daemonPort,
		Secret: daemonSecret,
	})

	l.Info("archfetch daemon %s-%s starting", version, BuildType)
	err = srv.Start(runCtx)

	var result *multierror.Error
	result = multierror.Append(result, err)
	result = multierror.Append(result, sched.Close())
	result = multierror.Append(result, store.Close())
	result = multierror.Append(result, l.Close())
	return result.ErrorOrNil()
}

// metadataURL maps an identifier to its description endpoint.
func metadataURL(base string) fetchlib.MetadataURLFunc {
	return func(identifier string) string {
		return base + "/metadata/" + identifier
	}
}

// startTimedJobs wires the cron scheduler: recurring metadata refresh
// for pinned archives and a purge sweep once per staleness horizon.
func startTimedJobs(ctx context.Context, l logger.Logger, metaCache *fetchlib.MetadataCache, refreshCron string, maxAge time.Duration) {
	if !schedule.ValidCron(refreshCron, time.Now()) {
		l.Warning("invalid refresh cron %q, metadata refresh disabled", refreshCron)
		return
	}
	const purgeJob = "cache-purge"
	s := schedule.New(ctx, func(jobID string) {
		if jobID == purgeJob {
			n, err := metaCache.PurgeStale(maxAge)
			if err != nil {
				l.Error("purge sweep failed: %s", err.Error())
				return
			}
			if n > 0 {
				l.Info("purge sweep removed %d entries", n)
			}
			return
		}
		refreshCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := metaCache.Refresh(refreshCtx, jobID); err != nil {
			l.Warning("refresh of %s failed: %s", jobID, err.Error())
		}
	})
	next, err := schedule.NextCronOccurrence(refreshCron, time.Now())
	if err == nil {
		for _, id := range metaCache.PinnedIdentifiers() {
			s.Add(schedule.Event{JobID: id, TriggerAt: next, CronExpr: refreshCron})
		}
	}
	s.Add(schedule.Event{
		JobID:     purgeJob,
		TriggerAt: time.Now().Add(maxAge),
		CronExpr:  refreshCron,
	})
}

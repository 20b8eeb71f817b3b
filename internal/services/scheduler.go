package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/keymonitor/backend/internal/config"
	"github.com/keymonitor/backend/internal/metrics"
	"github.com/keymonitor/backend/internal/store"
)

// schedulerZone pins the daily jobs to one wall clock regardless of where the
// process runs, since the marketplace and its operators live on CST.
const schedulerZone = "Asia/Shanghai"

// Scheduler drives the three periodic jobs: collection every N minutes,
// retention cleanup at midnight, and the daily report at its configured time.
// Each job runs in its own goroutine and can be torn down and recreated
// independently when the configuration changes; in-flight runs always finish.
type Scheduler struct {
	cfg       *config.Manager
	collector *Collector
	alerts    *AlertEngine
	store     *store.Store
	analysis  *AnalysisService
	loc       *time.Location

	mu              sync.Mutex
	baseCtx         context.Context
	cancelCollect   context.CancelFunc
	cancelRetention context.CancelFunc
	cancelReport    context.CancelFunc
	wg              sync.WaitGroup
	running         bool

	// Held for the duration of a collection cycle. An overlapping tick that
	// cannot take it is skipped, not queued.
	cycleMu sync.Mutex
}

func NewScheduler(cfg *config.Manager, collector *Collector, alerts *AlertEngine, st *store.Store, analysis *AnalysisService) *Scheduler {
	loc, err := time.LoadLocation(schedulerZone)
	if err != nil {
		loc = time.UTC
	}
	return &Scheduler{
		cfg:       cfg,
		collector: collector,
		alerts:    alerts,
		store:     st,
		analysis:  analysis,
		loc:       loc,
	}
}

// Start launches all three jobs and begins reacting to config changes.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.running = true
	cfg := s.cfg.Current()
	s.startCollectionLocked(cfg.CollectInterval)
	s.startRetentionLocked()
	s.startReportLocked()
	s.mu.Unlock()

	s.cfg.Subscribe(s.onConfigChange)
	log.Printf("Scheduler: started (collect every %d min, retention %d days)",
		cfg.CollectInterval, cfg.DataRetentionDays)
}

// Stop tears the jobs down and waits for in-flight runs to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.running = false
	for _, cancel := range []context.CancelFunc{s.cancelCollect, s.cancelRetention, s.cancelReport} {
		if cancel != nil {
			cancel()
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
	log.Println("Scheduler: stopped")
}

// Running reports whether the periodic jobs are active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) onConfigChange(old, updated config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if old.CollectInterval != updated.CollectInterval {
		log.Printf("Scheduler: collect interval changed %d -> %d min, restarting collection job",
			old.CollectInterval, updated.CollectInterval)
		if s.cancelCollect != nil {
			s.cancelCollect()
		}
		s.startCollectionLocked(updated.CollectInterval)
	}
	if old.Pushme.DailyReport != updated.Pushme.DailyReport {
		log.Println("Scheduler: daily report settings changed, restarting report job")
		if s.cancelReport != nil {
			s.cancelReport()
		}
		s.startReportLocked()
	}
}

func (s *Scheduler) startCollectionLocked(intervalMinutes int) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.cancelCollect = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// First cycle runs right away so a fresh process has data quickly.
		s.runCollectionCycle(ctx)

		ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runCollectionCycle(ctx)
			}
		}
	}()
}

func (s *Scheduler) runCollectionCycle(ctx context.Context) {
	if !s.cycleMu.TryLock() {
		log.Println("Scheduler: previous collection cycle still running, tick skipped")
		return
	}
	defer s.cycleMu.Unlock()

	if err := s.collector.CollectAll(ctx); err != nil && ctx.Err() == nil {
		log.Printf("Scheduler: collection cycle finished with errors: %v", err)
	}
	s.refreshGauges()
}

func (s *Scheduler) startRetentionLocked() {
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.cancelRetention = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			wait := time.Until(nextDailyRun(time.Now().In(s.loc), 0, 0))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				if _, err := s.RunRetention(); err != nil {
					log.Printf("Scheduler: retention cleanup failed: %v", err)
				}
			}
		}
	}()
}

func (s *Scheduler) startReportLocked() {
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.cancelReport = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			hour, minute := s.cfg.Current().ReportTime()
			wait := time.Until(nextDailyRun(time.Now().In(s.loc), hour, minute))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				outcome, err := s.alerts.DailyReport(ctx)
				if err != nil {
					log.Printf("Scheduler: daily report failed: %v", err)
				} else if outcome.Reason != OutcomeSent {
					log.Printf("Scheduler: daily report not sent: %s", outcome.Reason)
				}
			}
		}
	}()
}

// RunRetention purges records older than the configured retention window and
// returns how many were removed. Also behind POST /api/cleanup.
func (s *Scheduler) RunRetention() (int64, error) {
	days := s.cfg.Current().DataRetentionDays
	cutoff := time.Now().AddDate(0, 0, -days)
	purged, err := s.store.PurgeOlderThan(cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		metrics.SnapshotsPurgedTotal.Add(float64(purged))
		s.analysis.InvalidateAll()
		log.Printf("Scheduler: retention cleanup removed %d records older than %d days", purged, days)
	}
	s.refreshGauges()
	return purged, nil
}

func (s *Scheduler) refreshGauges() {
	if stats, err := s.store.Stats(); err == nil {
		metrics.TrackedGames.Set(float64(stats.GameCount))
		metrics.DBRecords.Set(float64(stats.RecordCount))
	}
}

// nextDailyRun returns the next occurrence of hour:minute after now, in now's
// location. A target exactly equal to now schedules for tomorrow.
func nextDailyRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

package cron

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/interfaces"
	cron_config "github.com/customeros/mailpulse/internal/cron/config"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/tracing"
)

const (
	// GroupWatch serializes jobs that talk to the Gmail watch API
	GroupWatch = "watch"

	JobHeartbeat     = "heartbeat"
	JobWatchRenewal  = "watch_renewal"
	watchRenewalTime = 10 * time.Minute

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second
)

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupWatch: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg      *config.Config
	log      logger.Logger
	cron     *cronv3.Cron
	cronMu   sync.Mutex
	k8s      kubernetes.Interface
	stopCh   chan struct{}
	stopOnce sync.Once
	jobIDs   map[string]cronv3.EntryID
	watch    interfaces.WatchService
}

func NewCronManager(cfg *config.Config, log logger.Logger, k8s kubernetes.Interface, watch interfaces.WatchService) *CronManager {
	return &CronManager{
		cfg:    cfg,
		log:    log,
		k8s:    k8s,
		stopCh: make(chan struct{}),
		jobIDs: make(map[string]cronv3.EntryID),
		watch:  watch,
	}
}

// Start runs the scheduler on the elected leader only. Without a Kubernetes
// client, or with LOCAL_DEV=true, it starts right away.
func (cm *CronManager) Start(podName, namespace string) error {
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		return cm.StartCron()
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      "mailpulse-cron-leader",
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	errCh := make(chan error, 1)

	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					if err := cm.StartCron(); err != nil {
						cm.log.Errorf("Failed to start crons as leader: %v", err)
					}
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-cm.stopCh
			cancel()
		}()
		le.Run(ctx)
	}()

	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		return cm.StartCron()
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Stop waits for running jobs. Safe to call more than once.
func (cm *CronManager) Stop() {
	cm.cronMu.Lock()
	c := cm.cron
	cm.cron = nil
	cm.cronMu.Unlock()

	if c != nil {
		cm.log.Info("Stopping cron manager")
		<-c.Stop().Done()
	}
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}

// Jobs lists the registered job names.
func (cm *CronManager) Jobs() []string {
	cm.cronMu.Lock()
	defer cm.cronMu.Unlock()
	names := make([]string, 0, len(cm.jobIDs))
	for name := range cm.jobIDs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (cm *CronManager) registerJobs(c *cronv3.Cron, cronConfig cron_config.Config) error {
	if cronConfig.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		id, err := c.AddFunc(cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
		if err != nil {
			return err
		}
		cm.jobIDs[JobHeartbeat] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cronConfig.CronScheduleHeartbeat)
	}

	if cronConfig.CronScheduleWatchRenewal != "" && cm.watch != nil {
		id, err := c.AddFunc(cronConfig.CronScheduleWatchRenewal, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupWatch].Lock()
			defer jobLocks.locks[GroupWatch].Unlock()
			cm.renewWatches()
		})
		if err != nil {
			return err
		}
		cm.jobIDs[JobWatchRenewal] = id
		cm.log.Infof("Registered watch renewal job with schedule: %s", cronConfig.CronScheduleWatchRenewal)
	}
	return nil
}

func (cm *CronManager) StartCron() error {
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		return err
	}

	cm.log.Info("Starting cron manager")
	c := cronv3.New(
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	)

	cm.cronMu.Lock()
	defer cm.cronMu.Unlock()
	if err := cm.registerJobs(c, cronConfig); err != nil {
		return err
	}
	c.Start()
	cm.cron = c
	return nil
}

func (cm *CronManager) renewWatches() {
	ctx, cancel := context.WithTimeout(context.Background(), watchRenewalTime)
	defer cancel()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.renewWatches")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if err := cm.watch.RenewExpiringWatches(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Watch renewal finished with errors: %v", err)
	}
}

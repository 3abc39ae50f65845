package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/shadowd/pkg/cloud"
	"github.com/cuemby/shadowd/pkg/config"
	"github.com/cuemby/shadowd/pkg/control"
	"github.com/cuemby/shadowd/pkg/events"
	"github.com/cuemby/shadowd/pkg/lock"
	"github.com/cuemby/shadowd/pkg/log"
	"github.com/cuemby/shadowd/pkg/notify"
	"github.com/cuemby/shadowd/pkg/queue"
	"github.com/cuemby/shadowd/pkg/shadow"
	"github.com/cuemby/shadowd/pkg/storage"
	"github.com/cuemby/shadowd/pkg/strategy"
	"github.com/cuemby/shadowd/pkg/syncengine"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

// Engine wires shadowd's components into one addressable, startable
// service.
type Engine struct {
	cfg      *config.Snapshot
	store    storage.Store
	gate     *lock.Gate
	notify   *notify.Broker
	events   *events.Broker
	queue    *queue.Queue
	cloud    *cloud.Client
	subs     *cloud.Subscriptions
	executor *syncengine.Executor
	sync     strategy.Strategy
	Shadow   *shadow.Handler
	Control  *control.Server
	GRPC     *control.GRPCServer
}

// New assembles an Engine from cfg. transport is the caller-supplied
// cloud message transport (MQTT connect/publish/subscribe is outside
// this module's scope; see pkg/cloud.Transport).
func New(cfg *config.Config, transport cloud.Transport) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create data dir: %w", err)
	}
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("engine: open store: %w", err)
	}

	snapshot := config.NewSnapshot(cfg)
	gate := lock.New()
	notifyBroker := notify.NewBroker()
	eventBroker := events.NewBroker()
	q := queue.NewWithCapacity(cfg.QueueCapacity)
	set := newSyncSet(snapshot)
	q.SetDirectionSource(set)

	cloudClient := cloud.New(transport, cloud.Config{CallsPerSec: cfg.CloudCallsPerSec, Burst: cfg.CloudBurst})
	subs := cloud.NewSubscriptions(cloudClient, q)

	executor := &syncengine.Executor{
		Store:     store,
		Cloud:     cloudClient,
		Gate:      gate,
		Notify:    notifyBroker,
		Events:    eventBroker,
		Queue:     q,
		Direction: set,
		MaxBytes:  cfg.MaxDocumentBytes,
	}

	var sched strategy.Strategy
	if cfg.Strategy.Mode == "periodic" {
		sched = strategy.NewPeriodic(q, executor, cfg.Strategy.Interval)
	} else {
		sched = strategy.NewImmediate(q, executor, 4)
	}

	shadowHandler := &shadow.Handler{
		Store:    store,
		Gate:     gate,
		Notify:   notifyBroker,
		Queue:    q,
		SyncSet:  set,
		MaxBytes: cfg.MaxDocumentBytes,
	}

	e := &Engine{
		cfg:      snapshot,
		store:    store,
		gate:     gate,
		notify:   notifyBroker,
		events:   eventBroker,
		queue:    q,
		cloud:    cloudClient,
		subs:     subs,
		executor: executor,
		sync:     sched,
		Shadow:   shadowHandler,
		GRPC:     control.NewGRPCServer(),
	}
	e.Control = control.NewServer(Version, map[string]func() error{
		"store": e.checkStore,
		"cloud": e.checkCloud,
	})

	cloudClient.OnConnect(e.handleCloudConnect)
	cloudClient.OnDisconnect(e.handleCloudDisconnect)

	return e, nil
}

// Start subscribes every configured sync-set shadow to cloud push
// updates and, if the cloud transport is already connected, starts the
// sync strategy.
func (e *Engine) Start() error {
	eventLogger := log.WithComponent("engine")
	e.events.Start()

	for _, entry := range e.cfg.Get().Entries() {
		if err := e.subs.Subscribe(entry.Identity); err != nil {
			eventLogger.Warn().Str("shadow", entry.Identity.String()).Err(err).Msg("failed to subscribe to cloud push topics")
		}
	}

	if e.cloud.Connected() {
		e.sync.Start()
		e.GRPC.SetServing(true)
	}
	return nil
}

// Stop stops the sync strategy, the event broker, and releases the
// local store.
func (e *Engine) Stop() error {
	e.sync.Stop()
	e.events.Stop()
	return e.store.Close()
}

func (e *Engine) handleCloudConnect() {
	e.sync.Start()
	e.GRPC.SetServing(true)
	e.events.Publish(&events.Event{Type: events.TypeCloudConnected, Timestamp: time.Now()})
}

func (e *Engine) handleCloudDisconnect() {
	e.sync.Stop()
	e.GRPC.SetServing(false)
	e.events.Publish(&events.Event{Type: events.TypeCloudDisconnected, Timestamp: time.Now()})
}

func (e *Engine) checkStore() error {
	_, err := e.store.ListNamedShadows("", 0, 1)
	return err
}

func (e *Engine) checkCloud() error {
	if !e.cloud.Connected() {
		return fmt.Errorf("cloud transport not connected")
	}
	return nil
}

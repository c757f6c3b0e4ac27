// Package forwarder implements the Forwarder Facade (spec §4.H): the
// single entry point that owns configuration, the dispatch table, the
// content store, the transport, the pipelines to downstream peers, the
// MTU predictor, and the optional offload adapter, and exposes the
// lifecycle and control-plane surface described in spec §6.
//
// Grounded on the teacher's fw/cmd/cmd.go + fw/cmd/yanfd/main.go
// (config-driven daemon construction, idempotent Start/Stop), generalized
// to the Pausing/Paused/Resuming states spec §4.H adds beyond the
// teacher's plain running/stopped daemon.
package forwarder

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ben-mansor/muDCN-v2/internal/uerrors"
	"github.com/ben-mansor/muDCN-v2/internal/ulog"
	"github.com/ben-mansor/muDCN-v2/pkg/cstore"
	"github.com/ben-mansor/muDCN-v2/pkg/dispatch"
	"github.com/ben-mansor/muDCN-v2/pkg/mtu"
	"github.com/ben-mansor/muDCN-v2/pkg/ndn"
	"github.com/ben-mansor/muDCN-v2/pkg/offload"
	"github.com/ben-mansor/muDCN-v2/pkg/pipeline"
	"github.com/ben-mansor/muDCN-v2/pkg/transport"
)

// State is the facade's lifecycle position (spec §4.H): Stopped ->
// Starting -> Running -> (Pausing -> Paused -> Resuming -> Running)* ->
// Stopping -> Stopped. Error is entered when Start fails to start the
// transport; no method leaves Error (Start and Stop both return
// InvalidState from it).
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StatePausing
	StatePaused
	StateResuming
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StatePausing:
		return "Pausing"
	case StatePaused:
		return "Paused"
	case StateResuming:
		return "Resuming"
	case StateStopping:
		return "Stopping"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// OffloadConfig mirrors spec §6's optional offload config record.
type OffloadConfig struct {
	Interface   string       `yaml:"interface"`
	ProgramPath string       `yaml:"program_path"`
	Mode        offload.Mode `yaml:"mode"`
	CSSize      int          `yaml:"cs_size"`
	CSTTLs      int          `yaml:"cs_ttl"`
	MapPinPath  string       `yaml:"map_pin_path"`
}

// Config is the single process configuration record described in spec §6,
// expanded with the ambient logging and interface-sampling fields SPEC_FULL
// adds. Durations are stored as plain ints in the units their field names
// say (matching how a human would write the YAML file) and converted at
// the point of use.
type Config struct {
	BindAddress string `yaml:"bind_address"`
	Port        uint16 `yaml:"port"`

	MTU    int `yaml:"mtu"`
	MinMTU int `yaml:"min_mtu"`
	MaxMTU int `yaml:"max_mtu"`

	CacheCapacity   int `yaml:"cache_capacity"`
	IdleTimeoutS    int `yaml:"idle_timeout_s"`
	MetricsPort     int `yaml:"metrics_port"`
	Retries         int `yaml:"retries"`
	RetryIntervalMs int `yaml:"retry_interval_ms"`

	EnableMLMTUPrediction bool `yaml:"enable_ml_mtu_prediction"`
	MLPredictionIntervalS int  `yaml:"ml_prediction_interval_s"`

	Offload *OffloadConfig `yaml:"offload"`

	LogLevel        string `yaml:"log_level"`
	LogFile         string `yaml:"log_file"`
	SampleInterface string `yaml:"sample_interface"`
}

func (c Config) withDefaults() Config {
	if c.MTU <= 0 {
		c.MTU = 1400
	}
	if c.MinMTU <= 0 {
		c.MinMTU = mtu.DefaultMinMTU
	}
	if c.MaxMTU <= 0 {
		c.MaxMTU = mtu.DefaultMaxMTU
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = 10000
	}
	if c.IdleTimeoutS <= 0 {
		c.IdleTimeoutS = 30
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.RetryIntervalMs <= 0 {
		c.RetryIntervalMs = 100
	}
	if c.MLPredictionIntervalS <= 0 {
		c.MLPredictionIntervalS = 5
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	return c
}

// Snapshot is the aggregated statistics record exposed by Stats (spec
// §4.J, §6 metrics()).
type Snapshot struct {
	State            State
	ContentStoreSize int
	Connections      map[string]transport.State
	Pipelines        map[string]pipeline.Stats
	CurrentMTU       map[string]int
	Offload          *offload.Metrics
	OffloadStatus    string
}

// Forwarder is the facade wiring the dispatch table, content store,
// transport, per-peer pipelines, MTU predictor, and optional offload
// adapter into the single entry point spec §4.H describes.
type Forwarder struct {
	cfg Config

	mu    sync.Mutex
	state State

	table   *dispatch.Table
	store   *cstore.Store
	tr      *transport.Transport
	off     *offload.Adapter
	sampler *mtu.HostInterfaceSampler

	pipelinesMu sync.Mutex
	pipelines   map[string]*pipeline.Pipeline

	predictorsMu sync.Mutex
	predictors   map[string]*mtu.Predictor

	paused atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Forwarder from cfg. The transport listener is bound
// immediately (so a port conflict fails construction, matching spec §7's
// "fatal endpoint error... causes the facade to refuse Start" by failing
// even earlier, at New), but nothing is accepted until Start.
func New(cfg Config) (*Forwarder, error) {
	cfg = cfg.withDefaults()

	if err := ulogConfigure(cfg); err != nil {
		return nil, err
	}

	f := &Forwarder{
		cfg:        cfg,
		state:      StateStopped,
		table:      dispatch.NewTable(),
		store:      cstore.NewStore(cfg.CacheCapacity, time.Duration(cfg.IdleTimeoutS)*time.Second),
		pipelines:  make(map[string]*pipeline.Pipeline),
		predictors: make(map[string]*mtu.Predictor),
		sampler:    mtu.NewHostInterfaceSampler(cfg.SampleInterface),
	}

	tr, err := transport.New(transport.Config{
		BindAddress: cfg.BindAddress,
		Port:        cfg.Port,
		IdleTimeout: time.Duration(cfg.IdleTimeoutS) * time.Second,
		InitialMTU:  cfg.MTU,
	}, f.serve)
	if err != nil {
		return nil, err
	}
	f.tr = tr

	if cfg.Offload != nil {
		f.off = offload.New(offload.Config{
			Interface:   cfg.Offload.Interface,
			ProgramPath: cfg.Offload.ProgramPath,
			Mode:        cfg.Offload.Mode,
			CSSize:      cfg.Offload.CSSize,
			CSTTL:       time.Duration(cfg.Offload.CSTTLs) * time.Second,
			MapPinPath:  cfg.Offload.MapPinPath,
		})
	}

	return f, nil
}

func ulogConfigure(cfg Config) error {
	level, err := ulog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return uerrors.NewInvalidArgumentError(err.Error())
	}
	var file *ulog.FileConfig
	if cfg.LogFile != "" {
		file = &ulog.FileConfig{Path: cfg.LogFile}
	}
	ulog.Configure(level, file)
	return nil
}

// Close releases the bound listener socket without running the Stop
// lifecycle transition. Only needed for a Forwarder that was constructed
// via New but never Started (a Started Forwarder should go through Stop,
// which closes the listener itself).
func (f *Forwarder) Close() error {
	return f.tr.Close()
}

// Addr returns the transport's bound local address.
func (f *Forwarder) Addr() string { return f.tr.Addr().String() }

// Start transitions Stopped -> Starting -> Running: starts the transport
// accept loop on the listener New already bound, loads the offload program if configured, and
// starts the MTU prediction loop if enabled. Idempotent from Running;
// InvalidState from any other state (spec §4.H).
func (f *Forwarder) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.state == StateRunning {
		f.mu.Unlock()
		return nil
	}
	if f.state != StateStopped {
		state := f.state
		f.mu.Unlock()
		return uerrors.NewInvalidStateError(state.String(), "Start")
	}
	f.state = StateStarting
	f.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	if err := f.tr.Start(runCtx); err != nil {
		f.setState(StateError)
		return err
	}

	if f.off != nil {
		if err := f.off.Load(runCtx); err != nil {
			ulog.Warn("forwarder", "offload load failed, continuing in software-only mode", "err", err)
		}
	}

	if f.cfg.EnableMLMTUPrediction {
		f.wg.Add(1)
		go f.predictLoop(runCtx)
	}

	f.setState(StateRunning)
	ulog.Info("forwarder", "started", "addr", f.tr.Addr().String())
	return nil
}

// Stop transitions Running or Paused -> Stopping -> Stopped: cancels the
// prediction loop, unloads the offload program, and stops the transport.
// Idempotent from Stopped; InvalidState otherwise.
func (f *Forwarder) Stop() error {
	f.mu.Lock()
	if f.state == StateStopped {
		f.mu.Unlock()
		return nil
	}
	if f.state != StateRunning && f.state != StatePaused {
		state := f.state
		f.mu.Unlock()
		return uerrors.NewInvalidStateError(state.String(), "Stop")
	}
	f.state = StateStopping
	f.mu.Unlock()

	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()

	if f.off != nil {
		if status, _ := f.off.Status(); status == offload.StatusRunning {
			_ = f.off.Unload(context.Background())
		}
	}

	_ = f.tr.Stop()

	f.setState(StateStopped)
	ulog.Info("forwarder", "stopped")
	return nil
}

// Pause transitions Running -> Pausing -> Paused: new Interests delivered
// to serve are Nacked with Congestion while paused; in-flight
// work already admitted is unaffected (spec §4.H).
func (f *Forwarder) Pause() error {
	f.mu.Lock()
	if f.state == StatePaused {
		f.mu.Unlock()
		return nil
	}
	if f.state != StateRunning {
		state := f.state
		f.mu.Unlock()
		return uerrors.NewInvalidStateError(state.String(), "Pause")
	}
	f.state = StatePausing
	f.mu.Unlock()

	f.paused.Store(true)
	f.setState(StatePaused)
	return nil
}

// Resume transitions Paused -> Resuming -> Running.
func (f *Forwarder) Resume() error {
	f.mu.Lock()
	if f.state == StateRunning {
		f.mu.Unlock()
		return nil
	}
	if f.state != StatePaused {
		state := f.state
		f.mu.Unlock()
		return uerrors.NewInvalidStateError(state.String(), "Resume")
	}
	f.state = StateResuming
	f.mu.Unlock()

	f.paused.Store(false)
	f.setState(StateRunning)
	return nil
}

// Shutdown is an alias for Stop kept for parity with spec §6's named
// control-plane operation.
func (f *Forwarder) Shutdown() error { return f.Stop() }

// State returns the facade's current lifecycle state.
func (f *Forwarder) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Forwarder) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// RegisterProducer registers a local handler as the producer for prefix
// (spec §4.E, §4.H).
func (f *Forwarder) RegisterProducer(prefix ndn.Name, handler dispatch.Handler, priority int) uint64 {
	return f.table.RegisterProducer(prefix, handler, priority)
}

// RegisterRoute registers a forwarding route to peerAddr for prefix.
func (f *Forwarder) RegisterRoute(prefix ndn.Name, peerAddr string, priority int) uint64 {
	return f.table.RegisterRoute(prefix, peerAddr, priority)
}

// Unregister removes a prior registration.
func (f *Forwarder) Unregister(id uint64) error {
	return f.table.Unregister(id)
}

// SendInterest is the facade's outbound entry point (spec §6
// send_interest): it routes interest to peerAddr through that peer's
// bounded pipeline, which retries around transport.SendInterestOnce.
func (f *Forwarder) SendInterest(ctx context.Context, peerAddr string, interest *ndn.Interest) (*ndn.Data, error) {
	return f.pipelineFor(peerAddr).SendInterest(ctx, interest)
}

func (f *Forwarder) pipelineFor(peerAddr string) *pipeline.Pipeline {
	f.pipelinesMu.Lock()
	defer f.pipelinesMu.Unlock()

	if p, ok := f.pipelines[peerAddr]; ok {
		return p
	}
	p := pipeline.New(peerAddr, func(ctx context.Context, i *ndn.Interest) (*ndn.Data, error) {
		return f.tr.SendInterestOnce(ctx, peerAddr, i)
	}, pipeline.Config{
		Retry: pipeline.RetryPolicy{
			MaxAttempts:   f.cfg.Retries,
			BaseDelayMs:   f.cfg.RetryIntervalMs,
			MaxDelayMs:    f.cfg.RetryIntervalMs * 50,
			BackoffFactor: 2.0,
			Jitter:        true,
		},
	})
	f.pipelines[peerAddr] = p
	return p
}

// serve is the transport.Handler bound into the Transport at New: it
// serves from the Content Store, dispatches to local producers or
// forwards along routes, and mirrors fresh Data into the offload adapter
// when configured (spec §4.H, §4.I).
func (f *Forwarder) serve(ctx context.Context, peer string, interest *ndn.Interest) (*ndn.Data, error) {
	if f.paused.Load() {
		return nil, uerrors.NewNackError(uerrors.NackCongestion, "forwarder paused")
	}

	if !interest.MustBeFresh {
		if data, ok := f.store.Get(interest.Name); ok {
			return data, nil
		}
	}

	entry, ok := f.table.Resolve(interest.Name)
	if !ok {
		return nil, uerrors.NewNackError(uerrors.NackNoRoute, "no producer or route for "+interest.Name.String())
	}

	var data *ndn.Data
	var err error
	switch entry.Kind {
	case dispatch.KindProducer:
		data, err = entry.Handler(ctx, interest)
	case dispatch.KindRoute:
		data, err = f.SendInterest(ctx, entry.PeerAddr, interest)
	default:
		return nil, uerrors.NewNackError(uerrors.NackNoRoute, "unknown dispatch entry kind")
	}
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(data.FreshnessMs) * time.Millisecond
	if ttl <= 0 {
		ttl = time.Duration(f.cfg.IdleTimeoutS) * time.Second
	}
	f.store.Insert(data.Name, data, ttl)

	if f.off != nil {
		if mirrorErr := f.off.AddToCS(ctx, data); mirrorErr != nil {
			ulog.Warn("forwarder", "offload content-store mirror failed", "err", mirrorErr)
		}
	}

	return data, nil
}

// MTUGet returns the facade's configured target MTU.
func (f *Forwarder) MTUGet() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg.MTU
}

// MTUSet validates value to [576, 9000] (spec §4.H) and applies it as the
// new target MTU: the config default for future connections, and an
// immediate override on every connection currently tracked by the
// transport.
func (f *Forwarder) MTUSet(value int) error {
	if value < 576 || value > 9000 {
		return uerrors.NewInvalidArgumentError("mtu must be in [576, 9000]")
	}

	f.mu.Lock()
	f.cfg.MTU = value
	f.mu.Unlock()

	for addr := range f.tr.ConnectionStates() {
		if frag, ok := f.tr.Fragmenter(addr); ok {
			_ = frag.SetMTU(value)
		}
	}
	return nil
}

// predictLoop runs the MTU predictor for every connection the transport
// currently tracks, lazily creating one mtu.Predictor per peer (spec
// §4.G, §4.D: MTU self-adaptation is per-connection).
func (f *Forwarder) predictLoop(ctx context.Context) {
	defer f.wg.Done()
	ticker := time.NewTicker(time.Duration(f.cfg.MLPredictionIntervalS) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for addr := range f.tr.ConnectionStates() {
				if _, ok := f.tr.Fragmenter(addr); !ok {
					continue
				}
				f.predictorFor(addr).Tick()
			}
		}
	}
}

func (f *Forwarder) predictorFor(addr string) *mtu.Predictor {
	f.predictorsMu.Lock()
	defer f.predictorsMu.Unlock()

	if p, ok := f.predictors[addr]; ok {
		return p
	}
	source := func() mtu.Features {
		stats, _ := f.tr.ConnStats(addr)
		return mtu.Features{
			AvgRTTMs:         stats.AvgRTTMs,
			AvgThroughputBps: f.sampler.SampleThroughputBps(),
			CongestionWindow: stats.CongestionWindow,
			AvgPacketSize:    int(stats.AvgDataSize),
			TimeOfDayHour:    time.Now().Hour(),
		}
	}
	frag, _ := f.tr.Fragmenter(addr)
	p := &mtu.Predictor{
		Model:    mtu.NewRuleBasedModel(),
		Source:   source,
		Target:   frag,
		MinMTU:   f.cfg.MinMTU,
		MaxMTU:   f.cfg.MaxMTU,
		Interval: time.Duration(f.cfg.MLPredictionIntervalS) * time.Second,
	}
	f.predictors[addr] = p
	return p
}

// Stats returns the aggregated statistics snapshot described by spec
// §4.J and exposed via §6's metrics() control-plane operation.
func (f *Forwarder) Stats() Snapshot {
	snap := Snapshot{
		State:            f.State(),
		ContentStoreSize: f.store.Len(),
		Connections:      f.tr.ConnectionStates(),
		Pipelines:        make(map[string]pipeline.Stats),
		CurrentMTU:       make(map[string]int),
	}

	f.pipelinesMu.Lock()
	for addr, p := range f.pipelines {
		snap.Pipelines[addr] = p.Stats()
	}
	f.pipelinesMu.Unlock()

	for addr := range snap.Connections {
		if frag, ok := f.tr.Fragmenter(addr); ok {
			snap.CurrentMTU[addr] = frag.MTU()
		}
	}

	if f.off != nil {
		m := f.off.Metrics()
		snap.Offload = &m
		status, _ := f.off.Status()
		snap.OffloadStatus = status.String()
	}

	return snap
}

// Metrics is an alias for Stats kept for parity with spec §6's named
// control-plane operation metrics().
func (f *Forwarder) Metrics() Snapshot { return f.Stats() }

// CreateConnection eagerly dials addr:port and returns its conn_id (spec
// §6 create_connection). The facade identifies connections by remote
// address, so the returned conn_id is that address; SendInterest and
// RegisterRoute also dial lazily on first use, so this call only matters
// when a caller wants to observe dial failure up front.
func (f *Forwarder) CreateConnection(ctx context.Context, addr string, port uint16) (string, error) {
	peer := addr
	if port != 0 {
		peer = net.JoinHostPort(addr, strconv.Itoa(int(port)))
	}
	return f.tr.Connect(ctx, peer)
}

// CloseConnection closes the named connection (spec §6 close_connection).
func (f *Forwarder) CloseConnection(connID string) error {
	return f.tr.CloseConnection(connID)
}

// ConnectionStats returns the named connection's transport-level
// statistics (spec §6 connection_stats).
func (f *Forwarder) ConnectionStats(connID string) (transport.Stats, error) {
	stats, ok := f.tr.ConnStats(connID)
	if !ok {
		return transport.Stats{}, uerrors.NewNotFoundError("connection " + connID)
	}
	return stats, nil
}

// PipelineStats returns the named peer's outbound pipeline statistics
// (spec §6 pipeline_stats). It does not create a pipeline as a side
// effect: a peer that has never sent an Interest has no pipeline yet.
func (f *Forwarder) PipelineStats(connID string) (pipeline.Stats, error) {
	f.pipelinesMu.Lock()
	p, ok := f.pipelines[connID]
	f.pipelinesMu.Unlock()
	if !ok {
		return pipeline.Stats{}, uerrors.NewNotFoundError("pipeline for " + connID)
	}
	return p.Stats(), nil
}

// MTUPredict runs the default rule-based model against features for a
// one-shot recommendation, without touching any connection's fragmenter
// (spec §6 mtu_predict). It uses the facade's current MTU and configured
// bounds as the prediction's starting point and clamp range.
func (f *Forwarder) MTUPredict(features mtu.Features) int {
	model := mtu.NewRuleBasedModel()
	f.mu.Lock()
	current, min, max := f.cfg.MTU, f.cfg.MinMTU, f.cfg.MaxMTU
	f.mu.Unlock()
	return model.Predict(features, current, min, max)
}

// MTUOverride applies *value through MTUSet: the facade's target MTU and
// every tracked connection's MTU (spec §6 mtu_override). The predictor is
// not suspended; when prediction is enabled it keeps adjusting each
// connection's MTU on later ticks. A nil value does nothing.
func (f *Forwarder) MTUOverride(value *int) error {
	if value == nil {
		return nil
	}
	return f.MTUSet(*value)
}

// Package offload implements the optional kernel-cache-mirror adapter
// (spec §4.I): an out-of-process attach/control surface that mirrors a
// bounded subset of the Content Store into a data plane program's own
// cache and reports that program's counters back through Metrics.
//
// This is the only package permitted to shell out to external programs;
// every other component stays in-process. Grounded on
// original_source/rust_ndn_transport/src/xdp.rs's XdpManager, which
// drives `ip link set ... xdp` and `bpftool map ...` via
// std::process::Command — here std::process::Command becomes os/exec,
// the one external-process-attach mechanism the example pack offers (no
// pack dependency wraps BPF/XDP program management, so this package is
// necessarily stdlib-only; see DESIGN.md).
package offload

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ben-mansor/muDCN-v2/internal/uerrors"
	"github.com/ben-mansor/muDCN-v2/internal/ulog"
	"github.com/ben-mansor/muDCN-v2/pkg/ndn"
)

// Mode is the XDP attach mode (spec §6 process configuration).
type Mode string

const (
	ModeSKB Mode = "skb"
	ModeDRV Mode = "drv"
	ModeHW  Mode = "hw"
)

// Config configures one Adapter (spec §6: interface, program_path, mode,
// cs_size, cs_ttl, map_pin_path).
type Config struct {
	Interface    string
	ProgramPath  string
	Mode         Mode
	CSSize       int
	CSTTL        time.Duration
	MapPinPath   string
	MetricsEvery time.Duration
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeSKB
	}
	if c.CSSize <= 0 {
		c.CSSize = 10000
	}
	if c.CSTTL <= 0 {
		c.CSTTL = 60 * time.Second
	}
	if c.MapPinPath == "" {
		c.MapPinPath = "/sys/fs/bpf/ndn"
	}
	if c.MetricsEvery <= 0 {
		c.MetricsEvery = 10 * time.Second
	}
	return c
}

// Status is the adapter's current attach state.
type Status int

const (
	StatusNotLoaded Status = iota
	StatusRunning
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "Running"
	case StatusFailed:
		return "Failed"
	default:
		return "NotLoaded"
	}
}

// Metrics mirrors the counters the attached program reports (spec §4.I),
// keyed the same way as original_source's XdpMetrics.
type Metrics struct {
	PacketsProcessed  uint64
	Interests         uint64
	DataPackets       uint64
	CacheHits         uint64
	CacheMisses       uint64
	CacheSize         uint64
	CacheEvictions    uint64
	Errors            uint64
	AvgProcessingNs   uint64
}

// runner abstracts process execution so tests can substitute a fake
// without actually invoking ip/bpftool.
type runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(errBuf.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s: %s", name, msg)
	}
	return out.String(), nil
}

// Adapter is the offload control surface (spec §4.I): load/unload the
// external program, mirror Data into its cache, and report its metrics.
type Adapter struct {
	cfg Config
	run runner

	mu         sync.Mutex
	status     Status
	failReason string
	metrics    Metrics

	stopMetrics context.CancelFunc
	wg          sync.WaitGroup
}

// New builds an Adapter for cfg. The program is not attached until Load
// is called.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg.withDefaults(), run: execRunner{}, status: StatusNotLoaded}
}

// Load attaches cfg.ProgramPath to cfg.Interface in the configured mode,
// configures the content-store mirror, and starts periodic metrics
// polling. Grounded on XdpManager::load/configure_content_store.
func (a *Adapter) Load(ctx context.Context) error {
	_, err := a.run.Run(ctx, "ip", "link", "set", "dev", a.cfg.Interface,
		"xdp", "obj", a.cfg.ProgramPath, "mode", string(a.cfg.Mode))
	if err != nil {
		a.setFailed(err.Error())
		return uerrors.NewOffloadError("attach program to "+a.cfg.Interface, err)
	}

	if _, err := a.run.Run(ctx, "bpftool", "map", "update", "pinned",
		a.cfg.MapPinPath+"/cs_config",
		"key", "0", "0", "0", "0",
		"value", strconv.Itoa(a.cfg.CSSize), strconv.Itoa(int(a.cfg.CSTTL.Seconds())), "0", "0"); err != nil {
		// Not every attached program exposes a cs_config map; continue
		// in degraded mode rather than fail the whole load.
		ulog.Warn("offload", "could not configure content-store mirror", "err", err)
	}

	a.mu.Lock()
	a.status = StatusRunning
	a.failReason = ""
	a.mu.Unlock()

	a.startMetricsLoop()
	ulog.Info("offload", "program attached", "interface", a.cfg.Interface, "mode", a.cfg.Mode)
	return nil
}

// Unload stops metrics polling and detaches the program.
func (a *Adapter) Unload(ctx context.Context) error {
	a.mu.Lock()
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	a.mu.Unlock()
	a.wg.Wait()

	_, err := a.run.Run(ctx, "ip", "link", "set", "dev", a.cfg.Interface, "xdp", "off")
	if err != nil {
		a.setFailed(err.Error())
		return uerrors.NewOffloadError("detach program from "+a.cfg.Interface, err)
	}

	a.mu.Lock()
	a.status = StatusNotLoaded
	a.mu.Unlock()
	ulog.Info("offload", "program detached", "interface", a.cfg.Interface)
	return nil
}

// AddToCS mirrors a Data packet into the attached program's cache.
func (a *Adapter) AddToCS(ctx context.Context, data *ndn.Data) error {
	encoded := ndn.EncodeData(data)
	_, err := a.run.Run(ctx, "bpftool", "map", "update", "pinned",
		a.cfg.MapPinPath+"/content_store",
		"key", "string", data.Name.String(),
		"value", "hex", hex.EncodeToString(encoded))
	if err != nil {
		return uerrors.NewOffloadError("mirror "+data.Name.String()+" into content store", err)
	}
	return nil
}

// ClearCS flushes the attached program's content-store mirror.
func (a *Adapter) ClearCS(ctx context.Context) error {
	_, err := a.run.Run(ctx, "bpftool", "map", "flush", "pinned", a.cfg.MapPinPath+"/content_store")
	if err != nil {
		return uerrors.NewOffloadError("flush content store", err)
	}
	return nil
}

// Status returns the adapter's current attach state and, if Failed, the
// last failure reason.
func (a *Adapter) Status() (Status, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status, a.failReason
}

// Metrics returns the last polled metrics snapshot.
func (a *Adapter) Metrics() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metrics
}

func (a *Adapter) setFailed(reason string) {
	a.mu.Lock()
	a.status = StatusFailed
	a.failReason = reason
	a.mu.Unlock()
}

func (a *Adapter) startMetricsLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.stopMetrics = cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.cfg.MetricsEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m, err := a.pollMetrics(ctx)
				if err != nil {
					ulog.Error("offload", "metrics poll failed", "err", err)
					continue
				}
				a.mu.Lock()
				a.metrics = m
				a.mu.Unlock()
			}
		}
	}()
}

// pollMetrics reads the program's metrics map via bpftool, parsing the
// same "key: N ... value: N" line shape XdpManager::read_xdp_metrics
// expects.
func (a *Adapter) pollMetrics(ctx context.Context) (Metrics, error) {
	out, err := a.run.Run(ctx, "bpftool", "map", "dump", "pinned", a.cfg.MapPinPath+"/metrics")
	if err != nil {
		return Metrics{}, uerrors.NewOffloadError("dump metrics map", err)
	}

	var m Metrics
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "key:") || !strings.Contains(line, "value:") {
			continue
		}
		parts := strings.SplitN(line, "value:", 2)
		if len(parts) != 2 {
			continue
		}
		keyParts := strings.SplitN(parts[0], "key:", 2)
		if len(keyParts) != 2 {
			continue
		}
		key := strings.TrimSpace(keyParts[1])
		value, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			continue
		}
		switch key {
		case "0":
			m.PacketsProcessed = value
		case "1":
			m.Interests = value
		case "2":
			m.DataPackets = value
		case "3":
			m.CacheHits = value
		case "4":
			m.CacheMisses = value
		case "5":
			m.CacheSize = value
		case "6":
			m.CacheEvictions = value
		case "7":
			m.Errors = value
		case "8":
			m.AvgProcessingNs = value
		}
	}
	return m, nil
}

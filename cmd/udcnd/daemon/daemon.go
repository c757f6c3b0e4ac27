// Package daemon wires the cobra command-line surface onto
// pkg/forwarder.Forwarder: load a YAML configuration file, start the
// facade, and wait for SIGINT/SIGTERM to shut it down.
//
// Grounded on the teacher's fw/cmd/cmd.go (CmdYaNFD: a single
// cobra.Command taking one CONFIG-FILE argument, toolutils.ReadYaml into
// a package-level config, NewYaNFD(config).Start(), then a signal
// channel blocking on os.Interrupt/syscall.SIGTERM before Stop()).
package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	goyaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/ben-mansor/muDCN-v2/internal/ulog"
	"github.com/ben-mansor/muDCN-v2/pkg/forwarder"
)

// Root is the udcnd command-line entry point.
var Root = &cobra.Command{
	Use:     "udcnd CONFIG-FILE",
	Short:   "NDN-over-QUIC forwarding daemon",
	Version: "0.1.0",
	Args:    cobra.ExactArgs(1),
	RunE:    run,
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args[0])
	if err != nil {
		return err
	}

	fwd, err := forwarder.New(cfg)
	if err != nil {
		return err
	}

	if err := fwd.Start(context.Background()); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	ulog.Info("udcnd", "received signal, shutting down", "signal", sig.String())

	return fwd.Stop()
}

// loadConfig reads a YAML configuration file into a forwarder.Config,
// matching the teacher's toolutils.ReadYaml-into-a-config idiom.
func loadConfig(path string) (forwarder.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return forwarder.Config{}, err
	}

	var cfg forwarder.Config
	if err := goyaml.Unmarshal(data, &cfg); err != nil {
		return forwarder.Config{}, err
	}
	return cfg, nil
}

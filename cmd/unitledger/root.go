package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"unitledger/internal/config"
	"unitledger/internal/core"
	"unitledger/internal/events"
	"unitledger/pkg/domain"
)

// app carries state shared by every subcommand of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	output  string
	account string
	cfg     config.Config
	logger  *slog.Logger
	out     io.Writer
	errOut  io.Writer
	// registry receives the service metrics; serve exposes it on /metrics.
	registry *prometheus.Registry
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out, errOut: errOut, registry: prometheus.NewRegistry()}
	root := &cobra.Command{
		Use:           "unitledger",
		Short:         "A ledger of ownable, breedable units",
		Long:          `unitledger keeps a registry of units: each has an owner, a fixed-size DNA payload, and optionally the pair of units it was bred from.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "",
		"config file (default: ./unitledger.yaml or ~/.config/unitledger/config.yaml)")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "json", "output format: json or yaml")
	root.PersistentFlags().StringVar(&a.account, "as", "", "acting account (env UNITLEDGER_ACCOUNT)")

	root.AddCommand(
		newServeCmd(a),
		newCreateCmd(a),
		newTransferCmd(a),
		newBreedCmd(a),
		newShowCmd(a),
		newListCmd(a),
		newLineageCmd(a),
		newBackupCmd(a),
	)
	return root
}

func (a *app) init() error {
	if a.output != "json" && a.output != "yaml" {
		return fmt.Errorf("--output must be json or yaml, got %q", a.output)
	}
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.NewLogger(a.errOut)
	if err != nil {
		return err
	}
	if a.account == "" {
		a.account = a.v.GetString("account")
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) caller() (domain.AccountID, error) {
	if a.account == "" {
		return "", errors.New("acting account required: pass --as or set UNITLEDGER_ACCOUNT")
	}
	return domain.AccountID(a.account), nil
}

// runtime is an opened store plus the service over it.
type runtime struct {
	store   core.PersistentStore
	service *core.Service
	closers []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// open builds the store, event sinks, and service from configuration.
func (a *app) open(ctx context.Context) (*runtime, error) {
	store, err := core.OpenPersistentStore(ctx, a.cfg.StorageOptions(), core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Storage.Driver, err)
	}
	rt := &runtime{store: store}
	rt.closers = append(rt.closers, func() {
		if err := store.Close(); err != nil {
			a.logger.Error("close store", "error", err)
		}
	})

	sinks := events.Multi{events.NewLogSink(a.logger)}
	if brokers := a.cfg.Events.KafkaBrokers; len(brokers) > 0 {
		kafka, err := events.NewKafkaSink(brokers, a.cfg.Events.KafkaTopic)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("kafka sink: %w", err)
		}
		rt.closers = append(rt.closers, kafka.Close)
		sinks = append(sinks, kafka)
	}

	rt.service = core.NewService(store,
		core.WithLogger(a.logger),
		core.WithEvents(sinks),
		core.WithMetricsRecorder(core.NewPrometheusRecorder(a.registry)),
		core.WithTracer(core.NewOTelTracer(nil)),
		core.WithStartID(domain.UnitID(a.cfg.Registry.StartID)),
		core.WithWalkLimit(a.cfg.Registry.WalkLimit),
	)
	return rt, nil
}

// withService opens the runtime, runs fn, and closes it.
func (a *app) withService(ctx context.Context, fn func(*core.Service) error) error {
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt.service)
}

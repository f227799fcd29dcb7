package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/tradewarden/internal/app"
	"github.com/ehrlich-b/tradewarden/internal/bot"
	"github.com/ehrlich-b/tradewarden/internal/config"
	"github.com/ehrlich-b/tradewarden/internal/logger"
	"github.com/ehrlich-b/tradewarden/internal/names"
	"github.com/ehrlich-b/tradewarden/internal/prompt"
	"github.com/ehrlich-b/tradewarden/internal/store"
	"github.com/ehrlich-b/tradewarden/internal/swarm"
)

const (
	exitUsage  = 2
	exitConfig = 3
	exitListen = 4
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func exitf(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

func main() {
	var (
		cfgPath string
		spawn   string
	)

	root := &cobra.Command{
		Use:           "twd",
		Short:         "tradewarden swarm daemon",
		Long:          "Supervises a fleet of trading bots: shared sector knowledge, hijack leases, telemetry, and the REST/websocket control plane.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), cfgPath, spawn)
		},
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", "tradewarden.yaml", "config file")
	root.Flags().StringVar(&spawn, "spawn", "", "initial composition, e.g. dynamic=19,ai=1")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "twd: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitUsage)
	}
}

func runDaemon(ctx context.Context, cfgPath, spawnFlag string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return exitf(exitConfig, "%v", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return exitf(exitConfig, "logger: %v", err)
	}

	composition, err := parseComposition(spawnFlag)
	if err != nil {
		return exitf(exitUsage, "%v", err)
	}

	rules, err := prompt.LoadRules(cfg.Rules.Path)
	if err != nil {
		return exitf(exitConfig, "%v", err)
	}
	det := prompt.NewDetector(rules)
	if cfg.Rules.HotReload {
		go det.Watch(ctx, cfg.Rules.Path)
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return exitf(exitConfig, "store: %v", err)
	}
	defer st.Close()

	lc, err := bot.NewLifecycle(st, names.New(cfg.Character.NameSeed),
		names.Complexity(cfg.Character.NameComplexity),
		bot.KnowledgeSharing(cfg.MultiCharacter.KnowledgeSharing))
	if err != nil {
		return exitf(exitConfig, "lifecycle: %v", err)
	}
	lc.ShipNames = cfg.Character.GenerateShipNames
	lc.ShipNums = cfg.Character.ShipNamesWithNumber

	rec, err := app.OpenRecorder(cfg.Record.Dir, "swarm")
	if err != nil {
		return exitf(exitConfig, "%v", err)
	}
	defer rec.Close()

	var mgr *swarm.Manager
	spawnFn := func(id, kind string) (*bot.Bot, error) {
		char, err := lc.CreateCharacter()
		if err != nil {
			return nil, err
		}
		botRec, err := app.OpenRecorder(cfg.Record.Dir, id)
		if err != nil {
			return nil, err
		}
		strat, err := app.BuildStrategy(cfg, botRec, kind)
		if err != nil {
			botRec.Close()
			return nil, err
		}
		var ship string
		if char.ShipName != nil {
			ship = *char.ShipName
		}
		opts := []bot.Option{
			bot.WithDialer(bot.TelnetDialer(cfg.Connection.Host, cfg.Connection.Port)),
		}
		if cfg.MultiCharacter.KnowledgeSharing == "shared" {
			opts = append(opts, bot.WithSharedKnowledge(mgr.SharedKnowledge()))
		}
		return bot.New(app.BotConfig(cfg, id, char.Name, ship), det, strat, botRec, opts...), nil
	}

	mgr = swarm.NewManager(swarm.Config{
		LeaseSeconds:   cfg.Swarm.LeaseSeconds,
		LeaseCeiling:   time.Duration(cfg.Swarm.LeaseCeilingSeconds) * time.Second,
		StatusInterval: time.Duration(cfg.Swarm.StatusIntervalSeconds) * time.Second,
	}, spawnFn, st, rec)

	srv := swarm.NewServer(mgr)
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Start(cfg.Swarm.Listen) }()
	defer srv.Close()

	if len(composition) > 0 {
		go func() {
			if err := mgr.WaitReady(ctx); err != nil {
				return
			}
			if _, err := mgr.Spawn(composition); err != nil {
				logger.Error("initial spawn failed", "err", err)
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() { runErr <- mgr.Run(ctx) }()

	select {
	case err := <-srvErr:
		if err != nil {
			return exitf(exitListen, "control plane: %v", err)
		}
		return nil
	case err := <-runErr:
		logger.Info("swarm drained")
		return err
	}
}

// parseComposition reads "dynamic=19,ai=1" into a spawn map.
func parseComposition(s string) (map[string]int, error) {
	out := make(map[string]int)
	if s == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("bad composition entry %q", part)
		}
		n, err := strconv.Atoi(kv[1])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad composition count %q", part)
		}
		if n > 0 {
			out[kv[0]] = n
		}
	}
	return out, nil
}

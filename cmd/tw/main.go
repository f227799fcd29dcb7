package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ehrlich-b/tradewarden/internal/app"
	"github.com/ehrlich-b/tradewarden/internal/bot"
	"github.com/ehrlich-b/tradewarden/internal/config"
	"github.com/ehrlich-b/tradewarden/internal/game"
	"github.com/ehrlich-b/tradewarden/internal/logger"
	"github.com/ehrlich-b/tradewarden/internal/names"
	"github.com/ehrlich-b/tradewarden/internal/prompt"
	"github.com/ehrlich-b/tradewarden/internal/record"
	"github.com/ehrlich-b/tradewarden/internal/store"
)

// Process exit codes.
const (
	exitOK         = 0
	exitUsage      = 2
	exitConfig     = 3
	exitConnection = 4
	exitDisorient  = 5
)

// exitError carries a process exit code up through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func exitf(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:           "tw",
		Short:         "tradewarden — autonomous TW2002 trading bot",
		Long:          "Connects to a TW2002 game over telnet, logs a character in, and trades until the credit target or turn budget is reached.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "tradewarden.yaml", "config file")
	root.AddCommand(checkCmd(&cfgPath), nameCmd(&cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "tw: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitUsage)
	}
}

func checkCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and prompt rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return exitf(exitConfig, "%v", err)
			}
			rules, err := prompt.LoadRules(cfg.Rules.Path)
			if err != nil {
				return exitf(exitConfig, "%v", err)
			}
			fmt.Printf("ok: %d prompt rules, strategy %s, server %s:%d\n",
				len(rules.Rules), cfg.Trading.Strategy, cfg.Connection.Host, cfg.Connection.Port)
			return nil
		},
	}
}

func nameCmd(cfgPath *string) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "names",
		Short: "Preview generated character names",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return exitf(exitConfig, "%v", err)
			}
			gen := names.New(cfg.Character.NameSeed)
			for i := 0; i < n; i++ {
				name, err := gen.Character(names.Complexity(cfg.Character.NameComplexity))
				if err != nil {
					return exitf(exitConfig, "%v", err)
				}
				if cfg.Character.GenerateShipNames {
					fmt.Printf("%s aboard %s\n", name, gen.Ship(cfg.Character.ShipNamesWithNumber))
				} else {
					fmt.Println(name)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "count", "n", 5, "how many names")
	return cmd
}

func runBot(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return exitf(exitConfig, "%v", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return exitf(exitConfig, "logger: %v", err)
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

	char, err := lc.CreateCharacter()
	if err != nil {
		return exitf(exitConfig, "create character: %v", err)
	}

	var inherited *game.Knowledge
	maxLives := cfg.MultiCharacter.MaxCharacters
	if !cfg.MultiCharacter.Enabled || maxLives < 1 {
		maxLives = 1
	}

	for life := 1; ; life++ {
		b, rec, err := assembleBot(cfg, det, char)
		if err != nil {
			return err
		}
		if inherited != nil {
			b.Knowledge().MergeFrom(inherited)
			inherited = nil
		}

		runErr := b.Run(ctx)
		status := b.Status()
		st.RecordSession(char.Name, status.Credits, status.TurnsUsed)
		printSummary(status, runErr)
		rec.Close()

		switch {
		case runErr == nil,
			errors.Is(runErr, bot.ErrTargetReached),
			errors.Is(runErr, bot.ErrTurnBudget),
			errors.Is(runErr, context.Canceled):
			return nil

		case errors.Is(runErr, bot.ErrCharacterDied):
			if life >= maxLives {
				st.RecordDeath(char.Name, true)
				logger.Info("character retired", "name", char.Name, "lives", life)
				return nil
			}
			next, inh, err := lc.Succeed(b)
			if err != nil {
				return exitf(exitConfig, "successor: %v", err)
			}
			char, inherited = next, inh
			logger.Info("respawning", "name", char.Name, "life", life+1)

		case errors.Is(runErr, game.ErrOrientationLost):
			return exitf(exitDisorient, "%v", runErr)

		default:
			// dial, login, and transport failures
			return exitf(exitConnection, "%v", runErr)
		}
	}
}

func assembleBot(cfg *config.Config, det *prompt.Detector, char *store.Character) (*bot.Bot, *record.Recorder, error) {
	id := "tw-" + uuid.New().String()[:8]
	rec, err := app.OpenRecorder(cfg.Record.Dir, id)
	if err != nil {
		return nil, nil, exitf(exitConfig, "%v", err)
	}

	strat, err := app.BuildStrategy(cfg, rec, cfg.Trading.Strategy)
	if err != nil {
		rec.Close()
		return nil, nil, exitf(exitConfig, "%v", err)
	}

	var ship string
	if char.ShipName != nil {
		ship = *char.ShipName
	}
	b := bot.New(app.BotConfig(cfg, id, char.Name, ship), det, strat, rec,
		bot.WithDialer(bot.TelnetDialer(cfg.Connection.Host, cfg.Connection.Port)))
	return b, rec, nil
}

func printSummary(st bot.Status, err error) {
	outcome := "clean exit"
	switch {
	case errors.Is(err, bot.ErrTargetReached):
		outcome = "credit target reached"
	case errors.Is(err, bot.ErrTurnBudget):
		outcome = "turn budget exhausted"
	case errors.Is(err, bot.ErrCharacterDied):
		outcome = "character died"
	case err != nil:
		outcome = err.Error()
	}
	fmt.Printf("\n%s — %s\n", st.Character, outcome)
	fmt.Printf("  sector %d  credits %d  net worth %d\n", st.Sector, st.Credits, st.NetWorth)
	fmt.Printf("  turns %d  trades %d  trade failures %d  prompts %d\n",
		st.TurnsUsed, st.Trades, st.TradeFailures, st.PromptsSeen)
}

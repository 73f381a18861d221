package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/trade-manager/trade-engine/internal/backtest"
	"github.com/trade-manager/trade-engine/internal/clock"
	"github.com/trade-manager/trade-engine/internal/config"
	"github.com/trade-manager/trade-engine/internal/datasource"
	"github.com/trade-manager/trade-engine/internal/engine"
	"github.com/trade-manager/trade-engine/internal/logger"
	"github.com/trade-manager/trade-engine/internal/persistence"
	"github.com/trade-manager/trade-engine/internal/strategy"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/urfave/cli/v3"
)

// runAction loads the configuration, wires the data source, rule registry and
// order store, and replays the market data through every declared strategy.
func runAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	noProgress := cmd.Bool("no-progress")
	noStore := cmd.Bool("no-store")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	zapLog, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	periodClock, err := clock.NewPeriodClock(cfg.Calendar)
	if err != nil {
		return err
	}

	source, err := datasource.NewDuckDBDataSource(cfg.Data.BarDuration.Std(), zapLog)
	if err != nil {
		return err
	}
	defer source.Close()

	if err := source.Initialize(cfg.Data.Path); err != nil {
		return err
	}

	var store *persistence.Store
	if !noStore {
		store, err = persistence.NewStore(cfg.Store.Path, zapLog)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Initialize(); err != nil {
			return err
		}
	}

	registry := engine.NewRegistry()
	if err := strategy.RegisterBuiltins(registry, cfg.Rules); err != nil {
		return err
	}

	tradestrategies := make([]types.Tradestrategy, 0, len(cfg.Tradestrategies))

	for _, tsCfg := range cfg.Tradestrategies {
		ts, err := tsCfg.Tradestrategy()
		if err != nil {
			return err
		}

		tradestrategies = append(tradestrategies, ts)
	}

	harness := backtest.NewHarness(source, periodClock, registry, store, cfg.MaxBars, zapLog)
	harness.SetProgress(!noProgress)

	result, err := harness.Run(ctx, tradestrategies)
	if err != nil {
		return err
	}

	fmt.Printf("Processed %d bars, %d rule passes\n", result.BarsProcessed, result.RulePasses)

	for _, sr := range result.Strategies {
		fmt.Printf("%s (%s): state=%s orders=%d position=%.0f@%.2f\n",
			sr.Tradestrategy.ID, sr.Tradestrategy.Symbol, sr.FinalState,
			len(sr.Orders), sr.Position.OpenQuantity, sr.Position.AvgEntryPrice)
	}

	return nil
}

// schemaAction prints the JSON schema for a built-in rule's parameters so
// configuration files can be validated by external tooling.
func schemaAction(_ context.Context, cmd *cli.Command) error {
	ruleName := cmd.String("rule")

	var schemaConfig any

	switch ruleName {
	case strategy.RuleBracketEntry:
		schemaConfig = &strategy.BracketEntryConfig{}
	case strategy.RuleMACross:
		schemaConfig = &strategy.MACrossConfig{}
	default:
		return fmt.Errorf("unknown rule %q", ruleName)
	}

	schema, err := strategy.GenerateSchemaJSON(schemaConfig)
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "engine",
		Usage: "Run trading strategies against historical market data",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Replay market data through the configured strategies",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the YAML configuration file",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Disable the terminal progress bar",
					},
					&cli.BoolFlag{
						Name:  "no-store",
						Usage: "Skip persisting orders and bars to the order store",
					},
				},
				Action: runAction,
			},
			{
				Name:  "schema",
				Usage: "Print the JSON schema for a built-in rule's parameters",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "rule",
						Aliases: []string{"r"},
						Usage: fmt.Sprintf("Rule name (%s, %s)",
							strategy.RuleBracketEntry, strategy.RuleMACross),
						Value: strategy.RuleBracketEntry,
					},
				},
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

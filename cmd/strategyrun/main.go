package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"signal-systemv1/config"
	"signal-systemv1/internal/marketdata/source"
	"signal-systemv1/internal/model"
	sqlitestore "signal-systemv1/internal/store/sqlite"
	"signal-systemv1/internal/strategy"
)

// strategyrun replays one strategy over stored history and prints the
// signals and the regression forecast. No live connections are made.
func main() {
	var (
		configPath = flag.String("config", "strategies.json", "strategy config file")
		strategyID = flag.String("strategy", "", "strategy id to run (default: first in config)")
		dbPath     = flag.String("db", "data/candles.db", "sqlite candle database")
		limit      = flag.Int("limit", 500, "number of trailing candles to replay")
		simulate   = flag.Bool("simulate", false, "generate synthetic candles instead of reading sqlite")
	)
	flag.Parse()

	configs, errs := config.LoadStrategies(*configPath)
	for _, e := range errs {
		log.Printf("[strategyrun] config warning: %v", e)
	}
	if len(configs) == 0 {
		log.Fatalf("[strategyrun] no valid strategies in %s", *configPath)
	}

	cfg, ok := pick(configs, *strategyID)
	if !ok {
		log.Fatalf("[strategyrun] strategy %q not found in %s", *strategyID, *configPath)
	}
	key := cfg.Key()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var candles []model.Candle
	var err error
	if *simulate {
		sim := source.NewSimSource(key, time.Second, 1)
		candles, err = sim.History(ctx, *limit)
	} else {
		var store *sqlitestore.Store
		store, err = sqlitestore.New(sqlitestore.Config{Path: *dbPath})
		if err != nil {
			log.Fatalf("[strategyrun] open %s: %v", *dbPath, err)
		}
		defer store.Close()
		candles, err = store.Candles(ctx, key, *limit)
	}
	if err != nil {
		log.Fatalf("[strategyrun] load candles: %v", err)
	}
	if len(candles) == 0 {
		log.Fatalf("[strategyrun] no candles for %s (try -simulate)", key)
	}

	res, err := strategy.RunOnce(cfg, candles)
	if err != nil {
		log.Fatalf("[strategyrun] run: %v", err)
	}

	printSummary(res)
	printSignals(res.Signals)
	printForecast(res)
}

func pick(configs []model.StrategyConfig, id string) (model.StrategyConfig, bool) {
	if id == "" {
		return configs[0], true
	}
	for _, c := range configs {
		if c.ID == id {
			return c, true
		}
	}
	return model.StrategyConfig{}, false
}

func printSummary(res *strategy.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("STRATEGY RUN")
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Strategy", res.StrategyID},
		{"Symbol", res.Symbol},
		{"Timeframe", res.Timeframe},
		{"Candles", res.Candles},
		{"Signals", len(res.Signals)},
	})
	for id, v := range res.Snapshot {
		t.AppendRow(table.Row{"ind:" + id, fmt.Sprintf("%.4f", v)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 15, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, Align: text.AlignLeft},
	})
	t.Render()
	fmt.Println()
}

func printSignals(signals []model.Signal) {
	if len(signals) == 0 {
		fmt.Println("no signals fired")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("SIGNALS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"TS", "Rule", "Type", "Side", "Price", "Confidence"})
	for _, s := range signals {
		t.AppendRow(table.Row{
			s.TS.UTC().Format("2006-01-02 15:04"),
			s.RuleID,
			s.Type,
			s.Side,
			fmt.Sprintf("%.2f", s.Price),
			fmt.Sprintf("%.2f", s.Confidence),
		})
	}
	t.Render()
	fmt.Println()
}

func printForecast(res *strategy.RunResult) {
	fc := res.Forecast
	if fc == nil {
		fmt.Println("forecast unavailable (insufficient history)")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("FORECAST")
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Lags", fc.Lags},
		{"Predicted return", fmt.Sprintf("%+.6f", fc.PredictedReturn)},
		{"Next close (stage 1)", fmt.Sprintf("%.2f", fc.Forecast)},
	})
	if fc.Corrected != nil {
		t.AppendRow(table.Row{"Next close (corrected)", fmt.Sprintf("%.2f", *fc.Corrected)})
	}
	if fc.Stage1 != nil {
		t.AppendRow(table.Row{"Stage-1 rows", fc.Stage1.Rows})
		if fc.Stage1.RSquared != nil {
			t.AppendRow(table.Row{"Stage-1 R²", fmt.Sprintf("%.4f", *fc.Stage1.RSquared)})
		}
	}
	if fc.Stage2 != nil {
		t.AppendRow(table.Row{"Stage-2 rows", fc.Stage2.Rows})
		if fc.Stage2.RSquared != nil {
			t.AppendRow(table.Row{"Stage-2 R²", fmt.Sprintf("%.4f", *fc.Stage2.RSquared)})
		}
	}
	if fc.Degraded {
		t.AppendRow(table.Row{"Degraded", fc.DegradedReason})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 22, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignLeft},
	})
	t.Render()
}

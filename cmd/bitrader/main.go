// Command bitrader runs the leveraged perpetual-futures trading engine:
// cold-start recovery, then the scan and monitor loops, until a shutdown
// signal arrives.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"perpengine/internal/cfg"
	"perpengine/internal/coordinator"
	"perpengine/internal/exchange/bitunix"
	"perpengine/internal/indicators"
	"perpengine/internal/journal"
	"perpengine/internal/lifecycle"
	"perpengine/internal/metrics"
	"perpengine/internal/risk"
	"perpengine/internal/router"
	"perpengine/internal/strategy"
	"perpengine/internal/universe"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("fatal_config: config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: fmt.Sprintf(":%d", c.MetricsPort), Handler: mux}
		go func() {
			<-ctx.Done()
			server.Shutdown(context.Background())
		}()
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	var tradeJournal *journal.Journal
	if c.DataPath != "" {
		tradeJournal, err = journal.Open(c.DataPath)
		if err != nil {
			log.Warn().Err(err).Msg("trade journal initialization failed, continuing without persistence")
		} else {
			defer tradeJournal.Close()
		}
	}

	exchangeClient := bitunix.NewREST(c.Key, c.Secret, c.BaseURL, c.RESTTimeout)
	ws := bitunix.NewWS(c.WsURL)
	ws.SetMetrics(mw)
	go exchangeClient.ConsumeStream(ctx, ws, c.Symbols, c.Ping)

	for _, symbol := range c.Symbols {
		if err := exchangeClient.SetMarginMode(symbol, c.MarginMode); err != nil {
			log.Warn().Str("symbol", symbol).Str("margin_mode", c.MarginMode).Err(err).
				Msg("failed to set margin mode at startup")
		}
	}

	gate := universe.New(c.Universe)
	pipeline := strategy.NewPipeline(c.Strategy, indicators.DefaultAsiaSession)
	riskEngine := risk.New(c, exchangeClient)
	orderRouter := router.New(exchangeClient, c.TPSLMaxAttempts, c.TPSLBackoffBase)
	lifecycleMgr := lifecycle.NewManager(orderRouter, riskEngine, tradeJournal, c, mw)
	coord := coordinator.New(c, exchangeClient, gate, pipeline, riskEngine, lifecycleMgr, indicators.DefaultAsiaSession, mw)

	// Cold-start recovery: enumerate open positions and reconstruct
	// lifecycle state before the first scan tick runs.
	// Recovery must never re-submit entries.
	if err := coord.Recover(); err != nil {
		log.Error().Err(err).Msg("transient_io: startup recovery failed, continuing with no recovered positions")
	}

	go coord.RunHourlyRefresh(ctx, c.Symbols)

	done := make(chan struct{})
	go func() {
		defer close(done)
		coord.Run(ctx, c.Symbols)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down: scan stops immediately, monitor finishes its in-flight tick")
	cancel()

	select {
	case <-done:
		log.Info().Msg("all loops stopped")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}

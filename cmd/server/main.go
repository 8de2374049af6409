package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"signal-systemv1/config"
	"signal-systemv1/internal/api"
	"signal-systemv1/internal/gateway"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/marketdata/distributor"
	"signal-systemv1/internal/marketdata/source"
	"signal-systemv1/internal/metrics"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/notification"
	redisstore "signal-systemv1/internal/store/redis"
	sqlitestore "signal-systemv1/internal/store/sqlite"
	"signal-systemv1/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("signal-server", slog.LevelInfo)
	log.Println("[server] starting...")

	cfg := config.Load()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite store ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.New(sqlitestore.Config{Path: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[server] sqlite init failed: %v", err)
	}
	defer store.Close()
	health.SetSQLiteOK(true)

	// ---- Redis publisher (optional) ----
	var publisher *redisstore.Publisher
	if cfg.RedisAddr != "" {
		publisher, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("[server] WARNING: redis init failed: %v (continuing without redis)", err)
		} else {
			health.SetRedisConnected(true)
			defer publisher.Close()
		}
	}

	// ---- Source factory ----
	var factory source.Factory
	if cfg.SimulateFeeds {
		log.Println("[server] *** simulated feeds enabled ***")
		factory = func(key model.SubscriptionKey) (source.Source, error) {
			return source.NewSimSource(key, time.Second, 1), nil
		}
	} else {
		factory = func(key model.SubscriptionKey) (source.Source, error) {
			return source.NewWSSource(key, source.WSConfig{
				URL:        cfg.UpstreamURL,
				APIKey:     cfg.UpstreamKey,
				TOTPSecret: cfg.UpstreamTOTP,
				History:    store.Candles,
			}), nil
		}
	}

	// ---- Distributor ----
	dist := distributor.New(distributor.Config{Factory: factory})
	dist.OnDrop = func(key model.SubscriptionKey, subscriberID string) {
		prom.FanoutDropsTotal.WithLabelValues(key.String()).Inc()
	}
	dist.OnReconnect = func(key model.SubscriptionKey) {
		prom.SourceReconnects.WithLabelValues(key.String()).Inc()
	}
	dist.OnDeliver = func(key model.SubscriptionKey) {
		prom.CandlesDistributed.Inc()
	}
	dist.OnSuppress = func(key model.SubscriptionKey) {
		prom.UpdatesSuppressed.Inc()
	}
	defer dist.Shutdown()

	// ---- Outbound alerting ----
	backends := []notification.Notifier{&notification.LogNotifier{}}
	if cfg.NotifyWebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.NotifyWebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	notifier := notification.NewMulti(backends...)

	// ---- Strategy manager ----
	var hub *gateway.Hub
	onSignal := func(sig model.Signal) {
		prom.SignalsEmitted.WithLabelValues(sig.StrategyID).Inc()
		jctx, jcancel := context.WithTimeout(ctx, 2*time.Second)
		if err := store.JournalSignal(jctx, sig); err != nil {
			log.Printf("[server] journal signal: %v", err)
		}
		publisher.PublishSignal(jctx, sig)
		jcancel()
		if hub != nil {
			hub.BroadcastSignal(sig)
		}
		go func() {
			nctx, ncancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer ncancel()
			notifier.Send(nctx, notification.FromSignal(sig))
		}()
	}
	mgr := strategy.NewManager(dist, onSignal)
	defer mgr.Shutdown()

	// ---- Load and start persisted strategies ----
	configs, errs := config.LoadStrategies(cfg.StrategiesPath)
	for _, e := range errs {
		log.Printf("[server] strategy config rejected: %v", e)
	}
	for _, sc := range configs {
		if err := mgr.Load(sc); err != nil {
			log.Printf("[server] load %s: %v", sc.ID, err)
			continue
		}
		if sc.Enabled {
			if err := mgr.Start(ctx, sc.ID); err != nil {
				log.Printf("[server] start %s: %v", sc.ID, err)
			}
		}
	}

	// ---- Gateway + HTTP ----
	hub = gateway.NewHub(dist, mgr)
	mux := api.NewRouter(&api.Server{
		Dist:  dist,
		Mgr:   mgr,
		Store: store,
		Hub:   hub,
		OnForecast: func(degraded bool) {
			prom.ForecastRuns.Inc()
			if degraded {
				prom.ForecastDegraded.Inc()
			}
		},
	})
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		log.Printf("[server] http listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[server] http: %v", err)
		}
	}()

	// ---- Periodic gauges and fault alerts ----
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		alerted := make(map[string]string) // strategy id -> last alerted fault
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				running := 0
				for _, st := range mgr.List() {
					if st.State == strategy.StateRunning {
						running++
					}
					if st.State == strategy.StateError && alerted[st.ID] != st.LastError {
						alerted[st.ID] = st.LastError
						prom.InstanceFaults.Inc()
						nctx, ncancel := context.WithTimeout(ctx, 10*time.Second)
						notifier.Send(nctx, notification.FromFault(st.ID, errors.New(st.LastError)))
						ncancel()
					}
				}
				prom.StrategiesRunning.Set(float64(running))
				prom.WSClients.Set(float64(hub.ClientCount()))
				prom.ActiveSubscribers.Set(float64(dist.TotalSubscribers()))
			}
		}
	}()

	<-sigCh
	log.Println("[server] shutting down...")
	cancel()

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	httpSrv.Shutdown(shCtx)
	log.Println("[server] bye")
}

package apiservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"ridemarket/internal/domain/ride"
	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/collab"
	"ridemarket/internal/general/config"
	"ridemarket/internal/general/httpx"
	"ridemarket/internal/general/jwt"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/general/rabbitmq"
	"ridemarket/internal/general/storage"
	"ridemarket/internal/general/websocket"
	"ridemarket/internal/ports"
	accounthandler "ridemarket/internal/software/accounts/handler"
	accountsvc "ridemarket/internal/software/accounts/service"
	adminhandler "ridemarket/internal/software/adminboard/handler"
	adminsvc "ridemarket/internal/software/adminboard/service"
	chathandler "ridemarket/internal/software/chat/handler"
	chatsvc "ridemarket/internal/software/chat/service"
	"ridemarket/internal/software/identity"
	notifysvc "ridemarket/internal/software/notifications/service"
	pricinghandler "ridemarket/internal/software/pricing/handler"
	pricingsvc "ridemarket/internal/software/pricing/service"
	ridehandler "ridemarket/internal/software/rides/handler"
	ridesvc "ridemarket/internal/software/rides/service"
	sessionhandler "ridemarket/internal/software/session/handler"
	sessionsvc "ridemarket/internal/software/session/service"
	"ridemarket/internal/software/synclayer"
	trackersvc "ridemarket/internal/software/tracker/service"
)

// Run wires the API service and blocks until ctx is cancelled.
func Run(ctx context.Context, maxConcurrent int, configPath string) error {
	log := logger.New("api-service")
	ctx = log.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err, map[string]any{"path": configPath})
		return err
	}
	if cfg.Log.Debug {
		log = logger.NewWithOptions("api-service", logger.Options{Debug: true})
	}
	clk := clock.Real()

	store, err := storage.Open(ctx, cfg, log, clk)
	if err != nil {
		log.Error(ctx, "store_open_failed", "Failed to open document store", err, map[string]any{"driver": cfg.Store.Driver})
		return err
	}
	defer store.Close()

	layer := synclayer.New(store, log)
	defer layer.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var (
		notifier ports.Notifier
		local    *notifysvc.LocalNotifier
		inbox    *rabbitmq.NotificationInbox
		rmq      *rabbitmq.Client
	)
	if cfg.RabbitMQ.Enabled {
		rmq, err = rabbitmq.ConnectRabbitMQ(ctx, cfg, log)
		if err != nil {
			log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
			return err
		}
		defer rmq.Close()

		relay := rabbitmq.NewChangeRelay(rmq, layer.Origin(), cfg.RabbitMQ.Prefetch)
		layer.SetRelay(relay)
		g.Go(func() error { return relay.Run(gctx, layer.ApplyRemote) })

		queued := notifysvc.NewQueueNotifier(log, rabbitmq.NewMQPublisher(rmq), "api-service", cfg.Notifications.QueueSize)
		g.Go(func() error { return queued.Run(gctx) })
		notifier = queued
		inbox = rabbitmq.NewNotificationInbox(rmq, layer.Origin(), cfg.RabbitMQ.Prefetch)
	} else {
		local = notifysvc.NewLocalNotifier(log)
		notifier = local
	}

	if err := adminsvc.Bootstrap(ctx, log, clk, layer, cfg.Bootstrap.SuperOperatorID, cfg.Bootstrap.SuperOperatorName); err != nil {
		log.Error(ctx, "bootstrap_failed", "Failed to seed defaults", err, nil)
		return err
	}

	tariffs := pricingsvc.NewTariffWatcher(layer, log)
	if err := tariffs.Start(gctx); err != nil {
		log.Error(ctx, "tariff_watch_failed", "Failed to subscribe to tariff settings", err, nil)
		return err
	}

	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, cfg.JWT.AccessTTL, clk)
	actors := identity.NewResolver(layer)

	pricing := pricingsvc.NewPricingEngine(log, clk, tariffs, estimator(cfg),
		pricingsvc.Config{QuoteTTL: cfg.JWT.QuoteTTL, EstimatorTimeout: cfg.Pricing.CallTimeout, Location: cfg.Location()},
		strategies(cfg, log)...,
	)
	rides := ridesvc.NewRideService(log, clk, layer, actors, pricing, notifier, cfg.Tracker.AverageSpeedKMH)
	chat := chatsvc.NewChatService(log, clk, layer, actors, notifier, cfg.Chat.TypingQuietPeriod)
	devices := trackersvc.NewDeviceLocator(clk, 3*cfg.Tracker.Interval)
	tracker := trackersvc.NewTracker(log, clk, layer, rides, devices, cfg.Tracker.Interval)
	sessions := sessionsvc.NewCoordinator(log, layer, actors, chat, tracker)
	if inbox != nil {
		g.Go(func() error {
			return inbox.Run(gctx, func(event *ride.Event) { sessions.Deliver(event) })
		})
	} else {
		local.Attach(sessions)
	}
	admin := adminsvc.NewAdminService(log, clk, layer, actors)
	accounts := accountsvc.NewAccountService(log, clk, layer, actors, cfg.Location())

	acceptor := websocket.NewAcceptor(log, jwtManager, websocket.Options{
		AuthTimeout:  cfg.WebSocket.AuthTimeout,
		PingInterval: cfg.WebSocket.PingInterval,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ready", readiness(log, rmq))
	pricinghandler.NewPricingHTTPHandler(pricing, log, jwtManager).RegisterRoutes(mux)
	ridehandler.NewRideHTTPHandler(rides, log, jwtManager).RegisterRoutes(mux)
	chathandler.NewChatHTTPHandler(chat, log, jwtManager).RegisterRoutes(mux)
	accounthandler.NewAccountHTTPHandler(accounts, log, jwtManager, cfg.Services.DevTokens).RegisterRoutes(mux)
	adminhandler.NewAdminHTTPHandler(admin, log, jwtManager).RegisterRoutes(mux)
	sessionhandler.NewGateway(log, acceptor, sessions, devices, cfg.WebSocket.LocationPerSecond).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.APIPort),
		Handler:           withConcurrencyLimit(maxConcurrent, mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	log.Info(ctx, "service_started",
		fmt.Sprintf("API service started on port %d", cfg.Services.APIPort),
		map[string]any{"port": cfg.Services.APIPort, "max_concurrent": maxConcurrent, "store": cfg.Store.Driver, "origin": layer.Origin()},
	)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Services.APIPort})
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info(ctx, "shutdown_started", "Starting graceful shutdown", nil)
		if err := srv.Shutdown(shCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
		return nil
	})

	return g.Wait()
}

// readiness reports 503 while the broker connection is down.
func readiness(log *logger.Logger, rmq *rabbitmq.Client) http.HandlerFunc {
	rs := httpx.Responder{Logger: log}
	return func(w http.ResponseWriter, r *http.Request) {
		if rmq != nil && !rmq.Connected() {
			rs.JSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "broker unavailable"})
			return
		}
		rs.JSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// estimator returns the trip estimator client, or nil when none is configured.
func estimator(cfg *config.Config) ports.TripEstimator {
	if cfg.Pricing.EstimatorURL == "" {
		return nil
	}
	return collab.NewEstimatorClient(cfg.Pricing.EstimatorURL, cfg.Pricing.EstimatorAPIKey, cfg.Pricing.CallTimeout, nil)
}

// strategies builds the distance chain: road routing, straight line, default.
func strategies(cfg *config.Config, logger *logger.Logger) []pricingsvc.DistanceStrategy {
	var chain []pricingsvc.DistanceStrategy
	if cfg.Pricing.RouteURL != "" {
		chain = append(chain, pricingsvc.RouteStrategy{
			Service: collab.NewRouteClient(cfg.Pricing.RouteURL, cfg.Pricing.CallTimeout, nil),
			Timeout: cfg.Pricing.CallTimeout,
			Logger:  logger,
		})
	}
	haversine := pricingsvc.HaversineStrategy{
		CurvatureFactor: cfg.Pricing.CurvatureFactor,
		Timeout:         cfg.Pricing.CallTimeout,
		Logger:          logger,
	}
	if cfg.Pricing.GeocodeURL != "" {
		haversine.Geocoder = collab.NewGeocodeClient(cfg.Pricing.GeocodeURL, cfg.Pricing.GeocodeUserAgent, cfg.Pricing.CallTimeout, nil)
	}
	return append(chain, haversine, pricingsvc.DefaultStrategy{KM: cfg.Pricing.DefaultDistanceKM, Logger: logger})
}

// withConcurrencyLimit caps in-flight requests. Websocket upgrades hold a
// slot for the life of the socket.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}

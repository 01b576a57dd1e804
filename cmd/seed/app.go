package seed

import (
	"context"

	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/config"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/general/rabbitmq"
	"ridemarket/internal/general/storage"
	adminsvc "ridemarket/internal/software/adminboard/service"
	"ridemarket/internal/software/synclayer"
)

// Run stores the default tariff and the configured super operator, then
// exits. superID overrides bootstrap.super_operator_id when set.
func Run(ctx context.Context, configPath, superID string) error {
	log := logger.New("seed")
	ctx = log.WithRequestID(ctx, "seed-001")

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err, map[string]any{"path": configPath})
		return err
	}
	if superID == "" {
		superID = cfg.Bootstrap.SuperOperatorID
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

	// running replicas learn about the seeded documents through the relay
	if cfg.RabbitMQ.Enabled {
		rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, log)
		if err != nil {
			log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
			return err
		}
		defer rmq.Close()
		layer.SetRelay(rabbitmq.NewChangeRelay(rmq, layer.Origin(), cfg.RabbitMQ.Prefetch))
	}

	if err := adminsvc.Bootstrap(ctx, log, clk, layer, superID, cfg.Bootstrap.SuperOperatorName); err != nil {
		log.Error(ctx, "seed_failed", "Failed to seed defaults", err, nil)
		return err
	}
	log.Info(ctx, "seed_completed", "Seed completed", map[string]any{"super_operator_id": superID})
	return nil
}

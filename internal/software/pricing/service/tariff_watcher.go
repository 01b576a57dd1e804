package service

import (
	"context"
	"sync/atomic"

	"ridemarket/internal/domain/tariff"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/records"
	"ridemarket/internal/software/synclayer"
)

// TariffWatcher keeps the live tariff in memory, following every change
// to the settings document.
type TariffWatcher struct {
	layer   *synclayer.Layer
	logger  *logger.Logger
	current atomic.Pointer[tariff.Settings]
}

// NewTariffWatcher starts with the defaults until Start delivers the stored tariff.
func NewTariffWatcher(layer *synclayer.Layer, log *logger.Logger) *TariffWatcher {
	w := &TariffWatcher{layer: layer, logger: log}
	defaults := tariff.Defaults()
	w.current.Store(&defaults)
	return w
}

// Start subscribes to the settings document and returns once the first
// snapshot is applied. Updates continue until ctx ends.
func (w *TariffWatcher) Start(ctx context.Context) error {
	sub, err := w.layer.SubscribeDoc(ctx, ports.CollectionTariffSettings, ports.TariffDocumentID)
	if err != nil {
		return err
	}
	select {
	case snap, ok := <-sub.Updates():
		if ok {
			w.apply(ctx, snap)
		}
	case <-ctx.Done():
		sub.Close()
		return ctx.Err()
	}

	go func() {
		defer sub.Close()
		for snap := range sub.Updates() {
			w.apply(ctx, snap)
		}
	}()
	return nil
}

// Current returns the tariff in effect.
func (w *TariffWatcher) Current() tariff.Settings {
	return *w.current.Load()
}

func (w *TariffWatcher) apply(ctx context.Context, snap synclayer.Snapshot) {
	settings, err := records.DecodeTariff(snap.Doc())
	if err != nil {
		w.logger.Error(ctx, "tariff_reload_failed", "Ignoring unreadable tariff", err, nil)
		return
	}
	w.current.Store(&settings)
	w.logger.Info(ctx, "tariff_reloaded", "Tariff updated", map[string]any{
		"base_fare":   settings.BaseFare,
		"per_km_rate": settings.PerKMRate,
		"fees":        len(settings.CustomFees),
	})
}

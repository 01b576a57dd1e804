package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ridemarket/internal/domain/tariff"
	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/memstore"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/identity"
	"ridemarket/internal/software/records"
	"ridemarket/internal/software/synclayer"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx   context.Context
	layer *synclayer.Layer
	svc   ports.AdminService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, func(store ports.DocumentStore) ports.DocumentStore { return store })
}

// newFixtureWith lets a test wrap the store before the layer sees it.
func newFixtureWith(t *testing.T, wrap func(ports.DocumentStore) ports.DocumentStore) *fixture {
	t.Helper()
	ctx := context.Background()
	clk := clock.Fake(t0)
	layer := synclayer.New(wrap(memstore.New(clk)), nil)
	t.Cleanup(layer.Close)

	for id, u := range map[string]map[string]any{
		"admin":  {"name": "Root", "role": "CLIENT", "createdAt": "2026-01-01T00:00:00Z"},
		"mod":    {"name": "Mia", "role": "CLIENT", "createdAt": "2026-01-02T00:00:00Z"},
		"rider":  {"name": "Ana", "role": "CLIENT", "createdAt": "2026-01-03T00:00:00Z"},
		"driver": {"name": "Caio", "role": "DRIVER", "vehiclePlate": "XYZ", "createdAt": "2026-01-04T00:00:00Z"},
	} {
		if _, err := layer.Set(ctx, ports.CollectionUsers, id, u, false); err != nil {
			t.Fatal(err)
		}
	}
	for id, role := range map[string]string{"admin": "ADMIN", "mod": "MODERATOR"} {
		if _, err := layer.Set(ctx, ports.CollectionRoleGrants, id, map[string]any{"userId": id, "role": role, "grantedBy": "seed"}, false); err != nil {
			t.Fatal(err)
		}
	}
	return &fixture{ctx: ctx, layer: layer, svc: NewAdminService(nil, clk, layer, identity.NewResolver(layer))}
}

func ptr(v float64) *float64 { return &v }

func TestUpdateTariff(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.UpdateTariff(f.ctx, "admin", ports.TariffUpdate{BaseFare: ptr(5), PerKMRate: ptr(2)})
	if err != nil {
		t.Fatal(err)
	}
	if got.BaseFare != 5 || got.PerKMRate != 2 || got.CommissionPercent != tariff.DefaultCommissionPercent {
		t.Fatalf("settings = %+v", got)
	}
	stored, _ := records.Tariff(f.ctx, f.layer)
	if stored.BaseFare != 5 {
		t.Fatalf("stored base fare = %v", stored.BaseFare)
	}

	if _, err := f.svc.UpdateTariff(f.ctx, "admin", ports.TariffUpdate{DevCommissionPercent: ptr(50)}); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("split not 100: err = %v", err)
	}
	if _, err := f.svc.UpdateTariff(f.ctx, "mod", ports.TariffUpdate{BaseFare: ptr(1)}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("moderator: err = %v", err)
	}
	if _, err := f.svc.Tariff(f.ctx, "mod"); err != nil {
		t.Fatalf("moderator read: %v", err)
	}
	if _, err := f.svc.Tariff(f.ctx, "rider"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("rider read: err = %v", err)
	}
}

func TestFeeLifecycle(t *testing.T) {
	f := newFixture(t)

	s, err := f.svc.AddFee(f.ctx, "admin", tariff.CustomFee{ID: "night", Reason: "Night", Amount: 1.5, StartHour: 22, EndHour: 6})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.CustomFees) != 1 || !s.CustomFees[0].Enabled || s.CustomFees[0].Kind != tariff.FeeKindTimeWindow {
		t.Fatalf("fees = %+v", s.CustomFees)
	}
	if _, err := f.svc.AddFee(f.ctx, "admin", tariff.CustomFee{ID: "night", Reason: "Again", Amount: 1}); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("duplicate id: err = %v", err)
	}
	if _, err := f.svc.AddFee(f.ctx, "admin", tariff.CustomFee{Reason: "Bad", Amount: 1, StartHour: 24}); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("hour 24: err = %v", err)
	}

	s, err = f.svc.ToggleFee(f.ctx, "admin", "night")
	if err != nil || s.CustomFees[0].Enabled {
		t.Fatalf("toggle: %+v %v", s.CustomFees, err)
	}
	s, err = f.svc.RemoveFee(f.ctx, "admin", "night")
	if err != nil || len(s.CustomFees) != 0 {
		t.Fatalf("remove: %+v %v", s.CustomFees, err)
	}
	if _, err := f.svc.RemoveFee(f.ctx, "admin", "night"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("remove missing: err = %v", err)
	}
}

func TestGrantAndRevoke(t *testing.T) {
	f := newFixture(t)
	resolver := identity.NewResolver(f.layer)

	if err := f.svc.GrantRole(f.ctx, "admin", "rider", user.RoleModerator); err != nil {
		t.Fatal(err)
	}
	actor, _ := resolver.Resolve(f.ctx, "rider")
	if actor.Role != user.RoleModerator {
		t.Fatalf("role = %s", actor.Role)
	}
	if err := f.svc.GrantRole(f.ctx, "admin", "rider", user.RoleDriver); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("grant DRIVER: err = %v", err)
	}
	if err := f.svc.GrantRole(f.ctx, "mod", "driver", user.RoleModerator); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("moderator grant: err = %v", err)
	}
	if err := f.svc.GrantRole(f.ctx, "admin", "ghost", user.RoleAdmin); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("grant to missing user: err = %v", err)
	}

	staff, err := f.svc.ListStaff(f.ctx, "mod")
	if err != nil || len(staff) != 3 {
		t.Fatalf("staff = %d, err = %v", len(staff), err)
	}

	if err := f.svc.RevokeRole(f.ctx, "admin", "rider"); err != nil {
		t.Fatal(err)
	}
	actor, _ = resolver.Resolve(f.ctx, "rider")
	if actor.Role != user.RoleClient {
		t.Fatalf("role after revoke = %s", actor.Role)
	}
	if err := f.svc.RevokeRole(f.ctx, "admin", "rider"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("revoke twice: err = %v", err)
	}
	if err := f.svc.RevokeRole(f.ctx, "admin", "admin"); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("revoke self: err = %v", err)
	}
}

func TestSeededSuperOperatorGrantIsProtected(t *testing.T) {
	f := newFixture(t)
	if err := Bootstrap(f.ctx, nil, clock.Fake(t0), f.layer, "root", "Root"); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.RevokeRole(f.ctx, "admin", "root"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("revoke super operator: err = %v", err)
	}
	if err := f.svc.GrantRole(f.ctx, "admin", "root", user.RoleModerator); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("downgrade super operator: err = %v", err)
	}
	if err := f.svc.SetBlocked(f.ctx, "admin", "root", true); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("block super operator: err = %v", err)
	}

	actor, err := identity.NewResolver(f.layer).Resolve(f.ctx, "root")
	if err != nil || actor.Role != user.RoleAdmin {
		t.Fatalf("super operator role = %s, err = %v", actor.Role, err)
	}
}

func TestSetBlocked(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.SetBlocked(f.ctx, "mod", "rider", true); err != nil {
		t.Fatal(err)
	}
	u, _ := records.User(f.ctx, f.layer, "rider")
	if !u.IsBlocked {
		t.Fatal("rider not blocked")
	}
	if err := f.svc.SetBlocked(f.ctx, "mod", "admin", true); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("moderator blocking admin: err = %v", err)
	}
	if err := f.svc.SetBlocked(f.ctx, "admin", "admin", true); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("self block: err = %v", err)
	}
	if err := f.svc.SetBlocked(f.ctx, "rider", "driver", true); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("blocked rider acting: err = %v", err)
	}
	if err := f.svc.SetBlocked(f.ctx, "admin", "rider", false); err != nil {
		t.Fatal(err)
	}
}

func TestListUsersNewestFirst(t *testing.T) {
	f := newFixture(t)
	users, err := f.svc.ListUsers(f.ctx, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 4 || users[0].ID != "driver" || users[3].ID != "admin" {
		t.Fatalf("users = %+v", users)
	}
}

func TestCommissionReport(t *testing.T) {
	f := newFixture(t)
	for _, r := range []map[string]any{
		{"status": "COMPLETED", "commissionAmount": 0.58, "totalPrice": 11.5},
		{"status": "COMPLETED", "commissionAmount": 0.2, "totalPrice": 4.0},
		{"status": "CANCELLED", "commissionAmount": 9.0, "totalPrice": 100.0},
	} {
		r["clientId"], r["driverId"] = "rider", "driver"
		if _, err := f.layer.Create(f.ctx, ports.CollectionRides, r); err != nil {
			t.Fatal(err)
		}
	}

	rep, err := f.svc.CommissionReport(f.ctx, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if rep.CompletedRides != 2 || rep.TotalCommission != 0.78 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.DevShare != 0.16 || rep.PartnerShare != 0.62 {
		t.Fatalf("split = %v / %v", rep.DevShare, rep.PartnerShare)
	}
	if _, err := f.svc.CommissionReport(f.ctx, "mod"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("moderator report: err = %v", err)
	}
}

// slowTariffReads widens the window between reading and writing the tariff.
type slowTariffReads struct {
	ports.DocumentStore
}

func (s slowTariffReads) Get(ctx context.Context, collection, id string) (*ports.Document, error) {
	doc, err := s.DocumentStore.Get(ctx, collection, id)
	if collection == ports.CollectionTariffSettings {
		time.Sleep(20 * time.Millisecond)
	}
	return doc, err
}

func TestConcurrentTariffEditsAreNotLost(t *testing.T) {
	f := newFixtureWith(t, func(store ports.DocumentStore) ports.DocumentStore { return slowTariffReads{store} })
	if err := records.SaveTariff(f.ctx, f.layer, tariff.Defaults()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"night", "airport"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.AddFee(f.ctx, "admin", tariff.CustomFee{ID: id, Reason: id, Amount: 2, StartHour: 1, EndHour: 2})
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("edit %d: %v", i, err)
		}
	}

	stored, err := records.Tariff(f.ctx, f.layer)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.CustomFees) != 2 {
		t.Fatalf("fees stored = %+v", stored.CustomFees)
	}
}

func TestReplaceTariffRejectsStaleRevision(t *testing.T) {
	f := newFixture(t)
	if err := records.SaveTariff(f.ctx, f.layer, tariff.Defaults()); err != nil {
		t.Fatal(err)
	}
	settings, revision, err := records.LoadTariff(f.ctx, f.layer)
	if err != nil || revision == "" {
		t.Fatalf("revision = %q err = %v", revision, err)
	}

	if _, err := f.svc.UpdateTariff(f.ctx, "admin", ports.TariffUpdate{BaseFare: ptr(7)}); err != nil {
		t.Fatal(err)
	}
	settings.BaseFare = 3
	if err := records.ReplaceTariff(f.ctx, f.layer, settings, revision); !errors.Is(err, ports.ErrPreconditionFailed) {
		t.Fatalf("stale write: err = %v", err)
	}
	if stored, _ := records.Tariff(f.ctx, f.layer); stored.BaseFare != 7 {
		t.Fatalf("base fare = %v", stored.BaseFare)
	}
}

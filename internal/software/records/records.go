// Package records maps typed domain values onto sync layer documents.
package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ridemarket/internal/domain/chat"
	"ridemarket/internal/domain/ride"
	"ridemarket/internal/domain/tariff"
	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/synclayer"
)

// Ride loads rides/{id}. A missing ride is a NotFound error.
func Ride(ctx context.Context, layer *synclayer.Layer, id string) (*ride.Ride, error) {
	doc, err := layer.Get(ctx, ports.CollectionRides, id)
	if err != nil {
		return nil, notFound("records.ride", "ride not found", err)
	}
	return DecodeRide(doc)
}

// DecodeRide decodes a ride document.
func DecodeRide(doc *ports.Document) (*ride.Ride, error) {
	r, err := synclayer.Decode[ride.Ride](doc)
	if err != nil {
		return nil, apperr.E(apperr.KindPersistenceFailure, "records.ride", "corrupt ride document", err)
	}
	return r, nil
}

// Rides decodes every ride of a query result.
func Rides(docs []*ports.Document) ([]ride.Ride, error) {
	out, err := synclayer.DecodeAll[ride.Ride](docs)
	if err != nil {
		return nil, apperr.E(apperr.KindPersistenceFailure, "records.rides", "corrupt ride document", err)
	}
	return out, nil
}

// User loads users/{id}.
func User(ctx context.Context, layer *synclayer.Layer, id string) (*user.User, error) {
	doc, err := layer.Get(ctx, ports.CollectionUsers, id)
	if err != nil {
		return nil, notFound("records.user", "user not found", err)
	}
	return DecodeUser(doc)
}

// DecodeUser decodes a profile document.
func DecodeUser(doc *ports.Document) (*user.User, error) {
	u, err := synclayer.Decode[user.User](doc)
	if err != nil {
		return nil, apperr.E(apperr.KindPersistenceFailure, "records.user", "corrupt user document", err)
	}
	return u, nil
}

// RoleGrant loads roleGrants/{userID}. A missing grant is (nil, nil).
func RoleGrant(ctx context.Context, layer *synclayer.Layer, userID string) (*user.RoleGrant, error) {
	doc, err := layer.Get(ctx, ports.CollectionRoleGrants, userID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeRoleGrant(doc)
}

// DecodeRoleGrant decodes a grant document.
func DecodeRoleGrant(doc *ports.Document) (*user.RoleGrant, error) {
	g, err := synclayer.Decode[user.RoleGrant](doc)
	if err != nil {
		return nil, apperr.E(apperr.KindPersistenceFailure, "records.role_grant", "corrupt role grant document", err)
	}
	return g, nil
}

// TariffRevisionField holds a token that changes on every tariff write.
const TariffRevisionField = "revision"

// Tariff loads the tariff document, or the defaults when none is stored.
func Tariff(ctx context.Context, layer *synclayer.Layer) (tariff.Settings, error) {
	settings, _, err := LoadTariff(ctx, layer)
	return settings, err
}

// LoadTariff is Tariff plus the revision token the settings were read at.
// The token is empty when no document is stored or it predates revisions.
func LoadTariff(ctx context.Context, layer *synclayer.Layer) (tariff.Settings, string, error) {
	doc, err := layer.Get(ctx, ports.CollectionTariffSettings, ports.TariffDocumentID)
	if errors.Is(err, ports.ErrNotFound) {
		return tariff.Defaults(), "", nil
	}
	if err != nil {
		return tariff.Settings{}, "", err
	}
	settings, err := DecodeTariff(doc)
	if err != nil {
		return tariff.Settings{}, "", err
	}
	revision, _ := doc.Fields[TariffRevisionField].(string)
	return settings, revision, nil
}

// DecodeTariff decodes the tariff document; nil yields the defaults.
func DecodeTariff(doc *ports.Document) (tariff.Settings, error) {
	if doc == nil {
		return tariff.Defaults(), nil
	}
	s, err := synclayer.Decode[tariff.Settings](doc)
	if err != nil {
		return tariff.Settings{}, apperr.E(apperr.KindPersistenceFailure, "records.tariff", "corrupt tariff document", err)
	}
	return *s, nil
}

// SaveTariff replaces the tariff document unconditionally.
func SaveTariff(ctx context.Context, layer *synclayer.Layer, settings tariff.Settings) error {
	fields, err := synclayer.Encode(settings)
	if err != nil {
		return fmt.Errorf("encode tariff: %w", err)
	}
	fields[TariffRevisionField] = uuid.NewString()
	_, err = layer.Set(ctx, ports.CollectionTariffSettings, ports.TariffDocumentID, fields, false)
	return err
}

// ReplaceTariff stores settings only if the document is still at revision.
// A concurrent write fails with ports.ErrPreconditionFailed; a missing
// document with ports.ErrNotFound.
func ReplaceTariff(ctx context.Context, layer *synclayer.Layer, settings tariff.Settings, revision string) error {
	fields, err := synclayer.Encode(settings)
	if err != nil {
		return fmt.Errorf("encode tariff: %w", err)
	}
	patch := ports.Patch(fields)
	if _, ok := patch["customFees"]; !ok {
		patch["customFees"] = nil
	}
	patch[TariffRevisionField] = uuid.NewString()

	cond := ports.Equals(TariffRevisionField, revision)
	if revision == "" {
		cond = ports.Absent(TariffRevisionField)
	}
	_, err = layer.Update(ctx, ports.CollectionTariffSettings, ports.TariffDocumentID, patch, cond)
	return err
}

// Messages decodes chat messages and orders them by time, then arrival.
func Messages(docs []*ports.Document) ([]chat.Message, error) {
	out := make([]chat.Message, 0, len(docs))
	for _, doc := range docs {
		m, err := synclayer.Decode[chat.Message](doc)
		if err != nil {
			return nil, apperr.E(apperr.KindPersistenceFailure, "records.messages", "corrupt chat message", err)
		}
		m.Seq = uint64(doc.Seq)
		out = append(out, *m)
	}
	chat.Sort(out)
	return out, nil
}

// MessagesQuery selects the messages of one ride in arrival order.
func MessagesQuery(rideID string) ports.Query {
	return ports.Query{
		Filters: []ports.Filter{ports.Where("rideId", ports.OpEq, rideID)},
		OrderBy: "createdAt",
	}
}

func notFound(op, msg string, err error) error {
	if errors.Is(err, ports.ErrNotFound) {
		return apperr.E(apperr.KindNotFound, op, msg, err)
	}
	return err
}

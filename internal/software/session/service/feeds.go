package service

import (
	"ridemarket/internal/domain/ride"
	"ridemarket/internal/domain/user"
	"ridemarket/internal/ports"
	ridesvc "ridemarket/internal/software/rides/service"
	trackersvc "ridemarket/internal/software/tracker/service"
)

// Feed topics pushed to a session.
const (
	TopicSession      = "session"
	TopicProfile      = "profile"
	TopicTariff       = "tariff"
	TopicRides        = "rides"
	TopicPendingRides = "pending_rides"
	TopicActiveRide   = "active_ride"
	TopicUsers        = "users"
	TopicRoleGrants   = "role_grants"
	TopicChat         = "chat"
	TopicNotification = "notification"
)

// UserListLimit bounds the operator user list.
const UserListLimit = 50

type feed struct {
	topic      string
	collection string
	docID      string
	query      ports.Query
}

// feedsFor lists the subscriptions a role is entitled to. Blocked actors
// get none.
func feedsFor(actor user.Actor) []feed {
	if actor.Blocked {
		return nil
	}
	feeds := []feed{{topic: TopicTariff, collection: ports.CollectionTariffSettings, docID: ports.TariffDocumentID}}
	switch {
	case actor.Role.IsOperator():
		feeds = append(feeds,
			feed{topic: TopicRides, collection: ports.CollectionRides, query: ridesvc.ListQuery(actor.ID, false, true)},
			feed{topic: TopicUsers, collection: ports.CollectionUsers, query: ports.Query{OrderBy: "createdAt", Desc: true, Limit: UserListLimit}},
			feed{topic: TopicRoleGrants, collection: ports.CollectionRoleGrants, query: ports.Query{OrderBy: "updatedAt", Desc: true}},
		)
	case actor.Role.IsDriver():
		feeds = append(feeds,
			feed{topic: TopicPendingRides, collection: ports.CollectionRides, query: PendingRidesQuery()},
			feed{topic: TopicActiveRide, collection: ports.CollectionRides, query: trackersvc.ActiveRideQuery(actor.ID)},
			feed{topic: TopicRides, collection: ports.CollectionRides, query: ridesvc.ListQuery(actor.ID, true, false)},
		)
	default:
		feeds = append(feeds, feed{topic: TopicRides, collection: ports.CollectionRides, query: ridesvc.ListQuery(actor.ID, false, false)})
	}
	return feeds
}

// PendingRidesQuery selects open requests, newest first.
func PendingRidesQuery() ports.Query {
	return ports.Query{
		Filters: []ports.Filter{ports.Where(ride.FieldStatus, ports.OpEq, ride.StatusPending.String())},
		OrderBy: ride.FieldCreatedAt,
		Desc:    true,
		Limit:   ridesvc.ListLimit,
	}
}

// View flattens a document into its fields plus "id".
func View(doc *ports.Document) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc.Fields)+1)
	for k, v := range doc.Fields {
		out[k] = v
	}
	out["id"] = doc.ID
	return out
}

// Views flattens a list of documents, never returning nil.
func Views(docs []*ports.Document) []map[string]any {
	out := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		out = append(out, View(doc))
	}
	return out
}

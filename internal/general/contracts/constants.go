package contracts

// Exchanges
const (
	ExchangeDocChanges    = "doc_changes"   // fanout, one exclusive queue per replica
	ExchangeNotifications = "notifications" // topic
)

// Queues
const (
	QueueNotifications = "notifications"
)

// Routing patterns
const (
	RouteRideStatusPrefix  = "ride.status."  // {status}
	RouteChatMessagePrefix = "chat.message." // {ride_id}
)

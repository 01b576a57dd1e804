package contracts

import "ridemarket/internal/ports"

// ChangeMessage carries one committed document change between replicas.
// Published on ExchangeDocChanges with an empty routing key.
type ChangeMessage struct {
	Change ports.Change `json:"change"`
	Envelope
}

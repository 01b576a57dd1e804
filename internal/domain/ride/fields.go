package ride

// Document field names written by individual transitions.
const (
	FieldStatus              = "status"
	FieldUpdatedAt           = "updatedAt"
	FieldDriverID            = "driverId"
	FieldDriverName          = "driverName"
	FieldDriverPlate         = "driverPlate"
	FieldDriverPhoto         = "driverPhoto"
	FieldDriverPhone         = "driverPhone"
	FieldDriverCurrentCoords = "driverCurrentCoords"
	FieldAcceptedAt          = "acceptedAt"
	FieldStartedAt           = "startedAt"
	FieldCompletedAt         = "completedAt"
	FieldCancelledAt         = "cancelledAt"
	FieldCancelledBy         = "cancelledBy"
	FieldRating              = "rating"
	FieldTyping              = "typing"
	FieldClientID            = "clientId"
	FieldCreatedAt           = "createdAt"
)

// TypingField is the dotted path of one user's typing flag.
func TypingField(userID string) string {
	return FieldTyping + "." + userID
}

// StampField returns the timestamp field a status entry records.
func StampField(status Status) string {
	switch status {
	case StatusAccepted:
		return FieldAcceptedAt
	case StatusInProgress:
		return FieldStartedAt
	case StatusCompleted:
		return FieldCompletedAt
	case StatusCancelled:
		return FieldCancelledAt
	default:
		return ""
	}
}

package chat

import (
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTextLength bounds a single chat message in runes.
const MaxTextLength = 1000

// Message is an append-only chat entry stored under chatMessages/{id}.
type Message struct {
	ID         string    `json:"id"`
	RideID     string    `json:"rideId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`

	// Seq is the store arrival order, used only to break createdAt ties.
	Seq uint64 `json:"-"`
}

var (
	ErrEmptyText      = errors.New("message text cannot be empty")
	ErrTextTooLong    = errors.New("message text is too long")
	ErrRideIDRequired = errors.New("ride id is required")
	ErrSenderRequired = errors.New("sender id is required")
)

// NewMessage validates input and builds a message stamped at now.
func NewMessage(rideID, senderID, senderName, text string, now time.Time) (*Message, error) {
	text, err := NormalizeText(text)
	if err != nil {
		return nil, err
	}
	if rideID = strings.TrimSpace(rideID); rideID == "" {
		return nil, ErrRideIDRequired
	}
	if senderID = strings.TrimSpace(senderID); senderID == "" {
		return nil, ErrSenderRequired
	}
	return &Message{
		RideID:     rideID,
		SenderID:   senderID,
		SenderName: strings.TrimSpace(senderName),
		Text:       text,
		CreatedAt:  now.UTC(),
	}, nil
}

// NormalizeText trims text and enforces length limits.
func NormalizeText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return "", ErrTextTooLong
	}
	return text, nil
}

// Sort orders messages by creation time, then by arrival sequence.
func Sort(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Seq < b.Seq
	})
}

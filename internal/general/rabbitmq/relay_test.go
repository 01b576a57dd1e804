package rabbitmq

import (
	"encoding/json"
	"testing"
	"time"

	"ridemarket/internal/domain/ride"
	"ridemarket/internal/general/contracts"
	"ridemarket/internal/ports"
)

func TestRelayDecode(t *testing.T) {
	relay := NewChangeRelay(nil, "replica-a", 8)
	encode := func(msg contracts.ChangeMessage) []byte {
		body, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return body
	}
	doc := &ports.Document{
		Collection: ports.CollectionRides,
		ID:         "r1",
		Fields:     map[string]any{"status": "ACCEPTED", "estimatedFare": 18.4},
		Version:    42,
		Seq:        3,
		UpdateTime: time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC),
	}

	remote := contracts.ChangeMessage{
		Change:   ports.Change{Collection: doc.Collection, ID: doc.ID, Version: 42, Doc: doc, Origin: "replica-b"},
		Envelope: contracts.Envelope{Producer: "replica-b"},
	}
	change, ok, err := relay.decode(encode(remote))
	if err != nil || !ok {
		t.Fatalf("decode remote: ok=%v err=%v", ok, err)
	}
	if change.Version != 42 || change.Doc.Fields["estimatedFare"] != 18.4 || !change.Doc.UpdateTime.Equal(doc.UpdateTime) {
		t.Fatalf("change not preserved: %+v", change)
	}

	own := remote
	own.Change.Origin = "replica-a"
	own.Producer = "replica-a"
	if _, ok, err := relay.decode(encode(own)); err != nil || ok {
		t.Fatalf("own change: ok=%v err=%v", ok, err)
	}

	deletion := contracts.ChangeMessage{Change: ports.Change{Collection: "rides", ID: "r1", Version: 43, Origin: "replica-b"}}
	change, ok, err = relay.decode(encode(deletion))
	if err != nil || !ok || change.Doc != nil {
		t.Fatalf("deletion: %+v ok=%v err=%v", change, ok, err)
	}

	if _, _, err := relay.decode([]byte("{")); err == nil {
		t.Fatalf("expected error on malformed body")
	}
	if _, _, err := relay.decode([]byte(`{"change":{}}`)); err == nil {
		t.Fatalf("expected error on missing key")
	}
}

func TestDecodeNotification(t *testing.T) {
	now := time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC)
	event, err := ride.NewEvent(ride.EventChatMessage, "r1", "u2", "Ana", "on my way", now)
	if err != nil {
		t.Fatal(err)
	}
	body, err := json.Marshal(contracts.NewNotificationMessage(event))
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodeNotification(body)
	if err != nil {
		t.Fatalf("decodeNotification: %v", err)
	}
	if got.Type != ride.EventChatMessage || got.RecipientID != "u2" || got.Body != "on my way" {
		t.Fatalf("event = %+v", got)
	}
	if _, err := decodeNotification([]byte(`{"type":"CHAT_MESSAGE"}`)); err == nil {
		t.Fatal("expected an error without a recipient")
	}
}

func TestNextBackoffDoublesUpToCap(t *testing.T) {
	got := []time.Duration{minBackoff}
	for len(got) < 7 {
		got = append(got, nextBackoff(got[len(got)-1]))
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d = %v, want %v", i, got[i], want[i])
		}
	}
}

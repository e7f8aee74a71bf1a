package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/localspot/localspot/chatcore/internal/domain/valueobject"
)

func TestNewRoom_Validation(t *testing.T) {
	if _, err := NewRoom("", "biz-1", "user-1"); !errors.Is(err, ErrInvalidRoomID) {
		t.Errorf("expected ErrInvalidRoomID, got %v", err)
	}
	if _, err := NewRoom("r1", "", "user-1"); err == nil {
		t.Error("expected error for missing business id")
	}
	if _, err := NewRoom("r1", "biz-1", ""); err == nil {
		t.Error("expected error for missing user id")
	}

	room, err := NewRoom("r1", "biz-1", "user-1")
	if err != nil {
		t.Fatalf("new room failed: %v", err)
	}
	if room.Status() != RoomStatusActive {
		t.Errorf("expected ACTIVE, got %s", room.Status())
	}
}

func TestRoom_StatusTransitions(t *testing.T) {
	room, _ := NewRoom("r1", "biz-1", "user-1")

	if err := room.Archive(); err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	if err := room.Reopen(); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if err := room.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// CLOSED 是终态
	if err := room.Reopen(); !errors.Is(err, ErrRoomClosed) {
		t.Errorf("expected ErrRoomClosed on reopen, got %v", err)
	}
	if err := room.Archive(); !errors.Is(err, ErrRoomClosed) {
		t.Errorf("expected ErrRoomClosed on archive, got %v", err)
	}
	if err := room.Close(); !errors.Is(err, ErrRoomClosed) {
		t.Errorf("expected ErrRoomClosed on repeat close, got %v", err)
	}
}

func TestRoom_Participants(t *testing.T) {
	room, _ := NewRoom("r1", "biz-1", "user-1")

	if !room.IsParticipant("biz-1") || !room.IsParticipant("user-1") {
		t.Error("both sides of the pair are participants")
	}
	if room.IsParticipant("user-99") {
		t.Error("strangers are not participants")
	}
	if got := room.CounterpartOf("user-1"); got != "biz-1" {
		t.Errorf("expected biz-1, got %s", got)
	}
	if got := room.CounterpartOf("biz-1"); got != "user-1" {
		t.Errorf("expected user-1, got %s", got)
	}
}

func TestMessage_ReadBookkeepingIsMonotonic(t *testing.T) {
	sender := valueobject.NewActor("biz-1", valueobject.ActorTypeBusiness)
	msg, err := NewMessage("m1", "r1", 1, "hello", valueobject.Attachment{}, sender)
	if err != nil {
		t.Fatalf("new message failed: %v", err)
	}

	first := time.Now().UTC()
	if !msg.MarkReadBy("user-1", first) {
		t.Fatal("first mark should report a change")
	}
	if msg.MarkReadBy("user-1", first.Add(time.Hour)) {
		t.Error("repeat mark must not report a change")
	}
	if got, _ := msg.FirstReadAt("user-1"); !got.Equal(first) {
		t.Errorf("first-read time was overwritten: %v", got)
	}
	if msg.MarkReadBy("", first) {
		t.Error("empty reader id must be rejected")
	}
}

func TestMessage_DeliveryIsIdempotent(t *testing.T) {
	sender := valueobject.NewActor("user-1", valueobject.ActorTypeUser)
	msg, _ := NewMessage("m1", "r1", 1, "hello", valueobject.Attachment{}, sender)

	if msg.Delivery() != DeliverySent {
		t.Errorf("expected sent, got %s", msg.Delivery())
	}
	if !msg.MarkDelivered() {
		t.Error("first delivery mark should report a change")
	}
	if msg.MarkDelivered() {
		t.Error("repeat delivery mark must be a no-op")
	}
}

package websocket

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/localspot/localspot/chatcore/internal/domain/valueobject"
	apperrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// fakeRoomAccess 按成员表判定订阅资格; 空表放行全部
type fakeRoomAccess struct {
	members map[string][]string // room id → actor ids
}

func (f *fakeRoomAccess) IsParticipant(ctx context.Context, roomID, actorID string) (bool, error) {
	if f.members == nil {
		return true, nil
	}
	for _, id := range f.members[roomID] {
		if id == actorID {
			return true, nil
		}
	}
	return false, nil
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	return startHubWithAccess(t, &fakeRoomAccess{})
}

func startHubWithAccess(t *testing.T, access RoomAccess) *Hub {
	t.Helper()
	hub := NewHub(access, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func mustSubscribe(t *testing.T, hub *Hub, client *Client, roomID string) {
	t.Helper()
	if err := hub.Subscribe(context.Background(), client, roomID); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
}

func addClient(t *testing.T, hub *Hub, actorID string, actorType valueobject.ActorType) *Client {
	t.Helper()
	client := &Client{
		ID:    "conn-" + actorID + "-" + time.Now().Format("150405.000000000"),
		Actor: valueobject.NewActor(actorID, actorType),
		hub:   hub,
		send:  make(chan []byte, sendQueueSize),
		rooms: make(map[string]bool),
	}
	hub.register <- client
	waitFor(t, func() bool { return hub.IsActorOnline(actorID) })
	return client
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestHub_Presence(t *testing.T) {
	hub := startHub(t)

	if hub.IsActorOnline("user-1") {
		t.Error("actor should be offline with no connections")
	}

	client := addClient(t, hub, "user-1", valueobject.ActorTypeUser)
	if !hub.IsActorOnline("user-1") {
		t.Error("actor should be online after register")
	}

	hub.unregister <- client
	waitFor(t, func() bool { return !hub.IsActorOnline("user-1") })
}

func TestHub_PresenceWithMultipleConnections(t *testing.T) {
	hub := startHub(t)

	first := addClient(t, hub, "biz-1", valueobject.ActorTypeBusiness)
	time.Sleep(time.Millisecond)
	second := addClient(t, hub, "biz-1", valueobject.ActorTypeBusiness)

	hub.unregister <- first
	waitFor(t, func() bool { return hub.ConnectionCount() == 1 })
	if !hub.IsActorOnline("biz-1") {
		t.Error("actor with a surviving connection must stay online")
	}

	hub.unregister <- second
	waitFor(t, func() bool { return !hub.IsActorOnline("biz-1") })
}

func TestHub_BroadcastToRoom(t *testing.T) {
	hub := startHub(t)

	sender := addClient(t, hub, "user-1", valueobject.ActorTypeUser)
	receiver := addClient(t, hub, "biz-1", valueobject.ActorTypeBusiness)
	bystander := addClient(t, hub, "user-2", valueobject.ActorTypeUser)

	mustSubscribe(t, hub, sender, "room-1")
	mustSubscribe(t, hub, receiver, "room-1")
	mustSubscribe(t, hub, bystander, "room-2")

	delivered := hub.BroadcastToRoom("room-1", sender.ID, []byte("frame"))
	if delivered != 1 {
		t.Errorf("expected 1 delivery, got %d", delivered)
	}

	select {
	case data := <-receiver.send:
		if string(data) != "frame" {
			t.Errorf("unexpected frame %q", data)
		}
	default:
		t.Error("subscribed receiver got nothing")
	}
	select {
	case <-sender.send:
		t.Error("origin connection must not receive its own frame")
	default:
	}
	select {
	case <-bystander.send:
		t.Error("unsubscribed connection received a frame")
	default:
	}
}

func TestHub_SubscribeIsIdempotent(t *testing.T) {
	hub := startHub(t)

	client := addClient(t, hub, "user-1", valueobject.ActorTypeUser)
	mustSubscribe(t, hub, client, "room-1")
	mustSubscribe(t, hub, client, "room-1")

	if delivered := hub.BroadcastToRoom("room-1", "other-conn", []byte("x")); delivered != 1 {
		t.Errorf("duplicate subscribe must not double-deliver: got %d", delivered)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := startHub(t)

	client := addClient(t, hub, "user-1", valueobject.ActorTypeUser)
	mustSubscribe(t, hub, client, "room-1")
	hub.Unsubscribe(client, "room-1")
	// 重复退订安全
	hub.Unsubscribe(client, "room-1")

	if delivered := hub.BroadcastToRoom("room-1", "", []byte("x")); delivered != 0 {
		t.Errorf("unsubscribed connection still receiving: %d", delivered)
	}
}

func TestHub_SlowClientIsSkipped(t *testing.T) {
	hub := startHub(t)

	slow := addClient(t, hub, "user-1", valueobject.ActorTypeUser)
	mustSubscribe(t, hub, slow, "room-1")

	// 填满发送队列
	for i := 0; i < sendQueueSize; i++ {
		slow.send <- []byte("fill")
	}

	delivered := hub.BroadcastToRoom("room-1", "", []byte("dropped"))
	if delivered != 0 {
		t.Errorf("broadcast to a saturated client should be skipped, got %d", delivered)
	}
}

func TestHub_SubscribeRequiresParticipation(t *testing.T) {
	hub := startHubWithAccess(t, &fakeRoomAccess{members: map[string][]string{
		"room-1": {"user-1", "biz-1"},
	}})

	participant := addClient(t, hub, "user-1", valueobject.ActorTypeUser)
	outsider := addClient(t, hub, "user-2", valueobject.ActorTypeUser)

	mustSubscribe(t, hub, participant, "room-1")

	err := hub.Subscribe(context.Background(), outsider, "room-1")
	if err == nil {
		t.Fatal("non-participant subscribe must be rejected")
	}
	if !apperrors.Is(err, apperrors.CodeInvalidSender) {
		t.Errorf("expected INVALID_SENDER, got %v", err)
	}

	if delivered := hub.BroadcastToRoom("room-1", "", []byte("private")); delivered != 1 {
		t.Fatalf("expected only the participant to receive the frame, got %d", delivered)
	}
	select {
	case <-outsider.send:
		t.Error("non-participant received room traffic")
	default:
	}
	select {
	case data := <-participant.send:
		if string(data) != "private" {
			t.Errorf("unexpected frame %q", data)
		}
	default:
		t.Error("participant got nothing")
	}
}

func TestHub_ReleaseAfterShutdown(t *testing.T) {
	hub := NewHub(&fakeRoomAccess{}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	client := addClient(t, hub, "user-1", valueobject.ActorTypeUser)

	cancel()
	waitFor(t, func() bool {
		select {
		case <-hub.done:
			return true
		default:
			return false
		}
	})

	// 停机后读协程的收尾注销不能永久阻塞
	released := make(chan struct{})
	go func() {
		hub.release(client)
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("release blocked after hub shutdown")
	}
}

func TestHub_UnregisterCleansRoomIndex(t *testing.T) {
	hub := startHub(t)

	client := addClient(t, hub, "user-1", valueobject.ActorTypeUser)
	mustSubscribe(t, hub, client, "room-1")

	hub.unregister <- client
	waitFor(t, func() bool { return hub.ConnectionCount() == 0 })

	if delivered := hub.BroadcastToRoom("room-1", "", []byte("x")); delivered != 0 {
		t.Errorf("disconnected client still indexed in room: %d", delivered)
	}
}

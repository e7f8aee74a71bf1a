package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
	"github.com/localspot/localspot/chatcore/internal/domain/knowledge"
	"github.com/localspot/localspot/chatcore/internal/domain/valueobject"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/eventbus"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/persistence"
)

// fakeRetriever 固定返回预设结果的检索器
type fakeRetriever struct {
	docs  []knowledge.ScoredDocument
	err   error
	delay time.Duration
}

func (f *fakeRetriever) Retrieve(ctx context.Context, businessID, queryText string, k int) ([]knowledge.ScoredDocument, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

type fakePresence struct {
	online map[string]bool
}

func (f *fakePresence) IsActorOnline(actorID string) bool {
	return f.online[actorID]
}

type fakeGate struct {
	allowed bool
	err     error
}

func (f *fakeGate) AllowsAutoResponse(ctx context.Context, businessID string) (bool, error) {
	return f.allowed, f.err
}

type composerFixture struct {
	svc      *ConversationService
	composer *Composer
	presence *fakePresence
	bus      eventbus.Bus
}

func newComposerFixture(t *testing.T, retriever KnowledgeRetriever, gate BillingGate, opts ComposerOptions) *composerFixture {
	t.Helper()
	logger := testLogger()
	bus := eventbus.NewInMemoryBus(logger, 64)
	t.Cleanup(bus.Close)

	configs := persistence.NewMemoryAutoResponseConfigRepository()
	svc := NewConversationService(
		persistence.NewMemoryRoomRepository(),
		persistence.NewMemoryMessageRepository(),
		configs,
		bus,
		logger,
	)

	presence := &fakePresence{online: make(map[string]bool)}
	composer := NewComposer(svc, configs, retriever, presence, gate, opts, logger)
	return &composerFixture{svc: svc, composer: composer, presence: presence, bus: bus}
}

func (f *composerFixture) enableAutoResponse(t *testing.T, businessID string, templates []string) {
	t.Helper()
	cfg, err := entity.NewAutoResponseConfig(businessID, true, templates, "", nil, false, 0)
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	if err := f.svc.configs.Save(context.Background(), cfg); err != nil {
		t.Fatalf("save config failed: %v", err)
	}
}

func (f *composerFixture) postUserMessage(t *testing.T, content string) (*entity.Room, *entity.Message) {
	t.Helper()
	ctx := context.Background()
	room, err := f.svc.OpenRoom(ctx, "biz-1", "user-1")
	if err != nil {
		t.Fatalf("open room failed: %v", err)
	}
	msg, err := f.svc.PostMessage(ctx, room.ID(), userActor("user-1"), content, valueobject.Attachment{}, "")
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	return room, msg
}

func (f *composerFixture) roomMessages(t *testing.T, roomID string) []*entity.Message {
	t.Helper()
	page, err := f.svc.ListMessages(context.Background(), roomID, "user-1", "", 50)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	return page.Messages
}

func scoredDoc(t *testing.T, text string, score float32) knowledge.ScoredDocument {
	t.Helper()
	doc, err := entity.NewKnowledgeDocument("doc-"+text, "biz-1", text, "profile", []float32{1, 0}, time.Now().UTC())
	if err != nil {
		t.Fatalf("doc failed: %v", err)
	}
	return knowledge.ScoredDocument{Document: doc, Score: score}
}

// === 触发条件 ===

func TestComposer_SkipsWhenDisabled(t *testing.T) {
	f := newComposerFixture(t, &fakeRetriever{}, &fakeGate{allowed: true}, ComposerOptions{})
	// 未配置自动应答
	room, msg := f.postUserMessage(t, "are you open?")

	if err := f.composer.HandleUserMessage(context.Background(), room, msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if msgs := f.roomMessages(t, room.ID()); len(msgs) != 1 {
		t.Errorf("expected no auto reply, got %d messages", len(msgs))
	}
}

func TestComposer_SkipsWhenBusinessOnline(t *testing.T) {
	f := newComposerFixture(t, &fakeRetriever{}, &fakeGate{allowed: true}, ComposerOptions{})
	f.enableAutoResponse(t, "biz-1", nil)
	f.presence.online["biz-1"] = true
	room, msg := f.postUserMessage(t, "are you open?")

	if err := f.composer.HandleUserMessage(context.Background(), room, msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if msgs := f.roomMessages(t, room.ID()); len(msgs) != 1 {
		t.Errorf("expected no auto reply while business online, got %d messages", len(msgs))
	}
}

func TestComposer_SkipsWhenBillingDenies(t *testing.T) {
	f := newComposerFixture(t, &fakeRetriever{}, &fakeGate{allowed: false}, ComposerOptions{})
	f.enableAutoResponse(t, "biz-1", nil)
	room, msg := f.postUserMessage(t, "are you open?")

	if err := f.composer.HandleUserMessage(context.Background(), room, msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if msgs := f.roomMessages(t, room.ID()); len(msgs) != 1 {
		t.Errorf("expected no auto reply when plan disallows it, got %d messages", len(msgs))
	}
}

func TestComposer_IgnoresNonUserMessages(t *testing.T) {
	f := newComposerFixture(t, &fakeRetriever{}, &fakeGate{allowed: true}, ComposerOptions{})
	f.enableAutoResponse(t, "biz-1", nil)
	ctx := context.Background()
	room, _ := f.svc.OpenRoom(ctx, "biz-1", "user-1")
	msg, err := f.svc.PostMessage(ctx, room.ID(), businessActor("biz-1"), "manual reply", valueobject.Attachment{}, "")
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}

	if err := f.composer.HandleUserMessage(ctx, room, msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if msgs := f.roomMessages(t, room.ID()); len(msgs) != 1 {
		t.Errorf("business message must not trigger auto reply, got %d messages", len(msgs))
	}
}

// === 合成 ===

func TestComposer_RepliesWithMatchedKnowledge(t *testing.T) {
	retriever := &fakeRetriever{docs: []knowledge.ScoredDocument{
		scoredDoc(t, "Open 9am to 6pm on weekdays", 0.92),
		scoredDoc(t, "Closed on public holidays", 0.55),
	}}
	f := newComposerFixture(t, retriever, &fakeGate{allowed: true}, ComposerOptions{})
	f.enableAutoResponse(t, "biz-1", []string{"Hi, this is an automated reply."})
	room, msg := f.postUserMessage(t, "what are your hours?")

	if err := f.composer.HandleUserMessage(context.Background(), room, msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	msgs := f.roomMessages(t, room.ID())
	if len(msgs) != 2 {
		t.Fatalf("expected user message + auto reply, got %d", len(msgs))
	}
	reply := msgs[0]
	if !reply.IsFromAI() {
		t.Fatal("expected AI-sent reply")
	}
	if reply.Seq() <= msg.Seq() {
		t.Errorf("reply must be ordered after the question: %d <= %d", reply.Seq(), msg.Seq())
	}
	if !strings.Contains(reply.Content(), "Open 9am to 6pm") {
		t.Errorf("reply missing matched knowledge: %q", reply.Content())
	}
	if !strings.Contains(reply.Content(), "Hi, this is an automated reply.") {
		t.Errorf("reply missing business template: %q", reply.Content())
	}
}

func TestComposer_FiltersLowScores(t *testing.T) {
	retriever := &fakeRetriever{docs: []knowledge.ScoredDocument{
		scoredDoc(t, "barely related", 0.1),
	}}
	f := newComposerFixture(t, retriever, &fakeGate{allowed: true}, ComposerOptions{MinScore: 0.35})
	f.enableAutoResponse(t, "biz-1", []string{"We will get back to you."})
	room, msg := f.postUserMessage(t, "do you sell lamps?")

	if err := f.composer.HandleUserMessage(context.Background(), room, msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	msgs := f.roomMessages(t, room.ID())
	if len(msgs) != 2 {
		t.Fatalf("expected auto reply, got %d messages", len(msgs))
	}
	if got := msgs[0].Content(); got != "We will get back to you." {
		t.Errorf("expected bare template when nothing relevant matches, got %q", got)
	}
}

func TestComposer_FallbackTemplateWhenNoConfigTemplates(t *testing.T) {
	f := newComposerFixture(t, &fakeRetriever{}, &fakeGate{allowed: true}, ComposerOptions{})
	f.enableAutoResponse(t, "biz-1", nil)
	room, msg := f.postUserMessage(t, "hello?")

	if err := f.composer.HandleUserMessage(context.Background(), room, msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	msgs := f.roomMessages(t, room.ID())
	if len(msgs) != 2 {
		t.Fatalf("expected auto reply, got %d messages", len(msgs))
	}
	if got := msgs[0].Content(); got != DefaultFallbackTemplate {
		t.Errorf("expected fallback template, got %q", got)
	}
}

// === 降级 ===

func TestComposer_RetrievalTimeoutFallsBack(t *testing.T) {
	retriever := &fakeRetriever{
		docs:  []knowledge.ScoredDocument{scoredDoc(t, "should never appear", 0.99)},
		delay: 200 * time.Millisecond,
	}
	f := newComposerFixture(t, retriever, &fakeGate{allowed: true}, ComposerOptions{RetrievalTimeout: 20 * time.Millisecond})
	f.enableAutoResponse(t, "biz-1", nil)
	room, msg := f.postUserMessage(t, "slow question")

	start := time.Now()
	if err := f.composer.HandleUserMessage(context.Background(), room, msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("handler waited past the retrieval timeout: %v", elapsed)
	}

	msgs := f.roomMessages(t, room.ID())
	if len(msgs) != 2 {
		t.Fatalf("expected fallback reply, got %d messages", len(msgs))
	}
	if strings.Contains(msgs[0].Content(), "should never appear") {
		t.Error("timed-out retrieval results leaked into the reply")
	}
	if msgs[0].Content() != DefaultFallbackTemplate {
		t.Errorf("expected fallback template, got %q", msgs[0].Content())
	}
}

func TestComposer_SlowRetrievalDoesNotStallEventDispatch(t *testing.T) {
	retriever := &fakeRetriever{
		docs:  []knowledge.ScoredDocument{scoredDoc(t, "slow answer", 0.9)},
		delay: 400 * time.Millisecond,
	}
	f := newComposerFixture(t, retriever, &fakeGate{allowed: true}, ComposerOptions{RetrievalTimeout: time.Second})
	f.enableAutoResponse(t, "biz-1", nil)
	f.composer.Register(f.bus)

	dispatched := make(chan time.Time, 8)
	f.bus.Subscribe(eventbus.EventTypeMessageCreated, func(ctx context.Context, e eventbus.Event) {
		dispatched <- time.Now()
	})

	ctx := context.Background()
	roomA, err := f.svc.OpenRoom(ctx, "biz-1", "user-1")
	if err != nil {
		t.Fatalf("open room failed: %v", err)
	}
	roomB, err := f.svc.OpenRoom(ctx, "biz-2", "user-2")
	if err != nil {
		t.Fatalf("open room failed: %v", err)
	}

	if _, err := f.svc.PostMessage(ctx, roomA.ID(), userActor("user-1"), "slow question", valueobject.Attachment{}, ""); err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if _, err := f.svc.PostMessage(ctx, roomB.ID(), userActor("user-2"), "quick question", valueobject.Attachment{}, ""); err != nil {
		t.Fatalf("post failed: %v", err)
	}

	var first, second time.Time
	select {
	case first = <-dispatched:
	case <-time.After(time.Second):
		t.Fatal("first event never dispatched")
	}
	select {
	case second = <-dispatched:
	case <-time.After(time.Second):
		t.Fatal("second event never dispatched")
	}
	// 第一条消息的自动应答还在检索中, 第二条消息的扇出不能等它
	if gap := second.Sub(first); gap > 200*time.Millisecond {
		t.Errorf("second event waited on the first auto-response run: %v", gap)
	}
}

func TestComposer_RetrieverErrorFallsBack(t *testing.T) {
	retriever := &fakeRetriever{err: context.DeadlineExceeded}
	f := newComposerFixture(t, retriever, &fakeGate{allowed: true}, ComposerOptions{})
	f.enableAutoResponse(t, "biz-1", []string{"We are away."})
	room, msg := f.postUserMessage(t, "hello?")

	if err := f.composer.HandleUserMessage(context.Background(), room, msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	msgs := f.roomMessages(t, room.ID())
	if len(msgs) != 2 || msgs[0].Content() != "We are away." {
		t.Errorf("expected template fallback on retriever error, got %d messages", len(msgs))
	}
}

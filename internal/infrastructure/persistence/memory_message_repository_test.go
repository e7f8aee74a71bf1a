package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
	"github.com/localspot/localspot/chatcore/internal/domain/valueobject"
	apperrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

func mustMessage(t *testing.T, id string, seq int64, senderID string, senderType valueobject.ActorType) *entity.Message {
	t.Helper()
	msg, err := entity.NewMessage(id, "room-1", seq, fmt.Sprintf("content %d", seq), valueobject.Attachment{}, valueobject.NewActor(senderID, senderType))
	if err != nil {
		t.Fatalf("message failed: %v", err)
	}
	return msg
}

func TestMemoryMessageRepository_SaveAndFind(t *testing.T) {
	repo := NewMemoryMessageRepository()
	ctx := context.Background()

	msg := mustMessage(t, "m1", 1, "user-1", valueobject.ActorTypeUser)
	if err := repo.Save(ctx, msg); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	found, err := repo.FindByID(ctx, "m1")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found.Content() != msg.Content() {
		t.Errorf("content mismatch: %q", found.Content())
	}

	if _, err := repo.FindByID(ctx, "missing"); !apperrors.IsNotFound(err) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestMemoryMessageRepository_SaveReturnsCopies(t *testing.T) {
	repo := NewMemoryMessageRepository()
	ctx := context.Background()

	msg := mustMessage(t, "m1", 1, "biz-1", valueobject.ActorTypeBusiness)
	repo.Save(ctx, msg)

	// 改动取出的副本不应影响仓储里的记录
	found, _ := repo.FindByID(ctx, "m1")
	found.MarkReadBy("user-1", time.Now())

	fresh, _ := repo.FindByID(ctx, "m1")
	if fresh.IsReadBy("user-1") {
		t.Error("mutating a returned copy leaked into the repository")
	}
}

func TestMemoryMessageRepository_LastSeq(t *testing.T) {
	repo := NewMemoryMessageRepository()
	ctx := context.Background()

	if seq, _ := repo.LastSeq(ctx, "room-1"); seq != 0 {
		t.Errorf("expected 0 for empty room, got %d", seq)
	}

	for i := int64(1); i <= 3; i++ {
		repo.Save(ctx, mustMessage(t, fmt.Sprintf("m%d", i), i, "user-1", valueobject.ActorTypeUser))
	}
	if seq, _ := repo.LastSeq(ctx, "room-1"); seq != 3 {
		t.Errorf("expected last seq 3, got %d", seq)
	}
}

func TestMemoryMessageRepository_FindPageBefore(t *testing.T) {
	repo := NewMemoryMessageRepository()
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		repo.Save(ctx, mustMessage(t, fmt.Sprintf("m%d", i), i, "user-1", valueobject.ActorTypeUser))
	}

	t.Run("latest page", func(t *testing.T) {
		page, err := repo.FindPageBefore(ctx, "room-1", 0, 2)
		if err != nil {
			t.Fatalf("page failed: %v", err)
		}
		if len(page) != 2 || page[0].Seq() != 5 || page[1].Seq() != 4 {
			t.Errorf("unexpected page: %d messages", len(page))
		}
	})

	t.Run("bounded page", func(t *testing.T) {
		page, _ := repo.FindPageBefore(ctx, "room-1", 4, 10)
		if len(page) != 3 || page[0].Seq() != 3 {
			t.Errorf("expected seqs 3,2,1, got %d messages", len(page))
		}
	})

	t.Run("empty room", func(t *testing.T) {
		page, _ := repo.FindPageBefore(ctx, "room-x", 0, 10)
		if len(page) != 0 {
			t.Errorf("expected empty page, got %d", len(page))
		}
	})
}

func TestMemoryMessageRepository_FindUnreadForReader(t *testing.T) {
	repo := NewMemoryMessageRepository()
	ctx := context.Background()

	repo.Save(ctx, mustMessage(t, "m1", 1, "biz-1", valueobject.ActorTypeBusiness))
	repo.Save(ctx, mustMessage(t, "m2", 2, "user-1", valueobject.ActorTypeUser))
	read := mustMessage(t, "m3", 3, "biz-1", valueobject.ActorTypeBusiness)
	read.MarkReadBy("user-1", time.Now())
	repo.Save(ctx, read)
	repo.Save(ctx, mustMessage(t, "m4", 4, "biz-1", valueobject.ActorTypeBusiness))
	repo.Save(ctx, mustMessage(t, "m5", 5, "biz-1", valueobject.ActorTypeBusiness))

	unread, err := repo.FindUnreadForReader(ctx, "room-1", "user-1", 4)
	if err != nil {
		t.Fatalf("find unread failed: %v", err)
	}
	// m2 是本人发送, m3 已读, m5 超出边界
	if len(unread) != 2 || unread[0].ID() != "m1" || unread[1].ID() != "m4" {
		ids := make([]string, 0, len(unread))
		for _, m := range unread {
			ids = append(ids, m.ID())
		}
		t.Errorf("expected [m1 m4], got %v", ids)
	}
}

func TestMemoryMessageRepository_Count(t *testing.T) {
	repo := NewMemoryMessageRepository()
	ctx := context.Background()

	repo.Save(ctx, mustMessage(t, "m1", 1, "user-1", valueobject.ActorTypeUser))
	repo.Save(ctx, mustMessage(t, "m2", 2, "user-1", valueobject.ActorTypeUser))

	if n, _ := repo.Count(ctx, "room-1"); n != 2 {
		t.Errorf("expected count 2, got %d", n)
	}
	if n, _ := repo.Count(ctx, "room-x"); n != 0 {
		t.Errorf("expected count 0, got %d", n)
	}
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/localspot/localspot/chatcore/internal/domain/knowledge"
	"github.com/localspot/localspot/chatcore/internal/domain/service"
	"github.com/localspot/localspot/chatcore/internal/domain/valueobject"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/embedding"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/eventbus"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/identity"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/monitoring"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/persistence"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/profile"
	"github.com/localspot/localspot/chatcore/internal/interfaces/http/handlers"
	ws "github.com/localspot/localspot/chatcore/internal/interfaces/websocket"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()

	bus := eventbus.NewInMemoryBus(logger, 64)
	t.Cleanup(bus.Close)

	configs := persistence.NewMemoryAutoResponseConfigRepository()
	conversations := service.NewConversationService(
		persistence.NewMemoryRoomRepository(),
		persistence.NewMemoryMessageRepository(),
		configs,
		bus,
		logger,
	)

	retriever := knowledge.NewRetriever(
		embedding.NewLocalEmbedder(32),
		persistence.NewMemoryKnowledgeRepository(),
		profile.NewStaticSource(logger),
		configs,
		bus,
		logger,
	)

	verifier := identity.NewStaticVerifier(map[string]valueobject.Actor{
		"user-token": valueobject.NewActor("user-1", valueobject.ActorTypeUser),
		"biz-token":  valueobject.NewActor("biz-1", valueobject.ActorTypeBusiness),
	})

	monitor := monitoring.NewMonitor()
	hub := ws.NewHub(conversations, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	router := gin.New()
	setupRoutes(router, Deps{
		Rooms:     handlers.NewRoomHandler(conversations, monitor, logger),
		Knowledge: handlers.NewKnowledgeHandler(retriever, configs, monitor, logger),
		WS:        ws.NewHandler(hub, verifier, logger),
		Verifier:  verifier,
		Monitor:   monitor,
	}, logger)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode failed: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode failed: %v (body %s)", err, w.Body.String())
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, w, &resp)
	return resp.Error.Code
}

func TestRoutes_RequireAuth(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/rooms", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/rooms", "bogus", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown token, got %d", w.Code)
	}
}

func TestRoomFlow(t *testing.T) {
	router := newTestRouter(t)

	// 开房间
	w := doJSON(t, router, http.MethodPost, "/api/v1/rooms", "user-token", map[string]string{"business_id": "biz-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("open room: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var room handlers.RoomResponse
	decode(t, w, &room)
	if room.BusinessID != "biz-1" || room.UserID != "user-1" {
		t.Fatalf("unexpected room: %+v", room)
	}

	// 发消息
	w = doJSON(t, router, http.MethodPost, "/api/v1/rooms/"+room.ID+"/messages", "user-token", map[string]string{"content": "hello"})
	if w.Code != http.StatusCreated {
		t.Fatalf("post message: expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var msg handlers.MessageResponse
	decode(t, w, &msg)
	if msg.Seq != 1 || msg.SenderType != "USER" {
		t.Errorf("unexpected message: %+v", msg)
	}

	// 商家回复并列表
	w = doJSON(t, router, http.MethodPost, "/api/v1/rooms/"+room.ID+"/messages", "biz-token", map[string]string{"content": "hi there"})
	if w.Code != http.StatusCreated {
		t.Fatalf("business reply: expected 201, got %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/rooms/"+room.ID+"/messages?limit=10", "user-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list messages: expected 200, got %d", w.Code)
	}
	var page handlers.ListMessagesResponse
	decode(t, w, &page)
	if len(page.Messages) != 2 || page.Messages[0].Seq != 2 {
		t.Errorf("unexpected page: %d messages", len(page.Messages))
	}

	// 已读回执
	w = doJSON(t, router, http.MethodPost, "/api/v1/rooms/"+room.ID+"/read", "user-token", map[string]string{"up_to_message_id": page.Messages[0].ID})
	if w.Code != http.StatusOK {
		t.Fatalf("mark read: expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	// 商家关闭房间后写入被拒
	w = doJSON(t, router, http.MethodPatch, "/api/v1/rooms/"+room.ID+"/status", "biz-token", map[string]string{"status": "CLOSED"})
	if w.Code != http.StatusOK {
		t.Fatalf("close room: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	w = doJSON(t, router, http.MethodPost, "/api/v1/rooms/"+room.ID+"/messages", "user-token", map[string]string{"content": "anyone?"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for closed room, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "ROOM_CLOSED" {
		t.Errorf("expected ROOM_CLOSED, got %s", code)
	}
}

func TestRoomAuthorization(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/rooms", "user-token", map[string]string{"business_id": "biz-1"})
	var room handlers.RoomResponse
	decode(t, w, &room)

	t.Run("user cannot open for someone else", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/rooms", "user-token", map[string]string{"business_id": "biz-1", "user_id": "user-99"})
		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
	})

	t.Run("user cannot close a room", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPatch, "/api/v1/rooms/"+room.ID+"/status", "user-token", map[string]string{"status": "CLOSED"})
		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
		if code := errorCode(t, w); code != "INVALID_SENDER" {
			t.Errorf("expected INVALID_SENDER, got %s", code)
		}
	})

	t.Run("unknown room is 404", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/v1/rooms/nope/messages", "user-token", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})
}

func TestKnowledgeEndpoints(t *testing.T) {
	router := newTestRouter(t)

	t.Run("only the business manages its knowledge", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/businesses/biz-1/knowledge/sync", "user-token", nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403 for user, got %d", w.Code)
		}
		w = doJSON(t, router, http.MethodPost, "/api/v1/businesses/biz-2/knowledge/sync", "biz-token", nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403 for foreign business, got %d", w.Code)
		}
	})

	t.Run("config roundtrip and sync", func(t *testing.T) {
		body := map[string]any{
			"enabled":       true,
			"templates":     []string{"We reply fast."},
			"training_text": "We are open on weekends.\n\nFree parking behind the shop.",
			"auto_sync":     true,
			"sync_cadence":  "1h",
		}
		w := doJSON(t, router, http.MethodPut, "/api/v1/businesses/biz-1/autoresponse", "biz-token", body)
		if w.Code != http.StatusOK {
			t.Fatalf("put config: expected 200, got %d (%s)", w.Code, w.Body.String())
		}

		w = doJSON(t, router, http.MethodGet, "/api/v1/businesses/biz-1/autoresponse", "biz-token", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("get config: expected 200, got %d", w.Code)
		}
		var cfg handlers.AutoResponseConfigResponse
		decode(t, w, &cfg)
		if !cfg.Enabled || cfg.SyncCadence != "1h0m0s" {
			t.Errorf("unexpected config: %+v", cfg)
		}

		w = doJSON(t, router, http.MethodPost, "/api/v1/businesses/biz-1/knowledge/sync", "biz-token", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("sync: expected 200, got %d (%s)", w.Code, w.Body.String())
		}
		var sync handlers.SyncResponse
		decode(t, w, &sync)
		if sync.Documents != 2 {
			t.Errorf("expected 2 training documents, got %d", sync.Documents)
		}

		w = doJSON(t, router, http.MethodGet, "/api/v1/businesses/biz-1/knowledge/query?q=parking", "biz-token", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("query: expected 200, got %d (%s)", w.Code, w.Body.String())
		}
	})

	t.Run("invalid cadence rejected", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPut, "/api/v1/businesses/biz-1/autoresponse", "biz-token", map[string]any{
			"enabled":      true,
			"sync_cadence": "whenever",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("metrics: expected 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("chatcore_")) {
		t.Error("metrics output missing chatcore_ series")
	}
}

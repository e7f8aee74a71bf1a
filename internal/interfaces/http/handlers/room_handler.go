package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
	"github.com/localspot/localspot/chatcore/internal/domain/service"
	"github.com/localspot/localspot/chatcore/internal/domain/valueobject"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/monitoring"
	apperrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

// ContextActorKey 认证中间件写入的参与者键
const ContextActorKey = "actor"

// ActorFrom 从请求上下文取出已认证参与者
func ActorFrom(c *gin.Context) (valueobject.Actor, bool) {
	v, ok := c.Get(ContextActorKey)
	if !ok {
		return valueobject.Actor{}, false
	}
	actor, ok := v.(valueobject.Actor)
	return actor, ok
}

// originConnID 取发起方 WebSocket 连接标识, 用于推送回声抑制
func originConnID(c *gin.Context) string {
	return c.GetHeader("X-Connection-ID")
}

type RoomHandler struct {
	conversations *service.ConversationService
	monitor       *monitoring.Monitor
	logger        *zap.Logger
}

func NewRoomHandler(conversations *service.ConversationService, monitor *monitoring.Monitor, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{
		conversations: conversations,
		monitor:       monitor,
		logger:        logger,
	}
}

type OpenRoomRequest struct {
	BusinessID string `json:"business_id"`
	UserID     string `json:"user_id"`
}

type RoomResponse struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type AttachmentPayload struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

type PostMessageRequest struct {
	Content    string             `json:"content"`
	Attachment *AttachmentPayload `json:"attachment"`
}

type MessageResponse struct {
	ID         string               `json:"id"`
	RoomID     string               `json:"room_id"`
	Seq        int64                `json:"seq"`
	Content    string               `json:"content"`
	Attachment *AttachmentPayload   `json:"attachment,omitempty"`
	SenderID   string               `json:"sender_id"`
	SenderType string               `json:"sender_type"`
	Delivery   string               `json:"delivery"`
	ReadBy     map[string]time.Time `json:"read_by,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

type MarkReadRequest struct {
	UpToMessageID string `json:"up_to_message_id" binding:"required"`
}

type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type ListMessagesResponse struct {
	Messages   []*MessageResponse `json:"messages"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// OpenRoom 打开 (商家, 消费者) 房间; 幂等
// 消费者只能为自己开房间, 商家只能开自己名下的房间
func (h *RoomHandler) OpenRoom(c *gin.Context) {
	actor, ok := ActorFrom(c)
	if !ok {
		respondError(c, apperrors.NewUnauthenticatedError("authentication required"))
		return
	}

	var req OpenRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	// 缺省用当前身份补齐己方一侧
	switch {
	case actor.IsUser():
		if req.UserID == "" {
			req.UserID = actor.ID()
		}
		if req.UserID != actor.ID() {
			respondError(c, apperrors.New(apperrors.CodeInvalidSender, "user may only open rooms for itself"))
			return
		}
	case actor.IsBusiness():
		if req.BusinessID == "" {
			req.BusinessID = actor.ID()
		}
		if req.BusinessID != actor.ID() {
			respondError(c, apperrors.New(apperrors.CodeInvalidSender, "business may only open its own rooms"))
			return
		}
	default:
		respondError(c, apperrors.New(apperrors.CodeInvalidSender, "only users and businesses open rooms"))
		return
	}

	room, err := h.conversations.OpenRoom(c.Request.Context(), req.BusinessID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRoomResponse(room))
}

// ListRooms 列出当前参与者的房间
func (h *RoomHandler) ListRooms(c *gin.Context) {
	actor, ok := ActorFrom(c)
	if !ok {
		respondError(c, apperrors.NewUnauthenticatedError("authentication required"))
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	rooms, err := h.conversations.ListRooms(c.Request.Context(), actor.ID(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]*RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		resp = append(resp, toRoomResponse(room))
	}
	c.JSON(http.StatusOK, gin.H{"rooms": resp})
}

// PostMessage 向房间发送消息
func (h *RoomHandler) PostMessage(c *gin.Context) {
	actor, ok := ActorFrom(c)
	if !ok {
		respondError(c, apperrors.NewUnauthenticatedError("authentication required"))
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	var attachment valueobject.Attachment
	if req.Attachment != nil {
		attachment = valueobject.NewAttachment(req.Attachment.URL, req.Attachment.MimeType, req.Attachment.Size)
	}

	msg, err := h.conversations.PostMessage(c.Request.Context(), c.Param("id"), actor, req.Content, attachment, originConnID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	h.monitor.IncMessagesPosted()
	c.JSON(http.StatusCreated, toMessageResponse(msg))
}

// MarkRead 提交已读回执
func (h *RoomHandler) MarkRead(c *gin.Context) {
	actor, ok := ActorFrom(c)
	if !ok {
		respondError(c, apperrors.NewUnauthenticatedError("authentication required"))
		return
	}

	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	if err := h.conversations.MarkRead(c.Request.Context(), c.Param("id"), actor.ID(), req.UpToMessageID, originConnID(c)); err != nil {
		respondError(c, err)
		return
	}

	h.monitor.IncReadReceipts()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListMessages 倒序分页拉取房间消息
func (h *RoomHandler) ListMessages(c *gin.Context) {
	actor, ok := ActorFrom(c)
	if !ok {
		respondError(c, apperrors.NewUnauthenticatedError("authentication required"))
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	page, err := h.conversations.ListMessages(c.Request.Context(), c.Param("id"), actor.ID(), c.Query("cursor"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := &ListMessagesResponse{
		Messages:   make([]*MessageResponse, 0, len(page.Messages)),
		NextCursor: page.NextCursor,
	}
	for _, msg := range page.Messages {
		resp.Messages = append(resp.Messages, toMessageResponse(msg))
	}
	c.JSON(http.StatusOK, resp)
}

// SetStatus 变更房间状态
func (h *RoomHandler) SetStatus(c *gin.Context) {
	actor, ok := ActorFrom(c)
	if !ok {
		respondError(c, apperrors.NewUnauthenticatedError("authentication required"))
		return
	}

	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	room, err := h.conversations.SetRoomStatus(c.Request.Context(), c.Param("id"), entity.RoomStatus(req.Status), actor, originConnID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRoomResponse(room))
}

func toRoomResponse(room *entity.Room) *RoomResponse {
	return &RoomResponse{
		ID:         room.ID(),
		BusinessID: room.BusinessID(),
		UserID:     room.UserID(),
		Status:     string(room.Status()),
		CreatedAt:  room.CreatedAt(),
		UpdatedAt:  room.UpdatedAt(),
	}
}

func toMessageResponse(msg *entity.Message) *MessageResponse {
	resp := &MessageResponse{
		ID:         msg.ID(),
		RoomID:     msg.RoomID(),
		Seq:        msg.Seq(),
		Content:    msg.Content(),
		SenderID:   msg.Sender().ID(),
		SenderType: string(msg.Sender().Type()),
		Delivery:   string(msg.Delivery()),
		CreatedAt:  msg.CreatedAt(),
	}
	if att := msg.Attachment(); !att.IsZero() {
		resp.Attachment = &AttachmentPayload{
			URL:      att.URL(),
			MimeType: att.MimeType(),
			Size:     att.Size(),
		}
	}
	if readers := msg.Readers(); len(readers) > 0 {
		resp.ReadBy = readers
	}
	return resp
}

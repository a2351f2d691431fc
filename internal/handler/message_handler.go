package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/movaschool/movaschool/internal/model"
)

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	Send(ctx context.Context, sender *model.Profile, recipientID, body string) (*model.Message, error)
	Conversation(ctx context.Context, user *model.Profile, otherID string, since time.Time, limit int) ([]*model.Message, error)
}

// MessageHandler はチャットメッセージのHTTPハンドラー。
type MessageHandler struct {
	service  ChatServiceInterface
	profiles ProfileFinder
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(service ChatServiceInterface, profiles ProfileFinder) *MessageHandler {
	return &MessageHandler{
		service:  service,
		profiles: profiles,
	}
}

// sendMessageRequest はメッセージ送信リクエストのボディ。
type sendMessageRequest struct {
	RecipientID string `json:"recipient_id"`
	Body        string `json:"body"`
}

// messageResponse はメッセージのAPIレスポンス。
type messageResponse struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// Send はメッセージを送信する。
// POST /api/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	actor, ok := resolveActor(w, r, h.profiles)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	msg, err := h.service.Send(r.Context(), actor, req.RecipientID, req.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toMessageResponse(msg))
}

// Conversation は相手ユーザーとの会話履歴を返す。
// GET /api/messages/{userID}?since=RFC3339&limit=50
func (h *MessageHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	actor, ok := resolveActor(w, r, h.profiles)
	if !ok {
		return
	}

	otherID := chi.URLParam(r, "userID")
	limit := parseIntQuery(r, "limit", 0)

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
			return
		}
		since = parsed
	}

	messages, err := h.service.Conversation(r.Context(), actor, otherID, since, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]messageResponse, len(messages))
	for i, msg := range messages {
		results[i] = toMessageResponse(msg)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"messages": results,
	})
}

// toMessageResponse はmodel.MessageからAPIレスポンスに変換する。
func toMessageResponse(msg *model.Message) messageResponse {
	return messageResponse{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		Body:        msg.Body,
		CreatedAt:   msg.CreatedAt,
	}
}

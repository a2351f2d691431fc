package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/movaschool/movaschool/internal/lesson"
	"github.com/movaschool/movaschool/internal/model"
)

// LessonServiceInterface はレッスン申込ハンドラーが必要とするサービスインターフェース。
type LessonServiceInterface interface {
	Apply(ctx context.Context, student *model.Profile, input lesson.ApplyInput) (*model.Application, error)
	Approve(ctx context.Context, actor *model.Profile, applicationID string) (*model.Application, error)
	Decline(ctx context.Context, actor *model.Profile, applicationID string) (*model.Application, error)
	ListForStudent(ctx context.Context, studentID string) ([]*model.Application, error)
	ListForTeacher(ctx context.Context, teacherID string) ([]*model.Application, error)
}

// ApplicationHandler はレッスン申込のHTTPハンドラー。
type ApplicationHandler struct {
	service  LessonServiceInterface
	profiles ProfileFinder
}

// NewApplicationHandler はApplicationHandlerを生成する。
func NewApplicationHandler(service LessonServiceInterface, profiles ProfileFinder) *ApplicationHandler {
	return &ApplicationHandler{
		service:  service,
		profiles: profiles,
	}
}

// applyRequest は申込作成リクエストのボディ。
type applyRequest struct {
	TeacherID string    `json:"teacher_id"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	StartsAt  time.Time `json:"starts_at"`
}

// applicationResponse は申込情報のAPIレスポンス。
type applicationResponse struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	TeacherID string    `json:"teacher_id"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	StartsAt  time.Time `json:"starts_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Apply はレッスン申込を作成する。
// POST /api/applications
func (h *ApplicationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	actor, ok := resolveActor(w, r, h.profiles)
	if !ok {
		return
	}

	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	app, err := h.service.Apply(r.Context(), actor, lesson.ApplyInput{
		TeacherID: req.TeacherID,
		Subject:   req.Subject,
		Message:   req.Message,
		StartsAt:  req.StartsAt,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toApplicationResponse(app))
}

// ListMine は生徒として送った申込の一覧を返す。
// GET /api/applications
func (h *ApplicationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := resolveActor(w, r, h.profiles)
	if !ok {
		return
	}

	apps, err := h.service.ListForStudent(r.Context(), actor.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeApplicationList(w, apps)
}

// ListIncoming は講師として受け取った申込の一覧を返す。
// GET /api/applications/incoming
func (h *ApplicationHandler) ListIncoming(w http.ResponseWriter, r *http.Request) {
	actor, ok := resolveActor(w, r, h.profiles)
	if !ok {
		return
	}

	if !actor.Can(model.CapabilityReviewApplications) {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		return
	}

	apps, err := h.service.ListForTeacher(r.Context(), actor.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeApplicationList(w, apps)
}

// Approve は申込を承認する。
// POST /api/applications/{id}/approve
func (h *ApplicationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.service.Approve)
}

// Decline は申込を却下する。
// POST /api/applications/{id}/decline
func (h *ApplicationHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.service.Decline)
}

// review はApprove/Declineに共通の審査処理を実行する。
func (h *ApplicationHandler) review(
	w http.ResponseWriter,
	r *http.Request,
	decide func(ctx context.Context, actor *model.Profile, applicationID string) (*model.Application, error),
) {
	actor, ok := resolveActor(w, r, h.profiles)
	if !ok {
		return
	}

	applicationID := chi.URLParam(r, "id")

	app, err := decide(r.Context(), actor, applicationID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toApplicationResponse(app))
}

// writeApplicationList は申込一覧レスポンスを書き込む。
func writeApplicationList(w http.ResponseWriter, apps []*model.Application) {
	results := make([]applicationResponse, len(apps))
	for i, app := range apps {
		results[i] = toApplicationResponse(app)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"applications": results,
	})
}

// toApplicationResponse はmodel.ApplicationからAPIレスポンスに変換する。
func toApplicationResponse(app *model.Application) applicationResponse {
	return applicationResponse{
		ID:        app.ID,
		StudentID: app.StudentID,
		TeacherID: app.TeacherID,
		Subject:   app.Subject,
		Message:   app.Message,
		Status:    string(app.Status),
		StartsAt:  app.StartsAt,
		CreatedAt: app.CreatedAt,
		UpdatedAt: app.UpdatedAt,
	}
}

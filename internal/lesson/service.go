// Package lesson はレッスン申込の作成と審査を提供する。
package lesson

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/movaschool/movaschool/internal/model"
	"github.com/movaschool/movaschool/internal/repository"
	"github.com/movaschool/movaschool/internal/security"
)

// Service はレッスン申込に関するビジネスロジックを提供する。
type Service struct {
	applicationRepo repository.ApplicationRepository
	profileRepo     repository.ProfileRepository
	sanitizer       security.ContentSanitizerService
}

// NewService はServiceを生成する。
func NewService(
	applicationRepo repository.ApplicationRepository,
	profileRepo repository.ProfileRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		applicationRepo: applicationRepo,
		profileRepo:     profileRepo,
		sanitizer:       sanitizer,
	}
}

// ApplyInput は申込の入力を表す。
type ApplyInput struct {
	TeacherID string
	Subject   string
	Message   string
	StartsAt  time.Time
}

// Apply は生徒から講師への申込を作成する。状態はpendingで開始する。
func (s *Service) Apply(ctx context.Context, student *model.Profile, input ApplyInput) (*model.Application, error) {
	teacher, err := s.profileRepo.FindByID(ctx, input.TeacherID)
	if err != nil {
		return nil, fmt.Errorf("failed to find teacher: %w", err)
	}
	if teacher == nil || teacher.Role != model.RoleTeacher {
		return nil, model.NewTeacherNotFoundError()
	}

	now := time.Now()
	application := &model.Application{
		ID:        uuid.New().String(),
		StudentID: student.ID,
		TeacherID: input.TeacherID,
		Subject:   s.sanitizer.SanitizePlain(input.Subject),
		Message:   s.sanitizer.SanitizePlain(input.Message),
		Status:    model.ApplicationPending,
		StartsAt:  input.StartsAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.applicationRepo.Create(ctx, application); err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	slog.Info("lesson application created",
		slog.String("application_id", application.ID),
		slog.String("student_id", student.ID),
		slog.String("teacher_id", input.TeacherID),
	)
	return application, nil
}

// Approve は申込を承認する。
func (s *Service) Approve(ctx context.Context, actor *model.Profile, applicationID string) (*model.Application, error) {
	return s.review(ctx, actor, applicationID, model.ApplicationApproved)
}

// Decline は申込を却下する。
func (s *Service) Decline(ctx context.Context, actor *model.Profile, applicationID string) (*model.Application, error) {
	return s.review(ctx, actor, applicationID, model.ApplicationDeclined)
}

// review は申込の審査本体。reviewApplications権限が必要で、
// 講師は自分宛の申込のみ審査できる。管理者は全申込を審査できる。
// pending以外の申込は再審査できない。
func (s *Service) review(ctx context.Context, actor *model.Profile, applicationID string, status model.ApplicationStatus) (*model.Application, error) {
	if !actor.Can(model.CapabilityReviewApplications) {
		return nil, model.NewForbiddenError()
	}

	application, err := s.applicationRepo.FindByID(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to find application: %w", err)
	}
	if application == nil {
		return nil, model.NewApplicationNotFoundError(applicationID)
	}
	if actor.Role == model.RoleTeacher && application.TeacherID != actor.ID {
		return nil, model.NewForbiddenError()
	}
	if application.Status != model.ApplicationPending {
		return nil, model.NewApplicationReviewedError()
	}

	if err := s.applicationRepo.UpdateStatus(ctx, applicationID, status); err != nil {
		return nil, fmt.Errorf("failed to update application status: %w", err)
	}

	application.Status = status
	application.UpdatedAt = time.Now()
	slog.Info("lesson application reviewed",
		slog.String("application_id", applicationID),
		slog.String("status", string(status)),
		slog.String("actor_id", actor.ID),
	)
	return application, nil
}

// ListForStudent は生徒自身の申込一覧を返す。
func (s *Service) ListForStudent(ctx context.Context, studentID string) ([]*model.Application, error) {
	applications, err := s.applicationRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return applications, nil
}

// ListForTeacher は講師宛の申込一覧を返す。
func (s *Service) ListForTeacher(ctx context.Context, teacherID string) ([]*model.Application, error) {
	applications, err := s.applicationRepo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return applications, nil
}

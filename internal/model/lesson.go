package model

import "time"

// ApplicationStatus はレッスン申込の状態を表す。
type ApplicationStatus string

const (
	// ApplicationPending は審査待ち。
	ApplicationPending ApplicationStatus = "pending"
	// ApplicationApproved は承認済み。
	ApplicationApproved ApplicationStatus = "approved"
	// ApplicationDeclined は却下済み。
	ApplicationDeclined ApplicationStatus = "declined"
)

// Application は生徒から講師へのレッスン申込を表す。
type Application struct {
	ID        string
	StudentID string
	TeacherID string
	Subject   string
	Message   string
	Status    ApplicationStatus
	StartsAt  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message は2ユーザー間のチャットメッセージを表す。
type Message struct {
	ID          string
	SenderID    string
	RecipientID string
	Body        string
	CreatedAt   time.Time
}

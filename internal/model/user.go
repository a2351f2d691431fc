// Package model はドメインモデルを定義する。
package model

import "time"

// Identity は認証サービスが管理する認証主体を表す。
// IDは発行後不変。サインアップ時のメタデータ（氏名・年齢）を保持する。
type Identity struct {
	ID             string
	Email          string
	PasswordHash   string
	EmailConfirmed bool
	FirstName      string
	LastName       string
	Age            *int
	CreatedAt      time.Time
}

// Profile はアプリケーション側のユーザーレコードを表す。
// Identityと1:1で対応し、初回サインイン時に遅延作成される。
type Profile struct {
	ID        string
	Email     string
	Role      Role
	FirstName string
	LastName  string
	Age       *int
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProfilePatch はプロフィールの部分更新を表す。
// nilフィールドは変更しない。
type ProfilePatch struct {
	FirstName *string
	LastName  *string
	Age       *int
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

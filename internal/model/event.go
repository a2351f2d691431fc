package model

// AuthEventType は認証状態変化の種類を表す。
type AuthEventType string

const (
	// AuthEventSignedIn はサインイン完了。
	AuthEventSignedIn AuthEventType = "SIGNED_IN"
	// AuthEventSignedOut はサインアウト完了。
	AuthEventSignedOut AuthEventType = "SIGNED_OUT"
	// AuthEventTokenRefreshed はセッションの更新。
	// Sessionがnilの場合は更新失敗を意味し、サインアウトと同様に扱う。
	AuthEventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	// AuthEventUserUpdated はユーザー情報の更新。
	AuthEventUserUpdated AuthEventType = "USER_UPDATED"
)

// AuthEvent は認証サービスから購読者へ配信される状態変化通知を表す。
type AuthEvent struct {
	Type    AuthEventType
	Session *Session
	User    *Identity
}

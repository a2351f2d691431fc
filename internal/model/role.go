package model

// Role はユーザーの役割を表す。
type Role string

const (
	// RoleStudent は生徒。遅延作成されたプロフィールのデフォルト。
	RoleStudent Role = "student"
	// RoleTeacher は講師。
	RoleTeacher Role = "teacher"
	// RoleAdmin は管理者。
	RoleAdmin Role = "admin"
)

// Capability は役割に紐づく操作権限を表す。
// 役割文字列の直接比較を避け、権限判定を一箇所に集約する。
type Capability string

const (
	// CapabilityManageContent はブログ・ニュース記事の作成と編集。
	CapabilityManageContent Capability = "manageContent"
	// CapabilityReviewApplications はレッスン申込の承認と却下。
	CapabilityReviewApplications Capability = "reviewApplications"
	// CapabilityManageUsers はユーザー管理（役割変更等）。
	CapabilityManageUsers Capability = "manageUsers"
)

// roleCapabilities は役割ごとの権限テーブル。
var roleCapabilities = map[Role]map[Capability]bool{
	RoleStudent: {},
	RoleTeacher: {
		CapabilityManageContent:      true,
		CapabilityReviewApplications: true,
	},
	RoleAdmin: {
		CapabilityManageContent:      true,
		CapabilityReviewApplications: true,
		CapabilityManageUsers:        true,
	},
}

// Valid は既知の役割かどうかを返す。
func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Can は役割が指定された権限を持つかどうかを返す。
// 未知の役割は常にfalseを返す。
func (r Role) Can(c Capability) bool {
	caps, ok := roleCapabilities[r]
	if !ok {
		return false
	}
	return caps[c]
}

// Can はプロフィールが指定された権限を持つかどうかを返す。
// nilプロフィールは権限を持たない。
func (p *Profile) Can(c Capability) bool {
	if p == nil {
		return false
	}
	return p.Role.Can(c)
}

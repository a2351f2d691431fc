package model

import "time"

const (
	// LangUkrainian はウクライナ語。
	LangUkrainian = "uk"
	// LangEnglish は英語。
	LangEnglish = "en"
)

// ValidLang は対応言語コードかどうかを返す。
func ValidLang(lang string) bool {
	return lang == LangUkrainian || lang == LangEnglish
}

// Post はブログ・ニュース記事を表す。
// 管理画面から作成される記事と、外部ニュースフィードから
// 取り込まれる記事（SourceURLあり）の両方を保持する。
type Post struct {
	ID          string
	AuthorID    string // 取り込み記事の場合は空
	Slug        string
	Lang        string // "uk" | "en"
	Title       string
	BodyHTML    string
	SourceURL   string // 取り込み元の記事URL。手動作成の場合は空
	PublishedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewsSource は取り込み対象の外部ニュースフィードを表す。
type NewsSource struct {
	ID                string
	FeedURL           string
	Lang              string
	ConsecutiveErrors int
	ErrorMessage      string
	NextFetchAt       time.Time
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// MessageとActionはウクライナ語のユーザー向け文言。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, content, lesson, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeEmailNotConfirmed    = "EMAIL_NOT_CONFIRMED"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeEmailTaken           = "EMAIL_TAKEN"
	ErrCodeWeakPassword         = "WEAK_PASSWORD"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeProfileNotFound      = "PROFILE_NOT_FOUND"
	ErrCodePostNotFound         = "POST_NOT_FOUND"
	ErrCodeSlugTaken            = "SLUG_TAKEN"
	ErrCodeTeacherNotFound      = "TEACHER_NOT_FOUND"
	ErrCodeApplicationNotFound  = "APPLICATION_NOT_FOUND"
	ErrCodeApplicationReviewed  = "APPLICATION_ALREADY_REVIEWED"
	ErrCodeRecipientNotFound    = "RECIPIENT_NOT_FOUND"
	ErrCodeEmptyMessage         = "EMPTY_MESSAGE"
	ErrCodeInvalidLang          = "INVALID_LANG"
	ErrCodeAvatarTooLarge       = "AVATAR_TOO_LARGE"
	ErrCodeUnsupportedAvatar    = "UNSUPPORTED_AVATAR_FORMAT"
)

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Невірна електронна пошта або пароль.",
		Category: "auth",
		Action:   "Перевірте введені дані та спробуйте ще раз.",
	}
}

// NewEmailNotConfirmedError はメール未確認エラーを生成する。
func NewEmailNotConfirmedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotConfirmed,
		Message:  "Електронну адресу ще не підтверджено.",
		Category: "auth",
		Action:   "Перевірте поштову скриньку та перейдіть за посиланням для підтвердження.",
	}
}

// NewRateLimitedError はサインイン試行の制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Забагато спроб входу.",
		Category: "auth",
		Action:   "Зачекайте кілька хвилин і спробуйте ще раз.",
	}
}

// NewEmailTakenError は登録済みメールアドレスエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "Користувач із такою електронною поштою вже існує.",
		Category: "validation",
		Action:   "Увійдіть у наявний акаунт або використайте іншу адресу.",
	}
}

// NewWeakPasswordError はパスワード強度不足エラーを生成する。
func NewWeakPasswordError(minLength int) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("Пароль має містити щонайменше %d символів.", minLength),
		Category: "validation",
		Action:   "Оберіть довший пароль.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Потрібна авторизація.",
		Category: "auth",
		Action:   "Увійдіть у свій акаунт.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Недостатньо прав для цієї дії.",
		Category: "auth",
		Action:   "Зверніться до адміністратора платформи.",
	}
}

// NewProfileNotFoundError はプロフィール未検出エラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "Профіль не знайдено.",
		Category: "auth",
		Action:   "Вийдіть з акаунта та увійдіть ще раз.",
	}
}

// NewPostNotFoundError は記事未検出エラーを生成する。
func NewPostNotFoundError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("Публікацію не знайдено: %s", slug),
		Category: "content",
		Action:   "Перевірте адресу сторінки.",
	}
}

// NewSlugTakenError はスラッグ重複エラーを生成する。
func NewSlugTakenError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeSlugTaken,
		Message:  fmt.Sprintf("Публікація з такою адресою вже існує: %s", slug),
		Category: "content",
		Action:   "Оберіть іншу адресу (slug) для публікації.",
	}
}

// NewTeacherNotFoundError は講師未検出エラーを生成する。
func NewTeacherNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeTeacherNotFound,
		Message:  "Викладача не знайдено.",
		Category: "lesson",
		Action:   "Оновіть сторінку та оберіть викладача зі списку.",
	}
}

// NewApplicationNotFoundError は申込未検出エラーを生成する。
func NewApplicationNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeApplicationNotFound,
		Message:  fmt.Sprintf("Заявку не знайдено: %s", id),
		Category: "lesson",
		Action:   "Перевірте список своїх заявок.",
	}
}

// NewApplicationReviewedError は審査済み申込への再審査エラーを生成する。
func NewApplicationReviewedError() *APIError {
	return &APIError{
		Code:     ErrCodeApplicationReviewed,
		Message:  "Заявку вже розглянуто.",
		Category: "lesson",
		Action:   "Оновіть сторінку, щоб побачити актуальний статус.",
	}
}

// NewRecipientNotFoundError はメッセージ宛先未検出エラーを生成する。
func NewRecipientNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeRecipientNotFound,
		Message:  "Отримувача повідомлення не знайдено.",
		Category: "lesson",
		Action:   "Оновіть сторінку та спробуйте ще раз.",
	}
}

// NewEmptyMessageError は空メッセージエラーを生成する。
func NewEmptyMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyMessage,
		Message:  "Повідомлення не може бути порожнім.",
		Category: "validation",
		Action:   "Введіть текст повідомлення.",
	}
}

// NewInvalidLangError は未対応言語エラーを生成する。
func NewInvalidLangError(lang string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLang,
		Message:  fmt.Sprintf("Мова не підтримується: %s", lang),
		Category: "validation",
		Action:   "Доступні мови: uk, en.",
	}
}

// NewAvatarTooLargeError はアバター容量超過エラーを生成する。
func NewAvatarTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeAvatarTooLarge,
		Message:  fmt.Sprintf("Файл завеликий. Максимальний розмір: %d МБ.", maxBytes/(1024*1024)),
		Category: "validation",
		Action:   "Завантажте зображення меншого розміру.",
	}
}

// NewUnsupportedAvatarError はアバター形式未対応エラーを生成する。
func NewUnsupportedAvatarError(ext string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedAvatar,
		Message:  fmt.Sprintf("Формат файлу не підтримується: %s", ext),
		Category: "validation",
		Action:   "Завантажте зображення у форматі JPEG, PNG або WebP.",
	}
}

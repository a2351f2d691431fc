package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/movaschool/movaschool/internal/model"
)

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// invalidRequestError はリクエストボディ解析失敗のエラーを生成する。
func invalidRequestError() *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "Не вдалося розібрати тіло запиту.",
		Category: "validation",
		Action:   "Надішліть запит у коректному форматі JSON.",
	}
}

// asAPIError はエラーチェーンからAPIErrorを取り出す。
func asAPIError(err error, target **model.APIError) bool {
	return errors.As(err, target)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "Сталася внутрішня помилка.",
		Category: "system",
		Action:   "Спробуйте ще раз за кілька хвилин.",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeEmailNotConfirmed:
		return http.StatusForbidden
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeEmailTaken, model.ErrCodeSlugTaken, model.ErrCodeApplicationReviewed:
		return http.StatusConflict
	case model.ErrCodeWeakPassword, model.ErrCodeInvalidLang, model.ErrCodeEmptyMessage, "INVALID_REQUEST":
		return http.StatusBadRequest
	case model.ErrCodeProfileNotFound, model.ErrCodePostNotFound, model.ErrCodeTeacherNotFound,
		model.ErrCodeApplicationNotFound, model.ErrCodeRecipientNotFound:
		return http.StatusNotFound
	case model.ErrCodeAvatarTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.ErrCodeUnsupportedAvatar:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

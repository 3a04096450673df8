package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserIDCookieMissing       = "USER_ID_COOKIE_MISSING"
	ErrCodeUsernameTaken             = "USERNAME_TAKEN"
	ErrCodeValidationFailed          = "VALIDATION_FAILED"
	ErrCodeOAuthAccountNotLinked     = "OAUTH_ACCOUNT_NOT_LINKED"
	ErrCodeCalendarPermissionMissing = "CALENDAR_PERMISSION_MISSING"
	ErrCodeUnauthorized              = "UNAUTHORIZED"
	ErrCodeInternal                  = "INTERNAL_ERROR"
)

// HasCode はerrがcodeを持つAPIErrorかどうかを返す。ラップされたエラーも辿る。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewUserIDCookieMissingError は仮登録ユーザーIDのCookieが存在しない場合のエラーを生成する。
// アダプタ内で唯一ローカルに発生する前提条件エラー。
func NewUserIDCookieMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeUserIDCookieMissing,
		Message:  "User ID not found on cookies",
		Category: "auth",
		Action:   "Register your username again before connecting your calendar.",
	}
}

// NewUsernameTakenError はユーザー名重複エラーを生成する。
func NewUsernameTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  "Username already taken",
		Category: "validation",
		Action:   "Choose a different username.",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("%s: %s", field, reason),
		Category: "validation",
		Action:   "Fix the highlighted field and submit again.",
	}
}

// NewOAuthAccountNotLinkedError はメールアドレスが別ユーザーで使用済みの場合のエラーを生成する。
func NewOAuthAccountNotLinkedError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthAccountNotLinked,
		Message:  "This email is already linked to another account.",
		Category: "auth",
		Action:   "Sign in with the Google account you used originally.",
	}
}

// NewCalendarPermissionMissingError はGoogle Calendarのスコープが許可されなかった場合のエラーを生成する。
func NewCalendarPermissionMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeCalendarPermissionMissing,
		Message:  "Google Calendar permission was not granted.",
		Category: "auth",
		Action:   "Connect again and enable access to Google Calendar.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Sign in and try again.",
	}
}

package onboarding

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// 入力検証エラーの表示メッセージ
const (
	MsgUsernameTooShort   = "Usuário deve conter pelo menos 3 letras"
	MsgUsernameCharacters = "O usuário pode ter apenas letras e hifens"
	MsgNameTooShort       = "Nome deve conter pelo menos 3 letras"
)

const minLength = 3

var usernamePattern = regexp.MustCompile(`^[a-z-]+$`)

// FieldError は1フィールドの検証エラー。
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// NormalizeUsername は前後の空白を除去し小文字に変換する。
func NormalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidateUsername はユーザー名を正規化して検証する。
// 3文字以上で英字とハイフンのみを許可する。大文字は小文字として扱う。
func ValidateUsername(raw string) (string, *FieldError) {
	username := NormalizeUsername(raw)
	if utf8.RuneCountInString(username) < minLength {
		return username, &FieldError{Field: "username", Message: MsgUsernameTooShort}
	}
	if !usernamePattern.MatchString(username) {
		return username, &FieldError{Field: "username", Message: MsgUsernameCharacters}
	}
	return username, nil
}

// ValidateName は名前を検証する。3文字以上であればよい。
func ValidateName(raw string) (string, *FieldError) {
	name := strings.TrimSpace(raw)
	if utf8.RuneCountInString(name) < minLength {
		return name, &FieldError{Field: "name", Message: MsgNameTooShort}
	}
	return name, nil
}

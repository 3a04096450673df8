// Package onboarding は登録ウィザードの画面遷移と入力検証を提供する。
//
// ウィザードは ClaimUsername → Register → ConnectCalendar → Done の順に
// 一方向にのみ進む。
package onboarding

import "strings"

// Step はウィザードの段階。
type Step int

const (
	// ClaimUsername はトップページでユーザー名を確保する段階。
	ClaimUsername Step = iota
	// Register は名前とユーザー名を登録する段階。
	Register
	// ConnectCalendar はGoogleカレンダーを連携する段階。
	ConnectCalendar
	// Done はこのパッケージの範囲外（時間帯設定）へ進んだ終端。
	Done
)

// TotalSteps はプログレス表示上のステップ総数。
// 時間帯設定とプロフィール設定を含む。
const TotalSteps = 4

// Next は次の段階を返す。Doneは終端でDoneのまま。
func (s Step) Next() Step {
	if s >= Done {
		return Done
	}
	return s + 1
}

// Path は段階に対応するページのパスを返す。
func (s Step) Path() string {
	switch s {
	case ClaimUsername:
		return "/"
	case Register:
		return "/register"
	case ConnectCalendar:
		return "/register/connect-calendar"
	default:
		return "/register/time-intervals"
	}
}

// StepForPath はページのパスに対応する段階を返す。
// ウィザード外のパスにはfalseを返す。
func StepForPath(path string) (Step, bool) {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	for _, s := range []Step{ClaimUsername, Register, ConnectCalendar, Done} {
		if s.Path() == path {
			return s, true
		}
	}
	return Done, false
}

// Progress はプログレス表示の現在位置（1始まり）を返す。
// ClaimUsernameはプログレス表示を持たないため0を返す。
func (s Step) Progress() int {
	switch s {
	case Register:
		return 1
	case ConnectCalendar:
		return 2
	case Done:
		return 3
	default:
		return 0
	}
}

func (s Step) String() string {
	switch s {
	case ClaimUsername:
		return "claim-username"
	case Register:
		return "register"
	case ConnectCalendar:
		return "connect-calendar"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

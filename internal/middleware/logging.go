package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/ignitecall/internal/cookie"
	"github.com/hitoshi/ignitecall/internal/metrics"
	"github.com/hitoshi/ignitecall/internal/onboarding"
)

// responseRecorder は最初に書き込まれたステータスコードを保持する。
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (rr *responseRecorder) WriteHeader(code int) {
	if rr.status == 0 {
		rr.status = code
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	return rr.ResponseWriter.Write(b)
}

// statusOrOK は何も書き込まれなかったレスポンスを200として扱う。
func (rr *responseRecorder) statusOrOK() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

// wizardAttrs はリクエストの登録ウィザード上の位置と利用者を表すログ属性を返す。
//   - step: ウィザードのページであればその段階
//   - user_id / signed_in: セッションミドルウェアの内側でのみ付く
//   - provisional_user: ユーザー名確保後、Googleログイン前の仮登録ユーザー
func wizardAttrs(r *http.Request) []any {
	var attrs []any
	if step, ok := onboarding.StepForPath(r.URL.Path); ok {
		attrs = append(attrs, slog.String("step", step.String()))
	}
	if found, resolved := SessionFromContext(r.Context()); resolved {
		attrs = append(attrs, slog.Bool("signed_in", found != nil))
	}
	if userID, err := UserIDFromContext(r.Context()); err == nil {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	if c, err := r.Cookie(cookie.ProvisionalUserName); err == nil && c.Value != "" {
		attrs = append(attrs, slog.String("provisional_user", c.Value))
	}
	return attrs
}

// NewLoggingMiddleware はリクエストごとに"http_request"ログを1行出力し、
// ステータスとレイテンシをcollectorに記録するミドルウェアを返す。
// ログレベルは5xxでError、4xxでWarn、それ以外はInfo。
func NewLoggingMiddleware(logger *slog.Logger, collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			status := rec.statusOrOK()
			elapsed := time.Since(start)
			collector.RecordHTTPStatus(status)
			collector.RecordRequestLatency(elapsed)

			attrs := append([]any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
				slog.String("client_ip", ClientIP(r)),
			}, wizardAttrs(r)...)

			logger.Log(r.Context(), levelForStatus(status), "http_request", attrs...)
		})
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

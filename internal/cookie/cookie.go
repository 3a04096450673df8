// Package cookie はリクエスト単位のCookie読み書きを提供する。
//
// HTTPハンドラより下の層（セッションアダプタなど）がCookieにアクセスできるよう、
// StoreをContextに格納して引き回す。
package cookie

import (
	"context"
	"net/http"
	"time"
)

// Cookie名。net/httpはCookie名に'@'や':'を許容しないため、ドット区切りを用いる。
const (
	// ProvisionalUserName は仮登録ユーザーIDを保持するCookie名。
	ProvisionalUserName = "call.userId"
	// SessionTokenName はログインセッションのトークンを保持するCookie名。
	SessionTokenName = "call.session-token"
	// OAuthStateName はOAuth stateパラメータを保持するCookie名。
	OAuthStateName = "oauth_state"
)

// ProvisionalMaxAge は仮登録ユーザーCookieの有効期間（7日、秒）。
const ProvisionalMaxAge = 7 * 24 * 60 * 60

// Store はリクエストに紐づくCookieの読み書きインターフェース。
type Store interface {
	// Get は指定名のCookie値を返す。存在しない場合はfalseを返す。
	Get(name string) (string, bool)
	// Set はCookieを書き込む。Path・Domain・Secureは未指定ならStoreの既定値で補う。
	Set(c *http.Cookie)
	// Delete は指定名のCookieを削除する（path /）。
	Delete(name string)
}

// Options はCookie書き込み時の既定属性。
type Options struct {
	Domain string
	Secure bool
}

// HTTPStore はhttp.Request/http.ResponseWriterに対するStore実装。
// 同一リクエスト内で書き込んだ値はGetに反映される。
type HTTPStore struct {
	w       http.ResponseWriter
	r       *http.Request
	opts    Options
	pending map[string]*string // nilは削除済み
}

// NewHTTPStore はHTTPStoreを生成する。
func NewHTTPStore(w http.ResponseWriter, r *http.Request, opts Options) *HTTPStore {
	return &HTTPStore{
		w:       w,
		r:       r,
		opts:    opts,
		pending: make(map[string]*string),
	}
}

// Get は指定名のCookie値を返す。
func (s *HTTPStore) Get(name string) (string, bool) {
	if v, ok := s.pending[name]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}
	c, err := s.r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Set はCookieをレスポンスに書き込む。
func (s *HTTPStore) Set(c *http.Cookie) {
	if c.Path == "" {
		c.Path = "/"
	}
	if c.Domain == "" {
		c.Domain = s.opts.Domain
	}
	if s.opts.Secure {
		c.Secure = true
	}
	if c.SameSite == http.SameSiteDefaultMode {
		c.SameSite = http.SameSiteLaxMode
	}
	c.HttpOnly = true

	if c.MaxAge < 0 {
		s.pending[c.Name] = nil
	} else {
		v := c.Value
		s.pending[c.Name] = &v
	}
	http.SetCookie(s.w, c)
}

// Delete は指定名のCookieを即時失効させる。
func (s *HTTPStore) Delete(name string) {
	s.Set(&http.Cookie{
		Name:    name,
		Value:   "",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
}

// SetProvisionalUser は仮登録ユーザーIDのCookieを書き込む。
func SetProvisionalUser(s Store, userID string) {
	s.Set(&http.Cookie{
		Name:   ProvisionalUserName,
		Value:  userID,
		MaxAge: ProvisionalMaxAge,
	})
}

type contextKey struct{}

// WithStore はStoreを格納したContextを返す。
func WithStore(ctx context.Context, s Store) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext はContextからStoreを取得する。
func FromContext(ctx context.Context) (Store, bool) {
	s, ok := ctx.Value(contextKey{}).(Store)
	return s, ok && s != nil
}

// MemoryStore はテストやHTTP以外の呼び出し元向けのStore実装。
type MemoryStore struct {
	Values map[string]string
}

// NewMemoryStore は初期値を持つMemoryStoreを生成する。
func NewMemoryStore(values map[string]string) *MemoryStore {
	if values == nil {
		values = make(map[string]string)
	}
	return &MemoryStore{Values: values}
}

// Get は指定名の値を返す。
func (m *MemoryStore) Get(name string) (string, bool) {
	v, ok := m.Values[name]
	return v, ok && v != ""
}

// Set は値を保存する。MaxAgeが負の場合は削除する。
func (m *MemoryStore) Set(c *http.Cookie) {
	if c.MaxAge < 0 {
		delete(m.Values, c.Name)
		return
	}
	m.Values[c.Name] = c.Value
}

// Delete は値を削除する。
func (m *MemoryStore) Delete(name string) {
	delete(m.Values, name)
}

// compile-time interface check
var (
	_ Store = (*HTTPStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

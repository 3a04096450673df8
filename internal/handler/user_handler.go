package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/ignitecall/internal/cookie"
	"github.com/hitoshi/ignitecall/internal/middleware"
	"github.com/hitoshi/ignitecall/internal/model"
)

// maxRequestBodySize はリクエストボディの上限。
const maxRequestBodySize = 1 << 20

// UserRegistrar はユーザー登録ハンドラーが必要とするサービスインターフェース。
type UserRegistrar interface {
	// Register は仮登録ユーザーを作成する。
	// ユーザー名が使用済みの場合はUSERNAME_TAKENのAPIErrorを返す。
	Register(ctx context.Context, name, username string) (*model.User, error)
}

// UserHandler はユーザー登録のHTTPハンドラー。
type UserHandler struct {
	service    UserRegistrar
	cookieOpts cookie.Options
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserRegistrar, cookieOpts cookie.Options) *UserHandler {
	return &UserHandler{
		service:    service,
		cookieOpts: cookieOpts,
	}
}

type createUserRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     *string   `json:"email"`
	AvatarURL *string   `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateUser はユーザー名を確保して仮登録ユーザーを作成する。
// POST /users
// 成功時は仮登録ユーザーIDのCookieを設定して201を返す。POST以外は空ボディの405。
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("body", "invalid JSON"))
		return
	}

	created, err := h.service.Register(r.Context(), req.Name, req.Username)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	cookie.SetProvisionalUser(storeFor(w, r, h.cookieOpts), created.ID)

	writeJSON(w, http.StatusCreated, toUserResponse(created))
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}

// storeFor はミドルウェアが注入したcookie.Storeを返す。
// 注入されていない場合はこのリクエスト専用のStoreを作る。
func storeFor(w http.ResponseWriter, r *http.Request, opts cookie.Options) cookie.Store {
	if store, ok := cookie.FromContext(r.Context()); ok {
		return store
	}
	return cookie.NewHTTPStore(w, r, opts)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

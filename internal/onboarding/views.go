package onboarding

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFiles embed.FS

// ページごとのデータ。Errorsはフィールド名をキーとする。

// ClaimUsernamePage はトップページの表示データ。
type ClaimUsernamePage struct {
	Username  string
	Errors    map[string]string
	CSRFToken string
}

// RegisterPage は登録ページの表示データ。
type RegisterPage struct {
	Username  string
	Name      string
	Errors    map[string]string
	Alert     string // サーバーから返された登録失敗メッセージ
	CSRFToken string
}

// ConnectCalendarPage はカレンダー連携ページの表示データ。
type ConnectCalendarPage struct {
	SignedIn  bool
	AuthError bool
	SignInURL string
	NextURL   string
}

// pageData はレイアウトに渡す共通フィールドとページ固有データの組。
type pageData struct {
	Title    string
	Progress int
	Total    int
	Steps    []int
	Page     any
}

// Renderer は埋め込みテンプレートからページを描画する。
type Renderer struct {
	pages map[Step]*template.Template
}

// NewRenderer は全ページのテンプレートを解析してRendererを生成する。
func NewRenderer() (*Renderer, error) {
	files := map[Step]string{
		ClaimUsername:   "templates/claim_username.html",
		Register:        "templates/register.html",
		ConnectCalendar: "templates/connect_calendar.html",
	}

	r := &Renderer{pages: make(map[Step]*template.Template, len(files))}
	for step, file := range files {
		tmpl, err := template.ParseFS(templateFiles, "templates/layout.html", file)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", step, err)
		}
		r.pages[step] = tmpl
	}
	return r, nil
}

var pageTitles = map[Step]string{
	ClaimUsername:   "Agendamento descomplicado",
	Register:        "Crie uma conta",
	ConnectCalendar: "Conecte sua agenda do Google",
}

// Render はstepのページをwに書き出す。
// 実行途中のエラーで部分的なHTMLを返さないよう、バッファに描画してから書き込む。
func (r *Renderer) Render(w io.Writer, step Step, page any) error {
	tmpl, ok := r.pages[step]
	if !ok {
		return fmt.Errorf("no template for step %s", step)
	}

	steps := make([]int, TotalSteps)
	for i := range steps {
		steps[i] = i + 1
	}

	switch page.(type) {
	case ClaimUsernamePage, RegisterPage, ConnectCalendarPage:
	default:
		return fmt.Errorf("unsupported page data %T", page)
	}

	data := pageData{
		Title:    pageTitles[step],
		Progress: step.Progress(),
		Total:    TotalSteps,
		Steps:    steps,
		Page:     page,
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", step, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

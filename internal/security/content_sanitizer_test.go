package security

import (
	"strings"
	"testing"
)

// TestSanitizeHTML_AllowedTags は許可タグが正しく通過することを検証する。
func TestSanitizeHTML_AllowedTags(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		// want に含まれるべき部分文字列
		wantContains []string
	}{
		{
			name:         "pタグが許可される",
			input:        "<p>Уроки англійської</p>",
			wantContains: []string{"<p>Уроки англійської</p>"},
		},
		{
			name:         "h2タグとh3タグが許可される",
			input:        "<h2>Розклад</h2><h3>Вересень</h3>",
			wantContains: []string{"<h2>Розклад</h2>", "<h3>Вересень</h3>"},
		},
		{
			name:         "brタグが許可される",
			input:        "рядок1<br>рядок2",
			wantContains: []string{"<br", "рядок1", "рядок2"},
		},
		{
			name:         "aタグが許可される",
			input:        `<a href="https://example.com">посилання</a>`,
			wantContains: []string{"<a", "href", "https://example.com", "посилання", "</a>"},
		},
		{
			name:         "ulタグとliタグが許可される",
			input:        "<ul><li>пункт1</li><li>пункт2</li></ul>",
			wantContains: []string{"<ul>", "<li>", "пункт1", "пункт2", "</li>", "</ul>"},
		},
		{
			name:         "blockquoteタグが許可される",
			input:        "<blockquote>цитата</blockquote>",
			wantContains: []string{"<blockquote>цитата</blockquote>"},
		},
		{
			name:         "preタグとcodeタグが許可される",
			input:        "<pre><code>func main() {}</code></pre>",
			wantContains: []string{"<pre>", "<code>", "func main() {}", "</code>", "</pre>"},
		},
		{
			name:         "strongタグとemタグが許可される",
			input:        "<strong>важливо</strong> і <em>акцент</em>",
			wantContains: []string{"<strong>важливо</strong>", "<em>акцент</em>"},
		},
		{
			name:         "imgタグがhttps srcで許可される",
			input:        `<img src="https://example.com/image.png" alt="фото">`,
			wantContains: []string{"<img", "src", "https://example.com/image.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.SanitizeHTML(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("SanitizeHTML(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitizeHTML_DangerousContent は危険な要素が除去されることを検証する。
func TestSanitizeHTML_DangerousContent(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		// want に含まれてはいけない部分文字列
		wantNotContains []string
	}{
		{
			name:            "scriptタグが除去される",
			input:           `<p>text</p><script>alert("xss")</script>`,
			wantNotContains: []string{"<script", "alert"},
		},
		{
			name:            "onclickなどのイベントハンドラが除去される",
			input:           `<p onclick="steal()">text</p>`,
			wantNotContains: []string{"onclick", "steal"},
		},
		{
			name:            "javascriptスキームのhrefが除去される",
			input:           `<a href="javascript:alert(1)">click</a>`,
			wantNotContains: []string{"javascript:"},
		},
		{
			name:            "http srcのimgが除去される",
			input:           `<img src="http://example.com/a.png">`,
			wantNotContains: []string{"http://example.com/a.png"},
		},
		{
			name:            "iframeタグが除去される",
			input:           `<iframe src="https://evil.example"></iframe>`,
			wantNotContains: []string{"<iframe"},
		},
		{
			name:            "styleタグが除去される",
			input:           `<style>body{display:none}</style><p>text</p>`,
			wantNotContains: []string{"<style"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.SanitizeHTML(tt.input)
			for _, notWant := range tt.wantNotContains {
				if strings.Contains(got, notWant) {
					t.Errorf("SanitizeHTML(%q) = %q, expected NOT to contain %q", tt.input, got, notWant)
				}
			}
		})
	}
}

// TestSanitizeHTML_TargetBlankRel はtarget=_blankのリンクに
// rel=noreferrerが強制されることを検証する。
func TestSanitizeHTML_TargetBlankRel(t *testing.T) {
	sanitizer := NewContentSanitizer()

	got := sanitizer.SanitizeHTML(`<a href="https://example.com" target="_blank">link</a>`)
	if !strings.Contains(got, "noreferrer") {
		t.Errorf("SanitizeHTML() = %q, expected rel to contain noreferrer", got)
	}
}

// TestSanitizePlain はチャットメッセージ向けのプレーンテキスト化を検証する。
func TestSanitizePlain(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "全てのタグが除去される",
			input: "<b>Привіт</b>, <i>як справи?</i>",
			want:  "Привіт, як справи?",
		},
		{
			name:  "scriptタグと内容が除去される",
			input: `Привіт<script>alert(1)</script>`,
			want:  "Привіт",
		},
		{
			name:  "前後の空白が除去される",
			input: "  Добрий день  ",
			want:  "Добрий день",
		},
		{
			name:  "タグのみの入力は空文字列になる",
			input: "<p></p>",
			want:  "",
		},
		{
			name:  "プレーンテキストはそのまま通過する",
			input: "Коли наступний урок?",
			want:  "Коли наступний урок?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.SanitizePlain(tt.input)
			if got != tt.want {
				t.Errorf("SanitizePlain(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

package logger

import "strings"

// RedactEmail はログ出力用にメールアドレスのローカル部を伏せる。
// "reader@example.com" は "re***@example.com"、2文字以下のローカル部は全て伏せる。
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}

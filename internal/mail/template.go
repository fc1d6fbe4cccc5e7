package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

const TagVerification = "verification"

var verificationTmpl = template.Must(template.New("verification").Parse(`<!doctype html>
<html lang="ru">
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>Подтверждение email</h2>
  <p>Ваш код подтверждения для регистрации в Глюкозе:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 4px;">{{.Code}}</p>
  <p>Код действует {{.Minutes}} минут. Если вы не запрашивали код, просто проигнорируйте это письмо.</p>
</body>
</html>`))

// VerificationMessage renders the email carrying a registration code.
func VerificationMessage(to, code string, ttl time.Duration) (Message, error) {
	var buf bytes.Buffer
	data := struct {
		Code    string
		Minutes int
	}{Code: code, Minutes: int(ttl / time.Minute)}
	if err := verificationTmpl.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render verification email: %w", err)
	}
	return Message{
		To:       to,
		Subject:  "Код подтверждения",
		HTMLBody: buf.String(),
		Tag:      TagVerification,
	}, nil
}

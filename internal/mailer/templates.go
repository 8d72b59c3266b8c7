package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/noah-isme/backend-pos/internal/common"
)

var otpTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif">
<p>Hi {{.Name}},</p>
<p>Use this code to reset your password:</p>
<p style="font-size: 28px; letter-spacing: 6px"><strong>{{.Code}}</strong></p>
<p>The code expires in {{.Minutes}} minutes. If you did not ask for a reset, ignore this email.</p>
</body>
</html>`))

// OTPEmail renders the password reset code email.
func OTPEmail(to, name, code string, ttl time.Duration) (common.Email, error) {
	var buf bytes.Buffer
	err := otpTemplate.Execute(&buf, struct {
		Name    string
		Code    string
		Minutes int
	}{Name: name, Code: code, Minutes: int(ttl.Round(time.Minute) / time.Minute)})
	if err != nil {
		return common.Email{}, fmt.Errorf("render otp email: %w", err)
	}
	return common.Email{To: to, Subject: "Your password reset code", HTML: buf.String()}, nil
}

package notification

import (
	"fmt"
	"time"
)

// ==============================================
// MESSAGE CONTENT
// ==============================================

func otpEmailContent(msg Message) (subject string, body string) {
	subject = fmt.Sprintf("Confirm your new %s", msg.Attribute)
	body = fmt.Sprintf(`
Hello,

We received a request to change the %s on your account.

Your confirmation code is: %s

This code will expire in %s.

If you didn't request this change, please ignore this email. Nothing changes until the code is confirmed.
`, msg.Attribute, msg.Code, humanDuration(msg.ExpiresIn))

	return subject, body
}

func otpSMSText(msg Message) string {
	return fmt.Sprintf("Your confirmation code is %s. It expires in %s.", msg.Code, humanDuration(msg.ExpiresIn))
}

func humanDuration(d time.Duration) string {
	if d <= 0 {
		return "a few minutes"
	}
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}

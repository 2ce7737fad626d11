package mail

import "fmt"

// VerificationMessage builds the email-verification mail. The link embeds the
// one-time token; the page behind it calls the verify endpoint.
func VerificationMessage(to, displayName, baseURL, token string) Message {
	link := fmt.Sprintf("%s/verify-email?token=%s", baseURL, token)
	return Message{
		To:      to,
		Subject: "Verify your email address",
		TextBody: fmt.Sprintf(
			"Hi %s,\n\nPlease verify your email address by opening the link below:\n\n%s\n\nThe link is valid for 7 days. If you did not create this account you can ignore this email.\n",
			displayName, link,
		),
	}
}

// PasswordResetMessage builds the password-reset mail.
func PasswordResetMessage(to, displayName, baseURL, token string) Message {
	link := fmt.Sprintf("%s/reset-password?token=%s", baseURL, token)
	return Message{
		To:      to,
		Subject: "Reset your password",
		TextBody: fmt.Sprintf(
			"Hi %s,\n\nA password reset was requested for your account. Open the link below to choose a new password:\n\n%s\n\nThe link is valid for 1 hour. If you did not request this, no action is needed.\n",
			displayName, link,
		),
	}
}

// WelcomeMessage is sent once the email address has been verified.
func WelcomeMessage(to, displayName string) Message {
	return Message{
		To:      to,
		Subject: "Your account is ready",
		TextBody: fmt.Sprintf(
			"Hi %s,\n\nYour email address has been verified and your account is now active. You can sign in with your email and password.\n",
			displayName,
		),
	}
}

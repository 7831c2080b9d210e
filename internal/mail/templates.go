package mail

import (
	"fmt"
	"net/url"
)

func VerificationMessage(frontendURL string, rawToken string) (string, string) {
	link := frontendURL + "/verify-email?token=" + url.QueryEscape(rawToken)
	body := fmt.Sprintf(
		"Welcome to BigBikeBlitz!\n\nConfirm your email address by opening the link below:\n%s\n\nThe link expires in 24 hours.\n",
		link)
	return "Verify your BigBikeBlitz account", body
}

func PasswordResetMessage(frontendURL string, rawToken string) (string, string) {
	link := frontendURL + "/reset-password?token=" + url.QueryEscape(rawToken)
	body := fmt.Sprintf(
		"A password reset was requested for your BigBikeBlitz account.\n\nChoose a new password here:\n%s\n\nThe link expires in 1 hour. If you did not ask for this, ignore this email.\n",
		link)
	return "Reset your BigBikeBlitz password", body
}

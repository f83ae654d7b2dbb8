package email

import (
	"fmt"
	"net/smtp"
	"os"

	"quillnote.app/cloud/internal/logger"
)

func Send(to, subject, body string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")

	if smtpHost == "" || smtpPort == "" || smtpUser == "" || smtpPass == "" {
		logger.Error("SMTP configuration missing")
		return fmt.Errorf("SMTP configuration missing")
	}

	auth := smtp.PlainAuth("", smtpUser, smtpPass, smtpHost)

	msg := []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", smtpUser, to, subject, body))

	addr := fmt.Sprintf("%s:%s", smtpHost, smtpPort)
	return smtp.SendMail(addr, auth, smtpUser, []string{to}, msg)
}

// LicenseBody is the welcome email sent when a checkout first issues a key.
func LicenseBody(licenseKey string) string {
	return fmt.Sprintf(`Hello,

Thank you for upgrading to QuillNote Premium! Your license is ready.

LICENSE DETAILS
License Key: %s

GETTING STARTED
1. Open QuillNote
2. Go to Settings -> Premium
3. Enter your license key: %s
4. Your notes now sync across devices

NEED HELP?
Reply to this email or contact us at help@quillnote.app

Best regards,
The QuillNote Team`, licenseKey, licenseKey)
}

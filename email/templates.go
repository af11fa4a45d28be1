package email

import (
	"bytes"
	"fmt"
	htemplate "html/template"
	ttemplate "text/template"
	"time"
)

type verifyVars struct {
	Link string
	TTL  string
}

type resetVars struct {
	Link string
	TTL  string
}

type welcomeVars struct {
	EmployeeID string
}

var (
	verifyHTML = htemplate.Must(htemplate.New("verify_html").Parse(
		`<p>Welcome!</p><p>Confirm your email address by visiting <a href="{{.Link}}">{{.Link}}</a>.</p><p>The link expires in {{.TTL}}.</p>`))
	verifyText = ttemplate.Must(ttemplate.New("verify_text").Parse(
		"Welcome!\n\nConfirm your email address by visiting {{.Link}}\n\nThe link expires in {{.TTL}}.\n"))

	resetHTML = htemplate.Must(htemplate.New("reset_html").Parse(
		`<p>A password reset was requested for your account.</p><p>Choose a new password at <a href="{{.Link}}">{{.Link}}</a>.</p><p>The link expires in {{.TTL}}. If you did not request this, ignore this message.</p>`))
	resetText = ttemplate.Must(ttemplate.New("reset_text").Parse(
		"A password reset was requested for your account.\n\nChoose a new password at {{.Link}}\n\nThe link expires in {{.TTL}}. If you did not request this, ignore this message.\n"))

	welcomeHTML = htemplate.Must(htemplate.New("welcome_html").Parse(
		`<p>Your email is verified and your account is active.</p><p>Your employee ID is <strong>{{.EmployeeID}}</strong>. You can sign in with it or with your email address.</p>`))
	welcomeText = ttemplate.Must(ttemplate.New("welcome_text").Parse(
		"Your email is verified and your account is active.\n\nYour employee ID is {{.EmployeeID}}. You can sign in with it or with your email address.\n"))
)

func render(html *htemplate.Template, text *ttemplate.Template, data any) (string, string, error) {
	var htmlBuf, textBuf bytes.Buffer
	if err := html.Execute(&htmlBuf, data); err != nil {
		return "", "", err
	}
	if err := text.Execute(&textBuf, data); err != nil {
		return "", "", err
	}
	return htmlBuf.String(), textBuf.String(), nil
}

func formatTTL(d time.Duration) string {
	hours := int(d.Hours())
	if hours >= 24 {
		days := hours / 24
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	if hours >= 1 {
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	minutes := int(d.Minutes())
	if minutes <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

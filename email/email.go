package email

import (
	"fmt"
	"net/smtp"
	"os"

	"donusum/models"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailService struct {
	host     string
	port     string
	user     string
	password string
	from     string
	domain   string
	send     sendFunc
}

func NewEmailService(domain string) *EmailService {
	return &EmailService{
		host:     os.Getenv("SMTP_HOST"),
		port:     os.Getenv("SMTP_PORT"),
		user:     os.Getenv("SMTP_USER"),
		password: os.Getenv("SMTP_PASSWORD"),
		from:     os.Getenv("SMTP_FROM"),
		domain:   domain,
		send:     smtp.SendMail,
	}
}

// Enabled reports whether enough SMTP settings are present to send mail.
func (e *EmailService) Enabled() bool {
	return e != nil && e.host != "" && e.port != "" && e.from != ""
}

// SendDraftAnnouncementNotice tells the operator that completing st created
// a draft announcement that still has to be reviewed and published.
func (e *EmailService) SendDraftAnnouncementNotice(to string, st *models.Stage, post *models.Post) error {
	if !e.Enabled() {
		return fmt.Errorf("smtp is not configured")
	}
	if to == "" {
		return fmt.Errorf("no recipient")
	}

	message := draftNoticeMessage(e.from, to, e.domain, st, post)

	var auth smtp.Auth
	if e.user != "" {
		auth = smtp.PlainAuth("", e.user, e.password, e.host)
	}
	addr := fmt.Sprintf("%s:%s", e.host, e.port)

	if err := e.send(addr, auth, e.from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("sending draft notice: %w", err)
	}
	return nil
}

func draftNoticeMessage(from, to, domain string, st *models.Stage, post *models.Post) string {
	subject := fmt.Sprintf("Taslak duyuru onay bekliyor: %s", st.Title)
	body := fmt.Sprintf(`
Merhaba,

"%s" aşaması tamamlandı olarak işaretlendi ve aşağıdaki duyuru taslak olarak oluşturuldu:

%s

Duyuru yayınlanmadan önce gözden geçirilmelidir:

%s/admin/asamalar/%d

---
Kentsel Dönüşüm Süreç Takibi
`, st.Title, post.Title, domain, st.ID)

	return fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n", from, to, subject, body)
}

package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
	"sync"

	"github.com/sebuszqo/FundLedger/internal/notify"
)

const templateOpsAlert = "ops_alert.html"

//go:embed templates/*.html
var templateFS embed.FS

type Settings struct {
	Host     string
	Port     string
	From     string
	Password string
	To       string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// OpsMailer emails operator error notifications, such as settlement gaps, to the
// configured ops address. Everything else is ignored.
type OpsMailer struct {
	settings  Settings
	tmpl      *template.Template
	send      sendFunc
	taskQueue chan notify.Notification
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewOpsMailer(settings Settings) (*OpsMailer, error) {
	return newOpsMailer(settings, smtp.SendMail)
}

func newOpsMailer(settings Settings, send sendFunc) (*OpsMailer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/"+templateOpsAlert)
	if err != nil {
		return nil, fmt.Errorf("error parsing template: %v", err)
	}
	m := &OpsMailer{
		settings:  settings,
		tmpl:      tmpl,
		send:      send,
		taskQueue: make(chan notify.Notification, 100),
		done:      make(chan struct{}),
	}
	go m.worker()
	return m, nil
}

func (m *OpsMailer) worker() {
	defer close(m.done)
	for n := range m.taskQueue {
		if err := m.sendAlert(n); err != nil {
			log.Printf("level=warn component=email to=%s title=%q msg=\"ops alert not sent\" err=%v", m.settings.To, n.Title, err)
		}
	}
}

func (m *OpsMailer) Notify(n notify.Notification) {
	if n.UserID != "" || n.Level != notify.LevelError {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		log.Printf("level=warn component=email title=%q msg=\"mailer closed; ops alert dropped\"", n.Title)
		return
	}
	select {
	case m.taskQueue <- n:
	default:
		log.Printf("level=warn component=email title=%q msg=\"queue full; ops alert dropped\"", n.Title)
	}
}

// Close stops accepting alerts and waits for the queued ones to be sent.
func (m *OpsMailer) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.taskQueue)
	m.mu.Unlock()
	<-m.done
}

func (m *OpsMailer) sendAlert(n notify.Notification) error {
	var body bytes.Buffer
	if err := m.tmpl.ExecuteTemplate(&body, templateOpsAlert, n); err != nil {
		return fmt.Errorf("error executing template: %v", err)
	}

	message := []byte("Subject: [FundLedger] " + n.Title + "\r\n" +
		"MIME-version: 1.0;\r\n" +
		"Content-Type: text/html; charset=\"UTF-8\";\r\n\r\n" +
		body.String())

	auth := smtp.PlainAuth("", m.settings.From, m.settings.Password, m.settings.Host)
	if err := m.send(m.settings.Host+":"+m.settings.Port, auth, m.settings.From, []string{m.settings.To}, message); err != nil {
		return fmt.Errorf("error sending email: %v", err)
	}
	return nil
}

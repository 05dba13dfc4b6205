package alerts

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"log/slog"

	"github.com/studystack/sentinel/pkg/models"
)

const (
	smtpSecurityNone     = "none"
	smtpSecurityStartTLS = "starttls"
	smtpSecurityTLS      = "tls"
)

// EmailSenderOptions configures SMTP delivery.
type EmailSenderOptions struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	ReplyTo       string
	Security      string
	Timeout       time.Duration
	SkipTLSVerify bool
	Logger        *slog.Logger
}

// EmailSender delivers alerts over SMTP as plaintext messages.
type EmailSender struct {
	host          string
	port          int
	username      string
	password      string
	from          string
	replyTo       string
	security      string
	timeout       time.Duration
	skipTLSVerify bool
	logger        *slog.Logger
}

// NewEmailSender constructs an EmailSender.
func NewEmailSender(opts EmailSenderOptions) *EmailSender {
	security := strings.ToLower(strings.TrimSpace(opts.Security))
	switch security {
	case smtpSecurityNone, smtpSecurityStartTLS, smtpSecurityTLS:
	default:
		security = smtpSecurityStartTLS
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailSender{
		host:          strings.TrimSpace(opts.Host),
		port:          opts.Port,
		username:      strings.TrimSpace(opts.Username),
		password:      opts.Password,
		from:          strings.TrimSpace(opts.From),
		replyTo:       strings.TrimSpace(opts.ReplyTo),
		security:      security,
		timeout:       timeout,
		skipTLSVerify: opts.SkipTLSVerify,
		logger:        logger.With("component", "alert_email_sender"),
	}
}

// Send delivers the alert to the channel's destination address.
func (s *EmailSender) Send(ctx context.Context, alert models.Alert, channel models.NotificationChannel) error {
	recipient := strings.TrimSpace(channel.Destination)
	if recipient == "" {
		return fmt.Errorf("email channel has no destination")
	}
	if s.host == "" || s.port == 0 || s.from == "" {
		return fmt.Errorf("smtp is not configured")
	}
	return s.sendEmail(ctx, recipient, s.buildMessage(alert, recipient))
}

func (s *EmailSender) buildMessage(alert models.Alert, recipient string) []byte {
	subject := fmt.Sprintf("[Sentinel] %s (%s)", alert.RuleName, strings.ToUpper(string(alert.Severity)))
	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", recipient),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
	}
	if s.replyTo != "" {
		headers = append(headers, fmt.Sprintf("Reply-To: %s", s.replyTo))
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + buildBody(alert))
}

func buildBody(alert models.Alert) string {
	lines := []string{
		fmt.Sprintf("Alert: %s", alert.RuleName),
		fmt.Sprintf("Severity: %s", strings.ToUpper(string(alert.Severity))),
		fmt.Sprintf("Metric: %s", alert.MetricName),
		fmt.Sprintf("Value: %.4f", alert.MetricValue),
		fmt.Sprintf("Threshold: %.4f", alert.Threshold),
		fmt.Sprintf("Triggered At: %s", alert.TriggeredAt.Format(time.RFC3339)),
	}
	if alert.Description != "" {
		lines = append(lines, fmt.Sprintf("Description: %s", alert.Description))
	}
	if alert.BusinessContext != "" {
		lines = append(lines, fmt.Sprintf("Business Impact: %s", alert.BusinessContext))
	}
	if len(alert.RecommendedActions) > 0 {
		lines = append(lines, "Recommended Actions:")
		for _, action := range alert.RecommendedActions {
			lines = append(lines, fmt.Sprintf("  - %s", action))
		}
	}
	if alert.EscalationPolicy != "" {
		lines = append(lines, fmt.Sprintf("Escalation: %s", alert.EscalationPolicy))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (s *EmailSender) sendEmail(ctx context.Context, recipient string, message []byte) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(s.from); err != nil {
		return err
	}
	if err := client.Rcpt(recipient); err != nil {
		return err
	}
	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := writer.Write(message); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (s *EmailSender) connect(ctx context.Context) (*smtp.Client, error) {
	address := fmt.Sprintf("%s:%d", s.host, s.port)
	dialer := &net.Dialer{Timeout: s.timeout}
	var (
		conn net.Conn
		err  error
	)
	if s.security == smtpSecurityTLS {
		tlsConfig := &tls.Config{ServerName: s.host, InsecureSkipVerify: s.skipTLSVerify} // #nosec G402
		conn, err = tls.DialWithDialer(dialer, "tcp", address, tlsConfig)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, err
	}
	if s.timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.timeout))
	}
	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if s.security == smtpSecurityStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			_ = client.Close()
			return nil, fmt.Errorf("smtp server does not support STARTTLS")
		}
		tlsConfig := &tls.Config{ServerName: s.host, InsecureSkipVerify: s.skipTLSVerify} // #nosec G402
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return client, nil
}

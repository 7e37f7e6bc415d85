package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/memora-music/server/internal/module/payment"
	"github.com/memora-music/server/internal/shared/config"
)

const pendingPaymentTemplate = `<!DOCTYPE html>
<html lang="pt-BR">
<body style="font-family: sans-serif; color: #333;">
  <h2>Pagamento em processamento</h2>
  <p>Recebemos seu pedido e estamos aguardando a confirmação do pagamento.</p>
  <table cellpadding="4">
    <tr><td><strong>Referência:</strong></td><td>{{.PaymentIntentID}}</td></tr>
    <tr><td><strong>Valor:</strong></td><td>{{.AmountFormatted}} {{.Currency}}</td></tr>
    {{if .PaymentMethod}}<tr><td><strong>Método:</strong></td><td>{{.PaymentMethod}}</td></tr>{{end}}
  </table>
  {{if .VoucherURL}}<p><a href="{{.VoucherURL}}">Visualizar boleto</a></p>{{end}}
  <p>Assim que o pagamento for confirmado, seus créditos serão liberados automaticamente.</p>
  <p>— Equipe Memora Music</p>
</body>
</html>`

// SMTPMailer sends notification emails through an SMTP relay.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
	tmpl     *template.Template
}

// NewSMTPMailer creates an SMTP mailer from configuration.
func NewSMTPMailer(cfg *config.EmailConfig) (*SMTPMailer, error) {
	tmpl, err := template.New("pending_payment").Parse(pendingPaymentTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse email template: %w", err)
	}
	return &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUser,
		password: cfg.SMTPPass,
		from:     cfg.FromAddress,
		fromName: cfg.FromName,
		tmpl:     tmpl,
	}, nil
}

type pendingPaymentData struct {
	PaymentIntentID string
	AmountFormatted string
	Currency        string
	PaymentMethod   string
	VoucherURL      string
}

// SendPendingPayment notifies the buyer that an asynchronous payment
// is awaiting confirmation.
func (m *SMTPMailer) SendPendingPayment(_ context.Context, to string, info payment.PendingPayment) error {
	data := pendingPaymentData{
		PaymentIntentID: info.PaymentIntentID,
		AmountFormatted: fmt.Sprintf("%.2f", float64(info.Amount)/100),
		Currency:        info.Currency,
		PaymentMethod:   info.PaymentMethod,
		VoucherURL:      info.VoucherURL,
	}

	var body bytes.Buffer
	if err := m.tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	msg := bytes.Buffer{}
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", m.fromName, m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: Pagamento em processamento - Memora Music\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	auth := smtp.PlainAuth("", m.username, m.password, m.host)
	if err := smtp.SendMail(addr, auth, m.from, []string{to}, msg.Bytes()); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// NoOpMailer discards all emails. Used when SMTP is not configured.
type NoOpMailer struct{}

// NewNoOpMailer creates a mailer that silently drops messages.
func NewNoOpMailer() *NoOpMailer {
	return &NoOpMailer{}
}

// SendPendingPayment discards the message.
func (m *NoOpMailer) SendPendingPayment(context.Context, string, payment.PendingPayment) error {
	return nil
}

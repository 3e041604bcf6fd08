// Package email envía los correos transaccionales del servicio por SMTP.
package email

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/dropDatabas3/custodia/internal/observability/logger"
)

// SMTPSender envía correos por SMTP con STARTTLS automático.
type SMTPSender struct {
	Host string
	Port int
	From string
	User string
	Pass string
	// InsecureSkipVerify solo para dev contra un relay local.
	InsecureSkipVerify bool
}

func NewSMTPSender(host string, port int, from, user, pass string) *SMTPSender {
	return &SMTPSender{Host: host, Port: port, From: from, User: user, Pass: pass}
}

// SendResetCode envía el código de recuperación de contraseña. El código va
// en texto plano y en HTML; nunca se loguea.
func (s *SMTPSender) SendResetCode(ctx context.Context, to, code string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Código de recuperación de contraseña")
	m.SetBody("text/plain", fmt.Sprintf(
		"Tu código de recuperación es: %s\n\nSi no pediste este código, ignorá este correo.", code))
	m.AddAlternative("text/html", fmt.Sprintf(
		"<p>Tu código de recuperación es:</p><p style=\"font-size:24px\"><b>%s</b></p>"+
			"<p>Si no pediste este código, ignorá este correo.</p>", code))

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         s.Host,
		InsecureSkipVerify: s.InsecureSkipVerify,
	}

	if err := d.DialAndSend(m); err != nil {
		logger.From(ctx).Error("envío smtp falló",
			logger.Component("email"), logger.Err(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogSender es el mailer de desarrollo: loguea en vez de enviar.
type LogSender struct{}

func (LogSender) SendResetCode(ctx context.Context, to, code string) error {
	logger.From(ctx).Info("código de reset (modo dev, no se envía email)",
		logger.Component("email"), logger.Key(to))
	return nil
}

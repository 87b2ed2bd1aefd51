package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/mverdun/farewatch/config"
	"github.com/mverdun/farewatch/internal/domain"
)

// EmailSender sends one plaintext summary of a batch of deals via
// authenticated SMTP (STARTTLS). No retry on transient failure; the
// returned error is the failure indicator for the caller.
type EmailSender struct {
	cfg config.EmailConfig
}

func NewEmailSender(cfg config.EmailConfig) *EmailSender {
	return &EmailSender{cfg: cfg}
}

func (s *EmailSender) SendDealBatch(ctx context.Context, deals []domain.StoredDeal) error {
	if len(deals) == 0 {
		return nil
	}
	if s.cfg.Host == "" || len(s.cfg.Recipients) == 0 {
		return fmt.Errorf("email: host or recipients not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := buildDealEmail(s.cfg.From, s.cfg.Recipients, deals)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := smtp.SendMail(s.cfg.Addr(), auth, s.cfg.From, s.cfg.Recipients, msg); err != nil {
		return fmt.Errorf("email: send batch: %w", err)
	}
	return nil
}

func buildDealEmail(from string, recipients []string, deals []domain.StoredDeal) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&b, "Subject: %d flight deal(s) under threshold\r\n", len(deals))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")

	for i, d := range deals {
		fmt.Fprintf(&b, "%d. %s -> %s\r\n", i+1, d.Origin, d.Destination)
		if d.ReturnDate != "" {
			fmt.Fprintf(&b, "   %s / %s\r\n", d.DepartureDate, d.ReturnDate)
		} else {
			fmt.Fprintf(&b, "   %s\r\n", d.DepartureDate)
		}
		fmt.Fprintf(&b, "   %.2f USD (%s) via %s\r\n", d.Price, d.Airline, d.Source)
		fmt.Fprintf(&b, "   %s\r\n\r\n", d.URL)
	}

	return []byte(b.String())
}

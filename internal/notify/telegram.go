package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mverdun/farewatch/internal/domain"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramNotifier posts Markdown-formatted messages to a chat through the
// Bot API. With missing credentials Send logs nothing upstream and reports
// the problem as an error for the caller to log.
type TelegramNotifier struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		apiBase: defaultTelegramAPI,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// NewTelegramNotifierWithBase is used by tests to point at a fake API.
func NewTelegramNotifierWithBase(apiBase, token, chatID string) *TelegramNotifier {
	n := NewTelegramNotifier(token, chatID)
	n.apiBase = strings.TrimRight(apiBase, "/")
	return n
}

func (n *TelegramNotifier) Send(ctx context.Context, text string) error {
	if n.token == "" || n.chatID == "" {
		return fmt.Errorf("telegram: bot token or chat id not configured")
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id":    n.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: send message returned status %d", resp.StatusCode)
	}
	return nil
}

// FormatDeal renders the alert message for a single deal.
func FormatDeal(d domain.StoredDeal) string {
	var b strings.Builder
	b.WriteString("*Oferta detectada*\n\n")
	fmt.Fprintf(&b, "%s → %s\n", d.Origin, d.Destination)
	if d.ReturnDate != "" {
		fmt.Fprintf(&b, "%s — %s\n", d.DepartureDate, d.ReturnDate)
	} else {
		fmt.Fprintf(&b, "%s\n", d.DepartureDate)
	}
	fmt.Fprintf(&b, "%.2f USD (%s)\n\n", d.Price, d.Airline)
	fmt.Fprintf(&b, "[Ver en Google Flights](%s)", d.URL)
	return b.String()
}

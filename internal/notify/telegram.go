package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/circuitbreaker"
	infraerrors "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/errors"
	infrahttp "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/http"
	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

// DefaultTelegramAPIURL is the public Bot API endpoint.
const DefaultTelegramAPIURL = "https://api.telegram.org"

var errMissingBotToken = errors.New("telegram bot token is required")

// TelegramConfig configures the Bot API sender.
type TelegramConfig struct {
	BotToken string        `env:"TELEGRAM_BOT_TOKEN" yaml:"bot_token"`
	APIURL   string        `env:"TELEGRAM_API_URL"   yaml:"api_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// TelegramSender delivers notifications with the Bot API sendMessage method.
type TelegramSender struct {
	endpoint string
	client   *http.Client
	breaker  *circuitbreaker.Breaker
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// NewTelegramSender creates a sender. Consecutive failures open a circuit so
// an unreachable Bot API fails fast instead of holding dispatch goroutines.
func NewTelegramSender(cfg TelegramConfig, log logger.Logger) (*TelegramSender, error) {
	if cfg.BotToken == "" {
		return nil, errMissingBotToken
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultTelegramAPIURL
	}

	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
		log.Warn("Telegram circuit breaker state changed",
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}

	return &TelegramSender{
		endpoint: strings.TrimRight(apiURL, "/") + "/bot" + cfg.BotToken + "/sendMessage",
		client:   infrahttp.NewClient(&infrahttp.ClientConfig{Timeout: cfg.Timeout}),
		breaker:  circuitbreaker.New(breakerCfg),
	}, nil
}

func (s *TelegramSender) Name() string { return "telegram" }

func (s *TelegramSender) Send(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                n.Recipient,
		Text:                  n.Message,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return s.breaker.Execute(func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if reqErr != nil {
			return fmt.Errorf("build request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := s.client.Do(req)
		if doErr != nil {
			return fmt.Errorf("send message: %w", doErr)
		}
		defer resp.Body.Close()

		return infraerrors.ParseHTTPError(resp)
	})
}

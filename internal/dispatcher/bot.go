package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SendStatus classifies the result of one delivery attempt.
type SendStatus int

const (
	// SendSuccess means the chat API accepted the message.
	SendSuccess SendStatus = iota
	// SendTransient means a 5xx or timeout; the caller should retry.
	SendTransient
	// SendPermanent means a 4xx other than 429, or a forbidden channel;
	// the caller must not retry.
	SendPermanent
	// SendRateLimited means the bot hit 429; RetryAfter names how long
	// that bot specifically should be paused.
	SendRateLimited
)

// Outcome is the result of one BotSender.Send call.
type Outcome struct {
	Status     SendStatus
	RetryAfter time.Duration
}

// Identity names one outbound bot and its chat API token.
type Identity struct {
	ID    string
	Token string
}

// BotSender submits a rendered message body to a channel through one bot
// identity. Implementations classify failures: transient failures are
// retryable, permanent failures are not, and 429s carry a retry-after.
type BotSender interface {
	Send(ctx context.Context, bot Identity, channelID, body string) (Outcome, error)
}

// HTTPBotSender is the production BotSender: it POSTs to the chat API
// endpoint using the bot's bearer token.
type HTTPBotSender struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPBotSender constructs an HTTPBotSender. Sends carry a 5s deadline.
func NewHTTPBotSender(baseURL string) *HTTPBotSender {
	return &HTTPBotSender{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
	}
}

type sendPayload struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Send implements BotSender.
func (s *HTTPBotSender) Send(ctx context.Context, bot Identity, channelID, body string) (Outcome, error) {
	payload, err := json.Marshal(sendPayload{ChatID: channelID, Text: body, ParseMode: "HTML"})
	if err != nil {
		return Outcome{}, fmt.Errorf("dispatcher: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sendMessage", bytes.NewReader(payload))
	if err != nil {
		return Outcome{}, fmt.Errorf("dispatcher: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bot.Token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Outcome{Status: SendTransient}, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Outcome{Status: SendSuccess}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return Outcome{Status: SendRateLimited, RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}, nil
	case resp.StatusCode >= 500:
		return Outcome{Status: SendTransient}, nil
	default:
		return Outcome{Status: SendPermanent}, nil
	}
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}

// botState is the dispatcher's per-bot runtime state: its identity, its
// token bucket, and an optional pause deadline set by a 429 response.
type botState struct {
	identity Identity
	limiter  *rate.Limiter

	mu          sync.Mutex
	pausedUntil time.Time
}

// DefaultBotRate is the per-bot send ceiling: 30 messages/s.
const DefaultBotRate = 30

func newBotState(identity Identity, perSecond int) *botState {
	if perSecond <= 0 {
		perSecond = DefaultBotRate
	}
	return &botState{
		identity: identity,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

// wait blocks until this bot's token bucket admits a send and any active
// 429 pause has elapsed.
func (b *botState) wait(ctx context.Context) error {
	b.mu.Lock()
	until := b.pausedUntil
	b.mu.Unlock()

	if !until.IsZero() {
		if d := time.Until(until); d > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}
	}
	return b.limiter.Wait(ctx)
}

// pause records a 429 pause for this bot only; it does not affect any
// other bot's token bucket.
func (b *botState) pause(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(b.pausedUntil) {
		b.pausedUntil = until
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// EmailService sends operational emails.
type EmailService interface {
	SendLowBalanceAlert(ctx context.Context, toEmail, chain, wallet, balanceWei string) error
}

// NoopEmailService is used when email alerts are disabled.
type NoopEmailService struct{}

func (s *NoopEmailService) SendLowBalanceAlert(ctx context.Context, toEmail, chain, wallet, balanceWei string) error {
	log.Printf("[EmailService] noop low balance alert chain=%s wallet=%s balance=%s", chain, wallet, balanceWei)
	return nil
}

// ResendEmailService sends emails via Resend REST API.
type ResendEmailService struct {
	from   string
	client *resend.Client
}

func NewResendEmailService(apiKey, from string) (*ResendEmailService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	return &ResendEmailService{
		from:   from,
		client: resend.NewClient(apiKey),
	}, nil
}

func (s *ResendEmailService) SendLowBalanceAlert(ctx context.Context, toEmail, chain, wallet, balanceWei string) error {
	if toEmail == "" {
		return fmt.Errorf("toEmail is required")
	}

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{toEmail},
		Subject: fmt.Sprintf("Faucet wallet low on %s", chain),
		Text: fmt.Sprintf("The faucet hot wallet %s on chain %s is running low: %s wei remaining. Top it up before drips start failing.",
			wallet, chain, balanceWei),
		Html: fmt.Sprintf("<p>The faucet hot wallet <code>%s</code> on chain <strong>%s</strong> is running low: <strong>%s wei</strong> remaining.</p><p>Top it up before drips start failing.</p>",
			wallet, chain, balanceWei),
	}

	// Один алерт на окно кулдауна; ключ идемпотентности защищает от дублей при ретраях
	options := &resend.SendEmailOptions{
		IdempotencyKey: fmt.Sprintf("low-balance:%s:%s", chain, time.Now().Format("2006-01-02")),
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, err := s.client.Emails.SendWithOptions(ctx, params, options)
		if err == nil {
			return nil
		}
		lastErr = err

		if wait, ok := resendRetryDelay(err, attempt); ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("resend send failed: %w", err)
	}

	return fmt.Errorf("resend send failed after retries: %w", lastErr)
}

func resendRetryDelay(err error, attempt int) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second, true
		}
		return time.Duration(attempt+1) * time.Second, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && (netErr.Timeout() || netErr.Temporary()) {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	return 0, false
}

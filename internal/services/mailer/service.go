// -----------------------------------------------------------------------
// Mailer Service - pooled, rate-limited SMTP delivery with retries
// -----------------------------------------------------------------------

package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/sicknote/internal/common"
	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/metrics"
	"github.com/ternarybob/sicknote/internal/models"
)

var (
	// ErrNotConfigured is returned when no SMTP host or sender is set
	ErrNotConfigured = errors.New("SMTP not configured")

	// ErrAttachmentMissing is returned when the attachment file cannot be read
	ErrAttachmentMissing = errors.New("attachment not found")

	errRateLimitWait = errors.New("rate limit wait aborted")
)

// DeliveryError reports a message that could not be delivered after all attempts
type DeliveryError struct {
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("email delivery failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Service implements interfaces.Mailer
type Service struct {
	sender   Sender
	config   common.SMTPConfig
	policy   common.RetryPolicy
	limiter  *rate.Limiter
	validate *validator.Validate
	metrics  *metrics.Collector
	logger   arbor.ILogger
	now      func() time.Time
}

// Compile-time assertion
var _ interfaces.Mailer = (*Service)(nil)

// NewService creates a new mailer service. The rate limit is shared by all
// callers of the returned service.
func NewService(config common.SMTPConfig, sender Sender, collector *metrics.Collector, logger arbor.ILogger) *Service {
	limit := rate.Inf
	burst := 1
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
		burst = int(config.RateLimit)
		if burst < 1 {
			burst = 1
		}
	}

	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}

	s := &Service{
		sender:   sender,
		config:   config,
		limiter:  rate.NewLimiter(limit, burst),
		validate: validator.New(),
		metrics:  collector,
		logger:   logger,
		now:      time.Now,
	}

	s.policy = common.RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     common.LinearBackoff(config.RetryDelay.Or(time.Second)),
		Retryable:   retryable,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			s.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_attempts", maxAttempts).
				Dur("wait", wait).
				Msg("Email delivery failed, retrying")
		},
	}

	return s
}

// IsConfigured reports whether a host and sender address are set
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.From != ""
}

// Deliver sends msg, retrying transport failures with a linear backoff
func (s *Service) Deliver(ctx context.Context, msg *models.EmailMessage) error {
	if msg == nil {
		return fmt.Errorf("email message is required")
	}
	if err := s.validate.Struct(msg); err != nil {
		return fmt.Errorf("invalid email message: %w", err)
	}
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if msg.Attachment != nil {
		if _, err := os.Stat(msg.Attachment.Path); err != nil {
			return fmt.Errorf("%w: %s", ErrAttachmentMissing, msg.Attachment.Path)
		}
	}

	from := &mail.Address{Name: s.config.FromName, Address: s.config.From}
	start := time.Now()
	attempts := 0

	err := s.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		s.metrics.DeliveryAttempt()

		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", errRateLimitWait, err)
		}

		return s.sender.Send(ctx, s.config.From, []string{msg.To}, func(w io.Writer) error {
			return composeMessage(w, from, msg, s.now())
		})
	})

	if err != nil {
		s.metrics.DeliveryFinished("failed")
		s.logger.Error().
			Err(err).
			Str("to", msg.To).
			Int("attempts", attempts).
			Dur("duration", time.Since(start)).
			Msg("Email delivery failed")
		return &DeliveryError{Attempts: attempts, Err: err}
	}

	s.metrics.DeliveryFinished("success")
	s.logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("attempts", attempts).
		Dur("duration", time.Since(start)).
		Msg("Email sent successfully")
	return nil
}

// Close releases pooled SMTP sessions
func (s *Service) Close() error {
	if s.sender == nil {
		return nil
	}
	return s.sender.Close()
}

// retryable classifies a failed attempt. The caller's own deadline or
// cancellation is checked by the retry loop itself; a transport timeout
// (which also matches context.DeadlineExceeded) is transient.
func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, errRateLimitWait) &&
		!errors.Is(err, ErrNotConfigured)
}

package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/hospital-api/config"
	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("email transport unavailable")

type Service interface {
	Send(ctx context.Context, notice *model.EmailNotice) error
}

// Dialer is the part of gomail.Dialer the service uses.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	dialer  Dialer
	from    string
	cb      *gobreaker.CircuitBreaker
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewSMTPService sends through the configured SMTP relay. Repeated failures
// open the breaker and later sends fail fast with ErrUnavailable.
func NewSMTPService(cfg config.EmailConfig, log *logger.Logger, m *metrics.Metrics) Service {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return NewService(d, cfg, log, m)
}

func NewService(d Dialer, cfg config.EmailConfig, log *logger.Logger, m *metrics.Metrics) Service {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s := &smtpService{
		dialer:  d,
		from:    cfg.From,
		logger:  log.With("email"),
		metrics: m,
	}
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			m.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	return s
}

func (s *smtpService) Send(ctx context.Context, notice *model.EmailNotice) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", notice.To)
	msg.SetHeader("Subject", notice.Subject)
	msg.SetBody("text/plain", notice.Text)

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.dialer.DialAndSend(msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.metrics.EmailsFailed.WithLabelValues("breaker_open").Inc()
			return ErrUnavailable
		}
		s.metrics.EmailsFailed.WithLabelValues("smtp").Inc()
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.metrics.EmailsSent.Inc()
	s.logger.Debug("email sent", "subject", notice.Subject)
	return nil
}

// LogService only logs notices. It stands in when no SMTP host is configured.
type LogService struct {
	logger *logger.Logger
}

func NewLogService(log *logger.Logger) *LogService {
	if log == nil {
		log = logger.Nop()
	}
	return &LogService{logger: log.With("email")}
}

func (s *LogService) Send(_ context.Context, notice *model.EmailNotice) error {
	s.logger.Info("email not sent, no SMTP host configured", "to", notice.To, "subject", notice.Subject)
	return nil
}

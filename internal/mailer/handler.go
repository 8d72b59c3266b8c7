package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/resilience"
)

// Handler delivers email tasks on the worker.
type Handler struct {
	Sender  common.EmailSender
	Breaker *resilience.Breaker
	Logger  zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	if h.Sender == nil {
		return errors.New("mailer: sender not configured")
	}
	var email common.Email
	if err := json.Unmarshal(task.Payload(), &email); err != nil {
		obs.MailSentTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("decode email task: %v: %w", err, asynq.SkipRetry)
	}
	send := func(ctx context.Context) error {
		return h.Sender.Send(ctx, email.To, email.Subject, email.HTML)
	}
	var err error
	if h.Breaker != nil {
		err = h.Breaker.Do(ctx, send)
	} else {
		err = send(ctx)
	}
	if err != nil {
		obs.MailSentTotal.WithLabelValues("error").Inc()
		h.Logger.Warn().Err(err).Str("to", email.To).Str("subject", email.Subject).Msg("email delivery failed")
		return fmt.Errorf("send email: %w", err)
	}
	obs.MailSentTotal.WithLabelValues("sent").Inc()
	h.Logger.Info().Str("to", email.To).Str("subject", email.Subject).Msg("email sent")
	return nil
}

// NewServeMux routes email tasks to h.
func NewServeMux(h Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeSendEmail, h)
	return mux
}

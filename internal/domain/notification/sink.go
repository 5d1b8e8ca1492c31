package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/whispers/whispers/internal/platform/mail"
	"github.com/whispers/whispers/internal/platform/telemetry"
)

const adminSubject = "WHISPERS ADMIN: Problem Encountered During generate_notification"

// Sink persists drafts as inbox notifications and forwards them by email.
type Sink struct {
	repo       Repository
	mailer     mail.EmailSender
	adminEmail string
	logger     zerolog.Logger
	now        func() time.Time
}

func NewSink(repo Repository, mailer mail.EmailSender, adminEmail string, logger zerolog.Logger) *Sink {
	return &Sink{repo: repo, mailer: mailer, adminEmail: adminEmail, logger: logger, now: time.Now}
}

// Generate writes one unread notification per recipient. A draft without
// recipients or subject creates nothing; the admin address is told why.
// Email failures are logged and never returned.
func (s *Sink) Generate(ctx context.Context, d Draft) error {
	if len(d.Recipients) == 0 || d.Subject == "" {
		s.reportProblem(ctx, d)
		return nil
	}

	eventID := d.EventID
	for _, recipient := range d.Recipients {
		n := &Notification{
			RecipientID: recipient,
			Source:      d.Source,
			EventID:     &eventID,
			ClientPage:  d.ClientPage,
			Subject:     d.Subject,
			Body:        d.Body,
		}
		if err := s.repo.Create(ctx, n); err != nil {
			return fmt.Errorf("create notification for %s: %w", recipient, err)
		}
	}
	telemetry.AddNotifications(d.Rule, len(d.Recipients))

	if !d.SendEmail {
		return nil
	}
	for _, to := range d.EmailTo {
		if to == "" {
			continue
		}
		if err := s.mailer.SendEmail(ctx, []string{to}, d.Subject, d.Body); err != nil {
			telemetry.IncEmailFailure()
			s.logger.Error().Err(err).Str("to", to).Str("event_id", d.EventID.String()).Msg("notification email failed")
		}
	}
	return nil
}

func (s *Sink) reportProblem(ctx context.Context, d Draft) {
	cause := "a null subject."
	switch {
	case len(d.Recipients) == 0 && d.Subject == "":
		cause = "a null recipient list and a null subject."
	case len(d.Recipients) == 0:
		cause = "a null recipient list."
	}
	body := fmt.Sprintf("While generating a notification, a problem was encountered. No notification was created. "+
		"The cause of the problem was %s Problem encountered at %s during rule %q.",
		cause, s.now().Format("01/02/2006 15:04:05"), d.Rule)

	s.logger.Warn().Str("rule", d.Rule).Str("event_id", d.EventID.String()).Msg("notification dropped: " + cause)
	if s.adminEmail == "" {
		return
	}
	if err := s.mailer.SendEmail(ctx, []string{s.adminEmail}, adminSubject, body); err != nil {
		telemetry.IncEmailFailure()
		s.logger.Error().Err(err).Msg("admin problem email failed")
	}
}

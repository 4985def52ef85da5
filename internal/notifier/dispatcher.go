package notifier

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/metrics"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/model"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/quota"
)

// RecipientStore is the recipient persistence the dispatcher needs,
// typically store.Store.
type RecipientStore interface {
	ListRecipients() ([]model.Recipient, error)
	UpsertRecipient(r *model.Recipient) error
	UpsertRecipientThrottles(recipients []*model.Recipient) error
}

// Sender delivers one message, typically Mailer.
type Sender interface {
	Send(to, subject, htmlBody string) (string, error)
}

// Dispatcher fans a signal alert out to every eligible recipient. Eligibility
// is the recipient's per-asset preference plus the per-asset cooldown; the
// daily email quota caps the whole fan-out.
type Dispatcher struct {
	store    RecipientStore
	sender   Sender
	counters *quota.Counters
	assets   []string
	cooldown time.Duration
	log      zerolog.Logger

	now func() time.Time
}

// NewDispatcher wires a dispatcher. assets is the tracked asset universe used
// to backfill preferences for recipients created before an asset was added.
func NewDispatcher(store RecipientStore, sender Sender, counters *quota.Counters, assets []string, cooldown time.Duration, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		sender:   sender,
		counters: counters,
		assets:   assets,
		cooldown: cooldown,
		log:      log.With().Str("component", "dispatcher").Logger(),
		now:      time.Now,
	}
}

// Dispatch sends the alert to every recipient that subscribes to the asset
// and is outside their cooldown. Individual delivery failures are logged and
// skipped; a quota refusal stops the fan-out but is not an error. Returns the
// number of recipients actually notified.
func (d *Dispatcher) Dispatch(ctx context.Context, p *model.Prediction, snap *model.Snapshot) (int, error) {
	recipients, err := d.store.ListRecipients()
	if err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	subject, body := FormatAlert(p, snap)
	now := d.now()

	var (
		sent      int
		throttled []*model.Recipient
	)
	for i := range recipients {
		if ctx.Err() != nil {
			break
		}
		r := &recipients[i]

		if r.EnsureDefaultPreferences(d.assets) {
			if err := d.store.UpsertRecipient(r); err != nil {
				d.log.Error().Err(err).Str("recipient", r.Email).Msg("preference backfill failed")
			}
		}
		if !r.Preferences[p.AssetID] {
			continue
		}
		if !r.CanNotify(p.AssetID, d.cooldown, now) {
			d.log.Debug().Str("recipient", r.Email).Str("asset", p.AssetID).
				Msg("within cooldown, skipping")
			continue
		}

		if d.counters != nil {
			if err := d.counters.Touch(quota.KeyEmail, 1); err != nil {
				var limit *quota.LimitError
				if errors.As(err, &limit) {
					metrics.QuotaRejections.WithLabelValues(quota.KeyEmail).Inc()
					d.log.Warn().Int("sent", sent).Msg("daily email quota reached, stopping fan-out")
					break
				}
				return sent, err
			}
		}

		deliveryID, err := d.sender.Send(r.Email, subject, body)
		if err != nil {
			d.log.Error().Err(err).Str("recipient", r.Email).Msg("delivery failed")
			continue
		}
		r.MarkNotified(p.AssetID, now)
		throttled = append(throttled, r)
		sent++
		metrics.NotificationsSent.Inc()
		d.log.Info().Str("recipient", r.Email).Str("asset", p.AssetID).
			Str("delivery_id", deliveryID).Msg("alert sent")
	}

	// Throttle persistence failures must not undo a completed fan-out;
	// worst case a recipient is re-notified a cycle early.
	if len(throttled) > 0 {
		if err := d.store.UpsertRecipientThrottles(throttled); err != nil {
			d.log.Error().Err(err).Msg("persisting throttles failed")
		}
	}
	return sent, nil
}

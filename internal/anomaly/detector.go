package anomaly

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/errors"
	"fleet-monitor/locintel/internal/metrics"
	"fleet-monitor/locintel/internal/notify"
)

const (
	DefaultWindow = time.Hour

	summaryInsufficient = "Not enough data."
	summaryClear        = "No anomaly detected."
)

type Store interface {
	GetOwner(ctx context.Context, id string) (*domain.Owner, error)
	GetEntity(ctx context.Context, id string) (*domain.TrackedEntity, error)
	PositionsSince(ctx context.Context, entityID string, since time.Time) ([]domain.PositionSample, error)

	InsertAnomalyAlert(ctx context.Context, a *domain.AnomalyAlert) error
	GetAnomalyAlert(ctx context.Context, id string) (*domain.AnomalyAlert, error)
	ListUnacknowledgedAnomalyAlerts(ctx context.Context, ownerID string) ([]domain.AnomalyAlert, error)
	AcknowledgeAnomalyAlert(ctx context.Context, id string) error
}

// Judge is the external judgment service.
type Judge interface {
	Judge(ctx context.Context, systemPrompt, userContext string) (string, error)
}

// Publisher fans an event out to an owner's live channels.
type Publisher interface {
	Publish(ownerID, eventName string, payload interface{}) int
}

type Detector struct {
	store  Store
	judge  Judge
	hub    Publisher
	push   notify.Sender
	rules  Rules
	window time.Duration
	now    func() time.Time
	logger *zap.SugaredLogger
}

func NewDetector(store Store, judge Judge, hub Publisher, push notify.Sender, rules Rules, window time.Duration, logger *zap.SugaredLogger) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Detector{
		store:  store,
		judge:  judge,
		hub:    hub,
		push:   push,
		rules:  rules,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.Named("anomaly"),
	}
}

// CheckForOwner runs a check on demand after verifying ownership.
func (d *Detector) CheckForOwner(ctx context.Context, ownerID, entityID string) (*Verdict, error) {
	e, err := d.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if e.OwnerID != ownerID {
		return nil, errors.Forbiddenf("entity %s does not belong to owner %s", entityID, ownerID)
	}
	return d.Check(ctx, e)
}

// Check screens the entity's recent window and, when the pre-filter
// escalates, asks the judge. A positive or unparseable reply raises an alert.
func (d *Detector) Check(ctx context.Context, entity *domain.TrackedEntity) (*Verdict, error) {
	samples, err := d.store.PositionsSince(ctx, entity.ID, d.now().Add(-d.window))
	if err != nil {
		return nil, err
	}

	a := d.rules.Evaluate(samples)
	if !a.Sufficient {
		metrics.AnomalyChecks.WithLabelValues("insufficient").Inc()
		return &Verdict{EntityID: entity.ID, Anomalies: []Anomaly{}, Summary: summaryInsufficient, Structured: true}, nil
	}
	if !a.Escalate() {
		metrics.AnomalyChecks.WithLabelValues("clear").Inc()
		return &Verdict{EntityID: entity.ID, Anomalies: []Anomaly{}, Summary: summaryClear, Structured: true}, nil
	}
	metrics.AnomalyChecks.WithLabelValues("escalated").Inc()

	raw, err := d.judge.Judge(ctx, systemPrompt, buildContext(entity, a, samples, d.rules.location()))
	if err != nil {
		return nil, err
	}

	v := ParseVerdict(entity.ID, raw)
	v.Findings = a.Findings
	if !v.Structured {
		d.logger.Warnw("Unparseable judge reply, keeping raw text", "entity_id", entity.ID)
	}
	if v.AnomalyDetected || !v.Structured {
		alert, err := d.raise(ctx, entity, v.Summary, raw)
		if err != nil {
			return nil, err
		}
		v.AlertID = alert.ID
	}
	return &v, nil
}

func (d *Detector) raise(ctx context.Context, entity *domain.TrackedEntity, summary, raw string) (*domain.AnomalyAlert, error) {
	alert := &domain.AnomalyAlert{
		ID:                uuid.NewString(),
		EntityID:          entity.ID,
		EntityDisplayName: entity.DisplayName,
		Summary:           summary,
		RawResult:         raw,
		CreatedAt:         d.now(),
	}
	if err := d.store.InsertAnomalyAlert(ctx, alert); err != nil {
		return nil, err
	}

	d.hub.Publish(entity.OwnerID, domain.EventAnomalyAlert, domain.AnomalyAlertEvent{
		EntityID:    entity.ID,
		DisplayName: entity.DisplayName,
		Summary:     summary,
		AlertID:     alert.ID,
	})

	if owner, err := d.store.GetOwner(ctx, entity.OwnerID); err != nil {
		d.logger.Warnw("Owner lookup for push failed", "owner_id", entity.OwnerID, "error", err)
	} else {
		d.push.SendPush(ctx, owner.PushToken, "Anomaly: "+entity.DisplayName, summary)
	}

	d.logger.Infow("Anomaly alert raised", "entity_id", entity.ID, "alert_id", alert.ID)
	return alert, nil
}

func (d *Detector) ListAlerts(ctx context.Context, ownerID string) ([]domain.AnomalyAlert, error) {
	return d.store.ListUnacknowledgedAnomalyAlerts(ctx, ownerID)
}

func (d *Detector) Acknowledge(ctx context.Context, ownerID, alertID string) error {
	a, err := d.store.GetAnomalyAlert(ctx, alertID)
	if err != nil {
		return err
	}
	e, err := d.store.GetEntity(ctx, a.EntityID)
	if err != nil {
		return err
	}
	if e.OwnerID != ownerID {
		return errors.Forbiddenf("anomaly alert %s does not belong to owner %s", alertID, ownerID)
	}
	return d.store.AcknowledgeAnomalyAlert(ctx, alertID)
}

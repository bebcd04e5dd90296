package usecase

import (
	"context"
	"strings"
	"time"

	"decisionlog-backend/internal/decision/domain"
	"decisionlog-backend/internal/decision/repository"
	"decisionlog-backend/pkg/chroma"
	"decisionlog-backend/pkg/metrics"

	"go.uber.org/zap"
)

type decisionUsecase struct {
	decisions repository.DecisionRepository
	tags      repository.TagRepository
	index     SemanticIndex
	log       *zap.Logger
	now       func() time.Time
}

// NewDecisionUsecase creates the decision usecase. index may be nil.
func NewDecisionUsecase(
	decisions repository.DecisionRepository,
	tags repository.TagRepository,
	index SemanticIndex,
	log *zap.Logger,
) DecisionUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &decisionUsecase{
		decisions: decisions,
		tags:      tags,
		index:     index,
		log:       log.Named("decision"),
		now:       time.Now,
	}
}

func (u *decisionUsecase) List(ctx context.Context, viewer domain.Viewer, filter domain.ListFilter) ([]*domain.Decision, int64, error) {
	return u.decisions.List(ctx, viewer, filter)
}

func (u *decisionUsecase) Get(ctx context.Context, viewer domain.Viewer, id string) (*domain.Decision, error) {
	d, err := u.decisions.FindVisible(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (u *decisionUsecase) Delete(ctx context.Context, viewer domain.Viewer, id string) error {
	deleted, err := u.decisions.Delete(ctx, viewer, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	if u.index != nil {
		if err := u.index.Delete(ctx, id); err != nil {
			u.log.Warn("failed to remove decision from semantic index", zap.String("decision_id", id), zap.Error(err))
		}
	}
	return nil
}

func (u *decisionUsecase) Confirm(ctx context.Context, token string) (*domain.Decision, domain.ConfirmOutcome, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, "", domain.ErrNotFound
	}

	affected, err := u.decisions.MarkConfirmed(ctx, token, u.now())
	if err != nil {
		return nil, "", err
	}

	d, err := u.decisions.FindByToken(ctx, token)
	if err != nil {
		return nil, "", err
	}
	if d == nil {
		return nil, "", domain.ErrNotFound
	}

	if affected == 0 {
		metrics.Get().Confirmations.WithLabelValues(string(domain.OutcomeAlreadyConfirmed)).Inc()
		return d, domain.OutcomeAlreadyConfirmed, nil
	}

	metrics.Get().Confirmations.WithLabelValues(string(domain.OutcomeConfirmed)).Inc()
	u.log.Info("decision confirmed", zap.String("decision_id", d.ID))
	u.indexDecision(ctx, d)
	return d, domain.OutcomeConfirmed, nil
}

func (u *decisionUsecase) indexDecision(ctx context.Context, d *domain.Decision) {
	if u.index == nil {
		return
	}
	owner := d.CreatedByEmail
	if d.DecisionMaker != "" {
		owner = d.DecisionMaker
	}
	doc := chroma.Document{
		DecisionID: d.ID,
		UserID:     d.UserID,
		OwnerEmail: strings.ToLower(owner),
		Topic:      d.Topic,
		Text:       strings.TrimSpace(d.Summary + "\n" + d.Topic),
	}
	if err := u.index.Upsert(ctx, doc); err != nil {
		u.log.Warn("failed to index decision", zap.String("decision_id", d.ID), zap.Error(err))
	}
}

func (u *decisionUsecase) Reject(ctx context.Context, token string) (domain.ConfirmOutcome, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.ErrNotFound
	}

	affected, err := u.decisions.DeletePending(ctx, token)
	if err != nil {
		return "", err
	}
	if affected > 0 {
		metrics.Get().Confirmations.WithLabelValues(string(domain.OutcomeRejected)).Inc()
		return domain.OutcomeRejected, nil
	}

	d, err := u.decisions.FindByToken(ctx, token)
	if err != nil {
		return "", err
	}
	if d == nil {
		return "", domain.ErrNotFound
	}
	return domain.OutcomeAlreadyConfirmed, nil
}

func (u *decisionUsecase) AddTags(ctx context.Context, viewer domain.Viewer, id string, names []string) (*domain.Decision, error) {
	d, err := u.Get(ctx, viewer, id)
	if err != nil {
		return nil, err
	}

	existing, err := u.tags.ListNames(ctx)
	if err != nil {
		return nil, err
	}
	if err := attachTags(ctx, u.tags, d.ID, ResolveTags(names, existing)); err != nil {
		return nil, err
	}
	return u.Get(ctx, viewer, id)
}

func (u *decisionUsecase) RemoveTag(ctx context.Context, viewer domain.Viewer, id, name string) error {
	d, err := u.Get(ctx, viewer, id)
	if err != nil {
		return err
	}
	return u.tags.Detach(ctx, d.ID, strings.ToLower(strings.TrimSpace(name)))
}

func (u *decisionUsecase) ListTags(ctx context.Context, viewer domain.Viewer) ([]domain.TagCount, error) {
	return u.tags.ListVisible(ctx, viewer)
}

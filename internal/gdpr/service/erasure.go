package service

import (
	"context"
	"strconv"

	"piivault/internal/audit"
	"piivault/internal/gdpr/models"
	"piivault/internal/platform/tracer"
	usermodels "piivault/internal/users/models"
	"piivault/pkg/domain"
	dErrors "piivault/pkg/domain-errors"
	"piivault/pkg/requestcontext"
)

// ProcessRightToBeForgotten irreversibly erases a user's PII.
//
// The record is first claimed by persisting DELETION_REQUESTED so a
// concurrent request fails with a conflict. The erasure itself runs in one
// transaction: tombstone the record, delete the consent ledger, optionally
// delete prior audit events, and record user_erased. If that transaction
// fails the claim is reverted and the user is left as before.
func (m *Manager) ProcessRightToBeForgotten(ctx context.Context, ref domain.ReferenceID, reason string, retainAuditTrail bool) (result *models.DeletionResult, err error) {
	ctx, span := m.tracer.Start(ctx, tracer.SpanErasure,
		tracer.String(tracer.AttrReferenceID, ref.String()),
		tracer.Bool(tracer.AttrRetainAudit, retainAuditTrail),
	)
	defer func() { span.End(err) }()

	if _, err := domain.ParseReferenceID(ref.String()); err != nil {
		return nil, err
	}
	reason, err = normalizeReason(reason)
	if err != nil {
		return nil, err
	}

	if err := m.claim(ctx, ref, reason, span); err != nil {
		m.metrics.IncErasure("rejected")
		return nil, err
	}

	result, err = m.erase(ctx, ref, reason, retainAuditTrail)
	if err != nil {
		m.revertClaim(ctx, ref, span)
		m.metrics.IncErasure("failed")
		return nil, m.translate(ctx, ref, err, "failed to erase user")
	}

	m.metrics.IncErasure("erased")
	m.logger.InfoContext(ctx, "user erased",
		"reference_id", ref.String(),
		"consents_deleted", result.ConsentsDeleted,
		"audit_retained", retainAuditTrail,
		"audit_events_deleted", result.AuditEventsDeleted,
	)
	return result, nil
}

// claim moves the record to DELETION_REQUESTED. Erased and purged records
// and fresh claims are conflicts; a claim older than the claim TTL is
// abandoned and taken over.
func (m *Manager) claim(ctx context.Context, ref domain.ReferenceID, reason string, span tracer.Span) error {
	current, err := m.users.FindByReferenceID(ctx, ref)
	if err != nil {
		return m.translate(ctx, ref, err, "failed to load user")
	}
	if current.State.Terminal() {
		return dErrors.Conflict("user is already erased")
	}
	takeover := current.State == usermodels.StateDeletionRequested

	now := requestcontext.Now(ctx)
	err = m.tx.RunInTx(ctx, ref.String(), func(ctx context.Context) error {
		if _, err := m.users.MarkDeletionRequested(ctx, ref, now.Add(-m.policy.ClaimTTL)); err != nil {
			return err
		}
		detail := map[string]string{}
		if reason != "" {
			detail["reason"] = reason
		}
		if takeover {
			detail["claim_takeover"] = "true"
		}
		return m.trail.Record(ctx, audit.Event{
			UserReferenceID: ref,
			Type:            audit.EventErasureRequested,
			Detail:          detail,
		})
	})
	if err != nil {
		return m.translate(ctx, ref, err, "deletion already in progress")
	}
	span.AddEvent(tracer.EventClaimed, tracer.Bool(tracer.AttrClaimTakeover, takeover))
	return nil
}

func (m *Manager) erase(ctx context.Context, ref domain.ReferenceID, reason string, retainAuditTrail bool) (*models.DeletionResult, error) {
	result := &models.DeletionResult{
		ReferenceID:   ref,
		Reason:        reason,
		AuditRetained: retainAuditTrail,
	}
	err := m.tx.RunInTx(ctx, ref.String(), func(ctx context.Context) error {
		rec, err := m.users.HardErase(ctx, ref, reason)
		if err != nil {
			return err
		}
		if rec.ErasedAt != nil {
			result.ErasedAt = *rec.ErasedAt
		}

		result.ConsentsDeleted, err = m.consents.DeleteByUser(ctx, ref)
		if err != nil {
			return err
		}

		if !retainAuditTrail {
			result.AuditEventsDeleted, err = m.trail.DeleteByUser(ctx, ref)
			if err != nil {
				return err
			}
		}

		event := audit.Event{
			ID:              domain.NewEventID(),
			UserReferenceID: ref,
			Type:            audit.EventUserErased,
			Detail: map[string]string{
				"audit_retained":   strconv.FormatBool(retainAuditTrail),
				"consents_deleted": strconv.FormatInt(result.ConsentsDeleted, 10),
			},
		}
		if reason != "" {
			event.Detail["reason"] = reason
		}
		result.AuditEventID = event.ID
		return m.trail.Record(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// revertClaim is the compensating action for a failed erasure. A failure
// here leaves the claim to expire after the claim TTL.
func (m *Manager) revertClaim(ctx context.Context, ref domain.ReferenceID, span tracer.Span) {
	ctx = context.WithoutCancel(ctx)
	err := m.tx.RunInTx(ctx, ref.String(), func(ctx context.Context) error {
		_, err := m.users.RevertDeletionRequest(ctx, ref)
		return err
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to revert deletion claim",
			"reference_id", ref.String(),
			"error", err,
		)
		return
	}
	span.AddEvent(tracer.EventClaimReverted)
	m.logger.WarnContext(ctx, "deletion claim reverted", "reference_id", ref.String())
}

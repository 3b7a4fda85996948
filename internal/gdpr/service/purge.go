package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"piivault/internal/audit"
	"piivault/internal/gdpr/models"
	"piivault/internal/platform/tracer"
	usermodels "piivault/internal/users/models"
	"piivault/pkg/domain"
	dErrors "piivault/pkg/domain-errors"
	"piivault/pkg/requestcontext"
)

type purgeOutcome int

const (
	outcomePurged purgeOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// PurgeExpiredUsers purges every soft-deleted or erased user whose retention
// anchor is older than retentionDays. Each user is purged in its own
// transaction; a failure for one user is logged, reported in the result, and
// retried on the next run. Running it again immediately purges nothing.
func (m *Manager) PurgeExpiredUsers(ctx context.Context, retentionDays int) (result models.PurgeResult, err error) {
	ctx, span := m.tracer.Start(ctx, tracer.SpanPurgeBatch, tracer.Int(tracer.AttrRetention, retentionDays))
	defer func() { span.End(err) }()

	if retentionDays < m.policy.MinRetentionDays {
		return models.PurgeResult{}, dErrors.New(dErrors.CodeValidation,
			"retention_days must be at least "+strconv.Itoa(m.policy.MinRetentionDays))
	}

	started := time.Now()
	now := requestcontext.Now(ctx)
	result = models.PurgeResult{
		RetentionDays: retentionDays,
		Cutoff:        now.Add(-time.Duration(retentionDays) * 24 * time.Hour),
		StartedAt:     now,
	}

	// failed and skipped users still list as candidates; exclude them so the
	// loop terminates.
	exclude := make(map[domain.ReferenceID]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return result, dErrors.Wrap(err, dErrors.CodeTimeout, "purge interrupted")
		}
		refs, err := m.users.ListPurgeCandidates(ctx, result.Cutoff, m.policy.BatchSize+len(exclude))
		if err != nil {
			return result, m.translate(ctx, "", err, "failed to list purge candidates")
		}
		batch := refs[:0:0]
		for _, ref := range refs {
			if _, seen := exclude[ref]; !seen {
				batch = append(batch, ref)
			}
		}
		if len(batch) == 0 {
			break
		}
		result.Candidates += len(batch)
		m.purgeBatch(ctx, batch, &result, exclude)
	}

	// Purged users drop out of the candidate list, so their events retained
	// past the purge are swept here once they age out.
	if m.policy.AuditRetention > 0 {
		auditCutoff := now.Add(-m.policy.AuditRetention)
		result.ResidueEventsDeleted, err = m.trail.PurgeResidueBefore(ctx, auditCutoff)
		if err != nil {
			return result, m.translate(ctx, "", err, "failed to purge audit residue")
		}
	}

	result.Duration = time.Since(started)
	m.metrics.AddPurged(result.Purged)
	m.metrics.AddPurgeFailures(len(result.Failed))
	m.metrics.ObservePurgeDuration(result.Duration.Seconds())
	span.SetAttributes(
		tracer.Int(tracer.AttrCandidates, result.Candidates),
		tracer.Int(tracer.AttrPurged, result.Purged),
		tracer.Int(tracer.AttrFailed, len(result.Failed)),
	)
	m.logger.InfoContext(ctx, "retention purge completed",
		"retention_days", retentionDays,
		"cutoff", result.Cutoff,
		"candidates", result.Candidates,
		"purged", result.Purged,
		"skipped", result.Skipped,
		"failed", len(result.Failed),
		"residue_events_deleted", result.ResidueEventsDeleted,
		"duration", result.Duration,
	)
	return result, nil
}

// PurgeExpiredUsersAsync starts a purge in the background. Concurrent calls
// for the same retention window share one run. The purge outlives the
// caller's context.
func (m *Manager) PurgeExpiredUsersAsync(ctx context.Context, retentionDays int) (<-chan singleflight.Result, error) {
	if retentionDays < m.policy.MinRetentionDays {
		return nil, dErrors.New(dErrors.CodeValidation,
			"retention_days must be at least "+strconv.Itoa(m.policy.MinRetentionDays))
	}
	ctx = context.WithoutCancel(ctx)
	key := "purge:" + strconv.Itoa(retentionDays)
	return m.purges.DoChan(key, func() (any, error) {
		return m.PurgeExpiredUsers(ctx, retentionDays)
	}), nil
}

func (m *Manager) purgeBatch(ctx context.Context, batch []domain.ReferenceID, result *models.PurgeResult, exclude map[domain.ReferenceID]struct{}) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.policy.Concurrency)
	for _, ref := range batch {
		g.Go(func() error {
			outcome, deleted := m.purgeUser(gctx, ref, result.Cutoff)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomePurged:
				result.Purged++
				result.AuditEventsDeleted += deleted
			case outcomeSkipped:
				result.Skipped++
				exclude[ref] = struct{}{}
			case outcomeFailed:
				result.Failed = append(result.Failed, ref)
				exclude[ref] = struct{}{}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// purgeUser is one unit of the purge: it re-checks eligibility under lock,
// erases a soft-deleted record first, drops consents and expired audit
// events, and marks the record purged.
func (m *Manager) purgeUser(ctx context.Context, ref domain.ReferenceID, cutoff time.Time) (outcome purgeOutcome, auditDeleted int64) {
	ctx, span := m.tracer.Start(ctx, tracer.SpanPurgeUser, tracer.String(tracer.AttrReferenceID, ref.String()))
	var err error
	defer func() { span.End(err) }()

	outcome = outcomePurged
	err = m.tx.RunInTx(ctx, ref.String(), func(ctx context.Context) error {
		rec, err := m.users.FindForUpdate(ctx, ref)
		if err != nil {
			return err
		}
		if !rec.PurgeEligible(cutoff) {
			outcome = outcomeSkipped
			return nil
		}
		if rec.State == usermodels.StateSoftDeleted {
			if _, err := m.users.HardErase(ctx, ref, rec.DeletionReason); err != nil {
				return err
			}
		}
		consents, err := m.consents.DeleteByUser(ctx, ref)
		if err != nil {
			return err
		}
		if m.policy.AuditRetention > 0 {
			auditCutoff := requestcontext.Now(ctx).Add(-m.policy.AuditRetention)
			auditDeleted, err = m.trail.PurgeUserEventsBefore(ctx, ref, auditCutoff)
			if err != nil {
				return err
			}
		}
		if _, err := m.users.MarkPurged(ctx, ref); err != nil {
			return err
		}
		return m.trail.Record(ctx, audit.Event{
			UserReferenceID: ref,
			Type:            audit.EventUserPurged,
			Detail: map[string]string{
				"consents_deleted":     strconv.FormatInt(consents, 10),
				"audit_events_deleted": strconv.FormatInt(auditDeleted, 10),
			},
		})
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to purge user",
			"reference_id", ref.String(),
			"error", err,
		)
		return outcomeFailed, 0
	}
	return outcome, auditDeleted
}

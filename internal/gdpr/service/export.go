package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"piivault/internal/audit"
	"piivault/internal/gdpr/models"
	"piivault/internal/pii"
	"piivault/internal/platform/tracer"
	"piivault/pkg/domain"
	dErrors "piivault/pkg/domain-errors"
	"piivault/pkg/platform/sentinel"
	"piivault/pkg/requestcontext"
)

// GenerateDataExport assembles everything held about a user. It takes no
// locks and changes nothing except appending the data_exported audit event.
// When an export cache is configured the bundle is sealed and kept for
// download under its export ID.
func (m *Manager) GenerateDataExport(ctx context.Context, ref domain.ReferenceID) (bundle *models.ExportBundle, err error) {
	ctx, span := m.tracer.Start(ctx, tracer.SpanExport, tracer.String(tracer.AttrReferenceID, ref.String()))
	defer func() { span.End(err) }()

	rec, err := m.users.FindByReferenceID(ctx, ref)
	if err != nil {
		return nil, m.translate(ctx, ref, err, "failed to load user")
	}
	consents, err := m.consents.AllConsents(ctx, ref)
	if err != nil {
		return nil, m.translate(ctx, ref, err, "failed to load consents")
	}
	events, err := m.trail.ListByUser(ctx, ref)
	if err != nil {
		return nil, m.translate(ctx, ref, err, "failed to load audit history")
	}

	bundle = &models.ExportBundle{
		ExportID:    domain.NewExportID(),
		ReferenceID: ref,
		GeneratedAt: requestcontext.Now(ctx),
		Account:     models.AccountFrom(rec),
		Profile:     m.decoder.FromStorage(ctx, ref, rec.EncryptedFields, pii.PermissionOwner),
		Consents:    consents,
		AuditEvents: events,
	}
	span.SetAttributes(tracer.String(tracer.AttrExportID, bundle.ExportID.String()))

	if m.cache != nil && m.sealer != nil {
		expires := bundle.GeneratedAt.Add(m.policy.ExportTTL)
		bundle.ExpiresAt = &expires
		if err := m.storeExport(ctx, bundle); err != nil {
			// the caller still receives the bundle inline
			bundle.ExpiresAt = nil
			m.logger.WarnContext(ctx, "failed to cache export",
				"reference_id", ref.String(),
				"export_id", bundle.ExportID.String(),
				"error", err,
			)
		} else {
			span.AddEvent(tracer.EventExportCached)
		}
	}

	err = m.trail.Record(ctx, audit.Event{
		UserReferenceID: ref,
		Type:            audit.EventDataExported,
		Detail: map[string]string{
			"export_id":   bundle.ExportID.String(),
			"consents":    strconv.Itoa(len(consents)),
			"audit_items": strconv.Itoa(len(events)),
		},
	})
	if err != nil {
		return nil, m.translate(ctx, ref, err, "failed to record export")
	}

	m.metrics.IncExports()
	m.logger.InfoContext(ctx, "data export generated",
		"reference_id", ref.String(),
		"export_id", bundle.ExportID.String(),
	)
	return bundle, nil
}

// FetchExport returns a cached bundle. Unknown and expired exports are not
// found.
func (m *Manager) FetchExport(ctx context.Context, id domain.ExportID) (bundle *models.ExportBundle, err error) {
	ctx, span := m.tracer.Start(ctx, tracer.SpanExportFetch, tracer.String(tracer.AttrExportID, id.String()))
	defer func() { span.End(err) }()

	if m.cache == nil || m.sealer == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "export downloads are not enabled")
	}
	sealed, err := m.cache.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "export not found or expired")
		}
		return nil, m.translate(ctx, "", err, "failed to load export")
	}
	raw, err := m.sealer.Open(sealed, exportAssociatedData(id))
	if err != nil {
		m.metrics.IncCryptoFailure("decrypt")
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "failed to open export")
	}
	bundle = &models.ExportBundle{}
	if err := json.Unmarshal(raw, bundle); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode export")
	}
	return bundle, nil
}

func (m *Manager) storeExport(ctx context.Context, bundle *models.ExportBundle) error {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	sealed, err := m.sealer.Seal(raw, exportAssociatedData(bundle.ExportID))
	if err != nil {
		m.metrics.IncCryptoFailure("encrypt")
		return err
	}
	return m.cache.Put(ctx, bundle.ExportID, sealed, m.policy.ExportTTL)
}

// exportAssociatedData binds a sealed bundle to its export ID.
func exportAssociatedData(id domain.ExportID) []byte {
	return []byte("export|" + id.String())
}

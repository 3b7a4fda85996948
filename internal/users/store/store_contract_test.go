package store_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"piivault/internal/pii"
	"piivault/internal/users/models"
	"piivault/pkg/domain"
	"piivault/pkg/platform/sentinel"
	"piivault/pkg/platform/tx"
	"piivault/pkg/requestcontext"
)

type userStore interface {
	Insert(ctx context.Context, rec *models.UserRecord) error
	FindByReferenceID(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error)
	FindForUpdate(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error)
	FindByHMAC(ctx context.Context, field pii.Field, token string) (*models.UserRecord, error)
	Update(ctx context.Context, rec *models.UserRecord) error
	SoftDelete(ctx context.Context, ref domain.ReferenceID, reason string) (*models.UserRecord, error)
	Reactivate(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error)
	HardErase(ctx context.Context, ref domain.ReferenceID, reason string) (*models.UserRecord, error)
	MarkDeletionRequested(ctx context.Context, ref domain.ReferenceID, staleBefore time.Time) (*models.UserRecord, error)
	RevertDeletionRequest(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error)
	MarkPurged(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error)
	ListActive(ctx context.Context, page models.Page) ([]*models.UserRecord, error)
	ListAll(ctx context.Context, page models.Page) ([]*models.UserRecord, error)
	ListPurgeCandidates(ctx context.Context, cutoff time.Time, limit int) ([]domain.ReferenceID, error)
}

// StoreContractSuite holds the behavior both backends must share. Backend
// suites embed it and set store, txm, and reset.
type StoreContractSuite struct {
	suite.Suite
	store userStore
	txm   tx.Manager
	reset func()
	base  time.Time
}

func (s *StoreContractSuite) SetupTest() {
	s.base = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	if s.reset != nil {
		s.reset()
	}
}

func (s *StoreContractSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithNow(context.Background(), s.base.Add(offset))
}

func sealedRecord(ref domain.ReferenceID, email, phone string) *models.UserRecord {
	sealed := pii.Sealed{
		EncryptedFields: map[pii.Field]string{
			pii.FieldFirstName: "v1:first-" + string(ref),
			pii.FieldEmail:     "v1:email-" + string(ref),
		},
		HMACIndex: map[pii.Field]string{},
	}
	if email != "" {
		sealed.HMACIndex[pii.FieldEmail] = email
	}
	if phone != "" {
		sealed.EncryptedFields[pii.FieldPhone] = "v1:phone-" + string(ref)
		sealed.HMACIndex[pii.FieldPhone] = phone
	}
	return models.NewUserRecord(ref, sealed)
}

func (s *StoreContractSuite) insert(ref domain.ReferenceID, email, phone string) *models.UserRecord {
	rec := sealedRecord(ref, email, phone)
	s.Require().NoError(s.store.Insert(s.at(0), rec))
	return rec
}

func (s *StoreContractSuite) TestInsertAndFind() {
	rec := s.insert("u1", "tok-email-1", "tok-phone-1")
	s.EqualValues(1, rec.Version)
	s.Equal(s.base, rec.CreatedAt)

	got, err := s.store.FindByReferenceID(s.at(0), "u1")
	s.Require().NoError(err)
	s.Equal(models.StateActive, got.State)
	s.True(got.Active)
	s.Equal("v1:email-u1", got.EncryptedFields[pii.FieldEmail])
	s.Equal("tok-phone-1", got.HMACIndex[pii.FieldPhone])

	byEmail, err := s.store.FindByHMAC(s.at(0), pii.FieldEmail, "tok-email-1")
	s.Require().NoError(err)
	s.Equal(domain.ReferenceID("u1"), byEmail.ReferenceID)
}

func (s *StoreContractSuite) TestInsertDuplicateHMAC() {
	s.insert("u1", "tok-email-1", "tok-phone-1")

	err := s.store.Insert(s.at(0), sealedRecord("u2", "tok-email-1", ""))
	s.ErrorIs(err, sentinel.ErrDuplicate)

	err = s.store.Insert(s.at(0), sealedRecord("u3", "tok-email-3", "tok-phone-1"))
	s.ErrorIs(err, sentinel.ErrDuplicate)

	err = s.store.Insert(s.at(0), sealedRecord("u1", "tok-email-9", ""))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *StoreContractSuite) TestFindMissing() {
	_, err := s.store.FindByReferenceID(s.at(0), "nobody")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByHMAC(s.at(0), pii.FieldEmail, "no-token")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreContractSuite) TestUpdateChecksVersion() {
	rec := s.insert("u1", "tok-email-1", "")

	rec.EncryptedFields[pii.FieldEmail] = "v1:email-new"
	rec.HMACIndex[pii.FieldEmail] = "tok-email-new"
	s.Require().NoError(s.store.Update(s.at(time.Minute), rec))
	s.EqualValues(2, rec.Version)

	stale := sealedRecord("u1", "tok-email-x", "")
	stale.Version = 1
	s.ErrorIs(s.store.Update(s.at(time.Minute), stale), sentinel.ErrStaleVersion)

	got, err := s.store.FindByHMAC(s.at(0), pii.FieldEmail, "tok-email-new")
	s.Require().NoError(err)
	s.Equal(s.base.Add(time.Minute), got.UpdatedAt)
}

func (s *StoreContractSuite) TestUpdateRejectsDuplicate() {
	s.insert("u1", "tok-email-1", "")
	rec := s.insert("u2", "tok-email-2", "")

	rec.HMACIndex[pii.FieldEmail] = "tok-email-1"
	s.ErrorIs(s.store.Update(s.at(0), rec), sentinel.ErrDuplicate)
}

func (s *StoreContractSuite) TestSoftDeleteAndReactivate() {
	s.insert("u1", "tok-email-1", "")

	deleted, err := s.store.SoftDelete(s.at(time.Hour), "u1", "closed")
	s.Require().NoError(err)
	s.False(deleted.Active)
	s.Equal(models.StateSoftDeleted, deleted.State)
	s.Equal(s.base.Add(time.Hour), *deleted.DeletedAt)
	s.Equal("closed", deleted.DeletionReason)

	_, err = s.store.FindByHMAC(s.at(0), pii.FieldEmail, "tok-email-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	active, err := s.store.ListActive(s.at(0), models.Page{})
	s.Require().NoError(err)
	s.Empty(active)

	_, err = s.store.SoftDelete(s.at(0), "u1", "again")
	s.ErrorIs(err, sentinel.ErrInvalidState)

	// the token is free while u1 is inactive
	s.insert("u2", "tok-email-1", "")
	_, err = s.store.Reactivate(s.at(0), "u1")
	s.ErrorIs(err, sentinel.ErrDuplicate)

	_, err = s.store.SoftDelete(s.at(0), "u2", "")
	s.Require().NoError(err)
	back, err := s.store.Reactivate(s.at(0), "u1")
	s.Require().NoError(err)
	s.True(back.Active)
	s.Nil(back.DeletedAt)
}

func (s *StoreContractSuite) TestHardErase() {
	s.insert("u1", "tok-email-1", "tok-phone-1")

	erased, err := s.store.HardErase(s.at(time.Hour), "u1", "user requested")
	s.Require().NoError(err)
	s.Equal(models.StateErased, erased.State)
	s.False(erased.Active)
	s.Empty(erased.HMACIndex)
	for _, f := range pii.AllFields {
		s.Equal(pii.Tombstone, erased.EncryptedFields[f], f)
	}
	s.Equal(s.base.Add(time.Hour), *erased.ErasedAt)
	s.NotNil(erased.DeletedAt)

	tomb, err := s.store.FindByReferenceID(s.at(0), "u1")
	s.Require().NoError(err)
	s.True(tomb.IsErased())

	_, err = s.store.FindByHMAC(s.at(0), pii.FieldEmail, "tok-email-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByHMAC(s.at(0), pii.FieldPhone, "tok-phone-1")
	s.ErrorIs(err, sentinel.ErrNotFound)

	again, err := s.store.HardErase(s.at(2*time.Hour), "u1", "")
	s.Require().NoError(err)
	s.Equal(s.base.Add(time.Hour), *again.ErasedAt)

	_, err = s.store.Reactivate(s.at(0), "u1")
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *StoreContractSuite) TestDeletionClaim() {
	s.insert("u1", "tok-email-1", "")

	claimed, err := s.store.MarkDeletionRequested(s.at(0), "u1", s.base.Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(models.StateDeletionRequested, claimed.State)

	_, err = s.store.MarkDeletionRequested(s.at(time.Minute), "u1", s.base.Add(-time.Hour))
	s.ErrorIs(err, sentinel.ErrConflict)

	// an abandoned claim can be taken over
	taken, err := s.store.MarkDeletionRequested(s.at(2*time.Hour), "u1", s.base.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(s.base.Add(2*time.Hour), *taken.DeletionRequestedAt)

	reverted, err := s.store.RevertDeletionRequest(s.at(0), "u1")
	s.Require().NoError(err)
	s.Equal(models.StateActive, reverted.State)
	s.Nil(reverted.DeletionRequestedAt)

	_, err = s.store.HardErase(s.at(0), "u1", "")
	s.Require().NoError(err)
	_, err = s.store.MarkDeletionRequested(s.at(0), "u1", s.base)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *StoreContractSuite) TestRevertRestoresSoftDeleted() {
	s.insert("u1", "tok-email-1", "")
	_, err := s.store.SoftDelete(s.at(0), "u1", "")
	s.Require().NoError(err)
	_, err = s.store.MarkDeletionRequested(s.at(0), "u1", s.base)
	s.Require().NoError(err)

	reverted, err := s.store.RevertDeletionRequest(s.at(0), "u1")
	s.Require().NoError(err)
	s.Equal(models.StateSoftDeleted, reverted.State)
}

func (s *StoreContractSuite) TestPurgeCandidatesAndMarkPurged() {
	s.insert("erased-old", "t1", "")
	s.insert("deleted-old", "t2", "")
	s.insert("erased-new", "t3", "")
	s.insert("active", "t4", "")

	_, err := s.store.HardErase(s.at(-100*24*time.Hour), "erased-old", "")
	s.Require().NoError(err)
	_, err = s.store.SoftDelete(s.at(-95*24*time.Hour), "deleted-old", "")
	s.Require().NoError(err)
	_, err = s.store.HardErase(s.at(-time.Hour), "erased-new", "")
	s.Require().NoError(err)

	cutoff := s.base.Add(-90 * 24 * time.Hour)
	refs, err := s.store.ListPurgeCandidates(s.at(0), cutoff, 10)
	s.Require().NoError(err)
	s.Equal([]domain.ReferenceID{"erased-old", "deleted-old"}, refs)

	_, err = s.store.MarkPurged(s.at(0), "deleted-old")
	s.ErrorIs(err, sentinel.ErrInvalidState)

	purged, err := s.store.MarkPurged(s.at(0), "erased-old")
	s.Require().NoError(err)
	s.Equal(models.StatePurged, purged.State)
	s.Empty(purged.EncryptedFields)

	refs, err = s.store.ListPurgeCandidates(s.at(0), cutoff, 10)
	s.Require().NoError(err)
	s.Equal([]domain.ReferenceID{"deleted-old"}, refs)

	_, err = s.store.HardErase(s.at(0), "erased-old", "")
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *StoreContractSuite) TestListAllIncludesInactive() {
	s.insert("a", "t1", "")
	s.insert("b", "t2", "")
	_, err := s.store.SoftDelete(s.at(0), "b", "")
	s.Require().NoError(err)

	all, err := s.store.ListAll(s.at(0), models.Page{})
	s.Require().NoError(err)
	s.Len(all, 2)

	page, err := s.store.ListAll(s.at(0), models.Page{Limit: 1, Offset: 1})
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(domain.ReferenceID("b"), page[0].ReferenceID)
}

func (s *StoreContractSuite) TestRollbackUndoesWrites() {
	s.insert("u1", "tok-email-1", "")

	err := s.txm.RunInTx(s.at(0), "u1", func(ctx context.Context) error {
		if _, err := s.store.HardErase(ctx, "u1", ""); err != nil {
			return err
		}
		return s.store.Insert(ctx, sealedRecord("u2", "tok-email-2", ""))
	})
	s.Require().NoError(err)

	err = s.txm.RunInTx(s.at(0), "u2", func(ctx context.Context) error {
		if _, err := s.store.SoftDelete(ctx, "u2", ""); err != nil {
			return err
		}
		return sentinel.ErrUnavailable
	})
	s.ErrorIs(err, sentinel.ErrUnavailable)

	got, err := s.store.FindByReferenceID(s.at(0), "u2")
	s.Require().NoError(err)
	s.Equal(models.StateActive, got.State)
	s.True(got.Active)
}

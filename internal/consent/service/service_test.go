package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"piivault/internal/audit"
	auditstore "piivault/internal/audit/store"
	"piivault/internal/consent/models"
	"piivault/internal/consent/service"
	"piivault/internal/consent/service/mocks"
	"piivault/internal/consent/store"
	"piivault/internal/pii"
	"piivault/internal/platform/metrics"
	usermodels "piivault/internal/users/models"
	userstore "piivault/internal/users/store"
	"piivault/pkg/domain"
	dErrors "piivault/pkg/domain-errors"
	"piivault/pkg/platform/tx"
	"piivault/pkg/requestcontext"
	fixtures "piivault/pkg/testutil"
)

const (
	chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	aliceRef = domain.ReferenceID("user-alice")
)

type ConsentServiceSuite struct {
	suite.Suite
	ledger  *store.InMemoryStore
	users   *userstore.InMemoryStore
	events  *auditstore.InMemoryStore
	metrics *metrics.Metrics
	svc     *service.Service
	ctx     context.Context
	prov    models.Provenance
}

func TestConsentServiceSuite(t *testing.T) {
	suite.Run(t, new(ConsentServiceSuite))
}

func (s *ConsentServiceSuite) SetupTest() {
	s.ledger = store.NewInMemory()
	s.users = userstore.NewInMemory()
	s.events = auditstore.NewInMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	trail := audit.NewTrail(s.events, audit.WithRetry(1, 0))
	s.svc = service.New(s.ledger, trail, s.users, tx.NewInMemory(), service.WithMetrics(s.metrics))
	s.ctx = requestcontext.WithNow(context.Background(), time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	s.prov = models.Provenance{IPAddress: "203.0.113.42", UserAgent: chromeUA}

	s.Require().NoError(s.users.Insert(s.ctx, usermodels.NewUserRecord(aliceRef, pii.Sealed{})))
}

func (s *ConsentServiceSuite) TestConcurrentGrantsGetDistinctSequences() {
	const writers = 8
	successes, errs := fixtures.RunConcurrentCollect(writers, func(idx int) error {
		_, err := s.svc.Grant(s.ctx, aliceRef, "marketing_emails", fmt.Sprintf("v%d", idx+1), s.prov)
		return err
	})
	s.Empty(errs)
	s.EqualValues(writers, successes)

	history, err := s.svc.AllConsents(s.ctx, aliceRef)
	s.Require().NoError(err)
	s.Require().Len(history, writers)
	for i := 1; i < len(history); i++ {
		s.Greater(history[i].Sequence, history[i-1].Sequence, "ledger is listed in append order")
	}
}

func (s *ConsentServiceSuite) at(d time.Duration) context.Context {
	return requestcontext.WithNow(s.ctx, requestcontext.Now(s.ctx).Add(d))
}

func (s *ConsentServiceSuite) TestGrantThenWithdraw() {
	rec, err := s.svc.Grant(s.ctx, aliceRef, "marketing_emails", "v1", s.prov)
	s.Require().NoError(err)
	s.True(rec.Granted)
	s.Equal("v1", rec.Version)
	s.Equal("203.0.113.42", rec.IPAddress)

	active, err := s.svc.ActiveConsents(s.ctx, aliceRef)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(models.Key("marketing_emails"), active[0].Key)

	withdrawal, err := s.svc.Withdraw(s.at(time.Minute), aliceRef, "marketing_emails", s.prov)
	s.Require().NoError(err)
	s.False(withdrawal.Granted)
	s.Equal("v1", withdrawal.Version, "withdrawal carries the version it revokes")

	active, err = s.svc.ActiveConsents(s.ctx, aliceRef)
	s.Require().NoError(err)
	s.Empty(active)

	history, err := s.svc.AllConsents(s.ctx, aliceRef)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.True(history[0].Granted)
	s.False(history[1].Granted)

	state, err := s.svc.CurrentState(s.ctx, aliceRef, "marketing_emails")
	s.Require().NoError(err)
	s.Equal(models.StateWithdrawn, state)

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.ConsentEvents.WithLabelValues("grant")))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.ConsentEvents.WithLabelValues("withdraw")))
}

func (s *ConsentServiceSuite) TestRegrantAfterWithdrawal() {
	_, err := s.svc.Grant(s.ctx, aliceRef, "analytics", "v1", s.prov)
	s.Require().NoError(err)
	_, err = s.svc.Withdraw(s.at(time.Minute), aliceRef, "analytics", s.prov)
	s.Require().NoError(err)
	_, err = s.svc.Grant(s.at(2*time.Minute), aliceRef, "analytics", "v2", s.prov)
	s.Require().NoError(err)

	active, err := s.svc.ActiveConsents(s.ctx, aliceRef)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal("v2", active[0].Version)

	history, err := s.svc.AllConsents(s.ctx, aliceRef)
	s.Require().NoError(err)
	s.Len(history, 3)
}

func (s *ConsentServiceSuite) TestWithdrawWithoutGrant() {
	rec, err := s.svc.Withdraw(s.ctx, aliceRef, "newsletter", s.prov)
	s.Require().NoError(err)
	s.False(rec.Granted)
	s.Empty(rec.Version)

	state, err := s.svc.CurrentState(s.ctx, aliceRef, "newsletter")
	s.Require().NoError(err)
	s.Equal(models.StateWithdrawn, state)

	history, err := s.svc.AllConsents(s.ctx, aliceRef)
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *ConsentServiceSuite) TestCurrentStateUnknown() {
	state, err := s.svc.CurrentState(s.ctx, aliceRef, "never_asked")
	s.Require().NoError(err)
	s.Equal(models.StateUnknown, state)
}

func (s *ConsentServiceSuite) TestStatuses() {
	_, err := s.svc.Grant(s.ctx, aliceRef, "marketing_emails", "v1", s.prov)
	s.Require().NoError(err)
	_, err = s.svc.Withdraw(s.at(time.Minute), aliceRef, "analytics", s.prov)
	s.Require().NoError(err)

	statuses, err := s.svc.Statuses(s.ctx, aliceRef)
	s.Require().NoError(err)
	s.Require().Len(statuses, 2)
	s.Equal(models.StateGranted, statuses[0].State)
	s.Equal(models.StateWithdrawn, statuses[1].State)
}

func (s *ConsentServiceSuite) TestValidation() {
	tests := []struct {
		name    string
		key     string
		version string
	}{
		{name: "empty key", key: "", version: "v1"},
		{name: "uppercase key", key: "Marketing", version: "v1"},
		{name: "key with spaces", key: "marketing emails", version: "v1"},
		{name: "empty version", key: "marketing_emails", version: ""},
		{name: "version with slash", key: "marketing_emails", version: "v1/2"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.svc.Grant(s.ctx, aliceRef, tt.key, tt.version, s.prov)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidConsent))
		})
	}

	_, err := s.svc.Withdraw(s.ctx, aliceRef, "BAD KEY", s.prov)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidConsent))

	history, err := s.svc.AllConsents(s.ctx, aliceRef)
	s.Require().NoError(err)
	s.Empty(history)
}

func (s *ConsentServiceSuite) TestAuditDetailIsAnonymized() {
	_, err := s.svc.Grant(s.ctx, aliceRef, "marketing_emails", "v1", s.prov)
	s.Require().NoError(err)

	events, err := s.events.ListByUser(s.ctx, aliceRef)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	ev := events[0]
	s.Equal(audit.EventConsentGranted, ev.Type)
	s.Equal("marketing_emails", ev.Detail["consent_key"])
	s.Equal("v1", ev.Detail["consent_version"])
	s.Equal("203.0.113.0", ev.Detail["ip_prefix"])
	s.Contains(ev.Detail["device"], "Chrome")
	for _, v := range ev.Detail {
		s.NotContains(v, "203.0.113.42")
		s.NotContains(v, "120.0.0.0")
	}
}

func (s *ConsentServiceSuite) TestProvenanceIsTruncated() {
	long := models.Provenance{IPAddress: "198.51.100.7", UserAgent: strings.Repeat(chromeUA, 5)}
	rec, err := s.svc.Grant(s.ctx, aliceRef, "marketing_emails", "v1", long)
	s.Require().NoError(err)
	s.LessOrEqual(len(rec.UserAgent), 512)
}

func (s *ConsentServiceSuite) TestUserStateRules() {
	s.Run("grant for unknown user", func() {
		_, err := s.svc.Grant(s.ctx, "user-ghost", "marketing_emails", "v1", s.prov)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("withdraw for unknown user is allowed", func() {
		_, err := s.svc.Withdraw(s.ctx, "user-ghost", "marketing_emails", s.prov)
		s.NoError(err)
	})

	s.Run("soft-deleted user may withdraw but not grant", func() {
		ref := domain.ReferenceID("user-bob")
		s.Require().NoError(s.users.Insert(s.ctx, usermodels.NewUserRecord(ref, pii.Sealed{})))
		_, err := s.users.SoftDelete(s.ctx, ref, "closed")
		s.Require().NoError(err)

		_, err = s.svc.Grant(s.ctx, ref, "marketing_emails", "v1", s.prov)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		_, err = s.svc.Withdraw(s.ctx, ref, "marketing_emails", s.prov)
		s.NoError(err)
	})

	s.Run("erased user accepts nothing", func() {
		ref := domain.ReferenceID("user-carol")
		s.Require().NoError(s.users.Insert(s.ctx, usermodels.NewUserRecord(ref, pii.Sealed{})))
		_, err := s.users.HardErase(s.ctx, ref, "rtbf")
		s.Require().NoError(err)

		_, err = s.svc.Grant(s.ctx, ref, "marketing_emails", "v1", s.prov)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		_, err = s.svc.Withdraw(s.ctx, ref, "marketing_emails", s.prov)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		history, err := s.svc.AllConsents(s.ctx, ref)
		s.Require().NoError(err)
		s.Empty(history)
	})
}

func (s *ConsentServiceSuite) TestDeleteByUser() {
	_, err := s.svc.Grant(s.ctx, aliceRef, "marketing_emails", "v1", s.prov)
	s.Require().NoError(err)
	_, err = s.svc.Grant(s.ctx, aliceRef, "analytics", "v1", s.prov)
	s.Require().NoError(err)

	n, err := s.svc.DeleteByUser(s.ctx, aliceRef)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	history, err := s.svc.AllConsents(s.ctx, aliceRef)
	s.Require().NoError(err)
	s.Empty(history)
}

func TestGrantRollsBackWhenAuditFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	auditor := mocks.NewMockAuditor(ctrl)
	users := mocks.NewMockUserLookup(ctrl)
	ledger := store.NewInMemory()
	ctx := context.Background()

	users.EXPECT().FindByReferenceID(gomock.Any(), aliceRef).
		Return(usermodels.NewUserRecord(aliceRef, pii.Sealed{}), nil)
	auditor.EXPECT().Record(gomock.Any(), gomock.Any()).Return(errors.New("audit store down"))

	svc := service.New(ledger, auditor, users, tx.NewInMemory())
	_, err := svc.Grant(ctx, aliceRef, "marketing_emails", "v1", models.Provenance{IPAddress: "192.0.2.1"})
	if !dErrors.HasCode(err, dErrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}

	history, err := ledger.ListByUser(ctx, aliceRef)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Fatalf("expected ledger rollback, found %d entries", len(history))
	}
}

func TestStoreFailureIsInternal(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	st.EXPECT().ListByUser(gomock.Any(), aliceRef).Return(nil, errors.New("connection reset"))

	svc := service.New(st, mocks.NewMockAuditor(ctrl), nil, tx.NewInMemory())
	_, err := svc.ActiveConsents(context.Background(), aliceRef)
	if !dErrors.HasCode(err, dErrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestLedgerLockPrecedesUserCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	users := mocks.NewMockUserLookup(ctrl)
	auditor := mocks.NewMockAuditor(ctrl)
	erased := usermodels.NewUserRecord(aliceRef, pii.Sealed{})
	erased.State = usermodels.StateErased

	gomock.InOrder(
		st.EXPECT().LockUser(gomock.Any(), aliceRef).Return(nil),
		users.EXPECT().FindByReferenceID(gomock.Any(), aliceRef).Return(erased, nil),
	)

	svc := service.New(st, auditor, users, tx.NewInMemory())
	_, err := svc.Grant(context.Background(), aliceRef, "marketing_emails", "v1", models.Provenance{})
	if !dErrors.HasCode(err, dErrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestDeleteByUserTakesLedgerLock(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)

	gomock.InOrder(
		st.EXPECT().LockUser(gomock.Any(), aliceRef).Return(nil),
		st.EXPECT().DeleteByUser(gomock.Any(), aliceRef).Return(int64(2), nil),
	)

	svc := service.New(st, mocks.NewMockAuditor(ctrl), nil, tx.NewInMemory())
	n, err := svc.DeleteByUser(context.Background(), aliceRef)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
}

package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdc/incentive-engine/claim"
	"github.com/rdc/incentive-engine/emr"
	"github.com/rdc/incentive-engine/incentive"
	"github.com/rdc/incentive-engine/notify"
	"github.com/rdc/incentive-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testNow = time.Date(2025, time.August, 14, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newClaim(claimID string, typ claim.ClaimType, uid string, created time.Time) *claim.Claim {
	return &claim.Claim{
		ClaimID:   claimID,
		Type:      typ,
		UID:       uid,
		Faculty:   "Engineering",
		Status:    claim.PendingStatus(0),
		Approvals: []*claim.ApprovalStage{},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// =============================================================================
// CLAIMS
// =============================================================================

func TestClaims_CreateGetRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	amount := decimal.RequireFromString("3750.50")
	c := newClaim("RDC/INC/CONF/00001", claim.TypeConference, "fac-1", testNow)
	c.CalculatedIncentive = &amount
	c.BankDetails = &claim.BankDetails{AccountNumber: "001122334455", IFSC: "SBIN0001234"}
	require.NoError(t, s.Create(ctx, c))

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, 1, c.Version)

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "RDC/INC/CONF/00001", got.ClaimID)
	assert.Equal(t, 1, got.Version)
	require.NotNil(t, got.CalculatedIncentive)
	assert.True(t, amount.Equal(*got.CalculatedIncentive))
	assert.Equal(t, "SBIN0001234", got.BankDetails.IFSC)
	assert.NotNil(t, got.Approvals)
	assert.True(t, testNow.Equal(got.CreatedAt))

	_, err = s.Get(ctx, "missing")
	assert.True(t, claim.IsNotFound(err))
}

func TestClaims_UpdateVersionCheck(t *testing.T) {
	// GIVEN: Two readers holding the same version of a claim
	// WHEN: Both write
	// THEN: The first wins, the second gets ErrConcurrentModification

	s := newStore(t)
	ctx := context.Background()
	c := newClaim("RDC/INC/PAPER/00001", claim.TypeResearchPaper, "fac-1", testNow)
	require.NoError(t, s.Create(ctx, c))

	first, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	second, err := s.Get(ctx, c.ID)
	require.NoError(t, err)

	first.Status = claim.PendingStatus(1)
	require.NoError(t, s.Update(ctx, first))
	assert.Equal(t, 2, first.Version)

	second.Status = claim.StatusRejected
	err = s.Update(ctx, second)
	assert.ErrorIs(t, err, claim.ErrConcurrentModification)
	assert.Equal(t, 1, second.Version)

	stored, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, claim.PendingStatus(1), stored.Status)
	assert.Equal(t, 2, stored.Version)

	ghost := newClaim("x", claim.TypeBook, "fac-1", testNow)
	ghost.ID = "ghost"
	ghost.Version = 1
	assert.True(t, claim.IsNotFound(s.Update(ctx, ghost)))
}

func TestClaims_QueryFilters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	a := newClaim("RDC/INC/CONF/00001", claim.TypeConference, "fac-1", testNow)
	b := newClaim("RDC/INC/PAPER/00001", claim.TypeResearchPaper, "fac-1", testNow.Add(time.Hour))
	c := newClaim("RDC/INC/CONF/00002", claim.TypeConference, "fac-2", testNow.Add(2*time.Hour))
	c.Status = claim.StatusAccepted
	c.PaymentSheetRef = "RDC/PAY/1"
	c.Faculty = "Pharmacy"
	for _, x := range []*claim.Claim{c, b, a} {
		require.NoError(t, s.Create(ctx, x))
	}

	all, err := s.Query(ctx, claim.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, a.ID, all[0].ID, "oldest first")
	assert.Equal(t, c.ID, all[2].ID)

	tests := []struct {
		name   string
		filter claim.Filter
		want   int
	}{
		{"by user", claim.Filter{UID: "fac-1"}, 2},
		{"by type", claim.Filter{Types: []claim.ClaimType{claim.TypeConference}}, 2},
		{"by user and type", claim.Filter{UID: "fac-1", Types: []claim.ClaimType{claim.TypeConference}}, 1},
		{"by status", claim.Filter{Statuses: []claim.Status{claim.StatusAccepted, claim.StatusRejected}}, 1},
		{"by faculty", claim.Filter{Faculty: "Pharmacy"}, 1},
		{"by reference", claim.Filter{PaymentSheetRef: "RDC/PAY/1"}, 1},
		{"created window", claim.Filter{CreatedFrom: ptr(testNow.Add(30 * time.Minute)), CreatedTo: ptr(testNow.Add(90 * time.Minute))}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
			for _, g := range got {
				assert.True(t, tt.filter.Matches(g))
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }

// =============================================================================
// COUNTER
// =============================================================================

func TestCounter_SequentialPerName(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.Next(ctx, "claims/Conference")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := s.Next(ctx, "claims/Patent")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestCounter_ConcurrentCallersNeverShareAValue(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	const workers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int64]bool{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Next(ctx, "emr/calls")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers)
}

// =============================================================================
// BATCHES, PROFILES, ACTIVITY, NOTICES
// =============================================================================

func TestBatches_Upsert(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	b := &claim.PaymentBatch{
		Reference: "RDC/PAY/2025-01",
		Remarks:   map[string]string{"c1": "RDC/INC/CONF/00001"},
		ClaimIDs:  []string{"c1"},
		Total:     decimal.RequireFromString("3750"),
		CreatedBy: "rev-1",
		CreatedAt: testNow,
	}
	require.NoError(t, s.SaveBatch(ctx, b))

	b.ClaimIDs = append(b.ClaimIDs, "c2")
	b.Total = decimal.RequireFromString("5000.25")
	require.NoError(t, s.SaveBatch(ctx, b))

	got, err := s.GetBatch(ctx, "RDC/PAY/2025-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, got.ClaimIDs)
	assert.Equal(t, "5000.25", got.Total.String())
	assert.Equal(t, "rev-1", got.CreatedBy)

	_, err = s.GetBatch(ctx, "nope")
	assert.True(t, claim.IsNotFound(err))
}

func TestProfiles(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.GetProfile(ctx, "fac-1")
	assert.True(t, claim.IsNotFound(err))

	require.NoError(t, s.PutProfile(ctx, &claim.UserProfile{UID: "fac-1", Name: "Dr. Mehta"}))
	require.NoError(t, s.PutProfile(ctx, &claim.UserProfile{
		UID: "fac-1", Name: "Dr. Mehta", Bank: &claim.BankDetails{IFSC: "SBIN0001234"},
	}))

	p, err := s.GetProfile(ctx, "fac-1")
	require.NoError(t, err)
	require.NotNil(t, p.Bank)
	assert.Equal(t, "SBIN0001234", p.Bank.IFSC)
}

func TestActivity_NewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, claim.ActivityEntry{Operation: "SubmitClaim", EntityIDs: []string{"a"}, Error: "boom", At: testNow}))
	require.NoError(t, s.Record(ctx, claim.ActivityEntry{
		Operation: "GeneratePaymentSheet", EntityIDs: []string{"b", "c"}, Error: "disk full",
		Context: map[string]string{"reference": "RDC/PAY/1"}, At: testNow.Add(time.Minute),
	}))

	entries, err := s.RecentActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "GeneratePaymentSheet", entries[0].Operation)
	assert.Equal(t, []string{"b", "c"}, entries[0].EntityIDs)
	assert.Equal(t, "RDC/PAY/1", entries[0].Context["reference"])
	assert.Nil(t, entries[1].Context)
}

func TestNotices(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	older := &notify.Notice{UID: "fac-1", Kind: "claim", Title: "Submitted", Body: "b", CreatedAt: testNow}
	newer := &notify.Notice{UID: "fac-1", Kind: "claim", Title: "Approved", Body: "b", Link: "https://rdc/x", CreatedAt: testNow.Add(time.Hour)}
	other := &notify.Notice{UID: "fac-2", Kind: "claim", Title: "Other", Body: "b", CreatedAt: testNow}
	for _, n := range []*notify.Notice{older, newer, other} {
		require.NoError(t, s.SaveNotice(ctx, n))
	}

	list, err := s.ListNotices(ctx, "fac-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Approved", list[0].Title)
	assert.Equal(t, "https://rdc/x", list[0].Link)
	assert.Empty(t, list[1].Link)

	require.NoError(t, s.MarkNoticeRead(ctx, "fac-1", older.ID))
	list, err = s.ListNotices(ctx, "fac-1")
	require.NoError(t, err)
	assert.True(t, list[1].Read)
	assert.False(t, list[0].Read)

	// Someone else's notice is not found for this user
	assert.True(t, claim.IsNotFound(s.MarkNoticeRead(ctx, "fac-1", other.ID)))
}

// =============================================================================
// EMR
// =============================================================================

func TestEMR_InterestUniquePerCallAndUser(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	call := &emr.Call{CallID: "RDC/EMR/CALL/00001", Title: "Core Research Grant", Deadline: testNow}
	require.NoError(t, s.CreateCall(ctx, call))

	got, err := s.GetCall(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, "Core Research Grant", got.Title)

	first := &emr.Interest{CallID: call.ID, UID: "fac-1", InterestID: "RDC/EMR/INT/00001", Status: emr.StatusRegistered, RegisteredAt: testNow}
	require.NoError(t, s.CreateInterest(ctx, first))

	err = s.CreateInterest(ctx, &emr.Interest{CallID: call.ID, UID: "fac-1", InterestID: "RDC/EMR/INT/00002", RegisteredAt: testNow})
	assert.ErrorIs(t, err, claim.ErrDuplicateRegistration)

	require.NoError(t, s.CreateInterest(ctx, &emr.Interest{CallID: call.ID, UID: "fac-2", InterestID: "RDC/EMR/INT/00003", RegisteredAt: testNow.Add(time.Minute)}))

	first.Status = emr.StatusMeetingScheduled
	first.Meeting = &emr.Meeting{Venue: "RDC Board Room", Date: testNow.AddDate(0, 0, 7)}
	require.NoError(t, s.UpdateInterest(ctx, first))

	list, err := s.ListInterests(ctx, call.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, emr.StatusMeetingScheduled, list[0].Status)
	assert.Equal(t, "RDC Board Room", list[0].Meeting.Venue)

	assert.True(t, claim.IsNotFound(s.UpdateInterest(ctx, &emr.Interest{ID: "nope"})))
}

// =============================================================================
// SERVICE OVER SQLITE
// =============================================================================

func TestService_SubmitOverSQLite(t *testing.T) {
	// GIVEN: The claim service wired to one SQLite store for every contract
	// WHEN: Two conference claims are submitted
	// THEN: Ids are sequential and the stored documents carry the calculation

	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutProfile(ctx, &claim.UserProfile{
		UID: "fac-1", Name: "Dr. Mehta", Faculty: "Engineering",
		Bank: &claim.BankDetails{AccountNumber: "001122334455", IFSC: "SBIN0001234"},
	}))

	svc := claim.NewService(claim.Deps{
		Store:      s,
		Counter:    s,
		Batches:    s,
		Profiles:   s,
		Activity:   s,
		Calculator: incentive.New(nil),
		Clock:      func() time.Time { return testNow },
	})

	fee := decimal.RequireFromString("5000")
	zero := decimal.Zero
	variant := claim.Variant{Conference: &claim.ConferenceDetails{
		PaperTitle:      "Edge Caching for Rural Networks",
		ConferenceName:  "ICCN 2025",
		Organizer:       "Parul University",
		Mode:            claim.ModeOffline,
		Venue:           "India",
		RegistrationFee: &fee,
		TravelFare:      &zero,
	}}

	a, err := svc.SubmitClaim(ctx, claim.SubmitInput{UID: "fac-1", Type: claim.TypeConference, Variant: variant})
	require.NoError(t, err)
	b, err := svc.SubmitClaim(ctx, claim.SubmitInput{UID: "fac-1", Type: claim.TypeConference, Variant: variant})
	require.NoError(t, err)

	assert.Equal(t, "RDC/INC/CONF/00001", a.ClaimID)
	assert.Equal(t, "RDC/INC/CONF/00002", b.ClaimID)

	stored, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CalculatedIncentive)
	assert.Equal(t, "3750", stored.CalculatedIncentive.String())
	assert.Equal(t, "SBIN0001234", stored.BankDetails.IFSC)
	assert.Equal(t, claim.PendingStatus(0), stored.Status)
}

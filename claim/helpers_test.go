package claim_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rdc/incentive-engine/claim"
	"github.com/rdc/incentive-engine/claim/store"
	"github.com/rdc/incentive-engine/incentive"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testNow = time.Date(2025, time.August, 14, 10, 0, 0, 0, time.UTC)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func reviewer(n int) claim.Approver {
	return claim.Approver{UID: "rev-" + string(rune('0'+n)), Name: "Reviewer " + string(rune('0'+n))}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []claim.Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n claim.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type fakeRenderer struct {
	reference string
	rows      []claim.SheetRow
	err       error
}

func (f *fakeRenderer) RenderPaymentSheet(reference string, rows []claim.SheetRow) ([]byte, error) {
	f.reference = reference
	f.rows = rows
	if f.err != nil {
		return nil, f.err
	}
	return []byte("xlsx:" + reference), nil
}

type fakeFiles struct {
	uploadErr error
	objects   map[string][]byte
	public    map[string]bool
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{objects: map[string][]byte{}, public: map[string]bool{}}
}

func (f *fakeFiles) Upload(_ context.Context, path string, data []byte, _ string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.objects[path] = data
	return "https://files.test/" + path, nil
}

func (f *fakeFiles) Delete(_ context.Context, path string) error {
	delete(f.objects, path)
	return nil
}

func (f *fakeFiles) MakePublic(_ context.Context, path string) error {
	f.public[path] = true
	return nil
}

type failingCounter struct{}

func (failingCounter) Next(context.Context, string) (int64, error) {
	return 0, errors.New("counter backend unavailable")
}

type fixture struct {
	svc      *claim.Service
	mem      *store.Memory
	notifier *recordingNotifier
	renderer *fakeRenderer
	files    *fakeFiles
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mem:      store.NewMemory(),
		notifier: &recordingNotifier{},
		renderer: &fakeRenderer{},
		files:    newFakeFiles(),
	}
	f.svc = claim.NewService(claim.Deps{
		Store:      f.mem,
		Counter:    f.mem,
		Batches:    f.mem,
		Profiles:   f.mem,
		Activity:   f.mem,
		Files:      f.files,
		Renderer:   f.renderer,
		Notifier:   f.notifier,
		Calculator: incentive.New(nil),
		Clock:      func() time.Time { return testNow },
	})
	require.NoError(t, f.mem.PutProfile(context.Background(), &claim.UserProfile{
		UID:     "fac-1",
		Name:    "Dr. Mehta",
		Email:   "mehta@paruluniversity.ac.in",
		Faculty: "Engineering",
		Bank: &claim.BankDetails{
			BeneficiaryName: "R Mehta",
			AccountNumber:   "001122334455",
			IFSC:            "SBIN0001234",
			BankName:        "State Bank of India",
		},
	}))
	return f
}

func conferenceVariant() claim.Variant {
	conf := time.Date(2025, time.July, 10, 0, 0, 0, 0, time.UTC)
	return claim.Variant{Conference: &claim.ConferenceDetails{
		PaperTitle:      "Edge Caching for Rural Networks",
		ConferenceName:  "ICCN 2025",
		Organizer:       "Parul University",
		Mode:            claim.ModeOffline,
		Venue:           "India",
		ConferenceDate:  &conf,
		RegistrationFee: dec("5000"),
		TravelFare:      dec("0"),
	}}
}

func paperVariant() claim.Variant {
	return claim.Variant{Paper: &claim.PaperDetails{
		Title:      "Graph Sparsification at Scale",
		Journal:    "Journal of Algorithms",
		DOI:        "10.1000/jalg.2025.1",
		Indexing:   claim.IndexScopus,
		Quartile:   claim.Q1,
		AuthorRole: claim.RoleFirstAuthor,
	}}
}

func patentVariant() claim.Variant {
	return claim.Variant{Patent: &claim.PatentDetails{
		Title:         "Solar Desalination Membrane",
		Status:        claim.PatentGranted,
		InventorCount: 2,
	}}
}

func (f *fixture) submit(t *testing.T, typ claim.ClaimType, v claim.Variant) *claim.Claim {
	t.Helper()
	c, err := f.svc.SubmitClaim(context.Background(), claim.SubmitInput{UID: "fac-1", Type: typ, Variant: v})
	require.NoError(t, err)
	return c
}

// accept drives a claim through every stage to Accepted.
func (f *fixture) accept(t *testing.T, c *claim.Claim, amount string) *claim.Claim {
	t.Helper()
	ctx := context.Background()
	stages := f.svc.Engine().Stages(c.Type)
	for i := 0; i < stages; i++ {
		kind := claim.KindFor(c.Type, i)
		p := claim.StagePayload{Amount: dec(amount)}
		action := claim.ActionApprove
		if kind != claim.KindApproveReject {
			action = claim.ActionVerify
			p.VerifiedFields = allVerified(c)
		}
		res, err := f.svc.SubmitStageAction(ctx, c.ID, i, reviewer(i+1), action, p)
		require.NoError(t, err)
		c = res.Claim
	}
	require.Equal(t, claim.StatusAccepted, c.Status)
	return c
}

func allVerified(c *claim.Claim) map[string]bool {
	out := map[string]bool{}
	for k := range c.Details().ChecklistFields() {
		out[k] = true
	}
	return out
}

// racingStore lets another writer slip in between Get and Update.
type racingStore struct {
	*store.Memory
	raced bool
}

func (r *racingStore) Get(ctx context.Context, id string) (*claim.Claim, error) {
	c, err := r.Memory.Get(ctx, id)
	if err != nil || r.raced {
		return c, err
	}
	r.raced = true
	other := c.Clone()
	other.UpdatedAt = other.UpdatedAt.Add(time.Second)
	if err := r.Memory.Update(ctx, other); err != nil {
		return nil, err
	}
	return c, nil
}

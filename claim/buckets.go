package claim

// =============================================================================
// BUCKETS - Admin workflow tabs, derived from stored state only
// =============================================================================

type Bucket string

const (
	BucketPending       Bucket = "pending"
	BucketApproved      Bucket = "approved"
	BucketPendingBank   Bucket = "pendingBank"
	BucketSubmittedBank Bucket = "submittedBank"
	BucketRejected      Bucket = "rejected"
)

// Buckets partitions claims into the five tabs. Drafts appear in none.
type Buckets struct {
	Pending       []*Claim `json:"pending"`
	Approved      []*Claim `json:"approved"`
	PendingBank   []*Claim `json:"pendingBank"`
	SubmittedBank []*Claim `json:"submittedBank"`
	Rejected      []*Claim `json:"rejected"`
}

// BucketOf returns the tab a claim belongs to.
//
//	Pending Stage N                  → pending
//	Accepted, no payment sheet       → approved
//	Accepted, on a payment sheet     → pendingBank
//	Submitted to Accounts / Paid     → submittedBank
//	Rejected                         → rejected
func BucketOf(c *Claim) (Bucket, bool) {
	switch {
	case c.Status.IsPending():
		return BucketPending, true
	case c.Status == StatusAccepted && c.PaymentSheetRef == "":
		return BucketApproved, true
	case c.Status == StatusAccepted:
		return BucketPendingBank, true
	case c.Status == StatusSubmittedToAccounts, c.Status == StatusPaymentCompleted:
		return BucketSubmittedBank, true
	case c.Status == StatusRejected:
		return BucketRejected, true
	}
	return "", false
}

// Bucketize is a pure projection: same input, same partition, input order kept.
func Bucketize(claims []*Claim) Buckets {
	b := Buckets{
		Pending:       []*Claim{},
		Approved:      []*Claim{},
		PendingBank:   []*Claim{},
		SubmittedBank: []*Claim{},
		Rejected:      []*Claim{},
	}
	for _, c := range claims {
		if c == nil {
			continue
		}
		bucket, ok := BucketOf(c)
		if !ok {
			continue
		}
		switch bucket {
		case BucketPending:
			b.Pending = append(b.Pending, c)
		case BucketApproved:
			b.Approved = append(b.Approved, c)
		case BucketPendingBank:
			b.PendingBank = append(b.PendingBank, c)
		case BucketSubmittedBank:
			b.SubmittedBank = append(b.SubmittedBank, c)
		case BucketRejected:
			b.Rejected = append(b.Rejected, c)
		}
	}
	return b
}

// Counts returns the number of claims per tab.
func (b Buckets) Counts() map[Bucket]int {
	return map[Bucket]int{
		BucketPending:       len(b.Pending),
		BucketApproved:      len(b.Approved),
		BucketPendingBank:   len(b.PendingBank),
		BucketSubmittedBank: len(b.SubmittedBank),
		BucketRejected:      len(b.Rejected),
	}
}

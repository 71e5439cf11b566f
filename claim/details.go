package claim

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Details is implemented by every type-specific claim variant.
type Details interface {
	DisplayTitle() string

	// ChecklistFields returns the applicable fields (present and non-empty)
	// keyed by field id. Checklist stages must verify each of them.
	ChecklistFields() map[string]string
}

// =============================================================================
// VARIANT - Exactly one detail struct per claim
// =============================================================================

// Variant holds the type-specific fields. Exactly one pointer is set on a
// stored claim, matching the claim's Type.
type Variant struct {
	Paper        *PaperDetails      `json:"paper,omitempty"`
	Patent       *PatentDetails     `json:"patent,omitempty"`
	Conference   *ConferenceDetails `json:"conference,omitempty"`
	Book         *BookDetails       `json:"book,omitempty"`
	Membership   *MembershipDetails `json:"membership,omitempty"`
	SeedMoneyAPC *APCDetails        `json:"seedMoneyApc,omitempty"`
}

// For returns the populated detail struct for t, or nil.
func (v Variant) For(t ClaimType) Details {
	switch t {
	case TypeResearchPaper:
		if v.Paper != nil {
			return v.Paper
		}
	case TypePatent:
		if v.Patent != nil {
			return v.Patent
		}
	case TypeConference:
		if v.Conference != nil {
			return v.Conference
		}
	case TypeBook:
		if v.Book != nil {
			return v.Book
		}
	case TypeMembership:
		if v.Membership != nil {
			return v.Membership
		}
	case TypeSeedMoneyAPC:
		if v.SeedMoneyAPC != nil {
			return v.SeedMoneyAPC
		}
	}
	return nil
}

// Only returns a copy holding just the detail struct for t.
func (v Variant) Only(t ClaimType) Variant {
	var out Variant
	switch t {
	case TypeResearchPaper:
		out.Paper = v.Paper
	case TypePatent:
		out.Patent = v.Patent
	case TypeConference:
		out.Conference = v.Conference
	case TypeBook:
		out.Book = v.Book
	case TypeMembership:
		out.Membership = v.Membership
	case TypeSeedMoneyAPC:
		out.SeedMoneyAPC = v.SeedMoneyAPC
	}
	return out
}

func (v Variant) Clone() Variant {
	out := Variant{
		Paper:        clonePtr(v.Paper),
		Patent:       clonePtr(v.Patent),
		Conference:   clonePtr(v.Conference),
		Book:         clonePtr(v.Book),
		Membership:   clonePtr(v.Membership),
		SeedMoneyAPC: clonePtr(v.SeedMoneyAPC),
	}
	if out.Paper != nil {
		out.Paper.Authors = append([]string(nil), v.Paper.Authors...)
	}
	return out
}

// =============================================================================
// RESEARCH PAPER
// =============================================================================

type Indexing string

const (
	IndexScopus Indexing = "Scopus"
	IndexWoS    Indexing = "WoS"
	IndexUGC    Indexing = "UGC-CARE"
	IndexNone   Indexing = "None"
)

type Quartile string

const (
	Q1 Quartile = "Q1"
	Q2 Quartile = "Q2"
	Q3 Quartile = "Q3"
	Q4 Quartile = "Q4"
)

type AuthorRole string

const (
	RoleFirstAuthor   AuthorRole = "FirstAuthor"
	RoleCorresponding AuthorRole = "Corresponding"
	RoleCoAuthor      AuthorRole = "CoAuthor"
)

type PaperDetails struct {
	Title           string     `json:"title"`
	Journal         string     `json:"journal"`
	ISSN            string     `json:"issn,omitempty"`
	DOI             string     `json:"doi,omitempty"`
	Indexing        Indexing   `json:"indexing,omitempty"`
	Quartile        Quartile   `json:"quartile,omitempty"`
	AuthorRole      AuthorRole `json:"authorRole,omitempty"`
	Authors         []string   `json:"authors,omitempty"`
	PublicationDate *time.Time `json:"publicationDate,omitempty"`
	ProofURL        string     `json:"proofUrl,omitempty"`
}

func (d *PaperDetails) DisplayTitle() string { return d.Title }

func (d *PaperDetails) ChecklistFields() map[string]string {
	f := fields{}
	f.str("title", d.Title)
	f.str("journal", d.Journal)
	f.str("issn", d.ISSN)
	f.str("doi", d.DOI)
	f.str("indexing", string(d.Indexing))
	f.str("quartile", string(d.Quartile))
	f.str("authorRole", string(d.AuthorRole))
	f.str("authors", strings.Join(d.Authors, ", "))
	f.date("publicationDate", d.PublicationDate)
	f.str("proofUrl", d.ProofURL)
	return f
}

// =============================================================================
// PATENT
// =============================================================================

type PatentStatus string

const (
	PatentFiled     PatentStatus = "Filed"
	PatentPublished PatentStatus = "Published"
	PatentGranted   PatentStatus = "Granted"
)

type PatentDetails struct {
	Title             string       `json:"title"`
	ApplicationNumber string       `json:"applicationNumber,omitempty"`
	Status            PatentStatus `json:"status,omitempty"`
	International     bool         `json:"international,omitempty"`
	InventorCount     int          `json:"inventorCount,omitempty"` // PU inventors sharing the award
	PUSoleApplicant   *bool        `json:"puSoleApplicant,omitempty"`
	FilingDate        *time.Time   `json:"filingDate,omitempty"`
	PublicationDate   *time.Time   `json:"publicationDate,omitempty"`
	GrantDate         *time.Time   `json:"grantDate,omitempty"`
	ProofURL          string       `json:"proofUrl,omitempty"`
}

func (d *PatentDetails) DisplayTitle() string { return d.Title }

func (d *PatentDetails) ChecklistFields() map[string]string {
	f := fields{}
	f.str("title", d.Title)
	f.str("applicationNumber", d.ApplicationNumber)
	f.str("status", string(d.Status))
	if d.InventorCount > 0 {
		f["inventorCount"] = strconv.Itoa(d.InventorCount)
	}
	if d.PUSoleApplicant != nil {
		f["puSoleApplicant"] = strconv.FormatBool(*d.PUSoleApplicant)
	}
	f.date("filingDate", d.FilingDate)
	f.date("publicationDate", d.PublicationDate)
	f.date("grantDate", d.GrantDate)
	f.str("proofUrl", d.ProofURL)
	return f
}

// =============================================================================
// CONFERENCE
// =============================================================================

type ConferenceMode string

const (
	ModeOnline  ConferenceMode = "Online"
	ModeOffline ConferenceMode = "Offline"
)

// VenueIndia marks a national conference; any other venue is international.
const VenueIndia = "India"

type ConferenceDetails struct {
	PaperTitle       string           `json:"paperTitle"`
	ConferenceName   string           `json:"conferenceName"`
	Organizer        string           `json:"organizer,omitempty"`
	Mode             ConferenceMode   `json:"mode,omitempty"`
	Venue            string           `json:"venue,omitempty"`  // "India" or country name
	Region           string           `json:"region,omitempty"` // for international venues
	PresentationType string           `json:"presentationType,omitempty"`
	ConferenceDate   *time.Time       `json:"conferenceDate,omitempty"`
	RegistrationFee  *decimal.Decimal `json:"registrationFee,omitempty"`
	TravelFare       *decimal.Decimal `json:"travelFare,omitempty"`
	ProofURL         string           `json:"proofUrl,omitempty"`
}

func (d *ConferenceDetails) DisplayTitle() string { return d.PaperTitle }

// PUOrganized reports whether Parul University organized the conference.
func (d *ConferenceDetails) PUOrganized() bool {
	return strings.Contains(strings.ToLower(d.Organizer), "parul university")
}

func (d *ConferenceDetails) ChecklistFields() map[string]string {
	f := fields{}
	f.str("paperTitle", d.PaperTitle)
	f.str("conferenceName", d.ConferenceName)
	f.str("organizer", d.Organizer)
	f.str("mode", string(d.Mode))
	f.str("venue", d.Venue)
	f.str("region", d.Region)
	f.str("presentationType", d.PresentationType)
	f.date("conferenceDate", d.ConferenceDate)
	f.money("registrationFee", d.RegistrationFee)
	f.money("travelFare", d.TravelFare)
	f.str("proofUrl", d.ProofURL)
	return f
}

// =============================================================================
// BOOK
// =============================================================================

type BookKind string

const (
	BookAuthored BookKind = "Book"
	BookChapter  BookKind = "Chapter"
	BookEdited   BookKind = "EditedBook"
)

type PublisherScope string

const (
	ScopeNational      PublisherScope = "National"
	ScopeInternational PublisherScope = "International"
)

type BookDetails struct {
	Title          string         `json:"title"`
	ChapterTitle   string         `json:"chapterTitle,omitempty"`
	Kind           BookKind       `json:"kind,omitempty"`
	Publisher      string         `json:"publisher,omitempty"`
	PublisherScope PublisherScope `json:"publisherScope,omitempty"`
	ISBN           string         `json:"isbn,omitempty"`
	ProofURL       string         `json:"proofUrl,omitempty"`
}

func (d *BookDetails) DisplayTitle() string {
	if d.ChapterTitle != "" {
		return d.ChapterTitle
	}
	return d.Title
}

func (d *BookDetails) ChecklistFields() map[string]string {
	f := fields{}
	f.str("title", d.Title)
	f.str("chapterTitle", d.ChapterTitle)
	f.str("kind", string(d.Kind))
	f.str("publisher", d.Publisher)
	f.str("publisherScope", string(d.PublisherScope))
	f.str("isbn", d.ISBN)
	f.str("proofUrl", d.ProofURL)
	return f
}

// =============================================================================
// MEMBERSHIP
// =============================================================================

type MembershipDetails struct {
	Society        string           `json:"society"`
	Category       PublisherScope   `json:"category,omitempty"` // National or International body
	MembershipType string           `json:"membershipType,omitempty"`
	MembershipID   string           `json:"membershipId,omitempty"`
	Fee            *decimal.Decimal `json:"fee,omitempty"`
	ProofURL       string           `json:"proofUrl,omitempty"`
}

func (d *MembershipDetails) DisplayTitle() string { return d.Society }

func (d *MembershipDetails) ChecklistFields() map[string]string {
	f := fields{}
	f.str("society", d.Society)
	f.str("category", string(d.Category))
	f.str("membershipType", d.MembershipType)
	f.str("membershipId", d.MembershipID)
	f.money("fee", d.Fee)
	f.str("proofUrl", d.ProofURL)
	return f
}

// =============================================================================
// SEED MONEY / APC
// =============================================================================

type APCDetails struct {
	Title     string           `json:"title"`
	Journal   string           `json:"journal"`
	Indexing  Indexing         `json:"indexing,omitempty"`
	Quartile  Quartile         `json:"quartile,omitempty"`
	APCAmount *decimal.Decimal `json:"apcAmount,omitempty"`
	InvoiceNo string           `json:"invoiceNo,omitempty"`
	ProofURL  string           `json:"proofUrl,omitempty"`
}

func (d *APCDetails) DisplayTitle() string { return d.Title }

func (d *APCDetails) ChecklistFields() map[string]string {
	f := fields{}
	f.str("title", d.Title)
	f.str("journal", d.Journal)
	f.str("indexing", string(d.Indexing))
	f.str("quartile", string(d.Quartile))
	f.money("apcAmount", d.APCAmount)
	f.str("invoiceNo", d.InvoiceNo)
	f.str("proofUrl", d.ProofURL)
	return f
}

// =============================================================================
// HELPERS
// =============================================================================

type fields map[string]string

func (f fields) str(id, v string) {
	if v = strings.TrimSpace(v); v != "" {
		f[id] = v
	}
}

func (f fields) date(id string, t *time.Time) {
	if t != nil && !t.IsZero() {
		f[id] = t.Format("2006-01-02")
	}
}

func (f fields) money(id string, d *decimal.Decimal) {
	if d != nil {
		f[id] = d.String()
	}
}

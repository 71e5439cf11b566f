/*
policy.go - JSON policy tables for incentive calculation

PURPOSE:
  The amounts, rates and caps change every academic year. They live in a
  JSON document that is parsed into decimal tables, so the research office
  can publish a new policy file without a code change.

JSON SCHEMA (abridged):
  {
    "conference": {"rules": [
      {"mode": "Offline", "scope": "National", "pu_organized": true,
       "rate": "0.75", "cap": "15000"}
    ]},
    "patent": {"base": {"Filed": "5000"}, "international_multiplier": "2",
               "non_sole_applicant_factor": "0.5"},
    "paper": {"awards": {"Scopus": {"Q1": "15000"}, "UGC-CARE": {"*": "2000"}},
              "role_factors": {"FirstAuthor": "1"}},
    "book": {"awards": {"Book": {"National": "10000"}}},
    "membership": {"rate": "0.5", "caps": {"National": "5000"}},
    "apc": {"indexings": ["Scopus"], "caps": {"Q1": "50000"}}
  }

  Amounts are decimal strings. A conference rule field left empty (or
  pu_organized left out) matches anything; the first matching rule wins.

SEE ALSO:
  - calculator.go: Consumer
*/
package incentive

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POLICY TYPES
// =============================================================================

type Policies struct {
	Conference ConferencePolicy `json:"conference"`
	Patent     PatentPolicy     `json:"patent"`
	Paper      PaperPolicy      `json:"paper"`
	Book       BookPolicy       `json:"book"`
	Membership MembershipPolicy `json:"membership"`
	APC        APCPolicy        `json:"apc"`
}

type ConferencePolicy struct {
	Rules []ConferenceRule `json:"rules"`
}

type ConferenceRule struct {
	Mode        string          `json:"mode,omitempty"`
	Scope       string          `json:"scope,omitempty"`  // National or International
	Region      string          `json:"region,omitempty"` // international venues only
	PUOrganized *bool           `json:"pu_organized,omitempty"`
	Rate        decimal.Decimal `json:"rate"`
	Cap         decimal.Decimal `json:"cap"`
}

type PatentPolicy struct {
	Base                    map[string]decimal.Decimal `json:"base"`
	InternationalMultiplier decimal.Decimal            `json:"international_multiplier"`
	NonSoleApplicantFactor  decimal.Decimal            `json:"non_sole_applicant_factor"`
}

// anyQuartile matches every quartile in a paper award table.
const anyQuartile = "*"

type PaperPolicy struct {
	Awards      map[string]map[string]decimal.Decimal `json:"awards"` // indexing → quartile → amount
	RoleFactors map[string]decimal.Decimal            `json:"role_factors"`
}

type BookPolicy struct {
	Awards map[string]map[string]decimal.Decimal `json:"awards"` // kind → scope → amount
}

type MembershipPolicy struct {
	Rate decimal.Decimal            `json:"rate"`
	Caps map[string]decimal.Decimal `json:"caps"` // scope → cap
}

type APCPolicy struct {
	Indexings []string                   `json:"indexings"`
	Caps      map[string]decimal.Decimal `json:"caps"` // quartile → cap
}

// =============================================================================
// DEFAULT POLICY
// =============================================================================

// DefaultPolicyJSON is the current university incentive policy.
const DefaultPolicyJSON = `{
  "conference": {
    "rules": [
      {"mode": "Offline", "scope": "National", "pu_organized": true,  "rate": "0.75", "cap": "15000"},
      {"mode": "Offline", "scope": "National",                        "rate": "0.60", "cap": "15000"},
      {"mode": "Offline", "scope": "International", "region": "Asia",         "rate": "0.60", "cap": "60000"},
      {"mode": "Offline", "scope": "International", "region": "Europe",       "rate": "0.60", "cap": "100000"},
      {"mode": "Offline", "scope": "International", "region": "NorthAmerica", "rate": "0.60", "cap": "100000"},
      {"mode": "Offline", "scope": "International",                           "rate": "0.60", "cap": "80000"},
      {"mode": "Online",  "pu_organized": true,       "rate": "0.75", "cap": "5000"},
      {"mode": "Online",  "scope": "National",        "rate": "0.60", "cap": "5000"},
      {"mode": "Online",  "scope": "International",   "rate": "0.60", "cap": "10000"}
    ]
  },
  "patent": {
    "base": {"Filed": "5000", "Published": "10000", "Granted": "25000"},
    "international_multiplier": "2",
    "non_sole_applicant_factor": "0.5"
  },
  "paper": {
    "awards": {
      "Scopus":   {"Q1": "15000", "Q2": "10000", "Q3": "6000", "Q4": "4000"},
      "WoS":      {"Q1": "15000", "Q2": "10000", "Q3": "6000", "Q4": "4000"},
      "UGC-CARE": {"*": "2000"}
    },
    "role_factors": {"FirstAuthor": "1", "Corresponding": "1", "CoAuthor": "0.5"}
  },
  "book": {
    "awards": {
      "Book":       {"National": "10000", "International": "20000"},
      "Chapter":    {"National": "3000",  "International": "5000"},
      "EditedBook": {"National": "5000",  "International": "10000"}
    }
  },
  "membership": {
    "rate": "0.5",
    "caps": {"National": "5000", "International": "10000"}
  },
  "apc": {
    "indexings": ["Scopus", "WoS"],
    "caps": {"Q1": "50000", "Q2": "30000", "Q3": "15000", "Q4": "15000"}
  }
}`

// =============================================================================
// PARSING
// =============================================================================

// ParsePolicies parses and validates a policy document.
func ParsePolicies(jsonStr string) (*Policies, error) {
	var p Policies
	if err := json.Unmarshal([]byte(jsonStr), &p); err != nil {
		return nil, fmt.Errorf("invalid policy JSON: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPolicyFile reads a policy document from disk.
func LoadPolicyFile(path string) (*Policies, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicies(string(data))
}

// DefaultPolicies parses DefaultPolicyJSON. It panics only if the
// compiled-in document is broken.
func DefaultPolicies() *Policies {
	p, err := ParsePolicies(DefaultPolicyJSON)
	if err != nil {
		panic(fmt.Sprintf("default incentive policy: %v", err))
	}
	return p
}

// Validate rejects negative amounts and rates.
func (p *Policies) Validate() error {
	for i, r := range p.Conference.Rules {
		if r.Rate.IsNegative() || r.Cap.IsNegative() {
			return fmt.Errorf("conference rule %d: rate and cap must not be negative", i)
		}
	}
	for status, amt := range p.Patent.Base {
		if amt.IsNegative() {
			return fmt.Errorf("patent base %s: must not be negative", status)
		}
	}
	if p.Patent.InternationalMultiplier.IsNegative() || p.Patent.NonSoleApplicantFactor.IsNegative() {
		return fmt.Errorf("patent factors must not be negative")
	}
	if err := checkTable("paper", p.Paper.Awards); err != nil {
		return err
	}
	for role, f := range p.Paper.RoleFactors {
		if f.IsNegative() {
			return fmt.Errorf("paper role factor %s: must not be negative", role)
		}
	}
	if err := checkTable("book", p.Book.Awards); err != nil {
		return err
	}
	if p.Membership.Rate.IsNegative() {
		return fmt.Errorf("membership rate must not be negative")
	}
	for scope, c := range p.Membership.Caps {
		if c.IsNegative() {
			return fmt.Errorf("membership cap %s: must not be negative", scope)
		}
	}
	for q, c := range p.APC.Caps {
		if c.IsNegative() {
			return fmt.Errorf("apc cap %s: must not be negative", q)
		}
	}
	return nil
}

func checkTable(name string, t map[string]map[string]decimal.Decimal) error {
	for outer, inner := range t {
		for key, amt := range inner {
			if amt.IsNegative() {
				return fmt.Errorf("%s award %s/%s: must not be negative", name, outer, key)
			}
		}
	}
	return nil
}

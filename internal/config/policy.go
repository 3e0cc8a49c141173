package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Weights are the per-category multipliers of the activity score.
type Weights struct {
	BooksCheckedOut   int `yaml:"books_checked_out"`
	BooksReturned     int `yaml:"books_returned"`
	ClassesAttended   int `yaml:"classes_attended"`
	SummariesApproved int `yaml:"summaries_approved"`
	TotalPoints       int `yaml:"total_points"`
}

// Range is an inclusive integer bound.
type Range struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// RankKey is one entry of the leaderboard ordering, e.g. "activity_score desc".
type RankKey struct {
	Field string
	Desc  bool
}

func (k RankKey) String() string {
	if k.Desc {
		return k.Field + " desc"
	}
	return k.Field + " asc"
}

// RankFields are the ledger columns a leaderboard can be ordered by.
var RankFields = []string{
	"activity_score",
	"total_points",
	"books_checked_out",
	"books_returned",
	"classes_attended",
	"summaries_submitted",
	"summaries_approved",
	"patron_barcode",
}

// Policy holds the business constants that staff can change without a redeploy.
type Policy struct {
	Weights             Weights  `yaml:"weights"`
	TieBreak            []string `yaml:"tie_break"`
	SubmissionCap       int      `yaml:"submission_cap"`
	SubmissionPoints    int      `yaml:"submission_points"`
	ApprovalBonus       Range    `yaml:"approval_bonus"`
	StaffBonus          Range    `yaml:"staff_bonus"`
	Rating              Range    `yaml:"rating"`
	MinSummaryLength    int      `yaml:"min_summary_length"`
	DefaultLoanDays     int      `yaml:"default_loan_days"`
	MaxLoanDays         int      `yaml:"max_loan_days"`
	CheckoutPoints      int      `yaml:"checkout_points"`
	MaxReturnBonus      int      `yaml:"max_return_bonus"`
	AttendancePoints    int      `yaml:"attendance_points"`
	MaxAttendancePoints int      `yaml:"max_attendance_points"`
	LeaderboardLimit    int      `yaml:"leaderboard_limit"`
	InactiveDisplayCap  int      `yaml:"inactive_display_cap"`
}

var defaultTieBreak = []string{"activity_score desc", "total_points desc"}

// DefaultPolicy returns the built-in constants.
func DefaultPolicy() Policy {
	p := Policy{
		Weights: Weights{
			BooksCheckedOut:   10,
			BooksReturned:     15,
			ClassesAttended:   20,
			SummariesApproved: 25,
			TotalPoints:       1,
		},
		TieBreak:            append([]string(nil), defaultTieBreak...),
		SubmissionCap:       4,
		SubmissionPoints:    25,
		ApprovalBonus:       Range{Min: 1, Max: 50},
		StaffBonus:          Range{Min: 1, Max: 20},
		Rating:              Range{Min: 1, Max: 5},
		MinSummaryLength:    50,
		DefaultLoanDays:     14,
		MaxLoanDays:         90,
		CheckoutPoints:      0,
		MaxReturnBonus:      100,
		AttendancePoints:    5,
		MaxAttendancePoints: 50,
		LeaderboardLimit:    100,
		InactiveDisplayCap:  20,
	}
	if err := p.Validate(); err != nil {
		panic(fmt.Sprintf("default policy is invalid: %v", err))
	}
	return p
}

// LoadPolicy reads a YAML policy file over the defaults. Keys missing from the file keep their defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(buf, &p); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid policy %s: %w", path, err)
	}
	return p, nil
}

// Validate checks the policy.
func (p *Policy) Validate() error {
	var errs []error

	w := p.Weights
	if w.BooksCheckedOut < 0 || w.BooksReturned < 0 || w.ClassesAttended < 0 || w.SummariesApproved < 0 || w.TotalPoints < 0 {
		errs = append(errs, errors.New("weights must not be negative"))
	}

	if _, err := ParseRankKeys(p.TieBreak); err != nil {
		errs = append(errs, err)
	}

	if p.SubmissionCap < 1 {
		errs = append(errs, errors.New("submission_cap must be at least 1"))
	}
	if p.SubmissionPoints < 0 {
		errs = append(errs, errors.New("submission_points must not be negative"))
	}
	for name, r := range map[string]Range{"approval_bonus": p.ApprovalBonus, "staff_bonus": p.StaffBonus, "rating": p.Rating} {
		if r.Min < 0 || r.Max < r.Min {
			errs = append(errs, fmt.Errorf("%s range [%d, %d] is invalid", name, r.Min, r.Max))
		}
	}
	if p.MinSummaryLength < 0 {
		errs = append(errs, errors.New("min_summary_length must not be negative"))
	}
	if p.DefaultLoanDays < 1 || p.MaxLoanDays < p.DefaultLoanDays {
		errs = append(errs, fmt.Errorf("loan days must satisfy 1 <= default (%d) <= max (%d)", p.DefaultLoanDays, p.MaxLoanDays))
	}
	if p.CheckoutPoints < 0 || p.MaxReturnBonus < 0 {
		errs = append(errs, errors.New("checkout_points and max_return_bonus must not be negative"))
	}
	if p.AttendancePoints < 0 || p.MaxAttendancePoints < p.AttendancePoints {
		errs = append(errs, fmt.Errorf("attendance points must satisfy 0 <= default (%d) <= max (%d)", p.AttendancePoints, p.MaxAttendancePoints))
	}
	if p.LeaderboardLimit < 1 {
		errs = append(errs, errors.New("leaderboard_limit must be at least 1"))
	}
	if p.InactiveDisplayCap < 0 {
		errs = append(errs, errors.New("inactive_display_cap must not be negative"))
	}

	return errors.Join(errs...)
}

// RankKeys parses TieBreak. A list Validate would reject ranks by the default keys.
func (p Policy) RankKeys() []RankKey {
	keys, err := ParseRankKeys(p.TieBreak)
	if err != nil {
		keys, _ = ParseRankKeys(defaultTieBreak)
	}
	return keys
}

// ParseRankKeys parses entries of the form "<field> [asc|desc]". The direction defaults to desc.
func ParseRankKeys(entries []string) ([]RankKey, error) {
	if len(entries) == 0 {
		return nil, errors.New("tie_break must name at least one key")
	}
	keys := make([]RankKey, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		parts := strings.Fields(strings.ToLower(entry))
		if len(parts) == 0 || len(parts) > 2 {
			return nil, fmt.Errorf("tie_break entry %q must be \"<field> [asc|desc]\"", entry)
		}
		key := RankKey{Field: parts[0], Desc: true}
		if !isRankField(key.Field) {
			return nil, fmt.Errorf("tie_break field %q is unknown", key.Field)
		}
		if len(parts) == 2 {
			switch parts[1] {
			case "desc":
			case "asc":
				key.Desc = false
			default:
				return nil, fmt.Errorf("tie_break direction %q must be asc or desc", parts[1])
			}
		}
		if seen[key.Field] {
			return nil, fmt.Errorf("tie_break field %q is listed twice", key.Field)
		}
		seen[key.Field] = true
		keys = append(keys, key)
	}
	return keys, nil
}

func isRankField(field string) bool {
	for _, f := range RankFields {
		if f == field {
			return true
		}
	}
	return false
}

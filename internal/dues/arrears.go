package dues

import (
	"sort"

	"github.com/google/uuid"

	"github.com/kaskita/kaskita/internal/ledger"
	"github.com/kaskita/kaskita/internal/shared"
)

// DefaultTrendMonths is the trailing window used when none is requested.
const DefaultTrendMonths = 12

// MaxTrendMonths caps the trailing window.
const MaxTrendMonths = 60

// Semantic selects how months without a dues row are counted in a trend.
type Semantic string

const (
	// SemanticIssued counts only dues rows that exist.
	SemanticIssued Semantic = "issued"
	// SemanticProjected charges every active member the default amount for a
	// month without a dues row.
	SemanticProjected Semantic = "projected"
)

// ParseSemantic maps a query value onto a Semantic, defaulting to projected.
func ParseSemantic(raw string) (Semantic, error) {
	switch Semantic(raw) {
	case "":
		return SemanticProjected, nil
	case SemanticIssued, SemanticProjected:
		return Semantic(raw), nil
	}
	return "", shared.NewValidationError("semantic", "must be one of issued projected")
}

// OrgUnpaid sums the remaining amount of every unpaid dues.
func OrgUnpaid(dues []ledger.DuesWithPayments) int64 {
	var total int64
	for _, d := range dues {
		c := ClassifyLoaded(d)
		if c.Status.Unpaid() {
			total += c.Remaining
		}
	}
	return total
}

// PersonalArrears is the unpaid position of one member.
type PersonalArrears struct {
	MemberID uuid.UUID       `json:"memberId"`
	Total    int64           `json:"total"`
	Months   int             `json:"months"`
	Periods  []shared.Period `json:"periods"`
}

// MemberUnpaid aggregates the unpaid dues of one member. Periods are distinct and
// ordered oldest first.
func MemberUnpaid(memberID uuid.UUID, dues []ledger.DuesWithPayments) PersonalArrears {
	out := PersonalArrears{MemberID: memberID, Periods: []shared.Period{}}
	seen := make(map[shared.Period]struct{})
	for _, d := range dues {
		if d.MemberID != memberID {
			continue
		}
		c := ClassifyLoaded(d)
		if !c.Status.Unpaid() {
			continue
		}
		out.Total += c.Remaining
		p := d.Period()
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out.Periods = append(out.Periods, p)
		}
	}
	sort.Slice(out.Periods, func(i, j int) bool { return out.Periods[i].Before(out.Periods[j]) })
	out.Months = len(out.Periods)
	return out
}

// TrendPoint is the arrears of one month under both semantics.
type TrendPoint struct {
	Period    string `json:"period"`
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Issued    int64  `json:"issued"`
	Projected int64  `json:"projected"`
	Value     int64  `json:"value"`
}

// Trend is a trailing arrears series, oldest first.
type Trend struct {
	Semantic Semantic     `json:"semantic"`
	Points   []TrendPoint `json:"points"`
}

// TrailingSeries computes n months of arrears ending with current. Value carries
// the figure of the selected semantic.
func TrailingSeries(current shared.Period, n int, semantic Semantic, members []ledger.Member, dues []ledger.DuesWithPayments, defaultAmount int64) Trend {
	if n <= 0 {
		n = DefaultTrendMonths
	}
	if semantic == "" {
		semantic = SemanticProjected
	}

	active := make(map[uuid.UUID]struct{}, len(members))
	for _, m := range members {
		if m.IsActive {
			active[m.ID] = struct{}{}
		}
	}

	type key struct {
		member uuid.UUID
		period shared.Period
	}
	remaining := make(map[key]int64, len(dues))
	issued := make(map[shared.Period]int64)
	for _, d := range dues {
		c := ClassifyLoaded(d)
		p := d.Period()
		remaining[key{d.MemberID, p}] += c.Remaining
		issued[p] += c.Remaining
	}

	points := make([]TrendPoint, 0, n)
	start := current.AddMonths(-(n - 1))
	for i := 0; i < n; i++ {
		p := start.AddMonths(i)
		var projected int64
		for id := range active {
			if r, ok := remaining[key{id, p}]; ok {
				projected += r
				continue
			}
			projected += defaultAmount
		}
		pt := TrendPoint{
			Period:    p.Key(),
			Year:      p.Year,
			Month:     p.Month,
			Issued:    issued[p],
			Projected: projected,
		}
		if semantic == SemanticIssued {
			pt.Value = pt.Issued
		} else {
			pt.Value = pt.Projected
		}
		points = append(points, pt)
	}
	return Trend{Semantic: semantic, Points: points}
}

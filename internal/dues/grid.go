package dues

import (
	"sort"

	"github.com/google/uuid"

	"github.com/kaskita/kaskita/internal/ledger"
)

// Cell is the state of one member month. A nil *Cell means no dues was issued,
// which is distinct from PENDING.
type Cell struct {
	DuesID    uuid.UUID         `json:"duesId"`
	Status    ledger.DuesStatus `json:"status"`
	Amount    int64             `json:"amount"`
	TotalPaid int64             `json:"totalPaid"`
	Remaining int64             `json:"remainingAmount"`
}

// RowTotals aggregates the cells of one row.
type RowTotals struct {
	Issued    int64 `json:"issued"`
	Paid      int64 `json:"paid"`
	Remaining int64 `json:"remaining"`
}

// GridRow is one member's year. Months[0] is January.
type GridRow struct {
	MemberID uuid.UUID `json:"memberId"`
	FullName string    `json:"fullName"`
	Months   [12]*Cell `json:"months"`
	Totals   RowTotals `json:"totals"`
}

// Grid is the member by month status matrix of one year.
type Grid struct {
	OrganizationID uuid.UUID `json:"organizationId"`
	Year           int       `json:"year"`
	Rows           []GridRow `json:"rows"`
}

// BuildGrid lays out one row per active member ordered by full name. Dues of other
// organizations, other years or members outside the list are ignored.
func BuildGrid(orgID uuid.UUID, year int, members []ledger.Member, dues []ledger.DuesWithPayments) Grid {
	active := make([]ledger.Member, 0, len(members))
	for _, m := range members {
		if m.IsActive && m.OrganizationID == orgID {
			active = append(active, m)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].FullName != active[j].FullName {
			return active[i].FullName < active[j].FullName
		}
		return active[i].ID.String() < active[j].ID.String()
	})

	rows := make([]GridRow, len(active))
	index := make(map[uuid.UUID]int, len(active))
	for i, m := range active {
		rows[i] = GridRow{MemberID: m.ID, FullName: m.FullName}
		index[m.ID] = i
	}

	for _, d := range dues {
		if d.OrganizationID != orgID || d.Year != year || d.Month < 1 || d.Month > 12 {
			continue
		}
		i, ok := index[d.MemberID]
		if !ok {
			continue
		}
		c := ClassifyLoaded(d)
		rows[i].Months[d.Month-1] = &Cell{
			DuesID:    d.ID,
			Status:    c.Status,
			Amount:    d.Amount,
			TotalPaid: c.TotalPaid,
			Remaining: c.Remaining,
		}
		rows[i].Totals.Issued += d.Amount
		rows[i].Totals.Paid += c.TotalPaid
		rows[i].Totals.Remaining += c.Remaining
	}

	return Grid{OrganizationID: orgID, Year: year, Rows: rows}
}

package dues

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kaskita/kaskita/internal/ledger"
)

func TestGridLeavesMissingMonthsNull(t *testing.T) {
	f := newFixture(t)
	m := f.member("Budi")
	f.dues(m.ID, 2024, 2, 50000)

	grid, err := f.service.Grid(context.Background(), f.admin, 2024)
	require.NoError(t, err)
	require.Len(t, grid.Rows, 1)

	row := grid.Rows[0]
	for i, cell := range row.Months {
		if i == 1 {
			require.NotNil(t, cell)
			require.Equal(t, ledger.StatusPending, cell.Status)
			continue
		}
		require.Nil(t, cell, "month %d should have no dues", i+1)
	}
}

func TestGridHalfYearScenario(t *testing.T) {
	f := newFixture(t)
	m := f.member("Citra")
	ctx := context.Background()

	var ids []uuid.UUID
	for month := 1; month <= 6; month++ {
		ids = append(ids, f.dues(m.ID, 2024, month, 50000).ID)
	}
	f.pay(t, ids[0], 50000)
	f.pay(t, ids[1], 50000)
	f.pay(t, ids[2], 20000)

	grid, err := f.service.Grid(ctx, f.admin, 2024)
	require.NoError(t, err)
	require.Len(t, grid.Rows, 1)
	row := grid.Rows[0]

	want := []ledger.DuesStatus{
		ledger.StatusPaid, ledger.StatusPaid, ledger.StatusPartial,
		ledger.StatusPending, ledger.StatusPending, ledger.StatusPending,
	}
	for i, status := range want {
		require.NotNil(t, row.Months[i])
		require.Equal(t, status, row.Months[i].Status, "month %d", i+1)
	}
	require.Equal(t, int64(30000), row.Months[2].Remaining)
	for i := 6; i < 12; i++ {
		require.Nil(t, row.Months[i])
	}
	require.Equal(t, RowTotals{Issued: 300000, Paid: 120000, Remaining: 180000}, row.Totals)

	personal, err := f.service.MemberArrears(ctx, f.admin, m.ID)
	require.NoError(t, err)
	require.Equal(t, int64(180000), personal.Total)
	require.Equal(t, 4, personal.Months)
	require.Equal(t, 3, personal.Periods[0].Month)
}

func TestBuildGridFiltersAndOrders(t *testing.T) {
	org := uuid.New()
	other := uuid.New()
	zed := ledger.Member{ID: uuid.New(), OrganizationID: org, FullName: "Zed", IsActive: true}
	ann := ledger.Member{ID: uuid.New(), OrganizationID: org, FullName: "Ann", IsActive: true}
	gone := ledger.Member{ID: uuid.New(), OrganizationID: org, FullName: "Gone", IsActive: false}

	dues := []ledger.DuesWithPayments{
		{Dues: ledger.Dues{ID: uuid.New(), OrganizationID: org, MemberID: zed.ID, Year: 2024, Month: 1, Amount: 100}},
		{Dues: ledger.Dues{ID: uuid.New(), OrganizationID: org, MemberID: zed.ID, Year: 2023, Month: 2, Amount: 100}},
		{Dues: ledger.Dues{ID: uuid.New(), OrganizationID: other, MemberID: ann.ID, Year: 2024, Month: 3, Amount: 100}},
		{Dues: ledger.Dues{ID: uuid.New(), OrganizationID: org, MemberID: gone.ID, Year: 2024, Month: 1, Amount: 100}},
	}

	grid := BuildGrid(org, 2024, []ledger.Member{zed, gone, ann}, dues)
	require.Len(t, grid.Rows, 2)
	require.Equal(t, "Ann", grid.Rows[0].FullName)
	require.Equal(t, "Zed", grid.Rows[1].FullName)
	require.Equal(t, [12]*Cell{}, grid.Rows[0].Months)
	require.NotNil(t, grid.Rows[1].Months[0])
	require.Nil(t, grid.Rows[1].Months[1])
}

package csvfile

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `date,train_id,fitness_score,maintenance_due,job_card_status,mileage_since_maintenance,needs_cleaning,branding_active,branding_company,stabling_bay_id
2025-09-18,KMRL-T01,0.91,False,Closed,4200,0,1,Brand A,SBL-3
2025-09-18,KMRL-T02,0.42,True,Open,21000,1,0,,IBL-1
2025-09-19,KMRL-T01,0.90,false,Closed,4650.0,0,1,Brand A,SBL-4
`

func TestFetchGroupsByDate(t *testing.T) {
	ds, err := Source{R: strings.NewReader(sample)}.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"2025-09-18", "2025-09-19"}, ds.Dates())
	require.Equal(t, 3, ds.Records())

	t2 := ds.Snapshots["2025-09-18"][1]
	require.Equal(t, "KMRL-T02", t2.TrainID)
	require.True(t, bool(t2.MaintenanceDue))
	require.True(t, bool(t2.NeedsCleaning))
	require.False(t, bool(t2.BrandingActive))
	require.Equal(t, 21000, t2.MileageSinceMaintenance)

	t1 := ds.Snapshots["2025-09-19"][0]
	require.Equal(t, 4650, t1.MileageSinceMaintenance)
	require.Equal(t, "Brand A", t1.BrandingCompany)
}

func TestFetchDefaultDate(t *testing.T) {
	in := "train_id,fitness_score\nT1,0.5\n"
	ds, err := Source{R: strings.NewReader(in), Date: "2025-09-20"}.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, ds.Snapshots["2025-09-20"], 1)
}

func TestFetchErrors(t *testing.T) {
	_, err := Source{R: strings.NewReader("date,fitness_score\n")}.Fetch(context.Background())
	require.ErrorContains(t, err, "train_id")

	_, err = Source{R: strings.NewReader("train_id\nT1\n")}.Fetch(context.Background())
	require.ErrorContains(t, err, "date")

	_, err = Source{R: strings.NewReader("date,train_id,maintenance_due\n2025-09-18,T1,maybe\n")}.Fetch(context.Background())
	require.ErrorContains(t, err, "line 2")
}

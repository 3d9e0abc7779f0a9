package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"fleetops/internal/store"
)

const dataset = `{
  "2025-09-19": [{"train_id": "KMRL-T01", "fitness_score": 0.8, "branding_active": 1, "branding_company": null}],
  "2025-09-18": [
    {"train_id": "KMRL-T01", "fitness_score": 0.9, "maintenance_due": false, "branding_active": 0},
    {"train_id": "", "fitness_score": 0.1}
  ],
  "not-a-date": [{"train_id": "KMRL-T09"}]
}`

func TestImportJSON(t *testing.T) {
	st := store.NewMemory()
	im := &Importer{Store: st}
	rep, err := im.Import(context.Background(), JSONSource{R: strings.NewReader(dataset)})
	require.NoError(t, err)
	require.Equal(t, []string{"2025-09-18", "2025-09-19"}, rep.Dates)
	require.Equal(t, 2, rep.Records)
	require.Equal(t, 2, rep.Skipped)

	recs, err := st.ListTrainRecords(context.Background(), "2025-09-19")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.True(t, bool(recs[0].BrandingActive))
}

func TestImportDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FullTrainDataFile), []byte(dataset), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DailyRequirementsFile),
		[]byte(`[{"date":"2025-09-18","service_trains_required":14,"standby_trains_required":4}]`), 0o644))

	st := store.NewMemory()
	rep, err := (&Importer{Store: st}).Import(context.Background(), DirSource{Dir: dir})
	require.NoError(t, err)
	require.Equal(t, 1, rep.Requirements)
	require.Zero(t, rep.Maintenance)

	reqs, err := st.ListRequirements(context.Background())
	require.NoError(t, err)
	require.Equal(t, 14, reqs[0].ServiceTrainsRequired)
}

func TestImportMissingDataset(t *testing.T) {
	_, err := (&Importer{Store: store.NewMemory()}).Import(context.Background(), DirSource{Dir: t.TempDir()})
	require.Error(t, err)
}

package catalogsync

import (
	"testing"
	"time"

	"github.com/tiendamascotas/catalog_sync/models"
)

func TestBuildRunsWorkbook(t *testing.T) {
	started := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)

	f, err := BuildRunsWorkbook([]models.SyncRun{
		{
			ID:            7,
			Status:        models.SyncRunStatusPartial,
			TriggeredBy:   models.SyncTriggeredManual,
			StartedAt:     &started,
			FinishedAt:    &finished,
			DurationMs:    90000,
			RecordsSynced: 12,
			ErrorCount:    2,
		},
		{ID: 8, Status: models.SyncRunStatusQueued},
	})
	if err != nil {
		t.Fatalf("BuildRunsWorkbook: %v", err)
	}

	cases := []struct {
		cell string
		want string
	}{
		{"A1", "RunId"},
		{"H1", "ErrorCount"},
		{"A2", "7"},
		{"B2", "partial"},
		{"C2", "manual"},
		{"D2", "2026-08-20 10:00:00"},
		{"F2", "90000"},
		{"G2", "12"},
		{"H2", "2"},
		{"A3", "8"},
		{"D3", ""},
	}
	for _, tc := range cases {
		got, err := f.GetCellValue("Sheet1", tc.cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s): %v", tc.cell, err)
		}
		if got != tc.want {
			t.Fatalf("cell %s = %q, want %q", tc.cell, got, tc.want)
		}
	}
}

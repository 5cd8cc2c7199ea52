package catalogsync

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/tiendamascotas/catalog_sync/models"
)

// BuildRunsWorkbook renders run history rows into a spreadsheet for
// operators who audit sync outcomes outside the API.
func BuildRunsWorkbook(runs []models.SyncRun) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}

	f.SetCellValue(sheet, "A1", "RunId")
	f.SetCellValue(sheet, "B1", "Status")
	f.SetCellValue(sheet, "C1", "TriggeredBy")
	f.SetCellValue(sheet, "D1", "StartedAt")
	f.SetCellValue(sheet, "E1", "FinishedAt")
	f.SetCellValue(sheet, "F1", "DurationMs")
	f.SetCellValue(sheet, "G1", "RecordsSynced")
	f.SetCellValue(sheet, "H1", "ErrorCount")

	for i, run := range runs {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+row, run.ID)
		f.SetCellValue(sheet, "B"+row, run.Status)
		f.SetCellValue(sheet, "C"+row, run.TriggeredBy)
		if run.StartedAt != nil {
			f.SetCellValue(sheet, "D"+row, run.StartedAt.UTC().Format("2006-01-02 15:04:05"))
		}
		if run.FinishedAt != nil {
			f.SetCellValue(sheet, "E"+row, run.FinishedAt.UTC().Format("2006-01-02 15:04:05"))
		}
		f.SetCellValue(sheet, "F"+row, run.DurationMs)
		f.SetCellValue(sheet, "G"+row, run.RecordsSynced)
		f.SetCellValue(sheet, "H"+row, run.ErrorCount)
	}

	return f, nil
}

func (s *Service) ExportRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := s.database()
		if db == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "run history is not enabled"})
			return
		}

		var runs []models.SyncRun
		if err := db.WithContext(c.Request.Context()).
			Order("id desc").
			Limit(500).
			Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		f, err := BuildRunsWorkbook(runs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=sync-runs.xlsx")
		if err := f.Write(c.Writer); err != nil {
			c.Status(http.StatusInternalServerError)
		}
	}
}

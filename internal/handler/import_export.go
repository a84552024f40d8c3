package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rammfall-education/api-fine/internal/fines"
	"github.com/rammfall-education/api-fine/internal/middleware"
	"github.com/rammfall-education/api-fine/internal/models"
	"github.com/rammfall-education/api-fine/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// amounts are stored in minor units
const minorUnitExp = -2

var exportHeaders = []string{"ID", "User", "Admin", "Description", "Amount", "Status", "Issued", "Deadline"}

// ExportHandler serves the admin fine list as CSV or XLSX, honouring the same
// query filters as GET /admin/fines.
type ExportHandler struct {
	Store *fines.Store
}

func NewExportHandler(store *fines.Store) *ExportHandler {
	return &ExportHandler{Store: store}
}

func formatAmount(minor int64) string {
	return decimal.New(minor, minorUnitExp).StringFixed(-minorUnitExp)
}

func exportRow(f *models.Fine) []string {
	return []string{
		strconv.FormatUint(uint64(f.ID), 10),
		strconv.FormatUint(uint64(f.UserID), 10),
		strconv.FormatUint(uint64(f.AdminID), 10),
		f.Description,
		formatAmount(f.Amount),
		string(f.Status),
		f.IssuedDate.Format(util.DateLayout),
		f.Deadline.Format(util.DateLayout),
	}
}

func (h *ExportHandler) load(c *gin.Context) ([]models.Fine, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
		return nil, false
	}
	filter, err := filterFrom(c)
	if err != nil {
		util.Fail(c, err)
		return nil, false
	}
	list, err := h.Store.ListAll(c.Request.Context(), user.Actor(), filter)
	if err != nil {
		util.Fail(c, err)
		return nil, false
	}
	return list, true
}

func attachment(c *gin.Context, contentType, ext string) {
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"fines_%s.%s\"",
		time.Now().Format("20060102"), ext))
}

// ExportCSV writes the filtered fines as CSV.
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	list, ok := h.load(c)
	if !ok {
		return
	}

	attachment(c, "text/csv; charset=utf-8", "csv")
	c.Status(http.StatusOK)

	writer := csv.NewWriter(c.Writer)
	_ = writer.Write(exportHeaders)
	for i := range list {
		_ = writer.Write(exportRow(&list[i]))
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = c.Error(err)
	}
}

// ExportXLSX writes the filtered fines as a single-sheet workbook.
func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	list, ok := h.load(c)
	if !ok {
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheetName = "Fines"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		util.Fail(c, err)
		return
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	for i, title := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, title)
	}

	for idx := range list {
		fine := &list[idx]
		row := idx + 2
		amount, _ := decimal.New(fine.Amount, minorUnitExp).Float64()
		values := []interface{}{
			fine.ID,
			fine.UserID,
			fine.AdminID,
			fine.Description,
			amount,
			string(fine.Status),
			fine.IssuedDate.Format(util.DateLayout),
			fine.Deadline.Format(util.DateLayout),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			util.Fail(c, err)
			return
		}
	}

	_ = f.SetColWidth(sheetName, "A", "C", 8)
	_ = f.SetColWidth(sheetName, "D", "D", 40)
	_ = f.SetColWidth(sheetName, "E", "E", 12)
	_ = f.SetColWidth(sheetName, "F", "H", 12)

	attachment(c, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx")
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		_ = c.Error(err)
	}
}

// Package export 生成事故列表的 Excel 文件
package export

import (
	"bytes"
	"fmt"

	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/models"

	"github.com/xuri/excelize/v2"
)

// SheetName 工作表名称
const SheetName = "Incidents"

// Headers 表头
var Headers = []string{
	"Incident ID",
	"Occurred At (UTC)",
	"Latitude",
	"Longitude",
	"Photos",
	"Audio Bytes",
	"Map",
	"Received At (UTC)",
}

var columnWidths = []float64{38, 22, 12, 12, 10, 14, 60, 22}

const timeLayout = "2006-01-02 15:04:05"

// IncidentsXLSX 将事故列表写成 xlsx，列表为空时只有表头
func IncidentsXLSX(incidents []*models.Incident) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo 之前不能关闭文件
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#FDE2E1"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(SheetName, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}

		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(SheetName, name, name, columnWidths[col]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, inc := range incidents {
		row := i + 2
		values := []interface{}{
			inc.ID,
			inc.OccurredAt.UTC().Format(timeLayout),
			inc.Latitude,
			inc.Longitude,
			inc.PhotoCount,
			inc.AudioBytes,
			inc.MapsLink,
			inc.CreatedAt.UTC().Format(timeLayout),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(SheetName, cell, value); err != nil {
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	return buf.Bytes(), nil
}

package sheetsclient

import (
	"fmt"
	"strings"

	"google.golang.org/api/sheets/v4"
)

// Column headers of a published camp schedule. Any other columns on the tab
// belong to the organization and are preserved.
const (
	ColumnCampID   = "Camp ID"
	ColumnDate     = "Date"
	ColumnCamp     = "Camp"
	ColumnLocation = "Location"
)

// headerRow is the 1-based row holding the column headers, below a 2-row gap
const headerRow = 3

// PublishedCampRow is one camp on the schedule
type PublishedCampRow struct {
	CampID   string
	Date     string // Format: "Mon Jan 02 2006"
	Name     string
	Location string
}

// PublishedCamps is an organization's schedule as written to the sheet
type PublishedCamps struct {
	OrganizationName string
	Rows             []PublishedCampRow
}

// TabTitle is the tab the schedule is written to
func (p *PublishedCamps) TabTitle() string {
	name := strings.TrimSpace(p.OrganizationName)
	if name == "" {
		name = "Organization"
	}
	// Sheet titles may not contain these characters
	name = strings.NewReplacer("[", "(", "]", ")", ":", "-", "*", "", "?", "", "/", "-", `\`, "-").Replace(name)
	return name + " camps"
}

// PublishCamps writes the schedule to its tab, creating the tab on first publish.
// On an existing tab, the fixed columns are rewritten and values in other
// columns stay with their camp (matched by Camp ID).
func (c *Client) PublishCamps(spreadsheetID string, published *PublishedCamps) error {
	tabTitle := published.TabTitle()

	exists, err := c.hasTab(spreadsheetID, tabTitle)
	if err != nil {
		return err
	}

	var existing [][]interface{}
	if exists {
		if existing, err = c.readTab(spreadsheetID, tabTitle); err != nil {
			return err
		}
	} else if err := c.addTab(spreadsheetID, tabTitle); err != nil {
		return err
	}

	rows, err := buildCampRows(existing, published.Rows)
	if err != nil {
		return err
	}

	// Clear first so camps removed since the last publish do not linger below the new rows
	if exists {
		if _, err := c.service.Spreadsheets.Values.Clear(spreadsheetID, fmt.Sprintf("%s!A%d:ZZ", tabTitle, headerRow), &sheets.ClearValuesRequest{}).Do(); err != nil {
			return fmt.Errorf("failed to clear existing tab: %w", err)
		}
	}

	_, err = c.service.Spreadsheets.Values.Update(
		spreadsheetID,
		fmt.Sprintf("%s!A1", tabTitle),
		&sheets.ValueRange{Values: rows},
	).ValueInputOption("RAW").Do()
	if err != nil {
		return fmt.Errorf("failed to write camps: %w", err)
	}

	return nil
}

// buildCampRows lays out the full tab contents. existing is the tab's current
// contents, or nil for a new tab.
func buildCampRows(existing [][]interface{}, camps []PublishedCampRow) ([][]interface{}, error) {
	header := []interface{}{ColumnCampID, ColumnDate, ColumnCamp, ColumnLocation}
	extra := map[string][]interface{}{}
	var extraCols []int

	if len(existing) > 0 {
		if len(existing) < headerRow {
			return nil, fmt.Errorf("existing tab has insufficient rows (expected at least %d rows with 2-row gap)", headerRow)
		}
		existingHeader := existing[headerRow-1]
		idCol := findColumnIndex(existingHeader, ColumnCampID)
		if idCol == -1 {
			return nil, fmt.Errorf("existing tab missing required column %q", ColumnCampID)
		}

		for i, cell := range existingHeader {
			name, _ := cell.(string)
			switch name {
			case ColumnCampID, ColumnDate, ColumnCamp, ColumnLocation:
			default:
				extraCols = append(extraCols, i)
				header = append(header, cell)
			}
		}

		for _, row := range existing[headerRow:] {
			if idCol >= len(row) {
				continue
			}
			id, _ := row[idCol].(string)
			if id == "" {
				continue
			}
			values := make([]interface{}, len(extraCols))
			for j, col := range extraCols {
				if col < len(row) {
					values[j] = row[col]
				} else {
					values[j] = ""
				}
			}
			extra[id] = values
		}
	}

	rows := [][]interface{}{
		{}, // Row 1 (empty)
		{}, // Row 2 (empty)
		header,
	}
	for _, camp := range camps {
		row := []interface{}{camp.CampID, camp.Date, camp.Name, camp.Location}
		if values, ok := extra[camp.CampID]; ok {
			row = append(row, values...)
		} else {
			for range extraCols {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// findColumnIndex finds the index of a column by its header name
func findColumnIndex(header []interface{}, columnName string) int {
	for i, cell := range header {
		if str, ok := cell.(string); ok && str == columnName {
			return i
		}
	}
	return -1
}

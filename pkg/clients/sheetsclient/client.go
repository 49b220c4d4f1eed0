package sheetsclient

import (
	"context"
	"fmt"

	"google.golang.org/api/sheets/v4"

	"github.com/jakechorley/donornet/pkg/utils"
)

// Client publishes camp schedules to Google Sheets
type Client struct {
	service *sheets.Service
}

// New creates a Sheets client acting as account
func New(ctx context.Context, account *utils.GoogleAccount) (*Client, error) {
	service, err := sheets.NewService(ctx, account.ClientOption())
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Client{service: service}, nil
}

// hasTab reports whether the spreadsheet already has a tab called title
func (c *Client) hasTab(spreadsheetID, title string) (bool, error) {
	spreadsheet, err := c.service.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Do()
	if err != nil {
		return false, fmt.Errorf("failed to get spreadsheet metadata: %w", err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) addTab(spreadsheetID, title string) error {
	_, err := c.service.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}},
		}},
	}).Do()
	if err != nil {
		return fmt.Errorf("failed to create tab %q: %w", title, err)
	}
	return nil
}

func (c *Client) readTab(spreadsheetID, title string) ([][]interface{}, error) {
	resp, err := c.service.Spreadsheets.Values.Get(spreadsheetID, fmt.Sprintf("%s!A1:ZZ", title)).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read tab %q: %w", title, err)
	}
	return resp.Values, nil
}

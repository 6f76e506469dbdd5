// Package google mirrors loads into a Google spreadsheet. Each load
// occupies one row keyed by its identifier in column A; upserts rewrite
// the row in place and deletes clear it.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"truckpay/internal/core"
	ports "truckpay/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base sheet name without year (e.g. "Loads"); the year is prefixed
	// so each calendar year gets its own tab.
	loadsBase string
}

var _ ports.LoadMirror = (*Client)(nil)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID plus service account credentials via
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS. Optional: GOOGLE_SHEET_NAME (default
// "Loads").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	loadsBase := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if loadsBase == "" {
		loadsBase = "Loads"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		loadsBase:     loadsBase,
	}, nil
}

// newSheetsService initializes a Sheets service from service account
// credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Upsert writes the load's row, updating in place when the load already
// has a row in the sheet.
func (c *Client) Upsert(ctx context.Context, userID string, l core.Load) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if err := l.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}

	sheet := c.sheetName(l.DateAdded.Year())
	ids, err := c.readIDColumn(ctx, sheet)
	if err != nil {
		return "", err
	}

	row := matchRow(ids, l.ID)
	if row == 0 {
		row = len(ids) + 2 // row 1 is the header
	}

	rng := fmt.Sprintf("%s!A%d:H%d", sheet, row, row)
	vr := &gsheet.ValueRange{Values: [][]any{loadRow(l)}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update row in sheet %s: %w", sheet, err)
	}

	slog.InfoContext(ctx, "Mirrored load to sheet",
		"user_id", userID, "load_id", l.ID, "range", rng)
	return rng, nil
}

// Delete clears the load's row. A load that was never mirrored is not
// an error.
func (c *Client) Delete(ctx context.Context, userID string, loadID int64) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	sheet := c.sheetName(time.Now().Year())
	ids, err := c.readIDColumn(ctx, sheet)
	if err != nil {
		return err
	}
	row := matchRow(ids, loadID)
	if row == 0 {
		return nil
	}

	rng := fmt.Sprintf("%s!A%d:H%d", sheet, row, row)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear row in sheet %s: %w", sheet, err)
	}

	slog.InfoContext(ctx, "Removed load from sheet",
		"user_id", userID, "load_id", loadID, "range", rng)
	return nil
}

func (c *Client) readIDColumn(ctx context.Context, sheet string) ([][]any, error) {
	rng := fmt.Sprintf("%s!A2:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) sheetName(year int) string {
	return yearPrefixedName(c.loadsBase, year)
}

// yearPrefixedName returns "<year> <base>" unless base already starts
// with that year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	prefix := strconv.Itoa(year) + " "
	if strings.HasPrefix(base, prefix) {
		return base
	}
	return prefix + base
}

// matchRow returns the 1-based sheet row whose first cell holds id, or
// 0 when absent. ids comes from a range starting at row 2.
func matchRow(ids [][]any, id int64) int {
	want := strconv.FormatInt(id, 10)
	for i, row := range ids {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == want {
			return i + 2
		}
	}
	return 0
}

// loadRow renders a load as the spreadsheet columns
// A:H = ID, Week, Date Added, From, To, Rate, Deduction %, Driver Pay.
func loadRow(l core.Load) []any {
	return []any{
		strconv.FormatInt(l.ID, 10),
		l.WeekPeriod,
		l.DateAdded.ISO(),
		l.LocationFrom,
		l.LocationTo,
		l.Rate.Dollars(),
		l.CompanyDeductionPct,
		l.DriverPay.Dollars(),
	}
}

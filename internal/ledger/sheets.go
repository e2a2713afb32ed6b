package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ErrNoCredentials is returned when neither inline nor file credentials are available
var ErrNoCredentials = errors.New("no Google service account credentials configured")

const (
	newSheetRows    = 1000
	newSheetColumns = 10
)

// SheetsStore is a Store backed by one Google Sheets spreadsheet
type SheetsStore struct {
	service       *sheets.Service
	spreadsheetID string
}

// ResolveCredentials loads service account credentials from inline JSON, preferred, or from
// the file at path
func ResolveCredentials(ctx context.Context, inlineJSON, path string) (*google.Credentials, error) {
	data := []byte(strings.TrimSpace(inlineJSON))
	if len(data) == 0 {
		if path == "" {
			return nil, ErrNoCredentials
		}
		raw, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrNoCredentials, path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		data = raw
	}

	creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
	}
	return creds, nil
}

// NewSheetsStore connects to the spreadsheet. Callers pass option.WithCredentials in
// production and an endpoint override in tests.
func NewSheetsStore(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*SheetsStore, error) {
	if spreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}

	return &SheetsStore{
		service:       service,
		spreadsheetID: spreadsheetID,
	}, nil
}

// EnsureSheet adds the worksheet and writes its header row when it is missing
func (s *SheetsStore) EnsureSheet(ctx context.Context, name string, header []string) error {
	spreadsheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to open spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == name {
			return nil
		}
	}

	add := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{
					Title: name,
					GridProperties: &sheets.GridProperties{
						RowCount:    newSheetRows,
						ColumnCount: newSheetColumns,
					},
				},
			},
		}},
	}
	if _, err := s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, add).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to add worksheet: %w", err)
	}

	values := &sheets.ValueRange{Values: toValues([][]string{header})}
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, a1Range(name, "A1"), values).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// ColumnValues reads a whole column; missing trailing cells come back as empty strings
func (s *SheetsStore) ColumnValues(ctx context.Context, name string, column int) ([]string, error) {
	letter := columnLetter(column)
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, a1Range(name, letter+":"+letter)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read column %s: %w", letter, err)
	}

	out := make([]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) == 0 {
			out = append(out, "")
			continue
		}
		out = append(out, fmt.Sprint(row[0]))
	}
	return out, nil
}

// AppendRows inserts rows below the existing data. Cells are stored as typed, so portal
// text starting with "=" stays text.
func (s *SheetsStore) AppendRows(ctx context.Context, name string, rows [][]string) error {
	values := &sheets.ValueRange{Values: toValues(rows)}
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, a1Range(name, "A1"), values).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append rows: %w", err)
	}
	return nil
}

// a1Range qualifies rng with a quoted worksheet name
func a1Range(sheet, rng string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + rng
}

// columnLetter maps a zero-based column index to its A1 letters
func columnLetter(column int) string {
	var b []byte
	for n := column + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

func toValues(rows [][]string) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		out[i] = cells
	}
	return out
}

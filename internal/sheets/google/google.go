package google

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	ports "sheetpipe/internal/sheets"

	goauth "golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const spreadsheetMIME = "application/vnd.google-apps.spreadsheet"

// Config carries what the client needs to authenticate.
type Config struct {
	CredentialsFile string
}

// Client talks to Google Sheets and Drive with one authenticated
// identity. Drive is needed for find-by-name; Sheets for everything else.
type Client struct {
	sheets *gsheet.Service
	drive  *gdrive.Service
}

// Ensure interface conformance
var _ ports.Backend = (*Client)(nil)

// New builds the client from a service account key file. The file is
// checked before any network call; absence maps to ErrCredentialsMissing
// and an unparseable key to ErrAuthentication.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if _, err := os.Stat(cfg.CredentialsFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("credentials file %s: %w", cfg.CredentialsFile, ports.ErrCredentialsMissing)
		}
		return nil, fmt.Errorf("stat credentials file: %w", err)
	}

	credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	jwt, err := goauth.JWTConfigFromJSON(credentialsJSON, gsheet.SpreadsheetsScope, gdrive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %v: %w", err, ports.ErrAuthentication)
	}

	slog.InfoContext(ctx, "Creating Google API services with service account",
		"credentials_file", cfg.CredentialsFile,
		"client_email", jwt.Email)

	httpClient := jwt.Client(ctx)

	sheetsSvc, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	driveSvc, err := gdrive.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Client{sheets: sheetsSvc, drive: driveSvc}, nil
}

// FindSpreadsheet looks up a spreadsheet by exact title. Multiple
// matches resolve to the first one the backend returns.
func (c *Client) FindSpreadsheet(ctx context.Context, title string) (ports.SpreadsheetRef, bool, error) {
	query := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		escapeQuery(title), spreadsheetMIME)

	list, err := c.drive.Files.List().
		Q(query).
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return ports.SpreadsheetRef{}, false, classify("find spreadsheet", err)
	}

	for _, f := range list.Files {
		if f.Name == title {
			return ports.SpreadsheetRef{ID: f.Id, Title: title}, true, nil
		}
	}

	return ports.SpreadsheetRef{}, false, nil
}

func (c *Client) CreateSpreadsheet(ctx context.Context, title string) (ports.SpreadsheetRef, error) {
	spreadsheet := &gsheet.Spreadsheet{
		Properties: &gsheet.SpreadsheetProperties{Title: title},
	}

	created, err := c.sheets.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return ports.SpreadsheetRef{}, classify("create spreadsheet", err)
	}

	slog.InfoContext(ctx, "Spreadsheet created",
		"title", title,
		"spreadsheet_id", created.SpreadsheetId)

	return ports.SpreadsheetRef{ID: created.SpreadsheetId, Title: title}, nil
}

// FindWorksheet scans the spreadsheet's tabs for an exact title match.
func (c *Client) FindWorksheet(ctx context.Context, ss ports.SpreadsheetRef, tab string) (ports.WorksheetRef, bool, error) {
	spreadsheet, err := c.sheets.Spreadsheets.Get(ss.ID).Context(ctx).Do()
	if err != nil {
		return ports.WorksheetRef{}, false, classify("fetch spreadsheet", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == tab {
			return ports.WorksheetRef{
				SpreadsheetID: ss.ID,
				SheetID:       sheet.Properties.SheetId,
				Title:         tab,
			}, true, nil
		}
	}

	return ports.WorksheetRef{}, false, nil
}

func (c *Client) CreateWorksheet(ctx context.Context, ss ports.SpreadsheetRef, tab string, rows, cols int64) (ports.WorksheetRef, error) {
	rq := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{
					Title: tab,
					GridProperties: &gsheet.GridProperties{
						RowCount:    rows,
						ColumnCount: cols,
					},
				},
			},
		}},
	}

	resp, err := c.sheets.Spreadsheets.BatchUpdate(ss.ID, rq).Context(ctx).Do()
	if err != nil {
		return ports.WorksheetRef{}, classify("create worksheet", err)
	}

	ref := ports.WorksheetRef{SpreadsheetID: ss.ID, Title: tab}
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		ref.SheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}

	slog.InfoContext(ctx, "Worksheet created",
		"tab", tab,
		"rows", rows,
		"cols", cols,
		"spreadsheet_id", ss.ID)

	return ref, nil
}

// ReadRecords returns every value currently on the tab.
func (c *Client) ReadRecords(ctx context.Context, ws ports.WorksheetRef) ([][]string, error) {
	resp, err := c.sheets.Spreadsheets.Values.Get(ws.SpreadsheetID, tabRange(ws.Title)).Context(ctx).Do()
	if err != nil {
		return nil, classify("read worksheet", err)
	}

	records := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		records[i] = toStrings(row)
	}
	return records, nil
}

// AppendRecords submits all records in one batch append.
func (c *Client) AppendRecords(ctx context.Context, ws ports.WorksheetRef, records [][]string) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	vr := &gsheet.ValueRange{Values: toValues(records)}

	_, err := c.sheets.Spreadsheets.Values.Append(ws.SpreadsheetID, tabRange(ws.Title), vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return 0, classify("append rows", err)
	}

	return len(records), nil
}

// classify maps backend errors onto the port sentinels: 401/403 mean the
// credentials were rejected, 5xx and transport failures mean the backend
// is unavailable. Other API statuses and context cancellation pass
// through wrapped.
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%s: %v: %w", op, err, ports.ErrAuthentication)
		case apiErr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%s: %v: %w", op, err, ports.ErrUnavailable)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return fmt.Errorf("%s: %v: %w", op, err, ports.ErrUnavailable)
}

// escapeQuery escapes a string literal for a Drive search query.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// tabRange returns the A1 reference covering the whole tab. Titles that
// are not plain identifiers need single-quote quoting.
func tabRange(title string) string {
	plain := title != ""
	for i, r := range title {
		switch {
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			plain = false
		}
		if !plain {
			break
		}
	}
	if plain {
		return title
	}
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func toValues(records [][]string) [][]interface{} {
	out := make([][]interface{}, len(records))
	for i, record := range records {
		row := make([]interface{}, len(record))
		for j, v := range record {
			row[j] = v
		}
		out[i] = row
	}
	return out
}

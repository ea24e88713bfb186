// Package sheets reads the Q&A knowledge base from a Google Sheet.
//
// The sheet is maintained by hand: the first row carries column headers, and
// every following row is one Q&A entry. Only question and answer are
// required; link, category, keywords, id and active are optional columns.
package sheets

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"
	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

// Required column headers (after lowercasing).
var requiredColumns = []string{"question", "answer"}

// Row is one spreadsheet record: the 1-based sheet row number plus the cell
// values keyed by normalized header name.
type Row struct {
	Number int
	Fields map[string]string
}

// Get returns the trimmed value of the named column, or "" when absent.
func (r Row) Get(name string) string {
	return strings.TrimSpace(r.Fields[name])
}

// Source is the capability the sync pipeline consumes: fetch the current
// snapshot of knowledge-base rows.
type Source interface {
	FetchRows(ctx context.Context) ([]Row, error)
}

// Options configures the Google Sheets client.
type Options struct {
	// SpreadsheetID identifies the spreadsheet.
	SpreadsheetID string
	// SheetName is the tab to read. Defaults to "Sheet1".
	SheetName string
	// CredentialsJSON holds inline service-account credentials.
	CredentialsJSON string
	// CredentialsFile is the path to a service-account key file. Used when
	// CredentialsJSON is empty.
	CredentialsFile string
}

// Client fetches rows through the Google Sheets API using service-account
// credentials.
type Client struct {
	svc           *sheetsv4.Service
	spreadsheetID string
	sheetName     string
}

// New creates a Sheets client. One of CredentialsJSON or CredentialsFile
// must be set.
func New(ctx context.Context, opts *Options) (*Client, error) {
	if opts.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id is required")
	}

	var clientOpt option.ClientOption
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		clientOpt = option.WithCredentialsJSON([]byte(opts.CredentialsJSON))
	case strings.TrimSpace(opts.CredentialsFile) != "":
		clientOpt = option.WithCredentialsFile(opts.CredentialsFile)
	default:
		return nil, fmt.Errorf("sheets: no credentials configured, set credentials-json or credentials-file")
	}

	svc, err := sheetsv4.NewService(ctx, clientOpt, option.WithScopes(sheetsv4.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to create service: %w", err)
	}

	sheetName := opts.SheetName
	if sheetName == "" {
		sheetName = "Sheet1"
	}

	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// FetchRows reads all data rows from the sheet. Inactive rows (an "active"
// column present and not TRUE) and fully blank rows are dropped here; rows
// with missing required values are passed through so the pipeline can report
// them individually.
func (c *Client) FetchRows(ctx context.Context) ([]Row, error) {
	readRange := fmt.Sprintf("%s!A:Z", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to fetch %q: %w", readRange, err)
	}

	values := resp.Values
	if len(values) < 2 {
		logger.Warnw("sheet is empty or has only headers",
			"spreadsheet_id", c.spreadsheetID,
			"sheet", c.sheetName,
		)
		return nil, nil
	}

	headers := parseHeaders(values[0])
	if err := validateHeaders(headers); err != nil {
		return nil, err
	}

	rows := ParseRows(headers, values[1:])
	logger.Infow("fetched sheet rows",
		"spreadsheet_id", c.spreadsheetID,
		"sheet", c.sheetName,
		"rows", len(rows),
		"scanned", len(values)-1,
	)
	return rows, nil
}

func parseHeaders(cells []interface{}) []string {
	headers := make([]string, len(cells))
	for i, cell := range cells {
		headers[i] = strings.ToLower(strings.TrimSpace(cellString(cell)))
	}
	return headers
}

func validateHeaders(headers []string) error {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	var missing []string
	for _, col := range requiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("sheets: missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ParseRows converts raw cell values into Rows. Short rows are padded with
// empty strings so every header has a value. Row numbers start at 2 because
// row 1 holds the headers.
func ParseRows(headers []string, values [][]interface{}) []Row {
	var rows []Row
	for i, cells := range values {
		fields := make(map[string]string, len(headers))
		blank := true
		for j, h := range headers {
			if h == "" {
				continue
			}
			var v string
			if j < len(cells) {
				v = cellString(cells[j])
			}
			if strings.TrimSpace(v) != "" {
				blank = false
			}
			fields[h] = v
		}
		if blank {
			continue
		}

		row := Row{Number: i + 2, Fields: fields}
		if active, ok := fields["active"]; ok {
			if !strings.EqualFold(strings.TrimSpace(active), "TRUE") {
				continue
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func cellString(cell interface{}) string {
	switch v := cell.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

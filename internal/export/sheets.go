// Package export appends applied-import summaries to a Google Sheet so
// a shared spreadsheet can track what was loaded and when.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/amqp"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type SheetsAppender struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// NewSheetsAppender builds a Sheets client. With an empty credentials
// file it falls back to Application Default Credentials.
func NewSheetsAppender(ctx context.Context, spreadsheetID, sheetName, credentialsFile string) (*SheetsAppender, error) {
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if sheetName == "" {
		sheetName = "Imports"
	}

	var opts []goption.ClientOption
	if credentialsFile != "" {
		opts = append(opts, goption.WithCredentialsFile(credentialsFile))
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &SheetsAppender{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// AppendApplied appends one summary row for an applied import batch.
func (a *SheetsAppender) AppendApplied(ctx context.Context, msg *amqp.ImportAppliedMessage) error {
	values := &gsheet.ValueRange{
		Values: [][]interface{}{{
			msg.Timestamp.Format(time.RFC3339),
			msg.Kind,
			msg.Action,
			msg.UserID,
			msg.Inserted,
			msg.Deleted,
			msg.BatchID,
		}},
	}

	_, err := a.svc.Spreadsheets.Values.
		Append(a.spreadsheetID, a.sheetName, values).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append to sheet %s: %w", a.sheetName, err)
	}

	slog.InfoContext(ctx, "Import summary appended to sheet",
		"sheet", a.sheetName,
		"batch_id", msg.BatchID,
		"inserted", msg.Inserted,
		"deleted", msg.Deleted)
	return nil
}

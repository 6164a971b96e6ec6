package sheets

import (
	"context"
	"time"

	"mltscript/internal/credentials"
)

// Transport names a read path.
type Transport string

const (
	TransportAPI  Transport = "api"
	TransportCSV  Transport = "csv"
	TransportNone Transport = "none"
)

// SheetRef identifies the spreadsheet and the tabs to try, in order.
type SheetRef struct {
	SheetID       string
	GIDCandidates []string
	// Range is an A1 range for the API path. Without a sheet prefix it is
	// applied to the selected tab.
	Range string
}

// Table is the raw grid read from one tab. The first row holds headers.
type Table struct {
	GID   string     `json:"gid"`
	Title string     `json:"title,omitempty"`
	Rows  [][]string `json:"-"`
}

// Header returns the first row, or nil for an empty table.
func (t Table) Header() []string {
	if len(t.Rows) == 0 {
		return nil
	}
	return t.Rows[0]
}

// Body returns every row after the header.
func (t Table) Body() [][]string {
	if len(t.Rows) < 2 {
		return nil
	}
	return t.Rows[1:]
}

// Empty reports whether the table carries no data rows.
func (t Table) Empty() bool { return len(t.Body()) == 0 }

// Attempt records one transport try. Err is nil on success or skip.
type Attempt struct {
	Transport Transport     `json:"transport"`
	GID       string        `json:"gid,omitempty"`
	Skipped   bool          `json:"skipped,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Rows      int           `json:"rows"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// OK reports whether the attempt reached the sheet, even if it was empty.
func (a Attempt) OK() bool { return !a.Skipped && a.Err == nil }

// Error returns the failure text, or "".
func (a Attempt) Error() string {
	if a.Err == nil {
		return ""
	}
	return a.Err.Error()
}

// FetchResult is what the selector hands to the decoder. Transport is
// TransportNone when every path failed; Attempts explains why.
type FetchResult struct {
	Table     Table     `json:"table"`
	Transport Transport `json:"transport"`
	Attempts  []Attempt `json:"attempts"`
}

// CredentialSource yields the credential for the API path and is told when
// the API rejects it.
type CredentialSource interface {
	Credential(ctx context.Context) (*credentials.Credential, error)
	Invalidate(ctx context.Context, cause error) error
}

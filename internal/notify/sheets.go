package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/logger"
	"github.com/RaikyD/isp-order-intake/internal/orderform"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const DefaultWorksheet = "Form Submissions"

var SheetHeaders = []string{
	"Submission Date",
	"Agent Name",
	"Agent ID",
	"Customer Name",
	"Email",
	"Phone",
	"Date of Birth",
	"SSN",
	"Street Address",
	"Apt/Unit",
	"City",
	"State",
	"ZIP Code",
	"Moved Last Year",
	"Previous Street Address",
	"Previous Apt/Unit",
	"Previous City",
	"Previous State",
	"Previous ZIP Code",
	"Selected Provider",
	"Selected Package",
	"DirecTV Package",
	"Add-Ons",
	"IP Address",
}

var eastern = mustLocation("America/New_York")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

// FormatSubmitted renders a timestamp the way the sheet and email show it.
func FormatSubmitted(t time.Time) string {
	return t.In(eastern).Format("01/02/2006, 03:04:05 PM")
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// SheetRow is one spreadsheet row in SheetHeaders order.
func SheetRow(s *domain.Submission) []string {
	return []string{
		FormatSubmitted(s.SubmissionDate),
		s.AgentName,
		s.AgentID,
		s.CustomerName,
		s.Email,
		s.Phone,
		orderform.FormatDateOfBirth(s.DateOfBirth),
		orderform.FormatSSN(s.SSN),
		s.StreetAddress,
		s.AptUnit,
		s.City,
		s.State,
		s.ZipCode,
		yesNo(s.MovedLastYear),
		s.PrevStreetAddress,
		s.PrevAptUnit,
		s.PrevCity,
		s.PrevState,
		s.PrevZipCode,
		s.SelectedProvider,
		s.SelectedPackage,
		s.SelectedDirectvPackage,
		strings.Join(s.SelectedAddOns, ", "),
		s.IPAddress,
	}
}

// ValuesAPI is the slice of the Sheets values API the appender needs.
type ValuesAPI interface {
	Get(ctx context.Context, rangeA1 string) ([][]interface{}, error)
	Update(ctx context.Context, rangeA1 string, rows [][]interface{}) error
	Append(ctx context.Context, rangeA1 string, rows [][]interface{}) error
}

type SheetsAppender struct {
	api       ValuesAPI
	worksheet string
}

// NewSheetsAppender accepts a nil api; Run then reports ErrNotConfigured.
func NewSheetsAppender(api ValuesAPI, worksheet string) *SheetsAppender {
	if worksheet == "" {
		worksheet = DefaultWorksheet
	}
	return &SheetsAppender{api: api, worksheet: worksheet}
}

func (a *SheetsAppender) Name() string { return "sheet" }

func (a *SheetsAppender) Run(ctx context.Context, s *domain.Submission) error {
	if a.api == nil {
		return ErrNotConfigured
	}
	if err := a.ensureHeaders(ctx); err != nil {
		// the sheet may not exist yet; append still decides the outcome
		logger.Warn("sheet header check failed", "submission_id", s.ID, "err", err)
	}
	if err := a.api.Append(ctx, a.worksheet+"!A:X", [][]interface{}{toCells(SheetRow(s))}); err != nil {
		return fmt.Errorf("append sheet row: %w", err)
	}
	return nil
}

func (a *SheetsAppender) ensureHeaders(ctx context.Context) error {
	rng := a.worksheet + "!A1:X1"
	rows, err := a.api.Get(ctx, rng)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return nil
	}
	return a.api.Update(ctx, rng, [][]interface{}{toCells(SheetHeaders)})
}

func toCells(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

type googleValues struct {
	srv     *sheets.Service
	sheetID string
}

// NewGoogleValues authenticates as a service account. It returns nil, nil when
// any credential is missing so the sheet step reports itself unconfigured.
func NewGoogleValues(ctx context.Context, sheetID, email, privateKey string) (ValuesAPI, error) {
	if sheetID == "" || email == "" || privateKey == "" {
		return nil, nil
	}
	conf := &jwt.Config{
		Email:      email,
		PrivateKey: []byte(privateKey),
		Scopes:     []string{sheets.SpreadsheetsScope},
		TokenURL:   google.JWTTokenURL,
	}
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(context.Background())))
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return &googleValues{srv: srv, sheetID: sheetID}, nil
}

func (g *googleValues) Get(ctx context.Context, rangeA1 string) ([][]interface{}, error) {
	resp, err := g.srv.Spreadsheets.Values.Get(g.sheetID, rangeA1).Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogle(err)
	}
	return resp.Values, nil
}

func (g *googleValues) Update(ctx context.Context, rangeA1 string, rows [][]interface{}) error {
	_, err := g.srv.Spreadsheets.Values.Update(g.sheetID, rangeA1, &sheets.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return classifyGoogle(err)
}

func (g *googleValues) Append(ctx context.Context, rangeA1 string, rows [][]interface{}) error {
	_, err := g.srv.Spreadsheets.Values.Append(g.sheetID, rangeA1, &sheets.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return classifyGoogle(err)
}

func classifyGoogle(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return classifyStatus(gerr.Code, err)
	}
	return err
}

// Package orderform validates and formats agent order forms and evaluates which
// step of the multi-step form is currently open.
package orderform

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/catalog"
	"github.com/RaikyD/isp-order-intake/internal/domain"
)

const MinAge = 18

var (
	zipRe   = regexp.MustCompile(`^\d{5}$`)
	stateRe = regexp.MustCompile(`^[A-Za-z]{2}$`)
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed, in form order.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid order"
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "invalid order: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Validator checks orders against a catalog.
type Validator struct {
	cat *catalog.Catalog
	loc *time.Location
}

func NewValidator(cat *catalog.Catalog, loc *time.Location) *Validator {
	if loc == nil {
		loc = time.UTC
	}
	return &Validator{cat: cat, loc: loc}
}

// Validate returns a *ValidationError describing every problem, or nil.
func (v *Validator) Validate(o domain.Order, now time.Time) error {
	ve := &ValidationError{}
	v.checkAgent(ve, o)
	v.checkCustomer(ve, o, now)
	v.checkAddress(ve, o)
	v.checkSelection(ve, o)
	v.checkInstall(ve, o.Install, now, false)
	return ve.orNil()
}

// Canonical rewrites the selected provider to its catalog spelling so storage
// and notifications never carry whatever casing the form sent.
func (v *Validator) Canonical(o domain.Order) domain.Order {
	if spec, ok := v.cat.ProviderByName(o.SelectedProvider); ok {
		o.SelectedProvider = spec.Name
	}
	return o
}

func required(ve *ValidationError, field, value string) bool {
	if strings.TrimSpace(value) == "" {
		ve.add(field, "is required")
		return false
	}
	return true
}

func (v *Validator) checkAgent(ve *ValidationError, o domain.Order) {
	required(ve, "agentName", o.AgentName)
	required(ve, "agentId", o.AgentID)
}

func (v *Validator) checkCustomer(ve *ValidationError, o domain.Order, now time.Time) {
	required(ve, "customerName", o.CustomerName)

	if required(ve, "email", o.Email) {
		if a, err := mail.ParseAddress(o.Email); err != nil || a.Address != strings.TrimSpace(o.Email) {
			ve.add("email", "is not a valid address")
		}
	}
	if required(ve, "phone", o.Phone) {
		if _, ok := NormalizePhone(o.Phone); !ok {
			ve.add("phone", "must have 10 digits")
		}
	}
	if required(ve, "dateOfBirth", o.DateOfBirth) {
		dob, err := ParseDateOfBirth(o.DateOfBirth)
		switch {
		case err != nil:
			ve.add("dateOfBirth", "must be YYYY-MM-DD")
		case dob.After(now):
			ve.add("dateOfBirth", "is in the future")
		case Age(dob, now.In(v.loc)) < MinAge:
			ve.add("dateOfBirth", "customer must be at least %d", MinAge)
		}
	}
	if required(ve, "ssn", o.SSN) {
		if d := digits(o.SSN); len(d) == 0 || len(d) > 9 {
			ve.add("ssn", "must have 1 to 9 digits")
		}
	}
}

func (v *Validator) checkAddress(ve *ValidationError, o domain.Order) {
	checkAddr(ve, "", o.ServiceAddress())
	if o.MovedLastYear {
		checkAddr(ve, "prev", o.PreviousAddress())
	}
}

func checkAddr(ve *ValidationError, prefix string, a domain.Address) {
	name := func(f string) string {
		if prefix == "" {
			return f
		}
		return prefix + strings.ToUpper(f[:1]) + f[1:]
	}
	required(ve, name("streetAddress"), a.Street)
	required(ve, name("city"), a.City)
	if required(ve, name("state"), a.State) && !stateRe.MatchString(a.State) {
		ve.add(name("state"), "must be a 2-letter code")
	}
	if required(ve, name("zipCode"), a.Zip) && !zipRe.MatchString(a.Zip) {
		ve.add(name("zipCode"), "must be 5 digits")
	}
}

func (v *Validator) checkSelection(ve *ValidationError, o domain.Order) {
	if !required(ve, "selectedProvider", o.SelectedProvider) {
		required(ve, "selectedPackage", o.SelectedPackage)
		return
	}
	spec, ok := v.cat.ProviderByName(o.SelectedProvider)
	if !ok {
		ve.add("selectedProvider", "unknown provider %q", o.SelectedProvider)
	}
	if required(ve, "selectedPackage", o.SelectedPackage) && ok && len(spec.Packages) > 0 {
		if _, found := v.cat.Package(spec.Name, o.SelectedPackage); !found {
			ve.add("selectedPackage", "%q is not offered by %s", o.SelectedPackage, spec.Name)
		}
	}
	if o.SelectedDirectvPackage != "" {
		if _, found := v.cat.DirectvPackage(o.SelectedDirectvPackage); !found {
			ve.add("selectedDirectvPackage", "unknown package %q", o.SelectedDirectvPackage)
		}
	}
	seen := map[string]bool{}
	for _, a := range o.SelectedAddOns {
		if _, found := v.cat.AddOn(a); !found {
			ve.add("selectedAddOns", "unknown add-on %q", a)
		} else if seen[a] {
			ve.add("selectedAddOns", "duplicate add-on %q", a)
		}
		seen[a] = true
	}
}

// checkInstall validates install preferences. Submissions may omit them; the
// interactive form requires them before the customer step opens.
func (v *Validator) checkInstall(ve *ValidationError, p domain.InstallPrefs, now time.Time, mandatory bool) {
	if p.Date == "" {
		if mandatory {
			ve.add("installDate", "is required")
		}
	} else {
		v.checkInstallDate(ve, p.Date, now)
	}

	if p.TimeWindow == "" {
		if mandatory {
			ve.add("installTimeWindow", "is required")
		}
	} else if _, ok := v.cat.TimeWindow(p.TimeWindow); !ok {
		ve.add("installTimeWindow", "unknown time window %q", p.TimeWindow)
	}
}

func (v *Validator) checkInstallDate(ve *ValidationError, s string, now time.Time) {
	d, err := time.ParseInLocation("2006-01-02", s, v.loc)
	if err != nil {
		ve.add("installDate", "must be YYYY-MM-DD")
		return
	}
	n := now.In(v.loc)
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, v.loc)
	rules := v.cat.Install
	first := today.AddDate(0, 0, rules.MinDaysAhead)
	last := today.AddDate(0, 0, rules.MaxDaysAhead)
	if d.Before(first) || d.After(last) {
		ve.add("installDate", "must be between %s and %s", first.Format("2006-01-02"), last.Format("2006-01-02"))
		return
	}
	if v.cat.ClosedOn(d.Weekday()) {
		ve.add("installDate", "no installations on %s", d.Weekday())
	}
}

package orderform

import (
	"strings"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/domain"
)

type Step string

const (
	StepZip      Step = "zip"
	StepProvider Step = "provider"
	StepPackage  Step = "package"
	StepAddOns   Step = "addons"
	StepInstall  Step = "install"
	StepCustomer Step = "customer"
	StepReview   Step = "review"
)

// Steps in disclosure order.
var Steps = []Step{StepZip, StepProvider, StepPackage, StepAddOns, StepInstall, StepCustomer, StepReview}

// Availability is what the ZIP step produced: the providers offered there.
type Availability struct {
	ZipCode   string   `json:"zipCode"`
	Providers []string `json:"providers"`
}

func (a *Availability) offers(name string) bool {
	if a == nil {
		return false
	}
	for _, p := range a.Providers {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

type State struct {
	Current   Step         `json:"current"`
	Completed []Step       `json:"completed"`
	Visible   []Step       `json:"visible"`
	Errors    []FieldError `json:"errors,omitempty"`
}

// Evaluate walks the steps in order and stops at the first one whose
// requirements the draft does not meet. Later steps stay hidden.
func (v *Validator) Evaluate(draft domain.Order, avail *Availability, now time.Time) State {
	st := State{Completed: []Step{}}
	for _, step := range Steps {
		st.Visible = append(st.Visible, step)
		if step == StepReview {
			st.Current = StepReview
			return st
		}
		ve := &ValidationError{}
		v.checkStep(ve, step, draft, avail, now)
		if len(ve.Fields) > 0 {
			st.Current = step
			st.Errors = ve.Fields
			return st
		}
		st.Completed = append(st.Completed, step)
	}
	return st
}

func (v *Validator) checkStep(ve *ValidationError, step Step, o domain.Order, avail *Availability, now time.Time) {
	switch step {
	case StepZip:
		if required(ve, "zipCode", o.ZipCode) && !zipRe.MatchString(o.ZipCode) {
			ve.add("zipCode", "must be 5 digits")
			return
		}
		if avail == nil || avail.ZipCode != o.ZipCode {
			ve.add("zipCode", "availability not checked")
		} else if len(avail.Providers) == 0 {
			ve.add("zipCode", "no providers available")
		}
	case StepProvider:
		if !required(ve, "selectedProvider", o.SelectedProvider) {
			return
		}
		if !avail.offers(o.SelectedProvider) && !o.ForceProvider {
			ve.add("selectedProvider", "%s is not available at %s", o.SelectedProvider, o.ZipCode)
		}
	case StepPackage:
		if !required(ve, "selectedPackage", o.SelectedPackage) {
			return
		}
		spec, ok := v.cat.ProviderByName(o.SelectedProvider)
		if ok && len(spec.Packages) > 0 {
			if _, found := v.cat.Package(spec.Name, o.SelectedPackage); !found {
				ve.add("selectedPackage", "%q is not offered by %s", o.SelectedPackage, spec.Name)
			}
		}
	case StepAddOns:
		// optional step: only unknown values block it
		sel := &ValidationError{}
		v.checkSelection(sel, o)
		for _, f := range sel.Fields {
			if f.Field == "selectedAddOns" || f.Field == "selectedDirectvPackage" {
				ve.Fields = append(ve.Fields, f)
			}
		}
	case StepInstall:
		v.checkInstall(ve, o.Install, now, true)
	case StepCustomer:
		v.checkAgent(ve, o)
		v.checkCustomer(ve, o, now)
		v.checkAddress(ve, o)
	}
}

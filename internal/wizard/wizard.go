// Package wizard implements the multi-step intake state machine.
// Intermediate steps never persist data; only the final step's
// explicit submit hands the accumulated field values to the
// submission orchestrator.
package wizard

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sells-group/intake-cli/internal/intake"
	"github.com/sells-group/intake-cli/internal/model"
)

// NavigationMode selects how steps may be reached.
type NavigationMode string

const (
	// NavigationLinear permits only Next/Previous movement.
	NavigationLinear NavigationMode = "linear"
	// NavigationTabs additionally permits direct jumps via GoTo.
	NavigationTabs NavigationMode = "tabs"
)

// Step names, in order.
var stepNames = []string{
	"contact_details",
	"professional",
	"organization_location",
	"administrative_assistant",
}

// ErrNotLastStep is returned when Submit is called before the final
// step is active.
var ErrNotLastStep = errors.New("wizard: submit only permitted on the last step")

// ErrJumpNotAllowed is returned by GoTo in linear navigation mode.
var ErrJumpNotAllowed = errors.New("wizard: direct step jumps require tabs navigation")

// Submitter consumes the accumulated field values on final submit.
type Submitter interface {
	Submit(ctx context.Context, fields model.IntakeFields) (string, error)
}

// Controller holds the ordered steps, the active step, and the
// per-field form values. It is safe for concurrent use.
type Controller struct {
	mu        sync.Mutex
	mode      NavigationMode
	active    int
	values    map[string]string
	errors    map[string]string
	submitter Submitter
	inFlight  bool
}

// New creates a Controller at step 0 with empty values.
func New(mode NavigationMode, submitter Submitter) *Controller {
	if mode != NavigationTabs {
		mode = NavigationLinear
	}
	return &Controller{
		mode:      mode,
		values:    make(map[string]string),
		errors:    make(map[string]string),
		submitter: submitter,
	}
}

// Steps returns the ordered step names.
func (c *Controller) Steps() []string {
	out := make([]string, len(stepNames))
	copy(out, stepNames)
	return out
}

// Active returns the active step index.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Next advances one step, bounded at the last step.
func (c *Controller) Next() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active < len(stepNames)-1 {
		c.active++
	}
}

// Previous moves back one step, bounded at the first step.
func (c *Controller) Previous() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active > 0 {
		c.active--
	}
}

// GoTo jumps directly to a step. Permitted only in tabs navigation;
// out-of-range indices are clamped to the valid range.
func (c *Controller) GoTo(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != NavigationTabs {
		return ErrJumpNotAllowed
	}
	if index < 0 {
		index = 0
	}
	if index > len(stepNames)-1 {
		index = len(stepNames) - 1
	}
	c.active = index
	return nil
}

// SetField records a field value and re-validates the active step.
// Validation never blocks navigation; it only gates the final submit.
func (c *Controller) SetField(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] = value
	c.validateActiveLocked()
}

// Field returns the current value of a field.
func (c *Controller) Field(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[name]
}

// FieldErrors returns the validation errors for the active step.
func (c *Controller) FieldErrors() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.errors))
	for k, v := range c.errors {
		out[k] = v
	}
	return out
}

// stepFields maps each step to the fields it owns, for per-step
// validation.
var stepFields = [][]string{
	{"first_name", "last_name", "title", "degree", "email", "phone", "mobile", "fax"},
	{"specialty_name", "occupation_name", "department_name"},
	{"organization_name", "organization_type_name", "organization_type_other",
		"address_line1", "address_line2", "postal_code",
		"country_name", "state_name", "city_name"},
	{"assistant_name", "assistant_email", "assistant_phone"},
}

var digitsOnly = regexp.MustCompile(`^[0-9]+$`)

// phoneFields are validated as digit-only when non-blank.
var phoneFields = map[string]bool{
	"phone":           true,
	"mobile":          true,
	"fax":             true,
	"assistant_phone": true,
}

// requiredFields must be non-blank at submit. First and last name are
// the only mandatory fields.
var requiredFields = []string{"first_name", "last_name"}

func (c *Controller) validateActiveLocked() {
	c.errors = validateStep(c.active, c.values)
}

func validateStep(step int, values map[string]string) map[string]string {
	errs := make(map[string]string)
	if step < 0 || step >= len(stepFields) {
		return errs
	}
	for _, f := range stepFields[step] {
		v := strings.TrimSpace(values[f])
		if step == 0 {
			for _, req := range requiredFields {
				if f == req && v == "" {
					errs[f] = "required"
				}
			}
		}
		if phoneFields[f] && v != "" && !digitsOnly.MatchString(v) {
			errs[f] = "digits only"
		}
	}
	return errs
}

// validateAll runs every step's validation for the submit gate.
func validateAll(values map[string]string) map[string]string {
	errs := make(map[string]string)
	for i := range stepFields {
		for k, v := range validateStep(i, values) {
			errs[k] = v
		}
	}
	return errs
}

// Submit hands the accumulated fields to the orchestrator. It is a
// no-op unless the last step is active, rejects overlapping calls,
// and resets to step 0 only on success; on failure the step position
// and values are preserved so the user can correct and resubmit.
func (c *Controller) Submit(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.active != len(stepNames)-1 {
		c.mu.Unlock()
		return "", ErrNotLastStep
	}
	if c.inFlight {
		c.mu.Unlock()
		return "", intake.ErrSubmitInFlight
	}
	if errs := validateAll(c.values); len(errs) > 0 {
		c.errors = errs
		c.mu.Unlock()
		return "", &intake.ValidationError{Fields: errs}
	}
	c.inFlight = true
	fields := fieldsFromValues(c.values)
	c.mu.Unlock()

	id, err := c.submitter.Submit(ctx, fields)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if err != nil {
		return "", err
	}
	c.resetLocked()
	return id, nil
}

// Reset discards all values and returns to step 0, as when the view
// unmounts.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	c.active = 0
	c.values = make(map[string]string)
	c.errors = make(map[string]string)
}

// fieldsFromValues converts the raw field-value mapping into the
// typed field set the orchestrator consumes.
func fieldsFromValues(values map[string]string) model.IntakeFields {
	f := model.IntakeFields{
		FirstName:             values["first_name"],
		LastName:              values["last_name"],
		Title:                 values["title"],
		Degree:                values["degree"],
		Email:                 values["email"],
		Phone:                 values["phone"],
		Mobile:                values["mobile"],
		Fax:                   values["fax"],
		SpecialtyName:         values["specialty_name"],
		OccupationName:        values["occupation_name"],
		DepartmentName:        values["department_name"],
		OrganizationName:      values["organization_name"],
		OrganizationTypeName:  values["organization_type_name"],
		OrganizationTypeOther: values["organization_type_other"],
		AddressLine1:          values["address_line1"],
		AddressLine2:          values["address_line2"],
		PostalCode:            values["postal_code"],
		CountryName:           values["country_name"],
		StateName:             values["state_name"],
		CityName:              values["city_name"],
		AssistantName:         values["assistant_name"],
		AssistantEmail:        values["assistant_email"],
		AssistantPhone:        values["assistant_phone"],
		Status:                model.RecordStatus(values["status"]),
	}

	f.IsInvestigator = parseBool(values["is_investigator"])
	if f.IsInvestigator {
		f.Investigator = model.InvestigatorInput{
			PrincipalExperience: parseBool(values["principal_experience"]),
			PrincipalInterest:   parseBool(values["principal_interest"]),
			PrincipalNotes:      values["principal_notes"],
			SubExperience:       parseBool(values["sub_experience"]),
			SubInterest:         parseBool(values["sub_interest"]),
			SubNotes:            values["sub_notes"],
			TrainingCompleted:   parseBool(values["training_completed"]),
			Notes:               values["investigator_notes"],
		}
		if raw := strings.TrimSpace(values["training_date"]); raw != "" {
			if t, err := time.Parse("2006-01-02", raw); err == nil {
				f.Investigator.TrainingDate = &t
			}
		}
	}
	return f
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(v))
	return b
}

// Package intake implements the submission orchestrator: the single
// write path that turns an accumulated wizard field set into a
// persisted contact record plus its optional investigator profile.
package intake

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/db"
	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/session"
	"github.com/sells-group/intake-cli/internal/store"
)

// ReferenceResolver resolves a free-text label within a collection to
// a reference id, creating the row when absent. A blank label
// resolves to nil.
type ReferenceResolver interface {
	Resolve(ctx context.Context, collection model.Collection, label string, parentID *int64) (*int64, error)
}

// Orchestrator performs the final-step submission: uniqueness
// validation, reference resolution, address derivation, and the
// contact + profile writes. The submission path is strictly
// sequential and never retried automatically.
type Orchestrator struct {
	store    store.Store
	sessions session.Provider
	resolver ReferenceResolver

	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates an Orchestrator.
func New(st store.Store, sessions session.Provider, resolver ReferenceResolver) *Orchestrator {
	return &Orchestrator{
		store:    st,
		sessions: sessions,
		resolver: resolver,
		inFlight: make(map[string]bool),
	}
}

var digitsOnly = regexp.MustCompile(`^[0-9]+$`)

// ValidateFields applies the submit-gating validation: first and last
// name are required; phone fields must be digit-only when present.
// Returns nil when the field set is valid.
func ValidateFields(fields model.IntakeFields) *ValidationError {
	errs := make(map[string]string)
	if strings.TrimSpace(fields.FirstName) == "" {
		errs["first_name"] = "required"
	}
	if strings.TrimSpace(fields.LastName) == "" {
		errs["last_name"] = "required"
	}
	phones := map[string]string{
		"phone":           fields.Phone,
		"mobile":          fields.Mobile,
		"fax":             fields.Fax,
		"assistant_phone": fields.AssistantPhone,
	}
	for name, v := range phones {
		v = strings.TrimSpace(v)
		if v != "" && !digitsOnly.MatchString(v) {
			errs[name] = "digits only"
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// Submit runs the submission sequence, short-circuiting on the first
// failure. On full success it returns the new contact id. A failed
// profile write after a committed contact is reported as
// *ProfilePersistenceError so the caller does not retry the whole
// form. Overlapping submissions by the same user are rejected with
// ErrSubmitInFlight.
func (o *Orchestrator) Submit(ctx context.Context, fields model.IntakeFields) (string, error) {
	if vErr := ValidateFields(fields); vErr != nil {
		return "", vErr
	}

	// Step 1: normalize email; blank means absent.
	email := strings.TrimSpace(fields.Email)

	// Step 2: duplicate pre-check.
	if email != "" {
		existingID, err := o.store.FindContactIDByEmail(ctx, email)
		if err != nil {
			return "", &PersistenceError{Entity: "contact", Err: err}
		}
		if existingID != "" {
			return "", &DuplicateEmailError{Email: email}
		}
	}

	// Step 3: resolve the creator identity.
	sess, err := o.sessions.CurrentSession(ctx)
	if err != nil {
		return "", &PersistenceError{Entity: "session", Err: err}
	}
	if sess == nil {
		return "", &NotAuthenticatedError{}
	}

	if !o.acquire(sess.UserID) {
		return "", ErrSubmitInFlight
	}
	defer o.release(sess.UserID)

	log := zap.L().With(zap.String("creator", sess.UserID))

	// Step 4: resolve free-text references; blanks resolve to nil.
	rec := model.ContactRecord{
		FirstName:      strings.TrimSpace(fields.FirstName),
		LastName:       strings.TrimSpace(fields.LastName),
		Title:          strings.TrimSpace(fields.Title),
		Degree:         strings.TrimSpace(fields.Degree),
		Phone:          strings.TrimSpace(fields.Phone),
		Mobile:         strings.TrimSpace(fields.Mobile),
		Fax:            strings.TrimSpace(fields.Fax),
		AssistantName:  strings.TrimSpace(fields.AssistantName),
		AssistantEmail: strings.TrimSpace(fields.AssistantEmail),
		AssistantPhone: strings.TrimSpace(fields.AssistantPhone),
		CreatedBy:      sess.UserID,
	}
	if email != "" {
		rec.Email = &email
	}

	if rec.OrganizationID, err = o.resolver.Resolve(ctx, model.CollectionOrganization, fields.OrganizationName, nil); err != nil {
		return "", err
	}
	if rec.OrganizationTypeID, err = o.resolver.Resolve(ctx, model.CollectionOrganizationType, fields.OrganizationTypeName, nil); err != nil {
		return "", err
	}
	if rec.SpecialtyID, err = o.resolver.Resolve(ctx, model.CollectionSpecialty, fields.SpecialtyName, nil); err != nil {
		return "", err
	}
	if rec.OccupationID, err = o.resolver.Resolve(ctx, model.CollectionOccupation, fields.OccupationName, nil); err != nil {
		return "", err
	}
	if rec.DepartmentID, err = o.resolver.Resolve(ctx, model.CollectionDepartment, fields.DepartmentName, nil); err != nil {
		return "", err
	}
	if rec.CountryID, err = o.resolver.Resolve(ctx, model.CollectionCountry, fields.CountryName, nil); err != nil {
		return "", err
	}
	// State is scoped to the resolved country, city to the resolved
	// state, so a new country's states land under the right parent.
	if rec.StateID, err = o.resolver.Resolve(ctx, model.CollectionStateRegion, fields.StateName, rec.CountryID); err != nil {
		return "", err
	}
	if rec.CityID, err = o.resolver.Resolve(ctx, model.CollectionCity, fields.CityName, rec.StateID); err != nil {
		return "", err
	}

	// Step 5: derive the composite address.
	rec.Address = deriveAddress(fields)

	// Record status is admin-only; everyone else gets the default.
	rec.Status = model.RecordStatusNew
	if fields.Status != "" && fields.Status.Valid() {
		isAdmin, adminErr := o.sessions.IsAdmin(ctx, sess.UserID)
		if adminErr != nil {
			log.Warn("intake: admin lookup failed, keeping default status", zap.Error(adminErr))
		} else if isAdmin {
			rec.Status = fields.Status
		}
	}

	// Step 6/7: insert the contact; a uniqueness violation here means
	// we lost a race with a concurrent submit of the same email.
	if err := o.store.InsertContact(ctx, &rec); err != nil {
		if db.IsUniqueViolation(err) {
			return "", &DuplicateEmailError{Email: email}
		}
		return "", &PersistenceError{Entity: "contact", Err: err}
	}

	log.Info("intake: contact created",
		zap.String("contact_id", rec.ID),
		zap.Bool("investigator", fields.IsInvestigator),
	)

	// Step 8: optional investigator profile. The contact above stays
	// committed even if this fails; report the partial success
	// distinctly.
	if fields.IsInvestigator {
		profile := model.InvestigatorProfile{
			ContactID:           rec.ID,
			PrincipalExperience: fields.Investigator.PrincipalExperience,
			PrincipalInterest:   fields.Investigator.PrincipalInterest,
			PrincipalNotes:      strings.TrimSpace(fields.Investigator.PrincipalNotes),
			SubExperience:       fields.Investigator.SubExperience,
			SubInterest:         fields.Investigator.SubInterest,
			SubNotes:            strings.TrimSpace(fields.Investigator.SubNotes),
			TrainingCompleted:   fields.Investigator.TrainingCompleted,
			TrainingDate:        fields.Investigator.TrainingDate,
			Notes:               strings.TrimSpace(fields.Investigator.Notes),
		}
		if err := o.store.InsertInvestigatorProfile(ctx, &profile); err != nil {
			log.Error("intake: investigator profile failed after contact commit",
				zap.String("contact_id", rec.ID), zap.Error(err))
			return rec.ID, &ProfilePersistenceError{ContactID: rec.ID, Err: err}
		}
	}

	return rec.ID, nil
}

func (o *Orchestrator) acquire(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[userID] {
		return false
	}
	o.inFlight[userID] = true
	return true
}

func (o *Orchestrator) release(userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, userID)
}

// deriveAddress concatenates the organization-type label (the
// free-text "other" value when the type is "Other"), the address
// lines, and a labeled postal code, one part per line, omitting
// blanks. All parts blank derives no address.
func deriveAddress(fields model.IntakeFields) *string {
	var parts []string

	typeLabel := strings.TrimSpace(fields.OrganizationTypeName)
	if strings.EqualFold(typeLabel, "Other") {
		if other := strings.TrimSpace(fields.OrganizationTypeOther); other != "" {
			typeLabel = other
		}
	}
	if typeLabel != "" {
		parts = append(parts, typeLabel)
	}
	if v := strings.TrimSpace(fields.AddressLine1); v != "" {
		parts = append(parts, v)
	}
	if v := strings.TrimSpace(fields.AddressLine2); v != "" {
		parts = append(parts, v)
	}
	if v := strings.TrimSpace(fields.PostalCode); v != "" {
		parts = append(parts, "Postal code: "+v)
	}

	if len(parts) == 0 {
		return nil
	}
	addr := strings.Join(parts, "\n")
	return &addr
}

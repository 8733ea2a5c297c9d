package intake_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intake-cli/internal/intake"
	"github.com/sells-group/intake-cli/internal/lookup"
	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/session"
	"github.com/sells-group/intake-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newOrchestrator(st store.Store, sess *session.Session) *intake.Orchestrator {
	return intake.New(st, &session.StaticProvider{Session: sess}, lookup.New(st))
}

func agentSession() *session.Session {
	return &session.Session{UserID: "u-agent", DisplayName: "Field Agent"}
}

func adminSession() *session.Session {
	return &session.Session{UserID: "u-admin", DisplayName: "Admin", Admin: true}
}

func validFields() model.IntakeFields {
	return model.IntakeFields{
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@example.org",
	}
}

func TestSubmit_FullSuccess(t *testing.T) {
	st := newTestStore(t)
	orch := newOrchestrator(st, agentSession())
	ctx := context.Background()

	trainingDate := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	fields := model.IntakeFields{
		FirstName:            "Jane",
		LastName:             "Doe",
		Title:                "Dr.",
		Email:                "jane@example.org",
		Phone:                "5551234",
		SpecialtyName:        "Cardiology",
		OccupationName:       "Physician",
		OrganizationName:     "Acme Hospital",
		OrganizationTypeName: "Hospital",
		AddressLine1:         "Main St 1",
		PostalCode:           "80331",
		CountryName:          "Germany",
		StateName:            "Bavaria",
		CityName:             "Munich",
		IsInvestigator:       true,
		Investigator: model.InvestigatorInput{
			PrincipalExperience: true,
			TrainingCompleted:   true,
			TrainingDate:        &trainingDate,
		},
	}

	contactID, err := orch.Submit(ctx, fields)
	require.NoError(t, err)
	require.NotEmpty(t, contactID)

	detail, err := st.GetContactDetail(ctx, contactID)
	require.NoError(t, err)
	require.NotNil(t, detail)

	assert.Equal(t, "Jane", detail.Contact.FirstName)
	assert.Equal(t, "Acme Hospital", detail.OrganizationName)
	assert.Equal(t, "Germany", detail.CountryName)
	assert.Equal(t, "Bavaria", detail.StateName)
	assert.Equal(t, "Munich", detail.CityName)
	assert.Equal(t, model.RecordStatusNew, detail.Contact.Status)
	assert.Equal(t, "u-agent", detail.Contact.CreatedBy)

	require.NotNil(t, detail.Contact.Address)
	assert.Equal(t, "Hospital\nMain St 1\nPostal code: 80331", *detail.Contact.Address)

	require.NotNil(t, detail.Profile)
	assert.True(t, detail.Profile.PrincipalExperience)
	assert.True(t, detail.Profile.TrainingCompleted)

	// The state row was created under its country, the city under its
	// state.
	country, err := st.FindReferenceByName(ctx, model.CollectionCountry, "Germany", nil)
	require.NoError(t, err)
	require.NotNil(t, country)
	state, err := st.FindReferenceByName(ctx, model.CollectionStateRegion, "Bavaria", &country.ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	city, err := st.FindReferenceByName(ctx, model.CollectionCity, "Munich", &state.ID)
	require.NoError(t, err)
	require.NotNil(t, city)
}

func TestSubmit_ReusesExistingReferences(t *testing.T) {
	st := newTestStore(t)
	orch := newOrchestrator(st, agentSession())
	ctx := context.Background()

	orgID, err := st.InsertReference(ctx, model.CollectionOrganization, "Acme Hospital", nil)
	require.NoError(t, err)

	fields := validFields()
	fields.OrganizationName = "  acme hospital  "
	contactID, err := orch.Submit(ctx, fields)
	require.NoError(t, err)

	detail, err := st.GetContactDetail(ctx, contactID)
	require.NoError(t, err)
	require.NotNil(t, detail.Contact.OrganizationID)
	assert.Equal(t, orgID, *detail.Contact.OrganizationID)

	orgs, err := st.ListReferences(ctx, model.CollectionOrganization)
	require.NoError(t, err)
	assert.Len(t, orgs, 1)
}

func TestSubmit_ValidationFailure(t *testing.T) {
	orch := newOrchestrator(newTestStore(t), agentSession())

	fields := model.IntakeFields{
		FirstName: "  ",
		LastName:  "Doe",
		Phone:     "call me",
	}
	_, err := orch.Submit(context.Background(), fields)

	var vErr *intake.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "required", vErr.Fields["first_name"])
	assert.Equal(t, "digits only", vErr.Fields["phone"])
}

func TestSubmit_DuplicateEmailPrecheck(t *testing.T) {
	st := newTestStore(t)
	orch := newOrchestrator(st, agentSession())
	ctx := context.Background()

	_, err := orch.Submit(ctx, validFields())
	require.NoError(t, err)

	fields := validFields()
	fields.Email = "JANE@example.org"
	_, err = orch.Submit(ctx, fields)

	var dup *intake.DuplicateEmailError
	require.ErrorAs(t, err, &dup)

	// Nothing further was written.
	all, err := st.ListContacts(ctx, store.ContactFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSubmit_BlankEmailsNeverCollide(t *testing.T) {
	orch := newOrchestrator(newTestStore(t), agentSession())
	ctx := context.Background()

	for _, name := range []string{"First", "Second"} {
		fields := model.IntakeFields{FirstName: name, LastName: "NoEmail"}
		_, err := orch.Submit(ctx, fields)
		require.NoError(t, err)
	}
}

func TestSubmit_NoSession(t *testing.T) {
	orch := newOrchestrator(newTestStore(t), nil)

	_, err := orch.Submit(context.Background(), validFields())

	var authErr *intake.NotAuthenticatedError
	require.ErrorAs(t, err, &authErr)
}

func TestSubmit_StatusAdminGated(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	fields := validFields()
	fields.Status = model.RecordStatusReviewed
	contactID, err := newOrchestrator(st, agentSession()).Submit(ctx, fields)
	require.NoError(t, err)

	detail, err := st.GetContactDetail(ctx, contactID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordStatusNew, detail.Contact.Status)

	fields = validFields()
	fields.Email = "admin-entry@example.org"
	fields.Status = model.RecordStatusReviewed
	contactID, err = newOrchestrator(st, adminSession()).Submit(ctx, fields)
	require.NoError(t, err)

	detail, err = st.GetContactDetail(ctx, contactID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordStatusReviewed, detail.Contact.Status)
}

func TestSubmit_OtherOrganizationTypeInAddress(t *testing.T) {
	st := newTestStore(t)
	orch := newOrchestrator(st, agentSession())
	ctx := context.Background()

	fields := validFields()
	fields.OrganizationTypeName = "Other"
	fields.OrganizationTypeOther = "Mobile Clinic"
	fields.AddressLine1 = "Somewhere 5"

	contactID, err := orch.Submit(ctx, fields)
	require.NoError(t, err)

	detail, err := st.GetContactDetail(ctx, contactID)
	require.NoError(t, err)
	require.NotNil(t, detail.Contact.Address)
	assert.Equal(t, "Mobile Clinic\nSomewhere 5", *detail.Contact.Address)

	// The reference row still records the literal "Other" type.
	assert.Equal(t, "Other", detail.OrganizationTypeName)
}

func TestSubmit_AllAddressPartsBlank(t *testing.T) {
	st := newTestStore(t)
	orch := newOrchestrator(st, agentSession())
	ctx := context.Background()

	contactID, err := orch.Submit(ctx, validFields())
	require.NoError(t, err)

	detail, err := st.GetContactDetail(ctx, contactID)
	require.NoError(t, err)
	assert.Nil(t, detail.Contact.Address)
}

// profileFailStore fails investigator profile writes only.
type profileFailStore struct {
	store.Store
}

func (s *profileFailStore) InsertInvestigatorProfile(ctx context.Context, p *model.InvestigatorProfile) error {
	return errors.New("profile table unavailable")
}

func TestSubmit_ProfileFailureIsPartialSuccess(t *testing.T) {
	st := newTestStore(t)
	wrapped := &profileFailStore{Store: st}
	orch := intake.New(wrapped, &session.StaticProvider{Session: agentSession()}, lookup.New(wrapped))
	ctx := context.Background()

	fields := validFields()
	fields.IsInvestigator = true

	contactID, err := orch.Submit(ctx, fields)

	var profileErr *intake.ProfilePersistenceError
	require.ErrorAs(t, err, &profileErr)
	require.NotEmpty(t, contactID)
	assert.Equal(t, contactID, profileErr.ContactID)

	// The contact stayed committed.
	detail, dErr := st.GetContactDetail(ctx, contactID)
	require.NoError(t, dErr)
	require.NotNil(t, detail)
	assert.Nil(t, detail.Profile)
}

// blockingInsertStore parks InsertContact until released.
type blockingInsertStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingInsertStore) InsertContact(ctx context.Context, rec *model.ContactRecord) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.Store.InsertContact(ctx, rec)
}

func TestSubmit_RejectsOverlappingSubmitSameUser(t *testing.T) {
	bs := &blockingInsertStore{
		Store:   newTestStore(t),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	orch := intake.New(bs, &session.StaticProvider{Session: agentSession()}, lookup.New(bs))
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := orch.Submit(ctx, validFields())
		assert.NoError(t, err)
	}()
	<-bs.entered

	fields := validFields()
	fields.Email = "second@example.org"
	_, err := orch.Submit(ctx, fields)
	require.ErrorIs(t, err, intake.ErrSubmitInFlight)

	close(bs.release)
	<-done
}

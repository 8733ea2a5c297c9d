package model

import "time"

// RecordStatus is the administrative review state of a contact record.
// Only admin sessions may set it at intake; everyone else gets the
// default.
type RecordStatus string

const (
	RecordStatusNew      RecordStatus = "new"
	RecordStatusReviewed RecordStatus = "reviewed"
	RecordStatusArchived RecordStatus = "archived"
)

// Valid reports whether s is part of the status vocabulary.
func (s RecordStatus) Valid() bool {
	switch s {
	case RecordStatusNew, RecordStatusReviewed, RecordStatusArchived:
		return true
	default:
		return false
	}
}

// IntakeFields is the full field set accumulated by the wizard and
// handed to the submission orchestrator. Reference fields are
// free-text labels resolved at submit time; blanks resolve to no
// reference.
type IntakeFields struct {
	// Step 0: contact details.
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Title     string `json:"title"`
	Degree    string `json:"degree"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Mobile    string `json:"mobile"`
	Fax       string `json:"fax"`

	// Step 1: professional / specialty.
	SpecialtyName  string `json:"specialty_name"`
	OccupationName string `json:"occupation_name"`
	DepartmentName string `json:"department_name"`

	// Step 2: organization / location.
	OrganizationName      string `json:"organization_name"`
	OrganizationTypeName  string `json:"organization_type_name"`
	OrganizationTypeOther string `json:"organization_type_other"`
	AddressLine1          string `json:"address_line1"`
	AddressLine2          string `json:"address_line2"`
	PostalCode            string `json:"postal_code"`
	CountryName           string `json:"country_name"`
	StateName             string `json:"state_name"`
	CityName              string `json:"city_name"`

	// Step 3: administrative assistant.
	AssistantName  string `json:"assistant_name"`
	AssistantEmail string `json:"assistant_email"`
	AssistantPhone string `json:"assistant_phone"`

	// Admin-only; ignored for non-admin sessions.
	Status RecordStatus `json:"status,omitempty"`

	// Investigator profile block.
	IsInvestigator bool               `json:"is_investigator"`
	Investigator   InvestigatorInput  `json:"investigator,omitempty"`
}

// InvestigatorInput carries the investigator-profile fields collected
// when the intake flags the contact as an investigator.
type InvestigatorInput struct {
	PrincipalExperience bool       `json:"principal_experience"`
	PrincipalInterest   bool       `json:"principal_interest"`
	PrincipalNotes      string     `json:"principal_notes"`
	SubExperience       bool       `json:"sub_experience"`
	SubInterest         bool       `json:"sub_interest"`
	SubNotes            string     `json:"sub_notes"`
	TrainingCompleted   bool       `json:"training_completed"`
	TrainingDate        *time.Time `json:"training_date,omitempty"`
	Notes               string     `json:"notes"`
}

// ContactRecord is the persisted contact entity. Reference fields are
// nullable foreign keys into reference_entities. Created exactly once
// by the orchestrator; never updated or deleted by this system.
type ContactRecord struct {
	ID        string  `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Title     string  `json:"title,omitempty"`
	Degree    string  `json:"degree,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     string  `json:"phone,omitempty"`
	Mobile    string  `json:"mobile,omitempty"`
	Fax       string  `json:"fax,omitempty"`

	// Derived composite address text; nil when every part was blank.
	Address *string `json:"address,omitempty"`

	OrganizationID     *int64 `json:"organization_id,omitempty"`
	OrganizationTypeID *int64 `json:"organization_type_id,omitempty"`
	SpecialtyID        *int64 `json:"specialty_id,omitempty"`
	OccupationID       *int64 `json:"occupation_id,omitempty"`
	DepartmentID       *int64 `json:"department_id,omitempty"`
	CountryID          *int64 `json:"country_id,omitempty"`
	StateID            *int64 `json:"state_id,omitempty"`
	CityID             *int64 `json:"city_id,omitempty"`

	AssistantName  string `json:"assistant_name,omitempty"`
	AssistantEmail string `json:"assistant_email,omitempty"`
	AssistantPhone string `json:"assistant_phone,omitempty"`

	Status    RecordStatus `json:"status"`
	CreatedBy string       `json:"created_by"`
	CreatedAt time.Time    `json:"created_at"`
}

// InvestigatorProfile is the optional one-to-one companion of a
// contact. It exists iff the intake flagged the contact as an
// investigator; ContactID references an already-persisted contact.
type InvestigatorProfile struct {
	ContactID           string     `json:"contact_id"`
	PrincipalExperience bool       `json:"principal_experience"`
	PrincipalInterest   bool       `json:"principal_interest"`
	PrincipalNotes      string     `json:"principal_notes,omitempty"`
	SubExperience       bool       `json:"sub_experience"`
	SubInterest         bool       `json:"sub_interest"`
	SubNotes            string     `json:"sub_notes,omitempty"`
	TrainingCompleted   bool       `json:"training_completed"`
	TrainingDate        *time.Time `json:"training_date,omitempty"`
	Notes               string     `json:"notes,omitempty"`
}

// ContactDetail is the read contract consumed by the listing and
// export surfaces: every scalar field plus resolved names (not ids)
// for each reference foreign key, the creator's display name, and the
// investigator profile when present.
type ContactDetail struct {
	Contact ContactRecord `json:"contact"`

	OrganizationName     string `json:"organization_name,omitempty"`
	OrganizationTypeName string `json:"organization_type_name,omitempty"`
	SpecialtyName        string `json:"specialty_name,omitempty"`
	OccupationName       string `json:"occupation_name,omitempty"`
	DepartmentName       string `json:"department_name,omitempty"`
	CountryName          string `json:"country_name,omitempty"`
	StateName            string `json:"state_name,omitempty"`
	CityName             string `json:"city_name,omitempty"`
	CreatorName          string `json:"creator_name,omitempty"`

	Profile *InvestigatorProfile `json:"profile,omitempty"`
}

package model

// Collection identifies a reference collection. Reference rows are
// shared lookup entries (countries, organizations, specialties, ...)
// reused across many contacts.
type Collection string

const (
	CollectionOrganization     Collection = "organization"
	CollectionOrganizationType Collection = "organization_type"
	CollectionSpecialty        Collection = "specialty"
	CollectionOccupation       Collection = "occupation"
	CollectionDepartment       Collection = "department"
	CollectionCountry          Collection = "country"
	CollectionStateRegion      Collection = "state_region"
	CollectionCity             Collection = "city"
)

// IndependentCollections are the collections whose option sets do not
// depend on a parent selection. They are preloaded together.
var IndependentCollections = []Collection{
	CollectionOrganization,
	CollectionOrganizationType,
	CollectionSpecialty,
	CollectionOccupation,
	CollectionDepartment,
	CollectionCountry,
}

// Parent returns the collection this one is scoped under, or "" when
// the collection is unscoped.
func (c Collection) Parent() Collection {
	switch c {
	case CollectionStateRegion:
		return CollectionCountry
	case CollectionCity:
		return CollectionStateRegion
	default:
		return ""
	}
}

// Valid reports whether c names a known collection.
func (c Collection) Valid() bool {
	switch c {
	case CollectionOrganization, CollectionOrganizationType,
		CollectionSpecialty, CollectionOccupation, CollectionDepartment,
		CollectionCountry, CollectionStateRegion, CollectionCity:
		return true
	default:
		return false
	}
}

// ReferenceEntity is one row of a reference collection. Names are
// unique case-insensitively within a collection (and within the parent
// scope for parent-scoped collections). Rows are created lazily and
// never mutated or deleted.
type ReferenceEntity struct {
	ID         int64      `json:"id"`
	Collection Collection `json:"collection"`
	Name       string     `json:"name"`
	ParentID   *int64     `json:"parent_id,omitempty"`
}

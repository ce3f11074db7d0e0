package model

import "time"

// Predicate is a normalized filter set. Zero-valued fields do not constrain.
// Listing and every aggregation build their WHERE clause from the same value.
type Predicate struct {
	Q               string // substring over title, company or location
	Location        string
	Company         string
	WorkMode        WorkMode
	ExperienceLevel ExperienceLevel
	RoleCategory    RoleCategory
	CreatedFrom     *time.Time // inclusive
	CreatedTo       *time.Time // inclusive
}

// Page is a clamped pagination window.
type Page struct {
	Take int
	Skip int
}

// Facet names a column that can be grouped and counted.
type Facet string

const (
	FacetSource          Facet = "source"
	FacetRoleCategory    Facet = "roleCategory"
	FacetWorkMode        Facet = "workMode"
	FacetExperienceLevel Facet = "experienceLevel"
)

// FacetCount is one group of a grouped count.
type FacetCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DayCount is one bucket of a daily time series. Day is YYYY-MM-DD in UTC.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

package model

import (
	"context"
	"time"
)

// WorkMode is where the work happens.
type WorkMode string

const (
	WorkModeRemote  WorkMode = "REMOTE"
	WorkModeOnsite  WorkMode = "ONSITE"
	WorkModeHybrid  WorkMode = "HYBRID"
	WorkModeUnknown WorkMode = "UNKNOWN"
)

// ExperienceLevel is the seniority a posting asks for.
type ExperienceLevel string

const (
	ExperienceIntern  ExperienceLevel = "INTERN"
	ExperienceJunior  ExperienceLevel = "JUNIOR"
	ExperienceMid     ExperienceLevel = "MID"
	ExperienceSenior  ExperienceLevel = "SENIOR"
	ExperienceLead    ExperienceLevel = "LEAD"
	ExperienceUnknown ExperienceLevel = "UNKNOWN"
)

// RoleCategory is the engineering discipline of a posting.
type RoleCategory string

const (
	RoleBackend   RoleCategory = "BACKEND"
	RoleFrontend  RoleCategory = "FRONTEND"
	RoleFullstack RoleCategory = "FULLSTACK"
	RoleData      RoleCategory = "DATA"
	RoleML        RoleCategory = "ML"
	RoleDevOps    RoleCategory = "DEVOPS"
	RoleSecurity  RoleCategory = "SECURITY"
	RoleMobile    RoleCategory = "MOBILE"
	RoleQA        RoleCategory = "QA"
	RolePM        RoleCategory = "PM"
	RoleOther     RoleCategory = "OTHER"
)

// Valid reports whether m is one of the known work modes.
func (m WorkMode) Valid() bool {
	switch m {
	case WorkModeRemote, WorkModeOnsite, WorkModeHybrid, WorkModeUnknown:
		return true
	}
	return false
}

// Valid reports whether l is one of the known experience levels.
func (l ExperienceLevel) Valid() bool {
	switch l {
	case ExperienceIntern, ExperienceJunior, ExperienceMid, ExperienceSenior, ExperienceLead, ExperienceUnknown:
		return true
	}
	return false
}

// Valid reports whether c is one of the known role categories.
func (c RoleCategory) Valid() bool {
	switch c {
	case RoleBackend, RoleFrontend, RoleFullstack, RoleData, RoleML, RoleDevOps,
		RoleSecurity, RoleMobile, RoleQA, RolePM, RoleOther:
		return true
	}
	return false
}

// RawListing is a source-specific listing before normalization. Adapters copy
// fields verbatim; trimming and date parsing happen in the normalizer.
type RawListing struct {
	ID       string // origin-native identifier, may be empty
	Slug     string // fallback identifier when ID is absent
	Title    string
	Company  string
	Location string
	URL      string
	Date     string // origin date string, any supported layout
	Epoch    int64  // unix milliseconds, used when Date is empty
}

// JobRecord is the canonical posting shape flowing through the pipeline.
type JobRecord struct {
	Source          string          `json:"source" validate:"required,max=50"`
	SourceJobID     string          `json:"sourceJobId,omitempty" validate:"max=200"`
	Title           string          `json:"title" validate:"required,max=300"`
	Company         string          `json:"company,omitempty" validate:"max=200"`
	Location        string          `json:"location,omitempty" validate:"max=200"`
	URL             string          `json:"url" validate:"required,url"`
	PostedAt        *time.Time      `json:"postedAt,omitempty"`
	WorkMode        WorkMode        `json:"workMode,omitempty" validate:"omitempty,oneof=REMOTE ONSITE HYBRID UNKNOWN"`
	ExperienceLevel ExperienceLevel `json:"experienceLevel,omitempty" validate:"omitempty,oneof=INTERN JUNIOR MID SENIOR LEAD UNKNOWN"`
	RoleCategory    RoleCategory    `json:"roleCategory,omitempty" validate:"omitempty,oneof=BACKEND FRONTEND FULLSTACK DATA ML DEVOPS SECURITY MOBILE QA PM OTHER"`
}

// WithDefaults returns a copy of r whose empty classifier fields are set to
// their UNKNOWN/OTHER sentinels.
func (r JobRecord) WithDefaults() JobRecord {
	if r.WorkMode == "" {
		r.WorkMode = WorkModeUnknown
	}
	if r.ExperienceLevel == "" {
		r.ExperienceLevel = ExperienceUnknown
	}
	if r.RoleCategory == "" {
		r.RoleCategory = RoleOther
	}
	return r
}

// StoredJobPost is a JobRecord as persisted. ID and CreatedAt never change once
// the (source, url) pair has been inserted.
type StoredJobPost struct {
	ID string `json:"id"`
	JobRecord
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Batch is the unit of work on the queue. It is redelivered as a whole.
type Batch struct {
	ID        string      `json:"id"`
	Source    string      `json:"source"`
	FetchedAt time.Time   `json:"fetchedAt"`
	Jobs      []JobRecord `json:"jobs"`
}

// DeadLetter is a batch that exhausted its delivery attempts.
type DeadLetter struct {
	ID        string    `json:"id"`
	Batch     Batch     `json:"batch"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError"`
	FailedAt  time.Time `json:"failedAt"`
}

// UpsertResult is what the store reports for a single merged record.
type UpsertResult struct {
	ID        string
	CreatedAt time.Time
	Inserted  bool
}

// IngestResult counts the outcome of merging one batch.
type IngestResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Rejected int `json:"rejected,omitempty"`
}

// BulkResult counts the outcome of the insert-only bulk path.
type BulkResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// JobFetcher fetches raw listings from one external source.
type JobFetcher interface {
	FetchJobs(ctx context.Context) ([]RawListing, error)
}

// Notifier alerts operators about batches parked in the dead-letter state.
type Notifier interface {
	NotifyDeadLetter(ctx context.Context, dl DeadLetter) error
}

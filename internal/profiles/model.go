package profiles

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates no profile exists yet.
	ErrNotFound = errors.New("profiles: not found")
	// ErrInvalidArgument indicates a profile field failed validation.
	ErrInvalidArgument = errors.New("profiles: invalid argument")
	// ErrConflict indicates another profile already uses the email address.
	ErrConflict = errors.New("profiles: conflict")
	// ErrStorage indicates the persistence layer failed.
	ErrStorage = errors.New("profiles: storage failure")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// Profile is the owner's public profile shown next to every pitch.
type Profile struct {
	ID           string    `gorm:"column:id;primaryKey;size:64;not null" json:"id"`
	FirstName    string    `gorm:"column:first_name;size:100;not null" json:"firstName"`
	LastName     string    `gorm:"column:last_name;size:100;not null" json:"lastName"`
	Email        string    `gorm:"column:email;size:254;not null;uniqueIndex" json:"email"`
	Location     string    `gorm:"column:location;size:200;not null" json:"location"`
	LinkedInURL  string    `gorm:"column:linkedin_url;size:1024;not null;default:''" json:"linkedInUrl,omitempty"`
	PortfolioURL string    `gorm:"column:portfolio_url;size:1024;not null;default:''" json:"portfolioUrl,omitempty"`
	PictureURL   string    `gorm:"column:picture_url;size:1024;not null;default:''" json:"profilePicture,omitempty"`
	PictureKey   string    `gorm:"column:picture_key;size:512;not null;default:''" json:"-"`
	ResumeURL    string    `gorm:"column:resume_url;size:1024;not null;default:''" json:"resume,omitempty"`
	ResumeKey    string    `gorm:"column:resume_key;size:512;not null;default:''" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return "profiles"
}

// Input carries the editable profile fields.
type Input struct {
	FirstName    string `json:"firstName" validate:"required,max=100"`
	LastName     string `json:"lastName" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email,max=254"`
	Location     string `json:"location" validate:"required,max=200"`
	LinkedInURL  string `json:"linkedInUrl" validate:"omitempty,weburl,max=1024"`
	PortfolioURL string `json:"portfolioUrl" validate:"omitempty,weburl,max=1024"`
}

// ServiceError carries a stable "<operation>.<reason>" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable error code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, err: cause}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "storage_failed"
	}
}

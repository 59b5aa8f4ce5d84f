package profiles

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bashirbobboi/elevator-pitch/internal/assets"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew = "profiles.service.new"
	opCreate     = "profiles.create"
	opCurrent    = "profiles.current"
	opUpdate     = "profiles.update"
	opDelete     = "profiles.delete"
	opSetPicture = "profiles.set_picture"
	opSetResume  = "profiles.set_resume"
)

// IDProvider issues profile identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider IDProvider
	Assets     assets.Store
	Logger     *zap.Logger
}

// Service manages the owner profile. The current profile is the most recently updated
// one with a résumé, falling back to the most recently created one.
type Service struct {
	db         *gorm.DB
	idProvider IDProvider
	assets     assets.Store
	validate   *validator.Validate
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		idProvider: cfg.IDProvider,
		assets:     cfg.Assets,
		validate:   newValidator(),
		logger:     logger,
	}, nil
}

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("weburl", func(field validator.FieldLevel) bool {
		parsed, err := url.Parse(field.Field().String())
		if err != nil {
			return false
		}
		return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
	})
	return validate
}

// Create stores a new profile. Emails are unique, compared case-insensitively.
func (s *Service) Create(ctx context.Context, input Input) (Profile, error) {
	input = normalizeInput(input)
	if err := s.check(input); err != nil {
		return Profile{}, newServiceError(opCreate, reasonFor(err), err)
	}
	profile := Profile{
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        input.Email,
		Location:     input.Location,
		LinkedInURL:  input.LinkedInURL,
		PortfolioURL: input.PortfolioURL,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureEmailAvailable(tx, input.Email, ""); err != nil {
			return err
		}
		profileID, err := s.idProvider.NewID()
		if err != nil {
			return storageError(err)
		}
		profile.ID = profileID
		if err := tx.Create(&profile).Error; err != nil {
			return storageError(err)
		}
		return nil
	})
	if err != nil {
		return Profile{}, s.fail(opCreate, err)
	}
	return profile, nil
}

// Current returns the profile shown to viewers.
func (s *Service) Current(ctx context.Context) (Profile, error) {
	profile, err := current(s.db.WithContext(ctx))
	if err != nil {
		return Profile{}, s.fail(opCurrent, err)
	}
	return profile, nil
}

// Update applies the non-empty fields of input to the current profile.
func (s *Service) Update(ctx context.Context, input Input) (Profile, error) {
	input = normalizeInput(input)
	var updated Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := current(tx)
		if err != nil {
			return err
		}
		merged := mergeInput(profile, input)
		if err := s.check(merged); err != nil {
			return err
		}
		if merged.Email != profile.Email {
			if err := ensureEmailAvailable(tx, merged.Email, profile.ID); err != nil {
				return err
			}
		}
		profile.FirstName = merged.FirstName
		profile.LastName = merged.LastName
		profile.Email = merged.Email
		profile.Location = merged.Location
		profile.LinkedInURL = merged.LinkedInURL
		profile.PortfolioURL = merged.PortfolioURL
		if err := tx.Save(&profile).Error; err != nil {
			return storageError(err)
		}
		updated = profile
		return nil
	})
	if err != nil {
		return Profile{}, s.fail(opUpdate, err)
	}
	return updated, nil
}

// Delete removes the current profile and, best effort, its stored files.
func (s *Service) Delete(ctx context.Context) (Profile, error) {
	var deleted Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := current(tx)
		if err != nil {
			return err
		}
		if err := tx.Delete(&Profile{}, "id = ?", profile.ID).Error; err != nil {
			return storageError(err)
		}
		deleted = profile
		return nil
	})
	if err != nil {
		return Profile{}, s.fail(opDelete, err)
	}
	s.removeAsset(ctx, opDelete, deleted.PictureKey)
	s.removeAsset(ctx, opDelete, deleted.ResumeKey)
	return deleted, nil
}

// SetPicture stores a new profile picture and replaces the previous one.
func (s *Service) SetPicture(ctx context.Context, upload assets.Upload) (Profile, error) {
	upload.Kind = assets.KindPicture
	return s.replaceAsset(ctx, opSetPicture, upload, func(profile *Profile) *assetRef {
		return &assetRef{url: &profile.PictureURL, key: &profile.PictureKey}
	})
}

// SetResume stores a new résumé and replaces the previous one.
func (s *Service) SetResume(ctx context.Context, upload assets.Upload) (Profile, error) {
	upload.Kind = assets.KindResume
	return s.replaceAsset(ctx, opSetResume, upload, func(profile *Profile) *assetRef {
		return &assetRef{url: &profile.ResumeURL, key: &profile.ResumeKey}
	})
}

type assetRef struct {
	url *string
	key *string
}

func (s *Service) replaceAsset(ctx context.Context, operation string, upload assets.Upload, field func(*Profile) *assetRef) (Profile, error) {
	if s.assets == nil {
		return Profile{}, s.fail(operation, storageError(errors.New("asset store is not configured")))
	}
	if _, err := current(s.db.WithContext(ctx)); err != nil {
		return Profile{}, s.fail(operation, err)
	}

	stored, err := s.assets.Put(ctx, upload)
	if err != nil {
		if errors.Is(err, assets.ErrInvalidUpload) {
			return Profile{}, newServiceError(operation, "invalid_argument", fmt.Errorf("%w: %v", ErrInvalidArgument, err))
		}
		return Profile{}, s.fail(operation, storageError(err))
	}

	var (
		updated     Profile
		previousKey string
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := current(tx)
		if err != nil {
			return err
		}
		ref := field(&profile)
		previousKey = *ref.key
		*ref.url = stored.URL
		*ref.key = stored.Key
		if err := tx.Save(&profile).Error; err != nil {
			return storageError(err)
		}
		updated = profile
		return nil
	})
	if err != nil {
		s.removeAsset(ctx, operation, stored.Key)
		return Profile{}, s.fail(operation, err)
	}
	s.removeAsset(ctx, operation, previousKey)
	return updated, nil
}

func (s *Service) removeAsset(ctx context.Context, operation, key string) {
	if s.assets == nil || key == "" {
		return
	}
	if err := s.assets.Delete(ctx, key); err != nil {
		s.loggerOrDefault().Warn("profile asset cleanup failed",
			zap.String("operation", operation),
			zap.String("asset_key", key),
			zap.Error(err))
	}
}

func (s *Service) check(input Input) error {
	if err := s.validate.Struct(input); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			first := fieldErrors[0]
			return fmt.Errorf("%w: %s failed %s", ErrInvalidArgument, first.Field(), first.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

func current(db *gorm.DB) (Profile, error) {
	var profile Profile
	err := db.Where("resume_url <> ''").Order("updated_at DESC").Take(&profile).Error
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, storageError(err)
	}
	err = db.Order("created_at DESC").Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, fmt.Errorf("%w: no profile", ErrNotFound)
	}
	if err != nil {
		return Profile{}, storageError(err)
	}
	return profile, nil
}

func ensureEmailAvailable(db *gorm.DB, email, exceptID string) error {
	query := db.Model(&Profile{}).Where("email = ?", email)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return storageError(err)
	}
	if count > 0 {
		return fmt.Errorf("%w: email %s is already registered", ErrConflict, email)
	}
	return nil
}

func normalizeInput(input Input) Input {
	return Input{
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Location:     strings.TrimSpace(input.Location),
		LinkedInURL:  strings.TrimSpace(input.LinkedInURL),
		PortfolioURL: strings.TrimSpace(input.PortfolioURL),
	}
}

// mergeInput keeps the stored value for every field left empty in input.
func mergeInput(profile Profile, input Input) Input {
	pick := func(incoming, existing string) string {
		if incoming == "" {
			return existing
		}
		return incoming
	}
	return Input{
		FirstName:    pick(input.FirstName, profile.FirstName),
		LastName:     pick(input.LastName, profile.LastName),
		Email:        pick(input.Email, profile.Email),
		Location:     pick(input.Location, profile.Location),
		LinkedInURL:  pick(input.LinkedInURL, profile.LinkedInURL),
		PortfolioURL: pick(input.PortfolioURL, profile.PortfolioURL),
	}
}

func (s *Service) fail(operation string, err error) error {
	reason := reasonFor(err)
	if reason == "storage_failed" {
		s.logError(operation, reason, err)
	}
	return newServiceError(operation, reason, err)
}

func storageError(err error) error {
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error) {
	s.loggerOrDefault().Error("profiles service error",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err))
}

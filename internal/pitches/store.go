package pitches

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	fieldPitchID       = "pitch_id"
	queryPitchID       = fieldPitchID + " = ?"
	queryPitchIDIn     = fieldPitchID + " IN ?"
	queryShareID       = "share_id = ?"
	queryID            = "id = ?"
	queryVersion       = "version = ?"
	orderPosition      = "position ASC"
	orderCreatedAtDesc = "created_at DESC"
)

// Store reads and writes pitch documents. Every method takes the gorm handle so that
// callers decide the transaction boundary.
type Store struct {
	idProvider IDProvider
}

// NewStore constructs a Store that assigns identifiers with idProvider.
func NewStore(idProvider IDProvider) *Store {
	return &Store{idProvider: idProvider}
}

// LoadByShareID loads the document for a public share id.
func (s *Store) LoadByShareID(db *gorm.DB, shareID string) (*Document, error) {
	return s.load(db, queryShareID, shareID)
}

// LoadByID loads the document for an internal pitch id.
func (s *Store) LoadByID(db *gorm.DB, pitchID string) (*Document, error) {
	return s.load(db, queryID, pitchID)
}

func (s *Store) load(db *gorm.DB, query string, value string) (*Document, error) {
	var pitch Pitch
	err := db.Where(query, value).Take(&pitch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: pitch %q", ErrNotFound, value)
	}
	if err != nil {
		return nil, storageError(err)
	}

	var viewers []ViewerEngagement
	if err := db.Where(queryPitchID, pitch.ID).Order(orderPosition).Find(&viewers).Error; err != nil {
		return nil, storageError(err)
	}
	return newDocument(pitch, viewers), nil
}

// LoadAll loads every document, newest pitch first.
func (s *Store) LoadAll(db *gorm.DB) ([]*Document, error) {
	pitches, err := s.List(db)
	if err != nil {
		return nil, err
	}
	if len(pitches) == 0 {
		return nil, nil
	}

	pitchIDs := make([]string, 0, len(pitches))
	for _, pitch := range pitches {
		pitchIDs = append(pitchIDs, pitch.ID)
	}
	var viewers []ViewerEngagement
	if err := db.Where(queryPitchIDIn, pitchIDs).Order(orderPosition).Find(&viewers).Error; err != nil {
		return nil, storageError(err)
	}
	grouped := make(map[string][]ViewerEngagement, len(pitches))
	for _, viewer := range viewers {
		grouped[viewer.PitchID] = append(grouped[viewer.PitchID], viewer)
	}

	documents := make([]*Document, 0, len(pitches))
	for _, pitch := range pitches {
		documents = append(documents, newDocument(pitch, grouped[pitch.ID]))
	}
	return documents, nil
}

// List returns every pitch row without viewer sub-records, newest first.
func (s *Store) List(db *gorm.DB) ([]Pitch, error) {
	var pitches []Pitch
	if err := db.Order(orderCreatedAtDesc).Find(&pitches).Error; err != nil {
		return nil, storageError(err)
	}
	return pitches, nil
}

// Create inserts a new pitch row.
func (s *Store) Create(db *gorm.DB, pitch *Pitch) error {
	if pitch.ID == "" {
		pitchID, err := s.idProvider.NewID()
		if err != nil {
			return storageError(err)
		}
		pitch.ID = pitchID
	}
	if pitch.Version <= 0 {
		pitch.Version = 1
	}
	if pitch.ViewerSessions == nil {
		pitch.ViewerSessions = make(map[string]time.Time)
	}
	if pitch.UniqueViewers == nil {
		pitch.UniqueViewers = []string{}
	}
	if err := db.Create(pitch).Error; err != nil {
		return storageError(err)
	}
	return nil
}

// Save persists the whole document. The pitch row is replaced only if its version is
// unchanged since load; otherwise ErrVersionConflict is returned and nothing is written
// for the pitch row. Callers run Save inside a transaction so viewer rows roll back too.
func (s *Store) Save(db *gorm.DB, doc *Document) error {
	expectedVersion := doc.Pitch.Version
	updated := doc.Pitch
	updated.Version = expectedVersion + 1

	// gorm stamps the auto-update time on the model, not on the values struct.
	model := &Pitch{ID: doc.Pitch.ID}
	result := db.Model(model).
		Where(queryVersion, expectedVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(&updated)
	if result.Error != nil {
		return storageError(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: pitch %q at version %d", ErrVersionConflict, doc.Pitch.ID, expectedVersion)
	}

	dirty := doc.dirtyViewers()
	if len(dirty) > 0 {
		rows := make([]ViewerEngagement, 0, len(dirty))
		for _, viewer := range dirty {
			if viewer.ID == "" {
				viewerRowID, err := s.idProvider.NewID()
				if err != nil {
					return storageError(err)
				}
				viewer.ID = viewerRowID
			}
			viewer.PitchID = doc.Pitch.ID
			rows = append(rows, *viewer)
		}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&rows).Error
		if err != nil {
			return storageError(err)
		}
	}

	doc.Pitch.Version = updated.Version
	if !model.UpdatedAt.IsZero() {
		doc.Pitch.UpdatedAt = model.UpdatedAt
	}
	doc.clearDirty()
	return nil
}

// Delete removes the pitch row and its viewer sub-records.
func (s *Store) Delete(db *gorm.DB, pitchID string) error {
	if err := db.Where(queryPitchID, pitchID).Delete(&ViewerEngagement{}).Error; err != nil {
		return storageError(err)
	}
	result := db.Where(queryID, pitchID).Delete(&Pitch{})
	if result.Error != nil {
		return storageError(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: pitch %q", ErrNotFound, pitchID)
	}
	return nil
}

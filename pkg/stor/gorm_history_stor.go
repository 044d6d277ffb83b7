package stor

import (
	"time"

	"github.com/apex/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// HistoryEntry is one finished transfer or relocate.
type HistoryEntry struct {
	ID            uint      `gorm:"primarykey" json:"-"`
	Kind          string    `json:"kind"`
	RecordID      string    `json:"record_id"`
	InitiatorUUID string    `json:"initiator_uuid,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// GormHistoryStor records finished operations in a local sqlite database.
type GormHistoryStor struct {
	db *gorm.DB
}

func NewGormHistoryStor(db *gorm.DB) *GormHistoryStor {
	return &GormHistoryStor{db: db}
}

// MustConnectHistoryDB opens (and migrates) the history database, exiting on
// failure.
func MustConnectHistoryDB(path string) *gorm.DB {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig)
	if err != nil {
		log.Fatalf("Failed to open history db (%s): %s", path, err)
	}

	if err := db.AutoMigrate(&HistoryEntry{}); err != nil {
		log.Fatalf("Failed to migrate history db: %s", err)
	}

	return db
}

func (s *GormHistoryStor) AddEntry(entry *HistoryEntry) error {
	return s.db.Create(entry).Error
}

func (s *GormHistoryStor) ListRecent(limit int) ([]HistoryEntry, error) {
	var entries []HistoryEntry

	err := s.db.Order("id desc").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, err
	}

	return entries, nil
}

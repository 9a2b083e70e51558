package repository

import (
	"gorm.io/gorm"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/models"
)

type Repositories struct {
	SyncStateRepository          interfaces.SyncStateRepository
	FolderRepository             interfaces.FolderRepository
	FolderSyncProgressRepository interfaces.FolderSyncProgressRepository
	MessageRepository            interfaces.MessageRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		SyncStateRepository:          NewSyncStateRepository(db),
		FolderRepository:             NewFolderRepository(db),
		FolderSyncProgressRepository: NewFolderSyncProgressRepository(db),
		MessageRepository:            NewMessageRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.SyncState{},
		&models.Folder{},
		&models.FolderSyncProgress{},
		&models.Message{},
	)
}

package repo

import (
	"gorm.io/gorm"

	"github.com/pawboard/pawboard/internal/models"
)

type GormRepo struct {
	DB *gorm.DB
}

func New(db *gorm.DB) GormRepo {
	return GormRepo{DB: db}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{}, &models.Chat{}, &models.Message{})
}

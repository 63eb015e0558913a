package store

import (
	"gorm.io/gorm"
)

const (
	DirectionDownload = "download"
	DirectionUpload   = "upload"
)

// TransferLog is one file transfer attempt, successful or not.
type TransferLog struct {
	gorm.Model
	Username  string `gorm:"index"`
	Protocol  string
	Direction string
	Filename  string
	Bytes     int64
	Success   bool
	Error     string
}

func (s *Store) LogTransfer(entry *TransferLog) error {
	return s.DB.Create(entry).Error
}

// RecentTransfers returns up to limit entries for username, newest first.
func (s *Store) RecentTransfers(username string, limit int) ([]TransferLog, error) {
	var logs []TransferLog
	err := s.DB.Where("username = ?", username).
		Order("id desc").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

package store

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
)

const bcryptCost = 10

type User struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex"`
	PasswordHash string

	// Encoding is the codec restored at login; empty keeps the session's.
	Encoding    string
	Logins      int
	LastLoginAt *time.Time
}

func (s *Store) CreateUser(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return err
	}

	user := User{
		Username:     username,
		PasswordHash: string(hash),
	}
	return s.DB.Create(&user).Error
}

func (s *Store) FindUserByUsername(username string) (*User, error) {
	var user User
	result := s.DB.Where("username = ?", username).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

func (s *Store) RenameUser(oldName, newName string) error {
	result := s.DB.Model(&User{}).
		Where("username = ?", oldName).
		Update("username", newName)
	if result.Error == nil && result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return result.Error
}

func (s *Store) RemoveUser(username string) error {
	result := s.DB.Unscoped().
		Where("username = ?", username).
		Delete(&User{})
	if result.Error == nil && result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return result.Error
}

func (s *Store) UpdatePassword(username, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return err
	}

	result := s.DB.Model(&User{}).
		Where("username = ?", username).
		Update("password_hash", string(hash))
	if result.Error == nil && result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return result.Error
}

// SetEncoding remembers the user's preferred codec.
func (s *Store) SetEncoding(username, encoding string) error {
	return s.DB.Model(&User{}).
		Where("username = ?", username).
		Update("encoding", encoding).Error
}

// RecordLogin bumps the login counter and timestamp.
func (s *Store) RecordLogin(user *User) error {
	now := time.Now()
	user.Logins++
	user.LastLoginAt = &now
	return s.DB.Model(user).Updates(map[string]any{
		"logins":        user.Logins,
		"last_login_at": now,
	}).Error
}

func (s *Store) Authenticate(username, password string) (*User, error) {
	user, err := s.FindUserByUsername(username)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidPassword
	}
	return user, nil
}

// Package store persists the automation audit trail: AI conversation
// exchanges, background analysis results, and build outcomes. It backs the
// history API and satisfies the AI router's audit sink.
package store

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DannyJanmaat/VSPilot-sub000/internal/ai"
)

// ConversationRecord is one message of an AI exchange.
type ConversationRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Role      string    `gorm:"size:16;index" json:"role"`
	Content   string    `json:"content"`
	Provider  string    `gorm:"size:32;index" json:"provider"`
}

// AnalysisRecord is the outcome of one background project analysis.
type AnalysisRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Subject   string    `gorm:"size:255;index" json:"subject"`
	Result    string    `json:"result"`
}

// BuildRecord is the outcome of one build cycle.
type BuildRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Succeeded      bool      `gorm:"index" json:"succeeded"`
	SucceededUnits int       `json:"succeeded_units"`
	FailedUnits    int       `json:"failed_units"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
}

// Store is a SQLite-backed audit store.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&ConversationRecord{}, &AnalysisRecord{}, &BuildRecord{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveMessage records one conversation message. Implements ai.AuditSink.
func (s *Store) SaveMessage(role, content string, provider ai.Provider) error {
	rec := ConversationRecord{Role: role, Content: content, Provider: string(provider)}
	return s.db.Create(&rec).Error
}

// SaveAnalysis records a background analysis result. Implements ai.AuditSink.
func (s *Store) SaveAnalysis(subject, result string) error {
	rec := AnalysisRecord{Subject: subject, Result: result}
	return s.db.Create(&rec).Error
}

// SaveBuild records a completed build cycle.
func (s *Store) SaveBuild(rec BuildRecord) error {
	return s.db.Create(&rec).Error
}

// RecentMessages returns the newest n conversation records, oldest first.
func (s *Store) RecentMessages(n int) ([]ConversationRecord, error) {
	var recs []ConversationRecord
	err := s.db.Order("id DESC").Limit(n).Find(&recs).Error
	if err != nil {
		return nil, err
	}
	reverseSlice(recs)
	return recs, nil
}

// RecentAnalyses returns the newest n analysis records, oldest first.
func (s *Store) RecentAnalyses(n int) ([]AnalysisRecord, error) {
	var recs []AnalysisRecord
	err := s.db.Order("id DESC").Limit(n).Find(&recs).Error
	if err != nil {
		return nil, err
	}
	reverseSlice(recs)
	return recs, nil
}

// RecentBuilds returns the newest n build records, newest first.
func (s *Store) RecentBuilds(n int) ([]BuildRecord, error) {
	var recs []BuildRecord
	err := s.db.Order("id DESC").Limit(n).Find(&recs).Error
	return recs, err
}

func reverseSlice[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// BackupConfig controls the periodic database file backup.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// BackupService copies the database file on a schedule and prunes old copies.
type BackupService struct {
	dbPath string
	config BackupConfig
	logger *zerolog.Logger
}

// NewBackupService creates a backup service for the database at dbPath.
func NewBackupService(dbPath string, cfg BackupConfig, logger *zerolog.Logger) *BackupService {
	if cfg.Path == "" {
		cfg.Path = "backups"
	}
	if cfg.IntervalHours <= 0 {
		cfg.IntervalHours = 24
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 14
	}
	return &BackupService{dbPath: dbPath, config: cfg, logger: logger}
}

// Start runs the backup loop until ctx is cancelled.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("backup service disabled")
		return
	}

	interval := time.Duration(s.config.IntervalHours) * time.Hour
	s.logger.Info().Dur("interval", interval).Str("path", s.config.Path).Msg("backup service started")

	if err := s.PerformBackup(); err != nil {
		s.logger.Error().Err(err).Msg("initial backup failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.PerformBackup(); err != nil {
				s.logger.Error().Err(err).Msg("scheduled backup failed")
			}
			s.CleanupOldBackups()
		}
	}
}

// PerformBackup copies the database file into the backup directory.
func (s *BackupService) PerformBackup() error {
	if err := os.MkdirAll(s.config.Path, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	backupPath := filepath.Join(s.config.Path, fmt.Sprintf("backup_%s.db", timestamp))

	source, err := os.Open(s.dbPath)
	if err != nil {
		return fmt.Errorf("open database file: %w", err)
	}
	defer source.Close()

	destination, err := os.Create(backupPath)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer destination.Close()

	if _, err := io.Copy(destination, source); err != nil {
		return fmt.Errorf("copy database: %w", err)
	}

	s.logger.Info().Str("path", backupPath).Msg("database backup complete")
	return nil
}

// CleanupOldBackups removes backups older than the retention window.
func (s *BackupService) CleanupOldBackups() {
	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)

	entries, err := os.ReadDir(s.config.Path)
	if err != nil {
		s.logger.Error().Err(err).Msg("read backup directory failed")
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "backup_") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.config.Path, entry.Name())
			if err := os.Remove(path); err != nil {
				s.logger.Error().Err(err).Str("path", path).Msg("remove old backup failed")
			} else {
				s.logger.Debug().Str("path", path).Msg("old backup removed")
			}
		}
	}
}

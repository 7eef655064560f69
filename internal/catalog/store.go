package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Store handles pattern and dictionary persistence with PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// StoreConfig contains database configuration
type StoreConfig struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// StoreStats represents catalog table statistics
type StoreStats struct {
	TotalPatterns     int64 `json:"total_patterns"`
	ShowstopperCount  int64 `json:"showstopper_count"`
	DictionaryEntries int64 `json:"dictionary_entries"`
}

// BatchResult represents the result of a batch upsert operation
type BatchResult struct {
	Inserted int64         `json:"inserted"`
	Skipped  int64         `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// NewStore creates a new catalog store instance
func NewStore(config *StoreConfig, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Catalog store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// initialize checks the database connection and ensures the catalog schema.
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS patterns (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			regex TEXT NOT NULL,
			data_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			replacement_template TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS dictionary_entries (
			original_value TEXT PRIMARY KEY,
			pseudonym TEXT NOT NULL,
			data_type TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure catalog schema: %w", err)
	}

	return nil
}

// LoadPatterns returns every pattern definition in the store.
func (s *Store) LoadPatterns(ctx context.Context) ([]PatternDefinition, error) {
	var patterns []PatternDefinition
	query := `
		SELECT id, name, regex, data_type, severity, replacement_template, category
		FROM patterns
		ORDER BY id`

	if err := s.db.SelectContext(ctx, &patterns, query); err != nil {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}

	return patterns, nil
}

// LoadDictionary returns every dictionary entry in the store.
func (s *Store) LoadDictionary(ctx context.Context) ([]DictionaryEntry, error) {
	var entries []DictionaryEntry
	query := `
		SELECT original_value, pseudonym, data_type, category
		FROM dictionary_entries
		ORDER BY original_value`

	if err := s.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("failed to load dictionary: %w", err)
	}

	return entries, nil
}

// UpsertPatterns inserts pattern definitions, skipping IDs that already exist.
func (s *Store) UpsertPatterns(ctx context.Context, patterns []PatternDefinition) (*BatchResult, error) {
	if len(patterns) == 0 {
		return &BatchResult{}, nil
	}

	start := time.Now()

	valueStrings := make([]string, 0, len(patterns))
	valueArgs := make([]interface{}, 0, len(patterns)*7)

	for i, p := range patterns {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			i*7+1, i*7+2, i*7+3, i*7+4, i*7+5, i*7+6, i*7+7))
		valueArgs = append(valueArgs, p.ID, p.Name, p.Regex, p.DataType, p.Severity, p.ReplacementTemplate, p.Category)
	}

	query := fmt.Sprintf(`
		INSERT INTO patterns (id, name, regex, data_type, severity, replacement_template, category)
		VALUES %s
		ON CONFLICT (id) DO NOTHING`,
		strings.Join(valueStrings, ","))

	res, err := s.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		return nil, fmt.Errorf("pattern batch upsert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		inserted = int64(len(patterns))
	}

	result := &BatchResult{
		Inserted: inserted,
		Skipped:  int64(len(patterns)) - inserted,
		Duration: time.Since(start),
	}

	s.logger.Info("Pattern batch upsert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("skipped", result.Skipped),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// UpsertDictionary inserts dictionary entries, skipping originals that already
// exist so the bidirectional mapping stays deduplicated.
func (s *Store) UpsertDictionary(ctx context.Context, entries []DictionaryEntry) (*BatchResult, error) {
	if len(entries) == 0 {
		return &BatchResult{}, nil
	}

	start := time.Now()

	valueStrings := make([]string, 0, len(entries))
	valueArgs := make([]interface{}, 0, len(entries)*4)

	for i, e := range entries {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d)",
			i*4+1, i*4+2, i*4+3, i*4+4))
		valueArgs = append(valueArgs, e.OriginalValue, e.Pseudonym, e.DataType, e.Category)
	}

	query := fmt.Sprintf(`
		INSERT INTO dictionary_entries (original_value, pseudonym, data_type, category)
		VALUES %s
		ON CONFLICT (original_value) DO NOTHING`,
		strings.Join(valueStrings, ","))

	res, err := s.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		return nil, fmt.Errorf("dictionary batch upsert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		inserted = int64(len(entries))
	}

	result := &BatchResult{
		Inserted: inserted,
		Skipped:  int64(len(entries)) - inserted,
		Duration: time.Since(start),
	}

	s.logger.Info("Dictionary batch upsert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("skipped", result.Skipped),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// GetStats returns catalog table statistics
func (s *Store) GetStats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}

	query := `
		SELECT
			COUNT(*) as total,
			COUNT(CASE WHEN severity = 'showstopper' THEN 1 END) as showstoppers
		FROM patterns`

	if err := s.db.QueryRowContext(ctx, query).Scan(&stats.TotalPatterns, &stats.ShowstopperCount); err != nil {
		return nil, fmt.Errorf("failed to get pattern stats: %w", err)
	}

	if err := s.db.GetContext(ctx, &stats.DictionaryEntries, "SELECT COUNT(*) FROM dictionary_entries"); err != nil {
		return nil, fmt.Errorf("failed to get dictionary stats: %w", err)
	}

	return stats, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks sensitive information in database URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}

package database

import (
	"errors"
	"time"

	"github.com/reviewdisplay/reviewdisplay/internal/widgets"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationNormalizeWidgetDefaults = "2026-10-19_normalize_widget_defaults"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

// applyMigrations runs each data migration at most once, recording it in
// the db_migrations ledger.
func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeWidgetDefaults, apply: normalizeWidgetDefaults},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeWidgetDefaults rewrites widget rows written before validation
// existed so that every stored value is renderable.
func normalizeWidgetDefaults(db *gorm.DB) error {
	updates := []struct {
		where string
		args  []any
		set   map[string]any
	}{
		{
			where: "theme NOT IN ?",
			args:  []any{[]string{string(widgets.ThemeLight), string(widgets.ThemeDark)}},
			set:   map[string]any{"theme": string(widgets.DefaultTheme)},
		},
		{
			where: "layout NOT IN ?",
			args: []any{[]string{
				string(widgets.LayoutBadge),
				string(widgets.LayoutCarousel),
				string(widgets.LayoutGrid),
				string(widgets.LayoutList),
			}},
			set: map[string]any{"layout": string(widgets.DefaultLayout)},
		},
		{
			where: "max_reviews < ? OR max_reviews > ?",
			args:  []any{1, 50},
			set:   map[string]any{"max_reviews": widgets.DefaultMaxReviews},
		},
		{
			where: "min_rating < ? OR min_rating > ?",
			args:  []any{1, 5},
			set:   map[string]any{"min_rating": widgets.DefaultMinRating},
		},
		{
			where: "visible_cards < ? OR visible_cards > ?",
			args:  []any{1, 6},
			set:   map[string]any{"visible_cards": widgets.DefaultVisibleCards},
		},
	}

	for _, update := range updates {
		err := db.Model(&widgets.Widget{}).
			Where(update.where, update.args...).
			Updates(update.set).Error
		if err != nil {
			return err
		}
	}
	return nil
}

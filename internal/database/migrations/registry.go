// Package migrations provides database migration management for chanrelay.
package migrations

import (
	"github.com/chanrelay/chanrelay/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order, for new
// installations as well as upgrades.
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002SystemData(),
	}
}

// migration001Schema creates all database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create all database tables",
		Up: func(tx *gorm.DB) error {
			// AutoMigrate all models in dependency order
			return tx.AutoMigrate(
				// Core tables
				&models.StreamSource{},
				&models.ManualStreamChannel{},
				&models.Channel{},
				&models.EpgSource{},
				&models.EpgProgram{},

				// Proxy configuration
				&models.StreamProxy{},

				// Proxy join tables
				&models.ProxySource{},
				&models.ProxyEpgSource{},
				&models.ProxyFilter{},
				&models.ProxyMappingRule{},

				// Expression engine
				&models.Filter{},
				&models.DataMappingRule{},

				// Scheduler
				&models.Job{},
				&models.JobHistory{},

				// Pipeline history
				&models.PipelineExecution{},
				&models.PipelineArtifact{},
			)
		},
		Down: func(tx *gorm.DB) error {
			// Drop tables in reverse dependency order
			tables := []string{
				"pipeline_artifacts",
				"pipeline_executions",
				"job_histories",
				"jobs",
				"data_mapping_rules",
				"filters",
				"proxy_mapping_rules",
				"proxy_filters",
				"proxy_epg_sources",
				"proxy_sources",
				"stream_proxies",
				"epg_programs",
				"epg_sources",
				"channels",
				"manual_stream_channels",
				"stream_sources",
			}
			for _, table := range tables {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

// migration002SystemData inserts default filters and data mapping rules.
func migration002SystemData() Migration {
	return Migration{
		Version:     "002",
		Description: "Insert default filters and data mapping rules",
		Up: func(tx *gorm.DB) error {
			if err := createDefaultFilters(tx); err != nil {
				return err
			}
			return createDefaultDataMappingRules(tx)
		},
		Down: func(tx *gorm.DB) error {
			if err := tx.Where("is_system = ?", true).Delete(&models.DataMappingRule{}).Error; err != nil {
				return err
			}
			return tx.Where("is_system = ?", true).Delete(&models.Filter{}).Error
		},
	}
}

// createDefaultFilters creates the default system filters.
func createDefaultFilters(tx *gorm.DB) error {
	filters := []models.Filter{
		{
			Name:       "Include All Valid Stream URLs",
			SourceType: models.FilterSourceTypeStream,
			Action:     models.FilterActionInclude,
			Expression: `stream_url starts_with "http"`,
			Priority:   0,
			IsEnabled:  true,
			IsSystem:   true,
		},
		{
			Name:        "Exclude Adult Content",
			Description: "Excludes channels with adult content keywords in name or group",
			SourceType:  models.FilterSourceTypeStream,
			Action:      models.FilterActionExclude,
			Expression:  `group_title contains "adult" OR group_title contains "xxx" OR group_title contains "porn" OR channel_name contains "adult" OR channel_name contains "xxx" OR channel_name contains "porn"`,
			Priority:    1,
			IsEnabled:   true,
			IsSystem:    true,
		},
	}

	for _, filter := range filters {
		if err := tx.Create(&filter).Error; err != nil {
			return err
		}
	}
	return nil
}

// createDefaultDataMappingRules creates the default system data mapping rules.
func createDefaultDataMappingRules(tx *gorm.DB) error {
	rules := []models.DataMappingRule{
		{
			Name:        "Default Timeshift Detection (Regex)",
			Description: "Automatically detects timeshift channels (+1, +24, etc.) and sets tvg-shift field using regex capture groups.",
			SourceType:  models.DataMappingRuleSourceTypeStream,
			Expression:  `channel_name matches ".*[ ](?:\\+([0-9]{1,2})|(-[0-9]{1,2}))([hH]?)(?:$|[ ]).*" AND channel_name not matches ".*(?:start:|stop:|24[-/]7).*" AND tvg_id matches "^.+$" SET tvg_shift = "$1$2"`,
			Priority:    1,
			StopOnMatch: false,
			IsEnabled:   true,
			IsSystem:    true,
		},
	}

	for _, rule := range rules {
		if err := tx.Create(&rule).Error; err != nil {
			return err
		}
	}
	return nil
}

package data

import (
	"sync"

	"gorm.io/gorm"
)

// Setting is one operator-managed configuration row. Active=0 rows are ignored.
type Setting struct {
	ID     uint   `gorm:"primaryKey"`
	Name   string `gorm:"size:64;not null;uniqueIndex"`
	Value  string `gorm:"type:text;not null"`
	Active uint8  `gorm:"not null;default:1"`
}

var (
	settingsCache map[string]string
	settingsMu    sync.RWMutex
)

// LoadSettings loads all active settings from the database into cache
func LoadSettings(db *gorm.DB) error {
	var settings []Setting
	if err := db.Where("active = ?", 1).Find(&settings).Error; err != nil {
		return err
	}

	settingsMu.Lock()
	defer settingsMu.Unlock()

	settingsCache = make(map[string]string, len(settings))
	for _, s := range settings {
		settingsCache[s.Name] = s.Value
	}

	return nil
}

// GetSetting retrieves a setting value from cache (call LoadSettings first)
func GetSetting(name string) string {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settingsCache[name]
}

// ResetSettings drops the cache so only env values apply.
func ResetSettings() {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	settingsCache = nil
}

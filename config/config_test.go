package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.AppName != "catalog-sync" {
		t.Errorf("AppName = %q", cfg.AppName)
	}
	if cfg.Sync.ChunkSize != 50 {
		t.Errorf("Sync.ChunkSize = %d, ожидалось 50", cfg.Sync.ChunkSize)
	}
	if cfg.Sync.ChunkPause != time.Second {
		t.Errorf("Sync.ChunkPause = %v, ожидалась 1s", cfg.Sync.ChunkPause)
	}
	if cfg.Sync.MaxRetries != 3 {
		t.Errorf("Sync.MaxRetries = %d", cfg.Sync.MaxRetries)
	}
	if cfg.Feed.DefaultCurrency != "MAD" {
		t.Errorf("Feed.DefaultCurrency = %q", cfg.Feed.DefaultCurrency)
	}
	if cfg.Destinations.Amazon.SKUPrefix != "HANABALL-" {
		t.Errorf("Amazon.SKUPrefix = %q", cfg.Destinations.Amazon.SKUPrefix)
	}
	if cfg.Destinations.Ebay.SKUPrefix != "hanaball-" {
		t.Errorf("Ebay.SKUPrefix = %q", cfg.Destinations.Ebay.SKUPrefix)
	}
	if cfg.Destinations.Facebook.APIVersion != "v16.0" {
		t.Errorf("Facebook.APIVersion = %q", cfg.Destinations.Facebook.APIVersion)
	}
}

func TestResyncTimesStaggered(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Все направления стартуют в разное время, чтобы не бить по каталогу разом
	times := map[string]string{
		"amazon":    cfg.Destinations.Amazon.ResyncAt,
		"ebay":      cfg.Destinations.Ebay.ResyncAt,
		"facebook":  cfg.Destinations.Facebook.ResyncAt,
		"instagram": cfg.Destinations.Instagram.ResyncAt,
		"google":    cfg.Destinations.Google.ResyncAt,
	}
	seen := make(map[string]string, len(times))
	for dest, at := range times {
		if at == "" {
			t.Errorf("у направления %s нет времени синхронизации", dest)
			continue
		}
		if other, dup := seen[at]; dup {
			t.Errorf("направления %s и %s стартуют одновременно в %s", dest, other, at)
		}
		seen[at] = dest
	}
}

func TestDestinationEnabled(t *testing.T) {
	cfg := &Config{}
	cfg.Destinations.Enabled = []string{"facebook", "google"}

	if !cfg.DestinationEnabled("facebook") {
		t.Error("facebook должен быть включен")
	}
	if !cfg.DestinationEnabled("GOOGLE") {
		t.Error("сравнение имен направлений не зависит от регистра")
	}
	if cfg.DestinationEnabled("ebay") {
		t.Error("ebay не включен в конфигурации")
	}
}

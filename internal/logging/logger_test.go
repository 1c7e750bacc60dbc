package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetLoggingState() {
	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	configLoaded = false
	config = loggingConfig{}
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()

	configDir := filepath.Join(tempDir, ".issuenerd")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"boot": true,
				"store": true,
				"classify": true,
				"feedback": true,
				"reconcile": true,
				"export": true
			}
		}
	}`

	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot,
		CategoryStore,
		CategoryClassify,
		CategoryFeedback,
		CategoryReconcile,
		CategoryExport,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}

		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	// Also test convenience functions
	Boot("Convenience boot log")
	Store("Convenience store log")
	Classify("Convenience classify log")
	Feedback("Convenience feedback log")
	Reconcile("Convenience reconcile log")
	Export("Convenience export log")

	// Close all loggers to flush
	CloseAll()

	logsPath := filepath.Join(tempDir, ".issuenerd", "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	for _, cat := range categories {
		found := false
		for _, entry := range entries {
			if strings.Contains(entry.Name(), string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
				if err != nil {
					t.Errorf("Failed to read log file for %s: %v", cat, err)
					continue
				}
				if len(content) == 0 {
					t.Errorf("Log file for %s is empty", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug_mode is false
func TestDebugModeDisabled(t *testing.T) {
	tempDir := t.TempDir()

	configDir := filepath.Join(tempDir, ".issuenerd")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "info",
			"debug_mode": false
		}
	}`

	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Error("Expected debug mode to be disabled")
	}

	// Logging should be a silent no-op
	Store("This should not be written")
	Reconcile("Neither should this")
	CloseAll()

	logsPath := filepath.Join(tempDir, ".issuenerd", "logs")
	if _, err := os.Stat(logsPath); !os.IsNotExist(err) {
		t.Errorf("Logs directory should not exist in production mode")
	}
}

// TestCategoryToggle tests that individual categories can be disabled
func TestCategoryToggle(t *testing.T) {
	tempDir := t.TempDir()

	configDir := filepath.Join(tempDir, ".issuenerd")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"store": true,
				"reconcile": false
			}
		}
	}`

	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if !IsCategoryEnabled(CategoryStore) {
		t.Error("store category should be enabled")
	}
	if IsCategoryEnabled(CategoryReconcile) {
		t.Error("reconcile category should be disabled")
	}

	Store("store message")
	Reconcile("reconcile message should be dropped")
	CloseAll()

	logsPath := filepath.Join(tempDir, ".issuenerd", "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	for _, entry := range entries {
		if strings.Contains(entry.Name(), "reconcile.log") {
			t.Errorf("reconcile log file should not exist: %s", entry.Name())
		}
	}
}

// TestTimerLogging tests the operation timer helpers
func TestTimerLogging(t *testing.T) {
	tempDir := t.TempDir()

	configDir := filepath.Join(tempDir, ".issuenerd")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true
		}
	}`

	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	timer := StartTimer(CategoryStore, "test_operation")
	time.Sleep(10 * time.Millisecond)
	elapsed := timer.Stop()

	if elapsed < 10*time.Millisecond {
		t.Errorf("Expected elapsed >= 10ms, got %v", elapsed)
	}

	// Threshold path: short op under a generous threshold logs at debug
	timer2 := StartTimer(CategoryStore, "fast_operation")
	elapsed2 := timer2.StopWithThreshold(time.Second)
	if elapsed2 > time.Second {
		t.Errorf("Unexpectedly slow: %v", elapsed2)
	}

	CloseAll()
}

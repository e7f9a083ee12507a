package testutil

import (
	"time"

	"github.com/trezcool/presence/core"
)

// Config returns the default configuration with fast, deterministic test settings.
func Config() *core.Config {
	return &core.Config{
		Env:       "TEST",
		Build:     "test",
		Debug:     true,
		TestMode:  true,
		AppName:   "Presence",
		SecretKey: "secret",
		Gesture: core.GestureConfig{
			ChargeDelay:      500 * time.Millisecond,
			PreloadDelay:     time.Second,
			CommitDelay:      1500 * time.Millisecond,
			CommitDelays:     map[string]time.Duration{"special": 2 * time.Second},
			ReleaseDuration:  300 * time.Millisecond,
			ProgressInterval: 50 * time.Millisecond,
			MoveThreshold:    15,
		},
		Prefetch: core.PrefetchConfig{
			TTL:           time.Minute,
			FailedTTL:     5 * time.Second,
			LoadTimeout:   time.Second,
			RetryAttempts: 3,
			RetryInterval: time.Millisecond,
		},
		Debounce: core.DebounceConfig{
			Delay:           3 * time.Second,
			TickInterval:    time.Second,
			SubmitTimeout:   time.Second,
			MinContentRunes: 1,
			Placeholders:    []string{"請輸入課程內容", "請輸入課程內容..."},
		},
		Notify: core.NotifyConfig{
			IdleDelay:    3 * time.Second,
			OnCompletion: true,
			Timeout:      time.Second,
			Backend:      "console",
		},
		Server: core.ServerConfig{
			Host:               "127.0.0.1",
			Port:               8000,
			JWTExpirationDelta: time.Hour,
			ShutdownTimeout:    time.Second,
			FeedSize:           64,
		},
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/Harshitk-cp/curio/internal/service"
	"github.com/joho/godotenv"
)

// Load reads the .env file specified by CURIO_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("CURIO_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// DatabaseURL returns the Postgres DSN. Empty means the in-memory stores.
func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

// APIKey is the bearer token required on /v1 routes. Empty disables auth.
func APIKey() string {
	return os.Getenv("API_KEY")
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	return floatEnv("RATE_LIMIT_RPS", 100)
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	return intEnv("RATE_LIMIT_BURST", 20)
}

func DecayInterval() time.Duration {
	return durationEnv("DECAY_INTERVAL", 24*time.Hour)
}

// DecayRate is the pull lost per day of inactivity.
func DecayRate() float64 {
	return floatEnv("DECAY_RATE", service.DefaultDecayRate)
}

func DecayWorkers() int {
	return intEnv("DECAY_WORKERS", 4)
}

func StuckTurnTimeout() time.Duration {
	return durationEnv("STUCK_TURN_TIMEOUT", 2*time.Minute)
}

func SynthesisPendingTTL() time.Duration {
	return durationEnv("SYNTHESIS_PENDING_TTL", service.DefaultPendingTTL)
}

// Thresholds returns the status thresholds with env overrides applied. Every
// boundary and cascade constant can be overridden; the result must still form
// ordered ladders.
func Thresholds() (domain.Thresholds, error) {
	t := domain.DefaultThresholds()
	t.HypothesisTesting = unitEnv("HYPOTHESIS_TESTING", t.HypothesisTesting)
	t.HypothesisSupported = unitEnv("HYPOTHESIS_SUPPORTED", t.HypothesisSupported)
	t.HypothesisConfirmed = unitEnv("HYPOTHESIS_CONFIRMED", t.HypothesisConfirmed)
	t.PatternSolid = unitEnv("PATTERN_SOLID", t.PatternSolid)
	t.PatternFoundational = unitEnv("PATTERN_FOUNDATIONAL", t.PatternFoundational)
	t.QuestionAnswered = unitEnv("QUESTION_ANSWERED", t.QuestionAnswered)
	t.RefuteConfidence = unitEnv("REFUTE_CONFIDENCE", t.RefuteConfidence)
	t.RefuteMinContradictions = intEnv("REFUTE_MIN_CONTRADICTIONS", t.RefuteMinContradictions)
	t.CascadePenalty = unitEnv("CASCADE_PENALTY", t.CascadePenalty)
	t.CascadeBoost = unitEnv("CASCADE_BOOST", t.CascadeBoost)
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("thresholds: %w", err)
	}
	return t, nil
}

// EngineOptions assembles the engine options from the environment.
func EngineOptions() (service.Options, error) {
	thresholds, err := Thresholds()
	if err != nil {
		return service.Options{}, err
	}
	opts := service.DefaultOptions()
	opts.Thresholds = thresholds
	opts.DecayRate = DecayRate()
	opts.StuckTurnTimeout = StuckTurnTimeout()
	opts.PendingTTL = SynthesisPendingTTL()
	return opts, nil
}

// unitEnv reads a value in [0,1]. Zero is a valid setting, e.g. to turn off
// the cascade penalty.
func unitEnv(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		return def
	}
	return v
}

func floatEnv(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func durationEnv(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

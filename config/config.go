package config

import (
	"fmt"
	"log"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Calendar zone and business hours.
	Timezone              string `mapstructure:"TIMEZONE"`
	BusinessStartHour     int    `mapstructure:"BUSINESS_START_HOUR"`
	BusinessEndHour       int    `mapstructure:"BUSINESS_END_HOUR"`
	BusinessDays          string `mapstructure:"BUSINESS_DAYS"`
	SlotStepMinutes       int    `mapstructure:"SLOT_STEP_MINUTES"`
	LookaheadBusinessDays int    `mapstructure:"LOOKAHEAD_BUSINESS_DAYS"`
	MaxAlternatives       int    `mapstructure:"MAX_ALTERNATIVES"`
	DefaultDurationMins   int    `mapstructure:"DEFAULT_DURATION_MINUTES"`

	// Collaborator calls.
	CollaboratorTimeoutSecs int `mapstructure:"COLLABORATOR_TIMEOUT_SECONDS"`
	RetryDelayMs            int `mapstructure:"RETRY_DELAY_MS"`

	// Sessions.
	SessionBackend       string `mapstructure:"SESSION_BACKEND"`
	SessionTTLMinutes    int    `mapstructure:"SESSION_TTL_MINUTES"`
	SessionSweepInterval string `mapstructure:"SESSION_SWEEP_INTERVAL"`

	// Redis configuration.
	RedisAddr         string `mapstructure:"REDIS_ADDR"`
	RedisPassword     string `mapstructure:"REDIS_PASSWORD"`
	RedisSessionDB    int    `mapstructure:"REDIS_SESSION_DB"`
	RedisSweepQueueDB int    `mapstructure:"REDIS_SWEEP_QUEUE_DB"`

	// Calendar backend.
	CalendarBackend          string `mapstructure:"CALENDAR_BACKEND"`
	CalendarID               string `mapstructure:"CALENDAR_ID"`
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	DatabaseName             string `mapstructure:"DATABASE_NAME"`
	GoogleServiceAccountFile string `mapstructure:"GOOGLE_SERVICE_ACCOUNT_FILE"`

	// Natural language understanding.
	NLUProvider          string  `mapstructure:"NLU_PROVIDER"`
	GeminiAPIKey         string  `mapstructure:"GEMINI_API_KEY"`
	GeminiModel          string  `mapstructure:"GEMINI_MODEL"`
	OpenAIAPIKey         string  `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel          string  `mapstructure:"OPENAI_MODEL"`
	NLUMinConfidence     float64 `mapstructure:"NLU_MIN_CONFIDENCE"`
	NLUConfirmConfidence float64 `mapstructure:"NLU_CONFIRM_CONFIDENCE"`

	// Speech-to-text for voice turns.
	SpeechLanguage string `mapstructure:"SPEECH_LANGUAGE"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MAX_REQUESTS_PER_MIN", 100)

	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("BUSINESS_START_HOUR", 9)
	v.SetDefault("BUSINESS_END_HOUR", 17)
	v.SetDefault("BUSINESS_DAYS", "mon,tue,wed,thu,fri")
	v.SetDefault("SLOT_STEP_MINUTES", 30)
	v.SetDefault("LOOKAHEAD_BUSINESS_DAYS", 5)
	v.SetDefault("MAX_ALTERNATIVES", 3)
	v.SetDefault("DEFAULT_DURATION_MINUTES", 30)

	v.SetDefault("COLLABORATOR_TIMEOUT_SECONDS", 3)
	v.SetDefault("RETRY_DELAY_MS", 200)

	v.SetDefault("SESSION_BACKEND", "memory")
	v.SetDefault("SESSION_TTL_MINUTES", 30)
	v.SetDefault("SESSION_SWEEP_INTERVAL", "@every 1m")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_SESSION_DB", 0)
	v.SetDefault("REDIS_SWEEP_QUEUE_DB", 1)

	v.SetDefault("CALENDAR_BACKEND", "memory")
	v.SetDefault("CALENDAR_ID", "primary")
	v.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	v.SetDefault("DATABASE_NAME", "tailortalk")
	v.SetDefault("GOOGLE_SERVICE_ACCOUNT_FILE", "credentials/service-account-key.json")

	v.SetDefault("NLU_PROVIDER", "none")
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("NLU_MIN_CONFIDENCE", 0.5)
	v.SetDefault("NLU_CONFIRM_CONFIDENCE", 0.8)

	v.SetDefault("SPEECH_LANGUAGE", "en-US")
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}

// Booking is the typed view of the booking-related settings.
type Booking struct {
	Location             *time.Location
	BusinessStartHour    int
	BusinessEndHour      int
	BusinessDays         map[time.Weekday]bool
	SlotStep             time.Duration
	LookaheadDays        int
	MaxAlternatives      int
	DefaultDuration      time.Duration
	CollaboratorTimeout  time.Duration
	RetryDelay           time.Duration
	SessionTTL           time.Duration
	NLUMinConfidence     float64
	NLUConfirmConfidence float64
}

// DefaultBooking returns the built-in settings; used by tests and as a base.
func DefaultBooking() Booking {
	return Booking{
		Location:             time.UTC,
		BusinessStartHour:    9,
		BusinessEndHour:      17,
		BusinessDays:         ParseBusinessDays("mon,tue,wed,thu,fri"),
		SlotStep:             30 * time.Minute,
		LookaheadDays:        5,
		MaxAlternatives:      3,
		DefaultDuration:      30 * time.Minute,
		CollaboratorTimeout:  3 * time.Second,
		RetryDelay:           200 * time.Millisecond,
		SessionTTL:           30 * time.Minute,
		NLUMinConfidence:     0.5,
		NLUConfirmConfidence: 0.8,
	}
}

// BookingSettings derives the typed booking settings from AppConfig.
func BookingSettings() (Booking, error) {
	b := DefaultBooking()
	loc, err := time.LoadLocation(AppConfig.Timezone)
	if err != nil {
		return Booking{}, err
	}
	b.Location = loc
	b.BusinessStartHour = AppConfig.BusinessStartHour
	b.BusinessEndHour = AppConfig.BusinessEndHour
	if days := ParseBusinessDays(AppConfig.BusinessDays); len(days) > 0 {
		b.BusinessDays = days
	}
	if AppConfig.SlotStepMinutes > 0 {
		b.SlotStep = time.Duration(AppConfig.SlotStepMinutes) * time.Minute
	}
	if AppConfig.LookaheadBusinessDays > 0 {
		b.LookaheadDays = AppConfig.LookaheadBusinessDays
	}
	if AppConfig.MaxAlternatives > 0 {
		b.MaxAlternatives = AppConfig.MaxAlternatives
	}
	if AppConfig.DefaultDurationMins > 0 {
		b.DefaultDuration = time.Duration(AppConfig.DefaultDurationMins) * time.Minute
	}
	if AppConfig.CollaboratorTimeoutSecs > 0 {
		b.CollaboratorTimeout = time.Duration(AppConfig.CollaboratorTimeoutSecs) * time.Second
	}
	if AppConfig.RetryDelayMs >= 0 {
		b.RetryDelay = time.Duration(AppConfig.RetryDelayMs) * time.Millisecond
	}
	if AppConfig.SessionTTLMinutes > 0 {
		b.SessionTTL = time.Duration(AppConfig.SessionTTLMinutes) * time.Minute
	}
	b.NLUMinConfidence = AppConfig.NLUMinConfidence
	b.NLUConfirmConfidence = AppConfig.NLUConfirmConfidence
	if err := b.Validate(); err != nil {
		return Booking{}, err
	}
	return b, nil
}

// Validate rejects settings the scheduler cannot work with.
func (b Booking) Validate() error {
	if b.BusinessStartHour < 0 || b.BusinessEndHour > 24 || b.BusinessStartHour >= b.BusinessEndHour {
		return fmt.Errorf("config: business hours %d-%d must satisfy 0 <= start < end <= 24",
			b.BusinessStartHour, b.BusinessEndHour)
	}
	if b.NLUMinConfidence < 0 || b.NLUConfirmConfidence > 1 || b.NLUMinConfidence > b.NLUConfirmConfidence {
		return fmt.Errorf("config: NLU confidences %.2f/%.2f must satisfy 0 <= min <= confirm <= 1",
			b.NLUMinConfidence, b.NLUConfirmConfidence)
	}
	if b.SlotStep <= 0 {
		return fmt.Errorf("config: slot step must be positive, got %s", b.SlotStep)
	}
	if len(b.BusinessDays) == 0 {
		return fmt.Errorf("config: at least one business day is required")
	}
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseBusinessDays turns "mon,tue,wed" into a weekday set. Unknown names are ignored.
func ParseBusinessDays(s string) map[time.Weekday]bool {
	days := make(map[time.Weekday]bool)
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if len(name) > 3 {
			name = name[:3]
		}
		if d, ok := weekdayNames[name]; ok {
			days[d] = true
		}
	}
	return days
}

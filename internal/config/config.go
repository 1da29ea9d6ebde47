package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
	"rvl-week-service/internal/domain"
	"rvl-week-service/internal/gate"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Logging struct {
		Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
		Dir        string `yaml:"dir"`
		MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
		MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
		MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
	} `yaml:"logging"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL         string `yaml:"ttl"`
		SaveTimeout string `yaml:"save_timeout"`
		TotalPoints int    `yaml:"total_points" validate:"gte=0"`

		// Questions is the static quiz content used when Postgres is not configured.
		Questions map[int][]domain.QuizQuestion `yaml:"questions" validate:"dive,max=3,dive"`
	} `yaml:"quiz"`
	Event struct {
		Days             []DayConfig    `yaml:"days" validate:"required,min=1,dive"`
		Codes            map[int]string `yaml:"codes"`
		AttendancePoints int            `yaml:"attendance_points" validate:"gte=0"`
		VideoPoints      int            `yaml:"video_points" validate:"gte=0"`
	} `yaml:"event"`
	Auth struct {
		Secret        string   `yaml:"secret" validate:"required"`
		ElevatedRoles []string `yaml:"elevated_roles"`
	} `yaml:"auth"`
	Unlock struct {
		Secret     string `yaml:"secret" validate:"required"`
		PendingTTL string `yaml:"pending_ttl"`
		TokenTTL   string `yaml:"token_ttl"`
	} `yaml:"unlock"`
}

// DayConfig is one scheduled day of the event.
type DayConfig struct {
	Number   int    `yaml:"number" validate:"gte=1"`
	Date     string `yaml:"date" validate:"required,datetime=2006-01-02"`
	Title    string `yaml:"title"`
	VideoURL string `yaml:"video_url" validate:"omitempty,url"`
}

var validate = validator.New()

// Load reads YAML config from path. ${VAR} references are expanded from the
// environment so secrets can stay in .env.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return cfg, err
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := cfg.Catalog(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Catalog returns the configured days, dated in the event's fixed zone.
func (c Config) Catalog() ([]domain.EventDay, error) {
	days := make([]domain.EventDay, 0, len(c.Event.Days))
	seen := make(map[int]bool, len(c.Event.Days))
	for _, d := range c.Event.Days {
		if seen[d.Number] {
			return nil, fmt.Errorf("invalid config: day %d listed twice", d.Number)
		}
		seen[d.Number] = true
		date, err := time.ParseInLocation("2006-01-02", d.Date, gate.EventZone)
		if err != nil {
			return nil, fmt.Errorf("invalid config: day %d date: %w", d.Number, err)
		}
		days = append(days, domain.EventDay{
			Number:        d.Number,
			ScheduledDate: date,
			Title:         d.Title,
			VideoURL:      d.VideoURL,
		})
	}
	return days, nil
}

// Quizzes returns the static quiz content keyed by day.
func (c Config) Quizzes() map[int]domain.Quiz {
	quizzes := make(map[int]domain.Quiz, len(c.Quiz.Questions))
	for day, questions := range c.Quiz.Questions {
		quizzes[day] = domain.Quiz{Day: day, Questions: questions}
	}
	return quizzes
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

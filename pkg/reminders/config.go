package reminders

import "time"

// Config controls thresholds and run times. Hours are local to Timezone.
type Config struct {
	Queue             string        `env:"REMINDERS_QUEUE" envDefault:"notifications"`
	Timezone          string        `env:"REMINDERS_TIMEZONE" envDefault:"UTC"`
	ExpiringSoonDays  []int         `env:"REMINDERS_EXPIRING_SOON_DAYS" envDefault:"7,3,1"`
	ExpiredDays       []int         `env:"REMINDERS_EXPIRED_DAYS" envDefault:"1,3,7"`
	DailyHour         int           `env:"REMINDERS_DAILY_HOUR" envDefault:"9"`
	HourlyMinute      int           `env:"REMINDERS_HOURLY_MINUTE" envDefault:"5"`
	DigestWeekday     time.Weekday  `env:"REMINDERS_DIGEST_WEEKDAY" envDefault:"1"`
	DigestHour        int           `env:"REMINDERS_DIGEST_HOUR" envDefault:"10"`
	DigestSize        int           `env:"REMINDERS_DIGEST_SIZE" envDefault:"5"`
	DigestLookback    time.Duration `env:"REMINDERS_DIGEST_LOOKBACK" envDefault:"168h"`
	ExpireSweepMinute int           `env:"REMINDERS_EXPIRE_SWEEP_MINUTE" envDefault:"30"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Queue:             "notifications",
		Timezone:          "UTC",
		ExpiringSoonDays:  []int{7, 3, 1},
		ExpiredDays:       []int{1, 3, 7},
		DailyHour:         9,
		HourlyMinute:      5,
		DigestWeekday:     time.Monday,
		DigestHour:        10,
		DigestSize:        5,
		DigestLookback:    7 * 24 * time.Hour,
		ExpireSweepMinute: 30,
	}
}

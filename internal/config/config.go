package config // package config loads application configuration from environment variables

import (
	"fmt"
	"log" // log is used to report configuration errors and halt execution
	"os"  // os provides access to environment variables
	"strings"
	"time"
)

// Expiry backends understood by ExpiryBackend.
const (
	ExpiryTimer = "timer"
	ExpiryAsynq = "asynq"
)

// Upper bounds for the seat hold lifetime and the booking size.  Both can
// be lowered for a deployment but never raised.
const (
	MaxSeatLockTTL  = 300 * time.Second
	MaxBookingSeats = 6
)

// Broadcast backends understood by BroadcastBackend.
const (
	BroadcastLocal = "local"
	BroadcastRedis = "redis"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Required values are enforced by must(); the
// rest fall back to defaults suitable for a single local instance.
type Config struct {
	Env           string // application environment (e.g. "dev", "prod")
	Port          string // HTTP port to listen on
	DBUser        string // database username
	DBPass        string // database password (optional)
	DBHost        string // database host address
	DBPort        string // database port number
	DBName        string // database name
	DBAutoMigrate bool   // apply the booking ledger schema on start-up
	JWTSecret     string // secret used to verify access tokens

	SeatLockTTL        time.Duration // lifetime of a seat hold in the lock store
	MaxSeatsPerBooking int           // upper bound on seats in one booking request
	ExpiryBackend      string        // "timer" (in-process) or "asynq" (shared task queue)
	ExpiryQueue        string        // asynq queue name for lapse tasks
	BroadcastBackend   string        // "local" (process members only) or "redis" (pub/sub fan-out)
	BroadcastChannel   string        // redis pub/sub channel for room broadcasts
	ClientBuffer       int           // outbound frames buffered per websocket connection
	AllowedOrigins     []string      // browser Origin allow-list for REST (CORS) and the websocket; empty accepts any origin

	RabbitURL      string // AMQP URL for booking events (empty disables publishing)
	BookingLogPath string // file the booking consumer appends to
	RunConsumer    bool   // start the booking log consumer in-process
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	cfg := Config{
		Env:           must("APP_ENV"),      // environment (dev/test/prod)
		Port:          must("APP_PORT"),     // port to bind the HTTP server
		DBUser:        must("DB_USER"),      // database user
		DBPass:        os.Getenv("DB_PASS"), // database password (empty allowed)
		DBHost:        must("DB_HOST"),      // database host
		DBPort:        must("DB_PORT"),      // database port
		DBName:        must("DB_NAME"),      // database name
		DBAutoMigrate: envBool("DB_AUTO_MIGRATE", false),
		JWTSecret:     must("JWT_SECRET"), // secret used for verifying JWTs

		SeatLockTTL:        envDur("SEAT_LOCK_TTL", MaxSeatLockTTL),
		MaxSeatsPerBooking: envInt("MAX_SEATS_PER_BOOKING", MaxBookingSeats),
		ExpiryBackend:      oneOf("EXPIRY_BACKEND", ExpiryTimer, ExpiryTimer, ExpiryAsynq),
		ExpiryQueue:        envStr("EXPIRY_QUEUE", "seatlock"),
		BroadcastBackend:   oneOf("BROADCAST_BACKEND", BroadcastLocal, BroadcastLocal, BroadcastRedis),
		BroadcastChannel:   envStr("BROADCAST_CHANNEL", "seatsync:broadcast"),
		ClientBuffer:       envInt("WS_CLIENT_BUFFER", 64),
		AllowedOrigins:     allowedOrigins(),

		RabbitURL:      rabbitURL(),
		BookingLogPath: envStr("BOOKING_LOG_PATH", "logs/booking.log"),
		RunConsumer:    envBool("BOOKING_CONSUMER_ENABLED", false),
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return cfg
}

// Validate rejects limits that would let a hold live forever or a booking
// grow past the allowed size.
func (c Config) Validate() error {
	if c.SeatLockTTL <= 0 || c.SeatLockTTL > MaxSeatLockTTL {
		return fmt.Errorf("SEAT_LOCK_TTL must be in (0, %s], got %s", MaxSeatLockTTL, c.SeatLockTTL)
	}
	if c.MaxSeatsPerBooking < 1 || c.MaxSeatsPerBooking > MaxBookingSeats {
		return fmt.Errorf("MAX_SEATS_PER_BOOKING must be in [1, %d], got %d", MaxBookingSeats, c.MaxSeatsPerBooking)
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	e := strings.ToLower(c.Env)
	return e == "prod" || e == "production"
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// oneOf returns the lower-cased value of key when it is one of allowed, def
// when unset, and exits for anything else.
func oneOf(key, def string, allowed ...string) string {
	v := strings.ToLower(envStr(key, def))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	log.Fatalf("invalid value for %s: %q (want one of %s)", key, v, strings.Join(allowed, ", "))
	return ""
}

// allowedOrigins reads ALLOWED_ORIGINS, falling back to the older
// websocket-only WS_ALLOWED_ORIGINS.
func allowedOrigins() []string {
	if v := envList("ALLOWED_ORIGINS"); len(v) > 0 {
		return v
	}
	return envList("WS_ALLOWED_ORIGINS")
}

// rabbitURL honours both RABBITMQ_URL and the older AMQP_URL name.
func rabbitURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

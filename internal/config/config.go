package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"time"
)

// Config holds all runtime configuration values.  Database, port and the
// staff JWT secret are required; every reconciliation tunable has a named
// default so a bare environment still behaves sensibly.  The matching
// knobs (shortfall tolerance, recency window) are deliberately
// configuration rather than constants: they encode business policy that
// operations may need to adjust without a deploy.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret string // secret used to verify staff JWTs

	HoldTTL            time.Duration // how long a pending order keeps its seats
	SweepInterval      time.Duration // how often the expiry sweep runs
	MintMaxAttempts    int           // bounded retries for order-code minting
	MintSuffixLen      int           // starting length of the random code suffix
	MatchShortfallPct  float64       // accepted underpayment fraction, e.g. 0.05
	MatchRecencyWindow time.Duration // window for the narrowed amount fallback
	WebhookMaxBody     int64         // byte ceiling for webhook payloads
	TxnDedupeTTL       time.Duration // how long processed txn ids stay cached

	BankCode    string // receiving bank code embedded in QR payloads
	BankAccount string // receiving account number
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:       must("APP_ENV"),
		Port:      must("APP_PORT"),
		DBUser:    must("DB_USER"),
		DBPass:    os.Getenv("DB_PASS"),
		DBHost:    must("DB_HOST"),
		DBPort:    must("DB_PORT"),
		DBName:    must("DB_NAME"),
		JWTSecret: must("JWT_SECRET"),

		HoldTTL:            time.Duration(envInt("HOLD_TTL_MIN", 10)) * time.Minute,
		SweepInterval:      envDur("SWEEP_INTERVAL", time.Minute),
		MintMaxAttempts:    envInt("MINT_MAX_ATTEMPTS", 5),
		MintSuffixLen:      envInt("MINT_SUFFIX_LEN", 6),
		MatchShortfallPct:  float64(envInt("MATCH_SHORTFALL_PCT", 5)) / 100,
		MatchRecencyWindow: time.Duration(envInt("MATCH_RECENCY_WINDOW_MIN", 180)) * time.Minute,
		WebhookMaxBody:     int64(envInt("WEBHOOK_MAX_BODY_BYTES", 1<<20)),
		TxnDedupeTTL:       envDur("TXN_DEDUPE_TTL", 24*time.Hour),

		BankCode:    envStr("BANK_CODE", "970436"),
		BankAccount: envStr("BANK_ACCOUNT", "0000000000"),
	}
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

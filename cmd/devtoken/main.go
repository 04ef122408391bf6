// Command devtoken mints an access token for local testing of the booking
// API and the websocket endpoint.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/cinema-seat-sync/internal/utils"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file holding JWT_SECRET")
	userID := pflag.Uint64P("user", "u", 1, "user id to put in the subject claim")
	ttl := pflag.Duration("ttl", time.Hour, "token lifetime")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load %s: %v", *envFile, err)
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	if *userID == 0 {
		log.Fatal("--user must be positive")
	}

	tok, err := utils.NewAccessToken(secret, *userID, *ttl)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
}

// Command issuetoken mints a session token the way the login service does,
// for driving the API by hand or from cmd/racecheck.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Brownie44l1/marketguard/internal/auth"
	"github.com/google/uuid"
)

func main() {
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 signing secret (defaults to $JWT_SECRET)")
	userID := flag.Int64("user", 0, "user id")
	sessionID := flag.String("session", "", "session id (random when empty)")
	admin := flag.Bool("admin", false, "grant the admin flag")
	flag.Parse()

	if *secret == "" || *userID <= 0 {
		flag.Usage()
		os.Exit(2)
	}
	if *sessionID == "" {
		*sessionID = uuid.NewString()
	}

	token, expiresIn, err := auth.GenerateJWT(*userID, *sessionID, *admin, *secret, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to sign token:", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "session %s, expires in %ds\n", *sessionID, expiresIn)
	fmt.Println(token)
}

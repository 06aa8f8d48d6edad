// Command tokengen mints access tokens for local testing.  Authentication
// itself happens upstream; the server only verifies tokens signed with
// JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/ticket-reservation/internal/middleware"
	"github.com/iliyamo/ticket-reservation/internal/utils"
)

func main() {
	_ = godotenv.Load()

	sub := flag.Uint64("sub", 1, "user id placed in the sub claim")
	role := flag.String("role", middleware.RoleCustomer, "role claim (OWNER or CUSTOMER)")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "signing secret (defaults to JWT_SECRET)")
	flag.Parse()

	tok, err := utils.NewAccessToken(*secret, *sub, *role, *ttl, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, "tokengen:", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
}

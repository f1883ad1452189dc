// Command devtoken prints a signed bearer token for local testing.
//
//	JWT_SECRET=dev go run ./api-gateway/cmd/devtoken -sub 42 -role admin
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cartwheel/storefront/api-gateway/internal/auth"
	"github.com/cartwheel/storefront/pkg/config"
)

func main() {
	sub := flag.String("sub", "1", "token subject (user id)")
	role := flag.String("role", "", `role claim, "admin" for staff`)
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	config.LoadDotEnv()
	secret := config.GetEnv("JWT_SECRET", "")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET must be set")
		os.Exit(1)
	}

	tok, err := auth.NewValidator(secret).Issue(*sub, *role, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}

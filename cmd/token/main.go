// Command token signs a development access token with JWT_SECRET.
//
//	token -sub alice -role CUSTOMER -ttl 1h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/iliyamo/seat-booking/internal/config"
	"github.com/iliyamo/seat-booking/internal/middleware"
	"github.com/iliyamo/seat-booking/internal/utils"
)

func main() {
	sub := flag.String("sub", "", "subject (booking requester)")
	role := flag.String("role", middleware.RoleCustomer, "CUSTOMER or OPERATOR")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load("JWT_SECRET")
	if err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
	tok, err := utils.NewAccessToken(cfg.JWT.Secret, *sub, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
}

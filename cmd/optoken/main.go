// Command optoken signs an operator token for the reporting endpoints.
//
//	optoken --subject alice --role analyst [--ttl 8h]
//
// JWT_SECRET, JWT_ISSUER and JWT_AUDIENCE must match the API's.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"callbridge/internal/auth"
	"callbridge/internal/config"
	"callbridge/internal/rbac"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var subject, role string
	var ttl time.Duration
	flagSet := pflag.NewFlagSet("optoken", pflag.ContinueOnError)
	flagSet.StringVar(&subject, "subject", "", "operator name recorded in the token")
	flagSet.StringVar(&role, "role", rbac.RoleAnalyst, "one of admin, analyst, finance")
	flagSet.DurationVar(&ttl, "ttl", 0, "token lifetime (default OPERATOR_TOKEN_TTL)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if subject == "" {
		return errors.New("--subject is required")
	}
	if !rbac.ValidRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}

	cfg, err := config.LoadAuth()
	if err != nil {
		return err
	}
	if ttl > 0 {
		cfg.OperatorTokenTTL = ttl
	}
	m, err := auth.NewManager(cfg)
	if err != nil {
		return err
	}
	tok, err := m.IssueOperator(time.Now(), uuid.NewString(), subject, role)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

// Package policies holds the commands that inspect and reconcile the stored
// endpoint authorization rules.
package policies

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/miguel-loureiro/BookCatalog/internal/auth"
	"github.com/miguel-loureiro/BookCatalog/internal/config"
	"github.com/miguel-loureiro/BookCatalog/internal/db/bunx"
)

// PoliciesCmd is the parent command for endpoint policy operations
var PoliciesCmd = &cobra.Command{
	Use:   "policies",
	Short: "Inspect and sync endpoint authorization rules",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the stored authority to policy rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnforcer(func(pe *auth.PolicyEnforcer) error {
			rules := pe.Rules()
			if len(rules) == 0 {
				cmd.Println("No rules stored. Run 'policies sync' or start the server.")
				return nil
			}
			for _, r := range rules {
				cmd.Printf("%-14s %s\n", r[0], r[1])
			}
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replace the stored rules with the built-in endpoint policies",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnforcer(func(pe *auth.PolicyEnforcer) error {
			changed, err := pe.Sync(auth.Policies())
			if err != nil {
				return err
			}
			if changed {
				cmd.Printf("Stored %d rules\n", len(pe.Rules()))
			} else {
				cmd.Println("Rules already up to date")
			}
			return nil
		})
	},
}

func withEnforcer(fn func(*auth.PolicyEnforcer) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	db, err := bunx.NewDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer bunx.Close(db)

	pe, err := auth.InitEnforcer(db)
	if err != nil {
		return fmt.Errorf("failed to initialize casbin enforcer: %w", err)
	}
	return fn(pe)
}

func init() {
	PoliciesCmd.AddCommand(listCmd)
	PoliciesCmd.AddCommand(syncCmd)
}

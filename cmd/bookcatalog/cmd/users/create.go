package users

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/miguel-loureiro/BookCatalog/internal/config"
	"github.com/miguel-loureiro/BookCatalog/internal/db/bunx"
	"github.com/miguel-loureiro/BookCatalog/internal/errs"
	"github.com/miguel-loureiro/BookCatalog/internal/repository"
	"github.com/miguel-loureiro/BookCatalog/internal/services/iam"
)

var (
	emailFlag    string
	usernameFlag string
	passwordFlag string
	roleFlag     string
	stdinFlag    bool
)

// createCmd bootstraps accounts, typically the first SUPER, without going
// through the admin endpoint.
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a catalog user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if emailFlag == "" {
			return fmt.Errorf("--email flag is required")
		}
		if usernameFlag == "" {
			return fmt.Errorf("--username flag is required")
		}

		password := passwordFlag
		if stdinFlag {
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Fprint(cmd.ErrOrStderr(), "Enter password: ")
			if scanner.Scan() {
				password = scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}
		if password == "" {
			return fmt.Errorf("password is required (use --password or --stdin)")
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		db, err := bunx.NewDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		svc := iam.NewService(iam.Dependencies{
			Users: repository.NewBunUserRepository(db),
		}, iam.Config{})

		user, err := svc.CreateUser(cmd.Context(), iam.CreateUserRequest{
			Username: usernameFlag,
			Email:    emailFlag,
			Password: password,
			Role:     roleFlag,
		})
		if err != nil {
			return fmt.Errorf("failed to create user: %s", errs.From(err).Message)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "User created successfully!")
		fmt.Fprintln(out, "----------------------------------------")
		fmt.Fprintf(out, "User ID: %d\n", user.ID)
		fmt.Fprintf(out, "Username: %s\n", user.Username)
		fmt.Fprintf(out, "Email: %s\n", user.Email)
		fmt.Fprintf(out, "Role: %s\n", user.Role)
		fmt.Fprintln(out, "----------------------------------------")
		return nil
	},
}

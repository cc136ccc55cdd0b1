package migrations

import (
	"context"
	"fmt"

	"github.com/miguel-loureiro/BookCatalog/internal/auth"
	"github.com/miguel-loureiro/BookCatalog/internal/auth/bunadapter"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260301000003, down_20260301000003)
}

// up_20260301000003 creates casbin_rules and seeds the endpoint policies
func up_20260301000003(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating casbin_rules table...")
	_, err := db.NewCreateTable().
		Model((*bunadapter.CasbinRule)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create casbin_rules table: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] seeding endpoint policies...")
	for _, policy := range auth.Policies() {
		for _, rule := range policy.Rules() {
			line := &bunadapter.CasbinRule{Ptype: "p", V0: rule[0], V1: rule[1]}
			if _, err := db.NewInsert().Model(line).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
				return fmt.Errorf("failed to seed policy %s: %w", policy.Name, err)
			}
		}
	}
	fmt.Println(" OK")
	return nil
}

func down_20260301000003(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping casbin_rules table...")
	_, err := db.NewDropTable().
		Model((*bunadapter.CasbinRule)(nil)).
		IfExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop casbin_rules table: %w", err)
	}
	fmt.Println(" OK")
	return nil
}

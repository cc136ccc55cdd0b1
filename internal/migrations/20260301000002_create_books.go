package migrations

import (
	"context"
	"fmt"

	"github.com/miguel-loureiro/BookCatalog/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260301000002, down_20260301000002)
}

// up_20260301000002 creates the books table and the user_books collection table
func up_20260301000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating books table...")
	_, err := db.NewCreateTable().
		Model((*models.Book)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create books table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_books_title ON books(title)`)
	if err != nil {
		return fmt.Errorf("failed to create books title index: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating user_books table...")
	_, err = db.NewCreateTable().
		Model((*models.UserBook)(nil)).
		IfNotExists().
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
		ForeignKey(`("book_id") REFERENCES "books" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create user_books table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_user_books_book_id ON user_books(book_id)`)
	if err != nil {
		return fmt.Errorf("failed to create user_books book_id index: %w", err)
	}
	fmt.Println(" OK")
	return nil
}

func down_20260301000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping user_books and books tables...")
	for _, model := range []interface{}{(*models.UserBook)(nil), (*models.Book)(nil)} {
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	fmt.Println(" OK")
	return nil
}

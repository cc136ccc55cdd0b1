package bunadapter_test

import (
	"context"
	"testing"

	"github.com/casbin/casbin/v2/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/miguel-loureiro/BookCatalog/internal/auth/bunadapter"
	"github.com/miguel-loureiro/BookCatalog/internal/db/bunx"
)

const testModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj
`

func setupDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := bunx.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })

	_, err = db.NewCreateTable().Model((*bunadapter.CasbinRule)(nil)).Exec(context.Background())
	require.NoError(t, err)
	return db
}

func storedRules(t *testing.T, db *bun.DB) []string {
	t.Helper()
	var rules []*bunadapter.CasbinRule
	require.NoError(t, db.NewSelect().Model(&rules).Order("v0", "v1").Scan(context.Background()))
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.String())
	}
	return out
}

func TestAdapter_AddRemove(t *testing.T) {
	db := setupDB(t)
	a := bunadapter.NewAdapter(db)

	require.NoError(t, a.AddPolicy("p", "p", []string{"ROLE_ADMIN", "book:create"}))
	require.NoError(t, a.AddPolicies("p", "p", [][]string{
		{"ROLE_SUPER", "book:create"},
		{"ROLE_READER", "book:read"},
	}))
	// Duplicates collapse on the composite key.
	require.NoError(t, a.AddPolicy("p", "p", []string{"ROLE_ADMIN", "book:create"}))

	assert.Equal(t, []string{
		"p, ROLE_ADMIN, book:create",
		"p, ROLE_READER, book:read",
		"p, ROLE_SUPER, book:create",
	}, storedRules(t, db))

	require.NoError(t, a.RemovePolicy("p", "p", []string{"ROLE_ADMIN", "book:create"}))
	assert.Equal(t, []string{
		"p, ROLE_READER, book:read",
		"p, ROLE_SUPER, book:create",
	}, storedRules(t, db))

	require.NoError(t, a.RemovePolicies("p", "p", [][]string{
		{"ROLE_READER", "book:read"},
		{"ROLE_SUPER", "book:create"},
	}))
	assert.Empty(t, storedRules(t, db))
}

func TestAdapter_RemoveFilteredPolicy(t *testing.T) {
	db := setupDB(t)
	a := bunadapter.NewAdapter(db)

	require.NoError(t, a.AddPolicies("p", "p", [][]string{
		{"ROLE_ADMIN", "book:create"},
		{"ROLE_ADMIN", "book:delete"},
		{"ROLE_SUPER", "book:delete"},
	}))

	require.NoError(t, a.RemoveFilteredPolicy("p", "p", 1, "book:delete"))
	assert.Equal(t, []string{"p, ROLE_ADMIN, book:create"}, storedRules(t, db))

	assert.Error(t, a.RemoveFilteredPolicy("p", "p", 2, "x", "y"))
}

func TestAdapter_SaveAndLoadPolicy(t *testing.T) {
	db := setupDB(t)
	a := bunadapter.NewAdapter(db)
	require.NoError(t, a.AddPolicy("p", "p", []string{"ROLE_STALE", "gone"}))

	m, err := model.NewModelFromString(testModel)
	require.NoError(t, err)
	_ = m.AddPolicy("p", "p", []string{"ROLE_GUEST", "guest:books"})
	require.NoError(t, a.SavePolicy(m))

	assert.Equal(t, []string{"p, ROLE_GUEST, guest:books"}, storedRules(t, db))

	loaded, err := model.NewModelFromString(testModel)
	require.NoError(t, err)
	require.NoError(t, a.LoadPolicy(loaded))
	assert.Equal(t, [][]string{{"ROLE_GUEST", "guest:books"}}, loaded["p"]["p"].Policy)
}

// Package bunadapter persists casbin policy rules through bun so that the
// enforcer shares the service's database connection pool.
package bunadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2/model"
	"github.com/uptrace/bun"
)

// maxValues is the number of value columns stored per rule.
const maxValues = 3

// Adapter is a casbin persist.Adapter and persist.BatchAdapter backed by bun.
// Expects the casbin_rules table to exist (see migrations).
type Adapter struct {
	db *bun.DB
}

// NewAdapter creates an Adapter on top of an existing *bun.DB.
func NewAdapter(db *bun.DB) *Adapter {
	return &Adapter{db: db}
}

// LoadPolicy loads every stored rule into m.
func (a *Adapter) LoadPolicy(m model.Model) error {
	var rules []*CasbinRule
	if err := a.db.NewSelect().Model(&rules).Order("ptype", "v0", "v1", "v2").Scan(context.Background()); err != nil {
		return fmt.Errorf("failed to load policy from adapter db: %w", err)
	}

	for _, r := range rules {
		values := r.values()
		if len(values) == 0 {
			continue
		}
		// sec is the first letter of ptype ("p", "p2" -> "p"; "g" -> "g")
		_ = m.AddPolicy(r.Ptype[:1], r.Ptype, values)
	}
	return nil
}

// SavePolicy replaces all stored rules with the rules held by m.
func (a *Adapter) SavePolicy(m model.Model) error {
	var rules []*CasbinRule
	for _, sec := range []string{"p", "g"} {
		for ptype, assertion := range m[sec] {
			for _, rule := range assertion.Policy {
				rules = append(rules, newCasbinRule(ptype, rule))
			}
		}
	}

	if err := a.save(context.Background(), true, rules...); err != nil {
		return fmt.Errorf("failed to save policy to adapter db: %w", err)
	}
	return nil
}

// AddPolicy stores a single rule.
func (a *Adapter) AddPolicy(_ string, ptype string, rule []string) error {
	if err := a.save(context.Background(), false, newCasbinRule(ptype, rule)); err != nil {
		return fmt.Errorf("failed to add adapter policy rule: %w", err)
	}
	return nil
}

// AddPolicies stores several rules in one transaction.
func (a *Adapter) AddPolicies(_ string, ptype string, rules [][]string) error {
	lines := make([]*CasbinRule, 0, len(rules))
	for _, rule := range rules {
		lines = append(lines, newCasbinRule(ptype, rule))
	}
	if err := a.save(context.Background(), false, lines...); err != nil {
		return fmt.Errorf("failed to add policy rules: %w", err)
	}
	return nil
}

// RemovePolicy deletes a single rule.
func (a *Adapter) RemovePolicy(_ string, ptype string, rule []string) error {
	if err := a.delete(context.Background(), newCasbinRule(ptype, rule)); err != nil {
		return fmt.Errorf("failed to remove adapter policy rule: %w", err)
	}
	return nil
}

// RemovePolicies deletes several rules.
func (a *Adapter) RemovePolicies(_ string, ptype string, rules [][]string) error {
	lines := make([]*CasbinRule, 0, len(rules))
	for _, rule := range rules {
		lines = append(lines, newCasbinRule(ptype, rule))
	}
	if err := a.delete(context.Background(), lines...); err != nil {
		return fmt.Errorf("failed to remove policy rules: %w", err)
	}
	return nil
}

// RemoveFilteredPolicy deletes rules whose values starting at fieldIndex
// match fieldValues. Empty values act as wildcards.
func (a *Adapter) RemoveFilteredPolicy(_ string, ptype string, fieldIndex int, fieldValues ...string) error {
	if fieldIndex < 0 || fieldIndex+len(fieldValues) > maxValues {
		return fmt.Errorf("filter out of range: index %d with %d values", fieldIndex, len(fieldValues))
	}

	query := a.db.NewDelete().Model((*CasbinRule)(nil)).Where("ptype = ?", ptype)
	for i, v := range fieldValues {
		if v == "" {
			continue
		}
		query = query.Where("? = ?", bun.Ident(fmt.Sprintf("v%d", fieldIndex+i)), v)
	}

	if _, err := query.Exec(context.Background()); err != nil {
		return fmt.Errorf("failed to remove filtered adapter policy: %w", err)
	}
	return nil
}

func (a *Adapter) save(ctx context.Context, truncate bool, lines ...*CasbinRule) error {
	return a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if truncate {
			if _, err := tx.NewTruncateTable().Model((*CasbinRule)(nil)).Exec(ctx); err != nil {
				return err
			}
		}
		for _, line := range lines {
			if _, err := tx.NewInsert().Model(line).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *Adapter) delete(ctx context.Context, lines ...*CasbinRule) error {
	if len(lines) == 0 {
		return nil
	}

	q := a.db.NewDelete().Model((*CasbinRule)(nil))
	q = q.WhereGroup(" AND ", func(q *bun.DeleteQuery) *bun.DeleteQuery {
		for _, line := range lines {
			line := line
			q = q.WhereGroup(" OR ", func(q *bun.DeleteQuery) *bun.DeleteQuery {
				return q.Where("ptype = ?", line.Ptype).
					Where("v0 = ?", line.V0).
					Where("v1 = ?", line.V1).
					Where("v2 = ?", line.V2)
			})
		}
		return q
	})

	_, err := q.Exec(ctx)
	return err
}

// CasbinRule is one stored policy line. All columns form the primary key,
// so duplicate rules collapse on insert.
type CasbinRule struct {
	bun.BaseModel `bun:"table:casbin_rules,alias:cr"`

	Ptype string `bun:"ptype,pk,type:varchar(100),notnull"` // 'p' (policy) or 'g' (grouping)
	V0    string `bun:"v0,pk,type:varchar(255)"`            // Subject: a ROLE_* authority
	V1    string `bun:"v1,pk,type:varchar(255)"`            // Object: a policy name such as book:create
	V2    string `bun:"v2,pk,type:varchar(255)"`            // Reserved
}

func newCasbinRule(ptype string, rule []string) *CasbinRule {
	line := &CasbinRule{Ptype: ptype}
	fields := []*string{&line.V0, &line.V1, &line.V2}
	for i := 0; i < len(rule) && i < maxValues; i++ {
		*fields[i] = rule[i]
	}
	return line
}

// values returns the rule values up to the last non-empty one, preserving
// empty values in the middle.
func (r *CasbinRule) values() []string {
	all := []string{r.V0, r.V1, r.V2}
	last := -1
	for i := len(all) - 1; i >= 0; i-- {
		if all[i] != "" {
			last = i
			break
		}
	}
	return all[:last+1]
}

func (r *CasbinRule) String() string {
	return strings.Join(append([]string{r.Ptype}, r.values()...), ", ")
}

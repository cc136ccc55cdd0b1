package auth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/uptrace/bun"

	"github.com/miguel-loureiro/BookCatalog/internal/auth/bunadapter"
)

// casbinModel grants an authority access to a named endpoint policy.
const casbinModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj
`

// PolicyEnforcer evaluates endpoint policies with casbin.
type PolicyEnforcer struct {
	enforcer *casbin.SyncedEnforcer
	// persisted is false for in-memory enforcers, which have no adapter to save to.
	persisted bool
}

// NewMemoryEnforcer builds an enforcer without storage, loaded with policies.
func NewMemoryEnforcer(policies []Policy) (*PolicyEnforcer, error) {
	m, err := model.NewModelFromString(casbinModel)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	pe := &PolicyEnforcer{enforcer: e}
	if _, err := pe.Sync(policies); err != nil {
		return nil, err
	}
	return pe, nil
}

// InitEnforcer creates an enforcer backed by the casbin_rules table and
// loads the stored rules. Call Sync to reconcile them with the declared policies.
func InitEnforcer(db *bun.DB) (*PolicyEnforcer, error) {
	m, err := model.NewModelFromString(casbinModel)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	e, err := casbin.NewSyncedEnforcer(m, bunadapter.NewAdapter(db))
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	e.EnableAutoSave(false)

	if err := e.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load casbin policies: %w", err)
	}
	return &PolicyEnforcer{enforcer: e, persisted: true}, nil
}

// Sync makes the loaded rules equal to the rules declared by policies and,
// for persisted enforcers, writes them back. It reports whether anything changed.
func (pe *PolicyEnforcer) Sync(policies []Policy) (bool, error) {
	desired := make([][]string, 0)
	for _, p := range policies {
		desired = append(desired, p.Rules()...)
	}
	if sameRules(pe.Rules(), desired) {
		return false, nil
	}

	m := pe.enforcer.GetModel()
	m.ClearPolicy()
	for _, rule := range desired {
		_ = m.AddPolicy("p", "p", rule)
	}

	if pe.persisted {
		if err := pe.enforcer.SavePolicy(); err != nil {
			return false, fmt.Errorf("save casbin policies: %w", err)
		}
	}
	return true, nil
}

// Rules returns the loaded (authority, policy) pairs, sorted.
func (pe *PolicyEnforcer) Rules() [][]string {
	var out [][]string
	if ast, ok := pe.enforcer.GetModel()["p"]["p"]; ok {
		for _, rule := range ast.Policy {
			out = append(out, append([]string(nil), rule...))
		}
	}
	sortRules(out)
	return out
}

// Allowed reports whether any of principal's authorities is granted policy.
func (pe *PolicyEnforcer) Allowed(principal Principal, policy Policy) (bool, error) {
	for _, authority := range principal.Authorities() {
		ok, err := pe.enforcer.Enforce(authority, policy.Name)
		if err != nil {
			return false, fmt.Errorf("enforce %s on %s: %w", authority, policy.Name, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func sameRules(a, b [][]string) bool {
	if len(a) != len(b) {
		return false
	}
	a = append([][]string(nil), a...)
	b = append([][]string(nil), b...)
	sortRules(a)
	sortRules(b)
	for i := range a {
		if strings.Join(a[i], "\x00") != strings.Join(b[i], "\x00") {
			return false
		}
	}
	return true
}

func sortRules(rules [][]string) {
	sort.Slice(rules, func(i, j int) bool {
		return strings.Join(rules[i], "\x00") < strings.Join(rules[j], "\x00")
	})
}

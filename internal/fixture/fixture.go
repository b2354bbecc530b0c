// Package fixture builds deterministic demo data: a mining organization
// with members and two years of synthetic sales history, so a fresh
// environment has something to score and lend against.
package fixture

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"minedesk.org/internal/loan"
	"minedesk.org/internal/sales"
	"minedesk.org/internal/tenant"
)

type Member struct {
	UserID string
	Role   tenant.Role
}

type Scenario struct {
	OrganizationName string
	OwnerUserID      string
	Members          []Member
	MonthsOfHistory  int
	SalesPerMonth    int
	Buyers           []string
}

// DemoMineScenario is the default fixture: a small gold operation with
// a full crew and 24 months of sales.
func DemoMineScenario() Scenario {
	return Scenario{
		OrganizationName: "Karatau Gold Cooperative",
		OwnerUserID:      "demo-owner",
		Members: []Member{
			{UserID: "demo-admin", Role: tenant.RoleAdmin},
			{UserID: "demo-supervisor", Role: tenant.RoleSupervisor},
			{UserID: "demo-miner-1", Role: tenant.RoleMiner},
			{UserID: "demo-miner-2", Role: tenant.RoleMiner},
			{UserID: "demo-auditor", Role: tenant.RoleViewer},
		},
		MonthsOfHistory: 24,
		SalesPerMonth:   6,
		Buyers: []string{
			"Astana Refinery",
			"Almaty Metals Exchange",
			"Caspian Smelting Works",
			"Regional Assay Office",
		},
	}
}

type Builder struct {
	scenario Scenario
	rnd      *rand.Rand
	now      func() time.Time
}

// NewBuilder constructs a Builder. The same seed always yields the same
// demo data; seed 0 picks a time-based one.
func NewBuilder(seed int64) *Builder {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Builder{
		scenario: DemoMineScenario(),
		rnd:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
	}
}

// WithScenario replaces the default scenario.
func (b *Builder) WithScenario(s Scenario) *Builder {
	b.scenario = s
	return b
}

// WithClock overrides the time source (useful for tests).
func (b *Builder) WithClock(fn func() time.Time) *Builder {
	if fn != nil {
		b.now = fn
	}
	return b
}

// Result reports what Build created.
type Result struct {
	Organization tenant.Organization
	Members      []tenant.Membership
	SalesCount   int
	LoanCount    int
}

// Build seeds the organization, its memberships, the sales history and
// a pair of loan applications through the domain services.
func (b *Builder) Build(ctx context.Context, tenants *tenant.Service, salesSvc *sales.Service, loans *loan.Service) (Result, error) {
	sc := b.scenario

	org, owner, err := tenants.CreateOrganization(ctx, sc.OrganizationName, sc.OwnerUserID, map[string]any{
		"region":   "Karagandy",
		"minerals": "gold",
		"fixture":  "demo",
	})
	if err != nil {
		return Result{}, fmt.Errorf("create demo organization: %w", err)
	}

	result := Result{Organization: org, Members: []tenant.Membership{owner}}
	for _, m := range sc.Members {
		membership, err := tenants.AddMember(ctx, org.ID, m.UserID, m.Role, tenant.MemberActive)
		if err != nil {
			return Result{}, fmt.Errorf("add demo member %s: %w", m.UserID, err)
		}
		result.Members = append(result.Members, membership)
	}

	end := b.now().UTC()
	for month := sc.MonthsOfHistory; month >= 1; month-- {
		monthStart := end.AddDate(0, -month, 0)
		for i := 0; i < sc.SalesPerMonth; i++ {
			occurred := monthStart.Add(time.Duration(b.rnd.Intn(28*24)) * time.Hour)
			amount := int64(b.rnd.Intn(450_000) + 50_000) // $500 - $5000 in minor units
			buyer := sc.Buyers[b.rnd.Intn(len(sc.Buyers))]
			tx, err := salesSvc.Record(ctx, org.ID, sc.OwnerUserID, sales.RecordInput{
				Buyer:      buyer,
				TotalValue: amount,
				OccurredAt: occurred,
			})
			if err != nil {
				return Result{}, fmt.Errorf("record demo sale: %w", err)
			}
			// Roughly two thirds of the history is verified.
			if b.rnd.Intn(3) != 0 {
				if _, err := salesSvc.SetStatus(ctx, org.ID, tx.ID, sales.StatusVerified); err != nil {
					return Result{}, fmt.Errorf("verify demo sale: %w", err)
				}
			}
			result.SalesCount++
		}
	}

	for _, app := range []loan.ApplyInput{
		{Amount: 75_000, TermMonths: 6, Purpose: "Replacement drill bits"},
		{Amount: 600_000, TermMonths: 24, Purpose: "Second haul truck"},
	} {
		if _, err := loans.Apply(ctx, org.ID, sc.OwnerUserID, app); err != nil {
			return Result{}, fmt.Errorf("apply demo loan: %w", err)
		}
		result.LoanCount++
	}

	return result, nil
}

// Package qa is the self-test harness: it seeds a deterministic
// synthetic policy graph, runs the query pipeline through scripted
// suites, diagnoses failure patterns, and applies automated fixes.
package qa

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/evanhollis/covergraph/store"
)

// Identifier ranges for synthetic entities.
const (
	policyBase  = 1000
	insuredBase = 2000
	coverBase   = 3000
	claimBase   = 4000
	premiumBase = 5000
	userBase    = 5000
	extendBase  = 9000
)

var syntheticCoverageTypes = []string{
	"liability", "collision", "comprehensive", "uninsured motorist",
	"personal injury", "medical payments", "property damage", "flood",
	"fire", "theft", "water damage",
}

var syntheticPolicyTypes = []string{"auto", "home", "life", "health", "liability"}

var syntheticClaimStatuses = []string{"open", "under_review", "approved", "denied", "closed"}

var syntheticFrequencies = []string{"monthly", "quarterly", "annually"}

var syntheticNames = []string{
	"John Doe", "Jane Roe", "Alex Rivera", "Sam Patel", "Chris Nakamura",
	"Dana Okafor", "Lee Martin", "Robin Alvarez",
}

// Graph summarizes what BuildSyntheticGraph created.
type Graph struct {
	Policies      []string `json:"policies"`
	Insureds      []string `json:"insureds"`
	Coverages     []string `json:"coverages"`
	Claims        []string `json:"claims"`
	Premiums      []string `json:"premiums"`
	Definitions   []string `json:"definitions"`
	Relationships int      `json:"relationships"`
}

// BuildSyntheticGraph seeds the store with a deterministic policy
// graph: 10 policies, 8 insureds, 20 coverages, 15 claims, one premium
// per policy, wired with INSURES / HAS_COVERAGE / HAS_PREMIUM /
// FILES_CLAIM / RELATED_TO edges. The first entities are a fixed
// fixture (John Doe, policy P1001, claim CL4001) so the demo and the
// suites can assert on exact values; the remainder is pseudorandom
// from seed.
func BuildSyntheticGraph(ctx context.Context, s *store.Store, seed int64) (*Graph, error) {
	rng := rand.New(rand.NewSource(seed))
	g := &Graph{}

	upsert := func(name, typ, desc, meta string) (int64, error) {
		return s.UpsertEntity(ctx, store.Entity{
			Name: name, EntityType: typ, Description: desc, Metadata: meta,
		})
	}
	relate := func(src, dst int64, relType string) error {
		_, err := s.InsertRelationship(ctx, store.Relationship{
			SourceEntityID: src, TargetEntityID: dst, RelationType: relType, Weight: 1.0,
		})
		if err == nil {
			g.Relationships++
		}
		return err
	}

	// Insureds.
	insuredIDs := make([]int64, 0, 8)
	for i := 0; i < 8; i++ {
		name := syntheticNames[i]
		meta := fmt.Sprintf(`{"name":%q,"id_number":"U%d"}`, name, userBase+1+i)
		id, err := upsert(name, "insured", fmt.Sprintf("synthetic insured I%d", insuredBase+1+i), meta)
		if err != nil {
			return nil, fmt.Errorf("seeding insured: %w", err)
		}
		insuredIDs = append(insuredIDs, id)
		g.Insureds = append(g.Insureds, name)
	}

	// Coverages. The fixture coverage C3001 is liability 500000/1000.
	coverageIDs := make([]int64, 0, 20)
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("C%d", coverBase+1+i)
		ctype := syntheticCoverageTypes[i%len(syntheticCoverageTypes)]
		limit := 50000 + rng.Intn(20)*50000
		deductible := rng.Intn(5) * 500
		if i == 0 {
			ctype, limit, deductible = "liability", 500000, 1000
		}
		meta := fmt.Sprintf(`{"type":%q,"limit":%d,"deductible":%d}`, ctype, limit, deductible)
		id, err := upsert(name, "coverage", ctype+" coverage", meta)
		if err != nil {
			return nil, fmt.Errorf("seeding coverage: %w", err)
		}
		coverageIDs = append(coverageIDs, id)
		g.Coverages = append(g.Coverages, name)
	}

	// Policies with their premium, coverages, and insured.
	policyIDs := make([]int64, 0, 10)
	for i := 0; i < 10; i++ {
		num := fmt.Sprintf("P%d", policyBase+1+i)
		ptype := syntheticPolicyTypes[i%len(syntheticPolicyTypes)]
		status := "active"
		if i > 0 && rng.Intn(5) == 0 {
			status = "expired"
		}
		if i == 0 {
			ptype, status = "auto", "active"
		}
		meta := fmt.Sprintf(
			`{"policy_number":%q,"type":%q,"status":%q,"effective_date":"2025-0%d-01","expiration_date":"2026-0%d-01"}`,
			num, ptype, status, i%9+1, i%9+1)
		pid, err := upsert(num, "policy", ptype+" policy "+num, meta)
		if err != nil {
			return nil, fmt.Errorf("seeding policy: %w", err)
		}
		policyIDs = append(policyIDs, pid)
		g.Policies = append(g.Policies, num)

		// INSURES: the fixture binds P1001 and P1002 to John Doe.
		insured := insuredIDs[rng.Intn(len(insuredIDs))]
		if i < 2 {
			insured = insuredIDs[0]
		}
		if err := relate(pid, insured, "INSURES"); err != nil {
			return nil, err
		}

		// HAS_COVERAGE: 1-3 coverages, fixture policy gets C3001.
		nCov := 1 + rng.Intn(3)
		start := rng.Intn(len(coverageIDs))
		if i == 0 {
			nCov, start = 1, 0
		}
		for c := 0; c < nCov; c++ {
			if err := relate(pid, coverageIDs[(start+c)%len(coverageIDs)], "HAS_COVERAGE"); err != nil {
				return nil, err
			}
		}

		// HAS_PREMIUM: one premium per policy, fixture $1,200 monthly.
		prName := fmt.Sprintf("PR%d", premiumBase+1+i)
		amount := 600 + rng.Intn(30)*100
		freq := syntheticFrequencies[rng.Intn(len(syntheticFrequencies))]
		if i == 0 {
			amount, freq = 1200, "monthly"
		}
		prMeta := fmt.Sprintf(`{"amount":%d,"payment_frequency":%q,"due_date":"2026-0%d-01"}`,
			amount, freq, i%9+1)
		prID, err := upsert(prName, "premium", "premium for "+num, prMeta)
		if err != nil {
			return nil, fmt.Errorf("seeding premium: %w", err)
		}
		g.Premiums = append(g.Premiums, prName)
		if err := relate(pid, prID, "HAS_PREMIUM"); err != nil {
			return nil, err
		}
	}

	// Claims: 15, distributed over insureds (0-2 each plus remainder on
	// the first), each RELATED_TO a coverage. Fixture claim CL4001 is
	// approved for $5,000, filed by John Doe against C3001; CL4002 is
	// denied, also John Doe's.
	for i := 0; i < 15; i++ {
		num := fmt.Sprintf("CL%d", claimBase+1+i)
		status := syntheticClaimStatuses[rng.Intn(len(syntheticClaimStatuses))]
		amount := 500 + rng.Intn(40)*250
		if i == 0 {
			status, amount = "approved", 5000
		}
		if i == 1 {
			status = "denied"
		}
		meta := fmt.Sprintf(
			`{"claim_number":%q,"status":%q,"amount":%d,"date_of_loss":"2025-0%d-1%d"}`,
			num, status, amount, i%9+1, i%3)
		cid, err := upsert(num, "claim", "synthetic claim "+num, meta)
		if err != nil {
			return nil, fmt.Errorf("seeding claim: %w", err)
		}
		g.Claims = append(g.Claims, num)

		filer := insuredIDs[rng.Intn(len(insuredIDs))]
		coverage := coverageIDs[rng.Intn(len(coverageIDs))]
		if i < 2 {
			filer = insuredIDs[0]
		}
		if i == 0 {
			coverage = coverageIDs[0]
		}
		if err := relate(filer, cid, "FILES_CLAIM"); err != nil {
			return nil, err
		}
		if err := relate(cid, coverage, "RELATED_TO"); err != nil {
			return nil, err
		}
	}

	// Definitions, so the glossary path has something to resolve.
	definitions := []struct{ term, meaning string }{
		{"deductible", "the amount the insured pays out of pocket before the insurer pays a covered loss"},
		{"actual cash value", "the replacement cost of damaged property minus depreciation at the time of loss"},
		{"peril", "a cause of loss covered by the policy, such as fire, windstorm, or theft"},
	}
	for _, d := range definitions {
		meta := fmt.Sprintf(`{"term":%q,"meaning":%q}`, d.term, d.meaning)
		if _, err := upsert(d.term, "definition", d.meaning, meta); err != nil {
			return nil, fmt.Errorf("seeding definition: %w", err)
		}
		g.Definitions = append(g.Definitions, d.term)
	}

	return g, nil
}

// ExtendSyntheticGraph adds n extra policies in the P9000+ range, used
// by the automated fixes when the graph proved too small for a suite.
func ExtendSyntheticGraph(ctx context.Context, s *store.Store, seed int64, n int) ([]string, error) {
	rng := rand.New(rand.NewSource(seed))
	var added []string
	for i := 0; i < n; i++ {
		num := fmt.Sprintf("P%d", extendBase+1+i)
		ptype := syntheticPolicyTypes[rng.Intn(len(syntheticPolicyTypes))]
		meta := fmt.Sprintf(
			`{"policy_number":%q,"type":%q,"status":"active","effective_date":"2025-01-01","expiration_date":"2026-01-01"}`,
			num, ptype)
		if _, err := s.UpsertEntity(ctx, store.Entity{
			Name: num, EntityType: "policy",
			Description: ptype + " policy " + num, Metadata: meta,
		}); err != nil {
			return added, err
		}
		added = append(added, num)
	}
	return added, nil
}

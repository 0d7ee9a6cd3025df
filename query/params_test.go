package query

import (
	"reflect"
	"testing"
)

func TestExtractIdentifiers(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		intent     Intent
		wantPolicy string
		wantClaim  string
	}{
		{"policy number plain", "Tell me about policy P1001", IntentPolicyDetails, "P1001", ""},
		{"policy number labelled", "policy number: HO-12345", IntentPolicyDetails, "HO-12345", ""},
		{"policy hash", "policy #P2002 details", IntentPolicyDetails, "P2002", ""},
		{"claim number plain", "status of claim CL4001", IntentClaimStatus, "", "CL4001"},
		{"claim no abbreviation", "claim no. CL4001 update", IntentClaimStatus, "", "CL4001"},
		{"no digits means no identifier", "What does my policy cover?", IntentCoverageInquiry, "", ""},
		{"claim without number", "my claim about the accident", IntentClaimStatus, "", ""},
		{"both identifiers", "Was claim CL4001 filed under policy P1001?", IntentClaimStatus, "P1001", "CL4001"},
		{"skips word catches later id", "my policy covers fire, see policy P1001", IntentPolicyDetails, "P1001", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.query, tt.intent, UserContext{})
			if got.PolicyNumber != tt.wantPolicy {
				t.Errorf("PolicyNumber = %q, want %q", got.PolicyNumber, tt.wantPolicy)
			}
			if got.ClaimNumber != tt.wantClaim {
				t.Errorf("ClaimNumber = %q, want %q", got.ClaimNumber, tt.wantClaim)
			}
		})
	}
}

func TestExtractDateAndAmount(t *testing.T) {
	p := Extract("I filed a claim on 06/15/2023 with a deductible of $1,000", IntentClaimStatus, UserContext{})
	if p.DateReference != "2023-06-15" {
		t.Errorf("DateReference = %q, want 2023-06-15", p.DateReference)
	}
	if p.AmountReference != "1000" {
		t.Errorf("AmountReference = %q, want 1000", p.AmountReference)
	}
}

func TestExtractDateUnparseablePassesThrough(t *testing.T) {
	p := Extract("the incident happened on 45/99/2023", IntentClaimStatus, UserContext{})
	if p.DateReference != "45/99/2023" {
		t.Errorf("DateReference = %q, want raw 45/99/2023", p.DateReference)
	}
}

func TestExtractCoverageTypes(t *testing.T) {
	p := Extract("Am I covered for water damage and fire?", IntentCoverageInquiry, UserContext{})
	want := []string{"fire", "water damage"}
	if !reflect.DeepEqual(p.CoverageTypes, want) {
		t.Errorf("CoverageTypes = %v, want %v", p.CoverageTypes, want)
	}
}

func TestExtractPolicyType(t *testing.T) {
	p := Extract("Tell me about my auto policy", IntentPolicyDetails, UserContext{})
	if p.PolicyType != "auto" {
		t.Errorf("PolicyType = %q, want auto", p.PolicyType)
	}

	// Policy type extraction only runs for policy_details.
	p = Extract("Tell me about my auto policy", IntentCoverageInquiry, UserContext{})
	if p.PolicyType != "" {
		t.Errorf("PolicyType = %q, want empty for non-policy intent", p.PolicyType)
	}
}

func TestExtractInquiryFlags(t *testing.T) {
	p := Extract("Has my claim been approved and when is the payment?", IntentClaimStatus, UserContext{})
	if !p.StatusInquiry {
		t.Error("StatusInquiry = false, want true")
	}
	if !p.PaymentInquiry {
		t.Error("PaymentInquiry = false, want true")
	}

	p = Extract("When is my next premium payment due?", IntentPremiumInformation, UserContext{})
	if !p.DueDateInquiry {
		t.Error("DueDateInquiry = false, want true")
	}
	if p.PremiumChangeInquiry {
		t.Error("PremiumChangeInquiry = true, want false")
	}

	p = Extract("Why did my premium increase this year?", IntentPremiumInformation, UserContext{})
	if !p.PremiumChangeInquiry {
		t.Error("PremiumChangeInquiry = false, want true")
	}
}

func TestExtractTerm(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"What is a deductible?", "a deductible"},
		{"Define subrogation", "subrogation"},
		{"What does endorsement mean?", "endorsement"},
		{"meaning of actual cash value", "actual cash value"},
		{"definition of peril", "peril"},
		{"deductible definition", "deductible"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := Extract(tt.query, IntentDefinitionInquiry, UserContext{})
			if p.Term != tt.want {
				t.Errorf("Term = %q, want %q", p.Term, tt.want)
			}
		})
	}
}

func TestExtractUserContext(t *testing.T) {
	p := Extract("What are my policy details?", IntentPolicyDetails, UserContext{UserID: "U5001"})
	if p.UserID != "U5001" {
		t.Errorf("UserID = %q, want U5001", p.UserID)
	}
}

func TestParamsMap(t *testing.T) {
	p := Params{
		PolicyNumber:  "P1001",
		CoverageTypes: []string{"fire", "theft"},
		Term:          "deductible",
		StatusInquiry: true,
	}
	m := p.Map()

	want := map[string]string{
		"policy_number":  "P1001",
		"coverage_types": "fire, theft",
		"term":           "deductible",
		"status_inquiry": "true",
	}
	if !reflect.DeepEqual(m, want) {
		t.Errorf("Map() = %v, want %v", m, want)
	}
}

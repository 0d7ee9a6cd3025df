package qa

import (
	"strings"

	"github.com/evanhollis/covergraph/query"
)

// longPadding stresses the classifier with a query far beyond normal
// conversational length.
var longPadding = strings.TrimSpace(strings.Repeat("I really need to know this because it matters a lot. ", 40))

// Persona names the user context a case runs under.
const (
	PersonaAnonymous        = "anonymous"
	PersonaNewCustomer      = "new_customer"
	PersonaExistingCustomer = "existing_customer"
	PersonaClaimFiler       = "claim_filer"
	PersonaAnxiousCustomer  = "anxious_customer"
)

// personas maps persona names to the session context the harness
// injects. The identifiers match the synthetic fixture.
var personas = map[string]query.UserContext{
	PersonaAnonymous:   {},
	PersonaNewCustomer: {UserID: "U5002"},
	PersonaExistingCustomer: {
		UserID:        "U5001",
		KnownPolicies: []string{"P1001"},
	},
	PersonaClaimFiler: {
		UserID:        "U5001",
		KnownPolicies: []string{"P1001"},
		KnownClaims:   []string{"CL4001"},
	},
	PersonaAnxiousCustomer: {
		UserID:        "U5001",
		KnownPolicies: []string{"P1001"},
		KnownClaims:   []string{"CL4002"},
	},
}

// Expect declares the assertions the harness checks against an
// Outcome. Zero values mean "don't care".
type Expect struct {
	Intent          query.Intent      `json:"intent,omitempty"`
	MinConfidence   float64           `json:"min_confidence,omitempty"`
	Params          map[string]string `json:"params,omitempty"`
	CountMin        int               `json:"count_min,omitempty"`
	CountMax        int               `json:"count_max,omitempty"` // only checked when > 0
	Contains        []string          `json:"contains,omitempty"`
	NotContains     []string          `json:"not_contains,omitempty"`
	Automated       bool              `json:"automated,omitempty"`
	Escalated       bool              `json:"escalated,omitempty"`
	PropertiesExist []string          `json:"properties_exist,omitempty"`
}

// Case is one scripted question. Multi-turn scenarios put the earlier
// turns in Setup; the assertions apply to Query.
type Case struct {
	Name    string   `json:"name"`
	Persona string   `json:"persona,omitempty"`
	Setup   []string `json:"setup,omitempty"`
	Query   string   `json:"query"`
	Expect  Expect   `json:"expect"`
}

// Suite is a named group of cases exercising one pipeline stage.
type Suite struct {
	Name  string `json:"name"`
	Cases []Case `json:"cases"`
}

// Suite names, in the order BuiltinSuites returns them.
const (
	SuiteIntentRecognition   = "intent_recognition"
	SuiteParameterExtraction = "parameter_extraction"
	SuiteGraphQuerying       = "graph_querying"
	SuiteResponseGeneration  = "response_generation"
	SuiteEndToEnd            = "end_to_end"
	SuiteEdgeCases           = "edge_cases"
	SuiteCompliance          = "compliance"
)

// BuiltinSuites returns the scripted suites that cover the pipeline
// from intent classification through the automation decision. They
// assume the synthetic fixture graph is loaded.
func BuiltinSuites() []Suite {
	return []Suite{
		intentRecognitionSuite(),
		parameterExtractionSuite(),
		graphQueryingSuite(),
		responseGenerationSuite(),
		endToEndSuite(),
		edgeCaseSuite(),
		complianceSuite(),
	}
}

func intentRecognitionSuite() Suite {
	return Suite{
		Name: SuiteIntentRecognition,
		Cases: []Case{
			{
				Name:   "policy details",
				Query:  "Show me the policy details for policy P1001",
				Expect: Expect{Intent: query.IntentPolicyDetails, MinConfidence: 0.8},
			},
			{
				Name:   "coverage inquiry",
				Query:  "What does my policy cover?",
				Expect: Expect{Intent: query.IntentCoverageInquiry, MinConfidence: 0.8},
			},
			{
				Name:   "claim status",
				Query:  "What's the status of my claim CL4001?",
				Expect: Expect{Intent: query.IntentClaimStatus, MinConfidence: 0.8},
			},
			{
				Name:   "premium information",
				Query:  "How much is my premium?",
				Expect: Expect{Intent: query.IntentPremiumInformation, MinConfidence: 0.8},
			},
			{
				Name:   "filing claim",
				Query:  "How do I file a claim?",
				Expect: Expect{Intent: query.IntentFilingClaim, MinConfidence: 0.8},
			},
			{
				Name:   "definition inquiry",
				Query:  "What is a deductible?",
				Expect: Expect{Intent: query.IntentDefinitionInquiry, MinConfidence: 0.8},
			},
			{
				Name:   "off-topic falls back to unknown",
				Query:  "What will the weather be like tomorrow?",
				Expect: Expect{Intent: query.IntentUnknown},
			},
		},
	}
}

func parameterExtractionSuite() Suite {
	return Suite{
		Name: SuiteParameterExtraction,
		Cases: []Case{
			{
				Name:   "policy number",
				Query:  "Show me the policy details for policy P1001",
				Expect: Expect{Params: map[string]string{"policy_number": "P1001"}},
			},
			{
				Name:   "claim number",
				Query:  "What's the status of my claim CL4001?",
				Expect: Expect{Params: map[string]string{"claim_number": "CL4001"}},
			},
			{
				Name:   "coverage types, sorted",
				Query:  "Am I covered for water damage and fire?",
				Expect: Expect{Params: map[string]string{"coverage_types": "fire, water damage"}},
			},
			{
				Name:   "policy type",
				Query:  "Tell me about my policy, the auto one",
				Expect: Expect{Params: map[string]string{"policy_type": "auto"}},
			},
			{
				Name:   "definition term",
				Query:  "Define subrogation",
				Expect: Expect{Params: map[string]string{"term": "subrogation"}},
			},
			{
				Name:    "user context carries through",
				Persona: PersonaExistingCustomer,
				Query:   "Show me the policy details for policy P1001",
				Expect:  Expect{Params: map[string]string{"user_id": "U5001"}},
			},
		},
	}
}

func graphQueryingSuite() Suite {
	return Suite{
		Name: SuiteGraphQuerying,
		Cases: []Case{
			{
				Name:  "policy lookup by number",
				Query: "Show me the policy details for policy P1001",
				Expect: Expect{
					CountMin:        1,
					CountMax:        1,
					PropertiesExist: []string{"p.policy_number", "p.status"},
				},
			},
			{
				Name:  "coverage traversal",
				Query: "Coverage details for policy P1001",
				Expect: Expect{
					CountMin: 1,
					Contains: []string{"liability"},
				},
			},
			{
				Name:  "premium traversal",
				Query: "How much is my premium for policy P1001?",
				Expect: Expect{
					CountMin: 1,
					Contains: []string{"$1200", "monthly"},
				},
			},
			{
				Name:  "claim lookup by number",
				Query: "What's the status of my claim CL4001?",
				Expect: Expect{
					CountMin: 1,
					CountMax: 1,
					Contains: []string{"approved"},
				},
			},
			{
				Name:  "unfiltered coverage listing spans the graph",
				Query: "What does my policy cover?",
				Expect: Expect{
					CountMin: 2,
				},
			},
		},
	}
}

func responseGenerationSuite() Suite {
	return Suite{
		Name: SuiteResponseGeneration,
		Cases: []Case{
			{
				Name:  "policy details render",
				Query: "Show me the policy details for policy P1001",
				Expect: Expect{
					Contains:    []string{"P1001", "active"},
					NotContains: []string{"{", "}"},
					Automated:   true,
				},
			},
			{
				Name:  "missing policy yields a helpful no-result",
				Query: "Show me the policy details for policy P8888",
				Expect: Expect{
					Contains: []string{"P8888", "couldn't find"},
				},
			},
			{
				Name:  "filing claim is procedural",
				Query: "How do I file a claim?",
				Expect: Expect{
					Contains:  []string{"claims department", "policy information"},
					Automated: true,
				},
			},
			{
				Name:  "definition resolves via fuzzy term match",
				Query: "What is a deductible?",
				Expect: Expect{
					Contains:  []string{"deductible", "means"},
					Automated: true,
				},
			},
		},
	}
}

func endToEndSuite() Suite {
	return Suite{
		Name: SuiteEndToEnd,
		Cases: []Case{
			{
				Name:    "claim follow-up in session",
				Persona: PersonaClaimFiler,
				Setup:   []string{"Show me the policy details for policy P1001"},
				Query:   "What's the status of my claim CL4001?",
				Expect: Expect{
					Intent:   query.IntentClaimStatus,
					Contains: []string{"CL4001", "approved"},
				},
			},
			{
				Name:    "premium after policy lookup",
				Persona: PersonaExistingCustomer,
				Setup:   []string{"Show me the policy details for policy P1001"},
				Query:   "How much is my premium for policy P1001?",
				Expect: Expect{
					Intent:   query.IntentPremiumInformation,
					Contains: []string{"$1200"},
				},
			},
			{
				Name:    "coverage then filing guidance",
				Persona: PersonaNewCustomer,
				Setup:   []string{"What does my policy cover?"},
				Query:   "How do I file a claim?",
				Expect: Expect{
					Intent:    query.IntentFilingClaim,
					Automated: true,
				},
			},
		},
	}
}

func edgeCaseSuite() Suite {
	return Suite{
		Name: SuiteEdgeCases,
		Cases: []Case{
			{
				Name:   "empty query escalates for clarification",
				Query:  "",
				Expect: Expect{Intent: query.IntentUnknown, Escalated: true},
			},
			{
				Name:  "very long query still classifies",
				Query: "What does my policy cover? " + longPadding,
				Expect: Expect{
					Intent:      query.IntentCoverageInquiry,
					NotContains: []string{"{"},
				},
			},
			{
				Name:   "nonsense escalates",
				Query:  "asdf qwerty zxcv plugh xyzzy",
				Expect: Expect{Intent: query.IntentUnknown, Escalated: true},
			},
			{
				Name:  "special characters don't break rendering",
				Query: "status of my claim CL4001 ?!?! @#$%",
				Expect: Expect{
					NotContains: []string{"{", "}"},
				},
			},
		},
	}
}

func complianceSuite() Suite {
	return Suite{
		Name: SuiteCompliance,
		Cases: []Case{
			{
				Name:    "legal language escalates",
				Persona: PersonaAnxiousCustomer,
				Query:   "I will sue you over the status of my claim CL4001",
				Expect:  Expect{Escalated: true},
			},
			{
				Name:    "denied claim gets human review",
				Persona: PersonaAnxiousCustomer,
				Query:   "What's the status of my claim CL4002?",
				Expect: Expect{
					Contains:  []string{"CL4002", "denied"},
					Escalated: true,
				},
			},
			{
				Name:  "clean coverage answer automates",
				Query: "Coverage details for policy P1001",
				Expect: Expect{
					Automated:   true,
					NotContains: []string{"guarantee"},
				},
			},
		},
	}
}

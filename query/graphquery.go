package query

// Filter operators understood by the executor.
const (
	OpEqual    = "="
	OpNotEqual = "!="
	OpGreater  = ">"
	OpLess     = "<"
	OpContains = "CONTAINS"
	OpOr       = "OR"
)

// Relationship directions.
const (
	DirectionOut  = "out"
	DirectionIn   = "in"
	DirectionBoth = "both"
)

// Schema-level relationship names used in query patterns.
const (
	RelInsures     = "INSURES"
	RelHasCoverage = "HAS_COVERAGE"
	RelHasPremium  = "HAS_PREMIUM"
	RelFilesClaim  = "FILES_CLAIM"
)

// Claims-department contact details for procedural answers.
const (
	ClaimsContact      = "1-800-555-CLAIM or claims@example-insurance.com"
	ClaimsRequiredInfo = "policy information, date and details of incident, photos if applicable"
)

// Node identifies a labelled node set in a graph query.
type Node struct {
	Label string `json:"label"`
	Alias string `json:"alias"`
}

// Relationship names a typed edge and the direction to follow it.
type Relationship struct {
	Type      string `json:"type"`
	Direction string `json:"direction"`
}

// Path is one hop in a graph query pattern.
type Path struct {
	From Node         `json:"from"`
	Rel  Relationship `json:"relationship"`
	To   Node         `json:"to"`
}

// Property names a value to return, scoped to a node alias.
type Property struct {
	Node     string `json:"node"`
	Property string `json:"property"`
}

// Filter constrains matched nodes. Operator OR groups Conditions; the
// group passes when any condition scoped to the evaluated alias passes.
type Filter struct {
	Node       string   `json:"node,omitempty"`
	Property   string   `json:"property,omitempty"`
	Operator   string   `json:"operator"`
	Value      string   `json:"value,omitempty"`
	Conditions []Filter `json:"conditions,omitempty"`
}

// GraphQuery is a declarative pattern over the entity graph. Procedural
// queries carry canned process content and skip the graph entirely.
type GraphQuery struct {
	StartNodes       []Node     `json:"start_nodes"`
	Paths            []Path     `json:"paths,omitempty"`
	ReturnProperties []Property `json:"return_properties,omitempty"`
	Filters          []Filter   `json:"filters,omitempty"`

	Procedural   bool   `json:"procedural,omitempty"`
	RequiredInfo string `json:"required_info,omitempty"`
	Contact      string `json:"contact,omitempty"`
}

// Build constructs the graph query for a classified intent.
func Build(intent Intent, params Params) *GraphQuery {
	switch intent {
	case IntentPolicyDetails:
		return buildPolicyDetails(params)
	case IntentCoverageInquiry:
		return buildCoverageInquiry(params)
	case IntentClaimStatus:
		return buildClaimStatus(params)
	case IntentPremiumInformation:
		return buildPremiumInformation(params)
	case IntentFilingClaim:
		return &GraphQuery{
			Procedural:   true,
			RequiredInfo: ClaimsRequiredInfo,
			Contact:      ClaimsContact,
		}
	case IntentDefinitionInquiry:
		return buildDefinitionInquiry(params)
	default:
		return &GraphQuery{
			StartNodes:       []Node{{Label: "Policy", Alias: "p"}},
			ReturnProperties: []Property{{Node: "p", Property: "policy_number"}},
		}
	}
}

func buildPolicyDetails(params Params) *GraphQuery {
	q := &GraphQuery{
		StartNodes: []Node{{Label: "Policy", Alias: "p"}},
		ReturnProperties: []Property{
			{Node: "p", Property: "policy_number"},
			{Node: "p", Property: "effective_date"},
			{Node: "p", Property: "expiration_date"},
			{Node: "p", Property: "status"},
			{Node: "p", Property: "type"},
		},
	}
	if params.PolicyNumber != "" {
		q.Filters = append(q.Filters, Filter{
			Node: "p", Property: "policy_number", Operator: OpEqual, Value: params.PolicyNumber,
		})
	}
	if params.PolicyType != "" {
		q.Filters = append(q.Filters, Filter{
			Node: "p", Property: "type", Operator: OpEqual, Value: params.PolicyType,
		})
	}
	if params.UserID != "" {
		q.Paths = append(q.Paths, Path{
			From: Node{Label: "Policy", Alias: "p"},
			Rel:  Relationship{Type: RelInsures, Direction: DirectionOut},
			To:   Node{Label: "Insured", Alias: "i"},
		})
		q.Filters = append(q.Filters, Filter{
			Node: "i", Property: "id_number", Operator: OpEqual, Value: params.UserID,
		})
		q.ReturnProperties = append(q.ReturnProperties, Property{Node: "i", Property: "name"})
	}
	return q
}

func buildCoverageInquiry(params Params) *GraphQuery {
	q := &GraphQuery{
		StartNodes: []Node{{Label: "Policy", Alias: "p"}},
		Paths: []Path{{
			From: Node{Label: "Policy", Alias: "p"},
			Rel:  Relationship{Type: RelHasCoverage, Direction: DirectionOut},
			To:   Node{Label: "Coverage", Alias: "c"},
		}},
		ReturnProperties: []Property{
			{Node: "p", Property: "policy_number"},
			{Node: "c", Property: "type"},
			{Node: "c", Property: "limit"},
			{Node: "c", Property: "deductible"},
		},
	}
	if params.PolicyNumber != "" {
		q.Filters = append(q.Filters, Filter{
			Node: "p", Property: "policy_number", Operator: OpEqual, Value: params.PolicyNumber,
		})
	}
	if len(params.CoverageTypes) > 0 {
		conditions := make([]Filter, 0, len(params.CoverageTypes))
		for _, ct := range params.CoverageTypes {
			conditions = append(conditions, Filter{
				Node: "c", Property: "type", Operator: OpEqual, Value: ct,
			})
		}
		q.Filters = append(q.Filters, Filter{Operator: OpOr, Conditions: conditions})
	}
	return q
}

func buildClaimStatus(params Params) *GraphQuery {
	q := &GraphQuery{
		StartNodes: []Node{{Label: "Claim", Alias: "c"}},
		ReturnProperties: []Property{
			{Node: "c", Property: "claim_number"},
			{Node: "c", Property: "date_of_loss"},
			{Node: "c", Property: "status"},
			{Node: "c", Property: "amount"},
		},
	}
	if params.ClaimNumber != "" {
		q.Filters = append(q.Filters, Filter{
			Node: "c", Property: "claim_number", Operator: OpEqual, Value: params.ClaimNumber,
		})
	}
	if params.UserID != "" {
		// Pivot to the filing insured so the claim set is scoped to the
		// session identity.
		q.StartNodes = []Node{{Label: "Insured", Alias: "i"}}
		q.Paths = append(q.Paths, Path{
			From: Node{Label: "Insured", Alias: "i"},
			Rel:  Relationship{Type: RelFilesClaim, Direction: DirectionOut},
			To:   Node{Label: "Claim", Alias: "c"},
		})
		q.Filters = append(q.Filters, Filter{
			Node: "i", Property: "id_number", Operator: OpEqual, Value: params.UserID,
		})
	}
	return q
}

func buildPremiumInformation(params Params) *GraphQuery {
	q := &GraphQuery{
		StartNodes: []Node{{Label: "Policy", Alias: "p"}},
		Paths: []Path{{
			From: Node{Label: "Policy", Alias: "p"},
			Rel:  Relationship{Type: RelHasPremium, Direction: DirectionOut},
			To:   Node{Label: "Premium", Alias: "pr"},
		}},
		ReturnProperties: []Property{
			{Node: "p", Property: "policy_number"},
			{Node: "pr", Property: "amount"},
			{Node: "pr", Property: "payment_frequency"},
			{Node: "pr", Property: "due_date"},
		},
	}
	if params.PolicyNumber != "" {
		q.Filters = append(q.Filters, Filter{
			Node: "p", Property: "policy_number", Operator: OpEqual, Value: params.PolicyNumber,
		})
	}
	if params.UserID != "" {
		q.Paths = append(q.Paths, Path{
			From: Node{Label: "Policy", Alias: "p"},
			Rel:  Relationship{Type: RelInsures, Direction: DirectionOut},
			To:   Node{Label: "Insured", Alias: "i"},
		})
		q.Filters = append(q.Filters, Filter{
			Node: "i", Property: "id_number", Operator: OpEqual, Value: params.UserID,
		})
	}
	return q
}

func buildDefinitionInquiry(params Params) *GraphQuery {
	q := &GraphQuery{
		StartNodes: []Node{{Label: "Definition", Alias: "d"}},
		ReturnProperties: []Property{
			{Node: "d", Property: "term"},
			{Node: "d", Property: "meaning"},
		},
	}
	if params.Term != "" {
		q.Filters = append(q.Filters, Filter{
			Operator: OpOr,
			Conditions: []Filter{
				{Node: "d", Property: "term", Operator: OpEqual, Value: params.Term},
				{Node: "d", Property: "term", Operator: OpContains, Value: params.Term},
				{Node: "d", Property: "aliases", Operator: OpContains, Value: params.Term},
			},
		})
	}
	return q
}

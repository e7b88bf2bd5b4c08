package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// priceTable is the fixed service/package price list. Amounts are GYD.
var priceTable = map[string]map[string]int{
	"social_media": {
		"standard":  35000,
		"premium":   50000,
		"executive": 75000,
	},
	"compliance": {
		"gra":                   15000,
		"nis":                   15000,
		"business_registration": 10000,
		"company_registration":  120000,
	},
	"incorporation": {
		"company_incorporation": 260000,
	},
}

const contactLine = "WhatsApp +592 679 2338 / marketingimpact20@gmail.com"

type serviceDetail struct {
	Service     string      `json:"service"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Packages    []quoteLine `json:"packages,omitempty"`
	Contact     string      `json:"contact"`
	Found       bool        `json:"found"`
}

var serviceCatalog = map[string]serviceDetail{
	"social_media": {
		Service:     "social_media",
		Name:        "Social Media Management",
		Description: "Content creation, scheduling and account management across platforms.",
	},
	"graphic_design": {
		Service:     "graphic_design",
		Name:        "Graphic Design & Branding",
		Description: "Logos, brand identities and marketing collateral.",
	},
	"compliance": {
		Service:     "compliance",
		Name:        "Compliance & Registration",
		Description: "GRA and NIS compliance, business and company registration filings.",
	},
	"incorporation": {
		Service:     "incorporation",
		Name:        "Company Incorporation",
		Description: "Full company incorporation handling, documents included.",
	},
	"event_management": {
		Service:     "event_management",
		Name:        "Event Management",
		Description: "Corporate and promotional event planning and execution.",
	},
	"business_development": {
		Service:     "business_development",
		Name:        "Business Development",
		Description: "Growth strategy, partnerships and market positioning.",
	},
	"administrative_support": {
		Service:     "administrative_support",
		Name:        "Administrative Support",
		Description: "Back-office and administrative assistance for small businesses.",
	},
}

type quoteItem struct {
	Service  string `json:"service" validate:"required"`
	Package  string `json:"package" validate:"required"`
	Quantity int    `json:"quantity,omitempty" validate:"omitempty,gte=1"`
}

type quoteRequest struct {
	Service  string      `json:"service,omitempty"`
	Package  string      `json:"package,omitempty"`
	Services []quoteItem `json:"services,omitempty" validate:"omitempty,dive"`
}

type quoteLine struct {
	Service string `json:"service,omitempty"`
	Package string `json:"package"`
	Amount  int    `json:"amount"`
}

type quoteResult struct {
	Currency string      `json:"currency"`
	Total    int         `json:"total"`
	Lines    []quoteLine `json:"lines"`
}

// lookupPrice resolves one service/package pair. Unrecognized composite
// keys resolve to zero rather than failing the request.
func lookupPrice(service, pkg string) int {
	pkgs, ok := priceTable[normalizeKey(service)]
	if !ok {
		return 0
	}
	return pkgs[normalizeKey(pkg)]
}

func normalizeKey(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(strings.ToLower(s)), " ", "_")
}

// QuoteTool prices one or more service/package line items.
func QuoteTool() Tool {
	return Tool{
		Name:        "calculateQuote",
		Description: "Calculate a price quote for one or more services. Accepts either a single service/package pair or a list under services.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"service": {"type": "string"},
				"package": {"type": "string"},
				"services": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"service": {"type": "string"},
							"package": {"type": "string"},
							"quantity": {"type": "integer"}
						},
						"required": ["service", "package"]
					}
				}
			}
		}`),
		Call: func(_ context.Context, args json.RawMessage) (any, error) {
			var req quoteRequest
			if err := json.Unmarshal(args, &req); err != nil {
				return nil, err
			}
			items := req.Services
			if len(items) == 0 && req.Service != "" {
				items = []quoteItem{{Service: req.Service, Package: req.Package, Quantity: 1}}
			}
			if len(items) == 0 {
				return nil, errors.New("calculateQuote: no line items given")
			}
			for i := range items {
				if err := validate.Struct(&items[i]); err != nil {
					return nil, err
				}
			}
			res := quoteResult{Currency: "GYD", Lines: make([]quoteLine, 0, len(items))}
			for _, it := range items {
				qty := it.Quantity
				if qty == 0 {
					qty = 1
				}
				amount := lookupPrice(it.Service, it.Package) * qty
				res.Lines = append(res.Lines, quoteLine{Service: it.Service, Package: it.Package, Amount: amount})
				res.Total += amount
			}
			return res, nil
		},
	}
}

type serviceDetailsRequest struct {
	Service string `json:"service" validate:"required"`
}

// ServiceDetailsTool returns the catalog record for a service. Unknown
// services return a not-found record, not an error.
func ServiceDetailsTool() Tool {
	return Tool{
		Name:        "getServiceDetails",
		Description: "Look up the detail record for a named service, including available packages and prices.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"service": {"type": "string"}
			},
			"required": ["service"]
		}`),
		Call: func(_ context.Context, args json.RawMessage) (any, error) {
			var req serviceDetailsRequest
			if err := json.Unmarshal(args, &req); err != nil {
				return nil, err
			}
			if err := validate.Struct(&req); err != nil {
				return nil, err
			}
			key := normalizeKey(req.Service)
			detail, ok := serviceCatalog[key]
			if !ok {
				return serviceDetail{Service: req.Service, Contact: contactLine, Found: false}, nil
			}
			detail.Found = true
			detail.Contact = contactLine
			for pkg, amount := range priceTable[key] {
				detail.Packages = append(detail.Packages, quoteLine{Package: pkg, Amount: amount})
			}
			return detail, nil
		},
	}
}

type retentionRequest struct {
	CustomerID       string `json:"customer_id" validate:"required"`
	AccountType      string `json:"account_type" validate:"required"`
	CurrentPlan      string `json:"current_plan" validate:"required"`
	TenureMonths     int    `json:"tenure_months" validate:"gte=0"`
	RecentComplaints bool   `json:"recent_complaints"`
}

type retentionOffer struct {
	Type        string `json:"type"`
	Value       string `json:"value"`
	Duration    string `json:"duration"`
	Description string `json:"description"`
}

// RetentionOffersTool retrieves the retention offers a customer
// qualifies for.
func RetentionOffersTool() Tool {
	return Tool{
		Name:        "getRetentionOffers",
		Description: "Retrieve possible retention offers for a customer.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"customer_id": {"type": "string"},
				"account_type": {"type": "string"},
				"current_plan": {"type": "string"},
				"tenure_months": {"type": "integer"},
				"recent_complaints": {"type": "boolean"}
			},
			"required": ["customer_id", "account_type", "current_plan", "tenure_months", "recent_complaints"]
		}`),
		Call: func(_ context.Context, args json.RawMessage) (any, error) {
			var req retentionRequest
			if err := json.Unmarshal(args, &req); err != nil {
				return nil, err
			}
			if err := validate.Struct(&req); err != nil {
				return nil, err
			}
			offers := []retentionOffer{{
				Type:        "discount",
				Value:       "20%",
				Duration:    "1 year",
				Description: "20% discount available for 1 year commitment",
			}}
			if req.TenureMonths >= 24 {
				offers = append(offers, retentionOffer{
					Type:        "loyalty",
					Value:       "1 month",
					Duration:    "once",
					Description: "One complimentary month for long-standing customers",
				})
			}
			return map[string]any{"offers": offers}, nil
		},
	}
}

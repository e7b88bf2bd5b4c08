package chat

import "encoding/json"

const classificationInstructions = `Classify the user's intent into one of the following categories: "service_inquiry", "pricing_inquiry", "booking_request", "get_information", or "general_question".

1. Any questions about specific services (social media management, graphic design, compliance, etc.) should route to service_inquiry.
2. Any questions about pricing, costs, or packages should route to pricing_inquiry.
3. Any request to book, schedule, or start a service or consultation should route to booking_request.
4. Any other specific information requests should go to get_information.
5. Everything else should go to general_question.`

const serviceInquiryInstructions = `You are a helpful assistant for Impact Business Solutions. Answer questions about our services including:
- Social Media Management (Standard $35,000, Premium $50,000, Executive $75,000)
- Graphic Design & Branding
- Compliance & Registration (GRA $15,000, NIS $15,000, Business Registration $10,000, Company Registration $120,000)
- Company Incorporation ($260,000)
- Event Management
- Business Development
- Administrative Support

Provide detailed, helpful information about these services.`

const pricingInquiryInstructions = `You are a pricing specialist for Impact Business Solutions. Provide accurate pricing information:
- Social Media: Standard $35,000, Premium $50,000, Executive $75,000
- Compliance: GRA $15,000, NIS $15,000, Business Registration $10,000, Company Registration $120,000
- Company Incorporation: $260,000

Use the calculateQuote tool to produce exact totals when the customer names a service and package.
Always mention that customers can contact us on WhatsApp at +592 679 2338 for detailed quotes.`

const bookingInstructions = `You are a booking assistant for Impact Business Solutions. Help customers book consultations and start services.
Use the getServiceDetails tool to confirm what a service includes before booking.
Collect the customer's preferred service and a way to reach them, then confirm that our team will follow up on WhatsApp at +592 679 2338 to finalize the booking.`

const informationInstructions = `You are an information agent for Impact Business Solutions. Provide clear, concise responses about our company, services, and how we can help businesses in Guyana.

Key information:
- Founded in 2021
- Based in Georgetown, Guyana
- Contact: +592 679 2338 (WhatsApp), marketingimpact20@gmail.com
- Services: Digital Marketing, Social Media Management, Graphic Design, Compliance, Business Development, Event Management
- Tagline: "Making an Impact, One Solution at a Time"

Always be helpful and encourage users to contact us for more information.`

var defaultDecoding = DecodingParams{Temperature: 1, TopP: 1, MaxTokens: 2048}

// Strict structured output requires every declared property to be
// listed in required; optional fields are expressed as nullable types.
var classificationSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"classification": {
			"type": "string",
			"enum": ["service_inquiry", "pricing_inquiry", "booking_request", "get_information", "general_question"]
		},
		"confidence": {"type": ["number", "null"]},
		"entities": {"type": ["array", "null"], "items": {"type": "string"}}
	},
	"required": ["classification", "confidence", "entities"],
	"additionalProperties": false
}`)

// ClassificationPersona is the fallback classifier, constrained to the
// closed category set.
func ClassificationPersona() *Persona {
	return &Persona{
		Name:             "Classification agent",
		Instructions:     classificationInstructions,
		Decoding:         defaultDecoding,
		OutputSchemaName: "intent_classification",
		OutputSchema:     classificationSchema,
	}
}

// Registry maps every intent category to exactly one persona. Lookup
// never fails: unmapped categories resolve to the information persona.
type Registry struct {
	personas map[IntentCategory]*Persona
	fallback *Persona
}

func NewRegistry() *Registry {
	information := &Persona{
		Name:         "Information agent",
		Instructions: informationInstructions,
		Decoding:     defaultDecoding,
	}
	return &Registry{
		personas: map[IntentCategory]*Persona{
			IntentServiceInquiry: {
				Name:         "Service Inquiry Agent",
				Instructions: serviceInquiryInstructions,
				Decoding:     defaultDecoding,
			},
			IntentPricingInquiry: {
				Name:         "Pricing Inquiry Agent",
				Instructions: pricingInquiryInstructions,
				Decoding:     defaultDecoding,
				Tools:        []Tool{QuoteTool(), RetentionOffersTool()},
			},
			IntentBookingRequest: {
				Name:         "Booking Agent",
				Instructions: bookingInstructions,
				Decoding:     defaultDecoding,
				Tools:        []Tool{ServiceDetailsTool()},
			},
			IntentGetInformation:  information,
			IntentGeneralQuestion: information,
		},
		fallback: information,
	}
}

func (r *Registry) Lookup(cat IntentCategory) *Persona {
	if p, ok := r.personas[cat]; ok {
		return p
	}
	return r.fallback
}

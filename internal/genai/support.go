package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/commercebridge/commercebridge/internal/models"
)

// ErrNoLLM is returned by Answer when no template matches and no LLM is configured.
var ErrNoLLM = errors.New("no language model configured")

var (
	escalationKeywords = []string{
		"urgent", "emergency", "broken", "not working", "error", "failed",
		"hacked", "stolen", "fraud", "scam", "refund", "dispute", "complaint",
		"angry", "frustrated", "unhappy", "dissatisfied", "problem", "issue",
		"technical", "bug", "glitch", "crash", "freeze", "slow", "down",
	}
	emotionalIndicators = []string{"!", "??", "😠", "😡", "😤", "😭", "😢"}
	urgentPhrases       = []string{"asap", "immediately", "now", "urgent", "emergency"}

	priceValue   = regexp.MustCompile(`\$?\s?(\d+(?:\.\d{1,2})?)`)
	fieldLabel   = regexp.MustCompile(`(?i)\b(name|price|description|desc|category)\s*:`)
	jsonFence    = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
	wordSplitter = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

const escalationSystemPrompt = `You are an escalation detection system for customer support. Determine if a user question should be escalated to human support.

Escalate to human if the question involves:
- Urgent or emergency situations
- Technical errors or bugs
- Payment disputes or fraud concerns
- Account security issues
- Emotional distress or frustration
- Requests for immediate human assistance

Do NOT escalate for:
- General questions about features
- How-to questions
- Account creation help
- Basic platform usage questions

Respond with only "ESCALATE" or "HANDLE_AI" based on your assessment.`

const productSystemPrompt = `Extract a product listing from the seller's message.
Respond with a single JSON object and nothing else, using exactly these keys:
{"name": string, "price": number, "description": string, "category": string}
Use an empty string for unknown text fields and 0 for an unknown price.`

// template is a canned answer served without calling the model.
type template struct {
	match    func(q string) bool
	userType models.UserType
	answer   string
}

var templates = []template{
	{
		match:  containsAny("create account", "signup", "sign up", "register"),
		answer: "*To create your CommerceBridge account*, simply type *create account* or *signup* in this WhatsApp chat. I'll send you a registration link. All shopping and selling happens right here in WhatsApp!",
	},
	{
		match:  containsAll("browse", "product"),
		answer: "*To browse products*, type *1* for Customer in the main menu, then select *1* to browse. You can search and view all available products right here in WhatsApp.",
	},
	{
		match: func(q string) bool {
			return (strings.Contains(q, "upload") || strings.Contains(q, "add")) && strings.Contains(q, "product")
		},
		userType: models.UserTypeSeller,
		answer:   "*To upload products as a seller*, type *2* for Seller in the main menu, then select *1* to add products. Send product images and details through this WhatsApp chat.",
	},
	{
		match:  containsAll("track", "order"),
		answer: "*To track your orders*, select *4* (My Orders) from the customer menu. All order updates are sent to you here on WhatsApp.",
	},
	{
		match:    containsAny("sales", "report"),
		userType: models.UserTypeSeller,
		answer:   "*To view your sales report*, select *4* (Sales Report) from the seller menu. All analytics are available in WhatsApp.",
	},
	{
		match:  containsAny("how do i pay", "payment method", "how to pay"),
		answer: "*To pay for your order*, view your cart, type *checkout* and then *confirm*. I'll send you a secure payment link and a digital receipt once payment is done.",
	},
	{
		match:  containsAny("shipping", "delivery"),
		answer: "*Delivery details* are shared by the seller once your order is confirmed. You'll get every update right here in WhatsApp.",
	},
	{
		match:  containsAny("return policy", "how do i return", "return an item"),
		answer: "*Returns* are handled by our support team. Tell me your order number and what went wrong, and we'll take it from there.",
	},
}

func containsAny(words ...string) func(string) bool {
	return func(q string) bool {
		for _, w := range words {
			if strings.Contains(q, w) {
				return true
			}
		}
		return false
	}
}

func containsAll(words ...string) func(string) bool {
	return func(q string) bool {
		for _, w := range words {
			if !strings.Contains(q, w) {
				return false
			}
		}
		return true
	}
}

// Support answers help questions, decides escalation and parses product details.
// A nil model is allowed: canned answers, keyword escalation and the heuristic parser still work.
type Support struct {
	llm ClientInterface
}

// NewSupport creates the support service over an optional language model.
func NewSupport(llm ClientInterface) *Support {
	return &Support{llm: llm}
}

// ShouldEscalate reports whether a question needs a human agent.
func (s *Support) ShouldEscalate(ctx context.Context, question string, userType models.UserType) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	if keywordEscalation(q) {
		slog.Debug("Support.ShouldEscalate: keyword match", "userType", userType)
		return true
	}
	if s.llm == nil {
		return false
	}
	prompt := fmt.Sprintf("User type: %s\nQuestion: %s\n\nShould this be escalated to human support?", userType, question)
	decision, err := s.llm.GeneratePrompt(ctx, escalationSystemPrompt, prompt)
	if err != nil {
		slog.Warn("Support.ShouldEscalate: model call failed, using keyword result", "error", err)
		return false
	}
	return strings.EqualFold(strings.Trim(strings.TrimSpace(decision), `."'`), "ESCALATE")
}

func keywordEscalation(q string) bool {
	for _, k := range escalationKeywords {
		if strings.Contains(q, k) {
			return true
		}
	}
	emotional := false
	for _, e := range emotionalIndicators {
		if strings.Contains(q, e) {
			emotional = true
			break
		}
	}
	if !emotional {
		return false
	}
	for _, w := range wordSplitter.Split(q, -1) {
		for _, p := range urgentPhrases {
			if w == p {
				return true
			}
		}
	}
	return false
}

// Answer returns a canned answer when one fits, otherwise asks the model.
func (s *Support) Answer(ctx context.Context, question string, userType models.UserType, phone string) (string, error) {
	q := strings.ToLower(strings.TrimSpace(question))
	for _, t := range templates {
		if t.userType != "" && t.userType != userType {
			continue
		}
		if t.match(q) {
			return t.answer, nil
		}
	}
	if s.llm == nil {
		return "", ErrNoLLM
	}
	prompt := fmt.Sprintf("User question: %s\n\nIMPORTANT: This is for CommerceBridge, a WhatsApp-only e-commerce platform. Everything happens in WhatsApp through our chatbot. Do NOT mention websites, apps, or traditional e-commerce platforms.\n\nREMEMBER: Only give instructions for WhatsApp chat.", question)
	answer, err := s.llm.GeneratePrompt(ctx, supportSystemPrompt(userType, phone), prompt)
	if err != nil {
		return "", fmt.Errorf("support answer: %w", err)
	}
	return answer, nil
}

func supportSystemPrompt(userType models.UserType, phone string) string {
	if phone == "" {
		phone = "not provided"
	}
	var b strings.Builder
	b.WriteString(`You are a helpful customer support AI assistant for CommerceBridge, a WhatsApp-first e-commerce platform.

RULES:
- NEVER mention websites, apps, or anything outside WhatsApp.
- ONLY give instructions for WhatsApp chat and the CommerceBridge chatbot interface.
- ALWAYS use WhatsApp formatting: *bold* for emphasis, _italic_ for secondary info.
- If you don't know something specific, suggest they contact human support.
- Keep answers short and end with a helpful next step.

`)
	fmt.Fprintf(&b, "User context:\n- User type: %s\n- Phone: %s\n\n", userType, phone)
	if userType == models.UserTypeSeller {
		b.WriteString(`Seller menu:
1 Add Product (send at least 4 photos, then name, price and description)
2 My Products
3 View Orders
4 Sales Report
5 Help`)
	} else {
		b.WriteString(`Customer menu:
1 Browse Products (type a product number to add it to the cart)
2 Search Products
3 View Cart (checkout, remove N, clear cart)
4 My Orders
5 Help
New users type *create account* or *signup* to get a registration link.`)
	}
	return b.String()
}

// ParseProduct extracts product details from free text. The model is tried first, then a
// heuristic reading of "name, price, description".
func (s *Support) ParseProduct(ctx context.Context, text string) (models.ProductDetails, error) {
	if s.llm != nil {
		d, err := s.parseWithModel(ctx, text)
		if err == nil {
			return d, nil
		}
		slog.Warn("Support.ParseProduct: model parse failed, using heuristic", "error", err)
	}
	return ParseProductHeuristic(text)
}

func (s *Support) parseWithModel(ctx context.Context, text string) (models.ProductDetails, error) {
	out, err := s.llm.GeneratePrompt(ctx, productSystemPrompt, text)
	if err != nil {
		return models.ProductDetails{}, err
	}
	out = strings.TrimSpace(out)
	if m := jsonFence.FindStringSubmatch(out); m != nil {
		out = m[1]
	}
	var d models.ProductDetails
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		return models.ProductDetails{}, fmt.Errorf("decode product json: %w", err)
	}
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	if err := d.Validate(); err != nil {
		return models.ProductDetails{}, err
	}
	return d, nil
}

// ParseProductHeuristic reads the first line or the text before the first comma as the
// name, the first number as the price and the rest as the description.
func ParseProductHeuristic(text string) (models.ProductDetails, error) {
	text = strings.TrimSpace(fieldLabel.ReplaceAllString(text, " "))
	loc := priceValue.FindStringSubmatchIndex(text)
	if loc == nil {
		return models.ProductDetails{}, fmt.Errorf("%w: no price found", models.ErrIncompleteProduct)
	}
	price, err := strconv.ParseFloat(text[loc[2]:loc[3]], 64)
	if err != nil {
		return models.ProductDetails{}, fmt.Errorf("%w: bad price: %v", models.ErrIncompleteProduct, err)
	}

	head, tail := text[:loc[0]], text[loc[1]:]
	nameEnd := len(head)
	if i := strings.IndexAny(head, ",\n"); i >= 0 {
		nameEnd = i
	}
	d := models.ProductDetails{
		Name:        cleanField(head[:nameEnd]),
		Price:       price,
		Description: cleanField(head[nameEnd:] + " " + tail),
	}
	if err := d.Validate(); err != nil {
		return models.ProductDetails{}, err
	}
	return d, nil
}

func cleanField(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " ,-:;")
}

package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/commercebridge/commercebridge/internal/models"
)

type mockLLM struct {
	out     string
	err     error
	calls   int
	systems []string
}

func (m *mockLLM) GeneratePrompt(_ context.Context, system, _ string) (string, error) {
	m.calls++
	m.systems = append(m.systems, system)
	return m.out, m.err
}

func TestShouldEscalate(t *testing.T) {
	tests := []struct {
		name      string
		question  string
		llm       *mockLLM
		want      bool
		wantCalls int
	}{
		{"keyword", "my payment failed", &mockLLM{out: "HANDLE_AI"}, true, 0},
		{"emotional and urgent", "help me now!", &mockLLM{out: "HANDLE_AI"}, true, 0},
		{"emotional only asks model", "thanks!", &mockLLM{out: "HANDLE_AI"}, false, 1},
		{"urgent word inside another word", "do you know the hours!", &mockLLM{out: "HANDLE_AI"}, false, 1},
		{"model escalates", "I want to talk to a person", &mockLLM{out: "ESCALATE"}, true, 1},
		{"model error falls back", "where are you based", &mockLLM{err: errors.New("timeout")}, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSupport(tt.llm)
			if got := s.ShouldEscalate(context.Background(), tt.question, models.UserTypeCustomer); got != tt.want {
				t.Errorf("ShouldEscalate(%q) = %v, want %v", tt.question, got, tt.want)
			}
			if tt.llm.calls != tt.wantCalls {
				t.Errorf("model calls = %d, want %d", tt.llm.calls, tt.wantCalls)
			}
		})
	}
}

func TestShouldEscalate_NoModel(t *testing.T) {
	s := NewSupport(nil)
	if s.ShouldEscalate(context.Background(), "how do I browse", models.UserTypeCustomer) {
		t.Error("plain question should not escalate")
	}
	if !s.ShouldEscalate(context.Background(), "I think this is a scam", models.UserTypeCustomer) {
		t.Error("keyword should escalate without a model")
	}
}

func TestAnswer_Templates(t *testing.T) {
	llm := &mockLLM{out: "model answer"}
	s := NewSupport(llm)
	ctx := context.Background()

	got, err := s.Answer(ctx, "How do I create account?", models.UserTypeCustomer, "234800")
	if err != nil || !strings.Contains(got, "create your CommerceBridge account") {
		t.Errorf("create account answer = %q, %v", got, err)
	}
	got, _ = s.Answer(ctx, "how do I upload a product", models.UserTypeSeller, "")
	if !strings.Contains(got, "upload products as a seller") {
		t.Errorf("seller upload answer = %q", got)
	}
	if llm.calls != 0 {
		t.Errorf("templates should not call the model, calls = %d", llm.calls)
	}

	// Seller-only template does not apply to customers.
	got, _ = s.Answer(ctx, "show me the sales report", models.UserTypeCustomer, "")
	if got != "model answer" || llm.calls != 1 {
		t.Errorf("answer = %q calls = %d, want model answer", got, llm.calls)
	}
	if !strings.Contains(llm.systems[0], "Customer menu") {
		t.Error("customer prompt should describe the customer menu")
	}
}

func TestAnswer_Errors(t *testing.T) {
	if _, err := NewSupport(nil).Answer(context.Background(), "what is your name", models.UserTypeCustomer, ""); !errors.Is(err, ErrNoLLM) {
		t.Errorf("err = %v, want ErrNoLLM", err)
	}
	boom := errors.New("boom")
	if _, err := NewSupport(&mockLLM{err: boom}).Answer(context.Background(), "what is your name", models.UserTypeSeller, ""); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}

func TestParseProductHeuristic(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    models.ProductDetails
		wantErr bool
	}{
		{"comma separated", "Red sneakers, 45, breathable running shoes",
			models.ProductDetails{Name: "Red sneakers", Price: 45, Description: "breathable running shoes"}, false},
		{"dollar and decimals", "Leather bag $12.50 handmade",
			models.ProductDetails{Name: "Leather bag", Price: 12.5, Description: "handmade"}, false},
		{"labelled lines", "Name: Blue scarf\nPrice: 30\nDescription: soft wool",
			models.ProductDetails{Name: "Blue scarf", Price: 30, Description: "soft wool"}, false},
		{"no price", "Red sneakers, very nice", models.ProductDetails{}, true},
		{"no name", "45 dollars", models.ProductDetails{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProductHeuristic(tt.in)
			if tt.wantErr {
				if !errors.Is(err, models.ErrIncompleteProduct) {
					t.Fatalf("err = %v, want ErrIncompleteProduct", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseProduct_Model(t *testing.T) {
	llm := &mockLLM{out: "```json\n{\"name\":\"Desk lamp\",\"price\":20,\"description\":\"LED\",\"category\":\"home\"}\n```"}
	got, err := NewSupport(llm).ParseProduct(context.Background(), "desk lamp for 20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := models.ProductDetails{Name: "Desk lamp", Price: 20, Description: "LED", Category: "home"}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestParseProduct_ModelFallsBack(t *testing.T) {
	llm := &mockLLM{out: "sorry, I cannot help"}
	got, err := NewSupport(llm).ParseProduct(context.Background(), "Desk lamp, 20, LED")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Desk lamp" || got.Price != 20 {
		t.Errorf("got %+v", got)
	}
}

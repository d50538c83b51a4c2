package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/norkodev/finbot/internal/llm"
)

// MockClassifier is a test implementation of the Classifier interface.
// It returns deterministic answers based on keywords in the description.
type MockClassifier struct {
	// Err is returned by every call when set.
	Err error
	// Delay is waited before answering, honoring cancellation.
	Delay       time.Duration
	calls       []MockClassifierCall
	inFlight    int
	maxInFlight int
	mu          sync.Mutex
}

// MockClassifierCall records one batch request.
type MockClassifierCall struct {
	Items []llm.Item
}

// NewMockClassifier creates a new mock classifier.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{}
}

// ClassifyBatch answers every item from the keyword table.
func (m *MockClassifier) ClassifyBatch(ctx context.Context, items []llm.Item) ([]llm.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockClassifierCall{Items: append([]llm.Item(nil), items...)})
	err, delay := m.Err, m.Delay
	m.inFlight++
	m.maxInFlight = max(m.maxInFlight, m.inFlight)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}

	results := make([]llm.Result, 0, len(items))
	for _, item := range items {
		category, subcategory, confidence := mockAnswer(item.Description)
		results = append(results, llm.Result{
			ID:          item.ID,
			Category:    category,
			Subcategory: subcategory,
			Confidence:  confidence,
		})
	}
	return results, nil
}

func mockAnswer(description string) (string, string, float64) {
	desc := strings.ToUpper(description)
	switch {
	case strings.Contains(desc, "TACOS") || strings.Contains(desc, "RESTAURANTE") || strings.Contains(desc, "TAQUERIA"):
		return "alimentacion", "restaurantes", 0.85
	case strings.Contains(desc, "LIBRERIA") || strings.Contains(desc, "GANDHI"):
		return "compras", "tiendas", 0.7
	case strings.Contains(desc, "HOSPITAL") || strings.Contains(desc, "DOCTOR"):
		return "salud", "medico", 0.8
	case strings.Contains(desc, "CINE"):
		return "entretenimiento", "cine", 0.9
	case strings.Contains(desc, "PARKING") || strings.Contains(desc, "ESTACIONAMIENTO"):
		return "transporte", "estacionamiento", 0.75
	default:
		return "otros", "", 0.3
	}
}

// Calls returns a copy of the recorded requests.
func (m *MockClassifier) Calls() []MockClassifierCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockClassifierCall(nil), m.calls...)
}

// ItemCount is the total number of items sent across all calls.
func (m *MockClassifier) ItemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, call := range m.calls {
		n += len(call.Items)
	}
	return n
}

// MaxInFlight is the highest number of concurrent calls observed.
func (m *MockClassifier) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// Reset clears the recorded calls.
func (m *MockClassifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

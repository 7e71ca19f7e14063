package client

import (
	"math/rand"
	"strconv"
	"time"
)

// DefaultMockLimit is the number of records a mock batch yields when no
// limit is given.
const DefaultMockLimit = 5

const mockIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var mockCurrencies = []string{"KRW", "USD", "EUR"}

// MockSource generates synthetic transaction records so the pipeline can
// be exercised end to end without portal credentials.
type MockSource struct {
	rng *rand.Rand
	now func() time.Time
}

// NewMockSource creates a mock transaction feed.
func NewMockSource() *MockSource {
	return &MockSource{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
}

// Transactions returns limit synthetic transaction records. Every record
// in a batch carries the same updated_at timestamp, which makes repeated
// pulls of unchanged transactions hash identically downstream.
func (s *MockSource) Transactions(limit int) []map[string]string {
	if limit <= 0 {
		limit = DefaultMockLimit
	}

	updatedAt := s.now().UTC().Format(time.RFC3339)
	records := make([]map[string]string, 0, limit)
	for i := 0; i < limit; i++ {
		records = append(records, map[string]string{
			"tx_id":      s.transactionID(),
			"amount":     s.amount(),
			"currency":   mockCurrencies[s.rng.Intn(len(mockCurrencies))],
			"updated_at": updatedAt,
		})
	}
	return records
}

// transactionID returns "TX" followed by eight random characters from
// the A-Z0-9 alphabet.
func (s *MockSource) transactionID() string {
	suffix := make([]byte, 8)
	for i := range suffix {
		suffix[i] = mockIDAlphabet[s.rng.Intn(len(mockIDAlphabet))]
	}
	return "TX" + string(suffix)
}

// amount returns a random amount in [100, 10000) formatted with two
// decimal places.
func (s *MockSource) amount() string {
	value := 100 + s.rng.Float64()*(10000-100)
	return strconv.FormatFloat(value, 'f', 2, 64)
}

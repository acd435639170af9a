package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/quatral/moodswing/exchange"
	"github.com/quatral/moodswing/types"
)

// GatewayCall records one invocation of the mock gateway for assertions.
type GatewayCall struct {
	Method   string
	Side     types.Side
	Notional float64
	Price    float64
	ClientID string
}

// MockGateway implements exchange.Gateway in-memory. Tests script its
// position and collateral directly and can inject errors per method.
type MockGateway struct {
	mu sync.Mutex

	Pos        exchange.PositionInfo
	Collateral float64

	// Errs maps a method name (Initialize, GetPosition, GetCollateral,
	// OpenPosition, ClosePosition, SettlePnL) to an error to return.
	Errs map[string]error

	calls []GatewayCall
	seq   int
}

func NewMockGateway(collateral float64) *MockGateway {
	return &MockGateway{Collateral: collateral, Errs: make(map[string]error)}
}

func (m *MockGateway) Initialize(ctx context.Context) error {
	m.recordCall(GatewayCall{Method: "Initialize"})
	return m.Errs["Initialize"]
}

func (m *MockGateway) GetPosition(ctx context.Context) (exchange.PositionInfo, error) {
	m.recordCall(GatewayCall{Method: "GetPosition"})
	if err := m.Errs["GetPosition"]; err != nil {
		return exchange.PositionInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Pos, nil
}

func (m *MockGateway) GetCollateral(ctx context.Context) (float64, error) {
	m.recordCall(GatewayCall{Method: "GetCollateral"})
	if err := m.Errs["GetCollateral"]; err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Collateral, nil
}

func (m *MockGateway) OpenPosition(ctx context.Context, side types.Side, notional, price float64, clientID string) (exchange.TxRef, error) {
	m.recordCall(GatewayCall{Method: "OpenPosition", Side: side, Notional: notional, Price: price, ClientID: clientID})
	if err := m.Errs["OpenPosition"]; err != nil {
		return exchange.TxRef{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pos = exchange.PositionInfo{Side: side, Size: notional, EntryPrice: price}
	m.Collateral -= notional
	return m.ref(clientID), nil
}

func (m *MockGateway) ClosePosition(ctx context.Context, price float64, clientID string) (exchange.TxRef, error) {
	m.recordCall(GatewayCall{Method: "ClosePosition", Price: price, ClientID: clientID})
	if err := m.Errs["ClosePosition"]; err != nil {
		return exchange.TxRef{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Collateral += m.Pos.Size
	m.Pos = exchange.PositionInfo{}
	return m.ref(clientID), nil
}

func (m *MockGateway) SettlePnL(ctx context.Context) error {
	m.recordCall(GatewayCall{Method: "SettlePnL"})
	return m.Errs["SettlePnL"]
}

func (m *MockGateway) Shutdown(ctx context.Context) error {
	m.recordCall(GatewayCall{Method: "Shutdown"})
	return nil
}

// Calls returns a copy of every recorded invocation.
func (m *MockGateway) Calls() []GatewayCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GatewayCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// OrderCalls returns only the open/close submissions, in order.
func (m *MockGateway) OrderCalls() []GatewayCall {
	var out []GatewayCall
	for _, c := range m.Calls() {
		if c.Method == "OpenPosition" || c.Method == "ClosePosition" {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockGateway) recordCall(c GatewayCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

func (m *MockGateway) ref(clientID string) exchange.TxRef {
	m.seq++
	return exchange.TxRef{ClientOrderID: clientID, VenueOrderID: fmt.Sprintf("mock-%d", m.seq)}
}

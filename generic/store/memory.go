// Package store provides in-memory implementations of the engine's store
// interfaces.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/order-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.LedgerStore, generic.UserStore and
// generic.StatusStore.
type Memory struct {
	mu           sync.Mutex
	users        map[generic.UserID]generic.User
	balances     map[generic.BalanceID]generic.Balance
	transactions map[generic.BalanceID][]generic.Transaction
	history      map[generic.BalanceID][]generic.HistoryRecord
	groups       []generic.StatusGroup
	statuses     []generic.Status
}

func NewMemory() *Memory {
	return &Memory{
		users:        make(map[generic.UserID]generic.User),
		balances:     make(map[generic.BalanceID]generic.Balance),
		transactions: make(map[generic.BalanceID][]generic.Transaction),
		history:      make(map[generic.BalanceID][]generic.HistoryRecord),
	}
}

type txKey struct{}

// lock takes the store mutex unless ctx already runs inside RunInTx, which
// holds it for the whole transaction.
func (m *Memory) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// =============================================================================
// TRANSACTIONS - Simulated with snapshot + restore
// =============================================================================

// RunInTx executes fn holding the store lock. On error every write made by
// fn is rolled back. Nested calls join the outer transaction.
func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// RunInSnapshot holds the store lock for the whole of fn, so no write can
// interleave with its reads.
func (m *Memory) RunInSnapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTx(ctx, fn)
}

type memorySnapshot struct {
	users        map[generic.UserID]generic.User
	balances     map[generic.BalanceID]generic.Balance
	transactions map[generic.BalanceID][]generic.Transaction
	history      map[generic.BalanceID][]generic.HistoryRecord
	groups       []generic.StatusGroup
	statuses     []generic.Status
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		users:        make(map[generic.UserID]generic.User, len(m.users)),
		balances:     make(map[generic.BalanceID]generic.Balance, len(m.balances)),
		transactions: make(map[generic.BalanceID][]generic.Transaction, len(m.transactions)),
		history:      make(map[generic.BalanceID][]generic.HistoryRecord, len(m.history)),
		groups:       append([]generic.StatusGroup{}, m.groups...),
		statuses:     append([]generic.Status{}, m.statuses...),
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.balances {
		s.balances[k] = v
	}
	for k, v := range m.transactions {
		s.transactions[k] = append([]generic.Transaction{}, v...)
	}
	for k, v := range m.history {
		s.history[k] = append([]generic.HistoryRecord{}, v...)
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.users = s.users
	m.balances = s.balances
	m.transactions = s.transactions
	m.history = s.history
	m.groups = s.groups
	m.statuses = s.statuses
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) CreateUser(ctx context.Context, u generic.User) error {
	defer m.lock(ctx)()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return generic.ErrDuplicate
		}
	}
	if _, ok := m.users[u.ID]; ok {
		return generic.ErrDuplicate
	}
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUser(ctx context.Context, id generic.UserID) (*generic.User, error) {
	defer m.lock(ctx)()
	u, ok := m.users[id]
	if !ok {
		return nil, &generic.NotFoundError{Entity: "user", ID: string(id)}
	}
	return &u, nil
}

func (m *Memory) ListUsers(ctx context.Context) ([]generic.User, error) {
	defer m.lock(ctx)()
	out := make([]generic.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *Memory) CreateBalance(ctx context.Context, b generic.Balance) error {
	defer m.lock(ctx)()
	for _, existing := range m.balances {
		if existing.UserID == b.UserID {
			return generic.ErrDuplicate
		}
	}
	m.balances[b.ID] = b
	return nil
}

// =============================================================================
// BALANCES - Read side
// =============================================================================

func (m *Memory) GetBalance(ctx context.Context, id generic.BalanceID) (*generic.Balance, error) {
	defer m.lock(ctx)()
	b, ok := m.balances[id]
	if !ok {
		return nil, &generic.NotFoundError{Entity: "balance", ID: string(id)}
	}
	return &b, nil
}

func (m *Memory) GetBalanceByUser(ctx context.Context, userID generic.UserID) (*generic.Balance, error) {
	defer m.lock(ctx)()
	for _, b := range m.balances {
		if b.UserID == userID {
			return &b, nil
		}
	}
	return nil, &generic.NotFoundError{Entity: "balance", ID: "user " + string(userID)}
}

func (m *Memory) Transactions(ctx context.Context, id generic.BalanceID, r generic.Range) ([]generic.Transaction, error) {
	defer m.lock(ctx)()
	var out []generic.Transaction
	for _, tx := range m.transactions[id] {
		if r.Contains(tx.TransactionDate) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *Memory) History(ctx context.Context, id generic.BalanceID, r generic.Range) ([]generic.HistoryRecord, error) {
	defer m.lock(ctx)()
	var out []generic.HistoryRecord
	for _, h := range m.history[id] {
		if r.Contains(h.CreatedAt) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *Memory) CountTransactions(ctx context.Context, id generic.BalanceID) (int, error) {
	defer m.lock(ctx)()
	return len(m.transactions[id]), nil
}

// =============================================================================
// BALANCES - Write side
// =============================================================================

// GetBalanceForUpdate is GetBalance: the store lock already serializes
// transactions.
func (m *Memory) GetBalanceForUpdate(ctx context.Context, id generic.BalanceID) (*generic.Balance, error) {
	return m.GetBalance(ctx, id)
}

func (m *Memory) WriteBalance(ctx context.Context, b generic.Balance) error {
	defer m.lock(ctx)()
	if _, ok := m.balances[b.ID]; !ok {
		return &generic.NotFoundError{Entity: "balance", ID: string(b.ID)}
	}
	if b.Euro.IsNegative() || b.Rub.IsNegative() {
		return generic.Invalid("balance", "would become negative")
	}
	m.balances[b.ID] = b
	return nil
}

// AppendTransaction keeps entries sorted by TransactionDate. Append-only.
func (m *Memory) AppendTransaction(ctx context.Context, tx generic.Transaction) error {
	defer m.lock(ctx)()
	txs := m.transactions[tx.BalanceID]
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].TransactionDate.After(tx.TransactionDate)
	})
	txs = append(txs, generic.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[tx.BalanceID] = txs
	return nil
}

func (m *Memory) AppendHistory(ctx context.Context, h generic.HistoryRecord) error {
	defer m.lock(ctx)()
	m.history[h.BalanceID] = append(m.history[h.BalanceID], h)
	return nil
}

// =============================================================================
// STATUS GROUPS
// =============================================================================

func (m *Memory) ListStatusGroups(ctx context.Context) ([]generic.StatusGroup, error) {
	defer m.lock(ctx)()
	return append([]generic.StatusGroup{}, m.groups...), nil
}

func (m *Memory) ListStatuses(ctx context.Context) ([]generic.Status, error) {
	defer m.lock(ctx)()
	return append([]generic.Status{}, m.statuses...), nil
}

func (m *Memory) CreateStatusGroup(ctx context.Context, g generic.StatusGroup) error {
	defer m.lock(ctx)()
	for _, existing := range m.groups {
		if existing.Code == g.Code {
			return generic.ErrDuplicate
		}
	}
	m.groups = append(m.groups, g)
	return nil
}

func (m *Memory) CreateStatus(ctx context.Context, s generic.Status) error {
	defer m.lock(ctx)()
	for _, existing := range m.statuses {
		if existing.Group == s.Group && existing.Code == s.Code {
			return generic.ErrDuplicate
		}
	}
	m.statuses = append(m.statuses, s)
	return nil
}

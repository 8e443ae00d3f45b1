package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arcade/backend/internal/application/uow"
	"github.com/arcade/backend/internal/domain/billing"
	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/domain/license"
	"github.com/arcade/backend/internal/domain/operator"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of every repository plus a
// TransactionScope. Execute serializes transactions and restores a snapshot
// when the function fails, so callers observe all-or-nothing commits.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	accounts map[string]operator.Account
	sites    map[string]operator.Site
	apps     map[string]license.Application
	grants   map[string]license.Authorization
	sessions map[string]billing.UsageSession
	ledger   []billing.LedgerEntry
	orders   map[string]finance.RechargeOrder

	faults map[string][]error
	calls  map[string]int
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]operator.Account),
		sites:    make(map[string]operator.Site),
		apps:     make(map[string]license.Application),
		grants:   make(map[string]license.Authorization),
		sessions: make(map[string]billing.UsageSession),
		orders:   make(map[string]finance.RechargeOrder),
		faults:   make(map[string][]error),
		calls:    make(map[string]int),
	}
}

// Fault operation names accepted by FailNext
const (
	OpAccountFindForUpdate = "account.find_for_update"
	OpAccountUpdateBalance = "account.update_balance"
	OpSessionCreate        = "session.create"
	OpLedgerCreate         = "ledger.create"
	OpOrderSave            = "order.save"
)

// FailNext makes the next len(errs) calls of op return errs in order
func (s *MemoryStore) FailNext(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], errs...)
}

// Calls returns how many times op was invoked
func (s *MemoryStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *MemoryStore) fault(op string) error {
	s.calls[op]++
	if q := s.faults[op]; len(q) > 0 {
		s.faults[op] = q[1:]
		return q[0]
	}
	return nil
}

// Execute runs fn as one transaction
func (s *MemoryStore) Execute(ctx context.Context, fn func(repos uow.TransactionalRepositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	accounts map[string]operator.Account
	sessions map[string]billing.UsageSession
	ledger   []billing.LedgerEntry
	orders   map[string]finance.RechargeOrder
}

func (s *MemoryStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		accounts: make(map[string]operator.Account, len(s.accounts)),
		sessions: make(map[string]billing.UsageSession, len(s.sessions)),
		ledger:   append([]billing.LedgerEntry(nil), s.ledger...),
		orders:   make(map[string]finance.RechargeOrder, len(s.orders)),
	}
	for k, v := range s.accounts {
		snap.accounts[k] = v
	}
	for k, v := range s.sessions {
		snap.sessions[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	return snap
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = snap.accounts
	s.sessions = snap.sessions
	s.ledger = snap.ledger
	s.orders = snap.orders
}

// Accounts returns the store as an AccountRepository
func (s *MemoryStore) Accounts() operator.AccountRepository { return (*memAccounts)(s) }

// Sites returns the store as a SiteRepository
func (s *MemoryStore) Sites() operator.SiteRepository { return (*memSites)(s) }

// Applications returns the store as an ApplicationRepository
func (s *MemoryStore) Applications() license.ApplicationRepository { return (*memApps)(s) }

// Authorizations returns the store as an AuthorizationRepository
func (s *MemoryStore) Authorizations() license.AuthorizationRepository { return (*memGrants)(s) }

// Sessions returns the store as a SessionRepository
func (s *MemoryStore) Sessions() billing.SessionRepository { return (*memSessions)(s) }

// Ledger returns the store as a LedgerRepository
func (s *MemoryStore) Ledger() billing.LedgerRepository { return (*memLedger)(s) }

// RechargeOrders returns the store as a RechargeOrderRepository
func (s *MemoryStore) RechargeOrders() finance.RechargeOrderRepository { return (*memOrders)(s) }

// Balance returns the committed balance of an account as a fixed 2dp string
func (s *MemoryStore) Balance(operatorID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[operatorID]
	if !ok {
		return ""
	}
	return acc.Balance.StringFixed(2)
}

// SessionCount returns the number of committed sessions
func (s *MemoryStore) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// LedgerEntries returns a copy of all ledger entries
func (s *MemoryStore) LedgerEntries() []billing.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]billing.LedgerEntry(nil), s.ledger...)
}

// Order returns a copy of the stored order
func (s *MemoryStore) Order(orderNo string) (finance.RechargeOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderNo]
	return o, ok
}

// ---------------------------------------------------------------------------

type memAccounts MemoryStore

func (r *memAccounts) Create(_ context.Context, a *operator.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.ID]; ok {
		return shared.ErrConcurrencyConflict
	}
	r.accounts[a.ID] = *a
	return nil
}

func (r *memAccounts) FindByID(_ context.Context, id string) (*operator.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &a, nil
}

func (r *memAccounts) FindByIDForUpdate(ctx context.Context, id string) (*operator.Account, error) {
	r.mu.Lock()
	err := (*MemoryStore)(r).fault(OpAccountFindForUpdate)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *memAccounts) FindByIDsForUpdate(ctx context.Context, ids []string) ([]*operator.Account, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	out := make([]*operator.Account, 0, len(sorted))
	for _, id := range sorted {
		a, err := r.FindByIDForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memAccounts) UpdateBalance(_ context.Context, a *operator.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*MemoryStore)(r).fault(OpAccountUpdateBalance); err != nil {
		return err
	}
	stored, ok := r.accounts[a.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != a.Version {
		return shared.ErrConcurrencyConflict
	}
	a.Version = a.NextVersion()
	stored.Balance = a.Balance
	stored.Version = a.Version
	stored.UpdatedAt = a.UpdatedAt
	r.accounts[a.ID] = stored
	return nil
}

func (r *memAccounts) UpdateAPIKeyHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return shared.ErrNotFound
	}
	a.APIKeyHash = hash
	r.accounts[id] = a
	return nil
}

type memSites MemoryStore

func (r *memSites) Create(_ context.Context, site *operator.Site) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sites[site.ID] = *site
	return nil
}

func (r *memSites) FindByID(_ context.Context, id string) (*operator.Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	site, ok := r.sites[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &site, nil
}

type memApps MemoryStore

func (r *memApps) Create(_ context.Context, app *license.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[app.Code] = *app
	return nil
}

func (r *memApps) FindByCode(_ context.Context, code string) (*license.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[code]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &app, nil
}

type memGrants MemoryStore

func grantKey(operatorID string, appID uuid.UUID) string {
	return operatorID + "/" + appID.String()
}

func (r *memGrants) Create(_ context.Context, g *license.Authorization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[grantKey(g.OperatorID, g.ApplicationID)] = *g
	return nil
}

func (r *memGrants) FindByOperatorAndApplication(_ context.Context, operatorID string, appID uuid.UUID) (*license.Authorization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[grantKey(operatorID, appID)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &g, nil
}

type memSessions MemoryStore

func (r *memSessions) Create(_ context.Context, s *billing.UsageSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*MemoryStore)(r).fault(OpSessionCreate); err != nil {
		return err
	}
	if _, ok := r.sessions[s.SessionID]; ok {
		return billing.ErrSessionConflict
	}
	r.sessions[s.SessionID] = *s
	return nil
}

func (r *memSessions) FindBySessionID(_ context.Context, id string) (*billing.UsageSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &s, nil
}

func (r *memSessions) CountBySessionID(_ context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return 1, nil
	}
	return 0, nil
}

type memLedger MemoryStore

func (r *memLedger) Create(_ context.Context, e *billing.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*MemoryStore)(r).fault(OpLedgerCreate); err != nil {
		return err
	}
	r.ledger = append(r.ledger, *e)
	return nil
}

func (r *memLedger) FindByReference(_ context.Context, refType, refID string) ([]*billing.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*billing.LedgerEntry
	for i := range r.ledger {
		if r.ledger[i].ReferenceType == refType && r.ledger[i].ReferenceID == refID {
			e := r.ledger[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r *memLedger) ListByOperator(_ context.Context, operatorID string, limit int) ([]*billing.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*billing.LedgerEntry
	for i := len(r.ledger) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if r.ledger[i].OperatorID == operatorID {
			e := r.ledger[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

type memOrders MemoryStore

func (r *memOrders) Create(_ context.Context, o *finance.RechargeOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.OrderNo] = *o
	return nil
}

func (r *memOrders) Save(_ context.Context, o *finance.RechargeOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*MemoryStore)(r).fault(OpOrderSave); err != nil {
		return err
	}
	stored, ok := r.orders[o.OrderNo]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != o.Version {
		return shared.ErrConcurrencyConflict
	}
	o.Version = o.NextVersion()
	r.orders[o.OrderNo] = *o
	return nil
}

func (r *memOrders) FindByOrderNo(_ context.Context, orderNo string) (*finance.RechargeOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNo]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &o, nil
}

func (r *memOrders) FindByOrderNoForUpdate(ctx context.Context, orderNo string) (*finance.RechargeOrder, error) {
	return r.FindByOrderNo(ctx, orderNo)
}

func (r *memOrders) FindReconcilable(_ context.Context, createdBefore time.Time, limit int) ([]*finance.RechargeOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*finance.RechargeOrder
	for _, o := range r.orders {
		if o.IsTerminal() || !o.CreatedAt.Before(createdBefore) {
			continue
		}
		order := o
		out = append(out, &order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var (
	_ uow.TransactionScope             = (*MemoryStore)(nil)
	_ uow.TransactionalRepositories    = (*MemoryStore)(nil)
	_ operator.AccountRepository       = (*memAccounts)(nil)
	_ operator.SiteRepository          = (*memSites)(nil)
	_ license.ApplicationRepository    = (*memApps)(nil)
	_ license.AuthorizationRepository  = (*memGrants)(nil)
	_ billing.SessionRepository        = (*memSessions)(nil)
	_ billing.LedgerRepository         = (*memLedger)(nil)
	_ finance.RechargeOrderRepository  = (*memOrders)(nil)
)

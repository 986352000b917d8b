// Package memory provides an in-process implementation of the store interfaces.
//
// It enforces the same uniqueness rules as the PostgreSQL schema: one reminder per
// (contract, kind) and one renewal outside FINAL_PROCESSING per contract. It is used
// by tests and by the CLI when no DATABASE_URL is configured.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/store"
)

type reminderKey struct {
	contractID string
	kind       models.ReminderKind
}

type data struct {
	contracts map[string]models.Contract
	reminders map[string]models.Reminder
	byKey     map[reminderKey]string
	renewals  map[string]models.Renewal
	orgs      map[string]models.Organization
	audit     []models.AuditEntry
}

func newData() *data {
	return &data{
		contracts: make(map[string]models.Contract),
		reminders: make(map[string]models.Reminder),
		byKey:     make(map[reminderKey]string),
		renewals:  make(map[string]models.Renewal),
		orgs:      make(map[string]models.Organization),
	}
}

// undoLog collects the inverse of every write made through a transaction view.
type undoLog struct{ ops []func(*data) }

// record appends op. Callers hold the data lock. A nil log records nothing.
func (l *undoLog) record(op func(*data)) {
	if l != nil {
		l.ops = append(l.ops, op)
	}
}

// Store implements store.Store in memory.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	d    *data
	now  func() time.Time
	// FailWith, when set, is returned by every operation. Tests use it to simulate
	// an unreachable database.
	FailWith error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{d: newData(), now: func() time.Time { return time.Now().UTC() }}
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Store = (*txStore)(nil)
)

func (s *Store) Contracts() store.ContractStore { return contractStore{s: s} }
func (s *Store) Reminders() store.ReminderStore { return reminderStore{s: s} }
func (s *Store) Renewals() store.RenewalStore   { return renewalStore{s: s} }
func (s *Store) Orgs() store.OrgStore           { return orgStore{s: s} }
func (s *Store) Audit() store.AuditStore        { return auditStore{s: s} }

// WithTx runs fn serialized against other transactions. If fn returns an error,
// the writes fn made through its store are undone; writes made by callers outside
// the transaction are kept.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &txStore{s: s, log: &undoLog{}}
	if err := fn(tx); err != nil {
		s.mu.Lock()
		for i := len(tx.log.ops) - 1; i >= 0; i-- {
			tx.log.ops[i](s.d)
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.FailWith
}

func (s *Store) Close() error { return nil }

// txStore is the store handed to WithTx callbacks.
type txStore struct {
	s   *Store
	log *undoLog
}

func (t *txStore) Contracts() store.ContractStore { return contractStore{t.s, t.log} }
func (t *txStore) Reminders() store.ReminderStore { return reminderStore{t.s, t.log} }
func (t *txStore) Renewals() store.RenewalStore   { return renewalStore{t.s, t.log} }
func (t *txStore) Orgs() store.OrgStore           { return orgStore{t.s, t.log} }
func (t *txStore) Audit() store.AuditStore        { return auditStore{t.s, t.log} }

// WithTx runs fn inside the transaction already in progress.
func (t *txStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(t)
}

func (t *txStore) Ping(ctx context.Context) error { return t.s.Ping(ctx) }
func (t *txStore) Close() error                   { return nil }

// lock acquires the data lock, returning FailWith instead when it is set.
func (s *Store) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	return nil
}

type contractStore struct {
	s   *Store
	log *undoLog
}

func (c contractStore) Create(ctx context.Context, ct *models.Contract) error {
	if err := ct.Validate(); err != nil {
		return err
	}
	if err := c.s.lock(ctx); err != nil {
		return err
	}
	defer c.s.mu.Unlock()

	if ct.ID == "" {
		ct.ID = uuid.New().String()
	}
	if _, exists := c.s.d.contracts[ct.ID]; exists {
		return store.ErrDuplicateKey
	}
	now := c.s.now()
	if ct.CreatedAt.IsZero() {
		ct.CreatedAt = now
	}
	ct.UpdatedAt = now
	c.s.d.contracts[ct.ID] = *ct
	id := ct.ID
	c.log.record(func(d *data) { delete(d.contracts, id) })
	return nil
}

func (c contractStore) Get(ctx context.Context, id string) (*models.Contract, error) {
	if err := c.s.lock(ctx); err != nil {
		return nil, err
	}
	defer c.s.mu.Unlock()

	ct, ok := c.s.d.contracts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &ct, nil
}

func (c contractStore) ListEndingBetween(ctx context.Context, statuses []models.ContractStatus, from, to time.Time) ([]*models.Contract, error) {
	if err := c.s.lock(ctx); err != nil {
		return nil, err
	}
	defer c.s.mu.Unlock()

	want := make(map[models.ContractStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	var out []*models.Contract
	for _, ct := range c.s.d.contracts {
		if !want[ct.Status] || ct.EndDate.Before(from) || ct.EndDate.After(to) {
			continue
		}
		ct := ct
		out = append(out, &ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EndDate.Equal(out[j].EndDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].EndDate.Before(out[j].EndDate)
	})
	return out, nil
}

type reminderStore struct {
	s   *Store
	log *undoLog
}

func (r reminderStore) GetByContractKind(ctx context.Context, contractID string, kind models.ReminderKind) (*models.Reminder, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	id, ok := r.s.d.byKey[reminderKey{contractID, kind}]
	if !ok {
		return nil, store.ErrNotFound
	}
	rem := r.s.d.reminders[id]
	return &rem, nil
}

func (r reminderStore) CreateIfAbsent(ctx context.Context, rem *models.Reminder) (bool, error) {
	if err := r.s.lock(ctx); err != nil {
		return false, err
	}
	defer r.s.mu.Unlock()

	key := reminderKey{rem.ContractID, rem.Kind}
	if _, exists := r.s.d.byKey[key]; exists {
		return false, nil
	}
	if rem.ID == "" {
		rem.ID = uuid.New().String()
	}
	if rem.CreatedAt.IsZero() {
		rem.CreatedAt = r.s.now()
	}
	r.s.d.reminders[rem.ID] = *rem
	r.s.d.byKey[key] = rem.ID
	id := rem.ID
	r.log.record(func(d *data) {
		delete(d.reminders, id)
		delete(d.byKey, key)
	})
	return true, nil
}

func (r reminderStore) Get(ctx context.Context, id string) (*models.Reminder, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	rem, ok := r.s.d.reminders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rem, nil
}

func (r reminderStore) Acknowledge(ctx context.Context, id, actorID string, at time.Time) (*models.Reminder, bool, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, false, err
	}
	defer r.s.mu.Unlock()

	rem, ok := r.s.d.reminders[id]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	prev := rem
	changed := rem.Acknowledge(actorID, at)
	r.s.d.reminders[id] = rem
	if changed {
		r.log.record(func(d *data) { d.reminders[id] = prev })
	}
	return &rem, changed, nil
}

func (r reminderStore) ListByContract(ctx context.Context, contractID string) ([]*models.Reminder, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []*models.Reminder
	for _, rem := range r.s.d.reminders {
		if rem.ContractID == contractID {
			rem := rem
			out = append(out, &rem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type renewalStore struct {
	s   *Store
	log *undoLog
}

func (r renewalStore) Get(ctx context.Context, id string) (*models.Renewal, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	rn, ok := r.s.d.renewals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rn, nil
}

// GetForUpdate is Get. Transactions are serialized by WithTx, so a row read
// inside one cannot change until it ends.
func (r renewalStore) GetForUpdate(ctx context.Context, id string) (*models.Renewal, error) {
	return r.Get(ctx, id)
}

func (r renewalStore) GetActiveByContract(ctx context.Context, contractID string) (*models.Renewal, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	if rn := r.activeLocked(contractID, ""); rn != nil {
		return rn, nil
	}
	return nil, store.ErrNotFound
}

// activeLocked finds the active renewal of contractID other than exceptID.
func (r renewalStore) activeLocked(contractID, exceptID string) *models.Renewal {
	for _, rn := range r.s.d.renewals {
		if rn.ContractID == contractID && rn.ID != exceptID && rn.IsActive() {
			rn := rn
			return &rn
		}
	}
	return nil
}

func (r renewalStore) CreateIfNoActive(ctx context.Context, rn *models.Renewal) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if rn.IsActive() && r.activeLocked(rn.ContractID, "") != nil {
		return store.ErrActiveRenewalExists
	}
	if rn.ID == "" {
		rn.ID = uuid.New().String()
	}
	if _, exists := r.s.d.renewals[rn.ID]; exists {
		return store.ErrDuplicateKey
	}
	now := r.s.now()
	if rn.CreatedAt.IsZero() {
		rn.CreatedAt = now
	}
	rn.UpdatedAt = now
	r.s.d.renewals[rn.ID] = *rn
	id := rn.ID
	r.log.record(func(d *data) { delete(d.renewals, id) })
	return nil
}

func (r renewalStore) Update(ctx context.Context, rn *models.Renewal) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	existing, ok := r.s.d.renewals[rn.ID]
	if !ok {
		return store.ErrNotFound
	}
	if rn.IsActive() && r.activeLocked(existing.ContractID, rn.ID) != nil {
		return store.ErrActiveRenewalExists
	}

	// Contract, org, creator and creation time are fixed at insert.
	updated := *rn
	updated.ContractID = existing.ContractID
	updated.OrgID = existing.OrgID
	updated.CreatedBy = existing.CreatedBy
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = r.s.now()
	r.s.d.renewals[rn.ID] = updated
	r.log.record(func(d *data) { d.renewals[existing.ID] = existing })
	*rn = updated
	return nil
}

func (r renewalStore) ListByContract(ctx context.Context, contractID string, filter store.RenewalFilter) ([]*models.Renewal, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var allowed map[models.SubStatus]bool
	if len(filter.SubStatuses) > 0 {
		allowed = make(map[models.SubStatus]bool, len(filter.SubStatuses))
		for _, st := range filter.SubStatuses {
			allowed[st] = true
		}
	}

	var out []*models.Renewal
	for _, rn := range r.s.d.renewals {
		if rn.ContractID != contractID {
			continue
		}
		if filter.ActiveOnly && !rn.IsActive() {
			continue
		}
		if allowed != nil && !allowed[rn.SubStatus] {
			continue
		}
		rn := rn
		out = append(out, &rn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type orgStore struct {
	s   *Store
	log *undoLog
}

func (o orgStore) Create(ctx context.Context, org *models.Organization) error {
	if err := org.Validate(); err != nil {
		return err
	}
	if err := o.s.lock(ctx); err != nil {
		return err
	}
	defer o.s.mu.Unlock()

	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	for _, existing := range o.s.d.orgs {
		if existing.ID == org.ID || existing.Slug == org.Slug {
			return store.ErrDuplicateKey
		}
	}
	now := o.s.now()
	org.CreatedAt, org.UpdatedAt = now, now
	o.s.d.orgs[org.ID] = *org
	id := org.ID
	o.log.record(func(d *data) { delete(d.orgs, id) })
	return nil
}

func (o orgStore) Get(ctx context.Context, id string) (*models.Organization, error) {
	if err := o.s.lock(ctx); err != nil {
		return nil, err
	}
	defer o.s.mu.Unlock()

	org, ok := o.s.d.orgs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &org, nil
}

type auditStore struct {
	s   *Store
	log *undoLog
}

func (a auditStore) Append(ctx context.Context, e *models.AuditEntry) error {
	if err := a.s.lock(ctx); err != nil {
		return err
	}
	defer a.s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	for _, existing := range a.s.d.audit {
		if existing.ID == e.ID {
			return store.ErrDuplicateKey
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = a.s.now()
	}
	a.s.d.audit = append(a.s.d.audit, *e)
	id := e.ID
	a.log.record(func(d *data) {
		d.audit = slices.DeleteFunc(d.audit, func(x models.AuditEntry) bool { return x.ID == id })
	})
	return nil
}

func (a auditStore) List(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error) {
	if err := a.s.lock(ctx); err != nil {
		return nil, err
	}
	defer a.s.mu.Unlock()

	var out []*models.AuditEntry
	for _, e := range a.s.d.audit {
		if e.EntityType == entityType && e.EntityID == entityID {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

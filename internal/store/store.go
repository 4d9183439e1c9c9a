// Package store holds the product ledger and mirrors it to durable storage.
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/auth"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/model"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/obs"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/qr"
)

// Snapshotter persists complete ledger snapshots.
//
// Load reports found=false when no durable state exists yet. Save replaces the
// whole durable state with products.
type Snapshotter interface {
	Load(ctx context.Context) (products []model.Product, found bool, err error)
	Save(ctx context.Context, products []model.Product) error
}

// Recorder receives an event for every successful mutation.
type Recorder interface {
	Record(ev model.Event)
}

// Store is the ledger: products keyed by id, kept in insertion order.
type Store struct {
	mu    sync.RWMutex
	m     map[int64]model.Product
	order []int64

	snap  Snapshotter
	authz auth.Authorizer
	rec   Recorder
	now   func() time.Time
}

// New creates an empty ledger. A nil snapshotter keeps the ledger in memory only.
func New(snap Snapshotter, authz auth.Authorizer) *Store {
	return &Store{
		m:     make(map[int64]model.Product),
		snap:  snap,
		authz: authz,
		now:   time.Now,
	}
}

// SetRecorder wires the event sink notified after each successful mutation.
func (s *Store) SetRecorder(r Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = r
}

// Load replaces the in-memory ledger with the durable snapshot. Missing durable
// state is initialized empty; unreadable state is logged and the ledger starts
// empty. Load only returns an error when initializing missing state fails.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[int64]model.Product)
	s.order = nil
	if s.snap == nil {
		return nil
	}
	products, found, err := s.snap.Load(ctx)
	if err != nil {
		obs.Logger.Error("ledger_load_failed", "error", err)
		return nil
	}
	if !found {
		if err := s.snap.Save(ctx, []model.Product{}); err != nil {
			obs.Logger.Error("ledger_init_failed", "error", err)
			return fmt.Errorf("%w: initialize snapshot: %v", model.ErrPersistence, err)
		}
		obs.Logger.Info("ledger_initialized")
		return nil
	}
	for _, p := range products {
		if _, dup := s.m[p.ID]; !dup {
			s.order = append(s.order, p.ID)
		}
		s.m[p.ID] = p
	}
	obs.Logger.Info("ledger_loaded", "product_count", len(s.order))
	return nil
}

// Add registers a new product on behalf of who and returns it with its QR image
// as a PNG data URL. A PersistenceFailure error still leaves the product live.
func (s *Store) Add(ctx context.Context, who model.Identity, id int64, name string) (model.Product, string, error) {
	name = strings.TrimSpace(name)
	if id == 0 || name == "" {
		return model.Product{}, "", fmt.Errorf("product id and name are required: %w", model.ErrMissingField)
	}
	if !s.authz.Allows(who, auth.ActionAddProduct) {
		obs.Logger.Warn("product_add_denied", "product_id", id, "actor", who.Username)
		return model.Product{}, "", model.ErrUnauthorized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[id]; ok {
		return model.Product{}, "", model.ErrAlreadyExists
	}
	now := s.now()
	p := model.Product{ID: id, Name: name, QRHash: qr.Hash(id, now)}
	dataURL, err := qr.DataURL(p.QRHash)
	if err != nil {
		return model.Product{}, "", err
	}
	s.m[id] = p
	s.order = append(s.order, id)
	obs.Logger.Info("product_added", "product_id", id, "actor", who.Username, "qr_hash", p.QRHash)
	s.recordLocked(model.Event{Kind: model.EventProductAdded, ProductID: id, Actor: who.Username, At: now.UTC()})
	return p, dataURL, s.persistLocked(ctx)
}

// MarkFake flags a product as counterfeit. Marking an already fake product succeeds.
func (s *Store) MarkFake(ctx context.Context, who model.Identity, id int64) error {
	if id == 0 {
		return fmt.Errorf("product id is required: %w", model.ErrMissingField)
	}
	if !s.authz.Allows(who, auth.ActionMarkFake) {
		obs.Logger.Warn("product_mark_fake_denied", "product_id", id, "actor", who.Username)
		return model.ErrUnauthorized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[id]
	if !ok {
		return model.ErrNotFound
	}
	p.IsFake = true
	s.m[id] = p
	obs.Logger.Info("product_marked_fake", "product_id", id, "actor", who.Username)
	s.recordLocked(model.Event{Kind: model.EventProductMarkedFake, ProductID: id, Actor: who.Username, At: s.now().UTC()})
	return s.persistLocked(ctx)
}

func (s *Store) Get(id int64) (model.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.m[id]
	return p, ok
}

// All returns a copy of every product in insertion order.
func (s *Store) All() []model.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// IsFake reports whether id is a fake product; unknown ids are not fake.
func (s *Store) IsFake(id int64) bool {
	p, ok := s.Get(id)
	return ok && p.IsFake
}

// FindByQRHash looks up the product whose qrHash equals h.
func (s *Store) FindByQRHash(h string) (model.Product, bool) {
	if id, _, ok := qr.ParseHash(h); ok {
		if p, found := s.Get(id); found && p.QRHash == h {
			return p, true
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if p := s.m[id]; p.QRHash == h {
			return p, true
		}
	}
	return model.Product{}, false
}

func (s *Store) Stats() model.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := model.Stats{Total: len(s.m)}
	for _, p := range s.m {
		if p.IsFake {
			st.Fake++
		}
	}
	st.Genuine = st.Total - st.Fake
	return st
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *Store) snapshotLocked() []model.Product {
	out := make([]model.Product, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.m[id])
	}
	return out
}

func (s *Store) persistLocked(ctx context.Context) error {
	if s.snap == nil {
		return nil
	}
	if err := s.snap.Save(ctx, s.snapshotLocked()); err != nil {
		obs.Logger.Error("ledger_save_failed", "product_count", len(s.order), "error", err)
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	return nil
}

func (s *Store) recordLocked(ev model.Event) {
	if s.rec != nil {
		s.rec.Record(ev)
	}
}

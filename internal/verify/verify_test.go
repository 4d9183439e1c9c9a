package verify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/auth"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/model"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/store"
)

var owner = model.Identity{Username: "admin", Role: model.RoleAdmin}

type captureRecorder struct {
	mu  sync.Mutex
	evs []model.Event
}

func (c *captureRecorder) Record(ev model.Event) {
	c.mu.Lock()
	c.evs = append(c.evs, ev)
	c.mu.Unlock()
}

func setup(t *testing.T) (*Verifier, *store.Store, *captureRecorder) {
	t.Helper()
	st := store.New(nil, auth.NewOwnerAuthorizer("admin"))
	if err := st.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	rec := &captureRecorder{}
	return New(st, rec), st, rec
}

func TestCheckGenuineAndCounterfeit(t *testing.T) {
	v, st, rec := setup(t)
	ctx := context.Background()
	if _, _, err := st.Add(ctx, owner, 101, "Widget"); err != nil {
		t.Fatal(err)
	}
	r, err := v.Check("101")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if r.ID != 101 || r.Name != "Widget" || r.IsFake || r.Verdict != VerdictGenuine {
		t.Fatalf("unexpected result: %+v", r)
	}
	if r.Message != "Product authenticity checked (simulated)." {
		t.Fatalf("unexpected message %q", r.Message)
	}
	if err := st.MarkFake(ctx, owner, 101); err != nil {
		t.Fatal(err)
	}
	r, err = v.Check(" 101 ")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !r.IsFake || r.Verdict != VerdictCounterfeit {
		t.Fatalf("expected counterfeit: %+v", r)
	}
	if len(rec.evs) != 2 || rec.evs[1].Kind != model.EventProductChecked || rec.evs[1].Verdict != VerdictCounterfeit {
		t.Fatalf("unexpected events: %+v", rec.evs)
	}
}

func TestCheckErrors(t *testing.T) {
	v, _, rec := setup(t)
	for _, in := range []string{"", "abc", "1.5", "0x10", "12abc"} {
		if _, err := v.Check(in); !errors.Is(err, model.ErrInvalidInput) {
			t.Fatalf("%q: expected invalid input, got %v", in, err)
		}
	}
	if _, err := v.Check("999"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(rec.evs) != 0 {
		t.Fatalf("failed checks must not emit events")
	}
}

// A scanned qrHash is not a product id, so the id path rejects it.
func TestCheckRejectsQRHashText(t *testing.T) {
	v, st, _ := setup(t)
	p, _, err := st.Add(context.Background(), owner, 7, "Bag")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Check(p.QRHash); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected invalid input for qr hash text, got %v", err)
	}
}

func TestCheckQRResolvesHashThenID(t *testing.T) {
	v, st, _ := setup(t)
	p, _, err := st.Add(context.Background(), owner, 7, "Bag")
	if err != nil {
		t.Fatal(err)
	}
	r, err := v.CheckQR(p.QRHash)
	if err != nil || r.ID != 7 {
		t.Fatalf("qr hash lookup: %+v %v", r, err)
	}
	r, err = v.CheckQR("7")
	if err != nil || r.ID != 7 {
		t.Fatalf("id fallback: %+v %v", r, err)
	}
	if _, err := v.CheckQR("product_7_1"); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("stale hash should fall through to id parsing, got %v", err)
	}
	if _, err := v.CheckQR("  "); !errors.Is(err, model.ErrMissingField) {
		t.Fatalf("expected missing field, got %v", err)
	}
}

// Package verify answers authenticity checks against the ledger without mutating it.
package verify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/model"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/store"
)

const (
	VerdictGenuine     = "genuine"
	VerdictCounterfeit = "counterfeit"

	checkedMessage = "Product authenticity checked (simulated)."
)

// Result is the view of a product returned by a check.
type Result struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	QRHash  string `json:"qrHash"`
	IsFake  bool   `json:"isFake"`
	Verdict string `json:"verdict"`
	Message string `json:"message"`
}

// Ledger is the read side of the ledger that checks need.
type Ledger interface {
	Get(id int64) (model.Product, bool)
	FindByQRHash(h string) (model.Product, bool)
}

var _ Ledger = (*store.Store)(nil)

// Verifier resolves ids and QR payloads to products.
type Verifier struct {
	ledger Ledger
	rec    store.Recorder
}

// New builds a Verifier. rec may be nil.
func New(ledger Ledger, rec store.Recorder) *Verifier {
	return &Verifier{ledger: ledger, rec: rec}
}

// Check interprets input as a base-10 product id. A scanned qrHash fed here is
// not an id and yields ErrInvalidInput; use CheckQR for scanner payloads.
func (v *Verifier) Check(input string) (Result, error) {
	id, err := ParseID(input)
	if err != nil {
		return Result{}, err
	}
	return v.byID(id)
}

// CheckQR resolves payload as an exact qrHash first and falls back to the id path.
func (v *Verifier) CheckQR(payload string) (Result, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Result{}, fmt.Errorf("%w: qr payload is required", model.ErrMissingField)
	}
	if p, ok := v.ledger.FindByQRHash(payload); ok {
		return v.result(p), nil
	}
	return v.Check(payload)
}

// ParseID parses a strict base-10 product id. Zero is a valid id here; only
// mutations treat it as missing.
func ParseID(input string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidInput, input)
	}
	return id, nil
}

func (v *Verifier) byID(id int64) (Result, error) {
	p, ok := v.ledger.Get(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: id %d", model.ErrNotFound, id)
	}
	return v.result(p), nil
}

func (v *Verifier) result(p model.Product) Result {
	r := Result{
		ID:      p.ID,
		Name:    p.Name,
		QRHash:  p.QRHash,
		IsFake:  p.IsFake,
		Verdict: VerdictGenuine,
		Message: checkedMessage,
	}
	if p.IsFake {
		r.Verdict = VerdictCounterfeit
	}
	if v.rec != nil {
		v.rec.Record(model.Event{Kind: model.EventProductChecked, ProductID: p.ID, Verdict: r.Verdict})
	}
	return r
}

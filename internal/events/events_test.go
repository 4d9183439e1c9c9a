package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/model"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/obs"
)

func TestFeedKeepsNewestBySequence(t *testing.T) {
	f := NewFeed(3)
	ctx := context.Background()
	for _, seq := range []uint64{2, 1, 4, 3, 5} {
		_ = f.Deliver(ctx, model.Event{Sequence: seq})
	}
	got := f.Recent(0)
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	if got[0].Sequence != 5 || got[1].Sequence != 4 || got[2].Sequence != 3 {
		t.Fatalf("unexpected order: %+v", got)
	}
	if l := f.Recent(1); len(l) != 1 || l[0].Sequence != 5 {
		t.Fatalf("unexpected limited: %+v", l)
	}
}

func TestFeedEmpty(t *testing.T) {
	if got := NewFeed(0).Recent(10); len(got) != 0 {
		t.Fatalf("expected empty, got %+v", got)
	}
}

func TestMetricsSink(t *testing.T) {
	m := obs.NewMetrics()
	s := NewMetricsSink(m, func() model.Stats { return model.Stats{Total: 3, Genuine: 2, Fake: 1} })
	ctx := context.Background()
	_ = s.Deliver(ctx, model.Event{Kind: model.EventProductAdded})
	_ = s.Deliver(ctx, model.Event{Kind: model.EventProductChecked, Verdict: "genuine"})
	if v := testutil.ToFloat64(m.EventsPublished.WithLabelValues("product_added")); v != 1 {
		t.Fatalf("expected 1 added event, got %v", v)
	}
	if v := testutil.ToFloat64(m.Verifications.WithLabelValues("genuine")); v != 1 {
		t.Fatalf("expected 1 verification, got %v", v)
	}
	if v := testutil.ToFloat64(m.Products.WithLabelValues("fake")); v != 1 {
		t.Fatalf("expected fake gauge 1, got %v", v)
	}
}

func TestMetricsSinkRefreshWithoutEvents(t *testing.T) {
	m := obs.NewMetrics()
	s := NewMetricsSink(m, func() model.Stats { return model.Stats{Total: 5, Genuine: 3, Fake: 2} })
	s.Refresh()
	if v := testutil.ToFloat64(m.Products.WithLabelValues("genuine")); v != 3 {
		t.Fatalf("expected genuine gauge 3, got %v", v)
	}
	if v := testutil.ToFloat64(m.Products.WithLabelValues("fake")); v != 2 {
		t.Fatalf("expected fake gauge 2, got %v", v)
	}
	if v := testutil.ToFloat64(m.EventsPublished.WithLabelValues("product_added")); v != 0 {
		t.Fatalf("refresh must not count events, got %v", v)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaSinkMessageShape(t *testing.T) {
	w := &fakeWriter{}
	s := &KafkaSink{w: w, topic: "verisure.ledger"}
	at := time.Unix(1700000000, 0).UTC()
	ev := model.Event{Sequence: 9, Kind: model.EventProductMarkedFake, ProductID: 101, Actor: "admin", At: at}
	if err := s.Deliver(context.Background(), ev); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != "verisure.ledger" || string(msg.Key) != "101" || !msg.Time.Equal(at) {
		t.Fatalf("unexpected message: %+v", msg)
	}
	var got model.Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Sequence != 9 || got.Kind != model.EventProductMarkedFake {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestNewKafkaSinkValidates(t *testing.T) {
	if _, err := NewKafkaSink(nil, "t"); err == nil {
		t.Fatalf("expected broker error")
	}
	if _, err := NewKafkaSink([]string{"localhost:9092"}, ""); err == nil {
		t.Fatalf("expected topic error")
	}
}

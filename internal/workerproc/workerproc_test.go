package workerproc

import (
	"context"
	"errors"
	"testing"
)

type fakeDispatcher struct {
	batches int
	singles []string
}

func (f *fakeDispatcher) TriggerBatchRun()              { f.batches++ }
func (f *fakeDispatcher) TriggerSingleEntity(id string) { f.singles = append(f.singles, id) }

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		check  func(error) bool
		kind   string
		cityID string
	}{
		{name: "backfill", body: `{"kind":"backfill"}`, kind: "backfill"},
		{name: "city trims and lowercases", body: `{"kind":" City ","cityId":" c1 "}`, kind: "city", cityID: "c1"},
		{name: "empty", body: "  ", check: func(err error) bool { var e ErrEmptyBody; return errors.As(err, &e) }},
		{name: "bad json", body: "{nope", check: func(err error) bool { var e ErrDecode; return errors.As(err, &e) }},
		{name: "city without id", body: `{"kind":"city"}`, check: func(err error) bool { var e ErrMissingCityID; return errors.As(err, &e) }},
		{name: "unknown kind", body: `{"kind":"purge"}`, check: func(err error) bool { var e ErrUnknownKind; return errors.As(err, &e) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, meta, err := ParseMessage(tc.body)
			if tc.check != nil {
				if err == nil || !tc.check(err) {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMessage: %v", err)
			}
			if msg.Kind != tc.kind || msg.CityID != tc.cityID {
				t.Fatalf("unexpected message %+v", msg)
			}
			if meta.BodyLen != len(tc.body) || len(meta.BodySHA) != 64 {
				t.Fatalf("unexpected meta %+v", meta)
			}
		})
	}
}

func TestHandleMessageDispatches(t *testing.T) {
	d := &fakeDispatcher{}
	if err := HandleMessage(context.Background(), d, `{"kind":"backfill"}`); err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if err := HandleMessage(context.Background(), d, `{"kind":"city","cityId":"c7"}`); err != nil {
		t.Fatalf("city: %v", err)
	}
	if d.batches != 1 || len(d.singles) != 1 || d.singles[0] != "c7" {
		t.Fatalf("unexpected dispatch %+v", d)
	}
}

func TestHandleMessageRequiresDispatcher(t *testing.T) {
	if err := HandleMessage(context.Background(), nil, `{"kind":"backfill"}`); err == nil {
		t.Fatalf("expected error without dispatcher")
	}
}

func TestDispatchHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &fakeDispatcher{}
	if err := HandleMessage(ctx, d, `{"kind":"backfill"}`); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if d.batches != 0 {
		t.Fatalf("expected no dispatch")
	}
}

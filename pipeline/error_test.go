package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/multierr"

	apperrors "github.com/kbukum/tiered/errors"
)

func TestFlatten(t *testing.T) {
	a, b, c := stderrors.New("a"), stderrors.New("b"), stderrors.New("c")
	nested := multierr.Append(a, stderrors.Join(b, fmt.Errorf("wrapped: %w", c)))

	got := flatten(nested)
	if len(got) != 3 {
		t.Fatalf("expected 3 leaves, got %d: %v", len(got), got)
	}
	if got[0] != a || got[1] != b || !stderrors.Is(got[2], c) {
		t.Errorf("unexpected leaves %v", got)
	}
	if flatten(nil) != nil {
		t.Error("expected no leaves for nil")
	}
}

func TestError_Message(t *testing.T) {
	one := &Error[int, int]{Errors: []error{stderrors.New("down")}}
	if one.Error() != "pipeline: down" {
		t.Errorf("unexpected message %q", one.Error())
	}

	two := &Error[int, int]{Errors: []error{stderrors.New("a"), stderrors.New("b")}}
	want := "pipeline: 2 errors occurred:\n\t* a\n\t* b"
	if two.Error() != want {
		t.Errorf("expected %q, got %q", want, two.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	sentinel := stderrors.New("sentinel")
	var err error = &Error[int, int]{Errors: []error{
		apperrors.SourceUnavailable("db"),
		sentinel,
	}}
	if !stderrors.Is(err, sentinel) {
		t.Error("expected errors.Is to reach the leaf")
	}
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeSourceUnavailable {
		t.Errorf("expected SOURCE_UNAVAILABLE leaf, got %v", appErr)
	}
	if IsStructural(err) {
		t.Error("source failures are not structural")
	}
}

func TestIsStructural(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"invalid state", apperrors.InvalidState("index 3 out of range"), true},
		{"unknown request", apperrors.UnknownRequest("CoreMachine", 1), true},
		{"joined", multierr.Append(stderrors.New("x"), apperrors.InvalidState("bad")), true},
		{"argument", apperrors.InvalidArgument("ids", "nil"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsStructural(tc.err); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{apperrors.Timeout("read"), string(apperrors.ErrCodeTimeout)},
		{fmt.Errorf("op: %w", context.Canceled), "CANCELED"},
		{context.DeadlineExceeded, "DEADLINE_EXCEEDED"},
		{stderrors.New("x"), "UNKNOWN"},
	}
	for _, tc := range tests {
		if got := codeOf(tc.err); got != tc.want {
			t.Errorf("codeOf(%v): expected %s, got %s", tc.err, tc.want, got)
		}
	}
}

func TestDefer(t *testing.T) {
	meta := &Metadata{}
	d := Defer(context.Background(), meta, func(context.Context) ([]Request, error) {
		return []Request{NewQuery(meta, []int{1})}, nil
	})
	reqs, err := d.Await(context.Background())
	if err != nil || len(reqs) != 1 {
		t.Fatalf("expected one request, got %v, %v", reqs, err)
	}
	select {
	case <-d.Done():
	default:
		t.Error("expected Done to be closed")
	}
}

func TestDefer_Panic(t *testing.T) {
	d := Defer(context.Background(), &Metadata{}, func(context.Context) ([]Request, error) {
		panic("boom")
	})
	_, err := d.Await(context.Background())
	if !apperrors.IsCode(err, apperrors.ErrCodeInternal) {
		t.Errorf("expected INTERNAL_ERROR, got %v", err)
	}
}

func TestDeferred_AwaitCancelled(t *testing.T) {
	release := make(chan struct{})
	d := Defer(context.Background(), &Metadata{}, func(context.Context) ([]Request, error) {
		<-release
		return nil, nil
	})
	defer func() {
		close(release)
		<-d.Done()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := d.Await(ctx); !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestResolved(t *testing.T) {
	meta := &Metadata{}
	d := Resolved(meta, NewRetry(meta, []int{1}), NewQuery(meta, []int{2}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reqs, err := d.Await(ctx)
	if err != nil || len(reqs) != 2 {
		t.Errorf("a resolved deferred must not observe cancellation, got %v, %v", reqs, err)
	}
}

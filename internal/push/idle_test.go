package push_test

import (
	"context"
	"testing"

	"github.com/jensholdgaard/auction-live/internal/push"
)

func TestIdleTransport(t *testing.T) {
	sub, err := push.IdleTransport{}.Subscribe(context.Background(), []string{"a1"})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case e := <-sub.Events():
		t.Fatalf("unexpected event %+v", e)
	default:
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("Events() still open after Close")
	}
	if sub.Err() != nil {
		t.Errorf("Err() = %v, want nil after Close", sub.Err())
	}
}

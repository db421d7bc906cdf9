package shutdown

import (
	"context"
	"testing"
)

func TestContextCanceledByParent(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := Context(parent)
	defer cancel()

	if ctx.Err() != nil {
		t.Fatal("context done before any signal")
	}
	cancelParent()
	<-ctx.Done()
	if ctx.Err() != context.Canceled {
		t.Errorf("got %v, want context.Canceled", ctx.Err())
	}
}

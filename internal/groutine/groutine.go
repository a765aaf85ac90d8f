package groutine

import (
	"context"
	"fmt"
	"runtime/pprof"
	"sync"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn on a goroutine labelled with name, visible in pprof goroutine dumps.
//
//	groutine.Go(ctx, "notify-2a37", func(ctx context.Context) {
//	    // work
//	})
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// All runs every fn on its own named goroutine ("<prefix>-<index>") and
// blocks until all of them return.
func All(parentCtx context.Context, prefix string, fns ...func(ctx context.Context)) {
	var wg sync.WaitGroup
	wg.Add(len(fns))
	for i, fn := range fns {
		Go(parentCtx, fmt.Sprintf("%s-%d", prefix, i), func(ctx context.Context) {
			defer wg.Done()
			fn(ctx)
		})
	}
	wg.Wait()
}

// Name retrieves the goroutine name from the context.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(goroutineNameKey).(string); ok {
		return v
	}
	return ""
}

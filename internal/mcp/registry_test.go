package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndList(t *testing.T) {
	reg := NewRegistry(quietLogger())
	require.NoError(t, reg.Register(&stubTool{name: "zeta"}))
	require.NoError(t, reg.Register(&stubTool{name: "alpha"}))
	require.NoError(t, reg.RegisterAs("middle", &stubTool{name: "ignored"}))

	tools := reg.List()
	require.Len(t, tools, 3)
	assert.Equal(t, "alpha", tools[0].Name)
	assert.Equal(t, "middle", tools[1].Name, "the registered name wins over the definition's")
	assert.Equal(t, "zeta", tools[2].Name)

	assert.True(t, reg.Contains("alpha"))
	assert.False(t, reg.Contains("ignored"))
	assert.Equal(t, 3, reg.Count())
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	reg := NewRegistry(quietLogger())
	first := &stubTool{name: "echo"}
	require.NoError(t, reg.Register(first))

	err := reg.Register(&stubTool{name: "echo"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolExists))
	assert.Equal(t, "tool 'echo' already registered", err.Error())

	got, ok := reg.Lookup("echo")
	require.True(t, ok)
	assert.Same(t, first, got, "first registration must survive")
}

func TestRegistry_RegisterAsRejectsBadInput(t *testing.T) {
	reg := NewRegistry(quietLogger())
	assert.Error(t, reg.RegisterAs("", &stubTool{name: "x"}))
	assert.Error(t, reg.RegisterAs("x", nil))
	assert.Zero(t, reg.Count())
}

func TestRegistry_Unregister(t *testing.T) {
	reg := NewRegistry(quietLogger())
	require.NoError(t, reg.Register(&stubTool{name: "echo"}))

	assert.True(t, reg.Unregister("echo"))
	assert.False(t, reg.Unregister("echo"))
	assert.False(t, reg.Contains("echo"))
	require.NoError(t, reg.Register(&stubTool{name: "echo"}), "name is free again")
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	reg := NewRegistry(quietLogger())

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := map[string]int{}
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("tool-%d", i%8)
			if err := reg.Register(&stubTool{name: name}); err == nil {
				mu.Lock()
				wins[name]++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrToolExists)
			}
			reg.List()
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, reg.Count())
	for name, n := range wins {
		assert.Equal(t, 1, n, "exactly one registration of %s succeeds", name)
	}
}

func TestRegistry_ExecuteNotFound(t *testing.T) {
	reg := NewRegistry(quietLogger())
	_, err := reg.Execute(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.Contains(t, err.Error(), "missing")

	rpcErr := toRPCError(err)
	assert.Equal(t, CodeInternalError, rpcErr.Code)
	assert.Equal(t, "tool execution failed: tool 'missing' not found", rpcErr.Message)
}

func TestRegistry_ExecuteInvalidParams(t *testing.T) {
	reg := NewRegistry(quietLogger())
	ran := false
	require.NoError(t, reg.Register(&stubTool{
		name:     "strict",
		validate: func(map[string]any) error { return errors.New("missing required 'text' argument") },
		run: func(context.Context, map[string]any) (*CallToolResponse, error) {
			ran = true
			return nil, nil
		},
	}))

	_, err := reg.Execute(context.Background(), "strict", map[string]any{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.False(t, ran, "tool must not run when validation fails")

	rpcErr := toRPCError(err)
	assert.Equal(t, CodeInvalidParams, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "missing required 'text' argument")
}

func TestRegistry_ExecuteNilArgs(t *testing.T) {
	reg := NewRegistry(quietLogger())
	var seen map[string]any
	require.NoError(t, reg.Register(&stubTool{
		name: "args",
		run: func(_ context.Context, args map[string]any) (*CallToolResponse, error) {
			seen = args
			return nil, nil
		},
	}))

	resp, err := reg.Execute(context.Background(), "args", nil)
	require.NoError(t, err)
	assert.NotNil(t, seen)
	assert.Empty(t, resp.Content)
}

func TestRegistry_ExecuteTimeout(t *testing.T) {
	reg := NewRegistry(quietLogger())
	require.NoError(t, reg.Register(&stubTool{
		name:    "slow",
		timeout: 50 * time.Millisecond,
		run: func(ctx context.Context, _ map[string]any) (*CallToolResponse, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return TextResult("too late"), nil
			}
		},
	}))

	start := time.Now()
	_, err := reg.Execute(context.Background(), "slow", nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolTimeout)
	assert.Contains(t, err.Error(), "timed out after 50ms")
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, CodeInternalError, toRPCError(err).Code)
}

func TestRegistry_TimeoutIgnoresLateResult(t *testing.T) {
	reg := NewRegistry(quietLogger())
	finished := make(chan struct{})
	require.NoError(t, reg.Register(&stubTool{
		name:    "stubborn",
		timeout: 20 * time.Millisecond,
		run: func(context.Context, map[string]any) (*CallToolResponse, error) {
			defer close(finished)
			time.Sleep(100 * time.Millisecond)
			return TextResult("late"), nil
		},
	}))

	resp, err := reg.Execute(context.Background(), "stubborn", nil)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrToolTimeout)

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("tool goroutine never finished")
	}
}

func TestRegistry_DefaultTimeout(t *testing.T) {
	reg := NewRegistry(quietLogger())
	reg.SetDefaultTimeout(30 * time.Millisecond)
	require.NoError(t, reg.Register(&stubTool{
		name: "blocked",
		run: func(ctx context.Context, _ map[string]any) (*CallToolResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	_, err := reg.Execute(context.Background(), "blocked", nil)
	assert.ErrorIs(t, err, ErrToolTimeout)

	reg.SetDefaultTimeout(0)
	assert.Equal(t, DefaultToolTimeout, reg.timeoutFor(&stubTool{name: "x"}))
}

func TestRegistry_ExecutePanic(t *testing.T) {
	reg := NewRegistry(quietLogger())
	require.NoError(t, reg.Register(&stubTool{
		name: "boom",
		run: func(context.Context, map[string]any) (*CallToolResponse, error) {
			panic("kaboom")
		},
	}))

	_, err := reg.Execute(context.Background(), "boom", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolFailed)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRegistry_ExecuteToolError(t *testing.T) {
	reg := NewRegistry(quietLogger())
	require.NoError(t, reg.Register(&stubTool{
		name: "fails",
		run: func(context.Context, map[string]any) (*CallToolResponse, error) {
			return nil, errors.New("division by zero")
		},
	}))

	_, err := reg.Execute(context.Background(), "fails", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolFailed)

	rpcErr := toRPCError(err)
	assert.Equal(t, CodeInternalError, rpcErr.Code)
	assert.Equal(t, "tool execution failed: tool 'fails' failed: division by zero", rpcErr.Message)
}

func TestRegistry_ExecuteParentCancelled(t *testing.T) {
	reg := NewRegistry(quietLogger())
	require.NoError(t, reg.Register(&stubTool{
		name: "waits",
		run: func(ctx context.Context, _ map[string]any) (*CallToolResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reg.Execute(ctx, "waits", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolFailed)
	assert.NotErrorIs(t, err, ErrToolTimeout)
}

func TestToRPCError_PassesThroughRPCErrors(t *testing.T) {
	want := NewInvalidParams("bad")
	assert.Same(t, want, toRPCError(fmt.Errorf("wrapped: %w", want)))
}

package prompta

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type person struct {
	Name string  `json:"name"`
	Age  float64 `json:"age"`
}

func newTestClient(t *testing.T, transport Transport, opts ...Option) *Client {
	t.Helper()
	client, err := New(Config{Transport: transport}, opts...)
	require.NoError(t, err)
	return client
}

func firstBlock[I, P any](_ context.Context, rc *Context[I, P]) (string, error) {
	if len(rc.Blocks) == 0 {
		return "", errors.New("no blocks")
	}
	return rc.Blocks[0].Content, nil
}

func TestResolveEndToEnd(t *testing.T) {
	ctx := context.Background()
	transport := NewMockTransport("45")
	client := newTestClient(t, transport)

	var prepared person
	resolver := Resolve(
		Prepare(Define[person](client).Input(MustSchemaFor[person]()), func(_ context.Context, p person) (person, error) {
			p.Age++
			return p, nil
		}).Prompt(Template[person]{
			System: Computed(func(p person) string { return "Known age: " + strconv.FormatFloat(p.Age, 'f', -1, 64) }),
			User:   Computed(func(p person) string { return "Age of " + p.Name }),
		}),
		func(_ context.Context, rc *Context[person, person]) (string, error) {
			prepared = rc.Prepared
			return rc.Blocks[0].Content, nil
		},
	)

	out, err := resolver.CallRaw(ctx, map[string]any{"name": "Alice", "age": 44})
	require.NoError(t, err)
	assert.Equal(t, "45", out)
	assert.Equal(t, person{Name: "Alice", Age: 45}, prepared)

	requests := transport.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, []Message{
		{Role: RoleSystem, Content: "Known age: 45"},
		{Role: RoleUser, Content: "Age of Alice"},
	}, requests[0].Messages)
	assert.Equal(t, DefaultModel, requests[0].Model)
	assert.Equal(t, DefaultTemperature, requests[0].Temperature)
}

func TestResolverCall(t *testing.T) {
	ctx := context.Background()

	t.Run("typed input is validated", func(t *testing.T) {
		transport := NewMockTransport("ok")
		schema, err := SchemaFromJSON[person](`{"type":"object","properties":{"age":{"type":"number","minimum":0}}}`)
		require.NoError(t, err)

		resolver := Resolve(
			Define[person](newTestClient(t, transport)).Input(schema).Prompt(Template[person]{
				User: Computed(func(p person) string { return p.Name }),
			}),
			firstBlock[person, person],
		)

		_, err = resolver.Call(ctx, person{Name: "Bob", Age: -1})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Empty(t, transport.Requests(), "invalid input must not reach the API")

		out, err := resolver.Call(ctx, person{Name: "Bob", Age: 1})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
	})

	t.Run("no schema", func(t *testing.T) {
		transport := NewMockTransport("ok")
		resolver := Resolve(
			Define[person](newTestClient(t, transport)).Prompt(Template[person]{
				User: Computed(func(p person) string { return "hi " + p.Name }),
			}),
			firstBlock[person, person],
		)

		_, err := resolver.CallRaw(ctx, `{"name":"Carol"}`)
		require.NoError(t, err)
		assert.Equal(t, "hi Carol", transport.Requests()[0].Messages[1].Content)
		assert.Nil(t, resolver.Schema())

		_, err = resolver.CallRaw(ctx, `not json`)
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve)
	})

	t.Run("call options", func(t *testing.T) {
		transport := NewMockTransport("ok")
		resolver := Resolve(
			Define[string](newTestClient(t, transport)).Prompt(Template[string]{
				User: Computed(func(s string) string { return s }),
			}),
			firstBlock[string, string],
		)

		_, err := resolver.Call(ctx, "q", WithModel("gpt-4"), WithTemperature(TemperatureZero))
		require.NoError(t, err)

		req := transport.Requests()[0]
		assert.Equal(t, "gpt-4", req.Model)
		assert.Equal(t, TemperatureZero, req.Temperature)
	})

	t.Run("prepare error", func(t *testing.T) {
		transport := NewMockTransport("ok")
		boom := errors.New("lookup failed")
		resolver := Resolve(
			Prepare(Define[string](newTestClient(t, transport)), func(context.Context, string) (int, error) {
				return 0, boom
			}).Prompt(Template[int]{User: Literal[int]("u")}),
			firstBlock[string, int],
		)

		_, err := resolver.Call(ctx, "x")
		var pe *PrepareError
		require.ErrorAs(t, err, &pe)
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, transport.Requests())
	})

	t.Run("template error", func(t *testing.T) {
		transport := NewMockTransport("ok")
		resolver := Resolve(
			Define[string](newTestClient(t, transport)).Prompt(Template[string]{
				System: Computed(func(string) string { panic("broken slot") }),
			}),
			firstBlock[string, string],
		)

		_, err := resolver.Call(ctx, "x")
		var te *TemplateError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, RoleSystem, te.Slot)
		assert.Empty(t, transport.Requests())
	})

	t.Run("resolver error is returned unchanged", func(t *testing.T) {
		sentinelErr := errors.New("caller rejected the answer")
		resolver := Resolve(
			Define[string](newTestClient(t, NewMockTransport("ok"))).Prompt(Template[string]{}),
			func(context.Context, *Context[string, string]) (int, error) {
				return 0, sentinelErr
			},
		)

		_, err := resolver.Call(ctx, "x")
		assert.Same(t, sentinelErr, err)
	})

	t.Run("completion error without corrector", func(t *testing.T) {
		var calls atomic.Int64
		resolver := Resolve(
			Define[string](newTestClient(t, failingTransport(&calls))).Prompt(Template[string]{}),
			firstBlock[string, string],
		)

		_, err := resolver.Call(ctx, "x")
		var cerr *CompletionError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, 502, cerr.StatusCode)
		assert.Equal(t, int64(1), calls.Load())
	})

	t.Run("context exposes the invocation", func(t *testing.T) {
		var seen *Context[string, string]
		resolver := Resolve(
			Define[string](newTestClient(t, NewMockTransport("text\n```sql\nSELECT 1\n```"))).Prompt(Template[string]{
				System: Literal[string]("S"),
				User:   Computed(func(s string) string { return s }),
			}),
			func(_ context.Context, rc *Context[string, string]) (string, error) {
				seen = rc
				return rc.Blocks.First(BlockSQL).Content, nil
			},
		)

		out, err := resolver.Call(ctx, "count")
		require.NoError(t, err)
		assert.Equal(t, "SELECT 1", out)
		require.NotNil(t, seen)
		assert.NotEmpty(t, seen.InvocationID)
		assert.Equal(t, "count", seen.Input)
		assert.Len(t, seen.Messages, 2)
		assert.Equal(t, seen.Result.Blocks, seen.Blocks)
		assert.True(t, seen.Template.User.IsComputed())
	})
}

func TestResolverHistory(t *testing.T) {
	ctx := context.Background()

	build := func(t *testing.T, gen HistoryFunc[int, int]) (*Resolver[int, string], *MockTransport) {
		transport := NewMockTransport("ok")
		resolver := Resolve(
			Define[int](newTestClient(t, transport)).Prompt(Template[int]{
				System: Literal[int]("S"),
				User:   Computed(func(i int) string { return "U" + strconv.Itoa(i) }),
			}).History(gen),
			firstBlock[int, int],
		)
		return resolver, transport
	}

	t.Run("simple", func(t *testing.T) {
		calls := 0
		resolver, transport := build(t, func(ctx context.Context, hc *HistoryContext[int, int]) ([]HistoryEntry, error) {
			calls++
			prepared, err := hc.Prepare(ctx, 1)
			if err != nil {
				return nil, err
			}
			user, err := hc.Promptify(hc.Template.User, prepared)
			if err != nil {
				return nil, err
			}
			return []HistoryEntry{{User: user, Assistant: "A1"}}, nil
		})

		_, err := resolver.Call(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)

		_, err = resolver.Call(ctx, 6)
		require.NoError(t, err)
		assert.Equal(t, 1, calls, "second call must reuse cached history")

		_, err = resolver.Call(ctx, 7, WithFreshHistory())
		require.NoError(t, err)
		assert.Equal(t, 2, calls, "fresh flag must regenerate history")

		assert.Equal(t, []Message{
			{Role: RoleSystem, Content: "S"},
			{Role: RoleUser, Content: "U1"},
			{Role: RoleAssistant, Content: "A1"},
			{Role: RoleUser, Content: "U7"},
		}, transport.Requests()[2].Messages)
		assert.Equal(t, 1, resolver.History().Len())
	})

	t.Run("failure keeps stale entries", func(t *testing.T) {
		fail := false
		resolver, transport := build(t, func(context.Context, *HistoryContext[int, int]) ([]HistoryEntry, error) {
			if fail {
				return nil, errors.New("generator down")
			}
			return []HistoryEntry{{User: "u", Assistant: "a"}}, nil
		})

		_, err := resolver.Call(ctx, 1)
		require.NoError(t, err)

		fail = true
		_, err = resolver.Call(ctx, 2, WithFreshHistory())
		var he *HistoryError
		require.ErrorAs(t, err, &he)
		assert.True(t, he.Stale)
		assert.Len(t, transport.Requests(), 1, "failed history must not reach the API")

		_, err = resolver.Call(ctx, 3)
		require.NoError(t, err)
		assert.Len(t, transport.Requests()[1].Messages, 4)
	})

	t.Run("resolvers own their cache", func(t *testing.T) {
		calls := 0
		stage := Define[int](newTestClient(t, NewMockTransport("ok"))).Prompt(Template[int]{}).History(
			func(context.Context, *HistoryContext[int, int]) ([]HistoryEntry, error) {
				calls++
				return nil, nil
			},
		)
		a := Resolve(stage, firstBlock[int, int])
		b := Resolve(stage, firstBlock[int, int])

		_, _ = a.Call(ctx, 1)
		_, _ = b.Call(ctx, 1)
		assert.Equal(t, 2, calls)
		assert.NotSame(t, a.History(), b.History())
	})

	t.Run("concurrent calls", func(t *testing.T) {
		var calls atomic.Int64
		resolver, transport := build(t, func(context.Context, *HistoryContext[int, int]) ([]HistoryEntry, error) {
			calls.Add(1)
			return []HistoryEntry{{User: "u", Assistant: "a"}}, nil
		})

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := resolver.Call(ctx, i)
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		assert.GreaterOrEqual(t, calls.Load(), int64(1))
		for _, req := range transport.Requests() {
			assert.Len(t, req.Messages, 4)
		}
	})
}

func TestResolverCorrector(t *testing.T) {
	ctx := context.Background()

	t.Run("single retry with corrected messages", func(t *testing.T) {
		var requests [][]Message
		transport := NewMockTransportWithCallback(func(req CompletionRequest) (string, error) {
			requests = append(requests, req.Messages)
			if req.Messages[len(req.Messages)-1].Content == "U1" {
				return "", &CompletionError{Message: "context too long", Type: "invalid_request_error", StatusCode: 400}
			}
			return "fixed", nil
		})

		var correctedFrom error
		resolver := Resolve(
			Define[int](newTestClient(t, transport)).Prompt(Template[int]{
				System: Literal[int]("S"),
				User:   Computed(func(i int) string { return "U" + strconv.Itoa(i) }),
			}).Correct(func(_ context.Context, err error, attempted []Message, cc *CorrectionContext[int, int]) ([]Message, error) {
				correctedFrom = err
				user, perr := cc.Promptify(cc.Template.User, cc.Prepared+1)
				if perr != nil {
					return nil, perr
				}
				return append(attempted[:len(attempted)-1], Message{Role: RoleUser, Content: user}), nil
			}),
			firstBlock[int, int],
		)

		out, err := resolver.Call(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "fixed", out)
		require.Len(t, requests, 2)
		assert.Equal(t, "U2", requests[1][1].Content)

		var cerr *CompletionError
		require.ErrorAs(t, correctedFrom, &cerr)
		assert.Equal(t, 400, cerr.StatusCode)
	})

	t.Run("second failure propagates", func(t *testing.T) {
		var calls atomic.Int64
		corrections := 0
		resolver := Resolve(
			Define[int](newTestClient(t, failingTransport(&calls))).Prompt(Template[int]{}).
				Correct(func(_ context.Context, _ error, attempted []Message, _ *CorrectionContext[int, int]) ([]Message, error) {
					corrections++
					return attempted, nil
				}),
			firstBlock[int, int],
		)

		_, err := resolver.Call(ctx, 1)
		var cerr *CompletionError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, int64(2), calls.Load())
		assert.Equal(t, 1, corrections)
	})

	t.Run("corrector failure", func(t *testing.T) {
		var calls atomic.Int64
		boom := errors.New("cannot fix")
		resolver := Resolve(
			Define[int](newTestClient(t, failingTransport(&calls))).Prompt(Template[int]{}).
				Correct(func(context.Context, error, []Message, *CorrectionContext[int, int]) ([]Message, error) {
					return nil, boom
				}),
			firstBlock[int, int],
		)

		_, err := resolver.Call(ctx, 1)
		var ce *CorrectionError
		require.ErrorAs(t, err, &ce)
		assert.ErrorIs(t, err, boom)

		var cerr *CompletionError
		assert.ErrorAs(t, err, &cerr)
		assert.Equal(t, int64(1), calls.Load())
	})

	t.Run("attempted messages are a copy", func(t *testing.T) {
		var sent [][]Message
		transport := NewMockTransportWithCallback(func(req CompletionRequest) (string, error) {
			sent = append(sent, req.Messages)
			if len(sent) == 1 {
				return "", errors.New("network down")
			}
			return "ok", nil
		})

		resolver := Resolve(
			Define[string](newTestClient(t, transport)).Prompt(Template[string]{
				User: Computed(func(s string) string { return s }),
			}).Correct(func(_ context.Context, _ error, attempted []Message, _ *CorrectionContext[string, string]) ([]Message, error) {
				attempted[1].Content = fmt.Sprintf("%s (retry)", attempted[1].Content)
				return attempted, nil
			}),
			firstBlock[string, string],
		)

		_, err := resolver.Call(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, "q", sent[0][1].Content)
		assert.Equal(t, "q (retry)", sent[1][1].Content)
	})
}

package oracle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	tickerr "github.com/danielpatrickdp/affect-tick/internal/errors"
	"github.com/danielpatrickdp/affect-tick/internal/pipeline"
)

// #region mock
type mockConn struct {
	method string
	sent   *structpb.Struct
	reply  map[string]any
	err    error
}

func (m *mockConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	m.method = method
	m.sent = args.(*structpb.Struct)
	if m.err != nil {
		return m.err
	}
	out, err := structpb.NewStruct(m.reply)
	if err != nil {
		return err
	}
	proto.Merge(reply.(proto.Message), out)
	return nil
}

func (m *mockConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, status.Error(codes.Unimplemented, "no streams")
}

func request() Request {
	return Request{
		Event:    pipeline.Event{ID: "ev-1", Text: "turn on the lights"},
		Intent:   pipeline.IntentCommand,
		Keywords: []string{"turn", "lights"},
		Memories: []string{"lights were on yesterday"},
	}
}
// #endregion mock

// #region grpc-tests
func TestNewGRPCClient(t *testing.T) {
	c, err := NewGRPCClient("localhost:0")
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}

func TestGRPCClient_Request(t *testing.T) {
	conn := &mockConn{reply: map[string]any{
		"decision_type": "act",
		"content":       "Turning on the lights.",
		"action":        "lights.on",
		"confidence":    0.9,
	}}
	c := NewGRPCClientWithConn(conn)

	resp, err := c.Request(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, DecideMethod, conn.method)
	assert.Equal(t, DecisionAct, resp.DecisionType)
	assert.Equal(t, "lights.on", resp.Action)
	assert.InDelta(t, 0.9, resp.Confidence, 1e-9)

	sent := conn.sent.AsMap()
	assert.Equal(t, "command", sent["intent"])
	assert.Equal(t, []any{"lights were on yesterday"}, sent["memories"])
	event := sent["event"].(map[string]any)
	assert.Equal(t, "ev-1", event["id"])
}

func TestGRPCClient_ClassifiesErrors(t *testing.T) {
	c := NewGRPCClientWithConn(&mockConn{err: status.Error(codes.ResourceExhausted, "slow down")})
	_, err := c.Request(context.Background(), request())
	assert.True(t, tickerr.IsCode(err, tickerr.CodeRateLimited))

	c = NewGRPCClientWithConn(&mockConn{reply: map[string]any{"foo": "bar"}})
	_, err = c.Request(context.Background(), request())
	assert.True(t, tickerr.IsCode(err, tickerr.CodeMalformed))
}
// #endregion grpc-tests

// #region extract-tests
func TestExtractResponse(t *testing.T) {
	tests := []struct {
		name    string
		in      map[string]any
		want    Response
		wantErr bool
	}{
		{
			name: "canonical",
			in:   map[string]any{"decision_type": "respond", "content": "Hello.", "confidence": 0.7},
			want: Response{DecisionType: DecisionRespond, Content: "Hello.", Confidence: 0.7},
		},
		{
			name: "alias and defaults",
			in:   map[string]any{"text": "  Sure thing. "},
			want: Response{DecisionType: DecisionRespond, Content: "Sure thing.", Confidence: 0.5},
		},
		{
			name: "nested decision",
			in:   map[string]any{"decision": map[string]any{"decision_type": "CLARIFY", "message": "Which one?"}},
			want: Response{DecisionType: DecisionClarify, Content: "Which one?", Confidence: 0.5},
		},
		{
			name: "json in content",
			in:   map[string]any{"content": `{"decision_type":"respond","content":"inner","confidence":2}`},
			want: Response{DecisionType: DecisionRespond, Content: "inner", Confidence: 1},
		},
		{name: "empty", in: map[string]any{}, wantErr: true},
		{name: "blank content", in: map[string]any{"decision_type": "respond", "content": "   "}, wantErr: true},
		{
			name: "unknown type keeps text",
			in:   map[string]any{"decision_type": "reply", "content": "Sure, I can help with that."},
			want: Response{DecisionType: DecisionRespond, Content: "Sure, I can help with that.", Confidence: 0.5},
		},
		{
			name: "act without action becomes respond",
			in:   map[string]any{"decision_type": "act", "content": "Turning on the lamp."},
			want: Response{DecisionType: DecisionRespond, Content: "Turning on the lamp.", Confidence: 0.5},
		},
		{
			name: "json content without text kept raw",
			in:   map[string]any{"content": `{"note":"the lamp is on"}`, "confidence": 0.8},
			want: Response{DecisionType: DecisionRespond, Content: `{"note":"the lamp is on"}`, Confidence: 0.8},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractResponse(tt.in)
			if tt.wantErr {
				assert.True(t, tickerr.IsCode(err, tickerr.CodeMalformed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
// #endregion extract-tests

// #region guarded-tests
func fastGuard() GuardConfig {
	return GuardConfig{
		Timeout:        time.Second,
		MaxTries:       3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestGuarded_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	next := ClientFunc(func(context.Context, Request) (Response, error) {
		if calls.Add(1) < 3 {
			return Response{}, status.Error(codes.ResourceExhausted, "slow down")
		}
		return Response{DecisionType: DecisionRespond, Content: "ok", Confidence: 0.8}, nil
	})

	resp, err := NewGuarded(next, fastGuard(), nil).Request(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.False(t, resp.Degraded)
	assert.Equal(t, "ok", resp.Content)
}

func TestGuarded_FallsBackAfterMaxTries(t *testing.T) {
	var calls atomic.Int32
	next := ClientFunc(func(context.Context, Request) (Response, error) {
		calls.Add(1)
		return Response{}, tickerr.New(tickerr.CodeUnavailable, "down")
	})

	resp, err := NewGuarded(next, fastGuard(), nil).Request(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, resp.Degraded)
	assert.Equal(t, DecisionAcknowledge, resp.DecisionType)
	assert.Equal(t, string(tickerr.CodeUnavailable), resp.Reason)
}

func TestGuarded_MalformedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	next := ClientFunc(func(context.Context, Request) (Response, error) {
		calls.Add(1)
		return Response{}, tickerr.New(tickerr.CodeMalformed, "garbage")
	})

	resp, err := NewGuarded(next, fastGuard(), nil).Request(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, resp.Degraded)
	assert.Equal(t, string(tickerr.CodeMalformed), resp.Reason)
}

func TestGuarded_Timeout(t *testing.T) {
	next := ClientFunc(func(ctx context.Context, _ Request) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	})
	cfg := fastGuard()
	cfg.Timeout = 20 * time.Millisecond

	resp, err := NewGuarded(next, cfg, nil).Request(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, string(tickerr.CodeTimeout), resp.Reason)
}

func TestFallback_Urgent(t *testing.T) {
	req := request()
	req.Event.Urgent = true
	resp := Fallback(req, tickerr.New(tickerr.CodeTimeout, ""))
	assert.Equal(t, "Got it. I'm on it.", resp.Content)
	assert.True(t, resp.Degraded)
}
// #endregion guarded-tests

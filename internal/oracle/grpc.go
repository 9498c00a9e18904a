package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	tickerr "github.com/danielpatrickdp/affect-tick/internal/errors"
)

// DecideMethod is the full gRPC method name of the oracle's unary call.
const DecideMethod = "/affecttick.oracle.v1.ReasoningOracle/Decide"

// #region client-struct
// GRPCClient calls the oracle over gRPC with structpb payloads, so no
// generated stubs are needed on this side.
type GRPCClient struct {
	conn   grpc.ClientConnInterface
	closer interface{ Close() error }
}
// #endregion client-struct

// #region constructor
// NewGRPCClient connects to the oracle at addr.
func NewGRPCClient(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn, closer: conn}, nil
}

// NewGRPCClientWithConn wraps an existing connection. Used for testing
// without a real server.
func NewGRPCClientWithConn(conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{conn: conn}
}

// Close shuts down the connection if the client owns it.
func (c *GRPCClient) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
// #endregion constructor

// #region request
// Request sends req to the oracle. Transport errors are classified into
// domain codes; replies that cannot be read are CodeMalformed.
func (c *GRPCClient) Request(ctx context.Context, req Request) (Response, error) {
	in, err := encodeRequest(req)
	if err != nil {
		return Response{}, tickerr.Wrap(tickerr.CodeValidation, "encode oracle request", err)
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, DecideMethod, in, out); err != nil {
		return Response{}, tickerr.FromGRPC(fmt.Errorf("decide rpc: %w", err))
	}
	return ExtractResponse(out.AsMap())
}

func encodeRequest(req Request) (*structpb.Struct, error) {
	broadcasts := make([]any, len(req.RecentBroadcasts))
	for i, b := range req.RecentBroadcasts {
		broadcasts[i] = b
	}
	memories := make([]any, len(req.Memories))
	for i, m := range req.Memories {
		memories[i] = m
	}
	keywords := make([]any, len(req.Keywords))
	for i, k := range req.Keywords {
		keywords[i] = k
	}
	affectMap := make(map[string]any, 8)
	for k, v := range req.Affect.Map() {
		affectMap[k] = v
	}
	return structpb.NewStruct(map[string]any{
		"event": map[string]any{
			"id":       req.Event.ID,
			"source":   req.Event.Source,
			"text":     req.Event.Text,
			"salience": req.Event.Salience,
			"urgent":   req.Event.Urgent,
		},
		"intent":            string(req.Intent),
		"hint":              string(req.Hint),
		"keywords":          keywords,
		"affect":            affectMap,
		"emotion":           req.Affect.Emotion.Label,
		"recent_broadcasts": broadcasts,
		"memories":          memories,
	})
}
// #endregion request

// #region extract
// ExtractResponse reads a decision out of a loosely shaped reply. It accepts
// the canonical fields, common aliases for the content, and a reply whose
// content is itself a JSON object. Usable text is always kept: an unknown
// decision type, or act without an action, becomes respond. Only a reply
// with no text at all is CodeMalformed.
func ExtractResponse(m map[string]any) (Response, error) {
	if nested, ok := m["decision"].(map[string]any); ok {
		m = nested
	}
	var resp Response
	for _, key := range []string{"content", "text", "message", "output"} {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			resp.Content = strings.TrimSpace(s)
			break
		}
	}
	if strings.HasPrefix(resp.Content, "{") {
		var inner map[string]any
		if err := json.Unmarshal([]byte(resp.Content), &inner); err == nil {
			if r, err := ExtractResponse(inner); err == nil {
				return r, nil
			}
		}
	}
	if resp.Content == "" {
		return Response{}, tickerr.New(tickerr.CodeMalformed, "oracle reply has no content")
	}

	resp.DecisionType = DecisionRespond
	if s, ok := m["decision_type"].(string); ok && s != "" {
		resp.DecisionType = DecisionType(strings.ToLower(s))
	}
	switch resp.DecisionType {
	case DecisionRespond, DecisionAct, DecisionClarify, DecisionAcknowledge, DecisionObserve:
	default:
		resp.DecisionType = DecisionRespond
	}
	if s, ok := m["action"].(string); ok {
		resp.Action = strings.TrimSpace(s)
	}
	if resp.DecisionType == DecisionAct && resp.Action == "" {
		resp.DecisionType = DecisionRespond
	}
	resp.Confidence = 0.5
	if f, ok := m["confidence"].(float64); ok && !math.IsNaN(f) {
		resp.Confidence = math.Max(0, math.Min(1, f))
	}
	return resp, nil
}
// #endregion extract

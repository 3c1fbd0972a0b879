package submission

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "submission-test", Version: "0.1.0"}

func mcpSession(t *testing.T, p *Pipeline) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	p.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := mcp.NewClient(testMCPImpl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) *mcp.CallToolResult {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func toolText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res.IsError {
		t.Fatalf("tool error: %v", res.GetError())
	}
	return res.Content[0].(*mcp.TextContent).Text
}

func TestMCP_SubmitThenFetch(t *testing.T) {
	p, _ := newTestPipeline(t)
	session := mcpSession(t, p)

	res := callTool(t, session, "originality_submit", map[string]any{
		"course":         "Math",
		"assignment":     "Proofs",
		"filename":       "proof.txt",
		"content_base64": base64.StdEncoding.EncodeToString([]byte(words(20))),
	})
	var out Outcome
	if err := json.Unmarshal([]byte(toolText(t, res)), &out); err != nil {
		t.Fatal(err)
	}
	if out.WordCount != 20 || out.ReportPath == "" {
		t.Fatalf("outcome = %+v", out)
	}

	res = callTool(t, session, "originality_fetch", map[string]any{"path": out.ReportPath})
	var got fetchResp
	if err := json.Unmarshal([]byte(toolText(t, res)), &got); err != nil {
		t.Fatal(err)
	}
	data, err := base64.StdEncoding.DecodeString(got.ContentBase64)
	if err != nil {
		t.Fatal(err)
	}
	if got.MimeType != "text/plain" || !strings.Contains(string(data), "Word Count: 20 words") {
		t.Errorf("fetch = %+v", got)
	}
}

func TestMCP_SubmitErrors(t *testing.T) {
	p, _ := newTestPipeline(t)
	session := mcpSession(t, p)

	for _, args := range []map[string]any{
		{"course": "c", "assignment": "a", "filename": "f.txt", "content_base64": "%%%"},
		{"course": "c", "assignment": "a", "filename": "f.exe", "content_base64": ""},
	} {
		if res := callTool(t, session, "originality_submit", args); !res.IsError {
			t.Errorf("args %v: expected tool error", args)
		}
	}
	if res := callTool(t, session, "originality_fetch", map[string]any{"path": "../x"}); !res.IsError {
		t.Error("traversal fetch: expected tool error")
	}
}

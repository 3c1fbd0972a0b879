package docpipe

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/originality/kit"
)

// RegisterMCP registers docpipe tools on an MCP server.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	p.registerExtractTool(srv)
	p.registerDetectTool(srv)
	p.registerFormatsTool(srv)
}

// --- extract ---

type extractReq struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"` // base64 in JSON
	Path     string `json:"path"`
}

func (p *Pipeline) registerExtractTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docpipe_extract",
		Description: "Extract plain text from a submission (txt, doc, docx, xls, xlsx, pdf, ppt, pptx). Pass either a server-side path or filename plus base64 data.",
		InputSchema: kit.ObjectSchema(map[string]any{
			"filename": map[string]any{"type": "string", "description": "Original filename; its extension selects the parser"},
			"data":     map[string]any{"type": "string", "description": "File content, base64"},
			"path":     map[string]any{"type": "string", "description": "File path readable by the server"},
		}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*extractReq)
		if r.Path != "" {
			return p.ExtractFile(ctx, r.Path)
		}
		if r.Filename == "" {
			return nil, errors.New("filename or path is required")
		}
		return p.Extract(ctx, r.Filename, r.Data)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[extractReq])
}

// --- detect ---

type detectReq struct {
	Filename string `json:"filename"`
}

func (p *Pipeline) registerDetectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docpipe_detect",
		Description: "Detect the format and MIME type of a file from its extension.",
		InputSchema: kit.ObjectSchema(map[string]any{
			"filename": map[string]any{"type": "string", "description": "Filename to classify"},
		}, "filename"),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*detectReq)
		format, err := p.Detect(r.Filename)
		if err != nil {
			return nil, err
		}
		return map[string]any{"format": string(format), "mime_type": MimeType(r.Filename)}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[detectReq])
}

// --- formats ---

func (p *Pipeline) registerFormatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docpipe_formats",
		Description: "List the accepted upload extensions.",
		InputSchema: kit.ObjectSchema(map[string]any{}),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"extensions": SupportedExtensions()}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[struct{}])
}

package submission

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/originality/kit"
)

type submitReq struct {
	Course        string `json:"course"`
	Assignment    string `json:"assignment"`
	Filename      string `json:"filename"`
	ContentBase64 string `json:"content_base64"`
	Student       string `json:"student"`
}

type fetchReq struct {
	Path string `json:"path"`
}

type fetchResp struct {
	Path          string `json:"path"`
	MimeType      string `json:"mime_type"`
	Size          int    `json:"size"`
	ContentBase64 string `json:"content_base64"`
}

// RegisterMCP registers originality_submit and originality_fetch.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "originality_submit",
		Description: "Submit a student document (base64) for a course assignment. Stores it, extracts its text, scores originality and stores the report. Returns the outcome with both stored paths.",
		InputSchema: kit.ObjectSchema(map[string]any{
			"course":         map[string]any{"type": "string", "description": "Course name"},
			"assignment":     map[string]any{"type": "string", "description": "Assignment title"},
			"filename":       map[string]any{"type": "string", "description": "Original filename; the extension selects the parser"},
			"content_base64": map[string]any{"type": "string", "description": "File bytes, base64 encoded"},
			"student":        map[string]any{"type": "string", "description": "Student name (optional, for the event log)"},
		}, "course", "assignment", "filename", "content_base64"),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*submitReq)
		data, err := base64.StdEncoding.DecodeString(r.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("content_base64: %w", err)
		}
		return p.Submit(ctx, Upload{
			CourseName:       r.Course,
			AssignmentTitle:  r.Assignment,
			OriginalFilename: r.Filename,
			Content:          data,
			StudentName:      r.Student,
		})
	}, kit.DecodeArgs[submitReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "originality_fetch",
		Description: "Read a stored original or report by the relative path returned from originality_submit.",
		InputSchema: kit.ObjectSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "Relative artifact path"},
		}, "path"),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*fetchReq)
		data, mime, err := p.FetchStoredBytes(ctx, r.Path)
		if err != nil {
			return nil, err
		}
		return &fetchResp{
			Path:          r.Path,
			MimeType:      mime,
			Size:          len(data),
			ContentBase64: base64.StdEncoding.EncodeToString(data),
		}, nil
	}, kit.DecodeArgs[fetchReq])
}

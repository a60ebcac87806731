// Package mcpserver exposes an engine.Engine as MCP tools over stdio.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentic-research/nsjson/api"
	"github.com/agentic-research/nsjson/internal/docio"
	"github.com/agentic-research/nsjson/internal/engine"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server with every namespace tool registered.
func New(eng *engine.Engine) *server.MCPServer {
	s := server.NewMCPServer(
		"nsjson",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	t := &tools{eng: eng}
	s.AddTool(readTool(), t.read)
	s.AddTool(writeTool(), t.write)
	s.AddTool(deleteTool(), t.delete)
	s.AddTool(resolveTool(), t.resolve)
	return s
}

// Serve runs the server on stdin/stdout until the client disconnects.
func Serve(eng *engine.Engine) error {
	return server.ServeStdio(New(eng))
}

type tools struct {
	eng *engine.Engine
}

func readTool() mcp.Tool {
	return mcp.NewTool("nsjson_read",
		mcp.WithDescription("Read a namespace subtree back as a JSON document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Namespace path of the subtree root, e.g. /services/api")),
		mcp.WithString("select", mcp.Description("Optional JSONPath applied to the document")),
	)
}

func writeTool() mcp.Tool {
	return mcp.NewTool("nsjson_write",
		mcp.WithDescription("Write a JSON document into the namespace in one atomic batch."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Namespace path of the subtree root")),
		mcp.WithString("document", mcp.Required(), mcp.Description("JSON document to store")),
		mcp.WithBoolean("update", mcp.Description("Overwrite in place instead of replacing the subtree; arrays are rejected and null members delete")),
	)
}

func deleteTool() mcp.Tool {
	return mcp.NewTool("nsjson_delete",
		mcp.WithDescription("Delete a namespace subtree."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Namespace path of the subtree root")),
	)
}

func resolveTool() mcp.Tool {
	return mcp.NewTool("nsjson_resolve",
		mcp.WithDescription("Resolve a namespace subtree as a template: merge its bases, apply deletions and evaluate scripts."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Namespace path of the template root")),
		mcp.WithString("script_prefix", mcp.Description("Script prefix to recognize in string leaves; empty disables scripts")),
		mcp.WithString("template", mcp.Description("Optional JSON document resolved in place of the stored one")),
	)
}

func (t *tools) read(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := t.eng.Serialize(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if sel := req.GetString("select", ""); sel != "" {
		matches, err := docio.Select(doc, sel)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		doc = matches
	}
	return render(doc)
}

func (t *tools) write(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := docio.Parse([]byte(raw), docio.JSONC)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode := api.Replace
	if req.GetBool("update", false) {
		mode = api.Update
	}
	if err := t.eng.Deserialize(ctx, doc, p, mode); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("wrote %s (%s)", p, mode)), nil
}

func (t *tools) delete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.eng.Delete(ctx, p); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("deleted " + p), nil
}

func (t *tools) resolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var opts []engine.ResolveOption
	if args := req.GetArguments(); args != nil {
		if _, ok := args["script_prefix"]; ok {
			opts = append(opts, engine.WithScriptPrefix(req.GetString("script_prefix", "")))
		}
	}
	if raw := req.GetString("template", ""); raw != "" {
		tpl, err := docio.Parse([]byte(raw), docio.JSONC)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		opts = append(opts, engine.WithOverlay(tpl))
	}
	doc, err := t.eng.ResolveTemplate(ctx, p, opts...)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return render(doc)
}

func render(doc any) (*mcp.CallToolResult, error) {
	out, err := docio.Render(doc, docio.JSON)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}

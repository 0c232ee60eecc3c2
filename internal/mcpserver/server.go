// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Stencil tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/stencil/internal/apperr"
	"github.com/starford/stencil/internal/catalog"
	"github.com/starford/stencil/internal/metrics"
	"github.com/starford/stencil/internal/templateservice"
)

const (
	formatURI   = "stencil://prompt-format"
	mcpUserID   = "mcp"
	searchLimit = 20
)

// Service is the subset of *templateservice.Service the tools use.
type Service interface {
	Compile(ctx context.Context, req templateservice.CompileRequest) (*templateservice.CompileResponse, error)
	GetTemplate(ctx context.Context, slug string) (*templateservice.TemplateDetail, error)
	ReadFile(ctx context.Context, slug, rel string) ([]byte, error)
	SearchTemplates(ctx context.Context, query string, limit int) ([]catalog.SearchResult, error)
	Snapshot(window time.Duration) metrics.Snapshot
}

// Server wraps the MCP server with Stencil tools.
type Server struct {
	mcp *server.MCPServer
	svc Service
}

// New creates a new MCP server with all Stencil tools registered.
func New(svc Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Stencil",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("compile_prompt",
		mcp.WithDescription("Compile a component prompt into a template package. "+
			"The prompt MUST follow the Stencil prompt format; read it first via "+
			"get_prompt_contract or the "+formatURI+" resource. Returns the schema, "+
			"defaults, file manifest, package.json patch and warnings."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Markdown or JSON prompt text")),
		mcp.WithBoolean("auto_import", mcp.Description("Import the package into the catalog after compiling")),
	), s.compilePrompt)

	s.mcp.AddTool(mcp.NewTool("get_prompt_contract",
		mcp.WithDescription("Returns the Stencil prompt format contract. "+
			"Call this before compile_prompt to ensure correct structure."),
	), s.getPromptContract)

	s.mcp.AddTool(mcp.NewTool("search_templates",
		mcp.WithDescription("Full-text search through catalog template names, descriptions and component source."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchTemplates)

	s.mcp.AddTool(mcp.NewTool("get_template",
		mcp.WithDescription("Show a catalog template's metadata and file list."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Template slug")),
	), s.getTemplate)

	s.mcp.AddTool(mcp.NewTool("read_template_file",
		mcp.WithDescription("Read one file from a catalog template package."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Template slug")),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path inside the package, e.g. components/hero.tsx")),
	), s.readTemplateFile)

	s.mcp.AddTool(mcp.NewTool("pipeline_snapshot",
		mcp.WithDescription("Pipeline success/failure counts over a recent window."),
		mcp.WithNumber("window_hours", mcp.Description("Window in hours (default 24, 0 for all retained events)")),
	), s.pipelineSnapshot)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Prompt Format Contract",
			mcp.WithResourceDescription("Component prompt format accepted by compile_prompt."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPromptFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) compilePrompt(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Compile(ctx, templateservice.CompileRequest{
		Prompt:     prompt,
		UserID:     mcpUserID,
		AutoImport: req.GetBool("auto_import", false),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("compile failed: %v", err)), nil
	}
	return jsonResult(res), nil
}

func (s *Server) getPromptContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PromptFormatContract), nil
}

func (s *Server) searchTemplates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.SearchTemplates(ctx, query, searchLimit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no templates found"), nil
	}
	return jsonResult(results), nil
}

func (s *Server) getTemplate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := s.svc.GetTemplate(ctx, slug)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", slug)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(t), nil
}

func (s *Server) readTemplateFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rel, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.svc.ReadFile(ctx, slug, rel)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s/%s", slug, rel)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) pipelineSnapshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hours := req.GetFloat("window_hours", 24)
	if hours < 0 {
		return mcp.NewToolResultError("window_hours must not be negative"), nil
	}
	snap := s.svc.Snapshot(time.Duration(hours * float64(time.Hour)))
	return jsonResult(map[string]any{
		"snapshot":    snap,
		"successRate": snap.SuccessRate(),
	}), nil
}

func (s *Server) readPromptFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     PromptFormatContract,
		},
	}, nil
}

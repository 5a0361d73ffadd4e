// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hylla/remiss/internal/adapters/server/common"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the case tools.
func NewHandler(cfg Config, cases common.CaseService) (*Handler, error) {
	if cases == nil {
		return nil, fmt.Errorf("case service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerCaseTools(mcpSrv, cases)
	registerCatalogTools(mcpSrv, cases)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "remiss"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerCaseTools registers open/read/submit/send tools over the case service.
func registerCaseTools(srv *mcpserver.MCPServer, cases common.CaseService) {
	srv.AddTool(
		mcp.NewTool(
			"remiss.open_case",
			mcp.WithDescription("Open a new case at its originating department."),
			mcp.WithString("originating_department", mcp.Required(), mcp.Description("Department where the case starts")),
			mcp.WithString("title", mcp.Description("Case title")),
			mcp.WithString("reference", mcp.Description("External reference")),
			mcp.WithString("actor_department", mcp.Required(), mcp.Description("Acting department")),
			mcp.WithString("actor_name", mcp.Required(), mcp.Description("Acting user display name")),
			mcp.WithString("actor_user_id", mcp.Description("Acting user identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			originating, err := req.RequireString("originating_department")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			actor, toolErr := actorFromRequest(req)
			if toolErr != nil {
				return toolErr, nil
			}
			view, err := cases.OpenCase(ctx, common.OpenCaseRequest{
				Title:       req.GetString("title", ""),
				Reference:   req.GetString("reference", ""),
				Originating: originating,
				Actor:       actor,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(view)
			if err != nil {
				return nil, fmt.Errorf("encode open_case result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"remiss.case_state",
			mcp.WithDescription("Return the full aggregate state for one case."),
			mcp.WithString("case_id", mcp.Required(), mcp.Description("Case identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			caseID, err := req.RequireString("case_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			view, err := cases.GetCase(ctx, caseID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(view)
			if err != nil {
				return nil, fmt.Errorf("encode case_state result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"remiss.submit_section",
			mcp.WithDescription("Validate a form submission against its template and lock it into the case ledger."),
			mcp.WithString("case_id", mcp.Required(), mcp.Description("Case identifier")),
			mcp.WithString("template_id", mcp.Required(), mcp.Description("Section template identifier")),
			mcp.WithObject("values", mcp.Description("Field values keyed by field id")),
			mcp.WithString("actor_department", mcp.Required(), mcp.Description("Acting department")),
			mcp.WithString("actor_name", mcp.Required(), mcp.Description("Acting user display name")),
			mcp.WithString("actor_user_id", mcp.Description("Acting user identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			caseID, err := req.RequireString("case_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			templateID, err := req.RequireString("template_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			actor, toolErr := actorFromRequest(req)
			if toolErr != nil {
				return toolErr, nil
			}
			section, err := cases.SubmitSection(ctx, common.SubmitSectionRequest{
				CaseID:     caseID,
				TemplateID: templateID,
				Values:     valuesFromRequest(req),
				Actor:      actor,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(section)
			if err != nil {
				return nil, fmt.Errorf("encode submit_section result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"remiss.send_case",
			mcp.WithDescription("Hand the case off to another department."),
			mcp.WithString("case_id", mcp.Required(), mcp.Description("Case identifier")),
			mcp.WithString("to_department", mcp.Required(), mcp.Description("Destination department")),
			mcp.WithString("notes", mcp.Description("Optional hand-off notes")),
			mcp.WithString("actor_department", mcp.Required(), mcp.Description("Acting department")),
			mcp.WithString("actor_name", mcp.Required(), mcp.Description("Acting user display name")),
			mcp.WithString("actor_user_id", mcp.Description("Acting user identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			caseID, err := req.RequireString("case_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			to, err := req.RequireString("to_department")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			actor, toolErr := actorFromRequest(req)
			if toolErr != nil {
				return toolErr, nil
			}
			view, err := cases.SendCase(ctx, common.SendCaseRequest{
				CaseID: caseID,
				To:     to,
				Notes:  req.GetString("notes", ""),
				Actor:  actor,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(view)
			if err != nil {
				return nil, fmt.Errorf("encode send_case result: %w", err)
			}
			return result, nil
		},
	)
}

// registerCatalogTools registers template and department listing tools.
func registerCatalogTools(srv *mcpserver.MCPServer, cases common.CaseService) {
	srv.AddTool(
		mcp.NewTool(
			"remiss.list_templates",
			mcp.WithDescription("List the section templates a department may submit."),
			mcp.WithString("department", mcp.Required(), mcp.Description("Department identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			department, err := req.RequireString("department")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			templates, err := cases.ListTemplates(ctx, department)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"templates": templates,
			})
			if err != nil {
				return nil, fmt.Errorf("encode list_templates result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"remiss.list_departments",
			mcp.WithDescription("List every routable department."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			departments, err := cases.ListDepartments(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"departments": departments,
			})
			if err != nil {
				return nil, fmt.Errorf("encode list_departments result: %w", err)
			}
			return result, nil
		},
	)
}

// actorFromRequest extracts the acting identity arguments shared by mutating tools.
func actorFromRequest(req mcp.CallToolRequest) (common.ActorInput, *mcp.CallToolResult) {
	department, err := req.RequireString("actor_department")
	if err != nil {
		return common.ActorInput{}, mcp.NewToolResultError(err.Error())
	}
	name, err := req.RequireString("actor_name")
	if err != nil {
		return common.ActorInput{}, mcp.NewToolResultError(err.Error())
	}
	return common.ActorInput{
		Department: department,
		Name:       name,
		UserID:     req.GetString("actor_user_id", ""),
	}, nil
}

// valuesFromRequest extracts the submitted field-value object, if present.
func valuesFromRequest(req mcp.CallToolRequest) map[string]any {
	raw, ok := req.GetArguments()["values"]
	if !ok {
		return map[string]any{}
	}
	values, ok := raw.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return values
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrNotCurrentHolder):
		return mcp.NewToolResultError("not_current_holder: " + err.Error())
	case errors.Is(err, common.ErrConflict):
		return mcp.NewToolResultError("conflict: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}

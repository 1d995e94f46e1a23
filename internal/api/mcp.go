package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kalambet/vitalsync/internal/cache"
	"github.com/kalambet/vitalsync/internal/storage"
	"github.com/kalambet/vitalsync/internal/syncer"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store  *storage.Store
	Cache  *cache.Manager // optional; targets are read straight from the store without it
	Sync   SyncEngine
	Logger *zap.Logger
}

// NewMCPServer creates an MCP server with the vitals and sync tools registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	s := server.NewMCPServer(
		"vitalsync",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("vitalsync keeps daily health measurements on this device and syncs them with the remote service."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("query_vitals",
			mcp.WithDescription("List stored measurements, optionally filtered by type and date range."),
			mcp.WithString("type", mcp.Description("Measurement type, e.g. steps, weight, temperature or bloodPressure")),
			mcp.WithString("from", mcp.Description("First date to include, YYYY-MM-DD")),
			mcp.WithString("to", mcp.Description("Last date to include, YYYY-MM-DD")),
		),
		mcpQueryVitals(deps),
	)

	s.AddTool(
		mcp.NewTool("record_vital",
			mcp.WithDescription("Record a measurement for a day. It is uploaded on the next sync."),
			mcp.WithString("type", mcp.Description("Measurement type"), mcp.Required()),
			mcp.WithNumber("value", mcp.Description("Measured value (systolic for blood pressure)"), mcp.Required()),
			mcp.WithNumber("secondary_value", mcp.Description("Diastolic value for blood pressure")),
			mcp.WithString("date", mcp.Description("Date of the measurement, YYYY-MM-DD (default today)")),
			mcp.WithString("source", mcp.Description("Origin of the measurement (default manual)")),
		),
		mcpRecordVital(deps),
	)

	s.AddTool(
		mcp.NewTool("sync_now",
			mcp.WithDescription("Run a sync cycle with the remote service and report what changed."),
		),
		mcpSyncNow(deps),
	)

	s.AddTool(
		mcp.NewTool("sync_status",
			mcp.WithDescription("Report the last sync time, state and number of unsynced records."),
		),
		mcpSyncStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("list_conflicts",
			mcp.WithDescription("List conflicts held for a manual decision."),
		),
		mcpListConflicts(deps),
	)

	s.AddTool(
		mcp.NewTool("resolve_conflict",
			mcp.WithDescription("Settle a held conflict by keeping the local or the remote value."),
			mcp.WithString("id", mcp.Description("Conflict id from list_conflicts"), mcp.Required()),
			mcp.WithString("choice", mcp.Description("local or remote"), mcp.Required()),
		),
		mcpResolveConflict(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"vitals://targets",
			"Targets",
			mcp.WithResourceDescription("Goal value for each measurement type"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTargets(deps),
	)

	return s
}

func mcpQueryVitals(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rng, err := dateRange(req.GetString("from", ""), req.GetString("to", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		recs, err := queryVitals(ctx, deps.Store, req.GetString("type", ""), rng)
		if err != nil {
			return mcpError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return mcpJSON(recs)
	}
}

func mcpRecordVital(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		typ, err := req.RequireString("type")
		if err != nil {
			return mcpError("type is required"), nil
		}
		value, err := req.RequireFloat("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		vr := VitalRequest{
			Type:         typ,
			Value:        &value,
			RecordedDate: req.GetString("date", ""),
			Source:       req.GetString("source", "mcp"),
		}
		if _, ok := req.GetArguments()["secondary_value"]; ok {
			v := req.GetFloat("secondary_value", 0)
			vr.SecondaryValue = &v
		}

		rec, err := vr.record(time.Now())
		if err != nil {
			return mcpError(err.Error()), nil
		}
		id, err := deps.Store.InsertVital(ctx, rec)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to record: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded %s %v for %s (id %d)", rec.Type, rec.Value, rec.RecordedDate, id)), nil
	}
}

func mcpSyncNow(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := deps.Sync.PerformSync(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("sync failed: %v", err)), nil
		}
		resp := SyncResponse{Result: res, DurationMS: res.Duration.Milliseconds()}
		if cerr := res.Err(); cerr != nil {
			resp.Warning = cerr.Error()
		}
		return mcpJSON(resp)
	}
}

func mcpSyncStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := deps.Sync.Status(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read status: %v", err)), nil
		}
		return mcpJSON(st)
	}
}

func mcpListConflicts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cs, err := deps.Sync.PendingConflicts(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list conflicts: %v", err)), nil
		}
		if len(cs) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(cs)
	}
}

func mcpResolveConflict(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		raw, err := req.RequireString("choice")
		if err != nil {
			return mcpError("choice is required"), nil
		}
		choice, err := syncer.ParseChoice(raw)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		if err := deps.Sync.ResolveConflict(ctx, id, choice); err != nil {
			return mcpError(fmt.Sprintf("failed to resolve: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Resolved %s with the %s value", id, choice)), nil
	}
}

func mcpResourceTargets(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		targets, err := loadTargets(ctx, deps.Store, deps.Cache, deps.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to get targets: %w", err)
		}

		b, err := json.Marshal(targets)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal targets: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

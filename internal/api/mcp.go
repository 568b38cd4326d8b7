package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/roostrcapital/xposter/internal/queue"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Queue QueueStore
	Runs  RunLister // optional; without it queue_next does not skip guarded items
	Now   func() time.Time
}

// NewMCPServer creates an MCP server with the queue tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := server.NewMCPServer(
		"xposter",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("xposter: inspect and extend the social post queue published once per slot."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("queue_next",
			mcp.WithDescription("Return the item the publisher would post next for a slot."),
			mcp.WithString("slot", mcp.Description("Slot tag (morning, midday, afternoon, evening). Defaults to the current slot.")),
		),
		mcpQueueNext(deps),
	)

	s.AddTool(
		mcp.NewTool("queue_list",
			mcp.WithDescription("List queue items in stored order."),
			mcp.WithString("slot", mcp.Description("Only items of this slot")),
			mcp.WithBoolean("pending_only", mcp.Description("Hide items already posted")),
		),
		mcpQueueList(deps),
	)

	s.AddTool(
		mcp.NewTool("posted_log",
			mcp.WithDescription("Return the most recent entries of the posted log, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 10)")),
		),
		mcpPostedLog(deps),
	)

	s.AddTool(
		mcp.NewTool("enqueue_post",
			mcp.WithDescription("Append a new unposted item to the end of the queue."),
			mcp.WithString("content", mcp.Description("Post body"), mcp.Required()),
			mcp.WithString("slot", mcp.Description("Slot tag"), mcp.Required()),
			mcp.WithString("id", mcp.Description("Item id (generated when empty)")),
			mcp.WithString("reply_to", mcp.Description(`Post URL to answer, or "previous" for our latest post. Makes the item a reply.`)),
			mcp.WithArray("platforms", mcp.Description("Destination tags copied into the posted log")),
			mcp.WithString("note", mcp.Description("Free-form note copied into the posted log")),
		),
		mcpEnqueuePost(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"queue://pending",
			"Pending Posts",
			mcp.WithResourceDescription("Unposted item count per slot"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePending(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"queue://unreconciled",
			"Unreconciled Runs",
			mcp.WithResourceDescription("Runs that clicked submit but never recorded a URL"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceUnreconciled(deps),
	)

	return s
}

func mcpQueueNext(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		slot := req.GetString("slot", "")
		if slot == "" {
			var ok bool
			if slot, ok = queue.SlotFor(deps.Now()); !ok {
				return mcpError("outside posting hours; pass a slot"), nil
			}
		}

		item, ok, err := nextItem(ctx, deps.Queue, deps.Runs, slot)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to select next item: %v", err)), nil
		}
		if !ok {
			return mcpText(fmt.Sprintf("No eligible %s post in queue", slot)), nil
		}
		return mcpJSON(item)
	}
}

func mcpQueueList(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		doc, err := deps.Queue.Load(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load queue: %v", err)), nil
		}
		items := filterItems(doc.Posts, req.GetString("slot", ""), req.GetBool("pending_only", false))
		return mcpJSON(items)
	}
}

func mcpPostedLog(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		recs, err := deps.Queue.Audit(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read posted log: %v", err)), nil
		}
		return mcpJSON(newestFirst(recs, limit))
	}
}

func mcpEnqueuePost(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		slot, err := req.RequireString("slot")
		if err != nil {
			return mcpError("slot is required"), nil
		}

		item := queue.QueueItem{
			ID:        req.GetString("id", ""),
			Content:   content,
			Slot:      strings.TrimSpace(slot),
			Type:      queue.TypeStandalone,
			ReplyTo:   req.GetString("reply_to", ""),
			Platforms: req.GetStringSlice("platforms", nil),
			Note:      req.GetString("note", ""),
		}
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		if item.ReplyTo != "" {
			item.Type = queue.TypeReply
		}

		if err := deps.Queue.Enqueue(ctx, item); err != nil {
			return mcpError(fmt.Sprintf("failed to enqueue: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Queued %s for %s", item.ID, item.Slot)), nil
	}
}

func mcpResourcePending(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		doc, err := deps.Queue.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load queue: %w", err)
		}
		return jsonResource(req.Params.URI, queue.PendingBySlot(doc.Posts))
	}
}

func mcpResourceUnreconciled(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.Runs == nil {
			return jsonResource(req.Params.URI, []runView{})
		}
		runs, err := deps.Runs.Unreconciled()
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		return jsonResource(req.Params.URI, toRunViews(runs))
	}
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
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

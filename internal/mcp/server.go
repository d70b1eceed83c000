package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/voicecal/internal/calendar"
	"github.com/joescharf/voicecal/internal/conversation"
	"github.com/joescharf/voicecal/internal/models"
)

// Server exposes the conversation engine as MCP tools.
type Server struct {
	engine  *conversation.Engine
	checker conversation.ConflictChecker
	cals    *calendar.Registry
	user    string
	version string
}

// NewServer creates the MCP server wrapper. user is the default speaker when a
// tool call does not name one.
func NewServer(e *conversation.Engine, checker conversation.ConflictChecker, cals *calendar.Registry, user, version string) *Server {
	return &Server{engine: e, checker: checker, cals: cals, user: user, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("voicecal", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.sayTool())
	srv.AddTool(s.confirmTool())
	srv.AddTool(s.cancelTool())
	srv.AddTool(s.undoTool())
	srv.AddTool(s.conversationTool())
	srv.AddTool(s.checkConflictsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s (%v)", conversation.UserMessage(err), err))
}

func turnResult(res *conversation.TurnResult) (*mcp.CallToolResult, error) {
	if res.Kind == conversation.ResultFailed {
		return mcp.NewToolResultError(res.Reason), nil
	}
	return jsonResult(res)
}

func (s *Server) userArg(request mcp.CallToolRequest) string {
	return request.GetString("user", s.user)
}

// optionalInt returns a pointer to an integer argument, or nil when it was not sent.
func optionalInt(request mcp.CallToolRequest, key string) *int {
	if _, ok := request.GetArguments()[key]; !ok {
		return nil
	}
	v := request.GetInt(key, 0)
	return &v
}

// voicecal_say
func (s *Server) sayTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("voicecal_say",
		mcp.WithDescription("Send a spoken request or an answer to a clarifying question. Starts a conversation when conversation_id is empty. Returns the turn result: a question, a conflict with suggested slots, a preview to confirm, or the executed action."),
		mcp.WithString("transcript", mcp.Description("What the user said")),
		mcp.WithString("conversation_id", mcp.Description("Conversation to continue")),
		mcp.WithString("user", mcp.Description("Speaker id; defaults to the configured user")),
		mcp.WithNumber("transcript_confidence", mcp.Description("Speech recognition confidence between 0 and 1")),
		mcp.WithNumber("option", mcp.Description("1-based choice among offered interpretations")),
		mcp.WithNumber("slot", mcp.Description("1-based choice among suggested slots")),
		mcp.WithBoolean("override", mcp.Description("Book despite the reported conflict")),
		mcp.WithString("calendar", mcp.Description("Calendar id to write to")),
	)
	return tool, s.handleSay
}

func (s *Server) handleSay(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := conversation.TurnInput{
		ConversationID: request.GetString("conversation_id", ""),
		UserID:         s.userArg(request),
		Transcript:     request.GetString("transcript", ""),
		Option:         optionalInt(request, "option"),
		Slot:           optionalInt(request, "slot"),
		Override:       request.GetBool("override", false),
		CalendarID:     request.GetString("calendar", ""),
	}
	if _, ok := request.GetArguments()["transcript_confidence"]; ok {
		conf := request.GetFloat("transcript_confidence", 1)
		in.TranscriptConfidence = &conf
	}
	if in.ConversationID == "" && in.Transcript == "" {
		return mcp.NewToolResultError("missing required parameter: transcript"), nil
	}
	in.CreateIfMissing = in.Transcript != ""

	res, err := s.engine.StartOrContinue(ctx, in)
	if err != nil {
		return errorResult(err), nil
	}
	return turnResult(res)
}

// voicecal_confirm
func (s *Server) confirmTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("voicecal_confirm",
		mcp.WithDescription("Confirm and execute a conversation that is awaiting confirmation. Confirming twice returns the same action."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation ID")),
	)
	return tool, s.handleConfirm
}

func (s *Server) handleConfirm(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: conversation_id"), nil
	}
	res, err := s.engine.Confirm(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return turnResult(res)
}

// voicecal_cancel
func (s *Server) cancelTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("voicecal_cancel",
		mcp.WithDescription("Abandon a conversation without executing anything."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation ID")),
	)
	return tool, s.handleCancel
}

func (s *Server) handleCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: conversation_id"), nil
	}
	if err := s.engine.Cancel(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Cancelled conversation %s", id)), nil
}

// voicecal_undo
func (s *Server) undoTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("voicecal_undo",
		mcp.WithDescription("Reverse the most recent action executed for the user."),
		mcp.WithString("user", mcp.Description("Speaker id; defaults to the configured user")),
	)
	return tool, s.handleUndo
}

func (s *Server) handleUndo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.engine.UndoLast(ctx, s.userArg(request))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res)
}

// voicecal_conversation
func (s *Server) conversationTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("voicecal_conversation",
		mcp.WithDescription("Show the stored state of a conversation: pending action, open options, clarification history and last conflict report."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation ID")),
	)
	return tool, s.handleConversation
}

func (s *Server) handleConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: conversation_id"), nil
	}
	conv, err := s.engine.Get(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(conv)
}

// voicecal_check_conflicts
func (s *Server) checkConflictsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("voicecal_check_conflicts",
		mcp.WithDescription("Check a time range against the selected calendars. Returns severity, conflicting events and suggested free slots."),
		mcp.WithString("start", mcp.Required(), mcp.Description("Start time, RFC 3339")),
		mcp.WithString("end", mcp.Required(), mcp.Description("End time, RFC 3339")),
		mcp.WithString("user", mcp.Description("Speaker id; defaults to the configured user")),
	)
	return tool, s.handleCheckConflicts
}

func (s *Server) handleCheckConflicts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	startStr, err := request.RequireString("start")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: start"), nil
	}
	endStr, err := request.RequireString("end")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: end"), nil
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid start: %v", err)), nil
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid end: %v", err)), nil
	}

	report, err := s.checker.Check(ctx, models.TimeRange{Start: start, End: end}, s.userArg(request), s.cals.Selected())
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(report)
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/chequeflow"
	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/aretw0/chequeflow/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ViewResponse is the structured output shared by every session tool.
type ViewResponse struct {
	SessionID string                `json:"session_id" jsonschema_description:"Session the view belongs to"`
	RequestID string                `json:"request_id,omitempty" jsonschema_description:"Server-side transaction id, if any"`
	Stack     []domain.Screen       `json:"stack" jsonschema_description:"Navigation stack, bottom first"`
	View      domain.ViewDescriptor `json:"view" jsonschema_description:"What to show for the top screen"`
	Result    *chequeflow.Result    `json:"result,omitempty" jsonschema_description:"How the last operation was applied"`
}

// Server exposes live sessions as an MCP server.
type Server struct {
	sessions  *session.Manager
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions *session.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessions:  sessions,
		mcpServer: server.NewMCPServer("chequeflow-mcp", strings.TrimSpace(chequeflow.Version)),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx ends.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	sessionID := mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to act on"))

	s.mcpServer.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Start a workflow session on the start screen."),
		mcp.WithString("session_id", mcp.Description("Session id (optional, generated when omitted)")),
		mcp.WithOutputSchema[ViewResponse](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("current_view",
		mcp.WithDescription("Resolve the view of the top screen."),
		sessionID,
		mcp.WithOutputSchema[ViewResponse](),
	), mcp.NewStructuredToolHandler(s.handleView))

	s.mcpServer.AddTool(mcp.NewTool("dispatch",
		mcp.WithDescription("Send a forward operation and wait for its result."),
		sessionID,
		mcp.WithString("operation", mcp.Required(), mcp.Description("Operation name"),
			mcp.Enum(string(domain.OpInitTransaction), string(domain.OpAddInstrument), string(domain.OpCheckStatus),
				string(domain.OpStepInquiry), string(domain.OpDeliveryInfo))),
		mcp.WithString("payload", mcp.Description("JSON object with the operation fields (optional)")),
		mcp.WithOutputSchema[ViewResponse](),
	), mcp.NewStructuredToolHandler(s.handleDispatch))

	s.mcpServer.AddTool(mcp.NewTool("go_back",
		mcp.WithDescription("Roll back the current screen. The stack only moves once the server acknowledges."),
		sessionID,
		mcp.WithOutputSchema[ViewResponse](),
	), mcp.NewStructuredToolHandler(s.handleBack))

	s.mcpServer.AddTool(mcp.NewTool("complete",
		mcp.WithDescription("Finish the session once delivery details are loaded."),
		sessionID,
		mcp.WithOutputSchema[ViewResponse](),
	), mcp.NewStructuredToolHandler(s.handleComplete))

	s.mcpServer.AddTool(mcp.NewTool("abandon",
		mcp.WithDescription("Abandon the session and release it."),
		sessionID,
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := request.GetString("session_id", "")
		if err := s.sessions.Close(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("session %s abandoned", id)), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("list_transitions",
		mcp.WithDescription("Get the forward transition table."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, err := json.Marshal(chequeflow.Transitions())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ViewResponse, error) {
	id, _ := args["session_id"].(string)
	flow, err := s.sessions.Create(ctx, id)
	if err != nil {
		return ViewResponse{}, err
	}
	return s.respond(ctx, flow, nil)
}

func (s *Server) handleView(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ViewResponse, error) {
	id, _ := args["session_id"].(string)
	flow, err := s.sessions.Get(id)
	if err != nil {
		return ViewResponse{}, err
	}
	return s.respond(ctx, flow, nil)
}

func (s *Server) handleDispatch(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ViewResponse, error) {
	id, _ := args["session_id"].(string)
	name, _ := args["operation"].(string)
	op, err := domain.ParseOperation(name)
	if err != nil {
		return ViewResponse{}, err
	}

	var payload map[string]any
	if raw, ok := args["payload"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return ViewResponse{}, fmt.Errorf("payload must be a JSON object: %w", err)
		}
	}

	return s.act(ctx, id, func(ctx context.Context, f *chequeflow.Flow) (chequeflow.Result, error) {
		return f.Do(ctx, op, payload)
	})
}

func (s *Server) handleBack(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ViewResponse, error) {
	id, _ := args["session_id"].(string)
	return s.act(ctx, id, func(ctx context.Context, f *chequeflow.Flow) (chequeflow.Result, error) {
		return f.GoBack(ctx)
	})
}

func (s *Server) handleComplete(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ViewResponse, error) {
	id, _ := args["session_id"].(string)
	var out ViewResponse
	err := s.sessions.WithFlow(ctx, id, func(ctx context.Context, f *chequeflow.Flow) error {
		if err := f.Complete(ctx); err != nil {
			return err
		}
		var err error
		out, err = s.respond(ctx, f, nil)
		return err
	})
	return out, err
}

// act runs fn under the session lock and renders the resulting view. A
// no-route halt is reported as an error carrying the fault.
func (s *Server) act(ctx context.Context, id string, fn func(context.Context, *chequeflow.Flow) (chequeflow.Result, error)) (ViewResponse, error) {
	var out ViewResponse
	err := s.sessions.WithFlow(ctx, id, func(ctx context.Context, f *chequeflow.Flow) error {
		res, err := fn(ctx, f)
		if err != nil {
			var nr *domain.NoRouteError
			if errors.As(err, &nr) {
				s.logger.ErrorContext(ctx, "MCP: workflow halted", "session_id", id, "error", err)
			}
			return err
		}
		out, err = s.respond(ctx, f, &res)
		return err
	})
	return out, err
}

func (s *Server) respond(ctx context.Context, flow *chequeflow.Flow, res *chequeflow.Result) (ViewResponse, error) {
	view, err := flow.CurrentView(ctx)
	if err != nil {
		return ViewResponse{}, err
	}
	return ViewResponse{
		SessionID: flow.ID(),
		RequestID: flow.RequestID(),
		Stack:     flow.Stack(),
		View:      view,
		Result:    res,
	}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("chequeflow://transitions", "Forward Transition Table",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(chequeflow.Transitions())
		if err != nil {
			return nil, fmt.Errorf("failed to encode transitions: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "chequeflow://transitions",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})

	s.mcpServer.AddResource(mcp.NewResource("chequeflow://operations", "Operation Catalog",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		var catalog []domain.Descriptor
		for _, op := range domain.Operations() {
			d, _ := domain.Describe(op)
			catalog = append(catalog, d)
		}
		jsonBytes, err := json.Marshal(catalog)
		if err != nil {
			return nil, fmt.Errorf("failed to encode operations: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "chequeflow://operations",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tubepulse/tubepulse/pkg/faults"
	"github.com/tubepulse/tubepulse/pkg/youtube"
)

const defaultCallWindow = 24 * time.Hour

type batchArgs struct {
	Comments        []string `json:"comments"`
	IncludeInsights bool     `json:"include_insights"`
}

type videoArgs struct {
	URL             string `json:"url"`
	MaxComments     int    `json:"max_comments"`
	IncludeInsights bool   `json:"include_insights"`
}

type callStatsArgs struct {
	Since string `json:"since"`
}

type chatArgs struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// toolHandler handles one tools/call invocation.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"tubepulse_analyze_batch": handleAnalyzeBatch,
	"tubepulse_analyze_video": handleAnalyzeVideo,
	"tubepulse_cache_stats":   handleCacheStats,
	"tubepulse_clear_cache":   handleClearCache,
	"tubepulse_call_stats":    handleCallStats,
	"tubepulse_budget":        handleBudget,
	"tubepulse_chat":          handleChat,
}

func intPtr(n int) *int { return &n }

var noArgs = Schema{Type: "object", Properties: map[string]Property{}}

var allTools = []ToolDefinition{
	{
		Name:        "tubepulse_analyze_batch",
		Description: "Analyze the sentiment, themes and controversy of a list of comments.",
		InputSchema: Schema{
			Type:     "object",
			Required: []string{"comments"},
			Properties: map[string]Property{
				"comments": {
					Type:        "array",
					Description: "Comment texts to analyze",
					Items:       &Property{Type: "string"},
				},
				"include_insights": {
					Type:        "boolean",
					Description: "Also write actionable insights for the creator (optional)",
				},
			},
		},
	},
	{
		Name:        "tubepulse_analyze_video",
		Description: "Fetch a YouTube video's top-level comments and analyze them.",
		InputSchema: Schema{
			Type:     "object",
			Required: []string{"url"},
			Properties: map[string]Property{
				"url": {
					Type:        "string",
					Description: "Video link (youtube.com/watch, youtu.be, shorts or embed)",
				},
				"max_comments": {
					Type:        "integer",
					Description: "Maximum number of comments to fetch (optional)",
					Minimum:     intPtr(1),
					Maximum:     intPtr(1000),
				},
				"include_insights": {
					Type:        "boolean",
					Description: "Also write actionable insights for the creator (optional)",
				},
			},
		},
	},
	{
		Name:        "tubepulse_cache_stats",
		Description: "Show size, hits, misses and hit rate of the sentiment and batch caches.",
		InputSchema: noArgs,
	},
	{
		Name:        "tubepulse_clear_cache",
		Description: "Drop every entry of both analysis caches.",
		InputSchema: noArgs,
	},
	{
		Name:        "tubepulse_call_stats",
		Description: "Summarize remote model calls by model and outcome.",
		InputSchema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"since": {
					Type:        "string",
					Description: "Look-back window as a duration such as 1h or 72h (optional, defaults to 24h)",
				},
			},
		},
	},
	{
		Name:        "tubepulse_budget",
		Description: "Show remote call budget usage for every configured policy.",
		InputSchema: noArgs,
	},
	{
		Name:        "tubepulse_chat",
		Description: "Talk to the YouTube analytics assistant. Reuse session_id to keep the conversation.",
		InputSchema: Schema{
			Type:     "object",
			Required: []string{"message"},
			Properties: map[string]Property{
				"session_id": {
					Type:        "string",
					Description: "Conversation to continue (optional, omit to start a new one)",
				},
				"message": {
					Type:        "string",
					Description: "The user message",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func decodeArgs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func handleAnalyzeBatch(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args batchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}

	if !args.IncludeInsights {
		res := s.deps.Analysis.AnalyzeBatchComments(ctx, args.Comments)
		if res.Failed() {
			return errorResult(formatError(res.Error))
		}
		return textResult(formatAggregate(*res.Aggregate))
	}

	report := s.deps.Analysis.FullAnalysis(ctx, args.Comments, true)
	if report.Error != nil {
		return errorResult(formatError(report.Error))
	}
	return textResult(formatReport(report))
}

func handleAnalyzeVideo(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.deps.Videos == nil {
		return textResult("Video fetching is not configured.")
	}
	var args videoArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	if args.URL == "" {
		return errorResult("url is required")
	}
	limit := args.MaxComments
	if limit <= 0 {
		limit = s.deps.MaxComments
	}

	video, err := s.deps.Videos.FetchVideo(ctx, args.URL, limit)
	if err != nil {
		return errorResult("Error fetching video: " + err.Error())
	}
	comments := youtube.CleanComments(video.Comments)
	if len(comments) == 0 {
		return textResult(formatVideo(video) + "\nNo comments to analyze.")
	}

	report := s.deps.Analysis.FullAnalysis(ctx, comments, args.IncludeInsights)
	if report.Error != nil {
		return errorResult(formatError(report.Error))
	}
	return textResult(formatVideo(video) + "\n" + formatReport(report))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatCacheReport(s.deps.Analysis.CacheStats()))
}

func handleClearCache(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	s.deps.Analysis.ClearCaches()
	return textResult("Sentiment and batch caches cleared.")
}

func handleCallStats(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.deps.Calls == nil {
		return textResult("Call tracking is not configured.")
	}
	var args callStatsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	window := defaultCallWindow
	if args.Since != "" {
		d, err := time.ParseDuration(args.Since)
		if err != nil || d <= 0 {
			return errorResult(fmt.Sprintf("Invalid since %q (use a duration such as 24h)", args.Since))
		}
		window = d
	}

	rows, err := s.deps.Calls.Summary(ctx, time.Now().UTC().Add(-window))
	if err != nil {
		return errorResult("Error fetching call stats: " + err.Error())
	}
	return textResult(formatCallSummary(rows))
}

func handleBudget(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Budget == nil {
		return textResult("Budget enforcement is not configured.")
	}
	statuses, err := s.deps.Budget.Status(ctx)
	if err != nil {
		return errorResult("Error fetching budget status: " + err.Error())
	}
	return textResult(formatBudgetStatus(statuses))
}

func handleChat(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.deps.Sessions == nil {
		return textResult("Chat is not configured.")
	}
	var args chatArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}

	id, chat := s.deps.Sessions.Get(args.SessionID)
	reply, err := chat.Send(ctx, args.Message)
	if err != nil {
		er := faults.Classify(err)
		return errorResult(fmt.Sprintf("Session: %s\n\n%s", id, er.Message))
	}
	return textResult(fmt.Sprintf("Session: %s\n\n%s", id, reply))
}

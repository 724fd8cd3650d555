package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.checkDirectoryTool(),
		s.checkCodeContentTool(),
		s.updateAndCheckTool(),
	)
}

func (s *Server) checkDirectoryTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("check_directory",
		mcplib.WithDescription("Check all source files of one language in a directory and report their compiler/linter diagnostics"),
		mcplib.WithString("directory",
			mcplib.Required(),
			mcplib.Description("Directory to scan for source files"),
		),
		mcplib.WithString("language",
			mcplib.Required(),
			mcplib.Description("Language to check: typescript, javascript, python, java, or vue"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleCheckDirectory,
	}
}

func (s *Server) checkCodeContentTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("check_code_content",
		mcplib.WithDescription("Check a code snippet without writing it to disk and report its diagnostics"),
		mcplib.WithString("content",
			mcplib.Required(),
			mcplib.Description("Source code to validate"),
		),
		mcplib.WithString("language",
			mcplib.Required(),
			mcplib.Description("Language of the code: typescript, javascript, python, java, or vue"),
		),
		mcplib.WithString("file_path",
			mcplib.Description("Optional file path giving the snippet a document identity"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleCheckCodeContent,
	}
}

func (s *Server) updateAndCheckTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("update_and_check",
		mcplib.WithDescription("Push new file content to the language server and report error diagnostics as short 'Line N: message' lines"),
		mcplib.WithString("file_path",
			mcplib.Required(),
			mcplib.Description("Path of the file being updated"),
		),
		mcplib.WithString("content",
			mcplib.Required(),
			mcplib.Description("Full new content of the file"),
		),
		mcplib.WithString("language",
			mcplib.Required(),
			mcplib.Description("Language of the file: typescript, javascript, python, java, or vue"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleUpdateAndCheck,
	}
}

func (s *Server) handleCheckDirectory(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Validator == nil {
		return mcplib.NewToolResultError("validator not configured"), nil
	}
	args := req.GetArguments()
	directory, ok := args["directory"].(string)
	if !ok || directory == "" {
		return mcplib.NewToolResultError("directory is required"), nil
	}
	language, ok := args["language"].(string)
	if !ok || language == "" {
		return mcplib.NewToolResultError("language is required"), nil
	}

	report, err := s.deps.Validator.CheckDirectory(ctx, directory, language)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal report", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleCheckCodeContent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Validator == nil {
		return mcplib.NewToolResultError("validator not configured"), nil
	}
	args := req.GetArguments()
	content, ok := args["content"].(string)
	if !ok || content == "" {
		return mcplib.NewToolResultError("content is required"), nil
	}
	language, ok := args["language"].(string)
	if !ok || language == "" {
		return mcplib.NewToolResultError("language is required"), nil
	}
	filePath, _ := args["file_path"].(string)

	report, err := s.deps.Validator.CheckCodeContent(ctx, content, language, filePath)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal report", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleUpdateAndCheck(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Validator == nil {
		return mcplib.NewToolResultError("validator not configured"), nil
	}
	args := req.GetArguments()
	filePath, ok := args["file_path"].(string)
	if !ok || filePath == "" {
		return mcplib.NewToolResultError("file_path is required"), nil
	}
	content, ok := args["content"].(string)
	if !ok {
		return mcplib.NewToolResultError("content is required"), nil
	}
	language, ok := args["language"].(string)
	if !ok || language == "" {
		return mcplib.NewToolResultError("language is required"), nil
	}

	report, err := s.deps.Validator.UpdateAndCheck(ctx, filePath, content, language)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	if report == "" {
		report = fmt.Sprintf("No errors found in %s", filePath)
	}
	return mcplib.NewToolResultText(report), nil
}

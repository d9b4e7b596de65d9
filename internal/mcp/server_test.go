package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	mcpgo "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()

	require.NotNil(t, result)
	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(*mcpgo.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])

	return text.Text
}

func TestServer_AddToolAndCallTool(t *testing.T) {
	server := NewServer("demo", "1.0.0")
	server.AddTool(
		NewTool("echo", "echoes text", ObjectSchema(map[string]*jsonschema.Schema{
			"text": Prop("string", "Text to echo"),
		}, "text")),
		func(_ context.Context, req *mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			args, err := DecodeArguments[struct {
				Text string `json:"text"`
			}](req)
			if err != nil {
				return nil, err
			}

			return TextResult("echo: " + args.Text), nil
		},
	)

	tools := server.Tools()
	require.Len(t, tools, 1)
	require.Equal(t, "echo", tools[0].Name)

	result, err := server.CallTool(context.Background(), "echo", map[string]any{"text": "hello"})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Equal(t, "echo: hello", resultText(t, result))

	missing, err := server.CallTool(context.Background(), "unknown", nil)
	require.NoError(t, err)
	require.True(t, missing.IsError)
	require.Equal(t, "Tool not found: unknown", resultText(t, missing))
}

func TestServer_ReplacingToolKeepsOrder(t *testing.T) {
	server := NewServer("demo", "1.0.0")
	noop := func(context.Context, *mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		return TextResult(""), nil
	}

	server.AddTool(NewTool("a", "first", ObjectSchema(nil)), noop)
	server.AddTool(NewTool("b", "second", ObjectSchema(nil)), noop)
	server.AddTool(NewTool("a", "replaced", ObjectSchema(nil)), noop)

	tools := server.Tools()
	require.Len(t, tools, 2)
	require.Equal(t, "a", tools[0].Name)
	require.Equal(t, "replaced", tools[0].Description)
	require.Equal(t, "b", tools[1].Name)
}

func TestServer_CallTool_HandlerError(t *testing.T) {
	server := NewServer("demo", "1.0.0")
	server.AddTool(
		NewTool("fails", "always fails", ObjectSchema(nil)),
		func(context.Context, *mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			return nil, errors.New("boom")
		},
	)

	result, err := server.CallTool(context.Background(), "fails", map[string]any{})
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Equal(t, "Tool execution failed: boom", resultText(t, result))
}

func TestGoTypeToJSONSchema(t *testing.T) {
	tests := []struct {
		goType    string
		wantType  string
		wantItems string
	}{
		{goType: "string", wantType: "string"},
		{goType: "int64", wantType: "integer"},
		{goType: "float32", wantType: "number"},
		{goType: "bool", wantType: "boolean"},
		{goType: "object", wantType: "object"},
		{goType: "[]string", wantType: "array", wantItems: "string"},
		{goType: "customType", wantType: "string"},
	}

	for _, tt := range tests {
		t.Run(tt.goType, func(t *testing.T) {
			got := goTypeToJSONSchema(tt.goType)
			require.Equal(t, tt.wantType, got.Type)

			if tt.wantItems != "" {
				require.NotNil(t, got.Items)
				require.Equal(t, tt.wantItems, got.Items.Type)
			}
		})
	}
}

func TestObjectSchema(t *testing.T) {
	schema := ObjectSchema(map[string]*jsonschema.Schema{
		"session_id": Prop("string", "Session ID"),
		"limit":      Prop("int", "Limit"),
	}, "session_id")

	require.Equal(t, "object", schema.Type)
	require.Equal(t, []string{"session_id"}, schema.Required)
	require.Equal(t, "Session ID", schema.Properties["session_id"].Description)
	require.Equal(t, "integer", schema.Properties["limit"].Type)

	empty := ObjectSchema(nil)
	require.NotNil(t, empty.Properties)
	require.Empty(t, empty.Required)
}

func TestJSONResult(t *testing.T) {
	result := JSONResult(map[string]int{"n": 1})
	require.False(t, result.IsError)
	require.JSONEq(t, `{"n":1}`, resultText(t, result))

	bad := JSONResult(make(chan int))
	require.True(t, bad.IsError)
}

func TestDecodeArguments(t *testing.T) {
	type args struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	t.Run("nil request decodes to zero value", func(t *testing.T) {
		got, err := DecodeArguments[args](nil)
		require.NoError(t, err)
		require.Equal(t, args{}, got)

		got, err = DecodeArguments[args](&mcpgo.CallToolRequest{Params: &mcpgo.CallToolParamsRaw{}})
		require.NoError(t, err)
		require.Equal(t, args{}, got)
	})

	t.Run("valid arguments are decoded", func(t *testing.T) {
		got, err := DecodeArguments[args](&mcpgo.CallToolRequest{
			Params: &mcpgo.CallToolParamsRaw{Arguments: []byte(`{"name":"x","count":3}`)},
		})
		require.NoError(t, err)
		require.Equal(t, args{Name: "x", Count: 3}, got)
	})

	t.Run("invalid json returns wrapped error", func(t *testing.T) {
		_, err := DecodeArguments[args](&mcpgo.CallToolRequest{
			Params: &mcpgo.CallToolParamsRaw{Arguments: []byte(`{"name":`)},
		})
		require.ErrorContains(t, err, "failed to unmarshal arguments")
	})
}

package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ggoodman/mcp-starter-go/mcp"
	"github.com/ggoodman/mcp-starter-go/mcperr"
	"github.com/ggoodman/mcp-starter-go/sessions"
)

func greetPrompt(calls *int) StaticPrompt {
	return StaticPrompt{
		Descriptor: mcp.Prompt{
			Name: "greet",
			Arguments: []mcp.PromptArgument{
				{Name: "name", Required: true},
				{Name: "style"},
			},
		},
		Handler: func(ctx context.Context, s sessions.Session, req *PromptRequest) (*mcp.GetPromptResult, error) {
			*calls++
			return &mcp.GetPromptResult{
				Messages: []mcp.PromptMessage{UserMessage(req.Arg("style", "casual") + " " + req.Arguments["name"])},
			}, nil
		},
	}
}

func getPrompt(pc *PromptsContainer, name, args string) (*mcp.GetPromptResult, error) {
	req := &mcp.GetPromptRequestReceived{Name: name}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &req.Arguments); err != nil {
			panic(err)
		}
	}
	return pc.GetPrompt(context.Background(), nopSession{}, req)
}

func TestPromptsContainer_GetPrompt(t *testing.T) {
	calls := 0
	pc, err := NewPromptsContainer(greetPrompt(&calls))
	if err != nil {
		t.Fatalf("NewPromptsContainer: %v", err)
	}

	res, err := getPrompt(pc, "greet", `{"name":"Ada","style":"formal"}`)
	if err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	if len(res.Messages) != 1 || res.Messages[0].Content.Text != "formal Ada" || res.Messages[0].Role != mcp.RoleUser {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = getPrompt(pc, "greet", `{"name":"Ada"}`)
	if err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	if res.Messages[0].Content.Text != "casual Ada" {
		t.Fatalf("expected default style, got %q", res.Messages[0].Content.Text)
	}
}

func TestPromptsContainer_MissingRequired(t *testing.T) {
	calls := 0
	pc, _ := NewPromptsContainer(greetPrompt(&calls))

	for _, args := range []string{"", `{}`, `{"name":""}`, `{"style":"formal"}`} {
		_, err := getPrompt(pc, "greet", args)
		if !errors.Is(err, mcperr.ErrInvalidParams) {
			t.Fatalf("args %q: expected InvalidParams, got %v", args, err)
		}
		w := mcperr.ToWire(err)
		data, ok := w.Data.(map[string]any)
		if !ok {
			t.Fatalf("expected data map, got %#v", w.Data)
		}
		missing, _ := data["missing"].([]string)
		if len(missing) != 1 || missing[0] != "name" {
			t.Fatalf("unexpected missing list: %#v", data["missing"])
		}
	}
	if calls != 0 {
		t.Fatalf("handler must not run, ran %d times", calls)
	}
}

func TestPromptsContainer_NonStringArgument(t *testing.T) {
	calls := 0
	pc, _ := NewPromptsContainer(greetPrompt(&calls))
	if _, err := getPrompt(pc, "greet", `{"name":7}`); !errors.Is(err, mcperr.ErrInvalidParams) {
		t.Fatalf("expected InvalidParams, got %v", err)
	}
}

func TestPromptsContainer_UnknownPrompt(t *testing.T) {
	pc, _ := NewPromptsContainer()
	if _, err := getPrompt(pc, "nope", ""); !errors.Is(err, mcperr.ErrMethodNotFound) {
		t.Fatalf("expected MethodNotFound, got %v", err)
	}
}

func TestPromptsContainer_HandlerFailure(t *testing.T) {
	pc, _ := NewPromptsContainer(StaticPrompt{
		Descriptor: mcp.Prompt{Name: "broken"},
		Handler: func(ctx context.Context, s sessions.Session, req *PromptRequest) (*mcp.GetPromptResult, error) {
			return nil, errors.New("template missing")
		},
	})
	_, err := getPrompt(pc, "broken", "")
	if !errors.Is(err, mcperr.ErrHandlerFailure) {
		t.Fatalf("expected HandlerFailure, got %v", err)
	}
	if w := mcperr.ToWire(err); w.Message != "template missing" {
		t.Fatalf("expected handler message on the wire, got %q", w.Message)
	}
}

func TestPromptsContainer_DuplicateAndList(t *testing.T) {
	calls := 0
	pc, _ := NewPromptsContainer(greetPrompt(&calls))
	if err := pc.Add(greetPrompt(&calls)); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	if err := pc.Add(StaticPrompt{Descriptor: mcp.Prompt{Name: "code_review"}, Handler: greetPrompt(&calls).Handler}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	page, err := pc.ListPrompts(context.Background(), nopSession{}, nil)
	if err != nil {
		t.Fatalf("ListPrompts: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].Name != "greet" || page.Items[1].Name != "code_review" || page.NextCursor != nil {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestServer_Capabilities(t *testing.T) {
	calls := 0
	pc, _ := NewPromptsContainer(greetPrompt(&calls))
	srv := NewServer(
		WithServerInfo(mcp.ImplementationInfo{Name: "test", Version: "1.0.0"}),
		WithInstructions("be nice"),
		WithPromptsContainer(pc),
	)
	ctx := context.Background()

	info, err := srv.GetServerInfo(ctx, nopSession{})
	if err != nil || info.Name != "test" {
		t.Fatalf("unexpected info: %+v %v", info, err)
	}
	if v, ok, _ := srv.GetPreferredProtocolVersion(ctx); ok || v != "" {
		t.Fatalf("expected no preferred version, got %q", v)
	}
	if instr, ok, _ := srv.GetInstructions(ctx, nopSession{}); !ok || instr != "be nice" {
		t.Fatalf("unexpected instructions: %q", instr)
	}
	if _, ok, _ := srv.GetToolsCapability(ctx, nopSession{}); ok {
		t.Fatalf("tools must be absent")
	}
	if _, ok, _ := srv.GetPromptsCapability(ctx, nopSession{}); !ok {
		t.Fatalf("prompts must be present")
	}

	srv = NewServer(WithToolsProvider(StaticTools(nil)))
	if _, ok, _ := srv.GetToolsCapability(ctx, nopSession{}); ok {
		t.Fatalf("nil static tools must be absent")
	}
}

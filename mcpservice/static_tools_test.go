package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ggoodman/mcp-starter-go/mcp"
	"github.com/ggoodman/mcp-starter-go/mcperr"
	"github.com/ggoodman/mcp-starter-go/sessions"
)

type nopSession struct{ sessions.Session }

type greetArgs struct {
	Name string `json:"name" jsonschema:"description=Who to greet"`
}

type stepsArgs struct {
	Steps int `json:"steps,omitempty" jsonschema:"minimum=1,maximum=20,default=5"`
}

func boolPtr(b bool) *bool { return &b }

func newGreetTool(calls *atomic.Int32) StaticTool {
	return NewTool("hello", func(ctx context.Context, s sessions.Session, w ToolResponseWriter, r *ToolRequest[greetArgs]) error {
		calls.Add(1)
		return w.AppendText("Hello, " + r.Args().Name + "!")
	}, WithToolDescription("Say hello"), WithToolAnnotations(mcp.ToolAnnotations{ReadOnlyHint: boolPtr(true)}))
}

func TestNewTool_ReflectsSchema(t *testing.T) {
	var calls atomic.Int32
	tool := newGreetTool(&calls)

	s := tool.Descriptor.InputSchema
	if s.Type != "object" {
		t.Fatalf("expected object schema, got %q", s.Type)
	}
	if p, ok := s.Properties["name"]; !ok || p.Type != "string" || p.Description != "Who to greet" {
		b, _ := json.Marshal(s)
		t.Fatalf("unexpected name property: %s", b)
	}
	if len(s.Required) != 1 || s.Required[0] != "name" {
		t.Fatalf("expected name to be required, got %v", s.Required)
	}
	if s.AdditionalProperties == nil || *s.AdditionalProperties {
		t.Fatalf("expected additionalProperties=false")
	}
	if a := tool.Descriptor.Annotations; a == nil || a.ReadOnlyHint == nil || !*a.ReadOnlyHint {
		t.Fatalf("expected read-only annotation")
	}
}

func TestNewTool_ReflectsBounds(t *testing.T) {
	tool := NewTool("long_task", func(ctx context.Context, s sessions.Session, w ToolResponseWriter, r *ToolRequest[stepsArgs]) error {
		return nil
	})
	p := tool.Descriptor.InputSchema.Properties["steps"]
	if p.Type != "integer" {
		t.Fatalf("expected integer, got %q", p.Type)
	}
	if p.Minimum == nil || *p.Minimum != 1 || p.Maximum == nil || *p.Maximum != 20 {
		t.Fatalf("unexpected bounds: %+v", p)
	}
	if len(tool.Descriptor.InputSchema.Required) != 0 {
		t.Fatalf("expected no required fields, got %v", tool.Descriptor.InputSchema.Required)
	}
}

func TestNewTool_NoArguments(t *testing.T) {
	tool := NewTool("status", func(ctx context.Context, s sessions.Session, w ToolResponseWriter, r *ToolRequest[struct{}]) error {
		return w.AppendText("ok")
	})
	s := tool.Descriptor.InputSchema
	if s.Type != "object" || len(s.Properties) != 0 || len(s.Required) != 0 {
		t.Fatalf("expected empty object schema, got %+v", s)
	}

	tc, err := NewToolsContainer(tool)
	if err != nil {
		t.Fatalf("NewToolsContainer: %v", err)
	}
	res, err := tc.CallTool(context.Background(), nopSession{}, &mcp.CallToolRequestReceived{Name: "status"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(res.Content) != 1 || res.Content[0].Text != "ok" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestNewTool_UnnamedStructArguments(t *testing.T) {
	tool := NewTool("echo", func(ctx context.Context, s sessions.Session, w ToolResponseWriter, r *ToolRequest[struct {
		Text string `json:"text"`
	}]) error {
		return w.AppendText(r.Args().Text)
	})
	s := tool.Descriptor.InputSchema
	if p, ok := s.Properties["text"]; !ok || p.Type != "string" {
		t.Fatalf("expected text property, got %+v", s.Properties)
	}
	if len(s.Required) != 1 || s.Required[0] != "text" {
		t.Fatalf("expected text to be required, got %v", s.Required)
	}
}

func TestToolsContainer_CallTool(t *testing.T) {
	var calls atomic.Int32
	tc, err := NewToolsContainer(newGreetTool(&calls))
	if err != nil {
		t.Fatalf("NewToolsContainer: %v", err)
	}

	res, err := tc.CallTool(context.Background(), nopSession{}, &mcp.CallToolRequestReceived{
		Name:      "hello",
		Arguments: json.RawMessage(`{"name":"Ada"}`),
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(res.Content) != 1 || res.Content[0].Text != "Hello, Ada!" {
		b, _ := json.Marshal(res)
		t.Fatalf("unexpected result: %s", b)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one handler call, got %d", calls.Load())
	}
}

func TestToolsContainer_InvalidArgumentsSkipHandler(t *testing.T) {
	var calls atomic.Int32
	tc, err := NewToolsContainer(newGreetTool(&calls))
	if err != nil {
		t.Fatalf("NewToolsContainer: %v", err)
	}

	cases := map[string]string{
		"missing required": `{}`,
		"absent":           ``,
		"wrong type":       `{"name":42}`,
		"unknown field":    `{"name":"Ada","extra":true}`,
		"not an object":    `["Ada"]`,
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tc.CallTool(context.Background(), nopSession{}, &mcp.CallToolRequestReceived{
				Name:      "hello",
				Arguments: json.RawMessage(args),
			})
			if !errors.Is(err, mcperr.ErrInvalidParams) {
				t.Fatalf("expected InvalidParams, got %v", err)
			}
			var me *mcperr.Error
			if !errors.As(err, &me) {
				t.Fatalf("expected *mcperr.Error, got %T", err)
			}
			data, ok := me.Data.(map[string]any)
			if !ok || data["tool"] != "hello" || data["error"] == "" {
				t.Fatalf("unexpected error data: %#v", me.Data)
			}
		})
	}
	if calls.Load() != 0 {
		t.Fatalf("handler must not run on invalid input, ran %d times", calls.Load())
	}
}

func TestToolsContainer_UnknownTool(t *testing.T) {
	tc, _ := NewToolsContainer()
	_, err := tc.CallTool(context.Background(), nopSession{}, &mcp.CallToolRequestReceived{Name: "nope"})
	if !errors.Is(err, mcperr.ErrMethodNotFound) {
		t.Fatalf("expected MethodNotFound, got %v", err)
	}
	w := mcperr.ToWire(err)
	if w.Code != mcperr.CodeMethodNotFound || w.Message != "tool not found: nope" {
		t.Fatalf("unexpected wire error: %d %q", w.Code, w.Message)
	}
}

func TestToolsContainer_HandlerFailure(t *testing.T) {
	boom := NewTool("boom", func(ctx context.Context, s sessions.Session, w ToolResponseWriter, r *ToolRequest[struct{}]) error {
		return errors.New("upstream exploded")
	})
	tc, err := NewToolsContainer(boom)
	if err != nil {
		t.Fatalf("NewToolsContainer: %v", err)
	}
	_, err = tc.CallTool(context.Background(), nopSession{}, &mcp.CallToolRequestReceived{Name: "boom"})
	if !errors.Is(err, mcperr.ErrHandlerFailure) {
		t.Fatalf("expected HandlerFailure, got %v", err)
	}
	w := mcperr.ToWire(err)
	if w.Code != mcperr.CodeHandlerFailure || w.Message != "upstream exploded" {
		t.Fatalf("unexpected wire error: %d %q", w.Code, w.Message)
	}
}

func TestToolsContainer_DuplicateName(t *testing.T) {
	var calls atomic.Int32
	tc, err := NewToolsContainer(newGreetTool(&calls))
	if err != nil {
		t.Fatalf("NewToolsContainer: %v", err)
	}
	if err := tc.Add(newGreetTool(&calls)); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	if got := len(tc.Snapshot()); got != 1 {
		t.Fatalf("duplicate must not be registered, have %d tools", got)
	}

	if _, err := NewToolsContainer(newGreetTool(&calls), newGreetTool(&calls)); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName from constructor, got %v", err)
	}
}

func TestToolsContainer_ListPaging(t *testing.T) {
	tc, _ := NewToolsContainer()
	tc.SetPageSize(2)
	names := []string{"a", "b", "c", "d", "e"}
	for _, n := range names {
		err := tc.Add(NewTool(n, func(ctx context.Context, s sessions.Session, w ToolResponseWriter, r *ToolRequest[struct{}]) error {
			return nil
		}))
		if err != nil {
			t.Fatalf("Add(%s): %v", n, err)
		}
	}

	var got []string
	var cursor *string
	pages := 0
	for {
		page, err := tc.ListTools(context.Background(), nopSession{}, cursor)
		if err != nil {
			t.Fatalf("ListTools: %v", err)
		}
		pages++
		if len(page.Items) > 2 {
			t.Fatalf("page too large: %d", len(page.Items))
		}
		for _, it := range page.Items {
			got = append(got, it.Name)
		}
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}
	if pages != 3 {
		t.Fatalf("expected 3 pages, got %d", pages)
	}
	if len(got) != len(names) {
		t.Fatalf("expected %v, got %v", names, got)
	}
	for i := range names {
		if got[i] != names[i] {
			t.Fatalf("insertion order broken: %v", got)
		}
	}
}

func TestToolsContainer_BadCursor(t *testing.T) {
	tc, _ := NewToolsContainer()
	for _, c := range []string{"!!!", encodeCursor(99), "eDox"} {
		cur := c
		if _, err := tc.ListTools(context.Background(), nopSession{}, &cur); !errors.Is(err, mcperr.ErrInvalidParams) {
			t.Fatalf("cursor %q: expected InvalidParams, got %v", c, err)
		}
	}
}

func TestToolsContainer_ProgressThroughWriter(t *testing.T) {
	tool := NewTool("long_task", func(ctx context.Context, s sessions.Session, w ToolResponseWriter, r *ToolRequest[stepsArgs]) error {
		for i := 1; i <= r.Args().Steps; i++ {
			if err := w.SendProgress(float64(i), float64(r.Args().Steps), ""); err != nil {
				return err
			}
		}
		return w.AppendText("done")
	})
	tc, err := NewToolsContainer(tool)
	if err != nil {
		t.Fatalf("NewToolsContainer: %v", err)
	}

	rec := &recordingReporter{}
	ctx := WithProgressReporter(context.Background(), rec)
	res, err := tc.CallTool(ctx, nopSession{}, &mcp.CallToolRequestReceived{Name: "long_task", Arguments: json.RawMessage(`{"steps":3}`)})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(rec.progress) != 3 || rec.progress[2] != 3 {
		t.Fatalf("unexpected progress: %v", rec.progress)
	}
	if res.Content[0].Text != "done" {
		t.Fatalf("unexpected result text %q", res.Content[0].Text)
	}

	// Out-of-range steps never reach the handler.
	_, err = tc.CallTool(ctx, nopSession{}, &mcp.CallToolRequestReceived{Name: "long_task", Arguments: json.RawMessage(`{"steps":50}`)})
	if !errors.Is(err, mcperr.ErrInvalidParams) {
		t.Fatalf("expected InvalidParams, got %v", err)
	}
}

type recordingReporter struct {
	progress []float64
}

func (r *recordingReporter) Report(ctx context.Context, progress, total float64, message string) error {
	r.progress = append(r.progress, progress)
	return nil
}

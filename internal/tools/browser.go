package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// BrowserSession is one headless-Chromium tab, keyed by session key so a
// session's tool calls keep reusing the same page instead of opening a new
// browser per call.
type BrowserSession struct {
	browser *rod.Browser
	page    *rod.Page
}

// BrowserManager owns one BrowserSession per session key, lazily launching
// a headless Chromium instance via go-rod/rod on first use.
type BrowserManager struct {
	mu       sync.Mutex
	sessions map[string]*BrowserSession
}

func NewBrowserManager() *BrowserManager {
	return &BrowserManager{sessions: make(map[string]*BrowserSession)}
}

func (m *BrowserManager) get(key string) (*BrowserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s, nil
	}

	u, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chromium: %w", err)
	}
	page := browser.MustPage()
	s := &BrowserSession{browser: browser, page: page}
	m.sessions[key] = s
	return s, nil
}

// Close tears down a session's browser, if one is open.
func (m *BrowserManager) Close(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		_ = s.browser.Close()
		delete(m.sessions, key)
	}
}

func sessionKeyFor(ctx context.Context) string {
	if k := ToolSandboxKeyFromCtx(ctx); k != "" {
		return k
	}
	return ToolChatIDFromCtx(ctx)
}

// browserTool is embedded by every browser_* tool to share the manager
// reference and session lookup.
type browserTool struct{ mgr *BrowserManager }

func (b browserTool) session(ctx context.Context) (*BrowserSession, error) {
	if b.mgr == nil {
		return nil, fmt.Errorf("browser manager not available")
	}
	return b.mgr.get(sessionKeyFor(ctx))
}

// ============================================================
// browser_open / browser_navigate / browser_close
// ============================================================

type BrowserOpenTool struct{ browserTool }

func NewBrowserOpenTool(m *BrowserManager) *BrowserOpenTool { return &BrowserOpenTool{browserTool{m}} }

func (t *BrowserOpenTool) Name() string        { return "browser_open" }
func (t *BrowserOpenTool) Description() string { return "Open a headless browser tab at a URL" }
func (t *BrowserOpenTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{"type": "string", "description": "URL to open"},
		},
		"required": []string{"url"},
	}
}

func (t *BrowserOpenTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	url, _ := args["url"].(string)
	if url == "" {
		return ErrorResult("url is required")
	}
	sess, err := t.session(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if err := sess.page.Context(ctx).Navigate(url); err != nil {
		return ErrorResult(fmt.Sprintf("navigate: %v", err))
	}
	sess.page.MustWaitLoad()
	return SilentResult(fmt.Sprintf("opened %s", url))
}

type BrowserNavigateTool struct{ browserTool }

func NewBrowserNavigateTool(m *BrowserManager) *BrowserNavigateTool {
	return &BrowserNavigateTool{browserTool{m}}
}

func (t *BrowserNavigateTool) Name() string { return "browser_navigate" }
func (t *BrowserNavigateTool) Description() string {
	return "Navigate the open tab to a new URL, or go back/forward"
}
func (t *BrowserNavigateTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url":       map[string]interface{}{"type": "string", "description": "URL to navigate to"},
			"direction": map[string]interface{}{"type": "string", "description": "'back' or 'forward' instead of url"},
		},
	}
}

func (t *BrowserNavigateTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	sess, err := t.session(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if dir, _ := args["direction"].(string); dir != "" {
		switch dir {
		case "back":
			err = sess.page.NavigateBack()
		case "forward":
			err = sess.page.NavigateForward()
		default:
			return ErrorResult("direction must be 'back' or 'forward'")
		}
		if err != nil {
			return ErrorResult(fmt.Sprintf("navigate %s: %v", dir, err))
		}
		return SilentResult("navigated " + dir)
	}
	url, _ := args["url"].(string)
	if url == "" {
		return ErrorResult("url or direction is required")
	}
	if err := sess.page.Context(ctx).Navigate(url); err != nil {
		return ErrorResult(fmt.Sprintf("navigate: %v", err))
	}
	sess.page.MustWaitLoad()
	return SilentResult(fmt.Sprintf("navigated to %s", url))
}

type BrowserCloseTool struct{ browserTool }

func NewBrowserCloseTool(m *BrowserManager) *BrowserCloseTool { return &BrowserCloseTool{browserTool{m}} }

func (t *BrowserCloseTool) Name() string                        { return "browser_close" }
func (t *BrowserCloseTool) Description() string                 { return "Close the open browser tab" }
func (t *BrowserCloseTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}

func (t *BrowserCloseTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.mgr == nil {
		return ErrorResult("browser manager not available")
	}
	t.mgr.Close(sessionKeyFor(ctx))
	return SilentResult("closed browser session")
}

// ============================================================
// browser_snapshot / browser_extract
// ============================================================

type BrowserSnapshotTool struct{ browserTool }

func NewBrowserSnapshotTool(m *BrowserManager) *BrowserSnapshotTool {
	return &BrowserSnapshotTool{browserTool{m}}
}

func (t *BrowserSnapshotTool) Name() string { return "browser_snapshot" }
func (t *BrowserSnapshotTool) Description() string {
	return "Get the page title, URL, and visible text of the open tab"
}
func (t *BrowserSnapshotTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}

func (t *BrowserSnapshotTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	sess, err := t.session(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	info, err := sess.page.Info()
	if err != nil {
		return ErrorResult(fmt.Sprintf("page info: %v", err))
	}
	text, err := sess.page.MustElement("body").Text()
	if err != nil {
		text = ""
	}
	if len(text) > 4000 {
		text = text[:4000] + "…(truncated)"
	}
	return SilentResult(fmt.Sprintf("Title: %s\nURL: %s\n\n%s", info.Title, info.URL, text))
}

type BrowserExtractTool struct{ browserTool }

func NewBrowserExtractTool(m *BrowserManager) *BrowserExtractTool {
	return &BrowserExtractTool{browserTool{m}}
}

func (t *BrowserExtractTool) Name() string { return "browser_extract" }
func (t *BrowserExtractTool) Description() string {
	return "Extract text content from elements matching a CSS selector"
}
func (t *BrowserExtractTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"selector": map[string]interface{}{"type": "string", "description": "CSS selector"},
		},
		"required": []string{"selector"},
	}
}

func (t *BrowserExtractTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	selector, _ := args["selector"].(string)
	if selector == "" {
		return ErrorResult("selector is required")
	}
	sess, err := t.session(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	elems, err := sess.page.Elements(selector)
	if err != nil {
		return ErrorResult(fmt.Sprintf("select %q: %v", selector, err))
	}
	if len(elems) == 0 {
		return SilentResult(fmt.Sprintf("(no elements matched %q)", selector))
	}
	var out string
	for i, el := range elems {
		txt, _ := el.Text()
		out += fmt.Sprintf("[%d] %s\n", i, txt)
	}
	return SilentResult(out)
}

// ============================================================
// browser_click / browser_type / browser_fill / browser_scroll
// ============================================================

type BrowserClickTool struct{ browserTool }

func NewBrowserClickTool(m *BrowserManager) *BrowserClickTool { return &BrowserClickTool{browserTool{m}} }

func (t *BrowserClickTool) Name() string        { return "browser_click" }
func (t *BrowserClickTool) Description() string { return "Click the element matching a CSS selector" }
func (t *BrowserClickTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"selector": map[string]interface{}{"type": "string", "description": "CSS selector"},
		},
		"required": []string{"selector"},
	}
}

func (t *BrowserClickTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	selector, _ := args["selector"].(string)
	if selector == "" {
		return ErrorResult("selector is required")
	}
	sess, err := t.session(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	el, err := sess.page.Element(selector)
	if err != nil {
		return ErrorResult(fmt.Sprintf("select %q: %v", selector, err))
	}
	if err := el.Click("left", 1); err != nil {
		return ErrorResult(fmt.Sprintf("click: %v", err))
	}
	return SilentResult(fmt.Sprintf("clicked %q", selector))
}

type BrowserTypeTool struct{ browserTool }

func NewBrowserTypeTool(m *BrowserManager) *BrowserTypeTool { return &BrowserTypeTool{browserTool{m}} }

func (t *BrowserTypeTool) Name() string        { return "browser_type" }
func (t *BrowserTypeTool) Description() string { return "Type text into the currently focused element" }
func (t *BrowserTypeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{"type": "string", "description": "Text to type"},
		},
		"required": []string{"text"},
	}
}

func (t *BrowserTypeTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	text, _ := args["text"].(string)
	if text == "" {
		return ErrorResult("text is required")
	}
	sess, err := t.session(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if err := sess.page.InsertText(text); err != nil {
		return ErrorResult(fmt.Sprintf("type: %v", err))
	}
	return SilentResult("typed text")
}

type BrowserFillTool struct{ browserTool }

func NewBrowserFillTool(m *BrowserManager) *BrowserFillTool { return &BrowserFillTool{browserTool{m}} }

func (t *BrowserFillTool) Name() string        { return "browser_fill" }
func (t *BrowserFillTool) Description() string { return "Fill a form field matching a CSS selector with text" }
func (t *BrowserFillTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"selector": map[string]interface{}{"type": "string", "description": "CSS selector"},
			"text":     map[string]interface{}{"type": "string", "description": "Text to fill"},
		},
		"required": []string{"selector", "text"},
	}
}

func (t *BrowserFillTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	selector, _ := args["selector"].(string)
	text, _ := args["text"].(string)
	if selector == "" || text == "" {
		return ErrorResult("selector and text are required")
	}
	sess, err := t.session(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	el, err := sess.page.Element(selector)
	if err != nil {
		return ErrorResult(fmt.Sprintf("select %q: %v", selector, err))
	}
	if err := el.SelectAllText(); err != nil {
		return ErrorResult(fmt.Sprintf("select text: %v", err))
	}
	if err := el.Input(text); err != nil {
		return ErrorResult(fmt.Sprintf("fill: %v", err))
	}
	return SilentResult(fmt.Sprintf("filled %q", selector))
}

type BrowserScrollTool struct{ browserTool }

func NewBrowserScrollTool(m *BrowserManager) *BrowserScrollTool { return &BrowserScrollTool{browserTool{m}} }

func (t *BrowserScrollTool) Name() string        { return "browser_scroll" }
func (t *BrowserScrollTool) Description() string { return "Scroll the page, or an element into view" }
func (t *BrowserScrollTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"selector": map[string]interface{}{"type": "string", "description": "CSS selector to scroll into view"},
			"dy":       map[string]interface{}{"type": "number", "description": "Pixels to scroll vertically (if no selector)"},
		},
	}
}

func (t *BrowserScrollTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	sess, err := t.session(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if sel, _ := args["selector"].(string); sel != "" {
		el, err := sess.page.Element(sel)
		if err != nil {
			return ErrorResult(fmt.Sprintf("select %q: %v", sel, err))
		}
		if err := el.ScrollIntoView(); err != nil {
			return ErrorResult(fmt.Sprintf("scroll into view: %v", err))
		}
		return SilentResult(fmt.Sprintf("scrolled %q into view", sel))
	}
	dy := 400.0
	if v, ok := args["dy"].(float64); ok {
		dy = v
	}
	if err := sess.page.Mouse.Scroll(0, dy, 1); err != nil {
		return ErrorResult(fmt.Sprintf("scroll: %v", err))
	}
	return SilentResult(fmt.Sprintf("scrolled %.0fpx", dy))
}

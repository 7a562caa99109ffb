package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/Proton-105/tasklink-bot/internal/bot/handlers"
	"github.com/Proton-105/tasklink-bot/internal/domain"
	"github.com/Proton-105/tasklink-bot/internal/linkcode"
)

type route struct {
	name    string
	maxArgs int
	handler handlers.Handler
}

// Router resolves inbound text to a handler in a fixed order: link code, then registered
// commands. Anything else is ignored without a reply.
type Router struct {
	mu          sync.RWMutex
	botUsername string
	link        handlers.Handler
	commands    map[string]route
	middlewares []handlers.Middleware
	log         *slog.Logger
}

// NewRouter builds a Router with empty registries. botUsername lets "/cmd@bot" address this bot.
func NewRouter(botUsername string, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		botUsername: strings.TrimPrefix(botUsername, "@"),
		commands:    make(map[string]route),
		middlewares: make([]handlers.Middleware, 0),
		log:         log,
	}
}

// SetLinkHandler sets the handler for messages that consist of a link code.
func (r *Router) SetLinkHandler(h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.link = h
}

// RegisterCommand registers h for cmd accepting at most maxArgs arguments.
func (r *Router) RegisterCommand(cmd, name string, maxArgs int, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(cmd)] = route{name: name, maxArgs: maxArgs, handler: h}
}

// Use appends a middleware to the chain.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// HandleUpdate routes one update through the middleware chain.
func (r *Router) HandleUpdate(ctx context.Context, u domain.InboundUpdate) error {
	req, h := r.resolve(u)
	if h == nil {
		r.log.DebugContext(ctx, "ignoring message", "chat_id", u.ChatID, "update_id", u.UpdateID)
		return nil
	}

	return r.applyMiddlewares(h)(ctx, req)
}

func (r *Router) resolve(u domain.InboundUpdate) (*handlers.Request, handlers.Handler) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	text := strings.TrimSpace(u.Text)
	u.Text = text

	if linkcode.LooksLikeCode(text) && r.link != nil {
		return &handlers.Request{InboundUpdate: u, Command: handlers.CommandLink}, r.link
	}

	cmd, args, ok := parseCommand(text, r.botUsername)
	if !ok {
		return nil, nil
	}

	rt, found := r.commands[cmd]
	if !found || len(args) > rt.maxArgs {
		return nil, nil
	}

	return &handlers.Request{InboundUpdate: u, Command: rt.name, Args: args}, rt.handler
}

// parseCommand splits "/cmd@bot arg..." into the lower-cased command and its arguments.
// Commands addressed to another bot are rejected.
func parseCommand(text, botUsername string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}

	cmd := fields[0]
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		if !strings.EqualFold(cmd[at+1:], botUsername) {
			return "", nil, false
		}
		cmd = cmd[:at]
	}

	return strings.ToLower(cmd), fields[1:], true
}

// applyMiddlewares wraps the handler with all registered middlewares, first registered outermost.
func (r *Router) applyMiddlewares(h handlers.Handler) handlers.Handler {
	r.mu.RLock()
	middlewares := make([]handlers.Middleware, len(r.middlewares))
	copy(middlewares, r.middlewares)
	r.mu.RUnlock()

	wrapped := h
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

package commands

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/draxon/draxon-bots/internal/platform"
	"go.uber.org/zap"
)

// OptionType is the kind of value a command option accepts.
type OptionType int

const (
	OptionString OptionType = iota
	OptionUser
	OptionChannel
)

// Option describes one slash command argument.
type Option struct {
	Name        string
	Description string
	Type        OptionType
	Required    bool
	Choices     []string
}

// Definition describes a slash command for registration.
type Definition struct {
	Name        string
	Description string
	Options     []Option
	// Deferred handlers may outlive the platform's acknowledgement window.
	Deferred bool
}

// Request is an invoked command or a submitted form.
type Request struct {
	// Name is the command name, or the form id for submissions.
	Name      string
	GuildID   string
	ChannelID string
	Member    platform.Member
	// Options holds option values and form fields by id. User and channel options carry ids.
	Options map[string]string
}

// Option returns the named value or "".
func (r Request) Option(name string) string {
	return r.Options[name]
}

// ModalField is one text input of a form.
type ModalField struct {
	ID          string
	Label       string
	Placeholder string
	Required    bool
	MaxLength   int
	Paragraph   bool
}

// Modal is a form shown in place of a reply.
type Modal struct {
	ID     string
	Title  string
	Fields []ModalField
}

// File is a text attachment.
type File struct {
	Name    string
	Content string
}

// Response is the reply to a Request. When Modal is set the other fields are ignored.
type Response struct {
	Content   string
	Ephemeral bool
	Modal     *Modal
	File      *File
}

// Ephemeral builds a private text reply.
func Ephemeral(content string) Response {
	return Response{Content: content, Ephemeral: true}
}

// Handler serves one command or form.
type Handler func(ctx context.Context, request Request) Response

// Router maps command and form names to handlers.
type Router struct {
	mu          sync.RWMutex
	handlers    map[string]Handler
	definitions map[string]Definition
	forms       map[string]struct{}
	logger      *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		handlers:    make(map[string]Handler),
		definitions: make(map[string]Definition),
		forms:       make(map[string]struct{}),
		logger:      logger,
	}
}

// Command registers a slash command.
func (r *Router) Command(definition Definition, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[definition.Name] = definition
	r.handlers[definition.Name] = handler
}

// Form registers the submit handler of a modal. Form submissions are always deferred.
func (r *Router) Form(id string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forms[id] = struct{}{}
	r.handlers[id] = handler
}

// Deferred reports whether name should be acknowledged before its handler runs.
func (r *Router) Deferred(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.forms[name]; ok {
		return true
	}
	return r.definitions[name].Deferred
}

// Definitions lists the registered slash commands by name.
func (r *Router) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	definitions := make([]Definition, 0, len(r.definitions))
	for _, definition := range r.definitions {
		definitions = append(definitions, definition)
	}
	sort.Slice(definitions, func(i, j int) bool { return definitions[i].Name < definitions[j].Name })
	return definitions
}

// Dispatch runs the handler for request. Panics become an ephemeral error reply.
func (r *Router) Dispatch(ctx context.Context, request Request) (response Response) {
	r.mu.RLock()
	handler, ok := r.handlers[request.Name]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("unknown command", zap.String("command", request.Name))
		return Ephemeral("❌ Unknown command.")
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("command panicked",
				zap.String("command", request.Name),
				zap.String("guild_id", request.GuildID),
				zap.String("user_id", request.Member.ID),
				zap.String("panic", fmt.Sprint(recovered)))
			response = Ephemeral("❌ An error occurred while processing the command.")
		}
	}()
	response = handler(ctx, request)
	r.logger.Debug("command handled",
		zap.String("command", request.Name),
		zap.String("guild_id", request.GuildID),
		zap.String("user_id", request.Member.ID))
	return response
}

// requireRole wraps handler so only members holding one of roles may run it.
func requireRole(roles []string, handler Handler) Handler {
	return func(ctx context.Context, request Request) Response {
		if !request.Member.HasAnyRole(roles) {
			return Ephemeral("❌ You don't have permission to use this command.")
		}
		return handler(ctx, request)
	}
}

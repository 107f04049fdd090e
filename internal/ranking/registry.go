package ranking

import (
	"fmt"
	"reflect"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	rankingrepo "github.com/yungbote/rankset/internal/data/repos/ranking"
	"github.com/yungbote/rankset/internal/platform/logger"
)

const tracerName = "github.com/yungbote/rankset/internal/ranking"

// Registry maps entity types to their handlers. Each entity type is
// registered at most once.
type Registry struct {
	db       *gorm.DB
	repo     rankingrepo.RankingEntryRepo
	log      *logger.Logger
	observer Observer
	tracer   trace.Tracer
	defaults []HandlerOption

	mu       sync.RWMutex
	handlers map[EntityType]*Handler
	byModel  map[reflect.Type]EntityType
	order    []EntityType
}

type RegistryOption func(r *Registry)

func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

func WithTracer(t trace.Tracer) RegistryOption {
	return func(r *Registry) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithDefaultHandlerOptions applies opts to every handler before its own
// registration options.
func WithDefaultHandlerOptions(opts ...HandlerOption) RegistryOption {
	return func(r *Registry) { r.defaults = append(r.defaults, opts...) }
}

func NewRegistry(db *gorm.DB, repo rankingrepo.RankingEntryRepo, baseLog *logger.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		db:       db,
		repo:     repo,
		log:      baseLog.With("service", "RankingRegistry"),
		observer: nopObserver{},
		tracer:   otel.Tracer(tracerName),
		handlers: map[EntityType]*Handler{},
		byModel:  map[reflect.Type]EntityType{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates the handler for entity. A second registration of the
// same entity type fails with ErrModelAlreadyRegistered and leaves the
// first one in place.
func (r *Registry) Register(entity Entity, typologies Typologies, opts ...HandlerOption) (*Handler, error) {
	hs, err := r.RegisterEach([]Entity{entity}, typologies, opts...)
	if err != nil {
		return nil, err
	}
	return hs[0], nil
}

// RegisterEach registers every entity with the same typologies and options.
// Registration is all or nothing: if any entity is invalid or already
// registered, none of them is added.
func (r *Registry) RegisterEach(entities []Entity, typologies Typologies, opts ...HandlerOption) ([]*Handler, error) {
	handlers := make([]*Handler, 0, len(entities))
	for _, entity := range entities {
		h, err := r.build(entity, typologies, opts)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[EntityType]bool{}
	models := map[reflect.Type]EntityType{}
	for _, h := range handlers {
		et := h.entity.Type
		if _, ok := r.handlers[et]; ok || seen[et] {
			return nil, fmt.Errorf("%w: %s", ErrModelAlreadyRegistered, et)
		}
		seen[et] = true
		mt := modelType(h.entity.Model)
		if mt == nil {
			continue
		}
		other, ok := r.byModel[mt]
		if !ok {
			other, ok = models[mt]
		}
		if ok {
			return nil, fmt.Errorf("%w: model %s already registered as %s", ErrModelAlreadyRegistered, mt, other)
		}
		models[mt] = et
	}

	for _, h := range handlers {
		et := h.entity.Type
		if mt := modelType(h.entity.Model); mt != nil {
			r.byModel[mt] = et
		}
		r.handlers[et] = h
		r.order = append(r.order, et)
		r.log.Debug("Registered ranking handler", "entity_type", string(et), "typologies", h.typs.Names(), "manager", h.manager)
	}
	return handlers, nil
}

func (r *Registry) build(entity Entity, typologies Typologies, opts []HandlerOption) (*Handler, error) {
	resolved, err := entity.resolve(r.db)
	if err != nil {
		return nil, err
	}
	typs, err := newTypologyResolver(typologies)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", resolved.Type, err)
	}

	all := make([]HandlerOption, 0, len(r.defaults)+len(opts))
	all = append(all, r.defaults...)
	all = append(all, opts...)
	h := newHandler(resolved, typs, all)
	h.db = r.db
	h.repo = r.repo
	h.observer = r.observer
	h.tracer = r.tracer
	h.log = r.log.With("entity_type", string(resolved.Type))
	return h, nil
}

// Unregister drops a registration. Unknown types are ignored.
func (r *Registry) Unregister(t EntityType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[t]
	if !ok {
		return
	}
	delete(r.handlers, t)
	if mt := modelType(h.entity.Model); mt != nil {
		delete(r.byModel, mt)
	}
	for i, et := range r.order {
		if et == t {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) Handler(t EntityType) (*Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotRegistered, t)
	}
	return h, nil
}

// HandlerFor looks a handler up by model value, e.g. HandlerFor(&Article{}).
func (r *Registry) HandlerFor(model any) (*Handler, error) {
	mt := modelType(model)
	r.mu.RLock()
	t, ok := r.byModel[mt]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrModelNotRegistered, mt)
	}
	return r.Handler(t)
}

// Handlers returns every handler in registration order.
func (r *Registry) Handlers() []*Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handler, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.handlers[t])
	}
	return out
}

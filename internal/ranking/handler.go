package ranking

import (
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	rankingrepo "github.com/yungbote/rankset/internal/data/repos/ranking"
	"github.com/yungbote/rankset/internal/pkg/batch"
	"github.com/yungbote/rankset/internal/platform/logger"
)

// Handler owns the rankings of one entity type: it refreshes them and
// serves queries ordered by them.
type Handler struct {
	entity    Entity
	typs      *typologyResolver
	manager   string
	batchSize int

	db       *gorm.DB
	repo     rankingrepo.RankingEntryRepo
	log      *logger.Logger
	observer Observer
	tracer   trace.Tracer
}

type HandlerOption func(h *Handler)

// WithManager selects the named Entity manager used by OrderedBy.
func WithManager(name string) HandlerOption {
	return func(h *Handler) { h.manager = name }
}

// WithBatchSize bounds the buffers used while refreshing.
func WithBatchSize(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.batchSize = n
		}
	}
}

func (h *Handler) EntityType() EntityType { return h.entity.Type }

func (h *Handler) Entity() Entity { return h.entity }

func (h *Handler) Manager() string { return h.manager }

func (h *Handler) String() string { return string(h.entity.Type) }

// Typologies lists the implemented typology names in lexical order.
func (h *Handler) Typologies() []string { return h.typs.Names() }

// ValidateTypology accepts a bare name or a "-name" spec.
func (h *Handler) ValidateTypology(spec string) error {
	name, _ := ParseTypologySpec(spec)
	return h.typs.Validate(name)
}

func (h *Handler) scope(typology string, usable bool) rankingrepo.Scope {
	return rankingrepo.Scope{EntityType: string(h.entity.Type), Typology: typology, Usable: usable}
}

func newHandler(entity Entity, typs *typologyResolver, opts []HandlerOption) *Handler {
	h := &Handler{
		entity:    entity,
		typs:      typs,
		manager:   DefaultManager,
		batchSize: batch.DefaultSize,
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

package ranking

import (
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// EntityType is the discriminator stored in ranking_entry.entity_type.
type EntityType string

// Manager narrows the entity table before ranked rows are joined in, e.g.
// to published rows only.
type Manager func(db *gorm.DB) *gorm.DB

const DefaultManager = "default"

// Entity describes a ranked model. Table and PrimaryKey are read from the
// gorm schema of Model when left empty.
type Entity struct {
	Type       EntityType
	Model      any
	Table      string
	PrimaryKey string
	Managers   map[string]Manager

	// intKey is set when the model's primary key is an integer column.
	intKey bool
}

func (e Entity) resolve(db *gorm.DB) (Entity, error) {
	if strings.TrimSpace(string(e.Type)) == "" {
		return e, fmt.Errorf("%w: empty entity type", ErrInvalidEntity)
	}
	if len(e.Type) > maxTypologyLength {
		return e, fmt.Errorf("%w: entity type %q longer than %d bytes", ErrInvalidEntity, e.Type, maxTypologyLength)
	}
	if e.Model == nil && e.Table == "" {
		return e, fmt.Errorf("%w: %s needs a model or a table", ErrInvalidEntity, e.Type)
	}
	if e.Model != nil {
		stmt := &gorm.Statement{DB: db}
		err := stmt.Parse(e.Model)
		if err != nil && (e.Table == "" || e.PrimaryKey == "") {
			return e, fmt.Errorf("%w: parse %s model: %v", ErrInvalidEntity, e.Type, err)
		}
		if err == nil {
			if e.Table == "" {
				e.Table = stmt.Schema.Table
			}
			if e.PrimaryKey == "" {
				if stmt.Schema.PrioritizedPrimaryField == nil {
					return e, fmt.Errorf("%w: %s model has no primary key", ErrInvalidEntity, e.Type)
				}
				e.PrimaryKey = stmt.Schema.PrioritizedPrimaryField.DBName
			}
			if f := stmt.Schema.LookUpField(e.PrimaryKey); f != nil {
				e.intKey = f.DataType == schema.Int || f.DataType == schema.Uint
			}
		}
	}
	if e.PrimaryKey == "" {
		e.PrimaryKey = "id"
	}
	managers := make(map[string]Manager, len(e.Managers)+1)
	managers[DefaultManager] = func(db *gorm.DB) *gorm.DB { return db }
	for name, m := range e.Managers {
		if m == nil {
			return e, fmt.Errorf("%w: %s manager %q is nil", ErrInvalidEntity, e.Type, name)
		}
		managers[name] = m
	}
	e.Managers = managers
	return e, nil
}

func (e Entity) manager(name string) (Manager, error) {
	m, ok := e.Managers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no manager %q", ErrManagerDoesNotExist, e.Type, name)
	}
	return m, nil
}

// modelType unwraps pointers and slices so *Article, Article and
// []*Article all key the same registration.
func modelType(model any) reflect.Type {
	if model == nil {
		return nil
	}
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	return t
}

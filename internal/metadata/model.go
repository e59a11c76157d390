package metadata

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Model is the registry of entity types consulted while translating queries. Entity
// types are registered first, then the model is frozen: Freeze resolves inheritance,
// navigations and foreign keys, after which the model is read-only and safe for
// concurrent use.
type Model struct {
	mu       sync.RWMutex
	entities map[string]*EntityMetadata
	byType   map[reflect.Type]*EntityMetadata
	order    []string
	frozen   bool
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{
		entities: make(map[string]*EntityMetadata),
		byType:   make(map[reflect.Type]*EntityMetadata),
	}
}

// Register analyzes and registers one or more entity structs.
func (m *Model) Register(entities ...interface{}) error {
	for _, entity := range entities {
		meta, err := AnalyzeEntity(entity)
		if err != nil {
			return fmt.Errorf("failed to analyze entity: %w", err)
		}
		if err := m.RegisterEntity(meta); err != nil {
			return err
		}
	}
	return nil
}

// RegisterEntity registers pre-built entity metadata. Entity names must be unique.
func (m *Model) RegisterEntity(meta *EntityMetadata) error {
	if meta == nil || meta.EntityName == "" {
		return fmt.Errorf("entity metadata must have a name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen {
		return fmt.Errorf("cannot register entity %s: model is frozen", meta.EntityName)
	}
	if _, exists := m.entities[meta.EntityName]; exists {
		return fmt.Errorf("entity %s is already registered", meta.EntityName)
	}

	m.entities[meta.EntityName] = meta
	if meta.EntityType != nil {
		m.byType[meta.EntityType] = meta
	}
	m.order = append(m.order, meta.EntityName)
	return nil
}

// Freeze resolves the model and makes it read-only. Calling Freeze again is a no-op.
func (m *Model) Freeze() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen {
		return nil
	}

	resolved := make(map[string]bool, len(m.entities))
	visiting := make(map[string]bool)
	for _, name := range m.order {
		if err := m.resolveEntity(m.entities[name], resolved, visiting); err != nil {
			return err
		}
	}

	for _, name := range m.order {
		if err := m.resolveNavigations(m.entities[name]); err != nil {
			return err
		}
	}

	m.frozen = true
	return nil
}

// resolveEntity settles the base type, inherited properties, declaring types and keys of
// meta. Base types are resolved before their derived types.
func (m *Model) resolveEntity(meta *EntityMetadata, resolved, visiting map[string]bool) error {
	if resolved[meta.EntityName] {
		return nil
	}
	if visiting[meta.EntityName] {
		return fmt.Errorf("entity %s has a cyclic base type chain", meta.EntityName)
	}
	visiting[meta.EntityName] = true
	defer delete(visiting, meta.EntityName)

	var base *EntityMetadata
	if meta.BaseTypeName != "" {
		base = m.entities[meta.BaseTypeName]
		if base == nil {
			if meta.EntityType == nil {
				return fmt.Errorf("entity %s derives from unregistered entity %s", meta.EntityName, meta.BaseTypeName)
			}
			// Embedded struct that is not an entity: a mixin.
			meta.BaseTypeName = ""
		}
	}

	if base != nil {
		if err := m.resolveEntity(base, resolved, visiting); err != nil {
			return err
		}
		inheritProperties(meta, base)
		meta.Keyless = base.Keyless
		meta.KeyProperties = append([]PropertyMetadata(nil), base.KeyProperties...)
	}

	for i := range meta.Properties {
		meta.Properties[i].DeclaringEntity = declaringEntityOf(meta, base, meta.Properties[i].Name)
	}
	for i := range meta.KeyProperties {
		meta.KeyProperties[i].DeclaringEntity = declaringEntityOf(meta, base, meta.KeyProperties[i].Name)
	}

	if base == nil && len(meta.KeyProperties) == 0 && !meta.Keyless {
		return fmt.Errorf("entity %s must have at least one key property", meta.EntityName)
	}

	resolved[meta.EntityName] = true
	return nil
}

// inheritProperties appends base properties that meta does not already carry.
func inheritProperties(meta, base *EntityMetadata) {
	for _, prop := range base.Properties {
		if meta.FindProperty(prop.Name) == nil {
			meta.Properties = append(meta.Properties, prop)
		}
	}
}

func declaringEntityOf(meta, base *EntityMetadata, name string) string {
	if base != nil {
		if prop := base.FindProperty(name); prop != nil && prop.Name == name {
			return prop.DeclaringEntity
		}
	}
	return meta.EntityName
}

// resolveNavigations checks navigation targets and settles on which side each
// relationship's foreign key lives.
func (m *Model) resolveNavigations(meta *EntityMetadata) error {
	for i := range meta.Properties {
		prop := &meta.Properties[i]
		if !prop.IsNavigationProp {
			continue
		}

		target := m.entities[prop.NavigationTarget]
		if target == nil {
			if prop.navigationByConvention {
				prop.IsNavigationProp = false
				prop.IsComplexType = true
				prop.NavigationTarget = ""
				prop.NavigationTargetTableName = ""
				prop.ForeignKeyColumnName = ""
				prop.NavigationIsArray = false
				continue
			}
			return fmt.Errorf("navigation %s.%s targets unregistered entity %s", meta.EntityName, prop.Name, prop.NavigationTarget)
		}
		prop.NavigationTargetTableName = target.TableName

		if len(prop.ReferentialConstraints) == 0 && !prop.NavigationIsArray {
			// GORM belongs-to convention: Customer -> CustomerID referencing the target key.
			if fk := meta.FindStructuralProperty(prop.Name + "ID"); fk != nil && len(target.KeyProperties) == 1 {
				prop.ReferentialConstraints = map[string]string{fk.Name: target.KeyProperties[0].Name}
			}
		}

		prop.ForeignKeyOnDeclaring = false
		if !prop.NavigationIsArray && len(prop.ReferentialConstraints) > 0 {
			onDeclaring := true
			for dependent := range prop.ReferentialConstraints {
				fk := meta.FindStructuralProperty(dependent)
				if fk == nil {
					onDeclaring = false
					break
				}
				if len(prop.ReferentialConstraints) == 1 {
					prop.ForeignKeyColumnName = fk.ColumnName
				}
			}
			prop.ForeignKeyOnDeclaring = onDeclaring
		}
	}
	return nil
}

// IsFrozen reports whether Freeze has completed.
func (m *Model) IsFrozen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frozen
}

// FindEntityType returns the entity type registered under name, or nil.
func (m *Model) FindEntityType(name string) *EntityMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entities[name]
}

// FindEntityTypeFor returns the entity type registered for a Go type, or nil.
func (m *Model) FindEntityTypeFor(t reflect.Type) *EntityMetadata {
	if t == nil {
		return nil
	}
	t = dereferenceType(t)
	if t.Kind() == reflect.Slice {
		t = dereferenceType(t.Elem())
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byType[t]
}

// FindNavigation returns the navigation called name on entity, or nil.
func (m *Model) FindNavigation(entity *EntityMetadata, name string) *PropertyMetadata {
	if entity == nil {
		return nil
	}
	for current := entity; current != nil; current = m.baseOf(current) {
		for i := range current.Properties {
			prop := &current.Properties[i]
			if prop.IsNavigationProp && prop.Name == name {
				return prop
			}
		}
	}
	return nil
}

// PrimaryKeyProperties returns the ordered key of entity, defined by its root type. The
// result is empty only for keyless entity types.
func (m *Model) PrimaryKeyProperties(entity *EntityMetadata) []PropertyMetadata {
	root := m.RootType(entity)
	if root == nil {
		return nil
	}
	return root.KeyProperties
}

// RootType returns the topmost entity type in entity's hierarchy.
func (m *Model) RootType(entity *EntityMetadata) *EntityMetadata {
	current := entity
	for current != nil {
		base := m.baseOf(current)
		if base == nil {
			return current
		}
		current = base
	}
	return nil
}

// IsCollection reports whether nav is collection-valued.
func (m *Model) IsCollection(nav *PropertyMetadata) bool {
	return nav != nil && nav.NavigationIsArray
}

// DeclaringType returns the entity type that declares nav.
func (m *Model) DeclaringType(nav *PropertyMetadata) *EntityMetadata {
	if nav == nil {
		return nil
	}
	return m.FindEntityType(nav.DeclaringEntity)
}

// NavigationTarget returns the entity type nav leads to.
func (m *Model) NavigationTarget(nav *PropertyMetadata) *EntityMetadata {
	if nav == nil || !nav.IsNavigationProp {
		return nil
	}
	return m.FindEntityType(nav.NavigationTarget)
}

// Entities returns the registered entity types sorted by name.
func (m *Model) Entities() []*EntityMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*EntityMetadata, 0, len(m.entities))
	for _, meta := range m.entities {
		result = append(result, meta)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EntityName < result[j].EntityName
	})
	return result
}

func (m *Model) baseOf(entity *EntityMetadata) *EntityMetadata {
	if entity.BaseTypeName == "" {
		return nil
	}
	return m.FindEntityType(entity.BaseTypeName)
}

package metadata

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the declarative form of a model, used by tools that have no Go structs to
// analyze.
//
//	entities:
//	  - name: Customer
//	    keys: [ID]
//	    properties: [{name: Name}]
//	    navigations:
//	      - {name: Orders, target: Order, collection: true}
//	  - name: Order
//	    keys: [ID]
//	    navigations:
//	      - {name: Customer, target: Customer, foreignKey: CustomerID}
type Document struct {
	Entities []EntityDocument `yaml:"entities"`
}

// EntityDocument declares one entity type.
type EntityDocument struct {
	Name        string               `yaml:"name"`
	Table       string               `yaml:"table,omitempty"`
	Base        string               `yaml:"base,omitempty"`
	Keyless     bool                 `yaml:"keyless,omitempty"`
	Keys        []string             `yaml:"keys,omitempty"`
	Properties  []PropertyDocument   `yaml:"properties,omitempty"`
	Navigations []NavigationDocument `yaml:"navigations,omitempty"`
}

// PropertyDocument declares a structural property.
type PropertyDocument struct {
	Name     string `yaml:"name"`
	Column   string `yaml:"column,omitempty"`
	Required bool   `yaml:"required,omitempty"`
}

// NavigationDocument declares a navigation property.
type NavigationDocument struct {
	Name       string `yaml:"name"`
	Target     string `yaml:"target"`
	Collection bool   `yaml:"collection,omitempty"`
	ForeignKey string `yaml:"foreignKey,omitempty"`
	References string `yaml:"references,omitempty"`
}

// LoadDocument decodes a YAML model document.
func LoadDocument(r io.Reader) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if err == io.EOF {
			return &doc, nil
		}
		return nil, fmt.Errorf("failed to decode model document: %w", err)
	}
	return &doc, nil
}

// LoadModelFile reads a YAML model document from path and builds a frozen model.
func LoadModelFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model %s: %w", path, err)
	}
	defer f.Close()

	doc, err := LoadDocument(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc.Build()
}

// Build registers every declared entity type into a new model and freezes it.
func (d *Document) Build() (*Model, error) {
	model := NewModel()
	for _, entity := range d.Entities {
		meta, err := entity.metadata()
		if err != nil {
			return nil, err
		}
		if err := model.RegisterEntity(meta); err != nil {
			return nil, err
		}
	}
	if err := model.Freeze(); err != nil {
		return nil, err
	}
	return model, nil
}

func (e EntityDocument) metadata() (*EntityMetadata, error) {
	if e.Name == "" {
		return nil, fmt.Errorf("entity declaration without a name")
	}
	if e.Keyless && len(e.Keys) > 0 {
		return nil, fmt.Errorf("entity %s is keyless but declares keys", e.Name)
	}
	if e.Base != "" && len(e.Keys) > 0 {
		return nil, fmt.Errorf("entity %s derives from %s and cannot declare its own keys", e.Name, e.Base)
	}

	table := e.Table
	if table == "" {
		table = toSnakeCase(pluralize(e.Name))
	}
	meta := &EntityMetadata{
		EntityName:   e.Name,
		TableName:    table,
		BaseTypeName: e.Base,
		Keyless:      e.Keyless,
	}

	for _, p := range e.Properties {
		if p.Name == "" {
			return nil, fmt.Errorf("entity %s declares a property without a name", e.Name)
		}
		if meta.FindProperty(p.Name) != nil {
			return nil, fmt.Errorf("entity %s declares property %s twice", e.Name, p.Name)
		}
		meta.Properties = append(meta.Properties, structuralProperty(e.Name, p))
	}

	for _, key := range e.Keys {
		prop := meta.FindProperty(key)
		if prop == nil {
			meta.Properties = append(meta.Properties, structuralProperty(e.Name, PropertyDocument{Name: key}))
			prop = &meta.Properties[len(meta.Properties)-1]
		}
		prop.IsKey = true
		prop.IsRequired = true
		upsertKeyProperty(meta, *prop)
	}

	for _, n := range e.Navigations {
		if n.Name == "" || n.Target == "" {
			return nil, fmt.Errorf("entity %s declares a navigation without a name or target", e.Name)
		}
		if meta.FindProperty(n.Name) != nil {
			return nil, fmt.Errorf("entity %s declares property %s twice", e.Name, n.Name)
		}
		nav := PropertyMetadata{
			Name:              n.Name,
			FieldName:         n.Name,
			ColumnName:        toSnakeCase(n.Name),
			IsNavigationProp:  true,
			NavigationTarget:  n.Target,
			NavigationIsArray: n.Collection,
			DeclaringEntity:   e.Name,
		}
		if n.ForeignKey != "" {
			nav.ForeignKeyColumnName = toSnakeCase(n.ForeignKey)
			references := n.References
			if references == "" {
				references = "ID"
			}
			nav.ReferentialConstraints = map[string]string{strings.TrimSpace(n.ForeignKey): references}
		} else {
			nav.ForeignKeyColumnName = toSnakeCase(n.Name) + "_id"
		}
		meta.Properties = append(meta.Properties, nav)
	}

	return meta, nil
}

func structuralProperty(entity string, p PropertyDocument) PropertyMetadata {
	column := p.Column
	if column == "" {
		column = toSnakeCase(p.Name)
	}
	return PropertyMetadata{
		Name:            p.Name,
		FieldName:       p.Name,
		ColumnName:      column,
		IsRequired:      p.Required,
		DeclaringEntity: entity,
	}
}

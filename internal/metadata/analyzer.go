package metadata

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntityMetadata describes one entity type: its table, properties and primary key.
type EntityMetadata struct {
	EntityType    reflect.Type // nil for entity types declared by a model document
	EntityName    string
	TableName     string             // respects custom TableName() methods
	Properties    []PropertyMetadata // structural, complex and navigation properties
	KeyProperties []PropertyMetadata // ordered; composite keys keep declaration order
	// BaseTypeName names the entity type this one derives from (empty for roots).
	// Set by embedding a registered entity struct anonymously, or by a document's "base".
	BaseTypeName string
	// Keyless marks entity types without identity (document models only).
	Keyless bool
}

// PropertyMetadata describes a property of an entity type.
type PropertyMetadata struct {
	Name       string
	Type       reflect.Type
	FieldName  string
	ColumnName string
	IsKey      bool
	IsRequired bool
	// DeclaringEntity names the entity type that declares the property. Inherited
	// properties keep the name of the base type that declared them.
	DeclaringEntity string
	IsComplexType   bool

	IsNavigationProp          bool
	NavigationTarget          string
	NavigationTargetTableName string
	NavigationIsArray         bool
	ForeignKeyColumnName      string
	// ReferentialConstraints maps dependent properties to principal properties.
	ReferentialConstraints map[string]string
	// ForeignKeyOnDeclaring is true when the dependent properties live on the declaring
	// entity (belongs-to). Computed when the model is frozen.
	ForeignKeyOnDeclaring bool

	navigationByConvention bool
	keyOptOut              bool
}

// fieldTags is the merged reading of a field's `entity` and `gorm` tags. Values from the
// entity tag win.
type fieldTags struct {
	key        bool
	keyOptOut  bool
	required   bool
	embedded   bool
	column     string
	foreignKey string
	references string
	joinTable  string
}

func (t fieldTags) declaresNavigation() bool {
	return t.foreignKey != "" || t.references != "" || t.joinTable != ""
}

// AnalyzeEntity extracts metadata from a Go struct.
func AnalyzeEntity(entity interface{}) (*EntityMetadata, error) {
	if entity == nil {
		return nil, fmt.Errorf("entity must be a struct, got nil")
	}
	entityType := dereferenceType(reflect.TypeOf(entity))
	if entityType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity must be a struct, got %s", entityType.Kind())
	}

	metadata := &EntityMetadata{
		EntityType: entityType,
		EntityName: entityType.Name(),
		TableName:  tableNameOf(entityType),
	}
	if err := analyzeFields(entityType, metadata, metadata.EntityName, true); err != nil {
		return nil, err
	}

	if len(metadata.KeyProperties) == 0 {
		if prop := metadata.FindStructuralProperty("ID"); prop != nil && !prop.keyOptOut {
			prop.IsKey = true
			upsertKeyProperty(metadata, *prop)
		}
	}
	// Derived types take their key from the base type when the model is frozen.
	if len(metadata.KeyProperties) == 0 && metadata.BaseTypeName == "" {
		return nil, fmt.Errorf("entity %s must have at least one key property (use `entity:\"key\"` tag or name field 'ID')", metadata.EntityName)
	}
	return metadata, nil
}

// analyzeFields walks the exported fields of structType. Anonymous struct fields are
// flattened; the first one at the top level becomes the candidate base type and is
// confirmed (or demoted to a mixin) when the model is frozen.
func analyzeFields(structType reflect.Type, metadata *EntityMetadata, declaring string, topLevel bool) error {
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.IsExported() {
			continue
		}

		if field.Anonymous {
			embedded := dereferenceType(field.Type)
			if embedded.Kind() == reflect.Struct && !isScalarStruct(embedded) {
				if topLevel && metadata.BaseTypeName == "" {
					metadata.BaseTypeName = embedded.Name()
				}
				if err := analyzeFields(embedded, metadata, embedded.Name(), false); err != nil {
					return err
				}
				continue
			}
		}

		property, err := analyzeField(field)
		if err != nil {
			return fmt.Errorf("error analyzing field %s: %w", field.Name, err)
		}
		property.DeclaringEntity = declaring
		metadata.Properties = append(metadata.Properties, property)
		if property.IsKey {
			upsertKeyProperty(metadata, property)
		}
	}
	return nil
}

func analyzeField(field reflect.StructField) (PropertyMetadata, error) {
	tags, err := parseTags(field)
	if err != nil {
		return PropertyMetadata{}, err
	}

	property := PropertyMetadata{
		Name:       field.Name,
		Type:       field.Type,
		FieldName:  field.Name,
		ColumnName: tags.column,
		IsKey:      tags.key,
		IsRequired: tags.required || tags.key,
		keyOptOut:  tags.keyOptOut,
	}
	if property.ColumnName == "" {
		property.ColumnName = toSnakeCase(field.Name)
	}

	classifyStructField(&property, field, tags)

	if property.IsKey && property.IsNavigationProp {
		return PropertyMetadata{}, fmt.Errorf("navigation property %s cannot be a key", property.Name)
	}
	return property, nil
}

// classifyStructField marks struct-typed fields as navigations or complex types.
func classifyStructField(property *PropertyMetadata, field reflect.StructField, tags fieldTags) {
	fieldType := field.Type
	isSlice := fieldType.Kind() == reflect.Slice
	if isSlice {
		fieldType = fieldType.Elem()
	}
	fieldType = dereferenceType(fieldType)
	if fieldType.Kind() != reflect.Struct || isScalarStruct(fieldType) {
		return
	}

	switch {
	case tags.declaresNavigation():
	case tags.embedded:
		property.IsComplexType = true
		return
	default:
		// Untagged struct fields are navigations by convention when the target type is
		// registered; the model demotes them otherwise.
		property.navigationByConvention = true
	}

	property.IsNavigationProp = true
	property.NavigationTarget = fieldType.Name()
	property.NavigationTargetTableName = tableNameOf(fieldType)
	property.NavigationIsArray = isSlice

	if tags.foreignKey != "" {
		references := tags.references
		if references == "" {
			references = "ID"
		}
		property.ReferentialConstraints = map[string]string{tags.foreignKey: references}
		property.ForeignKeyColumnName = toSnakeCase(tags.foreignKey)
	} else {
		property.ForeignKeyColumnName = toSnakeCase(field.Name) + "_id"
	}
}

// parseTags reads the comma-separated entity tag and the semicolon-separated gorm tag.
func parseTags(field reflect.StructField) (fieldTags, error) {
	var tags fieldTags

	for _, part := range strings.Split(field.Tag.Get("gorm"), ";") {
		name, value, _ := strings.Cut(strings.TrimSpace(part), ":")
		switch strings.ToLower(name) {
		case "primarykey", "primary_key":
			tags.key = true
		case "not null":
			tags.required = true
		case "embedded":
			tags.embedded = true
		case "column":
			tags.column = value
		case "foreignkey":
			tags.foreignKey = value
		case "references":
			tags.references = value
		case "many2many":
			tags.joinTable = value
		}
	}

	entityTag := field.Tag.Get("entity")
	if entityTag == "" {
		return tags, nil
	}
	for _, part := range strings.Split(entityTag, ",") {
		part = strings.TrimSpace(part)
		name, value, hasValue := strings.Cut(part, ":")
		switch {
		case part == "":
		case part == "key":
			tags.key = true
		case part == "key=false":
			tags.key = false
			tags.keyOptOut = true
		case part == "required":
			tags.required = true
		case part == "embedded":
			tags.embedded = true
		case hasValue && name == "column":
			tags.column = value
		case hasValue && name == "foreignKey":
			tags.foreignKey = value
		case hasValue && name == "references":
			tags.references = value
		case hasValue && name == "many2many":
			tags.joinTable = value
		default:
			return fieldTags{}, fmt.Errorf("unknown entity tag %q on field %s", part, field.Name)
		}
	}
	return tags, nil
}

func upsertKeyProperty(metadata *EntityMetadata, property PropertyMetadata) {
	if metadata == nil || !property.IsKey {
		return
	}

	for i := range metadata.KeyProperties {
		if metadata.KeyProperties[i].Name == property.Name {
			metadata.KeyProperties[i] = property
			return
		}
	}

	metadata.KeyProperties = append(metadata.KeyProperties, property)
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// isScalarStruct reports struct types that map to a single column rather than to an
// entity or complex type.
func isScalarStruct(t reflect.Type) bool {
	switch t {
	case timeType, decimalType, uuidType:
		return true
	}
	return t.Implements(valuerType) || reflect.PointerTo(t).Implements(valuerType)
}

// pluralize creates a simple pluralized form of the entity name
func pluralize(word string) string {
	if word == "" {
		return word
	}

	switch {
	case strings.HasSuffix(word, "y") && len(word) > 1 && !isVowel(rune(word[len(word)-2])):
		// "Category" -> "Categories", but "Key" -> "Keys"
		return word[:len(word)-1] + "ies"
	case strings.HasSuffix(word, "s") || strings.HasSuffix(word, "x") || strings.HasSuffix(word, "z") ||
		strings.HasSuffix(word, "ch") || strings.HasSuffix(word, "sh"):
		return word + "es"
	default:
		return word + "s"
	}
}

// isVowel checks if a rune is a vowel
func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		return true
	default:
		return false
	}
}

// dereferenceType unwraps pointer types to obtain the underlying type.
func dereferenceType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// tableNameOf returns the table GORM would use for entityType, honouring a TableName method.
func tableNameOf(entityType reflect.Type) string {
	entityType = dereferenceType(entityType)
	if tabler, ok := reflect.New(entityType).Interface().(interface{ TableName() string }); ok {
		return tabler.TableName()
	}
	return toSnakeCase(pluralize(entityType.Name()))
}

// toSnakeCase converts a camelCase or PascalCase string to snake_case
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			// For "ProductID", we want "product_id" not "product_i_d"
			prevRune := rune(s[i-1])
			if prevRune >= 'a' && prevRune <= 'z' {
				result.WriteRune('_')
			} else if i < len(s)-1 {
				// Check if next character is lowercase (e.g., "XMLParser" -> "xml_parser")
				nextRune := rune(s[i+1])
				if nextRune >= 'a' && nextRune <= 'z' {
					result.WriteRune('_')
				}
			}
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}

// FindProperty returns the property with the given name, or nil.
func (metadata *EntityMetadata) FindProperty(name string) *PropertyMetadata {
	if metadata == nil {
		return nil
	}
	for i := range metadata.Properties {
		if metadata.Properties[i].Name == name {
			return &metadata.Properties[i]
		}
	}
	return nil
}

// FindNavigationProperty returns the metadata for the requested navigation property.
// Returns nil if the property does not exist or is not a navigation property.
func (metadata *EntityMetadata) FindNavigationProperty(name string) *PropertyMetadata {
	prop := metadata.FindProperty(name)
	if prop != nil && prop.IsNavigationProp {
		return prop
	}
	return nil
}

// FindStructuralProperty returns metadata for structural properties (non-navigation, non-complex types).
// Returns nil if the property does not exist or is not a structural property.
func (metadata *EntityMetadata) FindStructuralProperty(name string) *PropertyMetadata {
	prop := metadata.FindProperty(name)
	if prop != nil && !prop.IsNavigationProp && !prop.IsComplexType {
		return prop
	}
	return nil
}

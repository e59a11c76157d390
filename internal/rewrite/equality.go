package rewrite

import (
	"github.com/nlstn/go-entityquery/internal/expr"
	"github.com/nlstn/go-entityquery/internal/metadata"
)

type comparisonKind int

const (
	kindKey comparisonKind = iota
	kindNull
	kindConstant
	kindCollectionParent
)

// visitEquality visits both operands of a comparison and lowers it when they denote
// entities. When no rule applies the comparison is rebuilt from the visited operands
// with its original operator. The result flows nothing.
func (v *visitor) visitEquality(original expr.Node, isEqual bool, left, right expr.Node, rebuild func(left, right expr.Node) expr.Node) (expr.Node, error) {
	v.t.setCurrentType(nil)
	newLeft, err := v.visit(left)
	if err != nil {
		return nil, err
	}
	leftFlow := v.t.currentType()
	v.t.setCurrentType(nil)

	newRight, err := v.visit(right)
	if err != nil {
		return nil, err
	}
	rightFlow := v.t.currentType()
	v.t.setCurrentType(nil)

	result, kind, err := v.rewriteEquality(isEqual, newLeft, leftFlow, newRight, rightFlow)
	if err != nil {
		return nil, err
	}
	if result != nil {
		v.count(kind)
		return result, nil
	}
	if newLeft == left && newRight == right {
		return original, nil
	}
	return rebuild(newLeft, newRight), nil
}

func (v *visitor) count(kind comparisonKind) {
	switch kind {
	case kindKey:
		v.stats.Key++
	case kindNull:
		v.stats.Null++
	case kindConstant:
		v.stats.Constant++
	case kindCollectionParent:
		v.stats.CollectionParent++
	}
}

// rewriteEquality returns the lowered comparison, or nil when no rule applies.
func (v *visitor) rewriteEquality(isEqual bool, left expr.Node, leftFlow *flow, right expr.Node, rightFlow *flow) (expr.Node, comparisonKind, error) {
	leftNull := expr.IsNullConstant(left)
	rightNull := expr.IsNullConstant(right)

	switch {
	case leftNull && rightNull:
		return expr.Const(isEqual), kindConstant, nil
	case leftNull:
		return v.rewriteNullEquality(isEqual, right, rightFlow, kindNull)
	case rightNull:
		return v.rewriteNullEquality(isEqual, left, leftFlow, kindNull)
	case leftFlow == nil || rightFlow == nil:
		return nil, 0, nil
	}

	if v.model.RootType(leftFlow.entity) != v.model.RootType(rightFlow.entity) {
		return expr.Const(!isEqual), kindConstant, nil
	}
	return v.rewriteEntityEquality(isEqual, left, leftFlow, right, rightFlow, kindKey)
}

// rewriteNullEquality compares the key of the entity operand with null. A collection
// navigation is never null itself, so the comparison moves to the entity declaring it.
func (v *visitor) rewriteNullEquality(isEqual bool, operand expr.Node, f *flow, kind comparisonKind) (expr.Node, comparisonKind, error) {
	if f == nil {
		return nil, 0, nil
	}

	if f.nav != nil && v.model.IsCollection(f.nav) {
		if f.parent == nil {
			return nil, 0, nil
		}
		v.logger.Warn("Collection navigation compared with null; comparing the declaring entity instead. Use Any() to test for an empty collection",
			"navigation", f.nav.Name, "entity", f.nav.DeclaringEntity)
		return v.rewriteNullEquality(isEqual, f.source, f.parent, kindCollectionParent)
	}

	keys, err := v.primaryKey(f.entity)
	if err != nil {
		return nil, 0, err
	}
	if len(keys) > 1 && expr.IsSubquery(operand) {
		return nil, 0, nil
	}

	if len(keys) == 1 {
		return expr.Equality(isEqual, keyAccess(operand, keys[0]), expr.Null()), kind, nil
	}
	nulls := make([]expr.Node, len(keys))
	for i := range nulls {
		nulls[i] = expr.Null()
	}
	return expr.Equality(isEqual, compositeKeyAccess(operand, keys), expr.Tuple(nulls...)), kind, nil
}

// rewriteEntityEquality compares two entities of one hierarchy by key. Collection
// navigations compare by the entities declaring them when both sides read the same
// navigation, and are otherwise never equal.
func (v *visitor) rewriteEntityEquality(isEqual bool, left expr.Node, leftFlow *flow, right expr.Node, rightFlow *flow, kind comparisonKind) (expr.Node, comparisonKind, error) {
	leftCollection := leftFlow.nav != nil && v.model.IsCollection(leftFlow.nav)
	rightCollection := rightFlow.nav != nil && v.model.IsCollection(rightFlow.nav)

	if leftCollection || rightCollection {
		if !v.sameNavigation(leftFlow.nav, rightFlow.nav) {
			return expr.Const(!isEqual), kindConstant, nil
		}
		if leftFlow.parent == nil || rightFlow.parent == nil {
			return nil, 0, nil
		}
		v.logger.Warn("Collection navigations compared by reference; comparing the declaring entities instead",
			"navigation", leftFlow.nav.Name, "entity", leftFlow.nav.DeclaringEntity)
		if v.model.RootType(leftFlow.parent.entity) != v.model.RootType(rightFlow.parent.entity) {
			return expr.Const(!isEqual), kindConstant, nil
		}
		return v.rewriteEntityEquality(isEqual, leftFlow.source, leftFlow.parent, rightFlow.source, rightFlow.parent, kindCollectionParent)
	}

	keys, err := v.primaryKey(leftFlow.entity)
	if err != nil {
		return nil, 0, err
	}
	if len(keys) > 1 && (expr.IsSubquery(left) || expr.IsSubquery(right)) {
		return nil, 0, nil
	}

	if len(keys) == 1 {
		return expr.Equality(isEqual, keyAccess(left, keys[0]), keyAccess(right, keys[0])), kind, nil
	}

	var result expr.Node
	for _, key := range keys {
		part := expr.Equality(isEqual, keyAccess(left, key), keyAccess(right, key))
		switch {
		case result == nil:
			result = part
		case isEqual:
			result = expr.And(result, part)
		default:
			result = expr.Or(result, part)
		}
	}
	return result, kind, nil
}

func (v *visitor) primaryKey(entity *metadata.EntityMetadata) ([]metadata.PropertyMetadata, error) {
	keys := v.model.PrimaryKeyProperties(entity)
	if len(keys) == 0 {
		return nil, newTranslationError(ErrCodeMissingPrimaryKey, "",
			"entity type %s has no primary key and cannot be compared", entity.EntityName)
	}
	return keys, nil
}

// sameNavigation matches navigations by declaring entity and name, so an inherited
// navigation read through a derived type matches the one declared on its base.
func (v *visitor) sameNavigation(a, b *metadata.PropertyMetadata) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Name == b.Name && v.model.DeclaringType(a) == v.model.DeclaringType(b)
}

func keyAccess(target expr.Node, key metadata.PropertyMetadata) expr.Node {
	return &expr.Member{Target: target, Name: key.Name}
}

func compositeKeyAccess(target expr.Node, keys []metadata.PropertyMetadata) *expr.Composite {
	elements := make([]expr.Node, len(keys))
	for i, key := range keys {
		elements[i] = keyAccess(target, key)
	}
	return expr.Tuple(elements...)
}

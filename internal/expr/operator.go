package expr

// Operator is the closed set of method calls the rewriting passes recognise.
// It is resolved once, when a Call is constructed, from the method name.
type Operator int

const (
	// OpUnknown is any method the passes do not recognise.
	OpUnknown Operator = iota

	OpWhere
	OpCast
	OpConcat
	OpDefaultIfEmpty
	OpDistinct
	OpElementAt
	OpElementAtOrDefault
	OpExcept
	OpFirst
	OpFirstOrDefault
	OpLast
	OpLastOrDefault
	OpSingle
	OpSingleOrDefault
	OpIntersect
	OpOfType
	OpOrderBy
	OpOrderByDescending
	OpThenBy
	OpThenByDescending
	OpReverse
	OpSkip
	OpSkipWhile
	OpTake
	OpTakeWhile
	OpUnion

	OpAll
	OpAny
	OpAverage
	OpContains
	OpCount
	OpLongCount
	OpMax
	OpMin
	OpSum

	OpSelect
	OpSelectMany

	OpGroupBy
	OpGroupJoin
	OpJoin
	OpLeftJoin

	// OpEquals is the instance equality method (a.Equals(b)).
	OpEquals
	// OpReferenceEquals is the static reference-equality method (ReferenceEquals(a, b)).
	OpReferenceEquals
	// OpProperty reads a property by name: Property(entity, "Name").
	OpProperty

	opCount
)

var operatorNames = [...]string{
	OpUnknown:            "",
	OpWhere:              "Where",
	OpCast:               "Cast",
	OpConcat:             "Concat",
	OpDefaultIfEmpty:     "DefaultIfEmpty",
	OpDistinct:           "Distinct",
	OpElementAt:          "ElementAt",
	OpElementAtOrDefault: "ElementAtOrDefault",
	OpExcept:             "Except",
	OpFirst:              "First",
	OpFirstOrDefault:     "FirstOrDefault",
	OpLast:               "Last",
	OpLastOrDefault:      "LastOrDefault",
	OpSingle:             "Single",
	OpSingleOrDefault:    "SingleOrDefault",
	OpIntersect:          "Intersect",
	OpOfType:             "OfType",
	OpOrderBy:            "OrderBy",
	OpOrderByDescending:  "OrderByDescending",
	OpThenBy:             "ThenBy",
	OpThenByDescending:   "ThenByDescending",
	OpReverse:            "Reverse",
	OpSkip:               "Skip",
	OpSkipWhile:          "SkipWhile",
	OpTake:               "Take",
	OpTakeWhile:          "TakeWhile",
	OpUnion:              "Union",
	OpAll:                "All",
	OpAny:                "Any",
	OpAverage:            "Average",
	OpContains:           "Contains",
	OpCount:              "Count",
	OpLongCount:          "LongCount",
	OpMax:                "Max",
	OpMin:                "Min",
	OpSum:                "Sum",
	OpSelect:             "Select",
	OpSelectMany:         "SelectMany",
	OpGroupBy:            "GroupBy",
	OpGroupJoin:          "GroupJoin",
	OpJoin:               "Join",
	OpLeftJoin:           "LeftJoin",
	OpEquals:             "Equals",
	OpReferenceEquals:    "ReferenceEquals",
	OpProperty:           "Property",
}

var operatorsByName = func() map[string]Operator {
	m := make(map[string]Operator, len(operatorNames))
	for i, name := range operatorNames {
		if name != "" {
			m[name] = Operator(i)
		}
	}
	return m
}()

// ParseOperator resolves a method name to its Operator, or OpUnknown.
func ParseOperator(name string) Operator {
	if op, ok := operatorsByName[name]; ok {
		return op
	}
	return OpUnknown
}

func (op Operator) String() string {
	if op <= OpUnknown || op >= opCount {
		return "Unknown"
	}
	return operatorNames[op]
}

// IsQueryOperator reports whether op is a query-pipeline operator over a source sequence.
func (op Operator) IsQueryOperator() bool {
	return op >= OpWhere && op <= OpLeftJoin
}

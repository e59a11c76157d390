package observability

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const spanInstanceKey = "entityquery:span"

// RegisterGORMCallbacks instruments read queries issued through db with one client span
// and one query count each.
func RegisterGORMCallbacks(db *gorm.DB, cfg *Config) error {
	if db == nil || cfg == nil || cfg.Tracer() == nil {
		return fmt.Errorf("gorm callbacks require a database and an initialized configuration")
	}

	query := db.Callback().Query()
	if err := query.Before("gorm:query").Register("entityquery:before_query", beforeQuery(cfg)); err != nil {
		return err
	}
	if err := query.After("gorm:query").Register("entityquery:after_query", afterQuery(cfg)); err != nil {
		return err
	}

	row := db.Callback().Row()
	if err := row.Before("gorm:row").Register("entityquery:before_row", beforeQuery(cfg)); err != nil {
		return err
	}
	return row.After("gorm:row").Register("entityquery:after_row", afterQuery(cfg))
}

func beforeQuery(cfg *Config) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		ctx, span := cfg.Tracer().StartDBQuery(tx.Statement.Context, tx.Statement.Table)
		tx.Statement.Context = ctx
		tx.InstanceSet(spanInstanceKey, span)
	}
}

func afterQuery(cfg *Config) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		value, ok := tx.InstanceGet(spanInstanceKey)
		if !ok {
			return
		}
		span, ok := value.(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(
			AttrDBStatement.String(tx.Statement.SQL.String()),
			AttrRowsAffected.Int64(tx.RowsAffected),
		)
		outcome := OutcomeOK
		if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			RecordError(span, tx.Error)
			outcome = OutcomeError
		}
		cfg.Metrics().RecordDBQuery(tx.Statement.Context, outcome)
	}
}

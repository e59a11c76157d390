package entityquery

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Customer struct {
	ID     uint
	Name   string
	Orders []Order
}

type Order struct {
	ID         uint
	Total      float64
	CustomerID *uint
	Customer   *Customer
}

func newTestModel(t *testing.T) *Model {
	t.Helper()
	model := NewModel()
	if err := model.Register(&Customer{}, &Order{}); err != nil {
		t.Fatalf("Failed to register entities: %v", err)
	}
	return model
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(DialectSQLite, ":memory:", &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&Customer{}, &Order{}); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	ada, grace := uint(1), uint(2)
	customers := []Customer{{ID: 1, Name: "Ada"}, {ID: 2, Name: "Grace"}}
	if err := db.Create(&customers).Error; err != nil {
		t.Fatalf("Failed to create customers: %v", err)
	}
	orders := []Order{
		{ID: 1, Total: 10, CustomerID: &ada},
		{ID: 2, Total: 20, CustomerID: &ada},
		{ID: 3, Total: 30, CustomerID: &grace},
		{ID: 4, Total: 40},
	}
	if err := db.Create(&orders).Error; err != nil {
		t.Fatalf("Failed to create orders: %v", err)
	}
	return db
}

func TestRewrite_NavigationNullComparison(t *testing.T) {
	o := Param("o")
	tree := Where(Root("Order"), Fn(Eq(Prop(o, "Customer"), Null()), o))

	result, err := Rewrite(tree, newTestModel(t))
	if err != nil {
		t.Fatalf("Failed to rewrite: %v", err)
	}
	expected := "Query<Order>.Where(o => (o.Customer.ID == null))"
	if result.String() != expected {
		t.Errorf("Expected %q, got %q", expected, result.String())
	}
}

func TestRewriter_StatsAndLogging(t *testing.T) {
	rewriter, err := NewRewriter(newTestModel(t))
	if err != nil {
		t.Fatalf("Failed to create rewriter: %v", err)
	}

	var buf bytes.Buffer
	if err := rewriter.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))); err != nil {
		t.Fatalf("Failed to set logger: %v", err)
	}

	o := Param("o")
	c := Param("c")
	tree := Where(Root("Order"), Fn(And(
		Ne(Prop(o, "Customer"), Null()),
		Any(Root("Customer"), Fn(Eq(c, Prop(o, "Customer")), c)),
	), o))

	_, stats, err := rewriter.Rewrite(context.Background(), tree)
	if err != nil {
		t.Fatalf("Failed to rewrite: %v", err)
	}
	if stats.Null != 1 || stats.Key != 1 || stats.Total() != 2 {
		t.Errorf("Expected one null and one key comparison, got %+v", stats)
	}

	logged := buf.String()
	for _, fragment := range []string{"Rewrote entity comparisons", "pass_id=", "fingerprint=" + Fingerprint(tree), "comparisons=2"} {
		if !strings.Contains(logged, fragment) {
			t.Errorf("Expected log to contain %q, got %q", fragment, logged)
		}
	}

	if err := rewriter.SetLogger(nil); err != nil {
		t.Fatalf("Failed to reset logger: %v", err)
	}
}

func TestRewriter_Errors(t *testing.T) {
	if _, err := NewRewriter(nil); err == nil {
		t.Error("Expected error for nil model")
	}

	rewriter, err := NewRewriterWithConfig(newTestModel(t), Config{MaxDepth: 3})
	if err != nil {
		t.Fatalf("Failed to create rewriter: %v", err)
	}

	o := Param("o")
	deep := Where(Root("Order"), Fn(Eq(Prop(o, "Customer", "ID"), Const(1)), o))
	_, _, err = rewriter.Rewrite(context.Background(), deep)
	var te *TranslationError
	if !errors.As(err, &te) || te.Code != ErrCodeMaxDepthExceeded {
		t.Fatalf("Expected %s, got %v", ErrCodeMaxDepthExceeded, err)
	}
	if !IsUnsupportedQuery(err) || IsMetadataError(err) {
		t.Errorf("Expected depth error to be an unsupported query, got %v", err)
	}

	a, b := Param("a"), Param("b")
	if _, err := Rewrite(Where(Root("Order"), Fn(True(), a, b)), newTestModel(t)); !IsUnsupportedQuery(err) {
		t.Errorf("Expected unsupported query shape, got %v", err)
	}
}

func TestModel_Registration(t *testing.T) {
	model := newTestModel(t)
	if err := model.Freeze(); err != nil {
		t.Fatalf("Failed to freeze: %v", err)
	}
	names := model.EntityNames()
	if len(names) != 2 || names[0] != "Customer" || names[1] != "Order" {
		t.Errorf("Expected [Customer Order], got %v", names)
	}
	if model.Metadata().FindEntityType("Order") == nil {
		t.Error("Expected Order metadata")
	}
	if err := model.Register(&struct{ ID int }{}); err == nil {
		t.Error("Expected registration on a frozen model to fail")
	}
}

func TestLoadModelAndQuery(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.yaml")
	queryPath := filepath.Join(dir, "query.yaml")

	modelDoc := `
entities:
  - name: Customer
    keys: [ID]
    navigations:
      - {name: Orders, target: Order, collection: true}
  - name: Order
    keys: [ID]
    properties: [{name: CustomerID}]
    navigations:
      - {name: Customer, target: Customer, foreignKey: CustomerID}
`
	if err := os.WriteFile(modelPath, []byte(modelDoc), 0o600); err != nil {
		t.Fatalf("Failed to write model: %v", err)
	}

	o := Param("o")
	data, err := MarshalQuery(Where(Root("Customer"), Fn(Eq(Prop(o, "Orders"), Null()), o)))
	if err != nil {
		t.Fatalf("Failed to marshal query: %v", err)
	}
	if err := os.WriteFile(queryPath, data, 0o600); err != nil {
		t.Fatalf("Failed to write query: %v", err)
	}

	model, err := LoadModel(modelPath)
	if err != nil {
		t.Fatalf("Failed to load model: %v", err)
	}
	tree, err := LoadQuery(queryPath)
	if err != nil {
		t.Fatalf("Failed to load query: %v", err)
	}

	result, err := Rewrite(tree, model)
	if err != nil {
		t.Fatalf("Failed to rewrite: %v", err)
	}
	expected := "Query<Customer>.Where(o => (o.ID == null))"
	if result.String() != expected {
		t.Errorf("Expected %q, got %q", expected, result.String())
	}

	roundTrip, err := UnmarshalQuery(data)
	if err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if Fingerprint(roundTrip) != Fingerprint(tree) {
		t.Error("Expected decoded queries to share a fingerprint")
	}
}

func TestRewriter_Find(t *testing.T) {
	db := setupTestDB(t)
	rewriter, err := NewRewriter(newTestModel(t))
	if err != nil {
		t.Fatalf("Failed to create rewriter: %v", err)
	}

	o := Param("o")
	ada := TypedConst(&Customer{ID: 1}, "Customer")

	var orders []Order
	tree := OrderBy(Where(Root("Order"), Fn(Eq(Prop(o, "Customer"), ada), o)), Fn(Prop(o, "Total"), o))
	stats, err := rewriter.Find(context.Background(), db, tree, &orders)
	if err != nil {
		t.Fatalf("Failed to find: %v", err)
	}
	if stats.Key != 1 {
		t.Errorf("Expected one key comparison, got %+v", stats)
	}
	if len(orders) != 2 || orders[0].ID != 1 || orders[1].ID != 2 {
		t.Errorf("Expected orders 1 and 2, got %+v", orders)
	}

	var count int64
	if _, err := rewriter.Find(context.Background(), db, Count(Where(Root("Order"), Fn(Eq(Null(), Prop(o, "Customer")), o))), &count); err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 order without customer, got %d", count)
	}

	var wrong []Order
	if _, err := rewriter.Find(context.Background(), db, Count(Root("Order")), &wrong); err == nil {
		t.Error("Expected error for a count into a slice")
	}

	_, err = rewriter.Find(context.Background(), db, Select(Root("Order"), Fn(Prop(o, "Total"), o)), &orders)
	if !errors.Is(err, ErrUnsupportedPipeline) {
		t.Errorf("Expected ErrUnsupportedPipeline, got %v", err)
	}

	sql, err := rewriter.ToSQL(context.Background(), db, tree)
	if err != nil {
		t.Fatalf("Failed to render SQL: %v", err)
	}
	if !strings.Contains(sql, "`orders`.`customer_id` = 1") {
		t.Errorf("Expected key comparison on the foreign key column, got %q", sql)
	}
}

func TestRewriter_RenderSQL(t *testing.T) {
	db := setupTestDB(t)
	rewriter, err := NewRewriter(newTestModel(t))
	if err != nil {
		t.Fatalf("Failed to create rewriter: %v", err)
	}
	var logs bytes.Buffer
	if err := rewriter.SetLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))); err != nil {
		t.Fatalf("Failed to set logger: %v", err)
	}

	o := Param("o")
	tree := Where(Root("Order"), Fn(Eq(Prop(o, "Customer"), Null()), o))
	rewritten, _, err := rewriter.Rewrite(context.Background(), tree)
	if err != nil {
		t.Fatalf("Failed to rewrite: %v", err)
	}
	passes := strings.Count(logs.String(), "Rewrote entity comparisons")

	sql, err := rewriter.RenderSQL(db, rewritten)
	if err != nil {
		t.Fatalf("Failed to render SQL: %v", err)
	}
	if !strings.Contains(sql, "`orders`.`customer_id` IS NULL") {
		t.Errorf("Expected a null check on the foreign key column, got %q", sql)
	}
	if got := strings.Count(logs.String(), "Rewrote entity comparisons"); got != passes {
		t.Errorf("Expected no further rewrite pass, got %d passes", got)
	}

	if _, err := rewriter.RenderSQL(db, tree); !errors.Is(err, ErrUnsupportedPipeline) {
		t.Errorf("Expected ErrUnsupportedPipeline for a tree that was not rewritten, got %v", err)
	}
}

func TestRewriter_FindWithScope(t *testing.T) {
	db := setupTestDB(t)
	rewriter, err := NewRewriter(newTestModel(t))
	if err != nil {
		t.Fatalf("Failed to create rewriter: %v", err)
	}

	o := Param("o")
	tree := Where(Root("Order"), Fn(Ne(Prop(o, "Customer"), Null()), o))

	var orders []Order
	if _, err := rewriter.Find(context.Background(), db, tree, &orders, WithScope("total > ?", 15)); err != nil {
		t.Fatalf("Failed to find: %v", err)
	}
	if len(orders) != 2 {
		t.Errorf("Expected orders 2 and 3, got %+v", orders)
	}

	if _, err := rewriter.Find(context.Background(), db, tree, &orders, WithScope("total > ?")); err == nil {
		t.Error("Expected error for a scope without its argument")
	}
}

func TestOpen_UnsupportedDialect(t *testing.T) {
	if _, err := Open("oracle", "dsn", nil); err == nil {
		t.Error("Expected error for unsupported dialect")
	}
}

// recordingProvider records the names of started spans.
type recordingProvider struct {
	tracenoop.TracerProvider
	mu    sync.Mutex
	names []string
}

func (p *recordingProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return recordingTracer{Tracer: p.TracerProvider.Tracer(name, opts...).(tracenoop.Tracer), provider: p}
}

type recordingTracer struct {
	tracenoop.Tracer
	provider *recordingProvider
}

func (t recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	t.provider.mu.Lock()
	t.provider.names = append(t.provider.names, name)
	t.provider.mu.Unlock()
	return t.Tracer.Start(ctx, name, opts...)
}

func TestRewriter_Observability(t *testing.T) {
	db := setupTestDB(t)
	rewriter, err := NewRewriter(newTestModel(t))
	if err != nil {
		t.Fatalf("Failed to create rewriter: %v", err)
	}

	provider := &recordingProvider{}
	if err := rewriter.SetObservability(ObservabilityConfig{
		TracerProvider:          provider,
		ServiceName:             "orders",
		EnableDetailedDBTracing: true,
	}); err != nil {
		t.Fatalf("Failed to set observability: %v", err)
	}
	if rewriter.Observability().ServiceName() != "orders" {
		t.Errorf("Expected service name orders, got %q", rewriter.Observability().ServiceName())
	}
	if err := rewriter.InstrumentDB(db); err != nil {
		t.Fatalf("Failed to instrument database: %v", err)
	}

	o := Param("o")
	var orders []Order
	if _, err := rewriter.Find(context.Background(), db, Where(Root("Order"), Fn(Ne(Prop(o, "Customer"), Null()), o)), &orders); err != nil {
		t.Fatalf("Failed to find: %v", err)
	}
	if len(orders) != 3 {
		t.Errorf("Expected 3 orders, got %d", len(orders))
	}

	provider.mu.Lock()
	names := append([]string(nil), provider.names...)
	provider.mu.Unlock()
	expected := []string{"entityquery.rewrite", "entityquery.find", "entityquery.db.query"}
	if len(names) != len(expected) {
		t.Fatalf("Expected spans %v, got %v", expected, names)
	}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("Expected span %d to be %q, got %q", i, expected[i], names[i])
		}
	}
}

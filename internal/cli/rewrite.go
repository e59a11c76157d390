package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/nlstn/go-entityquery"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// RewriteResult is the JSON form of one rewrite.
type RewriteResult struct {
	Fingerprint string       `json:"fingerprint"`
	Before      string       `json:"before"`
	After       string       `json:"after"`
	Changed     bool         `json:"changed"`
	Comparisons StatsSummary `json:"comparisons"`
	SQL         string       `json:"sql,omitempty"`
	Query       string       `json:"query,omitempty"`
}

// StatsSummary counts rewritten comparisons by rule.
type StatsSummary struct {
	Key              int `json:"key"`
	Null             int `json:"null"`
	Constant         int `json:"constant"`
	CollectionParent int `json:"collection_parent"`
	Total            int `json:"total"`
}

type rewriteOptions struct {
	sql  bool
	emit bool
}

// NewRewriteCommand creates the rewrite command.
func NewRewriteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &rewriteOptions{}

	cmd := &cobra.Command{
		Use:   "rewrite <query.yaml>",
		Short: "Rewrite the entity comparisons of a query document",
		Long: `Rewrite loads a query document, lowers its entity comparisons to key comparisons
and prints the tree before and after.

With --sql the rewritten pipeline is also rendered as the SQLite statement it would run.
With --emit the rewritten tree is printed as a query document.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRewrite(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.sql, "sql", false, "render the rewritten query as SQL")
	cmd.Flags().BoolVar(&opts.emit, "emit", false, "print the rewritten query document")

	return cmd
}

func runRewrite(rootOpts *RootOptions, opts *rewriteOptions, queryPath string, cmd *cobra.Command) error {
	modelPath, err := requireModel(rootOpts)
	if err != nil {
		return err
	}
	logger := rootOpts.Logger

	model, err := entityquery.LoadModel(modelPath)
	if err != nil {
		return fmt.Errorf("loading model %s: %w", modelPath, err)
	}
	tree, err := entityquery.LoadQuery(queryPath)
	if err != nil {
		return fmt.Errorf("loading query %s: %w", queryPath, err)
	}

	rewriter, err := entityquery.NewRewriterWithConfig(model, entityquery.Config{MaxDepth: rootOpts.Config.MaxDepth})
	if err != nil {
		return err
	}
	if err := rewriter.SetLogger(logger); err != nil {
		return err
	}

	ctx := cmd.Context()
	rewritten, stats, err := rewriter.Rewrite(ctx, tree)
	if err != nil {
		return fmt.Errorf("rewriting %s: %w", queryPath, err)
	}

	result := RewriteResult{
		Fingerprint: entityquery.Fingerprint(tree),
		Before:      tree.String(),
		After:       rewritten.String(),
		Changed:     rewritten != tree,
		Comparisons: StatsSummary{
			Key:              stats.Key,
			Null:             stats.Null,
			Constant:         stats.Constant,
			CollectionParent: stats.CollectionParent,
			Total:            stats.Total(),
		},
	}

	if opts.sql {
		db, err := entityquery.Open(entityquery.DialectSQLite, ":memory:", &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		result.SQL, err = rewriter.RenderSQL(db, rewritten)
		if err != nil {
			return fmt.Errorf("rendering SQL: %w", err)
		}
	}

	if opts.emit {
		data, err := entityquery.MarshalQuery(rewritten)
		if err != nil {
			return fmt.Errorf("encoding rewritten query: %w", err)
		}
		result.Query = string(data)
	}

	formatter := newFormatter(rootOpts, cmd.OutOrStdout())
	if formatter.JSON() {
		return formatter.WriteJSON(result)
	}

	formatter.Field("before", result.Before, color.FgYellow)
	if result.Changed {
		formatter.Field("after", result.After, color.FgGreen)
	} else {
		formatter.Field("after", "(unchanged)", color.Faint)
	}
	formatter.Field("fingerprint", result.Fingerprint)
	formatter.Field("comparisons", fmt.Sprintf("key=%d null=%d constant=%d collection_parent=%d",
		stats.Key, stats.Null, stats.Constant, stats.CollectionParent))
	if result.SQL != "" {
		formatter.Field("sql", result.SQL, color.FgCyan)
	}
	if result.Query != "" {
		fmt.Fprintln(formatter.Writer)
		fmt.Fprint(formatter.Writer, result.Query)
	}
	return nil
}

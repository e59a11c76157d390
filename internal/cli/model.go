package cli

import (
	"fmt"
	"strings"

	"github.com/nlstn/go-entityquery"
	"github.com/nlstn/go-entityquery/internal/metadata"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

// EntitySummary describes one entity type of a model.
type EntitySummary struct {
	Name        string   `json:"name"`
	Table       string   `json:"table"`
	Keys        []string `json:"keys,omitempty"`
	Base        string   `json:"base,omitempty"`
	Keyless     bool     `json:"keyless,omitempty"`
	Navigations []string `json:"navigations,omitempty"`
}

// NewModelCommand creates the model command.
func NewModelCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "model",
		Short: "List the entity types of a model document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModel(rootOpts, cmd)
		},
	}
}

func runModel(rootOpts *RootOptions, cmd *cobra.Command) error {
	modelPath, err := requireModel(rootOpts)
	if err != nil {
		return err
	}
	model, err := entityquery.LoadModel(modelPath)
	if err != nil {
		return fmt.Errorf("loading model %s: %w", modelPath, err)
	}

	summaries := summarizeModel(model.Metadata())
	rootOpts.Logger.Debug("Loaded model", "path", modelPath, "entities", len(summaries))

	formatter := newFormatter(rootOpts, cmd.OutOrStdout())
	if formatter.JSON() {
		return formatter.WriteJSON(summaries)
	}

	var out strings.Builder
	table := tablewriter.NewTable(&out,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"Entity", "Table", "Keys", "Base", "Navigations"})
	for _, s := range summaries {
		keys := strings.Join(s.Keys, ", ")
		if s.Keyless {
			keys = "(keyless)"
		}
		if err := table.Append([]string{s.Name, s.Table, keys, s.Base, strings.Join(s.Navigations, ", ")}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprint(formatter.Writer, out.String())
	fmt.Fprintf(formatter.Writer, "\n_%d entity types_\n", len(summaries))
	return nil
}

func summarizeModel(model *metadata.Model) []EntitySummary {
	entities := model.Entities()
	summaries := make([]EntitySummary, 0, len(entities))
	for _, entity := range entities {
		s := EntitySummary{
			Name:    entity.EntityName,
			Table:   entity.TableName,
			Base:    entity.BaseTypeName,
			Keyless: entity.Keyless,
		}
		for _, key := range model.PrimaryKeyProperties(entity) {
			s.Keys = append(s.Keys, key.Name)
		}
		for _, prop := range entity.Properties {
			if !prop.IsNavigationProp {
				continue
			}
			nav := prop.Name + " -> " + prop.NavigationTarget
			if prop.NavigationIsArray {
				nav += "[]"
			}
			s.Navigations = append(s.Navigations, nav)
		}
		summaries = append(summaries, s)
	}
	return summaries
}

package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// addHelpCommands adds documentation commands.
func addHelpCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newExamplesCmd())
}

// workflow is a titled list of commands; text after '#' is a comment.
type workflow struct {
	title    string
	commands []string
}

var workflows = []workflow{
	{
		title: "First Run",
		commands: []string{
			"trader config init              # Write config.toml and .env.example",
			"trader config show              # Review risk and strategy settings",
			"trader generate                 # Write sample_data.csv",
		},
	},
	{
		title: "Inspect the Latest Bar",
		commands: []string{
			"trader indicators sample_data.csv   # Latest indicator values",
			"trader analyze sample_data.csv      # Regime, snapshot and order plan",
		},
	},
	{
		title: "Backtest",
		commands: []string{
			"trader backtest sample_data.csv                    # Replay with config defaults",
			"trader backtest sample_data.csv --fee 0.001        # Override the fee rate",
			"trader backtest sample_data.csv --staged-exits     # Scale out of winners",
			"trader backtest sample_data.csv --save             # Keep the run in SQLite",
		},
	},
	{
		title: "Tune",
		commands: []string{
			"trader optimize sample_data.csv --workers 8   # Fee sweep and market summary",
			"trader history                                # Saved runs, newest first",
			"trader history show <run-id>                  # One run with its trades",
		},
	},
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "examples",
		Short:       "Show common workflow examples",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if output.IsJSON() {
				out := make(map[string][]string, len(workflows))
				for _, w := range workflows {
					out[w.title] = w.commands
				}
				return output.JSON(out)
			}

			output.Bold("Common Workflow Examples")
			output.Println()
			for _, w := range workflows {
				output.Bold(w.title)
				for _, c := range w.commands {
					parts := strings.SplitN(c, "#", 2)
					if len(parts) == 2 {
						output.Printf("  %s %s\n", output.Cyan(strings.TrimSpace(parts[0])), output.DimText(strings.TrimSpace(parts[1])))
					} else {
						output.Printf("  %s\n", output.Cyan(c))
					}
				}
				output.Println()
			}
			return nil
		},
	}
}

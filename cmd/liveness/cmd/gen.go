package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/No1412lee/il2cpp-plus/internal/snapshot"
)

var genOpts snapshot.GenerateOptions
var genOutput string

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a synthetic heap snapshot",
	Long: `Generate a reproducible random snapshot: a graph of Game.Node objects and
Game.Pair struct arrays, rooted in the statics of Game.Owner<n> classes.
About a tenth of the objects are unreachable.

The output format and compression follow the file name, e.g. heap.json.zst.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		doc := snapshot.Generate(genOpts)
		if err := snapshot.SaveFile(genOutput, doc); err != nil {
			return err
		}
		GetLogger().Info("wrote %d classes and %d objects to %s", len(doc.Classes), len(doc.Objects), genOutput)
		fmt.Fprintln(cmd.OutOrStdout(), genOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(genCmd)

	f := genCmd.Flags()
	f.StringVarP(&genOutput, "output", "o", "heap.yaml", "Snapshot file to write")
	f.IntVar(&genOpts.Objects, "objects", 1000, "Number of objects")
	f.IntVar(&genOpts.Owners, "owners", 16, "Number of classes holding statics")
	f.IntVar(&genOpts.ArrayEvery, "array-every", 50, "Make every n-th object a struct array")
	f.IntVar(&genOpts.ArrayLength, "array-length", 32, "Length of struct arrays")
	f.Uint64Var(&genOpts.Seed, "seed", 1, "Random seed")
}

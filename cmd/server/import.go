package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sakif/birthday-reminder/internal/auth"
	"github.com/sakif/birthday-reminder/internal/legacy"
	"github.com/sakif/birthday-reminder/internal/server"
)

var importCmd = &cobra.Command{
	Use:   "import <birthday_db.json>",
	Short: "Import a legacy plaintext birthday database",
	Long: `Reads the old birthday_db.json format, hashes every password and adds the
accounts to the configured store. Existing accounts are left untouched and
subscriptions to unknown users are dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, logger, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	store, err := server.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	importer := legacy.NewImporter(store, auth.NewPasswordService(), logger)
	report, err := importer.Import(cmd.Context(), f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "imported %d, already present %d, rejected %d, dropped subscriptions %d\n",
		len(report.Imported), len(report.Existing), len(report.Invalid), report.DroppedSubscriptions)

	rejected := make([]string, 0, len(report.Invalid))
	for name := range report.Invalid {
		rejected = append(rejected, name)
	}
	sort.Strings(rejected)
	for _, name := range rejected {
		fmt.Fprintf(out, "  rejected %s: %s\n", name, report.Invalid[name])
	}
	return nil
}

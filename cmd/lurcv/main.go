// Command lurcv evaluates land-use regression strategies by repeated k-fold
// cross validation.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/lurcv/pkg/log"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lurcv",
		Short: "Repeated k-fold evaluation of land-use regression models",
		Long: `lurcv runs repeated, parallel k-fold cross validation of a land-use regression
strategy (forward selection, random forest search or an external GAM) and reports
the fold metrics.`,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newRunCmd())

	if err := rootCmd.Execute(); err != nil {
		log.GetLogger().Error("lurcv failed", err)
		os.Exit(1)
	}
}

package cmd

import (
	"github.com/spf13/cobra"
)

var resumeAll bool

var resumeCmd = &cobra.Command{
	Use:   "resume <ID>",
	Short: "Resume a paused NZB",
	Long:  `Resume an NZB by ID, or every paused NZB with --all.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if !resumeAll && len(args) == 0 {
			fatalf("Error: provide an NZB ID or use --all")
		}
		runPauseResume(args, resumeAll, "resume", "resume-all")
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().BoolVar(&resumeAll, "all", false, "resume every paused NZB")
}

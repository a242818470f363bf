package main

import (
	"github.com/spf13/cobra"
)

var (
	dirFlag       string
	configDirFlag string
	formatFlag    string
	yesFlag       bool
	filesFlag     []string
)

var rootCmd = &cobra.Command{
	Use:   "codepair",
	Short: "codepair - retrieval-backed AI pair programming",
	Long: `codepair indexes the files of a working directory, sends the ones
relevant to a request to a language model together with the request, and
applies the edits the model answers with after you confirm each file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dirFlag, "dir", "C", "", "Working directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "Directory holding config.json (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "", "Edit format: unified, codeblock or search-replace")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "Apply edits without asking")
	rootCmd.PersistentFlags().StringSliceVarP(&filesFlag, "file", "f", nil, "Only index these files and always include them as context")

	rootCmd.AddCommand(askCmd, chatCmd, indexCmd, applyCmd, configCmd)
}

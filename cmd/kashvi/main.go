// Package main provides the kashvi CLI. It carries a single store-focused
// command: demo scripts a short coherence-engine sequence against the
// example task fixture so a reader can eyeball fan-out by hand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kashvi",
	Short: "Kashvi store CLI",
	Long:  "Kashvi wraps a reactive, normalized entity cache. Use this CLI to exercise it by hand.",
}

func init() {
	rootCmd.AddCommand(storeCmd)
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and exercise the entity store",
}

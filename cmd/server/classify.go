package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/tumorscan/internal/classifier"
	"github.com/Brownie44l1/tumorscan/internal/logger"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <image.jpg>",
	Short: "Classify one scan and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Must(cfg.Environment)
		defer log.Sync()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		pipeline, m, err := loadPipeline(log)
		if err != nil {
			return err
		}
		defer m.Close()

		out := cmd.OutOrStdout()
		result, err := pipeline.Classify(cmd.Context(), raw)
		if err != nil {
			fmt.Fprintln(out, classifier.MessageError)
			return err
		}

		fmt.Fprintln(out, result.Message())
		return nil
	},
}

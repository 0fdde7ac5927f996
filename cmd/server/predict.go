package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/formtagger-api/internal/imaging"
	"github.com/Brownie44l1/formtagger-api/internal/model"
)

func newPredictCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict <image>",
		Short: "Label a local image and print the predictions as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(false)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}
			bmp, err := imaging.Decode(data)
			if err != nil {
				return err
			}

			engine, err := loadEngine(cfg)
			if err != nil {
				return err
			}
			defer engine.Close()

			predictions, err := model.Predict(engine, bmp)
			if err != nil {
				return fmt.Errorf("prediction failed: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(model.PredictionResponse{Predictions: predictions})
		},
	}

	return cmd
}

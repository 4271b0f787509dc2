package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Brownie44l1/tumorscan/internal/classifier"
	"github.com/Brownie44l1/tumorscan/internal/config"
	"github.com/Brownie44l1/tumorscan/internal/imaging"
	"github.com/Brownie44l1/tumorscan/internal/model"
)

var (
	v   = viper.New()
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "tumorscan",
	Short:        "Brain tumor prediction demo",
	Long:         "Serves a single page that classifies an uploaded brain scan with a pre-trained ONNX model.",
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}

		configFile, _ := cmd.Flags().GetString("config-file")
		loaded, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	pflags := rootCmd.PersistentFlags()
	pflags.String("config-file", "", "Path to a YAML config file")
	pflags.String("env-file", "", "Path to an env file (default ./.env if present)")
	pflags.String("environment", config.DefaultEnvironment, "Environment: dev, prod or test")
	pflags.String("model-dir", config.DefaultModelDir, "Directory holding model.onnx and metadata.json")
	pflags.String("onnxruntime-lib", "", "Path to the onnxruntime shared library")
	pflags.Int64("max-image-mpx", config.DefaultMaxImageMpx, "Largest accepted image size in megapixels")
	pflags.String("resize-method", "", fmt.Sprintf("Resize method, overrides model metadata (%s)", strings.Join(imaging.Methods(), ", ")))

	v.BindPFlag("environment", pflags.Lookup("environment"))
	v.BindPFlag("model_dir", pflags.Lookup("model-dir"))
	v.BindPFlag("onnxruntime_lib", pflags.Lookup("onnxruntime-lib"))
	v.BindPFlag("resize_method", pflags.Lookup("resize-method"))
	v.BindPFlag("max_image_mpx", pflags.Lookup("max-image-mpx"))

	rootCmd.AddCommand(serveCmd, classifyCmd)
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// loadPipeline loads the model artifact once and builds the pipeline around
// it. The caller owns the returned model and must Close it.
func loadPipeline(log *zap.Logger) (*classifier.Pipeline, *model.OnnxModel, error) {
	m, err := model.Load(cfg.ModelDir, model.Options{
		SharedLibraryPath: cfg.OnnxRuntimeLib,
		Logger:            log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load model from %s: %w", cfg.ModelDir, err)
	}

	opts, err := classifier.OptionsFromMetadata(m.Metadata, cfg.ResizeMethod, log)
	if err != nil {
		m.Close()
		return nil, nil, err
	}
	opts.MaxPixels = cfg.MaxImagePixels()

	p, err := classifier.NewPipeline(m, opts)
	if err != nil {
		m.Close()
		return nil, nil, err
	}

	return p, m, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

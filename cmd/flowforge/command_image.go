package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sourceplane/flowforge/internal/imagecache"
	"github.com/spf13/cobra"
)

var (
	imageSrcDir       string
	imageManifest     string
	imageBase         string
	imageRepo         string
	imageName         string
	imageForce        bool
	imagePreinstalled bool

	imageServing       bool
	imagePredictScript string
	imagePredictClass  string
	imageServingPort   int
)

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Build and push a content-addressed base image",
	Long:  "Fingerprint the source tree, reuse a previously published image when the fingerprint matches, otherwise build and push one.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return buildImage(cmd)
	},
}

func registerImageCommand(root *cobra.Command) {
	root.AddCommand(imageCmd)

	imageCmd.Flags().StringVar(&imageSrcDir, "src", ".", "Source directory fed into the fingerprint and build context")
	imageCmd.Flags().StringVar(&imageManifest, "manifest", "", "Dependency manifest path relative to --src (optional)")
	imageCmd.Flags().StringVar(&imageBase, "base", "python:3.10-slim-bookworm", "Base image for the FROM instruction")
	imageCmd.Flags().StringVar(&imageRepo, "repo", "", "Target registry repository URI")
	imageCmd.Flags().StringVar(&imageName, "name", "", "Artifact name within the repository")
	imageCmd.Flags().BoolVar(&imageForce, "force", false, "Skip the registry check and always rebuild")
	imageCmd.Flags().BoolVar(&imagePreinstalled, "preinstalled", false, "Base image already carries the manifest dependencies")

	imageCmd.Flags().BoolVar(&imageServing, "serving", false, "Build a serving image instead of a component base image")
	imageCmd.Flags().StringVar(&imagePredictScript, "prediction-script", "", "Predictor module file within --src (serving only)")
	imageCmd.Flags().StringVar(&imagePredictClass, "prediction-class", "", "Predictor class name (serving only)")
	imageCmd.Flags().IntVar(&imageServingPort, "port", 8080, "Serving port (serving only)")

	imageCmd.MarkFlagRequired("repo")
	imageCmd.MarkFlagRequired("name")
}

func buildImage(cmd *cobra.Command) error {
	cfg := imagecache.Config{
		SrcDir:                   imageSrcDir,
		ManifestFile:             imageManifest,
		BaseImage:                imageBase,
		Repository:               imageRepo,
		ImageName:                imageName,
		DependenciesPreinstalled: imagePreinstalled,
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	registry := &imagecache.DockerCLI{Log: log}

	var prepare imagecache.PrepareContext
	var render imagecache.RenderInstructions
	if imageServing {
		if imagePredictScript == "" || imagePredictClass == "" {
			return fmt.Errorf("--serving requires --prediction-script and --prediction-class")
		}
		prepare, render = imagecache.ServingStrategies(imagecache.ServingOptions{
			PredictionScript: imagePredictScript,
			PredictionClass:  imagePredictClass,
			Port:             imageServingPort,
		})
	}

	builder := imagecache.NewBuilder(cfg, registry, prepare, render, log)
	ref, err := builder.BuildAndPush(cmd.Context(), imageForce)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Image ready: %s\n", ref)
	return nil
}

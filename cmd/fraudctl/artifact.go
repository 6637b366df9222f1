package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dvloznov/fraud-scoring/internal/gcs"
	"github.com/dvloznov/fraud-scoring/internal/inference"
	"github.com/spf13/cobra"
)

func artifactCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Inspect and publish model artifacts",
	}

	cmd.AddCommand(artifactInspectCmd(a))
	cmd.AddCommand(artifactPublishCmd(a))

	return cmd
}

func artifactInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [path|gs://bucket/object]",
		Short: "Validate an artifact and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := inference.ReadSource(cmd.Context(), args[0], gcs.NewGCSStorageService(a.cfg.GCP.ClientOptions()...))
			if err != nil {
				return err
			}

			art, err := inference.DecodeArtifact(args[0], raw)
			if err != nil {
				return err
			}

			printArtifact(cmd, args[0], art, inference.Fingerprint(raw))
			return nil
		},
	}
}

func artifactPublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish [file] [gs://bucket/object]",
		Short: "Validate a local artifact and upload it to GCS",
		Long: `Uploads only artifacts that decode and validate. Published objects are
immutable: publishing to an existing object fails, so bump the version in
the object name instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			file, dest := args[0], args[1]

			if !gcs.IsGCSURI(dest) {
				return fmt.Errorf("destination must be a gs:// URI, got %q", dest)
			}

			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			art, err := decodeForPublish(file, dest, raw)
			if err != nil {
				return err
			}

			if err := gcs.NewGCSStorageService(a.cfg.GCP.ClientOptions()...).UploadFile(ctx, dest, file); err != nil {
				return err
			}

			a.log.Info().
				Str("file", file).
				Str("gcs_uri", dest).
				Str("fingerprint", inference.Fingerprint(raw)).
				Msg("Artifact published")
			printArtifact(cmd, dest, art, inference.Fingerprint(raw))
			return nil
		},
	}
}

// decodeForPublish validates raw both as the local file and under the object
// name the loader will later read it by, which picks the decoder from the
// extension.
func decodeForPublish(file, dest string, raw []byte) (*inference.Artifact, error) {
	art, err := inference.DecodeArtifact(file, raw)
	if err != nil {
		return nil, fmt.Errorf("refusing to publish invalid artifact: %w", err)
	}

	object := gcs.ExtractFilenameFromGCSURI(dest)
	if _, err := inference.DecodeArtifact(object, raw); err != nil {
		return nil, fmt.Errorf("artifact %s would not load as %s: %w", file, object, err)
	}
	return art, nil
}

func printArtifact(cmd *cobra.Command, source string, art *inference.Artifact, fingerprint string) {
	out := cmd.OutOrStdout()

	version := art.Version
	if version == "" {
		version = fingerprint + " (fingerprint)"
	}

	fmt.Fprintf(out, "Source:       %s\n", source)
	fmt.Fprintf(out, "Version:      %s\n", version)
	fmt.Fprintf(out, "Fingerprint:  %s\n", fingerprint)
	fmt.Fprintf(out, "Classifier:   %s\n", art.Classifier.Type)
	if art.Classifier.Type == inference.KindTreeEnsemble {
		fmt.Fprintf(out, "Trees:        %d (%s)\n", len(art.Classifier.Trees), art.Classifier.Aggregation)
	}
	fmt.Fprintf(out, "Features:     %s\n", strings.Join(art.FeatureColumns(), ", "))
	fmt.Fprintf(out, "Categories:   %s\n", strings.Join(art.Categories, ", "))
	fmt.Fprintf(out, "Vector width: %d\n", art.Width())
}

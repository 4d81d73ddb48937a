package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"codeshift/internal/gateway/app"
	"codeshift/internal/translate"
)

var (
	translateEngine    string
	translateSourceURL string
	translateAuth      string
	translateTreeOut   string
)

var translateCmd = &cobra.Command{
	Use:   "translate <owner> <repo> <targetLanguage>",
	Short: "Translate one repository and stream the result to stdout",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if translateEngine != "" {
			cfg.Engine.Backend = strings.ToLower(strings.TrimSpace(translateEngine))
		}
		if translateSourceURL != "" {
			cfg.Source.Backend = "http"
			cfg.Source.BaseURL = translateSourceURL
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		orch, traces, err := app.NewOrchestrator(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer traces.Close()

		auth := translateAuth
		if auth == "" {
			auth = os.Getenv("CODESHIFT_AUTHORIZATION")
		}
		plan, err := orch.Prepare(ctx, translate.Request{
			Owner:          args[0],
			Repo:           args[1],
			TargetLanguage: args[2],
			Authorization:  auth,
			TemplateURL:    cfg.Prompt.URL,
		})
		if err != nil {
			return err
		}

		var captured bytes.Buffer
		// stdout must stay open after the streamer finishes
		var sink io.Writer = writerOnly{cmd.OutOrStdout()}
		if translateTreeOut != "" {
			sink = io.MultiWriter(sink, &captured)
		}
		if err := orch.Run(ctx, plan, translate.NewStreamer(sink)); err != nil {
			return fmt.Errorf("run %s: %w", plan.RunID, err)
		}
		fmt.Fprintln(cmd.OutOrStdout())

		if translateTreeOut != "" {
			out := captured.Bytes()
			i := bytes.LastIndex(out, []byte(translate.Delimiter))
			if i < 0 {
				return fmt.Errorf("run %s: result tree missing from output", plan.RunID)
			}
			tree := out[i+len(translate.Delimiter):]
			if err := os.WriteFile(translateTreeOut, tree, 0o644); err != nil {
				return fmt.Errorf("write tree: %w", err)
			}
		}
		return nil
	},
}

type writerOnly struct{ io.Writer }

func init() {
	translateCmd.Flags().StringVar(&translateEngine, "engine", "", "engine backend (http, gemini, openai, fake); overrides ENGINE_BACKEND")
	translateCmd.Flags().StringVar(&translateSourceURL, "source-url", "", "base URL of the source service; overrides SOURCE_BASE_URL")
	translateCmd.Flags().StringVar(&translateAuth, "auth", "", "Authorization header value forwarded to the source and engine")
	translateCmd.Flags().StringVar(&translateTreeOut, "tree-out", "", "also write the translated tree JSON to this file")
}

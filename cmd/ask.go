package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"newsight/config"
	"newsight/internal/answer"
	"newsight/internal/chunk"
	"newsight/internal/embed"
	"newsight/internal/fetch"
	"newsight/internal/ingest"
	"newsight/internal/session/inmemory"
	"newsight/provider"
)

// askCMD runs the whole pipeline once: ingest the given urls, ask one
// question, stream the answer to stdout.
func askCMD() *cobra.Command {
	var cfgPath string
	var question string
	var ask = &cobra.Command{
		Use:   "ask [urls...]",
		Short: "Ingest urls and answer one question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if question == "" {
				return fmt.Errorf("--question is required")
			}

			p, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}
			fetcher, err := fetch.NewFetcher(cfg.Fetch)
			if err != nil {
				return err
			}
			if closer, ok := fetcher.(interface{ Close() }); ok {
				defer closer.Close()
			}

			store := inmemory.NewStore(time.Hour)
			embedder := embed.New(p)
			svc := ingest.NewService(cfg.Ingest, store, fetcher, chunk.New(cfg.Chunk.Size, cfg.Chunk.Overlap), embedder)

			ctx := cmd.Context()
			sess, err := store.Create(ctx)
			if err != nil {
				return err
			}
			done, err := svc.Submit(ctx, sess, args)
			if err != nil {
				return err
			}
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			for _, o := range sess.Snapshot().Outcomes {
				if !o.OK {
					fmt.Fprintf(os.Stderr, "skipped %s: %s\n", o.URL, o.Reason)
				}
			}

			answerer := answer.New(cfg.Retrieval, p, embedder)
			stream, err := answerer.Ask(ctx, sess, question)
			if err != nil {
				return err
			}
			defer stream.Close()
			for fragment := range stream.Fragments() {
				fmt.Print(fragment)
			}
			fmt.Println()
			if err := stream.Err(); err != nil {
				return err
			}
			if sources := stream.Sources(); len(sources) > 0 {
				fmt.Println("\nSources:")
				for _, s := range sources {
					if s.Title != "" {
						fmt.Printf("  %s <%s>\n", s.Title, s.URL)
					} else {
						fmt.Printf("  <%s>\n", s.URL)
					}
				}
			}
			return nil
		},
	}
	ask.Flags().StringVarP(&question, "question", "q", "", "question to answer")
	ask.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return ask
}

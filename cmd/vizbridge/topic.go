package main

import (
	"errors"
	"fmt"

	"github.com/illmade-knight/go-vizbridge/pkg/config"
	"github.com/illmade-knight/go-vizbridge/pkg/handler"
	"github.com/illmade-knight/go-vizbridge/pkg/pixelnorm"
	"github.com/spf13/cobra"
)

var errUnroutable = errors.New("topic is not routable")

func newTopicCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "topic <topic>",
		Short: "Print the schema type and handler a topic resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			registry := handler.NewDefaultRegistry(pixelnorm.NewEngine(cfg.Engine()), handler.WithSchemaPrefix(cfg.Prefix()))
			schemaType, h, err := registry.Route(args[0])
			out := cmd.OutOrStdout()
			if err != nil {
				fmt.Fprintf(out, "unroutable: %v\n", err)
				if handler.IsWildcard(args[0]) {
					fmt.Fprintln(out, "topic contains wildcards; handlers would be resolved per message")
				}
				return errUnroutable
			}
			fmt.Fprintf(out, "%s\t%T\n", schemaType, h)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "optional config file for schema_prefix and image settings")
	return cmd
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-vizbridge/pkg/config"
	"github.com/illmade-knight/go-vizbridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-vizbridge/pkg/schema"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// newPublishCmd relays a PlainText message through Pub/Sub, which exercises a pubsub
// subscription end to end. PUBSUB_EMULATOR_HOST is honored by the client.
func newPublishCmd() *cobra.Command {
	var configPath, topicID, busTopic, entityPath, text string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a text message to a Pub/Sub relay topic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if topicID == "" || busTopic == "" {
				return errors.New("--topic-id and --bus-topic are required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Pubsub.ProjectID == "" {
				return errors.New("pubsub.project_id is not configured")
			}
			logger, err := newLogger(cfg.LogLevel, "console")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client, err := pubsub.NewClient(ctx, cfg.Pubsub.ProjectID)
			if err != nil {
				return fmt.Errorf("failed to create pubsub client: %w", err)
			}
			defer func() { _ = client.Close() }()

			publisher, err := messagepipeline.NewRelayPublisher(ctx, client, topicID, cfg.Pubsub.TopicAttribute, logger)
			if err != nil {
				return err
			}
			defer func() { _ = publisher.Stop(context.Background()) }()

			id, err := publisher.Publish(ctx, busTopic, textMessage(entityPath, text, time.Now()))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "optional config file")
	cmd.Flags().StringVar(&topicID, "topic-id", "", "Pub/Sub relay topic")
	cmd.Flags().StringVar(&busTopic, "bus-topic", "", "bus topic the message is relayed as")
	cmd.Flags().StringVar(&entityPath, "entity-path", "", "header entity path")
	cmd.Flags().StringVar(&text, "text", "", "message body")
	return cmd
}

func textMessage(entityPath, body string, at time.Time) []byte {
	return (&schema.PlainText{
		Header: &schema.Header{Timestamp: timestamppb.New(at), EntityPath: entityPath},
		Body:   body,
	}).Marshal()
}

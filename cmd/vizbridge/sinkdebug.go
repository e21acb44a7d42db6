package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/illmade-knight/go-vizbridge/pkg/sink"
	"github.com/illmade-knight/go-vizbridge/pkg/sink/grpcsink"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newSinkDebugCmd() *cobra.Command {
	var listen, logLevel string
	cmd := &cobra.Command{
		Use:   "sink-debug",
		Short: "Run a gRPC sink that logs every frame it receives",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(logLevel, "console")
			if err != nil {
				return err
			}
			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", listen, err)
			}

			receiver := grpcsink.NewReceiver(1, logger)
			receiver.OnFrame = func(session string, frame sink.Frame) { logFrame(logger, session, frame) }
			srv, _ := grpcsink.NewServer(receiver)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				srv.GracefulStop()
			}()

			logger.Info().Str("address", lis.Addr().String()).Msg("Debug sink listening")
			return srv.Serve(lis)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":9876", "address to listen on")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}

func logFrame(logger zerolog.Logger, session string, frame sink.Frame) {
	event := logger.Info().Str("session", session).Uint64("seq", frame.Seq).Str("kind", frame.Kind)
	switch {
	case frame.Kind == sink.KindTimeCursor:
		event = event.Str("timeline", frame.Timeline).Float64("seconds", frame.Seconds)
	case frame.Tensor != nil:
		event = event.Str("path", frame.Path).
			Int("width", frame.Tensor.Width).Int("height", frame.Tensor.Height).Int("bytes", len(frame.Tensor.Data))
	case frame.Compressed != nil:
		event = event.Str("path", frame.Path).Str("media_type", frame.Compressed.MediaType).Int("bytes", len(frame.Compressed.Data))
	case frame.Text != nil:
		event = event.Str("path", frame.Path).Int("chars", len(frame.Text.Body))
	case frame.Boxes != nil:
		event = event.Str("path", frame.Path).Int("boxes", len(frame.Boxes.Centers))
	}
	event.Msg("Frame")
}

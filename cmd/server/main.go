package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/smart-launch/internal/config"
	"github.com/jrsteele09/smart-launch/pkce"
	"github.com/jrsteele09/smart-launch/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "smart-launch",
		Short:        "SMART on FHIR EHR launch client",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(discoverCmd())
	rootCmd.AddCommand(pkceCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the launch page at the redirect URI",
		RunE: func(cmd *cobra.Command, args []string) error {
			for {
				err := run()
				if errors.Is(err, errPanicRecovered) {
					log.Error().Err(err).Msg("Restarting server")
					time.Sleep(1 * time.Second)
					continue
				}
				if err != nil {
					return err
				}
				log.Info().Msg("Server stopped")
				return nil
			}
		},
	}
}

func discoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Print the SMART configuration endpoints of a FHIR server",
		RunE: func(cmd *cobra.Command, args []string) error {
			iss, _ := cmd.Flags().GetString("iss")
			if iss == "" {
				return errors.New("--iss is required")
			}
			c := config.New()
			setupLogger(c)

			machine, err := server.NewMachine(c, &http.Client{Timeout: 30 * time.Second})
			if err != nil {
				return err
			}
			smartConfig, err := machine.Discovery().Fetch(cmd.Context(), iss)
			if err != nil {
				return err
			}

			out := json.NewEncoder(cmd.OutOrStdout())
			out.SetIndent("", "  ")
			return out.Encode(smartConfig)
		},
	}
	cmd.Flags().String("iss", "", "FHIR base URL (the launch issuer)")
	return cmd
}

func pkceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pkce",
		Short: "Generate a PKCE verifier and S256 challenge",
		RunE: func(cmd *cobra.Command, args []string) error {
			length, _ := cmd.Flags().GetInt("length")
			generator, err := pkce.NewGenerator(length)
			if err != nil {
				return err
			}
			pair, err := generator.Generate()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "code_verifier=%s\ncode_challenge=%s\ncode_challenge_method=%s\n", pair.Verifier, pair.Challenge, pair.Method)
			return nil
		},
	}
	cmd.Flags().Int("length", 64, "Verifier length (43-128)")
	return cmd
}

var errPanicRecovered = errors.New("panic recovered")

// run serves until a stop signal. Configuration errors are returned as is;
// only a recovered panic is worth a restart.
func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errPanicRecovered
		}
	}()

	c := config.New()
	setupLogger(c)
	displayAppname(c.GetAppName())

	handler, err := server.NewFromConfig(c, nil)
	if err != nil {
		return err
	}
	server := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(server)
	waitForStopSignal()
	returnError = shutdown(server)
	return returnError
}

func setupLogger(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if c.GetLogFormat() == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	log.Logger = logger
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

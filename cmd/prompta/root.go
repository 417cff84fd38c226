package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zoobzio/prompta"
)

// app holds the settings shared by every subcommand.
type app struct {
	v *viper.Viper

	// transport replaces the OpenAI transport when set.
	transport prompta.Transport
}

func newApp(transport prompta.Transport) *app {
	v := viper.New()
	v.SetEnvPrefix("PROMPTA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api-key", "PROMPTA_API_KEY", "OPENAI_API_KEY")

	return &app{v: v, transport: transport}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "prompta",
		Short: "Run prompt recipes and parse completions into blocks",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := zerolog.ParseLevel(a.v.GetString("log-level"))
			if err != nil {
				return errors.Wrap(err, "parse log level")
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).
				Level(level).
				With().Timestamp().Logger()
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("api-key", "", "API key (env PROMPTA_API_KEY or OPENAI_API_KEY)")
	flags.String("base-url", "", "API base URL (env PROMPTA_BASE_URL)")
	flags.String("azure-deployment", "", "Send requests to this Azure OpenAI deployment at --base-url")
	flags.String("log-level", "warn", "Log level: trace, debug, info, warn, error")
	_ = a.v.BindPFlags(flags)

	root.AddCommand(a.runCmd(), a.blocksCmd())
	return root
}

// client builds a prompta client from the resolved settings.
func (a *app) client() (*prompta.Client, error) {
	transport := a.transport
	if deployment := a.v.GetString("azure-deployment"); transport == nil && deployment != "" {
		transport = prompta.NewAzureTransport(prompta.AzureConfig{
			Endpoint:   a.v.GetString("base-url"),
			APIKey:     a.v.GetString("api-key"),
			Deployment: deployment,
		})
	}

	return prompta.New(prompta.Config{
		APIKey:    a.v.GetString("api-key"),
		BaseURL:   a.v.GetString("base-url"),
		Transport: transport,
	})
}

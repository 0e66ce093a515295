// Package cli implements the coterie command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coterie-chat/coterie/internal/api"
	"github.com/coterie-chat/coterie/internal/config"
	"github.com/coterie-chat/coterie/internal/db"
	"github.com/coterie-chat/coterie/internal/logging"
	"github.com/coterie-chat/coterie/internal/session"
	"github.com/coterie-chat/coterie/internal/tui"
)

// Execute runs the coterie CLI. A bare invocation launches the TUI.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           "coterie",
		Short:         "Terminal client for two-party chats",
		Long:          "coterie keeps chats in sync across a REST snapshot and a live push stream,\nand renders them in the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv(configFile)
			if err != nil {
				return err
			}
			defer env.Close()
			return tui.Run(env.Config, env.Session, env.Client, env.Drafts)
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path")

	cmd.AddCommand(
		newLoginCmd(&configFile),
		newRegisterCmd(&configFile),
		newLogoutCmd(&configFile),
		newWhoamiCmd(&configFile),
	)
	return cmd
}

// env bundles the wired-up dependencies shared by all commands.
type env struct {
	Config  *config.Config
	DB      *db.DB
	Session *session.Session
	Client  *api.Client
	Drafts  *db.DraftRepository
}

func buildEnv(configFile string) (*env, error) {
	loader := config.NewLoader()
	if configFile != "" {
		loader.SetConfigFile(configFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	initLogging(cfg)

	stateDB, err := db.Open(cfg.State.DBPath)
	if err != nil {
		return nil, err
	}

	sess := session.New(db.NewSessionRepository(stateDB))
	client := api.NewClient(cfg.Server.URL, sess,
		api.WithUnauthorizedHook(sess.Clear))

	return &env{
		Config:  cfg,
		DB:      stateDB,
		Session: sess,
		Client:  client,
		Drafts:  db.NewDraftRepository(stateDB),
	}, nil
}

func (e *env) Close() {
	if e.DB != nil {
		e.DB.Close()
	}
}

func initLogging(cfg *config.Config) {
	logCfg := logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			logCfg.Output = f
			logCfg.Format = "json"
		} else {
			fmt.Fprintf(os.Stderr, "warning: cannot open log file: %v\n", err)
		}
	}
	logging.Init(logCfg)
}

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kai200407/aipostblog"
	"github.com/kai200407/aipostblog/internal/logging"
)

// envBound lists the config keys that can be set through AIPOST_* variables.
var envBound = []string{
	"temperature",
	"max_tokens",
	"period",
	"fallback",
	"rollover_interval",
	"store.driver",
	"store.dsn",
	"store.prefix",
	"log.level",
	"log.file",
}

// app carries state shared by the subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	envFile string

	cfg    aipostblog.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "aipost",
		Short:         "Turn ideas into posts for Twitter, WeChat, Xiaohongshu and LinkedIn.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "YAML config file")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("store", "", "quota store driver (memory, sqlite, postgres, redis)")
	flags.String("dsn", "", "quota store DSN")
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("store.driver", flags.Lookup("store"))
	_ = a.v.BindPFlag("store.dsn", flags.Lookup("dsn"))

	root.AddCommand(
		newModelsCmd(a),
		newTemplatesCmd(a),
		newCostCmd(a),
		newQuotaCmd(a),
		newGenerateCmd(a),
		newRolloverCmd(a),
	)
	return root
}

// init loads .env, the config file and AIPOST_* overrides, then builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	a.v.SetConfigType("yaml")
	if a.cfgFile != "" {
		data, err := os.ReadFile(a.cfgFile)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := a.v.ReadConfig(strings.NewReader(os.ExpandEnv(string(data)))); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}

	a.v.SetEnvPrefix("AIPOST")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()
	for _, key := range envBound {
		_ = a.v.BindEnv(key)
	}

	var cfg aipostblog.Config
	if err := a.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Log, zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())))
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

package common

import (
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/Laisky/zap"

	"github.com/playletworks/drama-api/common/config"
	"github.com/playletworks/drama-api/common/logger"
	"github.com/playletworks/drama-api/common/random"
)

// Version is overridden at build time with -ldflags.
var Version = "v0.1.0"

// StartTime is the process start, reported by the status endpoint.
var StartTime = time.Now().Unix()

var (
	Port       = flag.Int("port", 3000, "the listening port")
	LogDir     = flag.String("log-dir", "./logs", "specify the log directory")
	ConfigFile = flag.String("config", os.Getenv("CONFIG_FILE"), "optional JSON config file; file values win over env")
)

func Init() {
	flag.Parse()

	if *ConfigFile != "" {
		if err := config.LoadConfigFile(*ConfigFile); err != nil {
			logger.Logger.Fatal("failed to load config file", zap.Error(err))
		}
	}

	if config.SessionSecret == "" {
		config.SessionSecret = random.GetRandomString(32)
		logger.Logger.Warn("DRAMA_SESSION_SECRET not set, generated a random secret; sessions will not survive restarts")
	}

	SQLitePath = config.SQLitePath

	if *LogDir != "" {
		abs, err := filepath.Abs(*LogDir)
		if err != nil {
			logger.Logger.Fatal("failed to get absolute log dir", zap.Error(err))
		}
		if err = os.MkdirAll(abs, 0o777); err != nil {
			logger.Logger.Fatal("failed to create log dir", zap.Error(err))
		}
		*LogDir = abs
		logger.LogDir = abs
	}
}

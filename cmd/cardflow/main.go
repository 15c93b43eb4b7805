// =============================================================================
// CardFlow 主入口
// =============================================================================
// 使用方法:
//
//	cardflow serve                          # 启动服务
//	cardflow serve --config config.yaml     # 指定配置文件
//	cardflow profiles list                  # 列出后端配置
//	cardflow profiles import seed.yaml      # 导入配置、模板与风格
//	cardflow health --addr http://localhost:8080
//	cardflow version
// =============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/cardflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	dotEnvPath string
)

var rootCmd = &cobra.Command{
	Use:   "cardflow",
	Short: "AI provider orchestration for card outlines, prompts and images",
	Long: `CardFlow resolves a configured text or image backend per request, calls
OpenAI-compatible, DashScope and ModelScope providers, and recovers structured
card and prompt lists from free-form model output.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&dotEnvPath, "env-file", ".env", "dotenv file loaded before CARDFLOW_* overrides")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "CardFlow %s\n", Version)
		fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
		fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
	},
}

// loadConfig 默认值 → YAML → .env → CARDFLOW_* 环境变量
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader().
		WithConfigPath(configPath).
		WithDotEnv(dotEnvPath).
		WithValidator(func(c *config.Config) error { return c.Validate() }).
		Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}

package config

import (
	"github.com/devoffus/TrustLink/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Escrow     EscrowConfig     `mapstructure:"escrow"`
	Invitation InvitationConfig `mapstructure:"invitation"`
	Task       TaskConfig       `mapstructure:"task"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ChainConfig 链配置
type ChainConfig struct {
	ChainId       int64  `mapstructure:"chain_id"`       // 链ID
	RpcUrl        string `mapstructure:"rpc_url"`        // RPC节点URL
	PrivateKey    string `mapstructure:"private_key"`    // 私钥
	EscrowFactory string `mapstructure:"escrow_factory"` // 托管工厂合约地址
	Confirmations int    `mapstructure:"confirmations"`  // 确认区块数
}

// AuthConfig 登录认证配置
type AuthConfig struct {
	Domain           string `mapstructure:"domain"`            // SIWE域名
	URI              string `mapstructure:"uri"`               // SIWE资源URI
	Statement        string `mapstructure:"statement"`         // SIWE声明文本
	ChallengeTTL     int    `mapstructure:"challenge_ttl"`     // 挑战有效期（小时）
	RefreshThreshold int    `mapstructure:"refresh_threshold"` // 会话刷新阈值（分钟）
	JWTSecret        string `mapstructure:"jwt_secret"`        // API令牌签名密钥
	TrustedBypass    bool   `mapstructure:"trusted_bypass"`    // 本地开发跳过签名校验（显式开关）
}

// EscrowConfig 托管引擎配置
type EscrowConfig struct {
	OpTimeout    int `mapstructure:"op_timeout"`    // 链上操作确认超时（分钟）
	PollInterval int `mapstructure:"poll_interval"` // 确认轮询间隔（秒）
	WorkerPool   int `mapstructure:"worker_pool"`   // 对账协程池大小
}

// InvitationConfig 邀请配置
type InvitationConfig struct {
	ValidityDays int `mapstructure:"validity_days"` // 邀请有效期（天）
}

type TaskConfig struct {
	Interval int `mapstructure:"interval"` // 秒
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/trustlink")

	// 设置默认值
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "trustlink")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("chain.chain_id", 42)
	viper.SetDefault("chain.confirmations", 3)
	viper.SetDefault("auth.domain", "trustlink.app")
	viper.SetDefault("auth.uri", "https://trustlink.app")
	viper.SetDefault("auth.statement",
		"Sign in to TrustLink to access your freelance projects and manage your Universal Profile.")
	viper.SetDefault("auth.challenge_ttl", 24)
	viper.SetDefault("auth.refresh_threshold", 60)
	viper.SetDefault("auth.trusted_bypass", false)
	viper.SetDefault("escrow.op_timeout", 30)
	viper.SetDefault("escrow.poll_interval", 15)
	viper.SetDefault("escrow.worker_pool", 8)
	viper.SetDefault("invitation.validity_days", 7)
	viper.SetDefault("task.interval", 60)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.file", "logs/app.log")

	// 自动读取环境变量
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	return &config
}

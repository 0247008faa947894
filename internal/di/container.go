package di

import (
	"fmt"

	"browser-clearance/internal/adapter/extension"
	"browser-clearance/internal/application/port/input"
	"browser-clearance/internal/application/port/output"
	"browser-clearance/internal/application/service"
	"browser-clearance/internal/infrastructure/browser/rod"
	"browser-clearance/internal/infrastructure/logger"
)

type Container struct {
	Logger    output.LoggerPort
	Host      *service.Host
	Clearance input.ClearanceProvider
}

type Config struct {
	LogLevel string
	LogJSON  bool

	Browser  rod.BrowserConfig
	Launcher rod.LauncherConfig
}

// ConfigFromEnv fills the logging settings. APP_ENV=prod switches to JSON
// logs unless LOG_JSON says otherwise.
func ConfigFromEnv(env output.ConfigPort) Config {
	appEnv := env.GetWithDefault("APP_ENV", "dev")
	prod := appEnv == "prod" || appEnv == "production"

	return Config{
		LogLevel: env.GetWithDefault("LOG_LEVEL", "info"),
		LogJSON:  env.GetBool("LOG_JSON", prod),
	}
}

func NewContainer(cfg Config) (*Container, error) {
	log, err := logger.NewLoggerAdapter(logger.Config{
		Level: cfg.LogLevel,
		JSON:  cfg.LogJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return newContainer(log, rod.NewConnector(cfg.Browser), rod.NewProcessLauncher(cfg.Launcher))
}

func newContainer(log output.LoggerPort, connector output.ConnectorPort, launcher output.LauncherPort) (*Container, error) {
	host := service.NewHost(connector, launcher, service.NewExtensionRegistry(), log)

	clearance := extension.NewClearance(host)
	if err := host.Use(clearance); err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to register clearance extension: %w", err)
	}

	return &Container{
		Logger:    log,
		Host:      host,
		Clearance: clearance,
	}, nil
}

// Close kills launched browsers. Handles connected to external browsers are
// left to the caller.
func (c *Container) Close() {
	if c.Host != nil {
		c.Host.Close()
	}
	if c.Logger != nil {
		c.Logger.Close()
	}
}

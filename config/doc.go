// Package config loads the bridge configuration with the precedence
// defaults -> YAML file -> environment variables.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("UIBRIDGE").
//	    Load()
//
// Environment keys are derived from the env struct tags, joined with
// underscores: UIBRIDGE_BROWSER_WS_ENDPOINT, UIBRIDGE_SERVER_HTTP_PORT, ...
package config

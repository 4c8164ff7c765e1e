// Package config handles configuration loading for teams-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by the .toml
// extension), with ${VAR} expansion, then overridden by environment variables.
// A deployment may skip the file entirely and configure everything through
// the environment.
//
// # Configuration File
//
// Locations (in order):
//
//  1. --config flag
//  2. TEAMS_GATEWAY_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/teams-gateway/gateway.yaml (or ~/.config/...)
//
// # Environment Overrides
//
// The Bot Framework variables accept both spellings used by the vendor SDKs:
//
//	MICROSOFT_APP_ID          MicrosoftAppId
//	MICROSOFT_APP_PASSWORD    MicrosoftAppPassword
//	MICROSOFT_APP_TENANT_ID   MicrosoftAppTenantId
//	MICROSOFT_APP_OAUTH_SCOPE MicrosoftAppOAuthScope, MicrosoftAppScope
//
// Others: BOT_DISPLAY_NAME, BOT_DEFAULT_REPLY, PROACTIVE_DEFAULT_MESSAGE,
// PROACTIVE_API_KEY, TEAMS_GATEWAY_JWT_SECRET, CONTROLLER_METRICS_URL,
// CONTROLLER_BASE_URL, TEAMS_GATEWAY_DB_PATH, LOG_LEVEL, ENV and PORT. PORT
// replaces the port of server.http_addr and keeps its host.
//
// # Example
//
//	server:
//	  http_addr: "0.0.0.0:8000"
//	  grpc_addr: "127.0.0.1:8001"   # optional gRPC health service
//
//	bot:
//	  app_id: "${MICROSOFT_APP_ID}"
//	  app_password: "ssm:/teams-gateway/app-password"
//	  default_reply: "Hola {user_input}, soy {bot_name}."
//
//	auth:
//	  api_key: "${PROACTIVE_API_KEY}"
//
//	controller:
//	  metrics_url: "http://controller:8080/metrics"
//	  timeout: "10s"
//
//	registry:
//	  max_conversations: 0   # 0 = unbounded
//
//	dedupe:
//	  ttl: "5m"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Values starting with "ssm:" are resolved by package secrets after Load.
package config

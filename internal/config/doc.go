// Package config handles configuration loading for psy-bot.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	telegram:
//	  token: "${BOT_TOKEN}"
//
// # Configuration Sections
//
//	telegram:
//	  token: "${BOT_TOKEN}"
//	  admin_group_id: -1001234567890
//	  operator_ids: [111, 222]
//	  drop_pending_updates: false
//
//	database:
//	  path: "data/bot.sqlite"
//
//	exports:
//	  dir: "exports"
//	  deliver: true
//	  keep_total: 200
//	  keep_live_per_conversation: 30
//
//	survey:
//	  file: ""            # optional questionnaire override
//
//	topics:
//	  cache_ttl: "10m"
//
//	logging:
//	  level: "info"       # debug, info, warn, error
//	  format: "text"      # text or json
//
// Duration values use Go's time.ParseDuration syntax.
package config

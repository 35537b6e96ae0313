// Package config handles configuration loading for inbox-console.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	backend:
//	  api_token: "${INBOX_API_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	debounce:
//	  search: "300ms"
//	  filter: "200ms"
//	list:
//	  highlight_ttl: "5s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Backend query API:
//
//	backend:
//	  base_url: "https://api.example.com"
//	  client_id: "client-1234"
//	  api_token: "${INBOX_API_TOKEN}"
//
// Push-event feed (defaults to <base_url>/events):
//
//	feed:
//	  url: "https://api.example.com/events"
//	  reconnect_min: "1s"
//	  reconnect_max: "30s"
//
// Conversation list:
//
//	list:
//	  page_size: 20
//	  highlight_ttl: "5s"
//
// Channel transports:
//
//	channels:
//	  facebook:
//	    enabled: true
//	    access_token: "${FB_PAGE_TOKEN}"
//	  telegram:
//	    enabled: true
//	    bot_token: "${TELEGRAM_BOT_TOKEN}"
package config

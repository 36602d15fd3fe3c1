// Package config loads the agenda configuration file.
//
// The file is YAML. ${VAR} references are expanded from the environment
// before parsing, and GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET override the
// OAuth client settings. A missing file is not an error: the defaults are
// returned so a first run works without any setup beyond the client
// credentials.
//
// Example:
//
//	google:
//	  client_id: ${GOOGLE_CLIENT_ID}
//	  client_secret: ${GOOGLE_CLIENT_SECRET}
//	timezone: Europe/Berlin
//	refresh: "*/15 * * * *"
//	storage:
//	  type: sqlite
//	metrics:
//	  enabled: true
//	  addr: 127.0.0.1:9090
package config

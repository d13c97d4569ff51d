// Package logging builds the bridge's slog logger from configuration.
//
// Every component logs through the same *Logger, so one selve/health line
// and one state-mismatch warning look the same on the wire: JSON by default
// for collectors, text for a terminal, with service and version stamped on
// every entry. Components derive their own child via With:
//
//	logger := logging.New(cfg.Logging, version)
//	mqttLogger := logger.With("component", "mqtt")
//
// Configured through the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Gateway device names and MQTT payloads are fine to log; broker and
// gateway credentials never are.
package logging

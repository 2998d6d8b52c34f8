// Package infra contains technical adapters such as the MQTT claim log,
// nowcast feed clients, the anchor client and metrics exporters. These
// packages should depend only on the interfaces defined in the core
// packages.
package infra

// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (errors.go, role.go, notification.go, delivery.go) hold shared types
// and the consumer-side interfaces. No implementation code - just contracts.
package domain

// Package app provides the application service layer.
//
// TriggerService turns the three backend triggers (reviewer refresh, submitter refresh,
// direct notification) into relay deliveries. It depends on domain interfaces, not on the hub.
package app

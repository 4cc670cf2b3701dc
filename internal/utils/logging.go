package utils

import "github.com/sirupsen/logrus" // Logrus for structured logging

// SecurityEvent logs an authentication or integrity failure. High and critical
// events go out at error level so they page, everything else as a warning.
func SecurityEvent(event, severity string, fields logrus.Fields) {
	entry := logrus.WithFields(fields).WithFields(logrus.Fields{
		"type":       "security_event", // Lets log pipelines route these separately
		"event_type": event,            // What was rejected
		"severity":   severity,         // low, medium, high, critical
	})
	if severity == "high" || severity == "critical" {
		entry.Error("Security event detected")
		return
	}
	entry.Warn("Security event detected")
}

// Package logging provides a simple leveled logging interface for LoRAIro.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions, including data-quality signals such as
//     duplicate tag dictionary entries
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The initial level comes from LORAIRO_LOG_LEVEL or LOG_LEVEL. The loaded
// configuration may override it with SetLevel.
package logging

// Package logx provides a small structured logging facade over zerolog.
//
// It supports console and file sinks with live reconfiguration: loggers
// handed out by a Service keep working across Apply() calls.
package logx

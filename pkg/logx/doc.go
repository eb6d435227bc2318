// Package logx is recsched's structured logging layer over zerolog.
//
// Components derive a Logger with Component("name") and log through Field
// helpers. Loggers handed out by a Service follow its output and level
// across config reloads.
package logx

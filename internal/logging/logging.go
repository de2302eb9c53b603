// Package logging wires up the process-wide zap logger, matching the
// zap.NewProduction()/zap.NewDevelopment() split used in
// compliance/cmd/main.go.
package logging

import "go.uber.org/zap"

// New builds a zap.Logger for the given debug flag. In debug mode it uses the
// human-readable development encoder; otherwise the JSON production encoder.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

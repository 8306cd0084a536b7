//go:build tools
// +build tools

// Package tools lists the development binaries used when working on portal-api.
// They are installed with `go install` and are not tracked in go.mod.
package tools

// mockgen - regenerates internal/mocks from internal/ports
//   Invoked by: go generate ./internal/mocks
//   Version: go.uber.org/mock/mockgen@v0.6.0 (same release as the go.uber.org/mock requirement)
//
// air - live reload for cmd/portal-api during local development
//   Install: go install github.com/air-verse/air@v1.63.0
//   Run: AUTH_DRIVER=mock SESSION_STORE=memory air --build.cmd "go build -o ./tmp/portal-api ./cmd/portal-api" --build.bin ./tmp/portal-api
//   Docs: https://github.com/air-verse/air

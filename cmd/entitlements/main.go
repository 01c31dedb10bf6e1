package main

import (
	"github.com/scalehq/entitlements/internal/server"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		server.Module,
	).Run()
}

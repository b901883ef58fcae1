package main

import (
	"claude-quota-alerts/internal/cli"
)

func main() {
	cli.Execute()
}

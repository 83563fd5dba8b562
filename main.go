package main

import "github.com/sriramcse31/ai-test-triage-agent/internal/app"

func main() {
	app.Main()
}

package main

import "redis-job-pipeline/internal/cli"

func main() {
	cli.Execute()
}

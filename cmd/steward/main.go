package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/steward-sh/steward/internal/cli"
)

var version = "dev"

func main() {
	v := strings.TrimSpace(version)
	if v == "" {
		v = "dev"
	}
	ctx := context.Background()
	if err := cli.NewRoot(v).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

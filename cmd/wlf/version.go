package main

import (
	"context"
	"fmt"

	"github.com/jagroop-dev/wlf"
)

type VersionCommand struct {
}

func (c VersionCommand) Run(ctx context.Context) (err error) {
	fmt.Println(wlf.Version)
	return nil
}

package main

import (
	"fmt"

	"github.com/ozontech/contentpipe/config"
)

type ConfigCommand struct{}

func (c *ConfigCommand) Run(cfg config.Config) error {
	_, err := fmt.Print(cfg.String())
	return err
}

/*
 * Copyright (C) 2025 Nuts community
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 *
 */

package cmd

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nuts-foundation/siop-op/core"
)

var stdOutWriter io.Writer = os.Stdout

func createRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "siop-op",
		Short: "SIOPv2/OpenID4VP holder agent.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}
}

func createPrintConfigCommand(config *core.ServerConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Prints the current config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(cmd.Flags()); err != nil {
				return err
			}
			cmd.Println("Current config")
			cmd.Println(config.PrintConfig())
			return nil
		},
	}
}

func createServerCommand(config *core.ServerConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Starts the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(cmd.Flags()); err != nil {
				return err
			}
			logrus.Info("Starting agent with config:")
			logrus.Info(config.PrintConfig())
			return runServer(cmd.Context(), config)
		},
	}
}

// CreateCommand creates the command with all subcommands.
func CreateCommand() *cobra.Command {
	config := core.NewServerConfig()
	command := createRootCommand()
	command.SetOut(stdOutWriter)
	command.AddCommand(createServerCommand(config))
	command.AddCommand(createPrintConfigCommand(config))
	for _, subCommand := range command.Commands() {
		subCommand.Flags().AddFlagSet(core.FlagSet())
	}
	return command
}

// Execute runs the root command. The given context cancels a running server.
func Execute(ctx context.Context) error {
	command := CreateCommand()
	command.SetOut(stdOutWriter)
	return command.ExecuteContext(ctx)
}

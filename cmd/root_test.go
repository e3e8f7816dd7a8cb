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
	"bytes"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_rootCmd(t *testing.T) {
	t.Run("no args prints help", func(t *testing.T) {
		buf := new(bytes.Buffer)
		command := CreateCommand()
		command.SetOut(buf)
		command.SetArgs([]string{})

		err := command.Execute()

		require.NoError(t, err)
		assert.Contains(t, buf.String(), "Available Commands")
	})
	t.Run("config prints the resolved config", func(t *testing.T) {
		configFile := path.Join(t.TempDir(), "siop.yaml")
		require.NoError(t, os.WriteFile(configFile, []byte("verbosity: debug\nhttp:\n  address: localhost:8443\n"), 0600))
		buf := new(bytes.Buffer)
		command := CreateCommand()
		command.SetOut(buf)
		command.SetArgs([]string{"config", "--configfile", configFile})

		err := command.Execute()

		require.NoError(t, err)
		assert.Contains(t, buf.String(), "localhost:8443")
		assert.Contains(t, buf.String(), "debug")
	})
}

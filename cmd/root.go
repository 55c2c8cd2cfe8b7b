/*
Package cmd implements the command-line interface: serving an agent over
both transports and talking to remote agents from the terminal.
*/
package cmd

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/theapemachine/a2a-core/pkg/logging"
)

/*
Embed a mini filesystem into the binary to hold the default config file.
This will be written to the home directory of the user running the service,
which allows a developer to easily override the config file.
*/
//go:embed cfg/*
var embedded embed.FS

var (
	projectName = "a2a-core"
	cfgFile     string

	rootCmd = &cobra.Command{
		Use:   "a2a-core",
		Short: "An Agent-to-Agent (A2A) protocol server core and client",
		Long:  longRoot,
	}
)

/*
Execute is the main entry point for the CLI. It initializes the root
command and executes it.
*/
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yml",
		"config file (default is $HOME/."+projectName+"/config.yml)",
	)
}

/*
initConfig writes the default config file to the user's home directory if
it doesn't exist, then reads the config file from there.
*/
func initConfig() {
	if err := writeConfig(); err != nil {
		log.Fatal("failed to write config", "error", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yml")

	home, _ := os.UserHomeDir()
	viper.AddConfigPath(home + "/." + projectName)

	if err := viper.ReadInConfig(); err != nil {
		log.Fatal("failed to read config", "error", err)
	}

	logging.Setup()
}

func writeConfig() (err error) {
	var (
		home, _ = os.UserHomeDir()
		fh      fs.File
		buf     bytes.Buffer
	)

	configDir := home + "/." + projectName

	if !checkFileExists(configDir) {
		if err = os.MkdirAll(configDir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	for _, file := range []string{cfgFile} {
		fullPath := configDir + "/" + file

		if checkFileExists(fullPath) {
			continue
		}

		if fh, err = embedded.Open("cfg/" + file); err != nil {
			return fmt.Errorf("failed to open embedded config file: %w", err)
		}

		if _, err = io.Copy(&buf, fh); err != nil {
			fh.Close()
			return fmt.Errorf("failed to read embedded config file: %w", err)
		}

		if err = os.WriteFile(fullPath, buf.Bytes(), 0644); err != nil {
			fh.Close()
			return fmt.Errorf("failed to write config file: %w", err)
		}

		log.Info("wrote config file", "path", fullPath)
		buf.Reset()
		fh.Close()
	}

	return nil
}

func checkFileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !errors.Is(err, os.ErrNotExist)
}

var longRoot = `
a2a-core is a Go implementation of the Agent-to-Agent (A2A) protocol core:
a task lifecycle engine with per-task event fan-out, streamed over JSON-RPC
and HTTP+REST, plus a client that mirrors the same surface.
`

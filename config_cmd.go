package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"

	"github.com/marqueymarc/readflow/internal/config"
)

const defaultConfig = `# synthesis voice
voice: "nova"
# use the local mock synthesizer instead of a synthesis service
mock: false
# synthesis service base URL (empty means mock)
# synthesis_url: "http://localhost:8080"

# playback speed (0.5 to 2.0)
rate: 1.0
# start playing as soon as a chunk is ready
auto_play: true
# advance to the next enabled item when one finishes
auto_next: true

# per-chunk character caps; the first two are smaller so playback
# starts before the whole article is synthesized
first_chunk_chars: 400
second_chunk_chars: 800
max_chunk_chars: 1500

# audio cache location (default: per-user data dir)
# data_dir: "~/.local/share/readflow/cache"
# cache size cap in bytes; oldest audio is evicted past it
cache_limit_bytes: 524288000

# how long to wait for the audio device
ready_timeout: "10s"
# how long position updates coalesce before being written
resume_debounce: "250ms"

# debug, info, warn, or error
log_level: "info"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Edit the readflow config file",
	Long:    "\nEdit the readflow config file. We'll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.",
	Example: "readflow config\nreadflow config --config path/to/readflow.yml",
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		target, err := config.FindConfigFile(configFile)
		if err != nil {
			return err
		}
		if err := ensureConfigFile(target); err != nil {
			return err
		}

		c, err := editor.Cmd("readflow", target)
		if err != nil {
			return fmt.Errorf("unable to open config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run editor: %w", err)
		}

		fmt.Println("Wrote config file to:", target)
		return nil
	},
}

func ensureConfigFile(target string) error {
	if ext := path.Ext(target); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
			return fmt.Errorf("unable to create directory: %w", err)
		}

		f, err := os.Create(target)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}

package command

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/adamavenir/huddle/internal/core"
	"github.com/spf13/cobra"
)

type configEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewConfigCmd creates the config command.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [key] [value]",
		Short: "Get or set configuration",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			jsonMode, _ := cmd.Flags().GetBool("json")
			if path == "" {
				resolved, err := core.DefaultConfigPath()
				if err != nil {
					return writeCommandError(cmd, err)
				}
				path = resolved
			}
			cfg, err := core.ReadConfigFile(path)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				entries := configEntries(cfg)
				if jsonMode {
					return json.NewEncoder(out).Encode(entries)
				}
				fmt.Fprintf(out, "Configuration (%s):\n", path)
				for _, entry := range entries {
					if entry.Value == "" {
						continue
					}
					fmt.Fprintf(out, "  %s: %s\n", entry.Key, entry.Value)
				}
				return nil
			}

			key := normalizeConfigKey(args[0])
			if len(args) == 1 {
				for _, entry := range configEntries(cfg) {
					if entry.Key != key {
						continue
					}
					if jsonMode {
						return json.NewEncoder(out).Encode(map[string]string{key: entry.Value})
					}
					fmt.Fprintf(out, "%s: %s\n", key, entry.Value)
					return nil
				}
				return writeCommandError(cmd, fmt.Errorf("unknown config key '%s'", args[0]))
			}

			if err := setConfigValue(cfg, key, args[1]); err != nil {
				return writeCommandError(cmd, err)
			}
			check := *cfg
			if err := check.Validate(); err != nil {
				return writeCommandError(cmd, err)
			}
			if err := core.SaveConfig(cfg, path); err != nil {
				return writeCommandError(cmd, err)
			}
			if jsonMode {
				return json.NewEncoder(out).Encode(map[string]string{key: args[1]})
			}
			fmt.Fprintf(out, "Set %s = %s\n", key, args[1])
			return nil
		},
	}

	return cmd
}

func normalizeConfigKey(value string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_")
}

func configEntries(cfg *core.Config) []configEntry {
	token := ""
	if cfg.Token != "" {
		token = "********"
	}
	return []configEntry{
		{"server_url", cfg.ServerURL},
		{"websocket_url", cfg.WebsocketURL},
		{"upload_url", cfg.UploadURL},
		{"upload_folder", cfg.UploadFolder},
		{"upload_tags", strings.Join(cfg.UploadTags, ",")},
		{"token", token},
		{"user_id", cfg.UserID},
		{"display_name", cfg.DisplayName},
		{"conversation", cfg.Conversation},
		{"cache_path", cfg.CachePath},
		{"drop_folder", cfg.DropFolder},
		{"recordings_dir", cfg.RecordingsDir},
		{"send_rate", formatFloat(cfg.SendRate)},
		{"send_burst", formatInt(cfg.SendBurst)},
		{"page_size", formatInt(cfg.PageSize)},
		{"log_level", cfg.LogLevel},
		{"log_sink", cfg.LogSink},
		{"notifications", strconv.FormatBool(cfg.Notifications)},
		{"metrics_address", cfg.MetricsAddress},
	}
}

func setConfigValue(cfg *core.Config, key, value string) error {
	strs := map[string]*string{
		"server_url":      &cfg.ServerURL,
		"websocket_url":   &cfg.WebsocketURL,
		"upload_url":      &cfg.UploadURL,
		"upload_folder":   &cfg.UploadFolder,
		"token":           &cfg.Token,
		"user_id":         &cfg.UserID,
		"display_name":    &cfg.DisplayName,
		"conversation":    &cfg.Conversation,
		"cache_path":      &cfg.CachePath,
		"drop_folder":     &cfg.DropFolder,
		"recordings_dir":  &cfg.RecordingsDir,
		"log_level":       &cfg.LogLevel,
		"log_sink":        &cfg.LogSink,
		"metrics_address": &cfg.MetricsAddress,
	}
	if dst, ok := strs[key]; ok {
		*dst = strings.TrimSpace(value)
		return nil
	}

	switch key {
	case "upload_tags":
		cfg.UploadTags = splitCommaList(value)
	case "send_rate":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v < 0 {
			return fmt.Errorf("send_rate must be a non-negative number")
		}
		cfg.SendRate = v
	case "send_burst", "page_size":
		v, err := strconv.Atoi(value)
		if err != nil || v < 0 {
			return fmt.Errorf("%s must be a non-negative integer", key)
		}
		if key == "send_burst" {
			cfg.SendBurst = v
		} else {
			cfg.PageSize = v
		}
	case "notifications":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("notifications must be true or false")
		}
		cfg.Notifications = v
	default:
		return fmt.Errorf("unknown config key '%s'", key)
	}
	return nil
}

func formatFloat(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatInt(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

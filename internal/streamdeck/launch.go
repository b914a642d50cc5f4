package streamdeck

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

// LaunchArgs are the registration parameters the host passes on the command line.
type LaunchArgs struct {
	Port          int
	PluginUUID    string
	RegisterEvent string
	Info          Info
}

// Info is the decoded -info document.
type Info struct {
	Application struct {
		Language string `json:"language"`
		Platform string `json:"platform"`
		Version  string `json:"version"`
	} `json:"application"`
	Plugin struct {
		UUID    string `json:"uuid"`
		Version string `json:"version"`
	} `json:"plugin"`
	Devices []model.Device `json:"devices"`
}

// ParseLaunchArgs reads "-port P -pluginUUID U -registerEvent E -info J".
func ParseLaunchArgs(args []string) (LaunchArgs, error) {
	fs := flag.NewFlagSet("plugin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var out LaunchArgs
	var info string
	fs.IntVar(&out.Port, "port", 0, "host websocket port")
	fs.StringVar(&out.PluginUUID, "pluginUUID", "", "plugin registration id")
	fs.StringVar(&out.RegisterEvent, "registerEvent", "", "registration event name")
	fs.StringVar(&info, "info", "", "host and device information as JSON")
	if err := fs.Parse(args); err != nil {
		return LaunchArgs{}, fmt.Errorf("parse launch args: %w", err)
	}

	var missing []string
	if out.Port <= 0 || out.Port > 65535 {
		missing = append(missing, "-port")
	}
	if out.PluginUUID == "" {
		missing = append(missing, "-pluginUUID")
	}
	if out.RegisterEvent == "" {
		missing = append(missing, "-registerEvent")
	}
	if len(missing) > 0 {
		return LaunchArgs{}, errors.New("missing or invalid launch args: " + strings.Join(missing, ", "))
	}

	if strings.TrimSpace(info) != "" {
		if err := json.Unmarshal([]byte(info), &out.Info); err != nil {
			return LaunchArgs{}, fmt.Errorf("decode -info: %w", err)
		}
	}
	return out, nil
}

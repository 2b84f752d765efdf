package config

import (
	"fmt"
	"mime"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Environment overrides, applied after the file.
const (
	EnvURI     = "PGMFLOW_URI"
	EnvNetwork = "PGMFLOW_NETWORK"
)

type senderFile struct {
	URI string `toml:"uri"`
	Sender
}

type receiverFile struct {
	URI string `toml:"uri"`
	Receiver
}

// LoadSender reads a TOML sender configuration over the defaults, applies
// environment overrides and validates the result. An empty path skips the
// file.
//
// Durations are written as strings ("250ms", "30s"). The connection may be
// given either as a single uri key or as network/port/encap_port, not both.
func LoadSender(path string) (Sender, error) {
	raw := senderFile{Sender: DefaultSender()}
	if err := decodeFile(path, &raw); err != nil {
		return Sender{}, err
	}
	cfg := raw.Sender
	if raw.URI != "" {
		if err := cfg.SetURI(raw.URI); err != nil {
			return Sender{}, fmt.Errorf("load sender config: %w", err)
		}
	}
	if err := applyEnv(&cfg.Connection, os.Getenv); err != nil {
		return Sender{}, fmt.Errorf("load sender config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Sender{}, fmt.Errorf("load sender config: %w", err)
	}
	return cfg, nil
}

// LoadReceiver is LoadSender for receivers. It also accepts content_type.
func LoadReceiver(path string) (Receiver, error) {
	raw := receiverFile{Receiver: DefaultReceiver()}
	if err := decodeFile(path, &raw); err != nil {
		return Receiver{}, err
	}
	cfg := raw.Receiver
	if raw.URI != "" {
		if err := cfg.SetURI(raw.URI); err != nil {
			return Receiver{}, fmt.Errorf("load receiver config: %w", err)
		}
	}
	if err := applyEnv(&cfg.Connection, os.Getenv); err != nil {
		return Receiver{}, fmt.Errorf("load receiver config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Receiver{}, fmt.Errorf("load receiver config: %w", err)
	}
	return cfg, nil
}

var connectionKeys = []string{"network", "port", "encap_port"}

func decodeFile(path string, v any) error {
	if path == "" {
		return nil
	}
	meta, err := toml.DecodeFile(path, v)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("uri") {
		for _, k := range connectionKeys {
			if meta.IsDefined(k) {
				return fmt.Errorf("load config %s: uri and %s are mutually exclusive", path, k)
			}
		}
	}
	return nil
}

// applyEnv applies PGMFLOW_URI, then PGMFLOW_NETWORK, to c.
func applyEnv(c *Connection, getenv func(string) string) error {
	if uri := strings.TrimSpace(getenv(EnvURI)); uri != "" {
		if err := c.SetURI(uri); err != nil {
			return fmt.Errorf("%s: %w", EnvURI, err)
		}
	}
	if network := strings.TrimSpace(getenv(EnvNetwork)); network != "" {
		c.Network = network
	}
	return nil
}

// ValidateContentType checks that mediaType is empty or a well formed media
// type such as "video/mpegts".
func ValidateContentType(mediaType string) error {
	if mediaType == "" {
		return nil
	}
	if _, _, err := mime.ParseMediaType(mediaType); err != nil {
		return fmt.Errorf("content type %q: %w", mediaType, err)
	}
	return nil
}

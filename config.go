package polychat

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"git.sr.ht/~emersion/go-scfg"
	"git.sr.ht/~rockorager/vaxis"
	"github.com/BurntSushi/toml"

	"git.sr.ht/~delthas/polychat/local"
	"git.sr.ht/~delthas/polychat/ui"
)

func parseColor(s string, c *vaxis.Color) error {
	if strings.HasPrefix(s, "#") {
		hex, err := strconv.ParseInt(s[1:], 16, 32)
		if err != nil {
			return err
		}

		*c = vaxis.HexColor(uint32(hex))
		return nil
	}

	code, err := strconv.Atoi(s)
	if err != nil {
		return err
	}

	if code == -1 {
		*c = ui.ColorDefault
		return nil
	}

	if code < 0 || code > 255 {
		return fmt.Errorf("color code must be between 0-255. If you meant to use true colors, use #aabbcc notation")
	}

	*c = vaxis.IndexColor(uint8(code))

	return nil
}

func parseColorScheme(s string, scheme *ui.ColorScheme) error {
	switch s {
	case "base":
		scheme.Type = ui.ColorSchemeBase
	case "extended":
		scheme.Type = ui.ColorSchemeExtended
	default:
		var c vaxis.Color
		if err := parseColor(s, &c); err != nil {
			return fmt.Errorf("unknown nick color scheme %q", s)
		}
		scheme.Type = ui.ColorSchemeFixed
		scheme.Color = c
	}
	return nil
}

type SlackConfig struct {
	Name  string
	Token string
}

type DiscordConfig struct {
	Token string
}

type IRCConfig struct {
	Name     string
	Addr     string
	Nick     string
	User     string
	Real     string
	Password string
	TLS      bool
	Channels []string
}

type PushbulletConfig struct {
	Token string
}

type Config struct {
	Slack      []SlackConfig
	Discord    []DiscordConfig
	IRC        []IRCConfig
	Pushbullet []PushbulletConfig

	ChanColWidth int
	Colors       ui.ConfigColors

	// Shortcuts maps key names, such as "Control+n", to an action and
	// its arguments.
	Shortcuts map[string][]string

	LogFile string
	Debug   bool
}

func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(configDir, "polychat", "polychat.scfg"), nil
}

func DefaultLogPath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "polychat", "polychat.log")
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "polychat", "polychat.log")
	}
	return filepath.Join(os.TempDir(), "polychat.log")
}

func Defaults() Config {
	return Config{
		ChanColWidth: 16,
		Colors: ui.ConfigColors{
			Prompt: ui.ColorDefault,
			Unread: ui.ColorDefault,
			Nicks: ui.ColorScheme{
				Type: ui.ColorSchemeBase,
			},
		},
		Shortcuts: map[string][]string{},
		LogFile:   DefaultLogPath(),
	}
}

// LoadConfigFile reads a scfg file, or a TOML file if its name ends with
// ".toml".
func LoadConfigFile(filename string) (cfg Config, err error) {
	cfg = Defaults()
	if strings.HasSuffix(filename, ".toml") {
		err = unmarshalTOMLFile(filename, &cfg)
	} else {
		var directives scfg.Block
		directives, err = scfg.Load(filename)
		if err != nil {
			return cfg, fmt.Errorf("error parsing scfg: %w", err)
		}
		err = unmarshal(directives, &cfg)
	}
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (cfg *Config) validate() error {
	// Server tabs are renamed on collision, but configured names are
	// meant to be used as they are.
	names := map[string]bool{local.ServerName: true}
	checkName := func(kind, name string) error {
		if name == "" {
			return nil
		}
		if names[name] {
			return fmt.Errorf("%s: name %q is already used", kind, name)
		}
		names[name] = true
		return nil
	}
	for i := range cfg.IRC {
		c := &cfg.IRC[i]
		if err := checkName("irc", c.Name); err != nil {
			return err
		}
		if c.Addr == "" {
			return fmt.Errorf("irc: address is required")
		}
		if c.Nick == "" {
			return fmt.Errorf("irc: nickname is required")
		}
		if c.User == "" {
			c.User = c.Nick
		}
		if c.Real == "" {
			c.Real = c.Nick
		}
		if c.Name == "" {
			c.Name = c.Addr
		}
	}
	for _, c := range cfg.Slack {
		if c.Token == "" {
			return fmt.Errorf("slack: token is required")
		}
		if err := checkName("slack", c.Name); err != nil {
			return err
		}
	}
	for _, c := range cfg.Discord {
		if c.Token == "" {
			return fmt.Errorf("discord: token is required")
		}
	}
	for _, c := range cfg.Pushbullet {
		if c.Token == "" {
			return fmt.Errorf("pushbullet: token is required")
		}
	}
	for key := range cfg.Shortcuts {
		if keyNameMatch(key) == nil {
			return fmt.Errorf("shortcuts: unknown key %q", key)
		}
	}
	return nil
}

func parseBool(d *scfg.Directive, v *bool) error {
	var s string
	if err := d.ParseParams(&s); err != nil {
		return err
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("directive %q: %w", d.Name, err)
	}
	*v = b
	return nil
}

func unmarshal(directives scfg.Block, cfg *Config) (err error) {
	for _, d := range directives {
		switch d.Name {
		case "slack":
			var c SlackConfig
			for _, child := range d.Children {
				switch child.Name {
				case "token":
					err = child.ParseParams(&c.Token)
				case "name":
					err = child.ParseParams(&c.Name)
				default:
					return fmt.Errorf("unknown directive %q", child.Name)
				}
				if err != nil {
					return err
				}
			}
			cfg.Slack = append(cfg.Slack, c)
		case "discord":
			var c DiscordConfig
			for _, child := range d.Children {
				switch child.Name {
				case "token":
					if err := child.ParseParams(&c.Token); err != nil {
						return err
					}
				default:
					return fmt.Errorf("unknown directive %q", child.Name)
				}
			}
			cfg.Discord = append(cfg.Discord, c)
		case "irc":
			c := IRCConfig{
				TLS: true,
			}
			for _, child := range d.Children {
				switch child.Name {
				case "name":
					err = child.ParseParams(&c.Name)
				case "address":
					err = child.ParseParams(&c.Addr)
				case "nickname":
					err = child.ParseParams(&c.Nick)
				case "username":
					err = child.ParseParams(&c.User)
				case "realname":
					err = child.ParseParams(&c.Real)
				case "password":
					err = child.ParseParams(&c.Password)
				case "tls":
					err = parseBool(child, &c.TLS)
				case "channel":
					c.Channels = append(c.Channels, child.Params...)
				default:
					return fmt.Errorf("unknown directive %q", child.Name)
				}
				if err != nil {
					return err
				}
			}
			cfg.IRC = append(cfg.IRC, c)
		case "pushbullet":
			var c PushbulletConfig
			for _, child := range d.Children {
				switch child.Name {
				case "token":
					if err := child.ParseParams(&c.Token); err != nil {
						return err
					}
				default:
					return fmt.Errorf("unknown directive %q", child.Name)
				}
			}
			cfg.Pushbullet = append(cfg.Pushbullet, c)
		case "pane-widths":
			for _, child := range d.Children {
				switch child.Name {
				case "channels":
					var channels string
					if err := child.ParseParams(&channels); err != nil {
						return err
					}
					if cfg.ChanColWidth, err = strconv.Atoi(channels); err != nil {
						return err
					}
				default:
					return fmt.Errorf("unknown directive %q", child.Name)
				}
			}
		case "colors":
			for _, child := range d.Children {
				var colorStr string
				if err := child.ParseParams(&colorStr); err != nil {
					return err
				}
				if err := setColor(&cfg.Colors, child.Name, colorStr); err != nil {
					return err
				}
			}
		case "shortcuts":
			for _, child := range d.Children {
				if len(child.Params) == 0 {
					return fmt.Errorf("shortcut %q: missing action", child.Name)
				}
				cfg.Shortcuts[child.Name] = child.Params
			}
		case "log-file":
			if err := d.ParseParams(&cfg.LogFile); err != nil {
				return err
			}
		case "debug":
			if err := parseBool(d, &cfg.Debug); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown directive %q", d.Name)
		}
	}

	return
}

func setColor(colors *ui.ConfigColors, name, value string) error {
	switch name {
	case "nicks":
		return parseColorScheme(value, &colors.Nicks)
	case "prompt":
		return parseColor(value, &colors.Prompt)
	case "unread":
		return parseColor(value, &colors.Unread)
	default:
		return fmt.Errorf("unknown directive %q", name)
	}
}

// tomlConfig mirrors the scfg directives.
type tomlConfig struct {
	Slack []struct {
		Name  string `toml:"name"`
		Token string `toml:"token"`
	} `toml:"slack"`
	Discord []struct {
		Token string `toml:"token"`
	} `toml:"discord"`
	IRC []struct {
		Name     string   `toml:"name"`
		Address  string   `toml:"address"`
		Nickname string   `toml:"nickname"`
		Username string   `toml:"username"`
		Realname string   `toml:"realname"`
		Password string   `toml:"password"`
		TLS      *bool    `toml:"tls"`
		Channels []string `toml:"channels"`
	} `toml:"irc"`
	Pushbullet []struct {
		Token string `toml:"token"`
	} `toml:"pushbullet"`
	PaneWidths struct {
		Channels *int `toml:"channels"`
	} `toml:"pane-widths"`
	Colors    map[string]string   `toml:"colors"`
	Shortcuts map[string][]string `toml:"shortcuts"`
	LogFile   string              `toml:"log-file"`
	Debug     bool                `toml:"debug"`
}

func unmarshalTOMLFile(filename string, cfg *Config) error {
	b, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	return unmarshalTOML(string(b), cfg)
}

func unmarshalTOML(data string, cfg *Config) error {
	var tc tomlConfig
	md, err := toml.Decode(data, &tc)
	if err != nil {
		return fmt.Errorf("error parsing toml: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown directive %q", undecoded[0].String())
	}

	for _, s := range tc.Slack {
		cfg.Slack = append(cfg.Slack, SlackConfig{Name: s.Name, Token: s.Token})
	}
	for _, d := range tc.Discord {
		cfg.Discord = append(cfg.Discord, DiscordConfig{Token: d.Token})
	}
	for _, i := range tc.IRC {
		c := IRCConfig{
			Name:     i.Name,
			Addr:     i.Address,
			Nick:     i.Nickname,
			User:     i.Username,
			Real:     i.Realname,
			Password: i.Password,
			TLS:      true,
			Channels: i.Channels,
		}
		if i.TLS != nil {
			c.TLS = *i.TLS
		}
		cfg.IRC = append(cfg.IRC, c)
	}
	for _, p := range tc.Pushbullet {
		cfg.Pushbullet = append(cfg.Pushbullet, PushbulletConfig{Token: p.Token})
	}
	if tc.PaneWidths.Channels != nil {
		cfg.ChanColWidth = *tc.PaneWidths.Channels
	}
	for name, value := range tc.Colors {
		if err := setColor(&cfg.Colors, name, value); err != nil {
			return err
		}
	}
	for key, action := range tc.Shortcuts {
		if len(action) == 0 {
			return fmt.Errorf("shortcut %q: missing action", key)
		}
		cfg.Shortcuts[key] = action
	}
	if tc.LogFile != "" {
		cfg.LogFile = tc.LogFile
	}
	cfg.Debug = tc.Debug
	return nil
}

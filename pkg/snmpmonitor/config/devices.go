package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vpbank/snmp_monitor/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Device seeds
// ─────────────────────────────────────────────────────────────────────────────

// DeviceSeed is one inventory entry read from the devices directory. Secret
// fields are plaintext here; they are sealed before they reach storage.
type DeviceSeed struct {
	Name          string
	Address       string
	Port          int
	PollInterval  int // seconds
	Version       string
	Enabled       bool
	Communities   []string
	V3Credentials []V3Credentials
}

// V3Credentials holds a single set of SNMPv3 security parameters.
type V3Credentials struct {
	Username string `yaml:"username"`

	// AuthenticationProtocol is one of: noauth, md5, sha, sha224, sha256, sha384, sha512.
	AuthenticationProtocol   string `yaml:"authentication_protocol"`
	AuthenticationPassphrase string `yaml:"authentication_passphrase"`

	// PrivacyProtocol is one of: nopriv, des, aes, aes192, aes256, aes192c, aes256c.
	PrivacyProtocol   string `yaml:"privacy_protocol"`
	PrivacyPassphrase string `yaml:"privacy_passphrase"`
}

// rawDeviceEntry maps 1-to-1 with the device YAML schema.
type rawDeviceEntry struct {
	IP            string          `yaml:"ip"`
	Port          int             `yaml:"port"`
	PollInterval  int             `yaml:"poll_interval"`
	Version       string          `yaml:"version"`
	Enabled       *bool           `yaml:"enabled"`
	Communities   []string        `yaml:"communities"`
	V3Credentials []V3Credentials `yaml:"v3_credentials"`
}

// Device returns the storage row of s without its credential.
func (s DeviceSeed) Device() models.Device {
	return models.Device{
		Name:         s.Name,
		Address:      s.Address,
		Port:         s.Port,
		Version:      s.Version,
		PollInterval: s.PollInterval,
		Enabled:      s.Enabled,
		Status:       models.StatusUnknown,
	}
}

// Credential builds the credential row of s, passing every secret through
// seal. The first community and the first v3 credential set are used.
// It returns nil when s carries no credential at all.
func (s DeviceSeed) Credential(seal func(string) (string, error)) (*models.Credential, error) {
	var c models.Credential
	var err error
	sealed := func(plain string) string {
		if plain == "" || err != nil {
			return ""
		}
		var out string
		out, err = seal(plain)
		return out
	}
	if len(s.Communities) > 0 {
		c.Community = sealed(s.Communities[0])
	}
	if s.Version == "3" && len(s.V3Credentials) > 0 {
		v3 := s.V3Credentials[0]
		c.Username = v3.Username
		c.AuthProtocol = v3.AuthenticationProtocol
		c.AuthKey = sealed(v3.AuthenticationPassphrase)
		c.PrivProtocol = v3.PrivacyProtocol
		c.PrivKey = sealed(v3.PrivacyPassphrase)
	}
	if err != nil {
		return nil, fmt.Errorf("config: seal credential of %s: %w", s.Name, err)
	}
	if c == (models.Credential{}) {
		return nil, nil
	}
	return &c, nil
}

// LoadDevices reads every *.yml / *.yaml file under dir. Each file maps a
// device name to its entry. A missing directory yields no seeds. Malformed
// files and invalid entries are reported together; the valid seeds are
// returned alongside the error. Later files override earlier ones by name.
func LoadDevices(dir string, snmp SNMPConfig, logger *slog.Logger) ([]DeviceSeed, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	files, err := yamlFiles(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: list devices dir %q: %w", dir, err)
	}
	sort.Strings(files)

	var errs []error
	byName := make(map[string]DeviceSeed)
	for _, path := range files {
		var raw map[string]rawDeviceEntry
		if err := decodeFile(path, &raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		for name, entry := range raw {
			seed, err := resolveDevice(name, entry, snmp)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				continue
			}
			byName[name] = seed
		}
		logger.Debug("config: loaded device file", "file", path, "count", len(raw))
	}

	seeds := make([]DeviceSeed, 0, len(byName))
	for _, s := range byName {
		seeds = append(seeds, s)
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i].Name < seeds[j].Name })

	if len(errs) > 0 {
		return seeds, fmt.Errorf("config: devices: %w: %w", ErrInvalid, errors.Join(errs...))
	}
	return seeds, nil
}

// resolveDevice fills zero fields of e from the SNMP defaults and then from
// the hard-coded fallbacks.
func resolveDevice(name string, e rawDeviceEntry, d SNMPConfig) (DeviceSeed, error) {
	if strings.TrimSpace(e.IP) == "" {
		return DeviceSeed{}, fmt.Errorf("device %q: ip is required", name)
	}

	port := e.Port
	if port == 0 {
		port = d.Port
	}
	if port == 0 {
		port = 161
	}
	if port < 0 || port > 65535 {
		return DeviceSeed{}, fmt.Errorf("device %q: port %d out of range", name, port)
	}

	interval := e.PollInterval
	if interval == 0 {
		interval = 60
	}
	if interval < 0 {
		return DeviceSeed{}, fmt.Errorf("device %q: negative poll_interval", name)
	}

	version := e.Version
	if version == "" {
		version = d.Version
	}
	if version == "" {
		version = "2c"
	}
	switch version {
	case "1", "2c":
	case "3":
		if len(e.V3Credentials) == 0 || e.V3Credentials[0].Username == "" {
			return DeviceSeed{}, fmt.Errorf("device %q: version 3 needs v3_credentials with a username", name)
		}
	default:
		return DeviceSeed{}, fmt.Errorf("device %q: unsupported version %q", name, version)
	}

	enabled := true
	if e.Enabled != nil {
		enabled = *e.Enabled
	}

	return DeviceSeed{
		Name:          name,
		Address:       e.IP,
		Port:          port,
		PollInterval:  interval,
		Version:       version,
		Enabled:       enabled,
		Communities:   e.Communities,
		V3Credentials: e.V3Credentials,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// File helpers
// ─────────────────────────────────────────────────────────────────────────────

// yamlFiles returns every .yml / .yaml file under dir, recursively.
func yamlFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yml" || ext == ".yaml" {
			paths = append(paths, p)
		}
		return nil
	})
	return paths, err
}

// decodeFile opens path and unmarshals the YAML content into out.
func decodeFile(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false) // extra keys are fine
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

// Package config loads and layers the station's configuration files:
// station.conf (shared) and slave-N.conf (one per RAL slave process), plus
// the build-variant flag that governs whether nocca/nodc/nodwell are
// honored, per spec §6 and the Open Question decision in SPEC_FULL.md.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BuildVariant selects which safety checks the TX pipeline enforces.
// "prod" makes nocca/nodc/nodwell no-ops (the LNS cannot disable regulatory
// admission checks on a production gateway); "dev" honors them, matching
// the reference station's debug builds. Defaults to "dev".
type BuildVariant string

const (
	BuildVariantDev  BuildVariant = "dev"
	BuildVariantProd BuildVariant = "prod"
)

// Station is the shared station.conf structure.
type Station struct {
	Gateway struct {
		EUI    string `yaml:"eui"`
		Region string `yaml:"region"`
	} `yaml:"gateway"`

	LNS struct {
		URI            string `yaml:"uri"`
		TrustFile      string `yaml:"trust,omitempty"`
		CertFile       string `yaml:"cert,omitempty"`
		KeyFile        string `yaml:"key,omitempty"`
		ReconnectSecs  int    `yaml:"reconnect_interval_secs"`
		PingSecs       int    `yaml:"ping_interval_secs"`
	} `yaml:"lns"`

	RAL struct {
		EventURL   string `yaml:"event_url"`
		CommandURL string `yaml:"command_url"`
	} `yaml:"ral"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`

	BuildVariant BuildVariant `yaml:"build_variant"`
}

// Slave is a per-RAL-process overlay, one per concentrator slot in a
// multi-concentrator gateway (spec §5's multi-process extension).
type Slave struct {
	Index      int    `yaml:"-"`
	RadioCount int    `yaml:"radio_count"`
	AntennaGain float64 `yaml:"antenna_gain,omitempty"`
	SubBandLo  uint32 `yaml:"sub_band_lo_hz,omitempty"`
	SubBandHi  uint32 `yaml:"sub_band_hi_hz,omitempty"`
}

// DefaultStation returns sane default timings, matching the teacher's
// DefaultConfig pattern of always having a usable zero-value-free config.
func DefaultStation() Station {
	s := Station{}
	s.LNS.ReconnectSecs = 5
	s.LNS.PingSecs = 30
	s.RAL.EventURL = "ipc:///tmp/concentratord_event"
	s.RAL.CommandURL = "ipc:///tmp/concentratord_command"
	s.Logging.Level = "info"
	s.BuildVariant = BuildVariantDev
	return s
}

// LoadStation reads and parses station.conf from path.
func LoadStation(path string) (Station, error) {
	cfg := DefaultStation()

	data, err := os.ReadFile(path)
	if err != nil {
		return Station{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Station{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.Gateway.EUI == "" {
		return Station{}, fmt.Errorf("config: gateway.eui is required")
	}
	if cfg.LNS.URI == "" {
		return Station{}, fmt.Errorf("config: lns.uri is required")
	}
	if cfg.BuildVariant == "" {
		cfg.BuildVariant = BuildVariantDev
	}

	return cfg, nil
}

// LoadSlaves reads every slave-N.conf sibling of station.conf, in index
// order. A station with no slave overlays (the common single-concentrator
// case) gets a single implicit Slave{Index: 0, RadioCount: 1}.
func LoadSlaves(stationConfPath string) ([]Slave, error) {
	dir := filepath.Dir(stationConfPath)

	var slaves []Slave
	for i := 0; ; i++ {
		path := filepath.Join(dir, fmt.Sprintf("slave-%d.conf", i))
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}

		s := Slave{Index: i, RadioCount: 1}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		s.Index = i
		slaves = append(slaves, s)
	}

	if len(slaves) == 0 {
		slaves = append(slaves, Slave{Index: 0, RadioCount: 1})
	}
	return slaves, nil
}

// ReconnectInterval and PingInterval convert the YAML second counts to
// time.Duration for the transport layers.
func (s Station) ReconnectInterval() time.Duration {
	return time.Duration(s.LNS.ReconnectSecs) * time.Second
}

func (s Station) PingInterval() time.Duration {
	return time.Duration(s.LNS.PingSecs) * time.Second
}

// EnforcesAdmissionOverrides reports whether nocca/nodc/nodwell from
// router_config should be honored. Production builds ignore them.
func (s Station) EnforcesAdmissionOverrides() bool {
	return s.BuildVariant != BuildVariantProd
}

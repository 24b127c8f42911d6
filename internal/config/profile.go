package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultLocation         = "Paris, FR"
	locatorFallbackLocation = "New York, US"
	fallbackLocation        = "London, GB"
	defaultIconBaseURL      = "https://openweathermap.org/img/wn"
)

// Profile is the optional YAML file named by DASHBOARD_PROFILE. Environment
// variables take precedence over any value set here.
//
//	default_location: "Paris, FR"
//	locator_fallback_location: "New York, US"
//	fallback_location: "London, GB"
//	icon_base_url: "https://openweathermap.org/img/wn"
type Profile struct {
	DefaultLocation         string `yaml:"default_location"`
	LocatorFallbackLocation string `yaml:"locator_fallback_location"`
	FallbackLocation        string `yaml:"fallback_location"`
	IconBaseURL             string `yaml:"icon_base_url"`
}

// LoadProfile reads a dashboard profile. An empty path yields an empty profile.
func LoadProfile(path string) (Profile, error) {
	var p Profile
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read DASHBOARD_PROFILE: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse DASHBOARD_PROFILE: %w", err)
	}
	return p, nil
}

func (p Profile) defaultLocation() string {
	return orDefault(p.DefaultLocation, defaultLocation)
}

func (p Profile) locatorFallbackLocation() string {
	return orDefault(p.LocatorFallbackLocation, locatorFallbackLocation)
}

func (p Profile) fallbackLocation() string {
	return orDefault(p.FallbackLocation, fallbackLocation)
}

func (p Profile) iconBaseURL() string {
	return orDefault(p.IconBaseURL, defaultIconBaseURL)
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

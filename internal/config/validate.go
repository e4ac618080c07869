package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate rejects configurations the beacon-api process cannot run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var errs []error
	if cfg.Poll.Interval <= 0 {
		errs = append(errs, errors.New("poll.interval must be a positive duration"))
	}
	if cfg.Poll.Timeout <= 0 {
		errs = append(errs, errors.New("poll.timeout must be a positive duration"))
	}
	if cfg.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	switch cfg.Aggregation.Mode {
	case ModeEvaluateAll, ModeFirstMatch:
	default:
		errs = append(errs, fmt.Errorf("aggregation.mode %q is not one of %s, %s", cfg.Aggregation.Mode, ModeEvaluateAll, ModeFirstMatch))
	}
	if len(cfg.Backends) == 0 {
		errs = append(errs, errors.New("at least one backend is required"))
	}

	seen := make(map[string]struct{}, len(cfg.Backends))
	for i, b := range cfg.Backends {
		if b.ID == "" {
			errs = append(errs, fmt.Errorf("backends[%d]: id is required", i))
		} else if b.ID == "main" {
			errs = append(errs, fmt.Errorf("backends[%d]: id %q is reserved", i, b.ID))
		}
		if _, dup := seen[b.ID]; dup {
			errs = append(errs, fmt.Errorf("backends[%d]: duplicate id %q", i, b.ID))
		}
		seen[b.ID] = struct{}{}

		if err := validateURL(b.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("backend %s: baseURL: %w", b.ID, err))
		}

		switch b.Kind {
		case KindAlertmanager:
		case KindZabbix:
			if b.Token == "" {
				errs = append(errs, fmt.Errorf("backend %s: token is required for zabbix", b.ID))
			}
			if b.Mode != ZabbixModeOld && b.Mode != ZabbixModeNew {
				errs = append(errs, fmt.Errorf("backend %s: mode %q must be %s or %s", b.ID, b.Mode, ZabbixModeOld, ZabbixModeNew))
			}
			if b.LookbackSeconds < 0 {
				errs = append(errs, fmt.Errorf("backend %s: lookbackSeconds must not be negative", b.ID))
			}
		default:
			errs = append(errs, fmt.Errorf("backend %s: unsupported kind %q", b.ID, b.Kind))
		}
	}

	if cfg.Sinks.File.Enabled && cfg.Sinks.File.Path == "" {
		errs = append(errs, errors.New("sinks.file.path is required when the file sink is enabled"))
	}
	if cfg.Cache.Enabled && cfg.Cache.Addr == "" {
		errs = append(errs, errors.New("cache.addr is required when the cache is enabled"))
	}

	return errors.Join(errs...)
}

// ValidatePresentation rejects configurations the beacon-display process cannot run with.
func ValidatePresentation(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var errs []error
	p := cfg.Presentation
	if p.Interval <= 0 {
		errs = append(errs, errors.New("presentation.interval must be a positive duration"))
	}
	if p.NormalDuration <= 0 {
		errs = append(errs, errors.New("presentation.normalDuration must be positive"))
	}
	if p.ErrorDuration <= 0 {
		errs = append(errs, errors.New("presentation.errorDuration must be positive"))
	}
	switch p.Source {
	case SourceHTTP:
		if err := validateURL(p.APIURL); err != nil {
			errs = append(errs, fmt.Errorf("presentation.apiURL: %w", err))
		}
	case SourceFile:
		if p.FilePath == "" {
			errs = append(errs, errors.New("presentation.filePath is required for the file source"))
		}
	case SourceValkey:
		if cfg.Cache.Addr == "" {
			errs = append(errs, errors.New("cache.addr is required for the valkey source"))
		}
	default:
		errs = append(errs, fmt.Errorf("presentation.source %q is not one of %s, %s, %s", p.Source, SourceHTTP, SourceFile, SourceValkey))
	}
	return errors.Join(errs...)
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q must be http or https", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

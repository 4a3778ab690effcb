package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
)

// maxConfigBytes bounds the size of a configuration document.
const maxConfigBytes = 1 << 20

// Load reads the configuration file at path. Environment references such as ${HOME} are
// substituted before decoding, fields missing from the file keep their defaults and the result is
// validated.
func Load(path string) (*Config, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening config")
	}
	defer func() {
		_ = f.Close()
	}()
	cfg, err := FromReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %q", path)
	}
	return cfg, nil
}

// FromReader reads a configuration document from r. See Load.
func FromReader(r io.Reader) (*Config, error) {
	buf, err := io.ReadAll(io.LimitReader(r, maxConfigBytes+1))
	if err != nil {
		return nil, err
	}
	if len(buf) > maxConfigBytes {
		return nil, errors.Errorf("config exceeds %d bytes", maxConfigBytes)
	}
	buf, err = envsubst.Bytes(buf)
	if err != nil {
		return nil, errors.Wrap(err, "substituting environment")
	}

	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config from json")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

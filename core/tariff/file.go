package tariff

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type priceFile struct {
	Periods    []Period `json:"periods"`
	ServiceFee float64  `json:"service_fee"`
}

// Load reads and validates a JSON price file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price file: %w", err)
	}
	var pf priceFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse price file %s: %w", path, err)
	}
	return New(pf.Periods, pf.ServiceFee)
}

// LoadOrCreate loads the price file at path, writing the default table there
// first when the file does not exist. The returned bool reports whether the
// default was written.
func LoadOrCreate(path string) (*Table, bool, error) {
	t, err := Load(path)
	if err == nil {
		return t, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	t = Default()
	if err := Save(path, t); err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// Save writes the table to path as an indented JSON price file.
func Save(path string, t *Table) error {
	pf := priceFile{Periods: t.Periods(), ServiceFee: t.ServiceFee()}
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write price file: %w", err)
	}
	return nil
}

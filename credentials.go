package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh/terminal"
)

// Credential file columns, matched case-insensitively.
const (
	columnURL      = "apic_url"
	columnUsername = "username"
	columnPassword = "password"
)

// readCredentials parses a CSV with a header row naming APIC_URL,
// USERNAME and PASSWORD. Extra columns are ignored.
func readCredentials(r io.Reader) ([]ControllerTarget, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("credential file is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading credential header")
	}
	index := make(map[string]int)
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, col := range []string{columnURL, columnUsername, columnPassword} {
		if _, ok := index[col]; !ok {
			return nil, errors.Errorf("credential file has no %s column", strings.ToUpper(col))
		}
	}
	field := func(record []string, col string) string {
		if i := index[col]; i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}
	var targets []ControllerTarget
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading credential line %d", line)
		}
		target := ControllerTarget{
			Address:  field(record, columnURL),
			Username: field(record, columnUsername),
			Password: field(record, columnPassword),
		}
		if target.Address == "" && target.Username == "" {
			continue
		}
		if target.Address == "" || target.Username == "" {
			return nil, errors.Errorf("credential line %d: %s and %s are required",
				line, strings.ToUpper(columnURL), strings.ToUpper(columnUsername))
		}
		targets = append(targets, target)
	}
	if len(targets) == 0 {
		return nil, errors.New("credential file lists no controllers")
	}
	return targets, nil
}

func loadCredentials(path string) ([]ControllerTarget, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening credential file")
	}
	defer f.Close()
	return readCredentials(f)
}

// promptPasswords asks for every password the credential file left empty.
func promptPasswords(targets []ControllerTarget) error {
	fd := int(os.Stdin.Fd())
	for i := range targets {
		if targets[i].Password != "" {
			continue
		}
		if !terminal.IsTerminal(fd) {
			return errors.Errorf("no password for %s and stdin is not a terminal", targets[i].Address)
		}
		fmt.Printf("Password for %s@%s: ", targets[i].Username, targets[i].Address)
		pwd, err := terminal.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return errors.Wrap(err, "reading password")
		}
		targets[i].Password = string(pwd)
	}
	return nil
}

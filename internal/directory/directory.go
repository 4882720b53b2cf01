// Package directory holds the static owner directory: the mapping from
// an owner identity to a contact address, plus the single escalation
// contact copied on every notification.
//
// Addresses in the directory file conventionally follow first-initial +
// last-name (e.g. "Fadi Hanna" -> FHanna@...), but that is a convention
// of how the file was authored, not a rule this package applies. The
// file is always authoritative; addresses are never derived at runtime.
package directory

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Configuration errors. A directory that cannot resolve exactly one
// escalation contact is unusable: recipient resolution is undefined
// without one, so these are fatal at load time.
var (
	ErrNoEscalationContact        = errors.New("directory: no entry is marked as escalation contact")
	ErrMultipleEscalationContacts = errors.New("directory: more than one entry is marked as escalation contact")
)

// UnknownOwnerError reports a case owner identity with no directory
// entry. It is recoverable: the owner's cases are excluded from the
// run and the condition is reported, not fatal.
type UnknownOwnerError struct {
	Identity string
}

func (e *UnknownOwnerError) Error() string {
	return fmt.Sprintf("directory: unknown owner %q", e.Identity)
}

// Entry is one owner in the directory.
type Entry struct {
	Name       string `yaml:"name"`
	Email      string `yaml:"email"`
	Escalation bool   `yaml:"escalation,omitempty"`
}

// Directory is an immutable owner lookup table with exactly one
// escalation contact. It is built once at process start and must not
// be mutated during a run; all methods are safe for concurrent use.
type Directory struct {
	byName     map[string]Entry
	escalation Entry
}

type file struct {
	Owners []Entry `yaml:"owners"`
}

// Load reads a directory YAML file and validates it.
func Load(path string) (*Directory, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // G304: path is from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("directory: read %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("directory: parse %s: %w", path, err)
	}

	d, err := New(f.Owners)
	if err != nil {
		return nil, fmt.Errorf("directory: %s: %w", path, err)
	}
	return d, nil
}

// New builds a Directory from entries, enforcing unique identities,
// non-empty fields, and exactly one escalation contact. Surrounding
// whitespace on names and addresses is trimmed so config files cannot
// introduce invisible mismatches; comparison after that is exact.
func New(entries []Entry) (*Directory, error) {
	if len(entries) == 0 {
		return nil, errors.New("directory is empty")
	}

	d := &Directory{byName: make(map[string]Entry, len(entries))}
	escalations := 0

	for i, e := range entries {
		e.Name = strings.TrimSpace(e.Name)
		e.Email = strings.TrimSpace(e.Email)
		if e.Name == "" {
			return nil, fmt.Errorf("entry %d has no name", i)
		}
		if e.Email == "" {
			return nil, fmt.Errorf("entry %q has no email", e.Name)
		}
		if _, dup := d.byName[e.Name]; dup {
			return nil, fmt.Errorf("duplicate identity %q", e.Name)
		}
		d.byName[e.Name] = e

		if e.Escalation {
			escalations++
			d.escalation = e
		}
	}

	switch {
	case escalations == 0:
		return nil, ErrNoEscalationContact
	case escalations > 1:
		return nil, ErrMultipleEscalationContacts
	}

	return d, nil
}

// Lookup resolves an owner identity to its entry. Identities are
// matched exactly; a miss returns *UnknownOwnerError.
func (d *Directory) Lookup(identity string) (Entry, error) {
	e, ok := d.byName[identity]
	if !ok {
		return Entry{}, &UnknownOwnerError{Identity: identity}
	}
	return e, nil
}

// EscalationContact returns the single entry marked as escalation
// contact. New guarantees exactly one exists.
func (d *Directory) EscalationContact() Entry {
	return d.escalation
}

// Len reports the number of directory entries.
func (d *Directory) Len() int {
	return len(d.byName)
}

package intent

import "strings"

// Contact is an entry of the user's address book used to resolve attendee names.
type Contact struct {
	Name  string `mapstructure:"name" yaml:"name" json:"name"`
	Email string `mapstructure:"email" yaml:"email,omitempty" json:"email,omitempty"`
}

// Directory looks up contacts by spoken name.
type Directory struct {
	contacts []Contact
}

// NewDirectory returns a directory over contacts. Entries without a name are ignored.
func NewDirectory(contacts []Contact) *Directory {
	d := &Directory{}
	for _, c := range contacts {
		if strings.TrimSpace(c.Name) != "" {
			d.contacts = append(d.contacts, c)
		}
	}
	return d
}

// Match returns the contacts a spoken name could refer to. A full-name match
// wins over first-name matches.
func (d *Directory) Match(name string) []Contact {
	if d == nil {
		return nil
	}
	q := strings.ToLower(strings.TrimSpace(name))
	if q == "" {
		return nil
	}
	var full, first []Contact
	for _, c := range d.contacts {
		n := strings.ToLower(c.Name)
		if n == q {
			full = append(full, c)
			continue
		}
		if f, _, _ := strings.Cut(n, " "); f == q {
			first = append(first, c)
		}
	}
	if len(full) > 0 {
		return full
	}
	return first
}

// Len returns the number of contacts.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.contacts)
}

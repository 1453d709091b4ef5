package certinfo

import (
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedCertificate = errors.New("malformed certificate")

const noneMarker = "(none)"

// Metadata is what can be recovered from a certificate report. Fields the
// report does not carry are left empty.
type Metadata struct {
	Path            string
	KeyType         string
	PublicKey       string
	SigningCA       string
	KeyID           string
	Serial          string
	Validity        string
	Principals      []string
	CriticalOptions []string
	Extensions      []string
	// Extra holds "Name: value" lines that are not recognised.
	Extra map[string]string
}

// Fields flattens the metadata into a field name to value mapping. List
// fields are comma joined.
func (m *Metadata) Fields() map[string]string {
	return map[string]string{
		"key-type":                   m.KeyType,
		"public-key-fingerprint":     m.PublicKey,
		"signing-authority-identity": m.SigningCA,
		"key-id":                     m.KeyID,
		"serial-number":              m.Serial,
		"validity-window":            m.Validity,
		"principals":                 strings.Join(m.Principals, ","),
		"critical-options":           strings.Join(m.CriticalOptions, ","),
		"extensions":                 strings.Join(m.Extensions, ","),
	}
}

// HasPrincipal reports whether principal is listed exactly. An empty principal never matches.
func (m *Metadata) HasPrincipal(principal string) bool {
	if principal == "" {
		return false
	}
	for _, p := range m.Principals {
		if p == principal {
			return true
		}
	}
	return false
}

type listField int

const (
	noList listField = iota
	principalsList
	criticalOptionsList
	extensionsList
)

// Parse reads an ssh-keygen -L style report. List items are the lines indented
// deeper than their header, up to the next line at the header's indentation or
// shallower, a blank line, or the end of the text.
func Parse(text string) (*Metadata, error) {
	md := &Metadata{Extra: map[string]string{}}

	var (
		recovered  bool
		open       = noList
		openIndent int
	)

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, " \t\r")
		if strings.TrimSpace(line) == "" {
			open = noList
			continue
		}

		indent := indentWidth(line)
		content := strings.TrimSpace(line)

		if open != noList {
			if indent > openIndent {
				if content != noneMarker {
					md.appendItem(open, content)
				}
				continue
			}
			open = noList
		}

		name, value, hasColon := strings.Cut(content, ":")
		if !hasColon {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(name)) {
		case "type":
			md.KeyType = value
		case "public key":
			md.PublicKey = value
		case "signing ca":
			md.SigningCA = value
		case "key id":
			md.KeyID = unquote(value)
		case "serial":
			md.Serial = value
		case "valid":
			md.Validity = value
		case "principals":
			open, openIndent = md.openList(principalsList, value), indent
		case "critical options":
			open, openIndent = md.openList(criticalOptionsList, value), indent
		case "extensions":
			open, openIndent = md.openList(extensionsList, value), indent
		default:
			if indent == 0 && md.Path == "" && strings.HasSuffix(content, ":") && !recovered {
				md.Path = strings.TrimSuffix(content, ":")
			} else if value != "" {
				md.Extra[strings.TrimSpace(name)] = value
			}
			continue
		}
		recovered = true
	}

	if !recovered {
		return nil, fmt.Errorf("%w: no certificate fields found", ErrMalformedCertificate)
	}

	return md, nil
}

// openList starts collecting a list field and returns the field that stays open
// for following lines. An inline value is taken as the first item.
func (m *Metadata) openList(field listField, inline string) listField {
	switch inline {
	case "":
	case noneMarker:
		return noList
	default:
		m.appendItem(field, inline)
	}
	return field
}

func (m *Metadata) appendItem(field listField, item string) {
	switch field {
	case principalsList:
		m.Principals = append(m.Principals, item)
	case criticalOptionsList:
		m.CriticalOptions = append(m.CriticalOptions, item)
	case extensionsList:
		m.Extensions = append(m.Extensions, item)
	}
}

// indentWidth counts leading whitespace columns, with tabs advancing to the next multiple of 8.
func indentWidth(line string) int {
	width := 0
	for _, r := range line {
		switch r {
		case ' ':
			width++
		case '\t':
			width += 8 - width%8
		default:
			return width
		}
	}
	return width
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
